package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattermost/polyglot/cmd/polyglot/pipeline"
	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"

	"github.com/mattermost/mattermost/server/public/model"
)

const (
	httpRequestTimeout     = 5 * time.Second
	httpUploadTimeout      = 10 * time.Second
	maxUploadRetryAttempts = 5
)

var (
	uploadRetryAttemptWaitTime = 5 * time.Second
)

type artifact struct {
	name string
	data []byte
}

func readArtifacts(paths ...string) ([]artifact, error) {
	var artifacts []artifact
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact: %w", err)
		}
		artifacts = append(artifacts, artifact{
			name: filepath.Base(path),
			data: data,
		})
	}
	return artifacts, nil
}

// chainIDs returns the translation chains found in segments, in order.
func chainIDs(segments transcribe.Transcription) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, s := range segments {
		for _, tr := range s.Translations {
			if !seen[tr.ChainID] {
				seen[tr.ChainID] = true
				ids = append(ids, tr.ChainID)
			}
		}
	}
	return ids
}

func postMessage(audioPath, lang string, f pipeline.Finished) string {
	status := "completed"
	if f.State == pipeline.StateCancelled {
		status = "cancelled"
	}

	if lang == "" {
		lang = "unknown"
	}

	msg := fmt.Sprintf("Transcription of `%s` %s (language: %s, segments: %d)",
		filepath.Base(audioPath), status, lang, len(f.Segments))

	if ids := chainIDs(f.Segments); len(ids) > 0 {
		msg += fmt.Sprintf("\nTranslations: %s", strings.Join(ids, ", "))
	}

	return msg
}

func (j *Job) uploadArtifacts(artifacts []artifact) ([]string, error) {
	fileIDs := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		ctx, cancelCtx := context.WithTimeout(context.Background(), httpUploadTimeout)
		res, _, err := j.apiClient.UploadFile(ctx, a.data, j.cfg.ChannelID, a.name)
		cancelCtx()
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", a.name, err)
		}
		if len(res.FileInfos) == 0 {
			return nil, fmt.Errorf("failed to upload %s: empty response", a.name)
		}
		fileIDs = append(fileIDs, res.FileInfos[0].Id)
	}
	return fileIDs, nil
}

// publish uploads the final artifacts of the run and attaches them to a new
// post in the configured channel.
func (j *Job) publish(run *pipeline.Run, f pipeline.Finished) error {
	if j.apiClient == nil {
		return fmt.Errorf("publishing is not configured")
	}

	if f.Path == "" {
		return fmt.Errorf("no artifact to publish")
	}

	artifacts, err := readArtifacts(f.Path, f.WebVTTPath)
	if err != nil {
		return err
	}

	msg := postMessage(j.audioPath, run.Language(), f)

	for i := 0; i < maxUploadRetryAttempts; i++ {
		if i > 0 {
			slog.Error("publish failed", slog.Duration("reattempt_time", uploadRetryAttemptWaitTime))
			time.Sleep(uploadRetryAttemptWaitTime)
		}

		fileIDs, err := j.uploadArtifacts(artifacts)
		if err != nil {
			slog.Error("failed to upload artifacts", slog.String("err", err.Error()))
			continue
		}

		ctx, cancelCtx := context.WithTimeout(context.Background(), httpRequestTimeout)
		post, _, err := j.apiClient.CreatePost(ctx, &model.Post{
			ChannelId: j.cfg.ChannelID,
			Message:   msg,
			FileIds:   fileIDs,
		})
		cancelCtx()
		if err != nil {
			slog.Error("failed to create post", slog.String("err", err.Error()))
			continue
		}

		slog.Info("results published", slog.String("postID", post.Id), slog.Any("fileIDs", fileIDs))

		return nil
	}

	return fmt.Errorf("maximum attempts reached")
}
