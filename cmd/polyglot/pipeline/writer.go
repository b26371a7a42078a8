package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"
)

const (
	timestampLayout  = "2006-01-02_150405"
	checkpointSuffix = ".checkpoint.txt"
	maxNameAttempts  = 100
)

var (
	filenameSanitizationRE = regexp.MustCompile(`[\\:*?\"<>|\n\s/]`)
)

func sanitizeFilename(name string) string {
	return filenameSanitizationRE.ReplaceAllString(name, "_")
}

// artifactName derives the base name of every artifact from the audio file
// name, e.g. "/tmp/some talk.wav" becomes "some_talk_wav".
func artifactName(audioPath string) string {
	name := sanitizeFilename(filepath.Base(audioPath))
	return strings.ReplaceAll(name, ".", "_")
}

type WriterConfig struct {
	OutputDir string
	Text      transcribe.TextOptions
	WebVTT    transcribe.WebVTTOptions
}

func (c WriterConfig) IsValid() error {
	if c.OutputDir == "" {
		return fmt.Errorf("invalid OutputDir: should not be empty")
	}

	if err := c.Text.IsValid(); err != nil {
		return fmt.Errorf("invalid Text options: %w", err)
	}

	if err := c.WebVTT.IsValid(); err != nil {
		return fmt.Errorf("invalid WebVTT options: %w", err)
	}

	return nil
}

// Writer persists the segments of a single run. Checkpoints always go to
// the same hidden file while every final write gets a new timestamped name.
type Writer struct {
	cfg  WriterConfig
	name string
	now  func() time.Time

	// Base path (no extension) of the last final text artifact. The WebVTT
	// export shares it.
	finalBase string
}

func NewWriter(cfg WriterConfig, audioPath string) (*Writer, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	name := artifactName(audioPath)
	if name == "" || name == "_" {
		return nil, fmt.Errorf("invalid audio path %q", audioPath)
	}

	return &Writer{
		cfg:  cfg,
		name: name,
		now:  time.Now,
	}, nil
}

func (w *Writer) CheckpointPath() string {
	return filepath.Join(w.cfg.OutputDir, "."+w.name+checkpointSuffix)
}

// reservePath creates an empty file named after base and ext, adding a
// numeric suffix when the name is taken. Existing files are never reused.
func reservePath(base, ext string) (string, string, error) {
	candidate := base
	for i := 0; i < maxNameAttempts; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		f, err := os.OpenFile(candidate+ext, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		} else if err != nil {
			return "", "", fmt.Errorf("failed to create file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", "", fmt.Errorf("failed to close file: %w", err)
		}
		return candidate, candidate + ext, nil
	}
	return "", "", fmt.Errorf("failed to find an available name for %s%s", base, ext)
}

func (w *Writer) timestampedBase() string {
	return filepath.Join(w.cfg.OutputDir, fmt.Sprintf("%s_%s", w.name, w.now().Format(timestampLayout)))
}

// reserveFinal picks the path of a final artifact. Text artifacts always get
// a fresh name while the WebVTT export follows the last text artifact.
func (w *Writer) reserveFinal(ext string) (string, error) {
	base := w.timestampedBase()
	if ext != ".txt" && w.finalBase != "" {
		base = w.finalBase
	}

	base, path, err := reservePath(base, ext)
	if err != nil {
		return "", err
	}

	if ext == ".txt" {
		w.finalBase = base
	}

	return path, nil
}

// Write serializes segments as text. It returns the path of the written
// artifact, or an empty string if writing failed. Failures are logged and
// never returned.
func (w *Writer) Write(segments transcribe.Transcription, checkpoint bool) string {
	var buf bytes.Buffer
	if err := segments.Text(&buf, w.cfg.Text); err != nil {
		slog.Error("failed to serialize segments", slog.String("err", err.Error()))
		return ""
	}

	path := w.CheckpointPath()
	if !checkpoint {
		var err error
		path, err = w.reserveFinal(".txt")
		if err != nil {
			slog.Error("failed to reserve results file", slog.String("err", err.Error()))
			return ""
		}
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		slog.Error("failed to write results",
			slog.String("err", err.Error()),
			slog.String("path", path),
			slog.Bool("checkpoint", checkpoint))
		if !checkpoint {
			os.Remove(path)
		}
		return ""
	}

	slog.Debug("results saved", slog.String("path", path), slog.Int("segments", len(segments)))

	return path
}

// WriteWebVTT exports segments as a WebVTT file next to the final text
// artifact. It returns an empty string if the export is disabled or failed.
func (w *Writer) WriteWebVTT(segments transcribe.Transcription) string {
	if !w.cfg.WebVTT.Enabled {
		return ""
	}

	var buf bytes.Buffer
	if err := segments.WebVTT(&buf, w.cfg.WebVTT); err != nil {
		slog.Error("failed to serialize segments", slog.String("err", err.Error()))
		return ""
	}

	path, err := w.reserveFinal(".vtt")
	if err != nil {
		slog.Error("failed to reserve WebVTT file", slog.String("err", err.Error()))
		return ""
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		slog.Error("failed to write WebVTT file", slog.String("err", err.Error()), slog.String("path", path))
		os.Remove(path)
		return ""
	}

	return path
}

// writeFileAtomic replaces path with data so that readers never observe a
// partially written file.
func writeFileAtomic(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}

	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}
