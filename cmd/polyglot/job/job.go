package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mattermost/polyglot/cmd/polyglot/apis/azure"
	"github.com/mattermost/polyglot/cmd/polyglot/apis/libretranslate"
	whisper "github.com/mattermost/polyglot/cmd/polyglot/apis/whisper.cpp"
	"github.com/mattermost/polyglot/cmd/polyglot/config"
	"github.com/mattermost/polyglot/cmd/polyglot/pipeline"
	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"
	"github.com/mattermost/polyglot/cmd/polyglot/translate"

	"github.com/mattermost/mattermost/server/public/model"
)

type APIClient interface {
	DoAPIRequestBytes(ctx context.Context, method, url string, data []byte, etag string) (*http.Response, error)
	UploadFile(ctx context.Context, data []byte, channelID string, filename string) (*model.FileUploadResponse, *model.Response, error)
	CreatePost(ctx context.Context, post *model.Post) (*model.Post, *model.Response, error)
}

// EventHandler is called for every pipeline event, in order, from the
// goroutine consuming the run.
type EventHandler func(ev pipeline.Event)

// Job processes a single audio file and, if configured, publishes the
// results and reports its status to the calls plugin.
type Job struct {
	cfg config.Config

	transcriber transcribe.Transcriber
	cache       *translate.Cache
	processor   *pipeline.Processor
	handler     EventHandler

	apiClient APIClient
	apiURL    string

	mut       sync.Mutex
	run       *pipeline.Run
	audioPath string

	errCh    chan error
	doneCh   chan struct{}
	doneOnce sync.Once
}

func newTranscriber(cfg config.Config) (transcribe.Transcriber, error) {
	switch cfg.TranscribeAPI {
	case config.TranscribeAPIWhisperCPP:
		return whisper.NewFileTranscriber(whisper.FileTranscriberConfig{
			Context: whisper.Config{
				ModelFile:  cfg.WhisperModelFile(),
				NumThreads: cfg.NumThreads,
				NoContext:  true,
				Language:   cfg.TranscribeLanguage,
			},
			VADModelFile: cfg.VADModelFile(),
		})
	case config.TranscribeAPIAzure:
		return azure.NewSpeechRecognizer(azure.SpeechRecognizerConfig{
			SpeechKey:    cfg.AzureSpeechKey,
			SpeechRegion: cfg.AzureSpeechRegion,
			Language:     cfg.TranscribeLanguage,
			Languages:    cfg.AzureSpeechLanguages,
		})
	default:
		return nil, fmt.Errorf("transcribe API %q not implemented", cfg.TranscribeAPI)
	}
}

func newLoader(cfg config.Config) (translate.Loader, error) {
	if len(cfg.Chains) == 0 {
		return translate.LoaderFunc(func(pair translate.Pair) (translate.Engine, error) {
			return nil, fmt.Errorf("%w: no translation configured", translate.ErrUnavailable)
		}), nil
	}

	switch cfg.TranslateAPI {
	case config.TranslateAPILibreTranslate:
		return libretranslate.NewClient(libretranslate.Config{
			URL:    cfg.TranslateAPIURL,
			APIKey: cfg.TranslateAPIKey,
		})
	default:
		return nil, fmt.Errorf("translate API %q not implemented", cfg.TranslateAPI)
	}
}

func New(cfg config.Config, handler EventHandler) (*Job, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	j, err := newJob(cfg, transcriber, handler)
	if err != nil {
		if err := transcriber.Destroy(); err != nil {
			slog.Error("failed to destroy transcriber", slog.String("err", err.Error()))
		}
		return nil, err
	}

	return j, nil
}

func newJob(cfg config.Config, transcriber transcribe.Transcriber, handler EventHandler) (*Job, error) {
	loader, err := newLoader(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation loader: %w", err)
	}

	cache, err := translate.NewCache(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation cache: %w", err)
	}

	resolver, err := translate.NewResolver(cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation resolver: %w", err)
	}

	processor, err := pipeline.NewProcessor(pipeline.WriterConfig{
		OutputDir: cfg.DataDir,
		Text:      cfg.OutputOptions.Text,
		WebVTT:    cfg.OutputOptions.WebVTT,
	}, transcriber, resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	if handler == nil {
		handler = func(_ pipeline.Event) {}
	}

	j := &Job{
		cfg:         cfg,
		transcriber: transcriber,
		cache:       cache,
		processor:   processor,
		handler:     handler,
		errCh:       make(chan error, 1),
		doneCh:      make(chan struct{}),
	}

	if cfg.PublishEnabled() {
		apiClient := model.NewAPIv4Client(cfg.SiteURL)
		apiClient.SetToken(cfg.AuthToken)
		j.apiClient = apiClient
		j.apiURL = apiClient.URL
	}

	return j, nil
}

// Start begins processing audioPath in the background.
func (j *Job) Start(ctx context.Context, audioPath string) error {
	j.mut.Lock()
	defer j.mut.Unlock()

	if j.run != nil {
		return fmt.Errorf("job already started")
	}

	if j.cfg.JobStatusEnabled() {
		if err := j.ReportJobStarted(); err != nil {
			return fmt.Errorf("failed to report job started status: %w", err)
		}
	}

	j.audioPath = audioPath
	j.run = j.processor.Start(ctx, pipeline.Request{
		AudioPath: audioPath,
		Chains:    j.cfg.Chains,
	})

	slog.Info("job started", slog.String("runID", j.run.ID), slog.String("audioPath", audioPath))

	go j.consume(j.run)

	return nil
}

func (j *Job) consume(run *pipeline.Run) {
	var err error

	for ev := range run.Events() {
		j.handler(ev)

		switch e := ev.(type) {
		case pipeline.Finished:
			if j.cfg.PublishEnabled() {
				if pubErr := j.publish(run, e); pubErr != nil {
					err = fmt.Errorf("failed to publish results: %w", pubErr)
				}
			}
		case pipeline.Failed:
			err = errors.New(e.Message)
		}
	}

	if err != nil && j.cfg.JobStatusEnabled() {
		if reportErr := j.ReportJobFailure(err.Error()); reportErr != nil {
			slog.Error("failed to report job failure", slog.String("err", reportErr.Error()))
		}
	}

	j.done(err)
}

func (j *Job) done(err error) {
	j.doneOnce.Do(func() {
		if err != nil {
			j.errCh <- err
		}
		close(j.doneCh)
	})
}

// Stop cancels the run and waits for it to finalize.
func (j *Job) Stop(ctx context.Context) error {
	j.mut.Lock()
	run := j.run
	j.mut.Unlock()

	if run == nil {
		return fmt.Errorf("job not started")
	}

	run.Cancel()

	select {
	case <-j.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) Done() <-chan struct{} {
	return j.doneCh
}

func (j *Job) Err() error {
	select {
	case err := <-j.errCh:
		return err
	default:
		return nil
	}
}

// Run returns the current pipeline run, if any.
func (j *Job) Run() *pipeline.Run {
	j.mut.Lock()
	defer j.mut.Unlock()
	return j.run
}

// Destroy releases the transcription resources and drops every loaded
// translation engine.
func (j *Job) Destroy() error {
	j.cache.Clear()
	if err := j.transcriber.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy transcriber: %w", err)
	}
	return nil
}
