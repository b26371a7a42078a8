package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/mattermost/polyglot/cmd/polyglot/config"
	"github.com/mattermost/polyglot/cmd/polyglot/job"
	"github.com/mattermost/polyglot/cmd/polyglot/pipeline"
	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"

	"github.com/spf13/cobra"
)

const (
	stopTimeout = 10 * time.Minute
)

var (
	verbose   bool
	chains    []string
	dataDir   string
	modelSize string
	language  string
	webvtt    bool
)

func slogReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		if source.File == "" {
			// Log from a dependency (e.g. speech SDK callbacks).
			if pc, file, line, ok := runtime.Caller(7); ok {
				if f := runtime.FuncForPC(pc); f != nil {
					source.File = filepath.Base(filepath.Dir(file)) + "/" + filepath.Base(file)
					source.Line = line
				}
			}
		} else {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: slogReplaceAttr,
	}))
	slog.SetDefault(logger)
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("chain") {
		cfg.Chains = chains
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("model-size") {
		cfg.ModelSize = config.ModelSize(modelSize)
	}
	if flags.Changed("language") {
		cfg.TranscribeLanguage = language
	}
	if flags.Changed("webvtt") {
		cfg.OutputOptions.WebVTT.Enabled = webvtt
	}

	cfg.SetDefaults()

	return cfg, nil
}

// printEvent renders pipeline events for the terminal.
func printEvent(out io.Writer, textOpts transcribe.TextOptions) job.EventHandler {
	return func(ev pipeline.Event) {
		switch e := ev.(type) {
		case pipeline.Progress:
			slog.Info(e.Message, slog.Int("percent", e.Percent), slog.String("step", e.Step))
		case pipeline.SegmentProcessed:
			if err := (transcribe.Transcription{e.Segment}).Text(out, textOpts); err != nil {
				slog.Error("failed to print segment", slog.String("err", err.Error()))
			}
		case pipeline.Finished:
			if e.Path == "" {
				fmt.Fprintf(out, "%s: %d segments, results could not be saved\n", e.State, len(e.Segments))
				return
			}
			fmt.Fprintf(out, "%s: %d segments saved to %s\n", e.State, len(e.Segments), e.Path)
			if e.WebVTTPath != "" {
				fmt.Fprintf(out, "WebVTT saved to %s\n", e.WebVTTPath)
			}
		case pipeline.Failed:
			fmt.Fprintf(out, "FAILED: %s\n", e.Message)
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	j, err := job.New(cfg, printEvent(cmd.OutOrStdout(), cfg.OutputOptions.Text))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	defer func() {
		if err := j.Destroy(); err != nil {
			slog.Error("failed to destroy job", slog.String("err", err.Error()))
		}
	}()

	audioPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve audio path: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if err := j.Start(context.Background(), audioPath); err != nil {
		if cfg.JobStatusEnabled() {
			if err := j.ReportJobFailure(err.Error()); err != nil {
				slog.Error("failed to report job failure", slog.String("err", err.Error()))
			}
		}
		return fmt.Errorf("failed to start job: %w", err)
	}

	select {
	case <-j.Done():
	case <-sig:
		slog.Info("received signal, stopping job")
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := j.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop job: %w", err)
		}
	}

	return j.Err()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polyglot <audio-file>",
		Short: "Transcribe an audio file and translate its segments",
		Long: `Polyglot transcribes a 16KHz WAV file and pipes every recognized segment
through one or more translation chains (e.g. "en" or "en-ru", applied from the
detected language). Results are checkpointed after every segment and saved to
a timestamped text file in the data directory.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().StringSliceVarP(&chains, "chain", "c", nil, "translation chain, can be repeated (overrides TRANSLATE_CHAINS)")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "o", "", "output directory (overrides DATA_DIR)")
	cmd.Flags().StringVarP(&modelSize, "model-size", "m", "", "whisper model size: tiny, base, small, medium, large (overrides MODEL_SIZE)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "force the spoken language (overrides TRANSCRIBE_LANGUAGE)")
	cmd.Flags().BoolVar(&webvtt, "webvtt", false, "also export results as WebVTT (overrides WEBVTT_ENABLED)")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("polyglot failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
