package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"
	"github.com/mattermost/polyglot/cmd/polyglot/translate"

	"github.com/google/uuid"
)

const (
	eventsChSize = 64
)

var ErrSourceUnavailable = errors.New("source unavailable")

// Processor drives audio files through transcription and translation.
// Engines are shared across runs through the resolver's cache.
type Processor struct {
	cfg         WriterConfig
	transcriber transcribe.Transcriber
	resolver    *translate.Resolver
}

func NewProcessor(cfg WriterConfig, transcriber transcribe.Transcriber, resolver *translate.Resolver) (*Processor, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	if transcriber == nil {
		return nil, fmt.Errorf("transcriber should not be nil")
	}

	if resolver == nil {
		return nil, fmt.Errorf("resolver should not be nil")
	}

	return &Processor{
		cfg:         cfg,
		transcriber: transcriber,
		resolver:    resolver,
	}, nil
}

type Request struct {
	AudioPath string
	// Chain specs, e.g. "en" or "en-ru", applied from the detected language.
	Chains []string
}

// Run is a single execution of the pipeline. Events must be drained until
// the channel is closed or the run will block.
type Run struct {
	ID string

	p   *Processor
	req Request

	eventsCh  chan Event
	doneCh    chan struct{}
	cancelled atomic.Bool
	state     atomic.Int32

	mut      sync.RWMutex
	segments transcribe.Transcription
	language string
	path     string
	err      error
}

// Start begins processing req on a dedicated goroutine. Cancelling ctx has
// the same effect as calling Cancel on the returned run.
func (p *Processor) Start(ctx context.Context, req Request) *Run {
	r := &Run{
		ID:       uuid.NewString(),
		p:        p,
		req:      req,
		eventsCh: make(chan Event, eventsChSize),
		doneCh:   make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-r.doneCh:
		}
	}()

	go r.run(ctx)

	return r
}

func (r *Run) Events() <-chan Event {
	return r.eventsCh
}

func (r *Run) Done() <-chan struct{} {
	return r.doneCh
}

// Cancel asks the run to stop. It can be called any number of times. A
// blocking call already in flight completes before the run finalizes.
func (r *Run) Cancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		slog.Info("run cancellation requested", slog.String("runID", r.ID))
	}
}

func (r *Run) State() State {
	return State(r.state.Load())
}

func (r *Run) Err() error {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.err
}

func (r *Run) Language() string {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.language
}

// Path returns the final artifact path once the run has finished.
func (r *Run) Path() string {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.path
}

func (r *Run) Segments() transcribe.Transcription {
	r.mut.RLock()
	defer r.mut.RUnlock()
	segments := make(transcribe.Transcription, len(r.segments))
	copy(segments, r.segments)
	return segments
}

func (r *Run) setState(s State) {
	slog.Debug("run state changed", slog.String("runID", r.ID), slog.String("state", s.String()))
	r.state.Store(int32(s))
}

func (r *Run) emit(ev Event) {
	r.eventsCh <- ev
}

func (r *Run) progress(percent int, step, msg string) {
	r.emit(Progress{
		Message: msg,
		Percent: percent,
		Step:    step,
	})
}

func (r *Run) fail(err error) {
	slog.Error("run failed", slog.String("runID", r.ID), slog.String("err", err.Error()))

	r.mut.Lock()
	r.err = err
	r.mut.Unlock()

	r.setState(StateFailed)
	r.emit(Failed{Message: err.Error()})
}

func (r *Run) run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.State().IsTerminal() {
				slog.Error("run panicked after reaching a terminal state", slog.String("runID", r.ID), slog.Any("panic", rec))
			} else {
				r.fail(fmt.Errorf("unexpected failure: %v", rec))
			}
		}
		close(r.eventsCh)
		close(r.doneCh)
	}()

	slog.Info("run started",
		slog.String("runID", r.ID),
		slog.String("audioPath", r.req.AudioPath),
		slog.Any("chains", r.req.Chains))

	if err := r.process(ctx); err != nil {
		r.fail(err)
	}
}

func (r *Run) process(ctx context.Context) error {
	r.setState(StateDetectingLanguage)

	if r.req.AudioPath == "" {
		return fmt.Errorf("%w: empty audio path", ErrSourceUnavailable)
	}
	if _, err := os.Stat(r.req.AudioPath); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
	}

	writer, err := NewWriter(r.p.cfg, r.req.AudioPath)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	if r.cancelled.Load() {
		return r.finalize(writer, true)
	}

	r.progress(5, StepDetecting, "detecting language")

	seq, info, err := r.p.transcriber.Transcribe(r.req.AudioPath)
	if err != nil {
		return fmt.Errorf("failed to transcribe: %w", err)
	}
	defer func() {
		if err := seq.Close(); err != nil {
			slog.Error("failed to close segments", slog.String("err", err.Error()))
		}
	}()

	r.mut.Lock()
	r.language = info.Language
	r.mut.Unlock()

	r.progress(15, StepDetecting, fmt.Sprintf("detected language %q", info.Language))

	if r.cancelled.Load() {
		return r.finalize(writer, true)
	}

	r.setState(StateResolvingChains)
	chains := r.resolveChains(info.Language)

	r.setState(StateStreamingSegments)
	for i := 0; ; i++ {
		if r.cancelled.Load() {
			return r.finalize(writer, true)
		}

		r.progress(50, StepStreaming, fmt.Sprintf("transcribing segment %d", i+1))

		raw, ok, err := seq.Next()
		if err != nil {
			return fmt.Errorf("failed to get segment: %w", err)
		}
		if !ok {
			break
		}

		segment, ok := r.translateSegment(ctx, i, raw, chains)
		if !ok {
			return r.finalize(writer, true)
		}

		r.mut.Lock()
		r.segments = append(r.segments, segment)
		r.mut.Unlock()

		r.emit(SegmentProcessed{
			Index:   i,
			Segment: segment,
		})

		if r.cancelled.Load() {
			return r.finalize(writer, true)
		}

		if path := writer.Write(r.Segments(), true); path != "" {
			r.progress(50, StepStreaming, fmt.Sprintf("processed segments saved to %s", path))
		} else {
			r.progress(50, StepStreaming, "checkpoint unavailable")
		}
	}

	return r.finalize(writer, false)
}

// resolveChains returns the chains that could be resolved, in request
// order. Unavailable chains are logged and left out.
func (r *Run) resolveChains(sourceLang string) []*translate.Chain {
	var chains []*translate.Chain
	seen := make(map[string]bool)

	for _, spec := range r.req.Chains {
		chain, err := r.p.resolver.Resolve(sourceLang, spec)
		if err != nil {
			slog.Warn("translation chain unavailable",
				slog.String("runID", r.ID),
				slog.String("spec", spec),
				slog.String("err", err.Error()))
			continue
		}

		if seen[chain.ID] {
			slog.Debug("duplicate translation chain", slog.String("chainID", chain.ID))
			continue
		}
		seen[chain.ID] = true

		r.progress(25, StepResolving, fmt.Sprintf("loaded translation chain %s", chain.ID))
		chains = append(chains, chain)
	}

	return chains
}

// translateSegment builds the segment record for raw. It returns false if
// the run was cancelled before every chain was applied, in which case the
// segment must be discarded.
func (r *Run) translateSegment(ctx context.Context, idx int, raw transcribe.Segment, chains []*translate.Chain) (transcribe.Segment, bool) {
	segment := transcribe.Segment{
		Start:        max(raw.Start, 0),
		End:          max(raw.End, raw.Start, 0),
		Text:         strings.TrimSpace(raw.Text),
		Translations: make(transcribe.Translations, 0, len(chains)),
	}

	if segment.Text != "" && len(chains) > 0 {
		r.progress(50, StepStreaming, fmt.Sprintf("translating segment %d", idx+1))
	}

	// In flight translations are never interrupted.
	ctx = context.WithoutCancel(ctx)

	for _, chain := range chains {
		if r.cancelled.Load() {
			return segment, false
		}

		tr := transcribe.Translation{
			ChainID: chain.ID,
		}

		if segment.Text != "" {
			text, err := chain.Translate(ctx, segment.Text)
			if err != nil {
				slog.Warn("translation failed",
					slog.String("runID", r.ID),
					slog.String("chainID", chain.ID),
					slog.Int("segment", idx),
					slog.String("err", err.Error()))
				text = r.p.cfg.Text.TranslationFailedMessage
			}
			tr.Text = text
		}

		segment.Translations = append(segment.Translations, tr)
	}

	return segment, true
}

func (r *Run) finalize(writer *Writer, cancelled bool) error {
	r.setState(StateFinalizing)
	r.progress(95, StepSaving, "saving results")

	segments := r.Segments()
	path := writer.Write(segments, false)
	vttPath := writer.WriteWebVTT(segments)

	r.mut.Lock()
	r.path = path
	r.mut.Unlock()

	state := StateCompleted
	if cancelled {
		state = StateCancelled
	}

	slog.Info("run finished",
		slog.String("runID", r.ID),
		slog.String("state", state.String()),
		slog.Int("segments", len(segments)),
		slog.String("path", path))

	r.progress(100, StepDone, "done")
	r.setState(state)
	r.emit(Finished{
		State:      state,
		Segments:   segments,
		Path:       path,
		WebVTTPath: vttPath,
	})

	return nil
}
