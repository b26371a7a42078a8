package whisper

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"
	"github.com/mattermost/polyglot/cmd/polyglot/wav"

	"github.com/streamer45/silero-vad-go/speech"
)

const (
	samplesPerMs = wav.SampleRate / 1000
	// whisper refuses inputs shorter than a second.
	minRegionSamples = wav.SampleRate + wav.SampleRate/10

	// VAD settings
	vadWindowSizeInSamples  = 512
	vadThreshold            = 0.5
	vadMinSilenceDurationMs = 500
	vadMinSpeechDurationMs  = 250
	vadSilencePadMs         = 100
)

type FileTranscriberConfig struct {
	Context Config
	// The path to the silero VAD model. If empty, the whole file is
	// transcribed as a single speech region.
	VADModelFile string
}

func (c FileTranscriberConfig) IsValid() error {
	if err := c.Context.IsValid(); err != nil {
		return err
	}

	if c.VADModelFile != "" {
		if _, err := os.Stat(c.VADModelFile); err != nil {
			return fmt.Errorf("invalid VADModelFile: failed to stat model file: %w", err)
		}
	}

	return nil
}

// FileTranscriber implements transcribe.Transcriber on top of a whisper
// context. Audio is split in speech regions which are transcribed lazily,
// one region at a time, as segments are consumed.
type FileTranscriber struct {
	cfg FileTranscriberConfig

	mut sync.Mutex
	ctx *Context
}

func NewFileTranscriber(cfg FileTranscriberConfig) (*FileTranscriber, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	ctx, err := NewContext(cfg.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	return &FileTranscriber{
		cfg: cfg,
		ctx: ctx,
	}, nil
}

type region struct {
	start int
	end   int
}

func (t *FileTranscriber) speechRegions(samples []float32) ([]region, error) {
	if t.cfg.VADModelFile == "" {
		return []region{{start: 0, end: len(samples)}}, nil
	}

	sd, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            t.cfg.VADModelFile,
		SampleRate:           wav.SampleRate,
		WindowSize:           vadWindowSizeInSamples,
		Threshold:            vadThreshold,
		MinSilenceDurationMs: vadMinSilenceDurationMs,
		MinSpeechDurationMs:  vadMinSpeechDurationMs,
		SilencePadMs:         vadSilencePadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech detector: %w", err)
	}
	defer func() {
		if err := sd.Destroy(); err != nil {
			slog.Error("failed to destroy speech detector", slog.String("err", err.Error()))
		}
	}()

	vadSegments, err := sd.Detect(samples)
	if err != nil {
		return nil, fmt.Errorf("failed to detect speech: %w", err)
	}

	regions := make([]region, 0, len(vadSegments))
	for _, s := range vadSegments {
		r := region{
			start: int(s.SpeechStartAt * 1000 * samplesPerMs),
			end:   int(s.SpeechEndAt * 1000 * samplesPerMs),
		}
		// An unterminated speech segment runs until the end of the audio.
		if r.end == 0 || r.end > len(samples) {
			r.end = len(samples)
		}
		if r.start >= r.end {
			continue
		}
		regions = append(regions, r)
	}

	slog.Debug("speech regions detected", slog.Int("regions", len(regions)))

	return regions, nil
}

func (t *FileTranscriber) transcribeRegion(samples []float32, r region) ([]transcribe.Segment, string, error) {
	pcm := samples[r.start:r.end]
	if len(pcm) < minRegionSamples {
		padded := make([]float32, minRegionSamples)
		copy(padded, pcm)
		pcm = padded
	}

	t.mut.Lock()
	defer t.mut.Unlock()

	if t.ctx == nil {
		return nil, "", fmt.Errorf("transcriber is destroyed")
	}

	segments, lang, err := t.ctx.Transcribe(pcm)
	if err != nil {
		return nil, "", err
	}

	offset := float64(r.start) / wav.SampleRate
	regionEnd := float64(r.end) / wav.SampleRate
	for i := range segments {
		segments[i].Start = min(segments[i].Start+offset, regionEnd)
		segments[i].End = min(segments[i].End+offset, regionEnd)
	}

	return segments, lang, nil
}

// Transcribe reads a 16KHz WAV file, detects speech regions and transcribes
// the first one to learn the spoken language. Remaining regions are
// transcribed on demand by the returned sequence.
func (t *FileTranscriber) Transcribe(audioPath string) (transcribe.Segments, transcribe.Info, error) {
	var info transcribe.Info

	samples, err := wav.ReadFile(audioPath)
	if err != nil {
		return nil, info, fmt.Errorf("failed to read audio file: %w", err)
	}

	regions, err := t.speechRegions(samples)
	if err != nil {
		return nil, info, err
	}

	seq := &segments{
		t:       t,
		samples: samples,
		regions: regions,
	}

	if err := seq.fill(); err != nil {
		return nil, info, fmt.Errorf("failed to transcribe: %w", err)
	}

	info.Language = seq.lang
	if lang := t.cfg.Context.Language; lang != "" && lang != "auto" {
		info.Language = lang
	}

	return seq, info, nil
}

func (t *FileTranscriber) Destroy() error {
	t.mut.Lock()
	defer t.mut.Unlock()

	if t.ctx == nil {
		return fmt.Errorf("transcriber is not initialized")
	}

	err := t.ctx.Destroy()
	t.ctx = nil
	return err
}

type segments struct {
	t       *FileTranscriber
	samples []float32
	regions []region
	next    int
	buf     []transcribe.Segment
	lang    string
}

// fill transcribes regions until at least one segment is buffered or no
// region is left.
func (s *segments) fill() error {
	for len(s.buf) == 0 && s.next < len(s.regions) {
		r := s.regions[s.next]
		s.next++

		segs, lang, err := s.t.transcribeRegion(s.samples, r)
		if err != nil {
			return err
		}
		if s.lang == "" {
			s.lang = lang
		}
		s.buf = append(s.buf, segs...)
	}
	return nil
}

func (s *segments) Next() (transcribe.Segment, bool, error) {
	if err := s.fill(); err != nil {
		return transcribe.Segment{}, false, fmt.Errorf("failed to transcribe: %w", err)
	}

	if len(s.buf) == 0 {
		return transcribe.Segment{}, false, nil
	}

	seg := s.buf[0]
	s.buf = s.buf[1:]
	return seg, true, nil
}

func (s *segments) Close() error {
	s.next = len(s.regions)
	s.buf = nil
	s.samples = nil
	return nil
}
