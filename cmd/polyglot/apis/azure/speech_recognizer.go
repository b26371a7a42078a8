package azure

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
)

const (
	// At-start language identification supports up to four candidates.
	maxCandidateLanguages = 4
	segmentsChSize        = 64
	startTimeout          = 30 * time.Second
)

type SpeechRecognizerConfig struct {
	SpeechKey    string
	SpeechRegion string
	// Fixed recognition locale (e.g. "he-IL"). When empty the locale is
	// detected among Languages.
	Language  string
	Languages []string
}

func (c SpeechRecognizerConfig) IsValid() error {
	if c.SpeechKey == "" {
		return fmt.Errorf("invalid SpeechKey: should not be empty")
	}

	if c.SpeechRegion == "" {
		return fmt.Errorf("invalid SpeechRegion: should not be empty")
	}

	if c.Language == "" {
		if len(c.Languages) == 0 {
			return fmt.Errorf("invalid Languages: should not be empty when Language is not set")
		}
		if len(c.Languages) > maxCandidateLanguages {
			return fmt.Errorf("invalid Languages: should contain at most %d entries", maxCandidateLanguages)
		}
	}

	return nil
}

// SpeechRecognizer implements transcribe.Transcriber using Azure continuous
// recognition over a WAV file.
type SpeechRecognizer struct {
	cfg SpeechRecognizerConfig
}

func NewSpeechRecognizer(cfg SpeechRecognizerConfig) (*SpeechRecognizer, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return &SpeechRecognizer{
		cfg: cfg,
	}, nil
}

// langCode turns a locale such as "he-IL" into its language code.
func langCode(locale string) string {
	code, _, _ := strings.Cut(locale, "-")
	return strings.ToLower(code)
}

type recognized struct {
	segment transcribe.Segment
	lang    string
}

type segments struct {
	recognizer  *speech.SpeechRecognizer
	speechCfg   *speech.SpeechConfig
	audioConfig *audio.AudioConfig
	langConfig  *speech.AutoDetectSourceLanguageConfig

	segmentsCh chan recognized
	closeCh    chan struct{}
	closeOnce  sync.Once
	doneOnce   sync.Once

	errMut sync.Mutex
	err    error

	peeked *transcribe.Segment
}

func (s *segments) setErr(err error) {
	s.errMut.Lock()
	defer s.errMut.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *segments) getErr() error {
	s.errMut.Lock()
	defer s.errMut.Unlock()
	return s.err
}

func (s *segments) done() {
	s.doneOnce.Do(func() {
		close(s.segmentsCh)
	})
}

func (s *segments) Next() (transcribe.Segment, bool, error) {
	if s.peeked != nil {
		seg := *s.peeked
		s.peeked = nil
		return seg, true, nil
	}

	select {
	case r, ok := <-s.segmentsCh:
		if !ok {
			return transcribe.Segment{}, false, s.getErr()
		}
		return r.segment, true, nil
	case <-s.closeCh:
		return transcribe.Segment{}, false, nil
	}
}

func (s *segments) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)

		if err := <-s.recognizer.StopContinuousRecognitionAsync(); err != nil {
			slog.Error("failed to stop recognizer", slog.String("err", err.Error()))
		}
		s.recognizer.Close()
		s.audioConfig.Close()
		if s.langConfig != nil {
			s.langConfig.Close()
		}
		s.speechCfg.Close()
	})
	return nil
}

func (s *SpeechRecognizer) newRecognizer(audioPath string) (*segments, error) {
	speechCfg, err := speech.NewSpeechConfigFromSubscription(s.cfg.SpeechKey, s.cfg.SpeechRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech config: %w", err)
	}

	audioConfig, err := audio.NewAudioConfigFromWavFileInput(audioPath)
	if err != nil {
		speechCfg.Close()
		return nil, fmt.Errorf("failed to create audio config: %w", err)
	}

	var langConfig *speech.AutoDetectSourceLanguageConfig
	var recognizer *speech.SpeechRecognizer
	if s.cfg.Language != "" {
		slog.Debug("language is set, setting speech recognition language", slog.String("language", s.cfg.Language))
		if err := speechCfg.SetSpeechRecognitionLanguage(s.cfg.Language); err != nil {
			audioConfig.Close()
			speechCfg.Close()
			return nil, fmt.Errorf("failed to set speech recognition language: %w", err)
		}
		recognizer, err = speech.NewSpeechRecognizerFromConfig(speechCfg, audioConfig)
	} else {
		langConfig, err = speech.NewAutoDetectSourceLanguageConfigFromLanguages(s.cfg.Languages)
		if err != nil {
			audioConfig.Close()
			speechCfg.Close()
			return nil, fmt.Errorf("failed to create auto detect source language config: %w", err)
		}
		recognizer, err = speech.NewSpeechRecognizerFomAutoDetectSourceLangConfig(speechCfg, langConfig, audioConfig)
	}
	if err != nil {
		if langConfig != nil {
			langConfig.Close()
		}
		audioConfig.Close()
		speechCfg.Close()
		return nil, fmt.Errorf("failed to create speech recognizer: %w", err)
	}

	return &segments{
		recognizer:  recognizer,
		speechCfg:   speechCfg,
		audioConfig: audioConfig,
		langConfig:  langConfig,
		segmentsCh:  make(chan recognized, segmentsChSize),
		closeCh:     make(chan struct{}),
	}, nil
}

// Transcribe starts continuous recognition over the WAV file at audioPath.
// It blocks until the first phrase is recognized (or the file ends) so that
// the detected language can be reported.
func (s *SpeechRecognizer) Transcribe(audioPath string) (transcribe.Segments, transcribe.Info, error) {
	var info transcribe.Info

	if _, err := os.Stat(audioPath); err != nil {
		return nil, info, fmt.Errorf("failed to stat audio file: %w", err)
	}

	seq, err := s.newRecognizer(audioPath)
	if err != nil {
		return nil, info, err
	}

	seq.recognizer.SessionStarted(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("recognizer: session started", slog.String("sessionID", event.SessionID))
	})
	seq.recognizer.SessionStopped(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("recognizer: session stopped", slog.String("sessionID", event.SessionID))
		seq.done()
	})
	seq.recognizer.Canceled(func(event speech.SpeechRecognitionCanceledEventArgs) {
		defer event.Close()
		if event.Reason == common.Error {
			slog.Error("recognizer: canceled", slog.String("details", event.ErrorDetails))
			seq.setErr(fmt.Errorf("recognition canceled: %s", event.ErrorDetails))
		} else {
			slog.Debug("recognizer: end of stream")
		}
		seq.done()
	})
	seq.recognizer.Recognized(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()

		if event.Result.Reason != common.RecognizedSpeech {
			return
		}

		r := recognized{
			segment: transcribe.Segment{
				Text:  event.Result.Text,
				Start: event.Result.Offset.Seconds(),
				End:   (event.Result.Offset + event.Result.Duration).Seconds(),
			},
			lang: langCode(s.cfg.Language),
		}
		if s.cfg.Language == "" {
			r.lang = langCode(event.Result.Properties.GetProperty(common.SpeechServiceConnectionAutoDetectSourceLanguageResult, ""))
		}

		select {
		case seq.segmentsCh <- r:
		case <-seq.closeCh:
		}
	})

	select {
	case err = <-seq.recognizer.StartContinuousRecognitionAsync():
	case <-time.After(startTimeout):
		err = fmt.Errorf("timed out")
	}
	if err != nil {
		seq.Close()
		return nil, info, fmt.Errorf("failed to start recognizer: %w", err)
	}

	info.Language = langCode(s.cfg.Language)

	r, ok := <-seq.segmentsCh
	if !ok {
		if err := seq.getErr(); err != nil {
			seq.Close()
			return nil, info, err
		}
		return seq, info, nil
	}

	seq.peeked = &r.segment
	if info.Language == "" {
		info.Language = r.lang
	}

	return seq, info, nil
}

func (s *SpeechRecognizer) Destroy() error {
	return nil
}
