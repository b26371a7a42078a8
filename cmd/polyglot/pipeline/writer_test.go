package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"

	"github.com/stretchr/testify/require"
)

func newWriterConfig(dir string) WriterConfig {
	cfg := WriterConfig{
		OutputDir: dir,
	}
	cfg.Text.SetDefaults()
	return cfg
}

func TestArtifactName(t *testing.T) {
	tcs := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple",
			input:    "/tmp/audio.wav",
			expected: "audio_wav",
		},
		{
			name:     "multiple dots",
			input:    "/tmp/talk.final.v2.mp3",
			expected: "talk_final_v2_mp3",
		},
		{
			name:     "spaces and special chars",
			input:    "/tmp/some talk?*.wav",
			expected: "some_talk___wav",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, artifactName(tc.input))
		})
	}
}

func TestWriterConfigIsValid(t *testing.T) {
	var cfg WriterConfig
	require.EqualError(t, cfg.IsValid(), "invalid OutputDir: should not be empty")

	cfg.OutputDir = t.TempDir()
	require.EqualError(t, cfg.IsValid(), "invalid Text options: NoSpeechMessage should not be empty")

	cfg.Text.SetDefaults()
	require.NoError(t, cfg.IsValid())

	cfg.WebVTT.OmitTranslations = true
	require.EqualError(t, cfg.IsValid(), "invalid WebVTT options: OmitTranslations requires WebVTT output to be enabled")
}

func TestWriter(t *testing.T) {
	segments := transcribe.Transcription{
		{
			Start: 0,
			End:   1.2,
			Text:  "שלום",
			Translations: transcribe.Translations{
				{ChainID: "he-en", Text: "hello"},
			},
		},
		{
			Start: 61.9,
			End:   3725.5,
			Text:  "מה קורה",
			Translations: transcribe.Translations{
				{ChainID: "he-en", Text: "what's up"},
			},
		},
	}

	expected := `[00:00 - 00:01]
שלום
(he-en) hello
----------------------------------------
[01:01 - 01:02:05]
מה קורה
(he-en) what's up
----------------------------------------
`

	t.Run("checkpoint", func(t *testing.T) {
		dir := t.TempDir()
		w, err := NewWriter(newWriterConfig(dir), "/tmp/audio.wav")
		require.NoError(t, err)

		path := w.Write(segments[:1], true)
		require.Equal(t, filepath.Join(dir, ".audio_wav.checkpoint.txt"), path)
		require.Equal(t, w.CheckpointPath(), path)

		path = w.Write(segments, true)
		require.Equal(t, w.CheckpointPath(), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, expected, string(data))

		// Checkpoints replace each other.
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("idempotent", func(t *testing.T) {
		w, err := NewWriter(newWriterConfig(t.TempDir()), "/tmp/audio.wav")
		require.NoError(t, err)

		first, err := os.ReadFile(w.Write(segments, true))
		require.NoError(t, err)
		second, err := os.ReadFile(w.Write(segments, true))
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("final", func(t *testing.T) {
		dir := t.TempDir()
		w, err := NewWriter(newWriterConfig(dir), "/tmp/audio.wav")
		require.NoError(t, err)
		w.now = func() time.Time {
			return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
		}

		path := w.Write(segments, false)
		require.Equal(t, filepath.Join(dir, "audio_wav_2024-03-05_140709.txt"), path)
		require.NotEqual(t, w.CheckpointPath(), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, expected, string(data))
	})

	t.Run("final name clash", func(t *testing.T) {
		dir := t.TempDir()
		w, err := NewWriter(newWriterConfig(dir), "/tmp/audio.wav")
		require.NoError(t, err)
		w.now = func() time.Time {
			return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
		}

		first := w.Write(segments[:1], false)
		require.Equal(t, filepath.Join(dir, "audio_wav_2024-03-05_140709.txt"), first)

		// A second writer for the same audio within the same second.
		other, err := NewWriter(newWriterConfig(dir), "/tmp/audio.wav")
		require.NoError(t, err)
		other.now = w.now

		second := other.Write(segments, false)
		require.Equal(t, filepath.Join(dir, "audio_wav_2024-03-05_140709_1.txt"), second)

		third := w.Write(segments, false)
		require.Equal(t, filepath.Join(dir, "audio_wav_2024-03-05_140709_2.txt"), third)

		data, err := os.ReadFile(first)
		require.NoError(t, err)
		require.Equal(t, "[00:00 - 00:01]\nשלום\n(he-en) hello\n----------------------------------------\n", string(data))

		data, err = os.ReadFile(second)
		require.NoError(t, err)
		require.Equal(t, expected, string(data))
	})

	t.Run("webvtt follows final", func(t *testing.T) {
		dir := t.TempDir()
		cfg := newWriterConfig(dir)
		cfg.WebVTT.Enabled = true
		w, err := NewWriter(cfg, "/tmp/audio.wav")
		require.NoError(t, err)

		// The clock moves between the two writes.
		ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
		w.now = func() time.Time {
			ts = ts.Add(time.Second)
			return ts
		}

		require.NoError(t, os.WriteFile(filepath.Join(dir, "audio_wav_2024-03-05_140710.txt"), []byte("previous run"), 0o644))

		txtPath := w.Write(segments, false)
		require.Equal(t, filepath.Join(dir, "audio_wav_2024-03-05_140710_1.txt"), txtPath)

		vttPath := w.WriteWebVTT(segments)
		require.Equal(t, filepath.Join(dir, "audio_wav_2024-03-05_140710_1.vtt"), vttPath)

		data, err := os.ReadFile(filepath.Join(dir, "audio_wav_2024-03-05_140710.txt"))
		require.NoError(t, err)
		require.Equal(t, "previous run", string(data))
	})

	t.Run("no speech", func(t *testing.T) {
		w, err := NewWriter(newWriterConfig(t.TempDir()), "/tmp/audio.wav")
		require.NoError(t, err)

		data, err := os.ReadFile(w.Write(nil, false))
		require.NoError(t, err)
		require.Equal(t, "Речь в аудио не распознана\n", string(data))
	})

	t.Run("write failure", func(t *testing.T) {
		w, err := NewWriter(newWriterConfig(filepath.Join(t.TempDir(), "missing")), "/tmp/audio.wav")
		require.NoError(t, err)

		require.Empty(t, w.Write(segments, true))
		require.Empty(t, w.Write(segments, false))
	})
	t.Run("webvtt", func(t *testing.T) {
		dir := t.TempDir()
		cfg := newWriterConfig(dir)
		w, err := NewWriter(cfg, "/tmp/audio.wav")
		require.NoError(t, err)
		require.Empty(t, w.WriteWebVTT(segments))

		cfg.WebVTT.Enabled = true
		w, err = NewWriter(cfg, "/tmp/audio.wav")
		require.NoError(t, err)

		path := w.WriteWebVTT(segments)
		require.True(t, strings.HasSuffix(path, ".vtt"))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(data), "WEBVTT\n"))
	})

	t.Run("invalid audio path", func(t *testing.T) {
		w, err := NewWriter(newWriterConfig(t.TempDir()), "")
		require.Error(t, err)
		require.Nil(t, w)
	})
}
