package azure

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpeechRecognizerConfigIsValid(t *testing.T) {
	tcs := []struct {
		name string
		cfg  SpeechRecognizerConfig
		err  string
	}{
		{
			name: "empty config",
			err:  "invalid SpeechKey: should not be empty",
		},
		{
			name: "missing region",
			cfg: SpeechRecognizerConfig{
				SpeechKey: "key",
			},
			err: "invalid SpeechRegion: should not be empty",
		},
		{
			name: "missing languages",
			cfg: SpeechRecognizerConfig{
				SpeechKey:    "key",
				SpeechRegion: "eastus",
			},
			err: "invalid Languages: should not be empty when Language is not set",
		},
		{
			name: "too many languages",
			cfg: SpeechRecognizerConfig{
				SpeechKey:    "key",
				SpeechRegion: "eastus",
				Languages:    []string{"en-US", "he-IL", "ru-RU", "ar-SA", "de-DE"},
			},
			err: "invalid Languages: should contain at most 4 entries",
		},
		{
			name: "fixed language",
			cfg: SpeechRecognizerConfig{
				SpeechKey:    "key",
				SpeechRegion: "eastus",
				Language:     "he-IL",
			},
		},
		{
			name: "candidate languages",
			cfg: SpeechRecognizerConfig{
				SpeechKey:    "key",
				SpeechRegion: "eastus",
				Languages:    []string{"en-US", "he-IL"},
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.IsValid()
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLangCode(t *testing.T) {
	require.Equal(t, "he", langCode("he-IL"))
	require.Equal(t, "en", langCode("EN-us"))
	require.Equal(t, "ru", langCode("ru"))
	require.Equal(t, "", langCode(""))
}

func TestSpeechRecognizerMissingFile(t *testing.T) {
	r, err := NewSpeechRecognizer(SpeechRecognizerConfig{
		SpeechKey:    "key",
		SpeechRegion: "eastus",
		Language:     "en-US",
	})
	require.NoError(t, err)

	segs, _, err := r.Transcribe("/tmp/missing.wav")
	require.Error(t, err)
	require.Nil(t, segs)
	require.NoError(t, r.Destroy())
}
