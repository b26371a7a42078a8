package transcribe

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatTS(t *testing.T) {
	require.Equal(t, "00:00", formatTS(0))

	require.Equal(t, "00:00", formatTS(0.999))

	require.Equal(t, "00:01", formatTS(1.2))

	require.Equal(t, "01:10", formatTS(70.9))

	require.Equal(t, "59:59", formatTS(3599.99))

	require.Equal(t, "01:00:00", formatTS(3600))

	require.Equal(t, "01:45:45", formatTS(6345.045))

	require.Equal(t, "00:00", formatTS(-1))
}

func TestVTTTS(t *testing.T) {
	require.Equal(t, "00:00:00.000", vttTS(0))

	require.Equal(t, "00:01:10.000", vttTS(70))

	require.Equal(t, "00:00:00.999", vttTS(0.999))

	require.Equal(t, "00:00:01.100", vttTS(1.1))

	require.Equal(t, "01:45:45.045", vttTS(6345.045))
}

func TestTranslations(t *testing.T) {
	trs := Translations{
		{ChainID: "he-en", Text: "hello"},
		{ChainID: "he-en-ru", Text: "привет"},
	}

	text, ok := trs.Get("he-en-ru")
	require.True(t, ok)
	require.Equal(t, "привет", text)

	_, ok = trs.Get("he-ru")
	require.False(t, ok)

	require.Equal(t, map[string]string{
		"he-en":    "hello",
		"he-en-ru": "привет",
	}, trs.Map())
}

func TestText(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		var tr Transcription
		require.NoError(t, tr.Text(&buf, TextOptions{}))
		require.Equal(t, "Речь в аудио не распознана\n", buf.String())
	})

	t.Run("custom no speech message", func(t *testing.T) {
		var buf bytes.Buffer
		var tr Transcription
		require.NoError(t, tr.Text(&buf, TextOptions{NoSpeechMessage: "No speech detected"}))
		require.Equal(t, "No speech detected\n", buf.String())
	})

	t.Run("segments", func(t *testing.T) {
		tr := Transcription{
			{
				Start: 0,
				End:   1.2,
				Text:  " שלום ",
				Translations: Translations{
					{ChainID: "he-en", Text: "Hello"},
					{ChainID: "he-en-ru", Text: "Привет"},
				},
			},
			{
				Start: 1.2,
				End:   3725.5,
				Text:  "מה קורה",
			},
		}

		var buf bytes.Buffer
		require.NoError(t, tr.Text(&buf, TextOptions{}))

		rule := strings.Repeat("-", 40)
		expected := "[00:00 - 00:01]\nשלום\n(he-en) Hello\n(he-en-ru) Привет\n" + rule + "\n" +
			"[00:01 - 01:02:05]\nמה קורה\n" + rule + "\n"
		require.Equal(t, expected, buf.String())

		// Serializing the same list twice must yield the same bytes.
		var buf2 bytes.Buffer
		require.NoError(t, tr.Text(&buf2, TextOptions{}))
		require.Equal(t, buf.Bytes(), buf2.Bytes())

		// Input must not be mutated.
		require.Equal(t, " שלום ", tr[0].Text)
	})

	t.Run("empty text", func(t *testing.T) {
		tr := Transcription{{Start: 1, End: 2}}
		var buf bytes.Buffer
		require.NoError(t, tr.Text(&buf, TextOptions{}))
		require.Equal(t, "[00:01 - 00:02]\n\n"+strings.Repeat("-", 40)+"\n", buf.String())
	})

	t.Run("line breaks", func(t *testing.T) {
		tr := Transcription{
			{
				Start: 1,
				End:   2,
				Text:  "a\nb\r\nc",
				Translations: Translations{
					{ChainID: "he-en", Text: "x\ny"},
					{ChainID: "he-en-ru", Text: "z\rw"},
				},
			},
		}
		var buf bytes.Buffer
		require.NoError(t, tr.Text(&buf, TextOptions{}))
		require.Equal(t, "[00:01 - 00:02]\na b c\n(he-en) x y\n(he-en-ru) z w\n"+strings.Repeat("-", 40)+"\n", buf.String())

		// Input must not be mutated.
		require.Equal(t, "x\ny", tr[0].Translations[0].Text)
	})
}

func TestWebVTT(t *testing.T) {
	tr := Transcription{
		{
			Start: 0,
			End:   1.25,
			Text:  "a < b",
			Translations: Translations{
				{ChainID: "en-ru", Text: "а < б"},
			},
		},
	}

	t.Run("with translations", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, tr.WebVTT(&buf, WebVTTOptions{Enabled: true}))
		require.Equal(t, "WEBVTT\n\n00:00:00.000 --> 00:00:01.250\na &lt; b\n<v en-ru>(en-ru) а &lt; б\n", buf.String())
	})

	t.Run("omit translations", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, tr.WebVTT(&buf, WebVTTOptions{Enabled: true, OmitTranslations: true}))
		require.Equal(t, "WEBVTT\n\n00:00:00.000 --> 00:00:01.250\na &lt; b\n", buf.String())
	})
}

func TestTextOptions(t *testing.T) {
	var opts TextOptions
	require.True(t, opts.IsEmpty())
	require.EqualError(t, opts.IsValid(), "NoSpeechMessage should not be empty")

	opts.SetDefaults()
	require.NoError(t, opts.IsValid())
	require.Equal(t, NoSpeechMessageDefault, opts.NoSpeechMessage)
	require.Equal(t, TranslationFailedMessageDefault, opts.TranslationFailedMessage)

	opts.NoSpeechMessage = "two\nlines"
	require.EqualError(t, opts.IsValid(), "NoSpeechMessage should be a single line")

	src := TextOptions{NoSpeechMessage: "a", TranslationFailedMessage: "b"}
	var o TextOptions
	o.FromMap(src.ToMap())
	require.Equal(t, src, o)
}

func TestSliceSegments(t *testing.T) {
	segs := NewSliceSegments([]Segment{{Text: "a"}, {Text: "b"}})

	s, ok, err := segs.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", s.Text)

	require.NoError(t, segs.Close())

	_, ok, err = segs.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
