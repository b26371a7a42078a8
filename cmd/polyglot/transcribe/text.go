package transcribe

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	NoSpeechMessageDefault          = "Речь в аудио не распознана"
	TranslationFailedMessageDefault = "Ошибка перевода"

	ruleLineWidth = 40
)

var ruleLine = strings.Repeat("-", ruleLineWidth)

type TextOptions struct {
	// Written as the only line of an artifact with no segments.
	NoSpeechMessage string
	// Recorded in place of a translation when a hop fails.
	TranslationFailedMessage string
}

func (o *TextOptions) SetDefaults() {
	if o.NoSpeechMessage == "" {
		o.NoSpeechMessage = NoSpeechMessageDefault
	}
	if o.TranslationFailedMessage == "" {
		o.TranslationFailedMessage = TranslationFailedMessageDefault
	}
}

func (o *TextOptions) IsValid() error {
	if strings.TrimSpace(o.NoSpeechMessage) == "" {
		return fmt.Errorf("NoSpeechMessage should not be empty")
	}

	if strings.ContainsAny(o.NoSpeechMessage, "\r\n") {
		return fmt.Errorf("NoSpeechMessage should be a single line")
	}

	if strings.TrimSpace(o.TranslationFailedMessage) == "" {
		return fmt.Errorf("TranslationFailedMessage should not be empty")
	}

	return nil
}

func (o *TextOptions) IsEmpty() bool {
	return o == nil || *o == TextOptions{}
}

func (o *TextOptions) ToEnv() []string {
	return []string{
		fmt.Sprintf("TEXT_NO_SPEECH_MESSAGE=%s", o.NoSpeechMessage),
		fmt.Sprintf("TEXT_TRANSLATION_FAILED_MESSAGE=%s", o.TranslationFailedMessage),
	}
}

func (o *TextOptions) FromEnv() {
	o.NoSpeechMessage = os.Getenv("TEXT_NO_SPEECH_MESSAGE")
	o.TranslationFailedMessage = os.Getenv("TEXT_TRANSLATION_FAILED_MESSAGE")
}

func (o *TextOptions) ToMap() map[string]any {
	return map[string]any{
		"text_no_speech_message":          o.NoSpeechMessage,
		"text_translation_failed_message": o.TranslationFailedMessage,
	}
}

func (o *TextOptions) FromMap(m map[string]any) {
	o.NoSpeechMessage, _ = m["text_no_speech_message"].(string)
	o.TranslationFailedMessage, _ = m["text_translation_failed_message"].(string)
}

// Text serializes the transcription in the plain text artifact format:
//
//	[00:00 - 00:01]
//	recognized text
//	(he-en) translated text
//	----------------------------------------
func (t Transcription) Text(w io.Writer, opts TextOptions) error {
	if len(t) == 0 {
		msg := opts.NoSpeechMessage
		if msg == "" {
			msg = NoSpeechMessageDefault
		}
		if _, err := fmt.Fprintf(w, "%s\n", msg); err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
		return nil
	}

	for _, s := range t {
		s.sanitize(singleLine)

		_, err := fmt.Fprintf(w, "[%s - %s]\n%s\n", formatTS(s.Start), formatTS(s.End), s.Text)
		if err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}

		for _, tr := range s.Translations {
			_, err := fmt.Fprintf(w, "(%s) %s\n", tr.ChainID, tr.Text)
			if err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
		}

		if _, err := fmt.Fprintf(w, "%s\n", ruleLine); err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
	}

	return nil
}
