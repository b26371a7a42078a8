package transcribe

import (
	"fmt"
	"strings"
)

// formatTS converts seconds in the MM:SS format, or HH:MM:SS when the
// timestamp reaches one hour. Fractional seconds are truncated.
func formatTS(ts float64) string {
	if ts < 0 {
		ts = 0
	}

	secs := int64(ts)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

var lineBreakReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// singleLine keeps a text on one line of the artifact.
func singleLine(text string) string {
	return lineBreakReplacer.Replace(text)
}

// sanitize trims the segment text and applies the given escaping functions
// to the text and every translation.
func (s *Segment) sanitize(fns ...func(string) string) {
	s.Text = strings.TrimSpace(s.Text)
	translations := make(Translations, len(s.Translations))
	for i, tr := range s.Translations {
		tr.Text = strings.TrimSpace(tr.Text)
		for _, fn := range fns {
			tr.Text = fn(tr.Text)
		}
		translations[i] = tr
	}
	s.Translations = translations
	for _, fn := range fns {
		s.Text = fn(s.Text)
	}
}
