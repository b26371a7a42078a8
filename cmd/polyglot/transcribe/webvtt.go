package transcribe

import (
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"strconv"
)

type WebVTTOptions struct {
	Enabled          bool
	OmitTranslations bool
}

func (o *WebVTTOptions) IsValid() error {
	if !o.Enabled && o.OmitTranslations {
		return fmt.Errorf("OmitTranslations requires WebVTT output to be enabled")
	}
	return nil
}

func (o *WebVTTOptions) IsEmpty() bool {
	return o == nil || *o == WebVTTOptions{}
}

func (o *WebVTTOptions) FromEnv() {
	o.Enabled, _ = strconv.ParseBool(os.Getenv("WEBVTT_ENABLED"))
	o.OmitTranslations, _ = strconv.ParseBool(os.Getenv("WEBVTT_OMIT_TRANSLATIONS"))
}

func (o *WebVTTOptions) ToEnv() []string {
	return []string{
		fmt.Sprintf("WEBVTT_ENABLED=%t", o.Enabled),
		fmt.Sprintf("WEBVTT_OMIT_TRANSLATIONS=%t", o.OmitTranslations),
	}
}

func (o *WebVTTOptions) FromMap(m map[string]any) {
	o.Enabled, _ = m["webvtt_enabled"].(bool)
	o.OmitTranslations, _ = m["webvtt_omit_translations"].(bool)
}

func (o *WebVTTOptions) ToMap() map[string]any {
	return map[string]any{
		"webvtt_enabled":           o.Enabled,
		"webvtt_omit_translations": o.OmitTranslations,
	}
}

// vttTS converts ts seconds in the 00:00:00.000 format.
func vttTS(ts float64) string {
	if ts < 0 {
		ts = 0
	}

	ms := int64(math.Round(ts * 1000))
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

func (t Transcription) WebVTT(w io.Writer, opts WebVTTOptions) error {
	_, err := fmt.Fprintf(w, "WEBVTT\n")
	if err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	for _, s := range t {
		s.sanitize(singleLine, html.EscapeString)

		_, err = fmt.Fprintf(w, "\n%s --> %s\n%s\n", vttTS(s.Start), vttTS(s.End), s.Text)
		if err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}

		if opts.OmitTranslations {
			continue
		}

		for _, tr := range s.Translations {
			_, err = fmt.Fprintf(w, "<v %[1]s>(%[1]s) %[2]s\n", tr.ChainID, tr.Text)
			if err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
		}
	}

	return nil
}
