package libretranslate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mattermost/polyglot/cmd/polyglot/translate"

	"github.com/stretchr/testify/require"
)

type middleware func(w http.ResponseWriter, r *http.Request) bool

func TestConfigIsValid(t *testing.T) {
	tcs := []struct {
		name string
		cfg  Config
		err  string
	}{
		{
			name: "empty config",
			err:  "invalid empty config",
		},
		{
			name: "missing URL",
			cfg: Config{
				APIKey: "key",
			},
			err: "invalid URL: should not be empty",
		},
		{
			name: "invalid scheme",
			cfg: Config{
				URL: "ftp://localhost:5000",
			},
			err: "invalid URL: invalid scheme \"ftp\"",
		},
		{
			name: "negative timeout",
			cfg: Config{
				URL:     "http://localhost:5000",
				Timeout: -1,
			},
			err: "invalid Timeout: should not be negative",
		},
		{
			name: "valid",
			cfg: Config{
				URL: "http://localhost:5000",
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

func TestClient(t *testing.T) {
	middlewares := []middleware{}
	var languagesCalls int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, mw := range middlewares {
			if mw(w, r) {
				return
			}
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	languages := func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != "/languages" {
			return false
		}
		languagesCalls++
		fmt.Fprintln(w, `[
			{"code": "he", "name": "Hebrew", "targets": ["en", "he"]},
			{"code": "en", "name": "English", "targets": ["ru", "he"]}
		]`)
		return true
	}

	translateOK := func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != "/translate" || r.Method != http.MethodPost {
			return false
		}

		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, `{"error": %q}`, err.Error())
			return true
		}

		if req.APIKey != "secret" || req.Format != "text" {
			w.WriteHeader(403)
			fmt.Fprintln(w, `{"error": "invalid api key"}`)
			return true
		}

		fmt.Fprintf(w, `{"translatedText": %q}`, fmt.Sprintf("[%s->%s] %s", req.Source, req.Target, req.Q))
		return true
	}

	c, err := NewClient(Config{
		URL:    ts.URL + "/",
		APIKey: "secret",
	})
	require.NoError(t, err)

	t.Run("unsupported pair", func(t *testing.T) {
		middlewares = []middleware{languages}
		e, err := c.Load(translate.Pair{From: "he", To: "ru"})
		require.ErrorIs(t, err, translate.ErrUnavailable)
		require.Nil(t, e)
	})

	t.Run("self pair is skipped", func(t *testing.T) {
		middlewares = []middleware{languages}
		_, err := c.Load(translate.Pair{From: "he", To: "he"})
		require.ErrorIs(t, err, translate.ErrUnavailable)
	})

	t.Run("translate", func(t *testing.T) {
		middlewares = []middleware{languages, translateOK}
		e, err := c.Load(translate.Pair{From: "he", To: "en"})
		require.NoError(t, err)
		require.NotNil(t, e)

		out, err := e.Translate(context.Background(), "shalom")
		require.NoError(t, err)
		require.Equal(t, "[he->en] shalom", out)

		// supported languages are fetched once.
		require.Equal(t, 1, languagesCalls)
	})

	t.Run("server error", func(t *testing.T) {
		middlewares = []middleware{
			languages,
			func(w http.ResponseWriter, r *http.Request) bool {
				w.WriteHeader(500)
				fmt.Fprintln(w, `{"error": "model crashed"}`)
				return true
			},
		}
		e, err := c.Load(translate.Pair{From: "en", To: "ru"})
		require.NoError(t, err)

		out, err := e.Translate(context.Background(), "hello")
		require.EqualError(t, err, "request failed with status code 500: model crashed")
		require.Empty(t, out)
	})

	t.Run("non JSON error page", func(t *testing.T) {
		middlewares = []middleware{
			languages,
			func(w http.ResponseWriter, r *http.Request) bool {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(502)
				fmt.Fprintln(w, `<html><body><h1>502 Bad Gateway</h1></body></html>`)
				return true
			},
		}
		e, err := c.Load(translate.Pair{From: "en", To: "ru"})
		require.NoError(t, err)

		out, err := e.Translate(context.Background(), "hello")
		require.EqualError(t, err, "request failed: unexpected status code 502")
		require.Empty(t, out)
	})

	t.Run("invalid response body", func(t *testing.T) {
		middlewares = []middleware{
			languages,
			func(w http.ResponseWriter, r *http.Request) bool {
				fmt.Fprintln(w, `not json`)
				return true
			},
		}
		e, err := c.Load(translate.Pair{From: "en", To: "ru"})
		require.NoError(t, err)

		_, err = e.Translate(context.Background(), "hello")
		require.ErrorContains(t, err, "failed to decode response body")
	})
}

func TestClientLanguagesFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer ts.Close()

	c, err := NewClient(Config{URL: ts.URL})
	require.NoError(t, err)

	e, err := c.Load(translate.Pair{From: "he", To: "en"})
	require.ErrorIs(t, err, translate.ErrUnavailable)
	require.Nil(t, e)
}
