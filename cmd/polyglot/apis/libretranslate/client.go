package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/polyglot/cmd/polyglot/translate"
)

const (
	httpRequestTimeout = 30 * time.Second
)

type Config struct {
	// Base URL of the LibreTranslate compatible server.
	URL string
	// Optional API key.
	APIKey string
	// Per request timeout (defaults to 30s).
	Timeout time.Duration
}

func (c Config) IsValid() error {
	if c == (Config{}) {
		return fmt.Errorf("invalid empty config")
	}

	if c.URL == "" {
		return fmt.Errorf("invalid URL: should not be empty")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL: invalid scheme %q", u.Scheme)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("invalid Timeout: should not be negative")
	}

	return nil
}

type language struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Client talks to a LibreTranslate server. It implements translate.Loader:
// every supported language pair becomes a single hop engine.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mut   sync.Mutex
	pairs map[translate.Pair]bool
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = httpRequestTimeout
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}, nil
}

func (c *Client) supportedPairs(ctx context.Context) (map[translate.Pair]bool, error) {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.pairs != nil {
		return c.pairs, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/languages", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed: unexpected status code %d", resp.StatusCode)
	}

	var langs []language
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	pairs := make(map[translate.Pair]bool)
	for _, l := range langs {
		for _, target := range l.Targets {
			if target == l.Code {
				continue
			}
			pairs[translate.Pair{From: l.Code, To: target}] = true
		}
	}

	slog.Debug("libretranslate: fetched supported languages", slog.Int("languages", len(langs)), slog.Int("pairs", len(pairs)))

	c.pairs = pairs

	return pairs, nil
}

// Load returns an engine for pair if the server supports it.
func (c *Client) Load(pair translate.Pair) (translate.Engine, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	pairs, err := c.supportedPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch supported languages: %w: %w", translate.ErrUnavailable, err)
	}

	if !pairs[pair] {
		return nil, fmt.Errorf("pair %s is not supported: %w", pair, translate.ErrUnavailable)
	}

	return &Engine{
		client: c,
		pair:   pair,
	}, nil
}

func (c *Client) translate(ctx context.Context, pair translate.Pair, text string) (string, error) {
	payload, err := json.Marshal(translateRequest{
		Q:      text,
		Source: pair.From,
		Target: pair.To,
		Format: "text",
		APIKey: c.cfg.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var res translateResponse
	if resp.StatusCode != http.StatusOK {
		// Error pages from proxies are not always JSON.
		if err := json.NewDecoder(resp.Body).Decode(&res); err == nil && res.Error != "" {
			return "", fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, res.Error)
		}
		return "", fmt.Errorf("request failed: unexpected status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return res.TranslatedText, nil
}

// Engine translates a single language pair.
type Engine struct {
	client *Client
	pair   translate.Pair
}

func (e *Engine) Translate(ctx context.Context, text string) (string, error) {
	return e.client.translate(ctx, e.pair, text)
}
