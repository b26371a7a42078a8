package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"
	"github.com/mattermost/polyglot/cmd/polyglot/translate"
)

var idRE = regexp.MustCompile(`^[a-z0-9]{26}$`)

const (
	// defaults
	DataDirDefault       = "/data"
	ModelsDirDefault     = "/models"
	ModelSizeDefault     = ModelSizeBase
	TranscribeAPIDefault = TranscribeAPIWhisperCPP
	TranslateAPIDefault  = TranslateAPILibreTranslate

	VADModelFilename = "silero_vad.onnx"

	// Azure at-start language identification accepts up to four candidates.
	maxAzureSpeechLanguages = 4
)

type ModelSize string

const (
	ModelSizeTiny   ModelSize = "tiny"
	ModelSizeBase   ModelSize = "base"
	ModelSizeSmall  ModelSize = "small"
	ModelSizeMedium ModelSize = "medium"
	ModelSizeLarge  ModelSize = "large"
)

type TranscribeAPI string

const (
	TranscribeAPIWhisperCPP TranscribeAPI = "whisper.cpp"
	TranscribeAPIAzure      TranscribeAPI = "azure"
)

type TranslateAPI string

const (
	TranslateAPILibreTranslate TranslateAPI = "libretranslate"
)

type OutputOptions struct {
	WebVTT transcribe.WebVTTOptions
	Text   transcribe.TextOptions
}

type Config struct {
	// input/output config
	DataDir   string
	ModelsDir string
	Chains    []string

	// transcription config
	TranscribeAPI        TranscribeAPI
	ModelSize            ModelSize
	NumThreads           int
	TranscribeLanguage   string
	VADDisabled          bool
	AzureSpeechKey       string
	AzureSpeechRegion    string
	AzureSpeechLanguages []string

	// translation config
	TranslateAPI    TranslateAPI
	TranslateAPIURL string
	TranslateAPIKey string

	OutputOptions OutputOptions

	// publishing config
	SiteURL   string
	AuthToken string
	ChannelID string
	CallID    string
	JobID     string
}

func (p ModelSize) IsValid() bool {
	switch p {
	case ModelSizeTiny, ModelSizeBase, ModelSizeSmall, ModelSizeMedium, ModelSizeLarge:
		return true
	default:
		return false
	}
}

func (a TranscribeAPI) IsValid() bool {
	switch a {
	case TranscribeAPIWhisperCPP, TranscribeAPIAzure:
		return true
	default:
		return false
	}
}

func (a TranslateAPI) IsValid() bool {
	switch a {
	case TranslateAPILibreTranslate:
		return true
	default:
		return false
	}
}

func (cfg Config) IsEmpty() bool {
	return reflect.ValueOf(cfg).IsZero()
}

// PublishEnabled returns true if results should be posted to a Mattermost
// channel.
func (cfg Config) PublishEnabled() bool {
	return cfg.SiteURL != ""
}

// JobStatusEnabled returns true if job status should be reported to the
// calls plugin.
func (cfg Config) JobStatusEnabled() bool {
	return cfg.CallID != ""
}

func (cfg Config) WhisperModelFile() string {
	return filepath.Join(cfg.ModelsDir, fmt.Sprintf("ggml-%s.bin", string(cfg.ModelSize)))
}

// VADModelFile returns the path of the speech detection model, or an empty
// string if speech detection is disabled.
func (cfg Config) VADModelFile() string {
	if cfg.VADDisabled {
		return ""
	}
	return filepath.Join(cfg.ModelsDir, VADModelFilename)
}

func isValidURL(u string) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return err
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q", parsed.Scheme)
	}
	return nil
}

func (cfg Config) isValidPublishing() error {
	if !cfg.PublishEnabled() {
		if cfg.AuthToken != "" || cfg.ChannelID != "" || cfg.CallID != "" || cfg.JobID != "" {
			return fmt.Errorf("SiteURL cannot be empty")
		}
		return nil
	}

	if err := isValidURL(cfg.SiteURL); err != nil {
		return fmt.Errorf("SiteURL parsing failed: %w", err)
	} else if u, _ := url.Parse(cfg.SiteURL); u.Path != "" {
		return fmt.Errorf("SiteURL parsing failed: invalid path %q", u.Path)
	}

	if cfg.AuthToken == "" {
		return fmt.Errorf("AuthToken cannot be empty")
	} else if !idRE.MatchString(cfg.AuthToken) {
		return fmt.Errorf("AuthToken parsing failed")
	}

	if cfg.ChannelID == "" {
		return fmt.Errorf("ChannelID cannot be empty")
	} else if !idRE.MatchString(cfg.ChannelID) {
		return fmt.Errorf("ChannelID parsing failed")
	}

	if cfg.CallID == "" && cfg.JobID == "" {
		return nil
	}

	if cfg.CallID == "" {
		return fmt.Errorf("CallID cannot be empty")
	} else if !idRE.MatchString(cfg.CallID) {
		return fmt.Errorf("CallID parsing failed")
	}

	if cfg.JobID == "" {
		return fmt.Errorf("JobID cannot be empty")
	} else if !idRE.MatchString(cfg.JobID) {
		return fmt.Errorf("JobID parsing failed")
	}

	return nil
}

func (cfg Config) IsValid() error {
	if cfg.IsEmpty() {
		return fmt.Errorf("config cannot be empty")
	}

	if cfg.DataDir == "" {
		return fmt.Errorf("DataDir cannot be empty")
	}
	if cfg.ModelsDir == "" {
		return fmt.Errorf("ModelsDir cannot be empty")
	}

	for _, spec := range cfg.Chains {
		if len(translate.ParseChainSpec(spec)) == 0 {
			return fmt.Errorf("invalid chain spec %q", spec)
		}
	}

	switch cfg.TranscribeAPI {
	case TranscribeAPIWhisperCPP:
		if !cfg.ModelSize.IsValid() {
			return fmt.Errorf("ModelSize value is not valid")
		}
		if numCPU := runtime.NumCPU(); cfg.NumThreads < 1 || cfg.NumThreads > numCPU {
			return fmt.Errorf("NumThreads should be in the range [1, %d]", numCPU)
		}
	case TranscribeAPIAzure:
		if cfg.AzureSpeechKey == "" {
			return fmt.Errorf("AzureSpeechKey cannot be empty")
		}
		if cfg.AzureSpeechRegion == "" {
			return fmt.Errorf("AzureSpeechRegion cannot be empty")
		}
		if cfg.TranscribeLanguage == "" {
			if len(cfg.AzureSpeechLanguages) == 0 {
				return fmt.Errorf("AzureSpeechLanguages cannot be empty when TranscribeLanguage is not set")
			}
			if len(cfg.AzureSpeechLanguages) > maxAzureSpeechLanguages {
				return fmt.Errorf("AzureSpeechLanguages should contain at most %d entries", maxAzureSpeechLanguages)
			}
		}
	default:
		return fmt.Errorf("TranscribeAPI value is not valid")
	}

	if !cfg.TranslateAPI.IsValid() {
		return fmt.Errorf("TranslateAPI value is not valid")
	}
	if len(cfg.Chains) > 0 {
		if cfg.TranslateAPIURL == "" {
			return fmt.Errorf("TranslateAPIURL cannot be empty")
		}
		if err := isValidURL(cfg.TranslateAPIURL); err != nil {
			return fmt.Errorf("TranslateAPIURL parsing failed: %w", err)
		}
	}

	if err := cfg.OutputOptions.Text.IsValid(); err != nil {
		return err
	}
	if err := cfg.OutputOptions.WebVTT.IsValid(); err != nil {
		return err
	}

	return cfg.isValidPublishing()
}

func (cfg *Config) SetDefaults() {
	if cfg.DataDir == "" {
		cfg.DataDir = DataDirDefault
	}

	if cfg.ModelsDir == "" {
		cfg.ModelsDir = ModelsDirDefault
	}

	if cfg.TranscribeAPI == "" {
		cfg.TranscribeAPI = TranscribeAPIDefault
	}

	if cfg.ModelSize == "" {
		cfg.ModelSize = ModelSizeDefault
	}

	if cfg.NumThreads == 0 {
		cfg.NumThreads = max(1, runtime.NumCPU()/2)
	}

	if cfg.TranslateAPI == "" {
		cfg.TranslateAPI = TranslateAPIDefault
	}

	cfg.OutputOptions.Text.SetDefaults()
}

func (cfg Config) ToEnv() []string {
	if cfg.IsEmpty() {
		return nil
	}

	vars := []string{
		fmt.Sprintf("DATA_DIR=%s", cfg.DataDir),
		fmt.Sprintf("MODELS_DIR=%s", cfg.ModelsDir),
		fmt.Sprintf("TRANSLATE_CHAINS=%s", strings.Join(cfg.Chains, ",")),
		fmt.Sprintf("TRANSCRIBE_API=%s", cfg.TranscribeAPI),
		fmt.Sprintf("MODEL_SIZE=%s", cfg.ModelSize),
		fmt.Sprintf("NUM_THREADS=%d", cfg.NumThreads),
		fmt.Sprintf("TRANSCRIBE_LANGUAGE=%s", cfg.TranscribeLanguage),
		fmt.Sprintf("VAD_DISABLED=%t", cfg.VADDisabled),
		fmt.Sprintf("AZURE_SPEECH_KEY=%s", cfg.AzureSpeechKey),
		fmt.Sprintf("AZURE_SPEECH_REGION=%s", cfg.AzureSpeechRegion),
		fmt.Sprintf("AZURE_SPEECH_LANGUAGES=%s", strings.Join(cfg.AzureSpeechLanguages, ",")),
		fmt.Sprintf("TRANSLATE_API=%s", cfg.TranslateAPI),
		fmt.Sprintf("TRANSLATE_API_URL=%s", cfg.TranslateAPIURL),
		fmt.Sprintf("TRANSLATE_API_KEY=%s", cfg.TranslateAPIKey),
		fmt.Sprintf("SITE_URL=%s", cfg.SiteURL),
		fmt.Sprintf("AUTH_TOKEN=%s", cfg.AuthToken),
		fmt.Sprintf("CHANNEL_ID=%s", cfg.ChannelID),
		fmt.Sprintf("CALL_ID=%s", cfg.CallID),
		fmt.Sprintf("JOB_ID=%s", cfg.JobID),
	}

	vars = append(vars, cfg.OutputOptions.WebVTT.ToEnv()...)
	vars = append(vars, cfg.OutputOptions.Text.ToEnv()...)

	return vars
}

func (cfg Config) ToMap() map[string]any {
	if cfg.IsEmpty() {
		return nil
	}

	m := map[string]any{
		"data_dir":               cfg.DataDir,
		"models_dir":             cfg.ModelsDir,
		"translate_chains":       cfg.Chains,
		"transcribe_api":         cfg.TranscribeAPI,
		"model_size":             cfg.ModelSize,
		"num_threads":            cfg.NumThreads,
		"transcribe_language":    cfg.TranscribeLanguage,
		"vad_disabled":           cfg.VADDisabled,
		"azure_speech_key":       cfg.AzureSpeechKey,
		"azure_speech_region":    cfg.AzureSpeechRegion,
		"azure_speech_languages": cfg.AzureSpeechLanguages,
		"translate_api":          cfg.TranslateAPI,
		"translate_api_url":      cfg.TranslateAPIURL,
		"translate_api_key":      cfg.TranslateAPIKey,
		"site_url":               cfg.SiteURL,
		"auth_token":             cfg.AuthToken,
		"channel_id":             cfg.ChannelID,
		"call_id":                cfg.CallID,
		"job_id":                 cfg.JobID,
	}

	for k, v := range cfg.OutputOptions.WebVTT.ToMap() {
		m[k] = v
	}
	for k, v := range cfg.OutputOptions.Text.ToMap() {
		m[k] = v
	}

	return m
}

// stringsFromAny accepts either a []string or, when the map has been
// previously marshaled, a []any.
func stringsFromAny(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, val := range vals {
			if s, ok := val.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (cfg *Config) FromMap(m map[string]any) *Config {
	cfg.DataDir, _ = m["data_dir"].(string)
	cfg.ModelsDir, _ = m["models_dir"].(string)
	cfg.Chains = stringsFromAny(m["translate_chains"])
	cfg.TranscribeLanguage, _ = m["transcribe_language"].(string)
	cfg.VADDisabled, _ = m["vad_disabled"].(bool)
	cfg.AzureSpeechKey, _ = m["azure_speech_key"].(string)
	cfg.AzureSpeechRegion, _ = m["azure_speech_region"].(string)
	cfg.AzureSpeechLanguages = stringsFromAny(m["azure_speech_languages"])
	cfg.TranslateAPIURL, _ = m["translate_api_url"].(string)
	cfg.TranslateAPIKey, _ = m["translate_api_key"].(string)
	cfg.SiteURL, _ = m["site_url"].(string)
	cfg.AuthToken, _ = m["auth_token"].(string)
	cfg.ChannelID, _ = m["channel_id"].(string)
	cfg.CallID, _ = m["call_id"].(string)
	cfg.JobID, _ = m["job_id"].(string)

	// num_threads can either be int or float64 depending whether it's been
	// previously marshaled or not.
	switch m["num_threads"].(type) {
	case int:
		cfg.NumThreads = m["num_threads"].(int)
	case float64:
		cfg.NumThreads = int(m["num_threads"].(float64))
	}

	if api, ok := m["transcribe_api"].(string); ok {
		cfg.TranscribeAPI = TranscribeAPI(api)
	} else {
		cfg.TranscribeAPI, _ = m["transcribe_api"].(TranscribeAPI)
	}
	if modelSize, ok := m["model_size"].(string); ok {
		cfg.ModelSize = ModelSize(modelSize)
	} else {
		cfg.ModelSize, _ = m["model_size"].(ModelSize)
	}
	if api, ok := m["translate_api"].(string); ok {
		cfg.TranslateAPI = TranslateAPI(api)
	} else {
		cfg.TranslateAPI, _ = m["translate_api"].(TranslateAPI)
	}

	cfg.OutputOptions.WebVTT.FromMap(m)
	cfg.OutputOptions.Text.FromMap(m)

	return cfg
}

// splitList parses a comma separated env value, dropping empty entries.
func splitList(val string) []string {
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func FromEnv() (Config, error) {
	var cfg Config
	cfg.DataDir = os.Getenv("DATA_DIR")
	cfg.ModelsDir = os.Getenv("MODELS_DIR")
	cfg.Chains = splitList(os.Getenv("TRANSLATE_CHAINS"))
	cfg.TranscribeLanguage = os.Getenv("TRANSCRIBE_LANGUAGE")
	cfg.AzureSpeechKey = os.Getenv("AZURE_SPEECH_KEY")
	cfg.AzureSpeechRegion = os.Getenv("AZURE_SPEECH_REGION")
	cfg.AzureSpeechLanguages = splitList(os.Getenv("AZURE_SPEECH_LANGUAGES"))
	cfg.TranslateAPIURL = strings.TrimSuffix(os.Getenv("TRANSLATE_API_URL"), "/")
	cfg.TranslateAPIKey = os.Getenv("TRANSLATE_API_KEY")
	cfg.SiteURL = strings.TrimSuffix(os.Getenv("SITE_URL"), "/")
	cfg.AuthToken = os.Getenv("AUTH_TOKEN")
	cfg.ChannelID = os.Getenv("CHANNEL_ID")
	cfg.CallID = os.Getenv("CALL_ID")
	cfg.JobID = os.Getenv("JOB_ID")

	if val := os.Getenv("NUM_THREADS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("failed to parse NUM_THREADS: %w", err)
		}
		cfg.NumThreads = n
	}

	if val := os.Getenv("VAD_DISABLED"); val != "" {
		disabled, err := strconv.ParseBool(val)
		if err != nil {
			return cfg, fmt.Errorf("failed to parse VAD_DISABLED: %w", err)
		}
		cfg.VADDisabled = disabled
	}

	if val := os.Getenv("TRANSCRIBE_API"); val != "" {
		cfg.TranscribeAPI = TranscribeAPI(val)
	}

	if val := os.Getenv("MODEL_SIZE"); val != "" {
		cfg.ModelSize = ModelSize(val)
	}

	if val := os.Getenv("TRANSLATE_API"); val != "" {
		cfg.TranslateAPI = TranslateAPI(val)
	}

	cfg.OutputOptions.WebVTT.FromEnv()
	cfg.OutputOptions.Text.FromEnv()

	return cfg, nil
}
