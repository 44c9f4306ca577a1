package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Account   AccountConfig
	Source    SourceConfig
	Thread    ThreadConfig
	WatchList WatchListConfig
	Run       RunSettings
	Generator GeneratorConfig
	Bird      BirdConfig
	Browser   BrowserConfig
	Storage   StorageConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type AccountConfig struct {
	Handle string
	UserID string
}

// SourceConfig selects the collaborator used to fetch candidates and post
// replies: "bird" (CLI) or "browser" (Chrome via DevTools).
type SourceConfig struct {
	Backend       string
	IgnorePostIDs string // comma-separated
}

type ThreadConfig struct {
	MaxAgeHours   int
	MaxPerRun     int
	MinTextLength int
	Retention     int
}

type WatchListConfig struct {
	ListIDs       string // comma-separated
	MaxAgeHours   int
	MinLikes      int
	MaxReplies    int
	MaxPerRun     int
	MinTextLength int
	Retention     int
}

type RunSettings struct {
	PacingMs int
}

type GeneratorConfig struct {
	Provider         string
	Model            string
	MaxTokens        int
	TimeoutSeconds   int
	MaxChars         int
	VoiceFile        string
	AnthropicAPIKey  string
	OpenRouterAPIKey string
	GeminiAPIKey     string
	OllamaBaseURL    string
}

type BirdConfig struct {
	Binary         string
	TimeoutSeconds int
}

type BrowserConfig struct {
	ControlURL        string
	ChromeBin         string
	ProfileDir        string
	Headless          bool
	NavTimeoutSeconds int
	SettleMs          int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	Dir   string
}

type MetricsConfig struct {
	Textfile string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Source: SourceConfig{
			Backend: "bird",
		},
		Thread: ThreadConfig{
			MaxAgeHours:   24,
			MaxPerRun:     3,
			MinTextLength: 2,
			Retention:     500,
		},
		WatchList: WatchListConfig{
			MaxAgeHours:   6,
			MinLikes:      5,
			MaxReplies:    20,
			MaxPerRun:     8,
			MinTextLength: 10,
			Retention:     1000,
		},
		Run: RunSettings{
			PacingMs: 3000,
		},
		Generator: GeneratorConfig{
			Provider:       "anthropic",
			Model:          "claude-3-5-haiku-latest",
			MaxTokens:      150,
			TimeoutSeconds: 30,
			MaxChars:       280,
			OllamaBaseURL:  "http://localhost:11434",
		},
		Bird: BirdConfig{
			Binary:         "bird",
			TimeoutSeconds: 30,
		},
		Browser: BrowserConfig{
			ProfileDir:        filepath.Join(dataDir, "chrome-profile"),
			NavTimeoutSeconds: 30,
			SettleMs:          4000,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file in the working directory (if
// any), the JSON config file at $XDG_CONFIG_HOME/xreply/config.json,
// XREPLY_* environment variables, and finally the secrets file for API keys
// that are still empty.
func Load() (Config, error) {
	loadDotEnv(".env")
	return loadWith(newFileBackend(configFilePath()), secretsReader{path: secretsFilePath()})
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecretFallbacks(&cfg, kc)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv loads variables from path without overriding the process
// environment. A missing file is silently ignored.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("could not load env file", "path", path, "error", err)
	}
}

// applySecretFallbacks fills empty API keys from the provider's conventional
// environment variable, then from the secrets file.
func applySecretFallbacks(cfg *Config, kc keychain) {
	fallbacks := []struct {
		target  *string
		env     string
		account string
	}{
		{&cfg.Generator.AnthropicAPIKey, "ANTHROPIC_API_KEY", "anthropic_api_key"},
		{&cfg.Generator.OpenRouterAPIKey, "OPENROUTER_API_KEY", "openrouter_api_key"},
		{&cfg.Generator.GeminiAPIKey, "GEMINI_API_KEY", "gemini_api_key"},
	}
	for _, f := range fallbacks {
		if *f.target != "" {
			continue
		}
		if v := os.Getenv(f.env); v != "" {
			*f.target = v
			continue
		}
		if v, err := kc.Get("xreply", f.account); err == nil && v != "" {
			*f.target = v
		}
	}
}

func (c Config) validate() error {
	switch c.Source.Backend {
	case "bird", "browser":
	default:
		return fmt.Errorf("invalid source.backend %q: want bird or browser", c.Source.Backend)
	}
	switch c.Generator.Provider {
	case "anthropic", "openrouter", "ollama", "gemini":
	default:
		return fmt.Errorf("invalid generator.provider %q: want anthropic, openrouter, ollama or gemini", c.Generator.Provider)
	}
	if c.Generator.MaxChars < 4 {
		return fmt.Errorf("generator.max_chars must be at least 4, got %d", c.Generator.MaxChars)
	}
	return nil
}

// APIKey returns the credential the configured provider needs, or "" for
// providers that need none.
func (g GeneratorConfig) APIKey() string {
	switch g.Provider {
	case "anthropic":
		return g.AnthropicAPIKey
	case "openrouter":
		return g.OpenRouterAPIKey
	case "gemini":
		return g.GeminiAPIKey
	default:
		return ""
	}
}

// NeedsAPIKey reports whether the configured provider requires a credential.
func (g GeneratorConfig) NeedsAPIKey() bool {
	return g.Provider != "ollama"
}

// LogDir returns the log directory, defaulting to <data_dir>/logs.
func (c Config) LogDir() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return filepath.Join(c.Storage.DataDir, "logs")
}

// StateFile returns the per-mode state file location.
func (c Config) StateFile(mode Mode) string {
	return filepath.Join(c.Storage.DataDir, string(mode)+"-state.json")
}

// LogFile returns the per-mode log file location.
func (c Config) LogFile(mode Mode) string {
	return filepath.Join(c.LogDir(), string(mode)+".log")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "xreply-data"
		}
	}
	return filepath.Join(dir, "xreply")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "xreply", "config.json")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
