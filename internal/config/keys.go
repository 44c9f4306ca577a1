package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "account.handle", typ: kString, env: "XREPLY_ACCOUNT_HANDLE",
		apply:   func(cfg *Config, v any) { cfg.Account.Handle = v.(string) },
		extract: func(cfg Config) any { return cfg.Account.Handle },
	},
	{
		key: "account.user_id", typ: kString, env: "XREPLY_ACCOUNT_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Account.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Account.UserID },
	},
	{
		key: "source.backend", typ: kString, env: "XREPLY_SOURCE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Source.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Backend },
	},
	{
		key: "source.ignore_post_ids", typ: kString, env: "XREPLY_SOURCE_IGNORE_POST_IDS",
		apply:   func(cfg *Config, v any) { cfg.Source.IgnorePostIDs = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.IgnorePostIDs },
	},
	{
		key: "thread.max_age_hours", typ: kInt, env: "XREPLY_THREAD_MAX_AGE_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Thread.MaxAgeHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Thread.MaxAgeHours },
	},
	{
		key: "thread.max_per_run", typ: kInt, env: "XREPLY_THREAD_MAX_PER_RUN",
		apply:   func(cfg *Config, v any) { cfg.Thread.MaxPerRun = v.(int) },
		extract: func(cfg Config) any { return cfg.Thread.MaxPerRun },
	},
	{
		key: "thread.min_text_length", typ: kInt, env: "XREPLY_THREAD_MIN_TEXT_LENGTH",
		apply:   func(cfg *Config, v any) { cfg.Thread.MinTextLength = v.(int) },
		extract: func(cfg Config) any { return cfg.Thread.MinTextLength },
	},
	{
		key: "thread.retention", typ: kInt, env: "XREPLY_THREAD_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Thread.Retention = v.(int) },
		extract: func(cfg Config) any { return cfg.Thread.Retention },
	},
	{
		key: "watchlist.ids", typ: kString, env: "XREPLY_WATCHLIST_IDS",
		apply:   func(cfg *Config, v any) { cfg.WatchList.ListIDs = v.(string) },
		extract: func(cfg Config) any { return cfg.WatchList.ListIDs },
	},
	{
		key: "watchlist.max_age_hours", typ: kInt, env: "XREPLY_WATCHLIST_MAX_AGE_HOURS",
		apply:   func(cfg *Config, v any) { cfg.WatchList.MaxAgeHours = v.(int) },
		extract: func(cfg Config) any { return cfg.WatchList.MaxAgeHours },
	},
	{
		key: "watchlist.min_likes", typ: kInt, env: "XREPLY_WATCHLIST_MIN_LIKES",
		apply:   func(cfg *Config, v any) { cfg.WatchList.MinLikes = v.(int) },
		extract: func(cfg Config) any { return cfg.WatchList.MinLikes },
	},
	{
		key: "watchlist.max_replies", typ: kInt, env: "XREPLY_WATCHLIST_MAX_REPLIES",
		apply:   func(cfg *Config, v any) { cfg.WatchList.MaxReplies = v.(int) },
		extract: func(cfg Config) any { return cfg.WatchList.MaxReplies },
	},
	{
		key: "watchlist.max_per_run", typ: kInt, env: "XREPLY_WATCHLIST_MAX_PER_RUN",
		apply:   func(cfg *Config, v any) { cfg.WatchList.MaxPerRun = v.(int) },
		extract: func(cfg Config) any { return cfg.WatchList.MaxPerRun },
	},
	{
		key: "watchlist.min_text_length", typ: kInt, env: "XREPLY_WATCHLIST_MIN_TEXT_LENGTH",
		apply:   func(cfg *Config, v any) { cfg.WatchList.MinTextLength = v.(int) },
		extract: func(cfg Config) any { return cfg.WatchList.MinTextLength },
	},
	{
		key: "watchlist.retention", typ: kInt, env: "XREPLY_WATCHLIST_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.WatchList.Retention = v.(int) },
		extract: func(cfg Config) any { return cfg.WatchList.Retention },
	},
	{
		key: "run.pacing_ms", typ: kInt, env: "XREPLY_RUN_PACING_MS",
		apply:   func(cfg *Config, v any) { cfg.Run.PacingMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Run.PacingMs },
	},
	{
		key: "generator.provider", typ: kString, env: "XREPLY_GENERATOR_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generator.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Provider },
	},
	{
		key: "generator.model", typ: kString, env: "XREPLY_GENERATOR_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generator.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Model },
	},
	{
		key: "generator.max_tokens", typ: kInt, env: "XREPLY_GENERATOR_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generator.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generator.MaxTokens },
	},
	{
		key: "generator.timeout_seconds", typ: kInt, env: "XREPLY_GENERATOR_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Generator.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Generator.TimeoutSeconds },
	},
	{
		key: "generator.max_chars", typ: kInt, env: "XREPLY_GENERATOR_MAX_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Generator.MaxChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Generator.MaxChars },
	},
	{
		key: "generator.voice_file", typ: kString, env: "XREPLY_GENERATOR_VOICE_FILE",
		apply:   func(cfg *Config, v any) { cfg.Generator.VoiceFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.VoiceFile },
	},
	{
		key: "generator.ollama_base_url", typ: kString, env: "XREPLY_GENERATOR_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generator.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.OllamaBaseURL },
	},
	{
		key: "generator.anthropic_api_key", typ: kString, env: "XREPLY_ANTHROPIC_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generator.AnthropicAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.AnthropicAPIKey },
	},
	{
		key: "generator.openrouter_api_key", typ: kString, env: "XREPLY_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generator.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.OpenRouterAPIKey },
	},
	{
		key: "generator.gemini_api_key", typ: kString, env: "XREPLY_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generator.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.GeminiAPIKey },
	},
	{
		key: "bird.binary", typ: kString, env: "XREPLY_BIRD_BINARY",
		apply:   func(cfg *Config, v any) { cfg.Bird.Binary = v.(string) },
		extract: func(cfg Config) any { return cfg.Bird.Binary },
	},
	{
		key: "bird.timeout_seconds", typ: kInt, env: "XREPLY_BIRD_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Bird.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Bird.TimeoutSeconds },
	},
	{
		key: "browser.control_url", typ: kString, env: "XREPLY_BROWSER_CONTROL_URL",
		apply:   func(cfg *Config, v any) { cfg.Browser.ControlURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.ControlURL },
	},
	{
		key: "browser.chrome_bin", typ: kString, env: "XREPLY_BROWSER_CHROME_BIN",
		apply:   func(cfg *Config, v any) { cfg.Browser.ChromeBin = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.ChromeBin },
	},
	{
		key: "browser.profile_dir", typ: kString, env: "XREPLY_BROWSER_PROFILE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Browser.ProfileDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.ProfileDir },
	},
	{
		key: "browser.headless", typ: kBool, env: "XREPLY_BROWSER_HEADLESS",
		apply:   func(cfg *Config, v any) { cfg.Browser.Headless = v.(bool) },
		extract: func(cfg Config) any { return cfg.Browser.Headless },
	},
	{
		key: "browser.nav_timeout_seconds", typ: kInt, env: "XREPLY_BROWSER_NAV_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Browser.NavTimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Browser.NavTimeoutSeconds },
	},
	{
		key: "browser.settle_ms", typ: kInt, env: "XREPLY_BROWSER_SETTLE_MS",
		apply:   func(cfg *Config, v any) { cfg.Browser.SettleMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Browser.SettleMs },
	},
	{
		key: "storage.data_dir", typ: kString, env: "XREPLY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "XREPLY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.dir", typ: kString, env: "XREPLY_LOG_DIR",
		apply:   func(cfg *Config, v any) { cfg.Log.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Dir },
	},
	{
		key: "metrics.textfile", typ: kString, env: "XREPLY_METRICS_TEXTFILE",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Textfile = v.(string) },
		extract: func(cfg Config) any { return cfg.Metrics.Textfile },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
