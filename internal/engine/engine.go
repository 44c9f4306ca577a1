package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/xreply/internal/anthropic"
	"github.com/kalambet/xreply/internal/config"
	"github.com/kalambet/xreply/internal/gemini"
	"github.com/kalambet/xreply/internal/openrouter"
)

// Engine abstracts a text-generation backend (Anthropic, OpenRouter, Ollama
// or Gemini). The reply generator depends on this interface instead of a
// concrete client.
type Engine interface {
	// Complete sends a single prompt and returns the generated text.
	// maxTokens is a hint; backends may ignore it.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)

	// Name identifies the backend and model for logs.
	Name() string
}

// ErrMissingCredential is returned by New when the provider needs an API key
// and none is configured.
var ErrMissingCredential = errors.New("missing API key")

// New builds the Engine selected by cfg.Provider.
func New(ctx context.Context, cfg config.GeneratorConfig) (Engine, error) {
	if cfg.NeedsAPIKey() && cfg.APIKey() == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingCredential)
	}

	switch cfg.Provider {
	case "anthropic":
		return named{anthropic.NewClient(cfg.APIKey(), cfg.Model), "anthropic/" + cfg.Model}, nil
	case "openrouter":
		c := openrouter.NewCompleter(openrouter.NewClient(cfg.APIKey()), cfg.Model)
		return &OpenRouterEngine{Completer: c, model: cfg.Model}, nil
	case "ollama":
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Model), nil
	case "gemini":
		c, err := gemini.NewClient(ctx, cfg.APIKey(), cfg.Model)
		if err != nil {
			return nil, err
		}
		return named{c, "gemini/" + cfg.Model}, nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

type completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// named attaches a display name to a backend that has no readiness check.
type named struct {
	completer
	name string
}

func (n named) Name() string { return n.name }

// Unavailable returns an Engine whose every call fails with err. It keeps a
// run going when no backend could be built: each candidate is skipped.
func Unavailable(err error) Engine {
	return unavailable{err: err}
}

type unavailable struct{ err error }

func (u unavailable) Complete(context.Context, string, int) (string, error) { return "", u.err }
func (u unavailable) Name() string                                         { return "unavailable" }

// OpenRouterEngine serves completions through OpenRouter.
type OpenRouterEngine struct {
	*openrouter.Completer
	model string
}

func (e *OpenRouterEngine) Name() string { return "openrouter/" + e.model }
