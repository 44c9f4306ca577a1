package engine

import (
	"context"
	"io"

	"github.com/kalambet/xreply/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
	model  string
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL, model string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL), model: model}
}

func (e *OllamaEngine) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var opts *ollama.Options
	if maxTokens > 0 {
		opts = &ollama.Options{NumPredict: maxTokens}
	}
	return e.client.Chat(ctx, e.model, []ollama.Message{
		{Role: "user", Content: prompt},
	}, opts)
}

func (e *OllamaEngine) Name() string { return "ollama/" + e.model }

// Ready makes sure the server is up and the model pulled.
func (e *OllamaEngine) Ready(ctx context.Context, w io.Writer) error {
	return ollama.EnsureReady(ctx, e.client, e.model, w)
}
