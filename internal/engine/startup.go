package engine

import (
	"context"
	"fmt"
	"io"
)

// readier is implemented by engines that can verify their backend before a
// run.
type readier interface {
	Ready(ctx context.Context, w io.Writer) error
}

// EnsureReady runs the engine's readiness check, if it has one, writing
// progress to w. Engines without a check are assumed ready.
func EnsureReady(ctx context.Context, e Engine, w io.Writer) error {
	r, ok := e.(readier)
	if !ok {
		return nil
	}
	if err := r.Ready(ctx, w); err != nil {
		return fmt.Errorf("%s not ready: %w", e.Name(), err)
	}
	return nil
}

// Ready checks that the configured model is listed by OpenRouter. An unknown
// model is reported but does not fail the check: the listing can lag new
// releases.
func (e *OpenRouterEngine) Ready(ctx context.Context, w io.Writer) error {
	ok, err := e.HasModel(ctx)
	if err != nil {
		fmt.Fprintf(w, "model %s: could not list models: %v\n", e.model, err)
		return nil
	}
	if !ok {
		fmt.Fprintf(w, "model %s: not listed by openrouter\n", e.model)
		return nil
	}
	fmt.Fprintf(w, "model %s: ready\n", e.model)
	return nil
}
