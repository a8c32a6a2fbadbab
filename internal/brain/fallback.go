package brain

import (
	"context"
	"errors"
	"fmt"
)

// FallbackGenerator attempts a primary generator first and falls back on
// error. Cancellation and deadline errors are returned as-is.
type FallbackGenerator struct {
	primary  Generator
	fallback Generator
}

func NewFallbackGenerator(primary, fallback Generator) *FallbackGenerator {
	return &FallbackGenerator{primary: primary, fallback: fallback}
}

func (g *FallbackGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g == nil || g.primary == nil {
		if g != nil && g.fallback != nil {
			return g.fallback.Generate(ctx, req)
		}
		return "", fmt.Errorf("fallback generator misconfigured")
	}
	text, err := g.primary.Generate(ctx, req)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if g.fallback == nil {
		return "", err
	}
	text, fbErr := g.fallback.Generate(ctx, req)
	if fbErr != nil {
		return "", fmt.Errorf("primary generator error: %w; fallback generator error: %v", err, fbErr)
	}
	return text, nil
}
