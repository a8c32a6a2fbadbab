package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind tells a generator what the prompt is for.
type Kind string

const (
	KindClassify Kind = "classify"
	KindReply    Kind = "reply"
	KindSummary  Kind = "summary"
)

// Request is a single text-generation call. Prompt is the full instruction
// text; Input is the caller text the prompt was built around.
type Request struct {
	Kind   Kind   `json:"kind"`
	Prompt string `json:"prompt"`
	Input  string `json:"input,omitempty"`
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("generator returned empty text")

// Config controls generator construction.
type Config struct {
	Mode             string
	GeminiAPIKey     string
	GeminiModel      string
	HTTPURL          string
	HTTPStreamStrict bool
}

// NewGenerator builds the generator selected by cfg.Mode. "auto" prefers
// Gemini when a key is set, then an HTTP endpoint, then the mock.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoGenerator(ctx, cfg)
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, errors.New("GEMINI_API_KEY is required for gemini mode")
		}
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("BRAIN_HTTP_URL is required for http mode")
		}
		return NewHTTPGeneratorWithOptions(cfg.HTTPURL, cfg.HTTPStreamStrict), nil
	case "mock":
		return NewMockGenerator(nil), nil
	default:
		return nil, fmt.Errorf("unsupported brain provider %q", cfg.Mode)
	}
}

func newAutoGenerator(ctx context.Context, cfg Config) (Generator, error) {
	var secondary Generator
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		secondary = NewHTTPGeneratorWithOptions(cfg.HTTPURL, cfg.HTTPStreamStrict)
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gem, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		if secondary != nil {
			return NewFallbackGenerator(gem, secondary), nil
		}
		return gem, nil
	}
	if secondary != nil {
		return secondary, nil
	}
	return NewMockGenerator(nil), nil
}
