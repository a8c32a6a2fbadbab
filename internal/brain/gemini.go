package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ent0n29/dispatchdesk/internal/reliability"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator calls the Gemini API through the genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), generationConfig(req.Kind))
	if err != nil {
		return "", geminiError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GeminiError is a failed Gemini call. Code is the HTTP status the API
// answered with, or zero when the request never got an answer.
type GeminiError struct {
	Code int
	Err  error
}

func (e *GeminiError) Error() string {
	if e.Code == 0 {
		return "gemini generate: " + e.Err.Error()
	}
	return fmt.Sprintf("gemini generate: status %d: %v", e.Code, e.Err)
}

func (e *GeminiError) Unwrap() error { return e.Err }

// Retryable reports whether the status is worth another attempt.
func (e *GeminiError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &GeminiError{Code: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &GeminiError{Code: apiErrPtr.Code, Err: err}
	}
	return &GeminiError{Err: err}
}

// generationConfig keeps classification answers short and deterministic.
func generationConfig(kind Kind) *genai.GenerateContentConfig {
	switch kind {
	case KindClassify:
		return &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0),
			MaxOutputTokens: 8,
		}
	case KindSummary:
		return &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.3),
			MaxOutputTokens: 512,
		}
	default:
		return &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.7),
			MaxOutputTokens: 400,
		}
	}
}
