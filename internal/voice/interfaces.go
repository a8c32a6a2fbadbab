package voice

import (
	"context"
	"errors"
	"fmt"
)

// Transcriber turns a complete audio clip into text. format is the container
// extension of audio, for example "wav".
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Synthesizer renders reply text as speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, params VoiceParams) (Speech, error)
}

type VoiceParams struct {
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

type Speech struct {
	Audio  []byte
	Format string
}

// ProviderError carries the upstream provider and a short machine-readable
// code for metrics.
type ProviderError struct {
	Provider  string
	Code      string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrSynthesisUnavailable is returned by NoSynthesizer.
var ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")

// NoSynthesizer stands in where a backend only offers transcription.
type NoSynthesizer struct{}

func (NoSynthesizer) Synthesize(context.Context, string, VoiceParams) (Speech, error) {
	return Speech{}, ErrSynthesisUnavailable
}
