package voice

import (
	"context"
	"strings"
)

const DefaultMockTranscript = "simulated voice input"

// MockProvider is a deterministic provider used when no speech vendor is
// configured and in tests.
type MockProvider struct {
	Transcript string
}

func NewMockProvider(transcript string) *MockProvider {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		transcript = DefaultMockTranscript
	}
	return &MockProvider{Transcript: transcript}
}

// Transcribe returns the configured transcript for any non-empty clip.
func (p *MockProvider) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", nil
	}
	return p.Transcript, nil
}

// Synthesize echoes the text bytes back as audio.
func (p *MockProvider) Synthesize(ctx context.Context, text string, _ VoiceParams) (Speech, error) {
	if err := ctx.Err(); err != nil {
		return Speech{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Speech{}, nil
	}
	return Speech{Audio: []byte(text), Format: "mock_text_bytes"}, nil
}
