package voice

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// NewFailoverPair builds a transcriber and synthesizer that prefer the primary
// backend and switch to the fallback when a primary call fails. Once the
// fallback succeeds it stays active until it fails; then primary is retried.
func NewFailoverPair(
	primaryT Transcriber,
	primaryS Synthesizer,
	fallbackT Transcriber,
	fallbackS Synthesizer,
	fallbackVoiceID string,
	fallbackModelID string,
) (Transcriber, Synthesizer) {
	state := &failoverState{}
	return &failoverTranscriber{
			state:    state,
			primary:  primaryT,
			fallback: fallbackT,
		}, &failoverSynthesizer{
			state:           state,
			primary:         primaryS,
			fallback:        fallbackS,
			fallbackVoiceID: strings.TrimSpace(fallbackVoiceID),
			fallbackModelID: strings.TrimSpace(fallbackModelID),
		}
}

type failoverState struct {
	fallbackActive atomic.Bool
}

func (s *failoverState) activateFallback() {
	s.fallbackActive.Store(true)
}

func (s *failoverState) deactivateFallback() {
	s.fallbackActive.Store(false)
}

func (s *failoverState) isFallbackActive() bool {
	return s.fallbackActive.Load()
}

type failoverTranscriber struct {
	state    *failoverState
	primary  Transcriber
	fallback Transcriber
}

func (p *failoverTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if p.state.isFallbackActive() {
		text, fbErr := p.fallback.Transcribe(ctx, audio, format)
		if fbErr == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", fbErr
		}
		// Fallback failed after being active; try primary again.
		text, prErr := p.primary.Transcribe(ctx, audio, format)
		if prErr == nil {
			p.state.deactivateFallback()
			return text, nil
		}
		return "", fmt.Errorf("stt fallback failed: %v; stt primary failed: %w", fbErr, prErr)
	}

	text, prErr := p.primary.Transcribe(ctx, audio, format)
	if prErr == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", prErr
	}

	text, fbErr := p.fallback.Transcribe(ctx, audio, format)
	if fbErr != nil {
		return "", fmt.Errorf("stt primary failed: %v; stt fallback failed: %w", prErr, fbErr)
	}
	p.state.activateFallback()
	return text, nil
}

type failoverSynthesizer struct {
	state           *failoverState
	primary         Synthesizer
	fallback        Synthesizer
	fallbackVoiceID string
	fallbackModelID string
}

func (p *failoverSynthesizer) Synthesize(ctx context.Context, text string, params VoiceParams) (Speech, error) {
	if p.state.isFallbackActive() {
		speech, fbErr := p.synthesizeFallback(ctx, text, params)
		if fbErr == nil {
			return speech, nil
		}
		if ctx.Err() != nil {
			return Speech{}, fbErr
		}
		speech, prErr := p.primary.Synthesize(ctx, text, params)
		if prErr == nil {
			p.state.deactivateFallback()
			return speech, nil
		}
		return Speech{}, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	speech, prErr := p.primary.Synthesize(ctx, text, params)
	if prErr == nil {
		return speech, nil
	}
	if ctx.Err() != nil {
		return Speech{}, prErr
	}
	speech, fbErr := p.synthesizeFallback(ctx, text, params)
	if fbErr != nil {
		return Speech{}, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	p.state.activateFallback()
	return speech, nil
}

func (p *failoverSynthesizer) synthesizeFallback(ctx context.Context, text string, params VoiceParams) (Speech, error) {
	if p.fallbackVoiceID != "" {
		params.VoiceID = p.fallbackVoiceID
	}
	if p.fallbackModelID != "" {
		params.ModelID = p.fallbackModelID
	}
	return p.fallback.Synthesize(ctx, text, params)
}
