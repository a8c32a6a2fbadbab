package voice

import (
	"context"
	"errors"
	"testing"
)

func TestFailoverPairSwitchesToFallbackAndSticks(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("primary unavailable")

	primaryT := &stubTranscriber{err: primaryErr}
	fallbackT := &stubTranscriber{text: "fallback text"}
	primaryS := &stubSynthesizer{err: primaryErr}
	fallbackS := &stubSynthesizer{}

	stt, tts := NewFailoverPair(primaryT, primaryS, fallbackT, fallbackS, "", "")

	for i := 0; i < 2; i++ {
		text, err := stt.Transcribe(ctx, []byte("audio"), "wav")
		if err != nil {
			t.Fatalf("Transcribe() unexpected error = %v", err)
		}
		if text != "fallback text" {
			t.Fatalf("Transcribe() = %q, want fallback text", text)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := tts.Synthesize(ctx, "hello", VoiceParams{}); err != nil {
			t.Fatalf("Synthesize() unexpected error = %v", err)
		}
	}

	if primaryT.calls != 1 {
		t.Fatalf("primary STT calls = %d, want 1", primaryT.calls)
	}
	if fallbackT.calls != 2 {
		t.Fatalf("fallback STT calls = %d, want 2", fallbackT.calls)
	}
	if primaryS.calls != 0 {
		t.Fatalf("primary TTS calls = %d, want 0 once fallback active", primaryS.calls)
	}
	if fallbackS.calls != 2 {
		t.Fatalf("fallback TTS calls = %d, want 2", fallbackS.calls)
	}
}

func TestFailoverPairMapsFallbackVoiceAndModel(t *testing.T) {
	ctx := context.Background()
	primaryS := &stubSynthesizer{err: errors.New("quota exceeded")}
	fallbackS := &stubSynthesizer{}

	_, tts := NewFailoverPair(&stubTranscriber{}, primaryS, &stubTranscriber{}, fallbackS, "fallback_voice", "fallback_model")

	if _, err := tts.Synthesize(ctx, "hello", VoiceParams{VoiceID: "eleven_voice", ModelID: "eleven_model"}); err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	if fallbackS.seen.VoiceID != "fallback_voice" {
		t.Fatalf("fallback voice = %q, want %q", fallbackS.seen.VoiceID, "fallback_voice")
	}
	if fallbackS.seen.ModelID != "fallback_model" {
		t.Fatalf("fallback model = %q, want %q", fallbackS.seen.ModelID, "fallback_model")
	}
}

func TestFailoverPairReturnsCombinedErrorWhenBothFail(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")

	stt, tts := NewFailoverPair(
		&stubTranscriber{err: primaryErr},
		&stubSynthesizer{err: primaryErr},
		&stubTranscriber{err: fallbackErr},
		&stubSynthesizer{err: fallbackErr},
		"", "",
	)
	if _, err := stt.Transcribe(ctx, []byte("audio"), "wav"); !errors.Is(err, fallbackErr) {
		t.Fatalf("Transcribe() error = %v, want wrapped fallback error", err)
	}
	if _, err := tts.Synthesize(ctx, "hello", VoiceParams{}); !errors.Is(err, fallbackErr) {
		t.Fatalf("Synthesize() error = %v, want wrapped fallback error", err)
	}
}

func TestFailoverPairDoesNotFallBackOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fallbackT := &stubTranscriber{text: "x"}
	stt, _ := NewFailoverPair(&stubTranscriber{err: context.Canceled}, &stubSynthesizer{}, fallbackT, &stubSynthesizer{}, "", "")
	if _, err := stt.Transcribe(ctx, []byte("audio"), "wav"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Transcribe() error = %v, want context.Canceled", err)
	}
	if fallbackT.calls != 0 {
		t.Fatalf("fallback calls = %d, want 0", fallbackT.calls)
	}
}

type stubTranscriber struct {
	calls int
	text  string
	err   error
}

func (s *stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubSynthesizer struct {
	calls int
	seen  VoiceParams
	err   error
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string, params VoiceParams) (Speech, error) {
	s.calls++
	s.seen = params
	if s.err != nil {
		return Speech{}, s.err
	}
	return Speech{Audio: []byte(text), Format: "mock_text_bytes"}, nil
}
