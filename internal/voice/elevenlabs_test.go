package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestElevenLabsTranscribeSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech-to-text" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if string(b) != "RIFFdata" || hdr.Filename != "audio.wav" {
			t.Errorf("file = %q (%s)", b, hdr.Filename)
		}
		_, _ = w.Write([]byte(`{"text":"  my car was stolen  "}`))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "test-key", BaseURL: srv.URL})
	text, err := p.Transcribe(context.Background(), []byte("RIFFdata"), "wav")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "my car was stolen" {
		t.Fatalf("Transcribe() = %q", text)
	}
}

func TestElevenLabsTranscribeClassifiesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Transcribe(context.Background(), []byte("x"), "mp3")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Transcribe() error = %v, want *ProviderError", err)
	}
	if perr.Code != "http_429" || !perr.Retryable {
		t.Fatalf("ProviderError = %+v", perr)
	}
}

func TestElevenLabsSynthesizeCollectsStreamAudio(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/text-to-speech/voice-1/stream-input") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "mp3_44100_128" {
			t.Errorf("output_format = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sawText bool
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			text, _ := msg["text"].(string)
			if strings.TrimSpace(text) != "" {
				sawText = true
			}
			if text == "" {
				break
			}
		}
		if !sawText {
			t.Errorf("no reply text was streamed")
		}
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("abc"))})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("def"))})
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "k", WSBaseURL: wsURL})
	speech, err := p.Synthesize(context.Background(), "Please stay where you are.", VoiceParams{VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(speech.Audio) != "abcdef" {
		t.Fatalf("audio = %q, want abcdef", speech.Audio)
	}
	if speech.Format != "mp3" {
		t.Fatalf("format = %q, want mp3", speech.Format)
	}
}

func TestElevenLabsSynthesizeRequiresVoice(t *testing.T) {
	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "k"})
	if _, err := p.Synthesize(context.Background(), "hello", VoiceParams{}); err == nil {
		t.Fatalf("Synthesize() expected error without voice id")
	}
}

func TestMockProviderIsDeterministic(t *testing.T) {
	p := NewMockProvider("")
	text, err := p.Transcribe(context.Background(), []byte{1}, "wav")
	if err != nil || text != DefaultMockTranscript {
		t.Fatalf("Transcribe() = %q, %v", text, err)
	}
	if text, _ := p.Transcribe(context.Background(), nil, "wav"); text != "" {
		t.Fatalf("Transcribe(empty) = %q, want empty", text)
	}
	speech, err := p.Synthesize(context.Background(), "hi", VoiceParams{})
	if err != nil || string(speech.Audio) != "hi" {
		t.Fatalf("Synthesize() = %+v, %v", speech, err)
	}
}
