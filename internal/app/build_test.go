package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/dispatchdesk/internal/audio"
	"github.com/ent0n29/dispatchdesk/internal/config"
	"github.com/ent0n29/dispatchdesk/internal/protocol"
)

const missingWhisper = "dispatchdesk-test-missing-whisper-cli"

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		BindAddr:              ":0",
		MetricsNamespace:      "dispatchdesk_apptest",
		ShutdownTimeout:       time.Second,
		SessionTimeout:        30 * time.Minute,
		JanitorInterval:       time.Minute,
		RateLimitPerMinute:    10,
		RateLimitPerHour:      100,
		StartSessionPerMinute: 10,
		StartSessionPerHour:   100,
		MaxAudioFileSize:      1 << 20,
		SupportedAudioFormats: []string{"wav", "mp3"},
		StagingDir:            t.TempDir(),
		FFmpegPath:            "dispatchdesk-test-missing-ffmpeg",
		CapabilityTimeout:     5 * time.Second,
		ContextTurns:          5,
		SummaryTurns:          20,
		MaxReplyChars:         600,
		ClassifierMode:        "keyword",
		SynthesisEnabled:      true,
		VoiceProvider:         "mock",
		LocalWhisperCLI:       missingWhisper,
		MockTranscript:        "my car was stolen last night on Elm Street",
		BrainProvider:         "mock",
		DatabaseName:          "aiAgentcaller",
	}
}

func TestBuildWiresOfflineService(t *testing.T) {
	built, err := Build(context.Background(), offlineConfig(t), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer built.Cleanup()

	for capability, want := range map[string]string{
		"database_backend": "in-memory",
		"speech":           "mock",
		"generation":       "mock",
		"classifier":       "keyword",
		"transcoder":       "native",
	} {
		if got := built.Providers[capability]; got != want {
			t.Fatalf("Providers[%s] = %q, want %q", capability, got, want)
		}
	}

	ts := httptest.NewServer(built.API.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/start_session", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var started protocol.StartSessionResponse
	_ = json.NewDecoder(res.Body).Decode(&started)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || started.SessionID == "" {
		t.Fatalf("start_session status = %d body = %+v", res.StatusCode, started)
	}

	wav, err := audio.EncodeWAVPCM16LE([]byte{1, 0, 2, 0, 3, 0, 4, 0}, 16000)
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("session_id", started.SessionID)
	part, _ := mw.CreateFormFile("audio", "clip.wav")
	_, _ = part.Write(wav)
	_ = mw.Close()
	res, err = http.Post(ts.URL+"/process_audio", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var turn protocol.ProcessAudioResponse
	_ = json.NewDecoder(res.Body).Decode(&turn)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("process_audio status = %d", res.StatusCode)
	}
	if turn.Transcript != "my car was stolen last night on Elm Street" || !turn.InDomain || turn.MessageCount != 1 {
		t.Fatalf("turn = %+v", turn)
	}
	if built.Sessions.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", built.Sessions.ActiveCount())
	}

	res, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health protocol.HealthResponse
	_ = json.NewDecoder(res.Body).Decode(&health)
	res.Body.Close()
	if health.Status != protocol.StatusHealthy || health.Services["database"] != "connected" ||
		health.Services["database_backend"] != "in-memory" {
		t.Fatalf("health = %+v", health)
	}
}

func TestBuildRejectsUnknownClassifierMode(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.ClassifierMode = "vibes"
	// Metrics register before the classifier is built, so use a distinct
	// namespace from the wiring test.
	cfg.MetricsNamespace = "dispatchdesk_apptest_classifier"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("Build() expected error for unknown classifier mode")
	}
}

func TestResolveVoiceProviders(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		apiKey   string
		want     string
		wantErr  string
		contains string
	}{
		{name: "mock", mode: "mock", want: "mock"},
		{name: "auto without keys", mode: "auto", want: "mock", contains: "no elevenlabs key"},
		{name: "auto with key", mode: "", apiKey: "k", want: "elevenlabs"},
		{name: "elevenlabs", mode: "ElevenLabs", apiKey: "k", want: "elevenlabs"},
		{name: "elevenlabs without key", mode: "elevenlabs", wantErr: "ELEVENLABS_API_KEY"},
		{name: "local without whisper", mode: "local", wantErr: "whisper.cpp CLI not found"},
		{name: "invalid", mode: "carrier-pigeon", wantErr: "invalid VOICE_PROVIDER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := offlineConfig(t)
			cfg.VoiceProvider = tc.mode
			cfg.ElevenLabsAPIKey = tc.apiKey
			setup, err := resolveVoiceProviders(cfg)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("resolveVoiceProviders() error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveVoiceProviders() error = %v", err)
			}
			if setup.resolvedProvider != tc.want {
				t.Fatalf("provider = %q, want %q", setup.resolvedProvider, tc.want)
			}
			if setup.transcriber == nil || setup.synthesizer == nil {
				t.Fatalf("setup missing capability: %+v", setup)
			}
			if tc.contains != "" && !strings.Contains(setup.detail, tc.contains) {
				t.Fatalf("detail = %q, want it to mention %q", setup.detail, tc.contains)
			}
		})
	}
}

func TestDatabaseKind(t *testing.T) {
	for url, want := range map[string]string{
		"":                           "in-memory",
		"mongodb+srv://cluster/x":    "mongodb",
		"postgresql://localhost/db":  "postgres",
		"sqlite:///var/lib/calls.db": "sqlite",
		"redis://localhost:6379":     "unknown",
	} {
		if got := databaseKind(url); got != want {
			t.Fatalf("databaseKind(%q) = %q, want %q", url, got, want)
		}
	}
}
