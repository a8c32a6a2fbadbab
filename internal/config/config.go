package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the call desk service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	SessionTimeout   time.Duration
	JanitorInterval  time.Duration
	MetricsNamespace string

	RateLimitPerMinute        int
	RateLimitPerHour          int
	StartSessionPerMinute     int
	StartSessionPerHour       int
	MaxAudioFileSize          int64
	SupportedAudioFormats     []string
	StagingDir                string
	FFmpegPath                string
	CapabilityTimeout         time.Duration
	ContextTurns              int
	SummaryTurns              int
	MaxReplyChars             int
	ClassifierMode            string
	SynthesisEnabled          bool
	VoiceID                   string
	VoiceModelID              string
	FallbackVoiceID           string
	FallbackVoiceModelID      string
	VoiceProvider             string
	ElevenLabsAPIKey          string
	ElevenLabsBaseURL         string
	ElevenLabsWSBaseURL       string
	ElevenLabsSTTModel        string
	ElevenLabsTTSOutputFormat string

	LocalWhisperCLI       string
	LocalWhisperModelPath string
	LocalWhisperLanguage  string
	LocalWhisperThreads   int
	LocalWhisperBeamSize  int
	LocalWhisperBestOf    int

	MockTranscript string

	BrainProvider   string
	GeminiAPIKey    string
	GeminiModel     string
	BrainHTTPURL    string
	BrainHTTPStrict bool

	DatabaseURL  string
	DatabaseName string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads environment variables and applies safe defaults. A .env file is
// loaded first when present; APP_ENV_FILE names a different file.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":5000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "dispatchdesk"),
		ShutdownTimeout:  15 * time.Second,
		SessionTimeout:   30 * time.Minute,
		JanitorInterval:  30 * time.Second,

		RateLimitPerMinute:    10,
		RateLimitPerHour:      100,
		StartSessionPerMinute: 10,
		StartSessionPerHour:   100,
		MaxAudioFileSize:      5 << 20,
		SupportedAudioFormats: listFromEnv("SUPPORTED_AUDIO_FORMATS", []string{"wav", "mp3", "ogg", "webm", "m4a"}),
		StagingDir:            envOrDefault("STAGING_DIR", "uploads"),
		FFmpegPath:            envOrDefault("FFMPEG_PATH", "ffmpeg"),
		CapabilityTimeout:     30 * time.Second,
		ContextTurns:          5,
		SummaryTurns:          20,
		MaxReplyChars:         600,
		ClassifierMode:        strings.ToLower(envOrDefault("CLASSIFIER_MODE", "hybrid")),
		SynthesisEnabled:      true,
		VoiceID:               envOrDefault("VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		VoiceModelID:          envOrDefault("VOICE_MODEL_ID", "eleven_multilingual_v2"),
		FallbackVoiceID:       stringsTrimSpace("FALLBACK_VOICE_ID"),
		FallbackVoiceModelID:  stringsTrimSpace("FALLBACK_VOICE_MODEL_ID"),

		VoiceProvider:             strings.ToLower(envOrDefault("VOICE_PROVIDER", "auto")),
		ElevenLabsAPIKey:          stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:         envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsWSBaseURL:       envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsSTTModel:        envOrDefault("ELEVENLABS_STT_MODEL_ID", "scribe_v1"),
		ElevenLabsTTSOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),

		LocalWhisperCLI:       envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperModelPath: envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		LocalWhisperLanguage:  envOrDefault("LOCAL_WHISPER_LANGUAGE", "en"),
		// 0 means "auto" (picked based on CPU count).
		LocalWhisperThreads:  0,
		LocalWhisperBeamSize: 1,
		LocalWhisperBestOf:   1,

		MockTranscript: stringsTrimSpace("MOCK_TRANSCRIPT"),

		BrainProvider: strings.ToLower(envOrDefault("BRAIN_PROVIDER", "auto")),
		GeminiAPIKey:  stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:   envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		BrainHTTPURL:  stringsTrimSpace("BRAIN_HTTP_URL"),

		DatabaseURL:  stringsTrimSpace("DATABASE_URL"),
		DatabaseName: envOrDefault("DATABASE_NAME", "aiAgentcaller"),

		LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		LogFile:   stringsTrimSpace("LOG_FILE"),
	}
	// MONGODB_URL is accepted for deployments that predate DATABASE_URL.
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = stringsTrimSpace("MONGODB_URL")
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionTimeout, err = secondsOrDurationFromEnv("SESSION_TIMEOUT", cfg.SessionTimeout); err != nil {
		return Config{}, err
	}
	if cfg.JanitorInterval, err = durationFromEnv("APP_JANITOR_INTERVAL", cfg.JanitorInterval); err != nil {
		return Config{}, err
	}
	if cfg.CapabilityTimeout, err = durationFromEnv("CAPABILITY_TIMEOUT", cfg.CapabilityTimeout); err != nil {
		return Config{}, err
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute},
		{"RATE_LIMIT_PER_HOUR", &cfg.RateLimitPerHour},
		{"START_SESSION_PER_MINUTE", &cfg.StartSessionPerMinute},
		{"START_SESSION_PER_HOUR", &cfg.StartSessionPerHour},
		{"CONTEXT_TURNS", &cfg.ContextTurns},
		{"SUMMARY_TURNS", &cfg.SummaryTurns},
		{"MAX_REPLY_CHARS", &cfg.MaxReplyChars},
		{"LOCAL_WHISPER_THREADS", &cfg.LocalWhisperThreads},
		{"LOCAL_WHISPER_BEAM_SIZE", &cfg.LocalWhisperBeamSize},
		{"LOCAL_WHISPER_BEST_OF", &cfg.LocalWhisperBestOf},
	}
	for _, it := range ints {
		if *it.dst, err = intFromEnv(it.key, *it.dst); err != nil {
			return Config{}, err
		}
	}
	maxSize, err := intFromEnv("MAX_AUDIO_FILE_SIZE", int(cfg.MaxAudioFileSize))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAudioFileSize = int64(maxSize)

	if cfg.SynthesisEnabled, err = boolFromEnv("SYNTHESIS_ENABLED", cfg.SynthesisEnabled); err != nil {
		return Config{}, err
	}
	if cfg.BrainHTTPStrict, err = boolFromEnv("BRAIN_HTTP_STREAM_STRICT", cfg.BrainHTTPStrict); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionTimeout < 5*time.Second {
		return fmt.Errorf("SESSION_TIMEOUT must be at least 5s")
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("APP_JANITOR_INTERVAL must be positive")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitPerHour <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_PER_HOUR must be positive")
	}
	if c.StartSessionPerMinute <= 0 || c.StartSessionPerHour <= 0 {
		return fmt.Errorf("START_SESSION_PER_MINUTE and START_SESSION_PER_HOUR must be positive")
	}
	if c.MaxAudioFileSize <= 0 {
		return fmt.Errorf("MAX_AUDIO_FILE_SIZE must be positive")
	}
	if len(c.SupportedAudioFormats) == 0 {
		return fmt.Errorf("SUPPORTED_AUDIO_FORMATS must list at least one format")
	}
	if c.CapabilityTimeout <= 0 {
		return fmt.Errorf("CAPABILITY_TIMEOUT must be positive")
	}
	if c.ContextTurns <= 0 || c.SummaryTurns <= 0 {
		return fmt.Errorf("CONTEXT_TURNS and SUMMARY_TURNS must be positive")
	}
	if c.MaxReplyChars < 16 {
		return fmt.Errorf("MAX_REPLY_CHARS must be at least 16")
	}
	switch c.ClassifierMode {
	case "keyword", "llm", "hybrid":
	default:
		return fmt.Errorf("CLASSIFIER_MODE must be keyword, llm or hybrid")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	if c.LocalWhisperThreads < 0 {
		return fmt.Errorf("LOCAL_WHISPER_THREADS must be >= 0")
	}
	if c.LocalWhisperBeamSize <= 0 {
		return fmt.Errorf("LOCAL_WHISPER_BEAM_SIZE must be positive")
	}
	if c.LocalWhisperBestOf <= 0 {
		return fmt.Errorf("LOCAL_WHISPER_BEST_OF must be positive")
	}
	return nil
}

func loadEnvFile() error {
	path := stringsTrimSpace("APP_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(part)), ".")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

// secondsOrDurationFromEnv accepts a bare integer number of seconds or a Go
// duration string.
func secondsOrDurationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: expected seconds or a duration like 30m", key)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
