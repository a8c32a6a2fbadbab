package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/dispatchdesk/internal/archive"
	"github.com/ent0n29/dispatchdesk/internal/audio"
	"github.com/ent0n29/dispatchdesk/internal/brain"
	"github.com/ent0n29/dispatchdesk/internal/config"
	"github.com/ent0n29/dispatchdesk/internal/httpapi"
	"github.com/ent0n29/dispatchdesk/internal/observability"
	"github.com/ent0n29/dispatchdesk/internal/pipeline"
	"github.com/ent0n29/dispatchdesk/internal/ratelimit"
	"github.com/ent0n29/dispatchdesk/internal/records"
	"github.com/ent0n29/dispatchdesk/internal/respond"
	"github.com/ent0n29/dispatchdesk/internal/session"
	"github.com/ent0n29/dispatchdesk/internal/voice"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Limiter  *ratelimit.Limiter
	Metrics  *observability.Metrics
	// Providers names the resolved backend for each capability.
	Providers map[string]string

	// Cleanup should be called on shutdown to release the records store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := records.NewStore(ctx, records.Config{
		URL:          cfg.DatabaseURL,
		DatabaseName: cfg.DatabaseName,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("records store init failed: %w", err)
	}

	speech, err := resolveVoiceProviders(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	transcoders := audio.Chain{audio.NewNativeTranscoder()}
	transcoderDetail := "native"
	if ff, err := audio.NewFFmpegTranscoder(cfg.FFmpegPath); err == nil {
		transcoders = append(transcoders, ff)
		transcoderDetail = "native + ffmpeg"
	} else {
		logger.Warn("ffmpeg unavailable, only wav and mp3 uploads can be converted", "error", err)
	}

	pipe, err := pipeline.New(pipeline.Config{
		StagingDir:        cfg.StagingDir,
		MaxBytes:          cfg.MaxAudioFileSize,
		AllowedFormats:    cfg.SupportedAudioFormats,
		CapabilityTimeout: cfg.CapabilityTimeout,
	}, transcoders, speech.transcriber, metrics, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	keywords := respond.NewKeywordClassifier(nil)
	generator, err := brain.NewGenerator(ctx, brain.Config{
		Mode:             cfg.BrainProvider,
		GeminiAPIKey:     cfg.GeminiAPIKey,
		GeminiModel:      cfg.GeminiModel,
		HTTPURL:          cfg.BrainHTTPURL,
		HTTPStreamStrict: cfg.BrainHTTPStrict,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("brain init failed: %w", err)
	}
	brainDetail := cfg.BrainProvider
	if mock, ok := generator.(*brain.MockGenerator); ok {
		mock.InScope = keywords.Match
		brainDetail = "mock"
	}

	classifier, err := respond.NewClassifier(cfg.ClassifierMode, generator)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engine, err := respond.NewEngine(respond.Config{
		ContextWindow:    cfg.ContextTurns,
		MaxReplyChars:    cfg.MaxReplyChars,
		Timeout:          cfg.CapabilityTimeout,
		SynthesisEnabled: cfg.SynthesisEnabled,
		Voice: voice.VoiceParams{
			VoiceID: cfg.VoiceID,
			ModelID: cfg.VoiceModelID,
		},
	}, classifier, generator, speech.synthesizer, metrics, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	archiver := archive.New(archive.Config{
		SummaryTurns: cfg.SummaryTurns,
		Timeout:      cfg.CapabilityTimeout,
	}, generator, store, logger)

	sessions := session.NewManager(cfg.SessionTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.ObserveSessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
		if n := len(s.Exchanges); n > 0 {
			metrics.DiscardedExchanges.Add(float64(n))
			logger.Warn("session expired before end_session, conversation discarded",
				"session_id", s.ID,
				"discarded_exchanges", n,
			)
		}
	})

	limiter := ratelimit.NewLimiter()

	providers := map[string]string{
		"database_backend": databaseKind(cfg.DatabaseURL),
		"speech":           speech.detail,
		"generation":       brainDetail,
		"classifier":       cfg.ClassifierMode,
		"transcoder":       transcoderDetail,
	}

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:  sessions,
		Limiter:   limiter,
		Pipeline:  pipe,
		Responder: engine,
		Archiver:  archiver,
		Store:     store,
		Metrics:   metrics,
		Logger:    logger,
		Services:  providers,
	})

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Limiter:   limiter,
		Metrics:   metrics,
		Providers: providers,
		Cleanup:   store.Close,
	}, nil
}

func databaseKind(url string) string {
	url = strings.ToLower(strings.TrimSpace(url))
	switch {
	case url == "":
		return "in-memory"
	case strings.HasPrefix(url, "mongodb"):
		return "mongodb"
	case strings.HasPrefix(url, "postgres"):
		return "postgres"
	case strings.HasPrefix(url, "sqlite"):
		return "sqlite"
	default:
		return "unknown"
	}
}
