package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ent0n29/dispatchdesk/internal/apperror"
	"github.com/ent0n29/dispatchdesk/internal/archive"
	"github.com/ent0n29/dispatchdesk/internal/config"
	"github.com/ent0n29/dispatchdesk/internal/observability"
	"github.com/ent0n29/dispatchdesk/internal/pipeline"
	"github.com/ent0n29/dispatchdesk/internal/protocol"
	"github.com/ent0n29/dispatchdesk/internal/ratelimit"
	"github.com/ent0n29/dispatchdesk/internal/respond"
	"github.com/ent0n29/dispatchdesk/internal/session"
)

// AudioProcessor turns one uploaded clip into a transcript.
type AudioProcessor interface {
	Process(ctx context.Context, up pipeline.Upload) (pipeline.Result, error)
	MaxBytes() int64
}

// Responder produces the reply for a transcript.
type Responder interface {
	Respond(ctx context.Context, utterance string, window []session.Exchange, turnIndex int) respond.Reply
}

// Archiver persists a finished call.
type Archiver interface {
	Finalize(ctx context.Context, s session.Session, callerName, callerEmail string) (archive.Result, error)
}

// Pinger reports persistence connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Sessions  *session.Manager
	Limiter   *ratelimit.Limiter
	Pipeline  AudioProcessor
	Responder Responder
	Archiver  Archiver
	Store     Pinger
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	// Services is echoed by /health next to the database connectivity, for
	// example {"database_backend": "mongodb"}. It cannot replace "database".
	Services map[string]string
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	limiter   *ratelimit.Limiter
	pipeline  AudioProcessor
	responder Responder
	archiver  Archiver
	store     Pinger
	metrics   *observability.Metrics
	logger    *slog.Logger
	services  map[string]string
	now       func() time.Time
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter()
	}
	return &Server{
		cfg:       cfg,
		sessions:  deps.Sessions,
		limiter:   limiter,
		pipeline:  deps.Pipeline,
		responder: deps.Responder,
		archiver:  deps.Archiver,
		store:     deps.Store,
		metrics:   deps.Metrics,
		logger:    logger,
		services:  deps.Services,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleLiveness)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.With(s.rateLimit("start_session", s.cfg.StartSessionPerMinute, s.cfg.StartSessionPerHour)).
		Post("/start_session", s.handleStartSession)
	r.With(s.rateLimit("process_audio", s.cfg.RateLimitPerMinute, s.cfg.RateLimitPerHour)).
		Post("/process_audio", s.handleProcessAudio)
	r.Post("/end_session", s.handleEndSession)

	return r
}

func (s *Server) rateLimit(route string, perMinute, perHour int) func(http.Handler) http.Handler {
	return ratelimit.Middleware(s.limiter, perMinute, perHour, func(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
		s.metrics.ObserveRateLimitReject(route, string(d.Scope))
		retry := int(d.RetryAfter().Seconds())
		s.logger.Warn("rate limit exceeded",
			"route", route,
			"client", ratelimit.ClientIP(r),
			"scope", d.Scope,
		)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		respondJSON(w, http.StatusTooManyRequests, protocol.ErrorResponse{
			Error:      d.Reason,
			Code:       string(apperror.KindRateLimited),
			Reason:     string(d.Scope),
			RetryAfter: retry,
		})
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleHealth pings persistence and reports unhealthy with a 500 when the
// store cannot be reached.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err := s.store.Ping(ctx)
		cancel()
		if err != nil {
			s.logger.Error("health check failed", "error", err)
			respondJSON(w, http.StatusInternalServerError, protocol.HealthResponse{
				Status: protocol.StatusUnhealthy,
				Error:  err.Error(),
			})
			return
		}
	}

	services := make(map[string]string, len(s.services)+1)
	for k, v := range s.services {
		services[k] = v
	}
	services["database"] = "connected"
	respondJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:         protocol.StatusHealthy,
		Timestamp:      s.now().Format(time.RFC3339),
		ActiveSessions: s.sessions.ActiveCount(),
		Services:       services,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps err onto its category status and the error payload.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)
	status := apperror.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"kind", kind,
			"error", err,
		)
	}
	var stageErr *pipeline.Failure
	reason := ""
	if errors.As(err, &stageErr) {
		reason = string(stageErr.Stage)
	}
	respondJSON(w, status, protocol.ErrorResponse{
		Error:  apperror.ReasonOf(err),
		Code:   string(kind),
		Reason: reason,
	})
}
