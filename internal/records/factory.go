// Package records archives finished calls. The backend is chosen by the
// DATABASE_URL scheme.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/dispatchdesk/internal/reliability"
)

type Config struct {
	URL          string
	DatabaseName string
	// ConnectAttempts bounds the startup ping retries. Zero means 3.
	ConnectAttempts int
	Logger          *slog.Logger
}

// NewStore opens the configured backend and waits for it to answer a ping.
// An empty URL yields an in-memory store.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return NewInMemoryStore(), nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := open(ctx, raw, cfg.DatabaseName)
	if err != nil {
		return nil, err
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := reliability.Backoff{Base: 250 * time.Millisecond, Max: 4 * time.Second}
	err = reliability.Retry(ctx, attempts, backoff, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return store.Ping(pctx)
	}, func(attempt int, wait time.Duration, err error) {
		logger.Warn("records store not ready, retrying", "backend", scheme(raw), "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ping %s: %w", scheme(raw), err)
	}
	return store, nil
}

func open(ctx context.Context, raw, database string) (Store, error) {
	switch scheme(raw) {
	case "mongodb", "mongodb+srv":
		return NewMongoStore(ctx, raw, database)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, raw)
	case "sqlite":
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite DATABASE_URL needs a file path")
		}
		return NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q", scheme(raw))
	}
}

func scheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		if i := strings.Index(raw, "://"); i > 0 {
			return strings.ToLower(raw[:i])
		}
		return ""
	}
	return strings.ToLower(u.Scheme)
}
