package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			caller_name TEXT NOT NULL,
			caller_email TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL,
			session_id TEXT NOT NULL,
			conversation_data JSONB NOT NULL DEFAULT '[]'::jsonb,
			status TEXT NOT NULL DEFAULT 'completed',
			timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_session ON call_records (session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_created ON call_records (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertCallRecord(ctx context.Context, rec CallRecord) (string, error) {
	prepare(&rec, time.Now().UTC())
	rec.ID = uuid.NewString()

	conversation, err := json.Marshal(rec.ConversationData)
	if err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_records (id, caller_name, caller_email, summary, session_id, conversation_data, status, timestamp, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID,
		rec.CallerName,
		rec.CallerEmail,
		rec.Summary,
		rec.SessionID,
		conversation,
		rec.Status,
		rec.Timestamp,
		rec.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert call record: %w", err)
	}
	return rec.ID, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
