package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

// SQLiteStore persists call records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			caller_name TEXT NOT NULL,
			caller_email TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL,
			session_id TEXT NOT NULL,
			conversation_data TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'completed',
			timestamp TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_session ON call_records (session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertCallRecord(ctx context.Context, rec CallRecord) (string, error) {
	prepare(&rec, time.Now().UTC())
	rec.ID = uuid.NewString()

	conversation, err := json.Marshal(rec.ConversationData)
	if err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO call_records (id, caller_name, caller_email, summary, session_id, conversation_data, status, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CallerName,
		rec.CallerEmail,
		rec.Summary,
		rec.SessionID,
		string(conversation),
		rec.Status,
		rec.Timestamp.Format(time.RFC3339Nano),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert call record: %w", err)
	}
	return rec.ID, nil
}

// Get loads one record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (CallRecord, error) {
	var (
		rec          CallRecord
		conversation string
		ts, created  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, caller_name, caller_email, summary, session_id, conversation_data, status, timestamp, created_at
		 FROM call_records WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.CallerName, &rec.CallerEmail, &rec.Summary, &rec.SessionID, &conversation, &rec.Status, &ts, &created)
	if err != nil {
		return CallRecord{}, fmt.Errorf("load call record: %w", err)
	}
	if err := json.Unmarshal([]byte(conversation), &rec.ConversationData); err != nil {
		return CallRecord{}, fmt.Errorf("decode conversation: %w", err)
	}
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
