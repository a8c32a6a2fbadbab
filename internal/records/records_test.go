package records

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ent0n29/dispatchdesk/internal/session"
)

func sampleRecord() CallRecord {
	return CallRecord{
		CallerName:  "Dana Reyes",
		CallerEmail: "dana@example.com",
		Summary:     "Caller reported a stolen car on Elm Street.",
		SessionID:   "s-1",
		ConversationData: []session.Exchange{{
			Timestamp:  "2026-10-18T10:00:00Z",
			Transcript: "my car was stolen last night on Elm Street",
			Response:   "I'm sorry to hear that. When did you last see it?",
			AudioFile:  "s-1_abc.wav",
			InDomain:   true,
		}},
	}
}

func TestInMemoryStoreFillsDefaults(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.InsertCallRecord(context.Background(), CallRecord{CallerName: "Anonymous", Summary: "x", SessionID: "s"})
	if err != nil {
		t.Fatalf("InsertCallRecord() error = %v", err)
	}
	if id == "" {
		t.Fatalf("InsertCallRecord() returned empty id")
	}
	got := s.Records()
	if len(got) != 1 {
		t.Fatalf("len(Records()) = %d, want 1", len(got))
	}
	rec := got[0]
	if rec.ID != id || rec.Status != StatusCompleted || rec.Timestamp.IsZero() || rec.CreatedAt.IsZero() {
		t.Fatalf("record = %+v", rec)
	}
	if rec.ConversationData == nil {
		t.Fatalf("ConversationData should be an empty slice, not nil")
	}
}

func TestInMemoryStorePingError(t *testing.T) {
	s := NewInMemoryStore()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	want := errors.New("db down")
	s.SetPingError(want)
	if err := s.Ping(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Ping() error = %v, want %v", err, want)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "calls.db")
	store, err := NewStore(ctx, Config{URL: "sqlite://" + path})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	s, ok := store.(*SQLiteStore)
	if !ok {
		t.Fatalf("NewStore() = %T, want *SQLiteStore", store)
	}
	id, err := s.InsertCallRecord(ctx, sampleRecord())
	if err != nil {
		t.Fatalf("InsertCallRecord() error = %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CallerName != "Dana Reyes" || got.Status != StatusCompleted || got.SessionID != "s-1" {
		t.Fatalf("Get() = %+v", got)
	}
	if len(got.ConversationData) != 1 || got.ConversationData[0].AudioFile != "s-1_abc.wav" || !got.ConversationData[0].InDomain {
		t.Fatalf("conversation = %+v", got.ConversationData)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not persisted")
	}
}

func TestNewStoreEmptyURLIsInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), Config{})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore() = %T, want *InMemoryStore", s)
	}
}

func TestNewStoreRejectsUnknownScheme(t *testing.T) {
	if _, err := NewStore(context.Background(), Config{URL: "redis://localhost:6379"}); err == nil {
		t.Fatalf("NewStore() expected error for unsupported scheme")
	}
	if _, err := NewStore(context.Background(), Config{URL: "sqlite://"}); err == nil {
		t.Fatalf("NewStore() expected error for empty sqlite path")
	}
}

func TestScheme(t *testing.T) {
	cases := map[string]string{
		"mongodb://localhost:27017":             "mongodb",
		"mongodb+srv://user:pw@cluster.example": "mongodb+srv",
		"postgres://u:p@localhost/db":           "postgres",
		"POSTGRESQL://localhost/db":             "postgresql",
		"sqlite://data/calls.db":                "sqlite",
		"not a url":                             "",
	}
	for in, want := range cases {
		if got := scheme(in); got != want {
			t.Errorf("scheme(%q) = %q, want %q", in, got, want)
		}
	}
}
