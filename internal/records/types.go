package records

import (
	"context"
	"time"

	"github.com/ent0n29/dispatchdesk/internal/session"
)

const StatusCompleted = "completed"

// CallRecord is the archived summary of one finished call.
type CallRecord struct {
	ID               string             `json:"id" bson:"-"`
	CallerName       string             `json:"caller_name" bson:"caller_name"`
	CallerEmail      string             `json:"caller_email" bson:"caller_email"`
	Summary          string             `json:"summary" bson:"summary"`
	SessionID        string             `json:"session_id" bson:"session_id"`
	ConversationData []session.Exchange `json:"conversation_data" bson:"conversation_data"`
	Timestamp        time.Time          `json:"timestamp" bson:"timestamp"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	Status           string             `json:"status" bson:"status"`
}

// Store persists call records.
type Store interface {
	// InsertCallRecord stores rec and returns its id.
	InsertCallRecord(ctx context.Context, rec CallRecord) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

func prepare(rec *CallRecord, now time.Time) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Status == "" {
		rec.Status = StatusCompleted
	}
	if rec.ConversationData == nil {
		rec.ConversationData = []session.Exchange{}
	}
}
