// Package archive summarizes a finished call and persists it as a call record.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/dispatchdesk/internal/apperror"
	"github.com/ent0n29/dispatchdesk/internal/brain"
	"github.com/ent0n29/dispatchdesk/internal/records"
	"github.com/ent0n29/dispatchdesk/internal/reliability"
	"github.com/ent0n29/dispatchdesk/internal/respond"
	"github.com/ent0n29/dispatchdesk/internal/session"
)

const (
	DefaultSummaryTurns = 20
	DefaultTimeout      = 30 * time.Second
	AnonymousCaller     = "Anonymous"
)

type Result struct {
	RecordID string
	Summary  string
	// Generated is false when the template summary was used.
	Generated bool
}

type Config struct {
	SummaryTurns int
	Timeout      time.Duration
}

type Archiver struct {
	cfg       Config
	generator brain.Generator
	store     records.Store
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg Config, generator brain.Generator, store records.Store, logger *slog.Logger) *Archiver {
	if cfg.SummaryTurns <= 0 {
		cfg.SummaryTurns = DefaultSummaryTurns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		cfg:       cfg,
		generator: generator,
		store:     store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Finalize writes exactly one call record for s. A session with no exchanges
// is rejected before anything is written. Summary generation and the write
// each get Config.Timeout.
func (a *Archiver) Finalize(ctx context.Context, s session.Session, callerName, callerEmail string) (Result, error) {
	if len(s.Exchanges) == 0 {
		return Result{}, apperror.Validation("No conversation to summarize")
	}
	callerName = strings.TrimSpace(callerName)
	if callerName == "" {
		callerName = AnonymousCaller
	}
	callerEmail = strings.TrimSpace(callerEmail)

	summary, generated := a.summarize(ctx, s, callerName)

	now := a.now()
	wctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	id, err := a.store.InsertCallRecord(wctx, records.CallRecord{
		CallerName:       callerName,
		CallerEmail:      callerEmail,
		Summary:          summary,
		SessionID:        s.ID,
		ConversationData: s.Exchanges,
		Timestamp:        now,
		CreatedAt:        now,
		Status:           records.StatusCompleted,
	})
	if err != nil {
		return Result{}, apperror.Persistence("Failed to save call record", err)
	}
	a.logger.Info("call archived",
		"session_id", s.ID,
		"record_id", id,
		"exchanges", len(s.Exchanges),
		"generated_summary", generated,
	)
	return Result{RecordID: id, Summary: summary, Generated: generated}, nil
}

func (a *Archiver) summarize(ctx context.Context, s session.Session, callerName string) (string, bool) {
	if a.generator == nil {
		return TemplateSummary(len(s.Exchanges), callerName), false
	}
	recent := s.Exchanges
	if len(recent) > a.cfg.SummaryTurns {
		recent = recent[len(recent)-a.cfg.SummaryTurns:]
	}
	transcript := respond.FormatTranscript(recent)

	gctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	req := brain.Request{
		Kind:   brain.KindSummary,
		Prompt: summaryPrompt(transcript),
		Input:  transcript,
	}
	text, err := a.generator.Generate(gctx, req)
	if err != nil && reliability.IsRetryable(err) {
		a.logger.Info("summary generation failed, retrying once", "session_id", s.ID, "error", err)
		text, err = a.generator.Generate(gctx, req)
	}
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err == nil {
			err = brain.ErrEmptyResponse
		}
		a.logger.Warn("summary generation failed, using template", "session_id", s.ID, "error", err)
		return TemplateSummary(len(s.Exchanges), callerName), false
	}
	return text, true
}

// TemplateSummary is the summary stored when generation is unavailable.
func TemplateSummary(exchanges int, callerName string) string {
	return fmt.Sprintf("Conversation with %d exchanges for %s. Unable to generate detailed summary due to technical issues.", exchanges, callerName)
}

func summaryPrompt(transcript string) string {
	return fmt.Sprintf(`Summarize this police receptionist conversation professionally:

%s

Provide a concise summary including:
- Main inquiry/issue discussed
- Key details and information provided
- Any follow-up actions needed
- Overall outcome/resolution

Keep it under 200 words and format it professionally.`, transcript)
}
