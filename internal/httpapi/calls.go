package httpapi

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/dispatchdesk/internal/apperror"
	"github.com/ent0n29/dispatchdesk/internal/pipeline"
	"github.com/ent0n29/dispatchdesk/internal/protocol"
	"github.com/ent0n29/dispatchdesk/internal/session"
)

const multipartOverhead = 1 << 20

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.SweepExpired(0)

	sess, err := s.sessions.Create()
	if err != nil {
		s.respondError(w, r, apperror.Internal("Failed to start session", err))
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("created")
	s.logger.Info("session started", "session_id", sess.ID)

	respondJSON(w, http.StatusOK, protocol.StartSessionResponse{
		SessionID: sess.ID,
		Status:    protocol.StatusSessionStarted,
		ExpiresIn: int(s.sessions.Timeout().Seconds()),
	})
}

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	maxBytes := s.pipeline.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, apperror.Validation(fmt.Sprintf("Audio file exceeds the %d byte limit", maxBytes)))
			return
		}
		s.respondError(w, r, apperror.Validation("Expected a multipart form with session_id and audio"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	sess, err := s.lookup(sessionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	_ = s.sessions.Touch(sessionID)

	file, hdr, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, r, apperror.Validation("No audio file provided"))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	_ = file.Close()
	if err != nil {
		s.respondError(w, r, apperror.Internal("Failed to read audio upload", err))
		return
	}

	// The turn runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	res, err := s.pipeline.Process(ctx, pipeline.Upload{
		SessionID: sessionID,
		Filename:  hdr.Filename,
		Data:      data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	window, err := s.sessions.ContextWindow(sessionID, s.cfg.ContextTurns)
	if err != nil {
		s.respondError(w, r, apperror.Validation("Invalid or expired session"))
		return
	}
	reply := s.responder.Respond(ctx, res.Transcript, window, len(sess.Exchanges))

	count, err := s.sessions.AppendExchange(sessionID, session.Exchange{
		Transcript: res.Transcript,
		Response:   reply.Text,
		AudioFile:  res.ArtifactName,
		InDomain:   reply.InDomain,
		Fallback:   reply.Fallback,
	})
	if err != nil {
		s.respondError(w, r, apperror.Validation("Invalid or expired session"))
		return
	}

	out := protocol.ProcessAudioResponse{
		Transcript:   res.Transcript,
		Response:     reply.Text,
		SessionID:    sessionID,
		MessageCount: count,
		HasAudio:     reply.HasAudio,
		InDomain:     reply.InDomain,
	}
	if reply.HasAudio {
		out.AudioResponse = hex.EncodeToString(reply.Audio)
		out.AudioFormat = reply.AudioFormat
	}

	elapsed := time.Since(started)
	s.metrics.ObserveTurnLatency(elapsed)
	s.metrics.ObserveTurnStage("turn_total", elapsed)
	s.logger.Info("audio turn processed",
		"session_id", sessionID,
		"message_count", count,
		"in_domain", reply.InDomain,
		"fallback", reply.Fallback,
		"has_audio", reply.HasAudio,
		"duration_ms", elapsed.Milliseconds(),
	)
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		s.respondError(w, r, apperror.Validation("Failed to read request body"))
		return
	}
	req, err := protocol.ParseEndSessionRequest(raw)
	switch {
	case errors.Is(err, protocol.ErrMissingSessionID):
		s.respondError(w, r, apperror.NotFound("Session not found", err))
		return
	case err != nil:
		s.respondError(w, r, apperror.Validation("Invalid JSON body"))
		return
	}

	// Claim is the single point that takes the session; a concurrent end call
	// loses here and sees not found.
	ended, err := s.sessions.Claim(req.SessionID)
	if err != nil {
		s.respondError(w, r, apperror.NotFound("Session not found", err))
		return
	}
	if len(ended.Exchanges) == 0 {
		s.release(ended)
		s.respondError(w, r, apperror.Validation("No conversation to summarize"))
		return
	}
	ended.Caller = session.CallerInfo{Name: req.CallerName, Email: req.CallerEmail}

	ctx := context.WithoutCancel(r.Context())
	result, err := s.archiver.Finalize(ctx, *ended, req.CallerName, req.CallerEmail)
	if err != nil {
		s.release(ended)
		s.respondError(w, r, err)
		return
	}
	if err := s.sessions.Remove(ended.ID); err != nil {
		s.logger.Warn("archived session was already gone", "session_id", ended.ID, "error", err)
	}

	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("ended")
	s.logger.Info("session ended",
		"session_id", ended.ID,
		"record_id", result.RecordID,
		"message_count", len(ended.Exchanges),
	)
	respondJSON(w, http.StatusOK, protocol.EndSessionResponse{
		Summary:      result.Summary,
		RecordID:     result.RecordID,
		Status:       protocol.StatusSessionEnded,
		MessageCount: len(ended.Exchanges),
	})
}

func (s *Server) lookup(sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, apperror.Validation("Invalid or expired session")
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, apperror.Validation("Invalid or expired session")
	}
	return sess, nil
}

func (s *Server) release(ended *session.Session) {
	if err := s.sessions.Release(ended.ID); err != nil {
		s.logger.Error("session could not be reopened after end_session failed",
			"session_id", ended.ID,
			"exchanges", len(ended.Exchanges),
			"error", err,
		)
	}
}
