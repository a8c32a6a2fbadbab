package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Status values returned by the call endpoints.
const (
	StatusSessionStarted = "session_started"
	StatusSessionEnded   = "session_ended_and_saved"
	StatusHealthy        = "healthy"
	StatusUnhealthy      = "unhealthy"
)

var ErrMissingSessionID = errors.New("session_id is required")

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	ExpiresIn int    `json:"expires_in"`
}

// ProcessAudioResponse is one completed turn. AudioResponse is the hex
// encoded synthesized reply and is present only when HasAudio is true.
type ProcessAudioResponse struct {
	Transcript    string `json:"transcript"`
	Response      string `json:"response"`
	SessionID     string `json:"session_id"`
	MessageCount  int    `json:"message_count"`
	HasAudio      bool   `json:"has_audio"`
	AudioResponse string `json:"audio_response,omitempty"`
	AudioFormat   string `json:"audio_format,omitempty"`
	InDomain      bool   `json:"in_domain"`
}

type EndSessionRequest struct {
	SessionID   string `json:"session_id"`
	CallerName  string `json:"caller_name,omitempty"`
	CallerEmail string `json:"caller_email,omitempty"`
}

type EndSessionResponse struct {
	Summary      string `json:"summary"`
	RecordID     string `json:"record_id"`
	Status       string `json:"status"`
	MessageCount int    `json:"message_count"`
}

type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
	ActiveSessions int               `json:"active_sessions"`
	Services       map[string]string `json:"services,omitempty"`
	Error          string            `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// ParseEndSessionRequest decodes and trims an end_session body.
func ParseEndSessionRequest(raw []byte) (EndSessionRequest, error) {
	var req EndSessionRequest
	if len(strings.TrimSpace(string(raw))) == 0 {
		return req, ErrMissingSessionID
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return EndSessionRequest{}, fmt.Errorf("invalid end_session body: %w", err)
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.CallerName = strings.TrimSpace(req.CallerName)
	req.CallerEmail = strings.TrimSpace(req.CallerEmail)
	if req.SessionID == "" {
		return EndSessionRequest{}, ErrMissingSessionID
	}
	return req, nil
}
