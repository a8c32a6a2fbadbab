// Package pipeline runs a single uploaded audio clip through validation,
// staging, transcoding and transcription. Every file a run creates is
// removed before Process returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ent0n29/dispatchdesk/internal/apperror"
	"github.com/ent0n29/dispatchdesk/internal/audio"
	"github.com/ent0n29/dispatchdesk/internal/observability"
	"github.com/ent0n29/dispatchdesk/internal/policy"
	"github.com/ent0n29/dispatchdesk/internal/voice"
)

type Stage string

const (
	StageReceived    Stage = "received"
	StageValidated   Stage = "validated"
	StageStaged      Stage = "staged"
	StageTranscoded  Stage = "transcoded"
	StageTranscribed Stage = "transcribed"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

const (
	DefaultMaxBytes          = 5 << 20
	DefaultCapabilityTimeout = 30 * time.Second
)

var DefaultFormats = []string{"wav", "mp3", "ogg", "webm", "m4a"}

// Failure reports the stage that could not be reached.
type Failure struct {
	Stage Stage
	Err   *apperror.Error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Upload is one received audio clip.
type Upload struct {
	SessionID string
	Filename  string
	Data      []byte
}

// Result describes a completed run.
type Result struct {
	Transcript   string
	ArtifactName string
	Stages       []Stage
	Durations    map[Stage]time.Duration
}

type Config struct {
	StagingDir        string
	MaxBytes          int64
	AllowedFormats    []string
	CapabilityTimeout time.Duration
}

type Pipeline struct {
	cfg         Config
	allowed     map[string]struct{}
	transcoder  audio.Transcoder
	transcriber voice.Transcriber
	metrics     *observability.Metrics
	logger      *slog.Logger
	newID       func() string
}

// New prepares the staging directory and returns a pipeline. metrics and
// logger may be nil.
func New(cfg Config, transcoder audio.Transcoder, transcriber voice.Transcriber, metrics *observability.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if transcoder == nil {
		return nil, errors.New("pipeline requires a transcoder")
	}
	if transcriber == nil {
		return nil, errors.New("pipeline requires a transcriber")
	}
	if strings.TrimSpace(cfg.StagingDir) == "" {
		cfg.StagingDir = "uploads"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if len(cfg.AllowedFormats) == 0 {
		cfg.AllowedFormats = DefaultFormats
	}
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = DefaultCapabilityTimeout
	}
	if err := os.MkdirAll(cfg.StagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedFormats))
	for _, f := range cfg.AllowedFormats {
		f = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
		if f != "" {
			allowed[f] = struct{}{}
		}
	}

	return &Pipeline{
		cfg:         cfg,
		allowed:     allowed,
		transcoder:  transcoder,
		transcriber: transcriber,
		metrics:     metrics,
		logger:      logger,
		newID:       func() string { return uuid.NewString() },
	}, nil
}

// MaxBytes is the largest clip Process accepts.
func (p *Pipeline) MaxBytes() int64 { return p.cfg.MaxBytes }

// Process takes up through every stage once. The first failing stage ends the
// run with a *Failure.
func (p *Pipeline) Process(ctx context.Context, up Upload) (Result, error) {
	res := Result{
		Stages:    []Stage{StageReceived},
		Durations: make(map[Stage]time.Duration, 4),
	}
	var artifacts []string
	defer func() {
		for _, path := range artifacts {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				p.logger.Error("staged artifact cleanup failed", "path", path, "error", rmErr)
			}
		}
	}()

	// current is the stage being attempted.
	var current Stage
	fail := func(appErr *apperror.Error) (Result, error) {
		res.Stages = append(res.Stages, StageFailed)
		outcome := "error"
		if errors.Is(appErr, context.DeadlineExceeded) {
			outcome = "timeout"
		} else if appErr.Kind == apperror.KindValidation {
			outcome = "rejected"
		}
		p.metrics.ObservePipelineOutcome(string(current), outcome)
		p.logger.Warn("audio pipeline failed",
			"session_id", up.SessionID,
			"stage", current,
			"kind", appErr.Kind,
			"reason", appErr.Reason,
			"error", appErr.Err,
		)
		return res, &Failure{Stage: current, Err: appErr}
	}
	advance := func(next Stage, started time.Time) {
		d := time.Since(started)
		res.Stages = append(res.Stages, next)
		res.Durations[next] = d
		p.metrics.ObserveTurnStage(stageMetric(next), d)
	}

	current = StageValidated
	started := time.Now()
	ext, appErr := p.validate(up)
	if appErr != nil {
		return fail(appErr)
	}
	advance(StageValidated, started)

	current = StageStaged
	started = time.Now()
	stagedPath, err := p.stage(up.SessionID, ext, up.Data)
	if stagedPath != "" {
		artifacts = append(artifacts, stagedPath)
	}
	if err != nil {
		return fail(apperror.Internal("Failed to store audio", err))
	}
	res.ArtifactName = filepath.Base(stagedPath)
	advance(StageStaged, started)

	current = StageTranscoded
	started = time.Now()
	wavPath := strings.TrimSuffix(stagedPath, filepath.Ext(stagedPath)) + "_pcm16.wav"
	artifacts = append(artifacts, wavPath)
	tctx, cancel := context.WithTimeout(ctx, p.cfg.CapabilityTimeout)
	err = p.transcoder.Transcode(tctx, stagedPath, wavPath)
	cancel()
	if err != nil {
		return fail(capabilityError("Audio conversion failed", err))
	}
	advance(StageTranscoded, started)

	current = StageTranscribed
	started = time.Now()
	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return fail(apperror.Internal("Failed to read converted audio", err))
	}
	tctx, cancel = context.WithTimeout(ctx, p.cfg.CapabilityTimeout)
	text, err := p.transcriber.Transcribe(tctx, wav, "wav")
	cancel()
	if err != nil {
		p.observeProviderError(err)
		return fail(capabilityError("Transcription failed", err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fail(apperror.Validation("No speech detected in audio"))
	}
	res.Transcript = text
	advance(StageTranscribed, started)

	res.Stages = append(res.Stages, StageDone)
	p.metrics.ObservePipelineOutcome(string(StageDone), "ok")
	redacted, masked := policy.RedactTranscript(text)
	p.logger.Info("audio transcribed",
		"session_id", up.SessionID,
		"artifact", res.ArtifactName,
		"chars", len(text),
		"masked", masked,
		"transcript", truncate(redacted, 100),
	)
	return res, nil
}

func (p *Pipeline) validate(up Upload) (string, *apperror.Error) {
	name := strings.TrimSpace(up.Filename)
	if name == "" {
		return "", apperror.Validation("No audio file selected")
	}
	if len(up.Data) == 0 {
		return "", apperror.Validation("Audio file is empty")
	}
	if int64(len(up.Data)) > p.cfg.MaxBytes {
		return "", apperror.Validation(fmt.Sprintf("Audio file exceeds the %d byte limit", p.cfg.MaxBytes))
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filepath.Base(name))), ".")
	if _, ok := p.allowed[ext]; !ok {
		return "", apperror.Validation(fmt.Sprintf("Unsupported audio format %q", ext))
	}
	return ext, nil
}

// stage writes data under a name no other run can hold. The returned path is
// non-empty whenever a file was created, even on error.
func (p *Pipeline) stage(sessionID, ext string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s.%s", safeName(sessionID), p.newID(), ext)
	path := filepath.Join(p.cfg.StagingDir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return path, err
	}
	return path, f.Close()
}

func (p *Pipeline) observeProviderError(err error) {
	var perr *voice.ProviderError
	if errors.As(err, &perr) {
		p.metrics.ObserveProviderError(perr.Provider, perr.Code)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		p.metrics.ObserveProviderError("stt", "timeout")
		return
	}
	p.metrics.ObserveProviderError("stt", "error")
}

func capabilityError(reason string, err error) *apperror.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Upstream(reason+": timed out", err)
	}
	return apperror.Upstream(reason, err)
}

func stageMetric(s Stage) string {
	switch s {
	case StageValidated:
		return "validate"
	case StageStaged:
		return "stage"
	case StageTranscoded:
		return "transcode"
	case StageTranscribed:
		return "transcribe"
	default:
		return string(s)
	}
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
