// Package respond turns a caller utterance into the desk's reply: a domain
// gate, context-aware generation and optional speech synthesis.
package respond

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/dispatchdesk/internal/brain"
	"github.com/ent0n29/dispatchdesk/internal/observability"
	"github.com/ent0n29/dispatchdesk/internal/session"
	"github.com/ent0n29/dispatchdesk/internal/voice"
)

const (
	RedirectText = "Sorry, that's outside my scope. I'm a Police Bot and can only help with police-related inquiries, emergencies, and public safety matters."
	FallbackText = "I apologize, but I'm experiencing technical difficulties. Please try again or contact us directly for urgent matters."

	DefaultContextWindow = 5
	DefaultMaxReplyChars = 600
	DefaultTimeout       = 30 * time.Second
)

// Reply is the outcome of one turn. Audio is set only when HasAudio is true.
type Reply struct {
	Text        string
	InDomain    bool
	Fallback    bool
	Audio       []byte
	AudioFormat string
	HasAudio    bool
}

type Config struct {
	ContextWindow    int
	MaxReplyChars    int
	Timeout          time.Duration
	SynthesisEnabled bool
	Voice            voice.VoiceParams
}

type Engine struct {
	cfg         Config
	classifier  Classifier
	generator   brain.Generator
	synthesizer voice.Synthesizer
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewEngine wires an engine. synthesizer, metrics and logger may be nil.
func NewEngine(cfg Config, classifier Classifier, generator brain.Generator, synthesizer voice.Synthesizer, metrics *observability.Metrics, logger *slog.Logger) (*Engine, error) {
	if classifier == nil {
		return nil, errors.New("respond engine requires a classifier")
	}
	if generator == nil {
		return nil, errors.New("respond engine requires a generator")
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.MaxReplyChars <= 0 {
		cfg.MaxReplyChars = DefaultMaxReplyChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:         cfg,
		classifier:  classifier,
		generator:   generator,
		synthesizer: synthesizer,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Respond never fails: classifier errors count as in domain, generation
// errors produce FallbackText with no audio and synthesis errors drop the
// audio.
func (e *Engine) Respond(ctx context.Context, utterance string, window []session.Exchange, turnIndex int) Reply {
	utterance = strings.TrimSpace(utterance)
	log := e.logger.With("turn", turnIndex)

	reply := Reply{InDomain: true}
	started := time.Now()
	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	inDomain, err := e.classifier.InDomain(cctx, utterance)
	cancel()
	e.metrics.ObserveTurnStage("classify", time.Since(started))
	if err != nil {
		log.Warn("domain classification failed, treating as in scope", "error", err)
	} else {
		reply.InDomain = inDomain
	}

	switch {
	case !reply.InDomain:
		reply.Text = RedirectText
		e.metrics.ObserveReply("redirect")
	default:
		started = time.Now()
		gctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		text, err := e.generator.Generate(gctx, brain.Request{
			Kind:   brain.KindReply,
			Prompt: replyPrompt(utterance, lastN(window, e.cfg.ContextWindow)),
			Input:  utterance,
		})
		cancel()
		e.metrics.ObserveTurnStage("generate", time.Since(started))
		text = CleanReply(text, e.cfg.MaxReplyChars)
		if err != nil || text == "" {
			if err == nil {
				err = brain.ErrEmptyResponse
			}
			log.Error("reply generation failed", "error", err)
			reply.Text = FallbackText
			reply.Fallback = true
			e.metrics.ObserveReply("fallback")
		} else {
			reply.Text = text
			e.metrics.ObserveReply("generated")
		}
	}

	if !reply.Fallback {
		e.synthesize(ctx, log, &reply)
	}
	return reply
}

func (e *Engine) synthesize(ctx context.Context, log *slog.Logger, reply *Reply) {
	if !e.cfg.SynthesisEnabled || e.synthesizer == nil {
		return
	}
	text := voice.SanitizeSpeechText(reply.Text)
	if text == "" {
		return
	}
	started := time.Now()
	sctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	speech, err := e.synthesizer.Synthesize(sctx, text, e.cfg.Voice)
	e.metrics.ObserveTurnStage("synthesize", time.Since(started))
	if err != nil {
		log.Warn("speech synthesis failed, replying without audio", "error", err)
		e.observeProviderError(err)
		return
	}
	if len(speech.Audio) == 0 {
		return
	}
	reply.Audio = speech.Audio
	reply.AudioFormat = speech.Format
	reply.HasAudio = true
}

func (e *Engine) observeProviderError(err error) {
	var perr *voice.ProviderError
	switch {
	case errors.As(err, &perr):
		e.metrics.ObserveProviderError(perr.Provider, perr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		e.metrics.ObserveProviderError("tts", "timeout")
	default:
		e.metrics.ObserveProviderError("tts", "error")
	}
}

func lastN(window []session.Exchange, n int) []session.Exchange {
	if len(window) > n {
		return window[len(window)-n:]
	}
	return window
}

var (
	boldMarkup   = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	italicMarkup = regexp.MustCompile(`(^|[\s(])[*_]([^*_\n]+)[*_]`)
	headingStart = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bulletStart  = regexp.MustCompile(`(?m)^\s*[*-]\s+`)
	spaceRun     = regexp.MustCompile(`[ \t]+`)
)

// CleanReply strips markdown emphasis and headings from generated text and
// truncates it to maxChars runes, marking the cut with "...".
func CleanReply(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = boldMarkup.ReplaceAllString(text, "$2")
	text = italicMarkup.ReplaceAllString(text, "$1$2")
	text = headingStart.ReplaceAllString(text, "")
	text = bulletStart.ReplaceAllString(text, "- ")
	text = strings.ReplaceAll(text, "`", "")
	text = spaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		runes := []rune(text)
		cut := maxChars - 3
		if cut < 0 {
			cut = 0
		}
		text = strings.TrimRight(string(runes[:cut]), " ") + "..."
	}
	return text
}
