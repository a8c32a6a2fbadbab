package respond

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/dispatchdesk/internal/brain"
	"github.com/ent0n29/dispatchdesk/internal/session"
	"github.com/ent0n29/dispatchdesk/internal/voice"
)

type fakeClassifier struct {
	inDomain bool
	err      error
}

func (f fakeClassifier) InDomain(context.Context, string) (bool, error) {
	return f.inDomain, f.err
}

type recordingGenerator struct {
	text  string
	err   error
	block bool
	reqs  []brain.Request
}

func (g *recordingGenerator) Generate(ctx context.Context, req brain.Request) (string, error) {
	g.reqs = append(g.reqs, req)
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.text, g.err
}

type fakeSynth struct {
	err  error
	seen string
}

func (s *fakeSynth) Synthesize(_ context.Context, text string, _ voice.VoiceParams) (voice.Speech, error) {
	s.seen = text
	if s.err != nil {
		return voice.Speech{}, s.err
	}
	return voice.Speech{Audio: []byte("mp3"), Format: "mp3"}, nil
}

func newEngine(t *testing.T, c Classifier, g brain.Generator, s voice.Synthesizer, synth bool) *Engine {
	t.Helper()
	e, err := NewEngine(Config{SynthesisEnabled: synth, Timeout: 100 * time.Millisecond}, c, g, s, nil, nil)
	require.NoError(t, err)
	return e
}

func exchanges(n int) []session.Exchange {
	out := make([]session.Exchange, n)
	for i := range out {
		out[i] = session.Exchange{
			Transcript: "question " + string(rune('A'+i)),
			Response:   "answer " + string(rune('A'+i)),
		}
	}
	return out
}

func TestRespondOutOfDomainRedirectsWithoutGenerating(t *testing.T) {
	gen := &recordingGenerator{text: "should not be used"}
	e := newEngine(t, fakeClassifier{inDomain: false}, gen, nil, false)

	r := e.Respond(context.Background(), "what's a good pizza recipe?", nil, 0)
	require.Equal(t, RedirectText, r.Text)
	require.False(t, r.InDomain)
	require.False(t, r.Fallback)
	require.Empty(t, gen.reqs)
}

func TestRespondClassifierErrorFailsOpen(t *testing.T) {
	gen := &recordingGenerator{text: "Please call 911 if anyone is hurt."}
	e := newEngine(t, fakeClassifier{err: errors.New("llm down")}, gen, nil, false)

	r := e.Respond(context.Background(), "there was a crash", nil, 0)
	require.True(t, r.InDomain)
	require.Equal(t, "Please call 911 if anyone is hurt.", r.Text)
	require.Len(t, gen.reqs, 1)
}

func TestRespondUsesLastFiveExchanges(t *testing.T) {
	gen := &recordingGenerator{text: "ok"}
	e := newEngine(t, fakeClassifier{inDomain: true}, gen, nil, false)

	e.Respond(context.Background(), "my car was stolen", exchanges(7), 7)
	require.Len(t, gen.reqs, 1)
	prompt := gen.reqs[0].Prompt
	require.Equal(t, brain.KindReply, gen.reqs[0].Kind)
	require.NotContains(t, prompt, "question A")
	require.NotContains(t, prompt, "question B")
	for _, want := range []string{"question C", "answer G", `"my car was stolen"`, "call 911"} {
		require.Contains(t, prompt, want)
	}
}

func TestRespondGenerationFailureFallsBack(t *testing.T) {
	cases := map[string]*recordingGenerator{
		"error":   {err: errors.New("quota")},
		"empty":   {text: "   "},
		"timeout": {block: true},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, fakeClassifier{inDomain: true}, gen, nil, false)
			r := e.Respond(context.Background(), "someone broke into my garage", nil, 0)
			require.Equal(t, FallbackText, r.Text)
			require.True(t, r.Fallback)
			require.True(t, r.InDomain)
		})
	}
}

func TestRespondFallbackSkipsSynthesis(t *testing.T) {
	s := &fakeSynth{}
	gen := &recordingGenerator{err: errors.New("quota")}
	e := newEngine(t, fakeClassifier{inDomain: true}, gen, s, true)

	r := e.Respond(context.Background(), "someone broke into my garage", nil, 0)
	require.Equal(t, FallbackText, r.Text)
	require.True(t, r.Fallback)
	require.False(t, r.HasAudio)
	require.Empty(t, r.Audio)
	require.Empty(t, s.seen)
}

func TestRespondSynthesis(t *testing.T) {
	t.Run("attaches audio", func(t *testing.T) {
		s := &fakeSynth{}
		e := newEngine(t, fakeClassifier{inDomain: true}, &recordingGenerator{text: "Stay **safe**."}, s, true)
		r := e.Respond(context.Background(), "crime report", nil, 0)
		require.True(t, r.HasAudio)
		require.Equal(t, []byte("mp3"), r.Audio)
		require.Equal(t, "mp3", r.AudioFormat)
		require.Equal(t, "Stay safe.", s.seen)
	})
	t.Run("failure keeps text", func(t *testing.T) {
		s := &fakeSynth{err: errors.New("tts down")}
		e := newEngine(t, fakeClassifier{inDomain: true}, &recordingGenerator{text: "Noted."}, s, true)
		r := e.Respond(context.Background(), "crime report", nil, 0)
		require.False(t, r.HasAudio)
		require.Nil(t, r.Audio)
		require.Equal(t, "Noted.", r.Text)
	})
	t.Run("disabled", func(t *testing.T) {
		s := &fakeSynth{}
		e := newEngine(t, fakeClassifier{inDomain: true}, &recordingGenerator{text: "Noted."}, s, false)
		r := e.Respond(context.Background(), "crime report", nil, 0)
		require.False(t, r.HasAudio)
		require.Empty(t, s.seen)
	})
}

func TestCleanReply(t *testing.T) {
	require.Equal(t, "Please bring your ID to the station.", CleanReply("**Please** bring your _ID_ to the station.", 600))
	require.Equal(t, "Next steps:\n- file a report", CleanReply("## Next steps:\n* file a report", 600))
	require.Equal(t, "", CleanReply("   ", 600))

	long := strings.Repeat("a", 700)
	got := CleanReply(long, 600)
	require.Len(t, got, 600)
	require.True(t, strings.HasSuffix(got, "..."))
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := NewEngine(Config{}, nil, &recordingGenerator{}, nil, nil, nil)
	require.Error(t, err)
	_, err = NewEngine(Config{}, fakeClassifier{}, nil, nil, nil, nil)
	require.Error(t, err)
}
