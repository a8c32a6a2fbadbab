package brain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewGeneratorAutoFallsBackToMock(t *testing.T) {
	g, err := NewGenerator(context.Background(), Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if _, ok := g.(*MockGenerator); !ok {
		t.Fatalf("NewGenerator() = %T, want *MockGenerator", g)
	}
}

func TestNewGeneratorAutoUsesHTTPWhenConfigured(t *testing.T) {
	g, err := NewGenerator(context.Background(), Config{Mode: "", HTTPURL: "http://brain.test/generate"})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if _, ok := g.(*HTTPGenerator); !ok {
		t.Fatalf("NewGenerator() = %T, want *HTTPGenerator", g)
	}
}

func TestNewGeneratorRejectsIncompleteModes(t *testing.T) {
	for _, cfg := range []Config{{Mode: "gemini"}, {Mode: "http"}, {Mode: "carrier-pigeon"}} {
		if _, err := NewGenerator(context.Background(), cfg); err == nil {
			t.Fatalf("NewGenerator(%+v) expected error", cfg)
		}
	}
}

func TestMockGeneratorByKind(t *testing.T) {
	ctx := context.Background()
	g := NewMockGenerator(func(s string) bool { return strings.Contains(s, "stolen") })

	if got, _ := g.Generate(ctx, Request{Kind: KindClassify, Input: "my car was stolen"}); got != "YES" {
		t.Fatalf("classify in-scope = %q, want YES", got)
	}
	if got, _ := g.Generate(ctx, Request{Kind: KindClassify, Input: "best pizza in town?"}); got != "NO" {
		t.Fatalf("classify out-of-scope = %q, want NO", got)
	}

	reply, _ := g.Generate(ctx, Request{Kind: KindReply, Input: "my car was stolen"})
	if !strings.Contains(reply, "more details") {
		t.Fatalf("reply = %q, want a request for details", reply)
	}
	summary, _ := g.Generate(ctx, Request{Kind: KindSummary, Input: "my car was stolen last night on Elm Street"})
	if !strings.Contains(summary, "Elm Street") {
		t.Fatalf("summary = %q, want incident reference", summary)
	}
}

func TestFallbackGeneratorUsesFallback(t *testing.T) {
	g := NewFallbackGenerator(errGenerator{}, okGenerator{text: "fallback"})
	got, err := g.Generate(context.Background(), Request{Kind: KindReply})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "fallback" {
		t.Fatalf("Generate() = %q, want fallback", got)
	}
}

func TestFallbackGeneratorSkipsFallbackOnCanceledContext(t *testing.T) {
	fb := &countingGenerator{text: "fallback"}
	g := NewFallbackGenerator(cancelGenerator{}, fb)
	_, err := g.Generate(context.Background(), Request{Kind: KindReply})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if fb.calls != 0 {
		t.Fatalf("fallback should not be called, calls = %d", fb.calls)
	}
}

func TestHTTPGeneratorJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  Officers are on the way.  "}`))
	}))
	defer srv.Close()

	got, err := NewHTTPGenerator(srv.URL).Generate(context.Background(), Request{Kind: KindReply, Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Officers are on the way." {
		t.Fatalf("Generate() = %q", got)
	}
}

func TestHTTPGeneratorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL).Generate(context.Background(), Request{Kind: KindReply})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Generate() error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable || !se.Retryable() {
		t.Fatalf("StatusError = %+v", se)
	}
}

func TestHTTPGeneratorEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if _, err := NewHTTPGenerator(srv.URL).Generate(context.Background(), Request{}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Generate() error = %v, want ErrEmptyResponse", err)
	}
}

type errGenerator struct{}

func (errGenerator) Generate(context.Context, Request) (string, error) {
	return "", errors.New("boom")
}

type okGenerator struct {
	text string
}

func (g okGenerator) Generate(context.Context, Request) (string, error) {
	return g.text, nil
}

type cancelGenerator struct{}

func (cancelGenerator) Generate(context.Context, Request) (string, error) {
	return "", context.Canceled
}

type countingGenerator struct {
	calls int
	text  string
}

func (g *countingGenerator) Generate(context.Context, Request) (string, error) {
	g.calls++
	return g.text, nil
}
