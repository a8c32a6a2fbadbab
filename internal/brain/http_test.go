package brain

import (
	"strings"
	"testing"
)

func TestHTTPGeneratorConsumeSSE(t *testing.T) {
	g := NewHTTPGeneratorWithOptions("http://example.test", false)
	stream := strings.NewReader(strings.Join([]string{
		": keepalive",
		"",
		"data: {\"delta\":\"Hel\"}",
		"",
		"data: {\"delta\":\"lo\"}",
		"",
		"data: [DONE]",
		"",
	}, "\n"))

	text, err := g.consumeSSE(stream)
	if err != nil {
		t.Fatalf("consumeSSE() error = %v", err)
	}
	if text != "Hello" {
		t.Fatalf("text = %q, want %q", text, "Hello")
	}
}

func TestHTTPGeneratorConsumeSSEStrictInvalidJSON(t *testing.T) {
	g := NewHTTPGeneratorWithOptions("http://example.test", true)
	stream := strings.NewReader("data: {not-json}\n\n")
	if _, err := g.consumeSSE(stream); err == nil {
		t.Fatalf("consumeSSE() expected error for invalid strict payload")
	}
}

func TestHTTPGeneratorConsumeNDJSON(t *testing.T) {
	g := NewHTTPGeneratorWithOptions("http://example.test", false)
	stream := strings.NewReader(strings.Join([]string{
		"{\"delta\":\"Hi\"}",
		" there",
		"[DONE]",
	}, "\n"))

	text, err := g.consumeNDJSON(stream)
	if err != nil {
		t.Fatalf("consumeNDJSON() error = %v", err)
	}
	if text != "Hi there" {
		t.Fatalf("text = %q, want %q", text, "Hi there")
	}
}

func TestHTTPGeneratorConsumeNDJSONStrictInvalidJSON(t *testing.T) {
	g := NewHTTPGeneratorWithOptions("http://example.test", true)
	stream := strings.NewReader("not-json\n")
	if _, err := g.consumeNDJSON(stream); err == nil {
		t.Fatalf("consumeNDJSON() expected error for strict invalid payload")
	}
}
