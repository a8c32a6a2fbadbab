package brain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/dispatchdesk/internal/reliability"
)

// HTTPGenerator forwards requests to any JSON, SSE or NDJSON text endpoint.
type HTTPGenerator struct {
	url    string
	client *http.Client
	strict bool
}

// StatusError reports a non-2xx reply from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("brain http status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

func NewHTTPGenerator(url string) *HTTPGenerator {
	return NewHTTPGeneratorWithOptions(url, false)
}

// NewHTTPGeneratorWithOptions builds an HTTP generator. In strict mode a
// streamed line that is not valid JSON fails the call instead of being taken
// as plain text.
func NewHTTPGeneratorWithOptions(url string, strict bool) *HTTPGenerator {
	return &HTTPGenerator{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		strict: strict,
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var text string
	ct := strings.ToLower(res.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		text, err = g.consumeSSE(res.Body)
	case strings.Contains(ct, "application/x-ndjson"):
		text, err = g.consumeNDJSON(res.Body)
	default:
		text, err = g.consumeBody(res.Body)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *HTTPGenerator) consumeBody(body io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return string(b), nil
	}
	return extractText(obj), nil
}

func (g *HTTPGenerator) consumeSSE(body io.Reader) (string, error) {
	return g.consumeLines(body, func(line string) (string, bool) {
		if !strings.HasPrefix(line, "data:") {
			// Comments, event names and ids carry no text.
			return "", false
		}
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	})
}

func (g *HTTPGenerator) consumeNDJSON(body io.Reader) (string, error) {
	return g.consumeLines(body, func(line string) (string, bool) {
		return line, true
	})
}

func (g *HTTPGenerator) consumeLines(body io.Reader, payloadOf func(line string) (string, bool)) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		payload, ok := payloadOf(line)
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			if g.strict {
				return "", fmt.Errorf("invalid stream payload %q: %w", payload, err)
			}
			// Plain text lines keep their leading space so words join naturally.
			if payload == line {
				out.WriteString(strings.TrimRight(raw, "\r\n"))
			} else {
				out.WriteString(payload)
			}
			continue
		}
		out.WriteString(extractText(obj))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message", "response"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
