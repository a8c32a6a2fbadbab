package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/dispatchdesk/internal/reliability"
)

const providerElevenLabs = "elevenlabs"

type ElevenLabsConfig struct {
	APIKey              string
	BaseURL             string
	WSBaseURL           string
	STTModelID          string
	TTSModelID          string
	DefaultOutputFormat string
	HTTPClient          *http.Client
}

// ElevenLabsProvider implements batch transcription over the REST API and
// synthesis over the text-to-speech stream-input websocket.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
	dialer *websocket.Dialer
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "scribe_v1"
	}
	if strings.TrimSpace(cfg.TTSModelID) == "" {
		cfg.TTSModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.DefaultOutputFormat) == "" {
		cfg.DefaultOutputFormat = "mp3_44100_128"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ElevenLabsProvider{
		cfg:    cfg,
		client: client,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (p *ElevenLabsProvider) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if format == "" {
		format = "wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model_id", p.cfg.STTModelID); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/speech-to-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("xi-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: providerElevenLabs, Code: "transport", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider:  providerElevenLabs,
			Code:      "http_" + strconv.Itoa(resp.StatusCode),
			Retryable: reliability.IsRetryableHTTPStatus(resp.StatusCode),
			Err:       fmt.Errorf("speech-to-text HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b))),
		}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode speech-to-text response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string, params VoiceParams) (Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Speech{}, nil
	}
	voiceID := strings.TrimSpace(params.VoiceID)
	if voiceID == "" {
		return Speech{}, fmt.Errorf("voice_id is required")
	}
	modelID := strings.TrimSpace(params.ModelID)
	if modelID == "" {
		modelID = p.cfg.TTSModelID
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return Speech{}, err
	}
	q := u.Query()
	q.Set("model_id", modelID)
	q.Set("output_format", p.cfg.DefaultOutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return Speech{}, &ProviderError{Provider: providerElevenLabs, Code: "dial", Retryable: true, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	stability, similarity, speed := normalizeVoiceSettings(params)
	// Prime the stream with voice settings, send the text, then close input.
	messages := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        stability,
				"similarity_boost": similarity,
				"speed":            speed,
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return Speech{}, p.streamErr(ctx, "write", err)
		}
	}

	var audio bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && audio.Len() > 0 {
				break
			}
			return Speech{}, p.streamErr(ctx, "read", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			code := asString(raw["message_type"])
			if code == "" {
				code = "error"
			}
			return Speech{}, &ProviderError{
				Provider:  providerElevenLabs,
				Code:      code,
				Retryable: reliability.IsRetryableStreamError(code),
				Err:       errors.New(errMsg),
			}
		}
		if chunk := asString(raw["audio"]); chunk != "" {
			decoded, err := base64.StdEncoding.DecodeString(chunk)
			if err != nil {
				return Speech{}, fmt.Errorf("decode tts audio chunk: %w", err)
			}
			audio.Write(decoded)
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			break
		}
	}

	return Speech{Audio: audio.Bytes(), Format: outputContainer(p.cfg.DefaultOutputFormat)}, nil
}

func (p *ElevenLabsProvider) streamErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &ProviderError{Provider: providerElevenLabs, Code: "stream_" + op, Retryable: true, Err: err}
}

func normalizeVoiceSettings(params VoiceParams) (stability, similarity, speed float64) {
	stability = params.Stability
	if stability <= 0 {
		stability = 0.42
	} else if stability > 1 {
		stability = 1
	}

	similarity = params.SimilarityBoost
	if similarity <= 0 {
		similarity = 0.85
	} else if similarity > 1 {
		similarity = 1
	}

	speed = params.Speed
	if speed <= 0 {
		speed = 1.0
	}
	if speed < 0.7 {
		speed = 0.7
	} else if speed > 1.2 {
		speed = 1.2
	}
	return stability, similarity, speed
}

// outputContainer maps an ElevenLabs output format such as "mp3_44100_128"
// to its container name.
func outputContainer(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if i := strings.IndexByte(format, '_'); i > 0 {
		format = format[:i]
	}
	switch format {
	case "pcm":
		return "pcm16le"
	case "ulaw":
		return "mulaw"
	case "":
		return "mp3"
	default:
		return format
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
