package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/dispatchdesk/internal/audio"
	"github.com/ent0n29/dispatchdesk/internal/protocol"
)

type options struct {
	baseURL        string
	files          []string
	turns          int
	callerName     string
	callerEmail    string
	outDir         string
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	verbose        bool
}

type clip struct {
	Name string
	Data []byte
}

type report struct {
	SessionID string
	Turns     []protocol.ProcessAudioResponse
	Latencies []time.Duration
	Summary   string
	RecordID  string
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "callreplay: %v\n", err)
		os.Exit(2)
	}
	rep, err := run(context.Background(), &http.Client{Timeout: cfg.turnTimeout}, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "callreplay: %v\n", err)
		os.Exit(1)
	}
	printLatency(os.Stdout, rep.Latencies)
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("callreplay", flag.ContinueOnError)
	var cfg options
	var filesRaw string
	var interTurnMS, turnTimeoutMS int

	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:5000", "service base URL")
	fs.StringVar(&filesRaw, "files", "", "audio files separated by '|' (default: a generated tone)")
	fs.IntVar(&cfg.turns, "turns", 3, "number of process_audio calls")
	fs.StringVar(&cfg.callerName, "caller-name", "", "caller_name sent to end_session")
	fs.StringVar(&cfg.callerEmail, "caller-email", "", "caller_email sent to end_session")
	fs.StringVar(&cfg.outDir, "out", "", "directory to write synthesized replies into (optional)")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 200, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 60000, "per-request timeout in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	for _, part := range strings.Split(filesRaw, "|") {
		if p := strings.TrimSpace(part); p != "" {
			cfg.files = append(cfg.files, p)
		}
	}
	return cfg, nil
}

func loadClips(files []string) ([]clip, error) {
	if len(files) == 0 {
		wav, err := audio.EncodeWAVPCM16LE(tonePCM(440, 16000, time.Second), 16000)
		if err != nil {
			return nil, err
		}
		return []clip{{Name: "tone.wav", Data: wav}}, nil
	}
	out := make([]clip, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(filepath.Ext(path), ".wav") {
			if _, _, err := audio.DecodeWAVPCM16(data); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		out = append(out, clip{Name: filepath.Base(path), Data: data})
	}
	return out, nil
}

func run(ctx context.Context, client *http.Client, cfg options, stdout io.Writer) (report, error) {
	var rep report
	clips, err := loadClips(cfg.files)
	if err != nil {
		return rep, fmt.Errorf("load clips: %w", err)
	}

	var started protocol.StartSessionResponse
	if err := postJSON(ctx, client, cfg.baseURL+"/start_session", nil, &started); err != nil {
		return rep, fmt.Errorf("start session: %w", err)
	}
	rep.SessionID = started.SessionID
	if cfg.verbose {
		fmt.Fprintf(stdout, "callreplay: session=%s expires_in=%ds turns=%d\n", started.SessionID, started.ExpiresIn, cfg.turns)
	}

	for i := 0; i < cfg.turns; i++ {
		c := clips[i%len(clips)]
		t0 := time.Now()
		turn, err := processAudio(ctx, client, cfg.baseURL, started.SessionID, c)
		if err != nil {
			return rep, fmt.Errorf("turn %d: %w", i+1, err)
		}
		elapsed := time.Since(t0)
		rep.Turns = append(rep.Turns, turn)
		rep.Latencies = append(rep.Latencies, elapsed)
		if cfg.verbose {
			fmt.Fprintf(stdout, "callreplay: turn %d/%d %s in_domain=%t latency=%s\n  caller: %s\n  desk:   %s\n",
				i+1, cfg.turns, c.Name, turn.InDomain, elapsed.Round(time.Millisecond), turn.Transcript, turn.Response)
		}
		if err := saveReply(cfg.outDir, i+1, turn); err != nil {
			return rep, fmt.Errorf("turn %d save reply: %w", i+1, err)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	var ended protocol.EndSessionResponse
	endReq := protocol.EndSessionRequest{
		SessionID:   started.SessionID,
		CallerName:  cfg.callerName,
		CallerEmail: cfg.callerEmail,
	}
	if err := postJSON(ctx, client, cfg.baseURL+"/end_session", endReq, &ended); err != nil {
		return rep, fmt.Errorf("end session: %w", err)
	}
	rep.Summary = ended.Summary
	rep.RecordID = ended.RecordID
	if cfg.verbose {
		fmt.Fprintf(stdout, "callreplay: saved record=%s\n  summary: %s\n", ended.RecordID, ended.Summary)
	}
	return rep, nil
}

func processAudio(ctx context.Context, client *http.Client, baseURL, sessionID string, c clip) (protocol.ProcessAudioResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("session_id", sessionID); err != nil {
		return protocol.ProcessAudioResponse{}, err
	}
	part, err := mw.CreateFormFile("audio", c.Name)
	if err != nil {
		return protocol.ProcessAudioResponse{}, err
	}
	if _, err := part.Write(c.Data); err != nil {
		return protocol.ProcessAudioResponse{}, err
	}
	if err := mw.Close(); err != nil {
		return protocol.ProcessAudioResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/process_audio", &body)
	if err != nil {
		return protocol.ProcessAudioResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out protocol.ProcessAudioResponse
	err = do(client, req, &out)
	return out, err
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) error {
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		var apiErr protocol.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("HTTP %d %s: %s", res.StatusCode, apiErr.Code, apiErr.Error)
		}
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func saveReply(dir string, turn int, resp protocol.ProcessAudioResponse) error {
	if dir == "" || !resp.HasAudio || resp.AudioResponse == "" {
		return nil
	}
	data, err := hex.DecodeString(resp.AudioResponse)
	if err != nil {
		return err
	}
	ext := "mp3"
	if f := strings.TrimSpace(resp.AudioFormat); f != "" {
		ext = strings.SplitN(f, "_", 2)[0]
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("turn_%02d.%s", turn, ext)), data, 0o600)
}

func printLatency(w io.Writer, samples []time.Duration) {
	if len(samples) == 0 {
		return
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	fmt.Fprintf(w, "callreplay: turns=%d p50=%s max=%s\n",
		len(sorted), sorted[len(sorted)/2].Round(time.Millisecond), sorted[len(sorted)-1].Round(time.Millisecond))
}

// tonePCM renders a mono 16-bit sine wave.
func tonePCM(freq float64, sampleRate int, d time.Duration) []byte {
	n := int(float64(sampleRate) * d.Seconds())
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(0.3 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}
