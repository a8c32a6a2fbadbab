package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by a transcoder that cannot read the
// source container.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Transcoder converts the audio file at src into a mono 16-bit PCM WAV file at
// dst. dst must not exist.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// NativeTranscoder handles WAV and MP3 input in-process.
type NativeTranscoder struct {
	SampleRate int
}

func NewNativeTranscoder() NativeTranscoder {
	return NativeTranscoder{SampleRate: CanonicalSampleRate}
}

func (n NativeTranscoder) Transcode(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	var (
		pcm        []byte
		sampleRate int
	)
	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(src)), ".") {
	case "wav":
		pcm, sampleRate, err = DecodeWAVPCM16(data)
	case "mp3":
		pcm, sampleRate, err = decodeMP3(data)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(src))
	}
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return fmt.Errorf("decoded audio is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target := n.SampleRate
	if target <= 0 {
		target = CanonicalSampleRate
	}
	return WriteWAVPCM16LEFile(dst, ResamplePCM16(pcm, sampleRate, target), target)
}

// decodeMP3 returns mono PCM16LE. go-mp3 always yields interleaved stereo.
func decodeMP3(data []byte) ([]byte, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	stereo, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	mono, err := DownmixPCM16(stereo, 2)
	if err != nil {
		return nil, 0, err
	}
	return mono, dec.SampleRate(), nil
}

// FFmpegTranscoder shells out to an ffmpeg binary.
type FFmpegTranscoder struct {
	path       string
	sampleRate int
}

// NewFFmpegTranscoder resolves bin on PATH.
func NewFFmpegTranscoder(bin string) (FFmpegTranscoder, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return FFmpegTranscoder{}, fmt.Errorf("ffmpeg not found (%s): %w", bin, err)
	}
	return FFmpegTranscoder{path: path, sampleRate: CanonicalSampleRate}, nil
}

func (f FFmpegTranscoder) Transcode(ctx context.Context, src, dst string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", src,
		"-ac", "1",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", f.sampleRate),
		"-n",
		dst,
	}
	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 4<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(4<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("ffmpeg failed: %s", detail)
	}
	return nil
}

// Chain tries each transcoder in order until one succeeds. A partially
// written destination is removed before the next attempt.
type Chain []Transcoder

func (c Chain) Transcode(ctx context.Context, src, dst string) error {
	if len(c) == 0 {
		return fmt.Errorf("no transcoder configured")
	}
	var errs []error
	for _, t := range c {
		if t == nil {
			continue
		}
		err := t.Transcode(ctx, src, dst)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		_ = os.Remove(dst)
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}
