package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/dispatchdesk/internal/config"
	"github.com/ent0n29/dispatchdesk/internal/voice"
)

type voiceSetup struct {
	transcriber      voice.Transcriber
	synthesizer      voice.Synthesizer
	resolvedProvider string
	detail           string
}

func resolveVoiceProviders(cfg config.Config) (voiceSetup, error) {
	voiceMode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if voiceMode == "" {
		voiceMode = "auto"
	}

	tryElevenLabs := func() (voiceSetup, bool) {
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			return voiceSetup{}, false
		}
		p := voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
			APIKey:              cfg.ElevenLabsAPIKey,
			BaseURL:             cfg.ElevenLabsBaseURL,
			WSBaseURL:           cfg.ElevenLabsWSBaseURL,
			STTModelID:          cfg.ElevenLabsSTTModel,
			TTSModelID:          cfg.VoiceModelID,
			DefaultOutputFormat: cfg.ElevenLabsTTSOutputFormat,
		})
		return voiceSetup{
			transcriber:      p,
			synthesizer:      p,
			resolvedProvider: "elevenlabs",
			detail:           "elevenlabs batch stt + stream tts",
		}, true
	}

	tryLocal := func(fatal bool) (voiceSetup, bool, error) {
		w, err := voice.NewWhisperCLI(voice.WhisperConfig{
			CLI:       cfg.LocalWhisperCLI,
			ModelPath: cfg.LocalWhisperModelPath,
			Language:  cfg.LocalWhisperLanguage,
			Threads:   cfg.LocalWhisperThreads,
			BeamSize:  cfg.LocalWhisperBeamSize,
			BestOf:    cfg.LocalWhisperBestOf,
		})
		if err != nil {
			if fatal {
				return voiceSetup{}, false, fmt.Errorf("local voice provider init failed: %w", err)
			}
			return voiceSetup{}, false, nil
		}
		return voiceSetup{
			transcriber:      w,
			synthesizer:      voice.NoSynthesizer{},
			resolvedProvider: "local",
			detail:           "local whisper.cpp (no synthesis)",
		}, true, nil
	}

	mock := func(detail string) voiceSetup {
		p := voice.NewMockProvider(cfg.MockTranscript)
		return voiceSetup{
			transcriber:      p,
			synthesizer:      p,
			resolvedProvider: "mock",
			detail:           detail,
		}
	}

	switch voiceMode {
	case "elevenlabs":
		if setup, ok := tryElevenLabs(); ok {
			return setup, nil
		}
		localSetup, hasLocal, err := tryLocal(false)
		if err != nil {
			return voiceSetup{}, err
		}
		if hasLocal {
			localSetup.detail = "local whisper.cpp (elevenlabs unavailable)"
			return localSetup, nil
		}
		return voiceSetup{}, fmt.Errorf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set (and local voice is unavailable)")
	case "local":
		setup, _, err := tryLocal(true)
		return setup, err
	case "mock":
		return mock("mock"), nil
	case "auto":
		elevenSetup, hasEleven := tryElevenLabs()
		localSetup, hasLocal, err := tryLocal(false)
		if err != nil {
			return voiceSetup{}, err
		}

		if hasEleven && hasLocal {
			stt, tts := voice.NewFailoverPair(
				elevenSetup.transcriber,
				elevenSetup.synthesizer,
				localSetup.transcriber,
				localSetup.synthesizer,
				cfg.FallbackVoiceID,
				cfg.FallbackVoiceModelID,
			)
			return voiceSetup{
				transcriber:      stt,
				synthesizer:      tts,
				resolvedProvider: "elevenlabs",
				detail:           "elevenlabs (automatic local whisper fallback)",
			}, nil
		}
		if hasEleven {
			return elevenSetup, nil
		}
		if hasLocal {
			return localSetup, nil
		}
		return mock("mock (no elevenlabs key and local voice unavailable)"), nil
	default:
		return voiceSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|elevenlabs|local|mock)", cfg.VoiceProvider)
	}
}
