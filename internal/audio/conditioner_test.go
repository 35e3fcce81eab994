package audio

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/MyAiAd/whisper-service/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAudioConfig() config.AudioConfig {
	return config.Default().Audio
}

func encodeTone(t *testing.T, freq float64, amplitude float32, seconds float64, sampleRate int) []byte {
	t.Helper()
	samples := makeSine(freq, amplitude, int(seconds*float64(sampleRate)), sampleRate)
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("Failed to encode test tone: %v", err)
	}
	return data
}

func TestConditionerProcess(t *testing.T) {
	conditioner, err := NewConditioner(testAudioConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	raw := encodeTone(t, 440, 0.5, 1.0, 16000)

	signal, err := conditioner.Process(raw, "tone.wav")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if signal.SampleRate != 16000 {
		t.Errorf("Expected output at 16000Hz, got %d", signal.SampleRate)
	}

	if d := signal.Duration(); math.Abs(d-1.0) > 0.05 {
		t.Errorf("Expected duration near 1.0s, got %fs", d)
	}

	if p := signal.Peak(); p > 1.0+1e-6 {
		t.Errorf("Expected peak at or below 1.0, got %f", p)
	}

	if signal.QuietWarning {
		t.Errorf("Expected no quiet warning for a loud tone")
	}
}

func TestConditionerResamples(t *testing.T) {
	conditioner, err := NewConditioner(testAudioConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	raw := encodeTone(t, 440, 0.5, 0.5, 8000)

	signal, err := conditioner.Process(raw, "tone8k.wav")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if signal.SampleRate != 16000 {
		t.Errorf("Expected 16000Hz output, got %d", signal.SampleRate)
	}
	if d := signal.Duration(); math.Abs(d-0.5) > 0.05 {
		t.Errorf("Expected duration near 0.5s, got %fs", d)
	}
}

func TestConditionerDurationBounds(t *testing.T) {
	cfg := testAudioConfig()
	cfg.DenoiseEnabled = false // keep the long-clip test fast
	conditioner, err := NewConditioner(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	tests := []struct {
		name     string
		seconds  float64
		errorMsg string
	}{
		{"too short", 0.05, "too short"},
		{"too long", 31.0, "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := encodeTone(t, 440, 0.5, tt.seconds, 16000)

			_, err := conditioner.Process(raw, "clip.wav")
			if err == nil {
				t.Fatalf("Expected validation error but got none")
			}

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}

	t.Run("exact minimum passes", func(t *testing.T) {
		raw := encodeTone(t, 440, 0.5, cfg.MinDuration, 16000)

		if _, err := conditioner.Process(raw, "minimal.wav"); err != nil {
			t.Errorf("Expected clip at the minimum duration to pass, got: %v", err)
		}
	})
}

func TestConditionerRejectsGarbage(t *testing.T) {
	conditioner, err := NewConditioner(testAudioConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	_, err = conditioner.Process([]byte("this is not audio at all, not even close"), "garbage.bin")
	if err == nil {
		t.Fatalf("Expected validation error for garbage input")
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected *ValidationError, got %T", err)
	}
}

func TestConditionerFlagsSilence(t *testing.T) {
	conditioner, err := NewConditioner(testAudioConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	silence := make([]float32, 16000)
	raw, err := EncodeWAV(silence, 16000)
	if err != nil {
		t.Fatalf("Failed to encode silence: %v", err)
	}

	signal, err := conditioner.Process(raw, "silence.wav")
	if err != nil {
		t.Fatalf("Expected silence to condition successfully, got: %v", err)
	}

	if !signal.QuietWarning {
		t.Errorf("Expected quiet warning for silent input")
	}
	if d := signal.Duration(); math.Abs(d-1.0) > 0.05 {
		t.Errorf("Expected VAD gate to pass silence through whole, duration is %fs", d)
	}
}

func TestConditionerStageFallback(t *testing.T) {
	var fallbacks []string
	conditioner, err := NewConditioner(testAudioConfig(), testLogger(), func(stage string) {
		fallbacks = append(fallbacks, stage)
	})
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	in := makeSine(440, 0.5, 16000, 16000)

	t.Run("empty output falls back", func(t *testing.T) {
		out, kept := conditioner.runStage("broken", in, func([]float32) []float32 {
			return nil
		})
		if kept {
			t.Errorf("Expected stage to report fallback on empty output")
		}
		if len(out) != len(in) {
			t.Errorf("Expected input passed through on empty output")
		}
	})

	t.Run("non-finite output falls back", func(t *testing.T) {
		out, kept := conditioner.runStage("nan", in, func(s []float32) []float32 {
			bad := make([]float32, len(s))
			bad[0] = float32(math.NaN())
			return bad
		})
		if kept {
			t.Errorf("Expected stage to report fallback on non-finite output")
		}
		if len(out) != len(in) || out[0] != in[0] {
			t.Errorf("Expected input passed through on non-finite output")
		}
	})

	t.Run("healthy output is kept", func(t *testing.T) {
		out, kept := conditioner.runStage("ok", in, medianSmooth)
		if !kept {
			t.Errorf("Expected healthy stage output to be reported as kept")
		}
		if len(out) != len(in) {
			t.Errorf("Expected healthy stage output to be kept")
		}
	})

	if len(fallbacks) != 2 {
		t.Errorf("Expected 2 fallback callbacks, got %d (%v)", len(fallbacks), fallbacks)
	}
}
