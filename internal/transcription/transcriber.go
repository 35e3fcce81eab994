package transcription

import (
	"context"

	"github.com/MyAiAd/whisper-service/internal/audio"
)

// Options controls a single model invocation. Temperature is pinned to zero
// for deterministic decoding; the backend's internal VAD filter and
// condition-on-previous-text are disabled because conditioning already gates
// the signal and chained context is a known hallucination amplifier.
type Options struct {
	Language                  string  `json:"language,omitempty"`
	BeamSize                  int     `json:"beam_size"`
	Temperature               float64 `json:"temperature"`
	VADFilter                 bool    `json:"vad_filter"`
	ConditionOnPreviousText   bool    `json:"condition_on_previous_text"`
	CompressionRatioThreshold float64 `json:"compression_ratio_threshold"`
	LogProbThreshold          float64 `json:"log_prob_threshold"`
	NoSpeechThreshold         float64 `json:"no_speech_threshold"`
}

// DefaultOptions returns the model options used for every request
func DefaultOptions(language string, beamSize int) Options {
	return Options{
		Language:                  language,
		BeamSize:                  beamSize,
		Temperature:               0,
		VADFilter:                 false,
		ConditionOnPreviousText:   false,
		CompressionRatioThreshold: 2.4,
		LogProbThreshold:          -1.0,
		NoSpeechThreshold:         0.6,
	}
}

// Transcriber abstracts the speech recognition backend. Implementations
// must be safe for concurrent use; the handle is constructed once at
// startup and shared across requests.
type Transcriber interface {
	Transcribe(ctx context.Context, signal *audio.Signal, opts Options) (*ModelOutput, error)
}
