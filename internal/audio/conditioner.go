package audio

import (
	"log/slog"
	"math"

	"github.com/MyAiAd/whisper-service/internal/config"
	"github.com/MyAiAd/whisper-service/internal/vad"
)

// Conditioner turns raw uploaded bytes into a normalized mono signal at the
// model's required sample rate. Decoding and the final duration validation
// are fatal; every interior stage is best-effort: a stage that fails passes
// its input through unmodified so a single malfunctioning filter cannot fail
// an otherwise valid request.
type Conditioner struct {
	cfg      config.AudioConfig
	logger   *slog.Logger
	detector *vad.Detector

	// onFallback is invoked with the stage name whenever a stage falls back
	// to pass-through. Used for metrics; may be nil.
	onFallback func(stage string)
}

// NewConditioner creates a conditioner from the audio configuration.
// onFallback may be nil.
func NewConditioner(cfg config.AudioConfig, logger *slog.Logger, onFallback func(stage string)) (*Conditioner, error) {
	frameSize := cfg.TargetSampleRate * cfg.VADFrameMs / 1000
	detector, err := vad.NewDetector(frameSize, cfg.VADEnergyThreshold)
	if err != nil {
		return nil, err
	}

	return &Conditioner{
		cfg:        cfg,
		logger:     logger,
		detector:   detector,
		onFallback: onFallback,
	}, nil
}

// Process conditions raw audio bytes. filenameHint is diagnostic only.
// Returns *ValidationError when the input cannot be decoded or its duration
// is out of bounds; conditioning-quality problems alone never fail a request.
func (c *Conditioner) Process(raw []byte, filenameHint string) (*Signal, error) {
	samples, nativeRate, decoder, err := decode(raw)
	if err != nil {
		c.logger.Warn("Audio decode failed",
			slog.String("filename", filenameHint),
			slog.Int("bytes", len(raw)),
			slog.String("error", err.Error()),
		)
		return nil, newValidationError("corrupt or unsupported audio: %v", err)
	}

	c.logger.Debug("Audio decoded",
		slog.String("filename", filenameHint),
		slog.String("decoder", decoder),
		slog.Int("native_rate", nativeRate),
		slog.Int("samples", len(samples)),
	)

	// Noise handling runs before voice-activity gating so the gate does not
	// misclassify noisy-but-voiced frames as unvoiced.
	if c.cfg.DenoiseEnabled {
		samples, _ = c.runStage("denoise", samples, func(in []float32) []float32 {
			return denoise(in, nativeRate)
		})
	}

	samples, _ = c.runStage("smooth", samples, medianSmooth)

	samples, _ = c.runStage("highpass", samples, func(in []float32) []float32 {
		return highpass(in, nativeRate, c.cfg.HighpassCutoff)
	})

	samples, _ = c.runStage("normalize", samples, func(in []float32) []float32 {
		out, applied := normalizeRMS(in, c.cfg.TargetRMS, c.cfg.PeakCeiling)
		if !applied {
			c.logger.Info("RMS normalization skipped, signal below floor",
				slog.String("filename", filenameHint),
			)
		}
		return out
	})

	samples, _ = c.runStage("vad_gate", samples, func(in []float32) []float32 {
		// The gate operates at the native rate, so size frames accordingly.
		frameSize := nativeRate * c.cfg.VADFrameMs / 1000
		detector := c.detector
		if frameSize != detector.FrameSize() {
			if d, err := vad.NewDetector(frameSize, c.cfg.VADEnergyThreshold); err == nil {
				detector = d
			}
		}
		gated, voicedFrames := detector.Gate(in)
		if voicedFrames == 0 {
			c.logger.Debug("No voiced frames detected, gate passed signal through",
				slog.String("filename", filenameHint),
			)
		}
		return gated
	})

	// Final resample and normalize run last so the output contract holds
	// regardless of what earlier stages did to rate or amplitude. The
	// signal keeps the native rate if the resampler falls back, so the
	// duration stays truthful.
	outputRate := nativeRate
	if nativeRate != c.cfg.TargetSampleRate {
		var resampled bool
		samples, resampled = c.runStage("resample", samples, func(in []float32) []float32 {
			return resample(in, nativeRate, c.cfg.TargetSampleRate)
		})
		if resampled {
			outputRate = c.cfg.TargetSampleRate
		}
	}
	samples = peakNormalize(samples)

	signal := &Signal{Samples: samples, SampleRate: outputRate}

	duration := signal.Duration()
	if duration < c.cfg.MinDuration {
		return nil, newValidationError("audio too short: %.2fs < minimum %.2fs", duration, c.cfg.MinDuration)
	}
	if duration > c.cfg.MaxDuration {
		return nil, newValidationError("audio too long: %.2fs > maximum %.2fs", duration, c.cfg.MaxDuration)
	}

	if level := signal.RMS(); level < c.cfg.QuietRMSThreshold {
		signal.QuietWarning = true
		c.logger.Warn("Audio appears to be silent or very quiet",
			slog.String("filename", filenameHint),
			slog.Float64("rms", level),
		)
	}

	return signal, nil
}

// runStage executes one best-effort conditioning stage. A stage that
// produces an empty or non-finite signal is treated as failed and its input
// is forwarded unmodified; the second return reports whether the stage
// output was kept.
func (c *Conditioner) runStage(name string, in []float32, fn func([]float32) []float32) ([]float32, bool) {
	out := fn(in)
	if len(out) == 0 || !allFinite(out) {
		c.logger.Warn("Conditioning stage failed, passing input through",
			slog.String("stage", name),
		)
		if c.onFallback != nil {
			c.onFallback(name)
		}
		return in, false
	}
	return out, true
}

func allFinite(samples []float32) bool {
	for _, s := range samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
