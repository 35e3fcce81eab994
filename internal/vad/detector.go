package vad

import (
	"fmt"
	"math"
)

// Detector classifies fixed-length audio frames as voiced or unvoiced
type Detector struct {
	frameSize       int
	energyThreshold float64
}

// FrameResult describes the classification of a single frame
type FrameResult struct {
	Index            int     `json:"index"`
	Energy           float64 `json:"energy"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
	Voiced           bool    `json:"voiced"`
}

// Maximum plausible zero-crossing rate for speech. Fricatives reach roughly
// 0.3; anything above is hiss or impulse noise.
const maxSpeechZCR = 0.5

// NewDetector creates a frame classifier. frameSize is in samples.
func NewDetector(frameSize int, energyThreshold float64) (*Detector, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	if energyThreshold < 0 || energyThreshold > 1 {
		return nil, fmt.Errorf("energy threshold must be between 0 and 1, got %f", energyThreshold)
	}

	return &Detector{
		frameSize:       frameSize,
		energyThreshold: energyThreshold,
	}, nil
}

// Classify evaluates a single frame. Short trailing frames are accepted.
func (d *Detector) Classify(frame []float32) FrameResult {
	energy := frameEnergy(frame)
	zcr := zeroCrossingRate(frame)

	return FrameResult{
		Energy:           energy,
		ZeroCrossingRate: zcr,
		Voiced:           energy >= d.energyThreshold && zcr <= maxSpeechZCR,
	}
}

// Gate partitions samples into frames, classifies each, and returns only the
// voiced frames concatenated in order. When no frame is voiced the full
// input is returned unmodified; the gate never produces an empty signal.
// The second return value is the number of voiced frames (0 means the gate
// was a no-op).
func (d *Detector) Gate(samples []float32) ([]float32, int) {
	if len(samples) == 0 {
		return samples, 0
	}

	voiced := make([]float32, 0, len(samples))
	voicedFrames := 0

	for offset := 0; offset < len(samples); offset += d.frameSize {
		end := offset + d.frameSize
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[offset:end]

		if d.Classify(frame).Voiced {
			voiced = append(voiced, frame...)
			voicedFrames++
		}
	}

	if voicedFrames == 0 {
		return samples, 0
	}
	return voiced, voicedFrames
}

// FrameSize returns the frame length in samples
func (d *Detector) FrameSize() int {
	return d.frameSize
}

func frameEnergy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func zeroCrossingRate(frame []float32) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}
