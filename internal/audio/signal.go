package audio

import (
	"fmt"
	"math"
)

// Signal is a normalized mono sample sequence ready for the speech model.
// Samples are float32 in [-1, 1] at a fixed sample rate.
type Signal struct {
	Samples    []float32
	SampleRate int

	// QuietWarning is set when the conditioned signal's RMS falls below the
	// configured quiet threshold. The signal is still usable; transcription
	// may simply not produce useful results.
	QuietWarning bool
}

// Duration returns the signal length in seconds
func (s *Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// RMS returns the root-mean-square level of the signal
func (s *Signal) RMS() float64 {
	return rms(s.Samples)
}

// Peak returns the maximum absolute sample amplitude
func (s *Signal) Peak() float64 {
	return peak(s.Samples)
}

// ValidationError indicates the input audio cannot be transcribed: the bytes
// could not be decoded, or the decoded duration is out of bounds. It is
// always a client input error, never a service fault.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func peak(samples []float32) float64 {
	var max float64
	for _, s := range samples {
		abs := math.Abs(float64(s))
		if abs > max {
			max = abs
		}
	}
	return max
}
