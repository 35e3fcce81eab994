package audio

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	denoiseFrameSize = 512
	denoiseHopSize   = denoiseFrameSize / 2

	// Over-subtraction factor and spectral floor for noise suppression.
	// The floor keeps residual musical noise below audibility instead of
	// zeroing bins outright.
	denoiseOverSub = 1.5
	denoiseFloor   = 0.1

	// A noise estimate carrying at least this share of the mean frame
	// energy is the signal itself, not background noise. Subtracting it
	// would flatten every bin to the floor, so suppression is skipped.
	denoiseSkipRatio = 0.5
)

// denoise performs spectral subtraction over overlapping FFT frames.
// When the leading noise window is long enough to profile, the subtraction
// is referenced against the averaged noise spectrum of that window
// (stationary suppression); otherwise the per-bin minimum across all frames
// serves as the noise estimate (non-stationary suppression).
func denoise(samples []float32, sampleRate int) []float32 {
	if len(samples) < denoiseFrameSize {
		return samples
	}

	// Pad half a frame on both ends so overlap-add covers the signal edges
	// at full window weight.
	padded := make([]float64, len(samples)+denoiseFrameSize)
	for i, s := range samples {
		padded[i+denoiseHopSize] = float64(s)
	}

	window := hannWindow(denoiseFrameSize)
	fft := fourier.NewFFT(denoiseFrameSize)
	numBins := denoiseFrameSize/2 + 1
	numFrames := (len(padded)-denoiseFrameSize)/denoiseHopSize + 1

	// Forward transform of every frame.
	spectra := make([][]complex128, numFrames)
	mags := make([][]float64, numFrames)
	frame := make([]float64, denoiseFrameSize)
	for f := 0; f < numFrames; f++ {
		offset := f * denoiseHopSize
		for i := 0; i < denoiseFrameSize; i++ {
			frame[i] = padded[offset+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, frame)
		spectra[f] = coeffs
		mag := make([]float64, numBins)
		for i, c := range coeffs {
			mag[i] = cmplxAbs(c)
		}
		mags[f] = mag
	}

	noiseMag := estimateNoiseSpectrum(samples, sampleRate, mags)

	// Speech that starts right at t=0 leaves its own spectrum in the noise
	// estimate. In that case there is no noise profile to subtract.
	var signalEnergy, noiseEnergy float64
	for f := range mags {
		for _, m := range mags[f] {
			signalEnergy += m * m
		}
	}
	signalEnergy /= float64(numFrames)
	for _, m := range noiseMag {
		noiseEnergy += m * m
	}
	if noiseEnergy > denoiseSkipRatio*signalEnergy {
		return samples
	}

	// Subtract the noise estimate, keeping a fraction of the original
	// magnitude as a floor, and resynthesize by overlap-add.
	out := make([]float64, len(padded))
	for f := 0; f < numFrames; f++ {
		coeffs := spectra[f]
		for i := 0; i < numBins; i++ {
			mag := mags[f][i]
			if mag == 0 {
				continue
			}
			clean := mag - denoiseOverSub*noiseMag[i]
			if floor := denoiseFloor * mag; clean < floor {
				clean = floor
			}
			gain := complex(clean/mag, 0)
			coeffs[i] *= gain
		}
		restored := fft.Sequence(nil, coeffs)
		offset := f * denoiseHopSize
		for i := 0; i < denoiseFrameSize; i++ {
			out[offset+i] += restored[i] / float64(denoiseFrameSize)
		}
	}

	result := make([]float32, len(samples))
	for i := range result {
		result[i] = float32(out[i+denoiseHopSize])
	}
	return result
}

// estimateNoiseSpectrum derives the per-bin noise magnitude reference.
// The fingerprint window is min(300ms, 10% of total duration).
func estimateNoiseSpectrum(samples []float32, sampleRate int, mags [][]float64) []float64 {
	numBins := len(mags[0])
	noiseMag := make([]float64, numBins)

	noiseSamples := sampleRate * 3 / 10
	if tenth := len(samples) / 10; tenth < noiseSamples {
		noiseSamples = tenth
	}
	noiseFrames := 0
	if noiseSamples >= denoiseFrameSize {
		noiseFrames = (noiseSamples-denoiseFrameSize)/denoiseHopSize + 1
	}

	if noiseFrames > 0 {
		// Stationary suppression: average the fingerprint frames.
		for f := 0; f < noiseFrames && f < len(mags); f++ {
			for i := 0; i < numBins; i++ {
				noiseMag[i] += mags[f][i]
			}
		}
		for i := range noiseMag {
			noiseMag[i] /= float64(noiseFrames)
		}
		return noiseMag
	}

	// Non-stationary suppression: per-bin minimum over all frames
	// approximates the noise floor without a fingerprint.
	for i := 0; i < numBins; i++ {
		min := math.Inf(1)
		for f := range mags {
			if mags[f][i] < min {
				min = mags[f][i]
			}
		}
		noiseMag[i] = min
	}
	return noiseMag
}

// medianSmooth applies a length-5 median filter to suppress residual
// broadband noise spikes. Edge samples are passed through unchanged.
func medianSmooth(samples []float32) []float32 {
	const half = 2 // window of 5
	if len(samples) < 2*half+1 {
		return samples
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	window := make([]float32, 2*half+1)
	for i := half; i < len(samples)-half; i++ {
		copy(window, samples[i-half:i+half+1])
		sort.Slice(window, func(a, b int) bool { return window[a] < window[b] })
		result[i] = window[half]
	}
	return result
}

// highpass removes energy below the cutoff with a second-order Butterworth
// filter applied forward and backward, which cancels the phase distortion a
// single pass would introduce.
func highpass(samples []float32, sampleRate int, cutoffHz float64) []float32 {
	if len(samples) < 3 || cutoffHz <= 0 || cutoffHz >= float64(sampleRate)/2 {
		return samples
	}

	k := math.Tan(math.Pi * cutoffHz / float64(sampleRate))
	norm := 1 / (1 + math.Sqrt2*k + k*k)
	b0 := norm
	b1 := -2 * norm
	b2 := norm
	a1 := 2 * (k*k - 1) * norm
	a2 := (1 - math.Sqrt2*k + k*k) * norm

	forward := biquad(samples, b0, b1, b2, a1, a2)
	reverseInPlace(forward)
	backward := biquad(forward, b0, b1, b2, a1, a2)
	reverseInPlace(backward)
	return backward
}

func biquad(samples []float32, b0, b1, b2, a1, a2 float64) []float32 {
	out := make([]float32, len(samples))
	var x1, x2, y1, y2 float64
	for i, s := range samples {
		x := float64(s)
		y := b0*x + b1*x1 + b2*x2 - a1*y1 - a2*y2
		out[i] = float32(y)
		x2, x1 = x1, x
		y2, y1 = y1, y
	}
	return out
}

func reverseInPlace(samples []float32) {
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
}

// minRMSFloor guards against amplifying near-digital-silence into noise
const minRMSFloor = 1e-4

// normalizeRMS rescales the signal to the target RMS loudness, additionally
// scaling down when the rescaled peak would exceed the safety ceiling.
// Returns applied=false when the input is too quiet to rescale safely.
func normalizeRMS(samples []float32, targetRMS, peakCeiling float64) ([]float32, bool) {
	current := rms(samples)
	if current < minRMSFloor {
		return samples, false
	}

	gain := targetRMS / current
	if p := peak(samples); p*gain > peakCeiling {
		gain = peakCeiling / p
	}

	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(float64(s) * gain)
	}
	return result, true
}

// peakNormalize rescales so the maximum absolute amplitude is 1.0.
// Silence is returned unchanged.
func peakNormalize(samples []float32) []float32 {
	p := peak(samples)
	if p == 0 || p == 1 {
		return samples
	}

	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(float64(s) / p)
	}
	return result
}

const resampleTaps = 16

// resample converts the sample rate using windowed-sinc interpolation.
// The sinc cutoff tracks the lower of the two Nyquist frequencies so
// downsampling does not alias.
func resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(math.Round(float64(len(samples)) * ratio))
	if outLen == 0 {
		outLen = 1
	}

	cutoff := 1.0
	if dstRate < srcRate {
		cutoff = ratio
	}

	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		center := float64(i) / ratio
		base := int(math.Floor(center))

		var sum, weightSum float64
		for j := base - resampleTaps + 1; j <= base+resampleTaps; j++ {
			if j < 0 || j >= len(samples) {
				continue
			}
			x := center - float64(j)
			w := sinc(cutoff*x) * cutoff * hannTap(x)
			sum += float64(samples[j]) * w
			weightSum += w
		}
		if weightSum != 0 {
			out[i] = float32(sum / weightSum)
		}
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// hannTap evaluates the Hann window over the resampler's tap span
func hannTap(x float64) float64 {
	if math.Abs(x) >= resampleTaps {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*x/resampleTaps))
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
