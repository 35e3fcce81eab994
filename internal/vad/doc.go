// Package vad provides frame-level voice activity detection used to gate
// conditioned audio before transcription. Frames are classified by RMS
// energy with a zero-crossing-rate check that rejects broadband noise
// bursts energetic enough to pass the energy threshold.
package vad
