// Package audio implements the conditioning pipeline that turns raw uploads
// into normalized mono signals for the speech model: format decoding
// (WAV, MP3, OGG, FLAC), spectral noise suppression, smoothing and
// high-pass filtering, loudness normalization, voice-activity gating, and
// final resampling with duration validation.
package audio
