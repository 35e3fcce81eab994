package audio

import (
	"bytes"
	"fmt"
	"io"

	gowav "github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// decode turns raw audio bytes into mono float32 samples at their native
// sample rate. The canonical 16-bit PCM WAV parser is tried first; anything
// it rejects goes through the general-purpose decoders for WAV variants,
// MP3, OGG Vorbis and FLAC. Returns the decoded samples, the native sample
// rate, and the name of the decoder that succeeded.
func decode(raw []byte) ([]float32, int, string, error) {
	if len(raw) == 0 {
		return nil, 0, "", fmt.Errorf("empty audio data")
	}

	switch sniffFormat(raw) {
	case "wav":
		if samples, rate, err := DecodeWAV(raw); err == nil {
			return samples, rate, "pcm16", nil
		}
		samples, rate, err := decodeWAVFallback(raw)
		if err != nil {
			return nil, 0, "", err
		}
		return samples, rate, "wav", nil
	case "mp3":
		samples, rate, err := decodeMP3(raw)
		if err != nil {
			return nil, 0, "", err
		}
		return samples, rate, "mp3", nil
	case "ogg":
		samples, rate, err := decodeOgg(raw)
		if err != nil {
			return nil, 0, "", err
		}
		return samples, rate, "ogg", nil
	case "flac":
		samples, rate, err := decodeFLAC(raw)
		if err != nil {
			return nil, 0, "", err
		}
		return samples, rate, "flac", nil
	}

	// Unknown magic bytes: try every decoder before giving up. Some encoders
	// prepend metadata (e.g. ID3v2) that defeats simple sniffing.
	if samples, rate, err := decodeMP3(raw); err == nil {
		return samples, rate, "mp3", nil
	}
	if samples, rate, err := decodeOgg(raw); err == nil {
		return samples, rate, "ogg", nil
	}
	if samples, rate, err := decodeFLAC(raw); err == nil {
		return samples, rate, "flac", nil
	}
	if samples, rate, err := decodeWAVFallback(raw); err == nil {
		return samples, rate, "wav", nil
	}

	return nil, 0, "", fmt.Errorf("unrecognized audio format")
}

// sniffFormat identifies the container by magic bytes
func sniffFormat(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// decodeWAVFallback handles WAV variants the canonical parser rejects:
// 24/32-bit PCM, IEEE float, extensible format, extra metadata chunks.
func decodeWAVFallback(raw []byte) ([]float32, int, error) {
	d := gowav.NewDecoder(bytes.NewReader(raw))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav decode failed: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("wav decode produced no samples")
	}

	bitDepth := int(d.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, 0, fmt.Errorf("wav decode produced no samples")
	}

	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = float32(sum / float64(channels))
	}

	return samples, buf.Format.SampleRate, nil
}

// decodeMP3 decodes MPEG audio. go-mp3 always outputs 16-bit stereo PCM,
// so both channels are averaged back down to mono.
func decodeMP3(raw []byte) ([]float32, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode failed: %w", err)
	}

	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode failed: %w", err)
	}

	frames := len(pcm) / 4 // 2 bytes per sample, 2 channels
	if frames == 0 {
		return nil, 0, fmt.Errorf("mp3 decode produced no samples")
	}

	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		left := int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8)
		right := int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8)
		samples[i] = float32((float64(left) + float64(right)) / 2 / 32768)
	}

	return samples, d.SampleRate(), nil
}

// decodeOgg decodes an OGG Vorbis stream
func decodeOgg(raw []byte) ([]float32, int, error) {
	interleaved, format, err := oggvorbis.ReadAll(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("ogg decode failed: %w", err)
	}

	channels := format.Channels
	if channels < 1 {
		channels = 1
	}
	frames := len(interleaved) / channels
	if frames == 0 {
		return nil, 0, fmt.Errorf("ogg decode produced no samples")
	}

	if channels == 1 {
		return interleaved, format.SampleRate, nil
	}

	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(interleaved[i*channels+ch])
		}
		samples[i] = float32(sum / float64(channels))
	}

	return samples, format.SampleRate, nil
}

// decodeFLAC decodes a FLAC stream frame by frame
func decodeFLAC(raw []byte) ([]float32, int, error) {
	stream, err := flac.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("flac decode failed: %w", err)
	}

	info := stream.Info
	channels := int(info.NChannels)
	if channels < 1 {
		channels = 1
	}
	scale := float64(int64(1) << (info.BitsPerSample - 1))

	var samples []float32
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("flac decode failed: %w", err)
		}

		if len(frame.Subframes) == 0 {
			continue
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			var sum float64
			for ch := 0; ch < channels && ch < len(frame.Subframes); ch++ {
				sum += float64(frame.Subframes[ch].Samples[i]) / scale
			}
			samples = append(samples, float32(sum/float64(channels)))
		}
	}

	if len(samples) == 0 {
		return nil, 0, fmt.Errorf("flac decode produced no samples")
	}

	return samples, int(info.SampleRate), nil
}
