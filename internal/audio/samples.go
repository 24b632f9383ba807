package audio

import (
	"encoding/binary"
	"math"
)

const (
	int16Scale = 32768.0
	int32Scale = 2147483648.0
)

// Normalize decodes little-endian PCM into interleaved floats in [-1, 1].
// A trailing partial frame is dropped. It returns the samples and the frame count.
func Normalize(pcm []byte, f Format) ([]float64, int) {
	fs := f.FrameSize()
	if fs <= 0 {
		return nil, 0
	}
	pcm = pcm[:f.AlignDown(len(pcm))]
	frames := len(pcm) / fs
	out := make([]float64, frames*f.Channels)

	switch f.SampleFormat {
	case Int16:
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / int16Scale
		}
	case Int32:
		for i := range out {
			out[i] = float64(int32(binary.LittleEndian.Uint32(pcm[i*4:]))) / int32Scale
		}
	case Float32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:])))
		}
	default:
		return nil, 0
	}
	return out, frames
}

// Mono averages interleaved samples across channels, one value per frame
func Mono(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// ClampToInt16 clamps a float sample to [-1, 1] and scales it to 16-bit PCM
func ClampToInt16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * 32767))
}
