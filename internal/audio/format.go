package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/voicerec/internal/config"
)

// SampleFormat is the encoding of a single PCM sample in the shared buffer
type SampleFormat string

const (
	Int16   SampleFormat = "int16"
	Int32   SampleFormat = "int32"
	Float32 SampleFormat = "float32"
)

// ParseSampleFormat maps a config value to a SampleFormat
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch SampleFormat(strings.ToLower(strings.TrimSpace(s))) {
	case Int16:
		return Int16, nil
	case Int32:
		return Int32, nil
	case Float32:
		return Float32, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: int16, int32, float32)", ErrUnsupportedFormat, s)
	}
}

// BytesPerSample returns the width of one sample, 0 for unknown formats
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	default:
		return 0
	}
}

// Format describes the PCM layout of a session. It is fixed once a session starts.
type Format struct {
	SampleRate   int          `json:"sample_rate"`
	Channels     int          `json:"channels"`
	ChunkFrames  int          `json:"chunk_frames"`
	SampleFormat SampleFormat `json:"sample_format"`
}

// NewFormat builds a Format from the audio section of the configuration
func NewFormat(cfg config.AudioConfig) (Format, error) {
	sf, err := ParseSampleFormat(cfg.SampleFormat)
	if err != nil {
		return Format{}, err
	}
	f := Format{
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		ChunkFrames:  cfg.ChunkFrames,
		SampleFormat: sf,
	}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}

// Validate checks that every field is usable for opening a stream
func (f Format) Validate() error {
	if f.SampleFormat.BytesPerSample() == 0 {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f.SampleFormat)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be > 0, got: %d", f.Channels)
	}
	if f.ChunkFrames <= 0 {
		return fmt.Errorf("chunk frames must be > 0, got: %d", f.ChunkFrames)
	}
	return nil
}

// FrameSize is the byte size of one sample for every channel
func (f Format) FrameSize() int {
	return f.Channels * f.SampleFormat.BytesPerSample()
}

// ChunkSize is the byte size of one full callback chunk
func (f Format) ChunkSize() int {
	return f.ChunkFrames * f.FrameSize()
}

// BytesPerSecond is the byte rate of the raw stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// AlignDown truncates n to the last whole frame boundary
func (f Format) AlignDown(n int) int {
	fs := f.FrameSize()
	if fs <= 0 || n <= 0 {
		return 0
	}
	return n - n%fs
}

// Duration returns the play time of n bytes of audio
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	frames := f.AlignDown(n) / f.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// FramesFor returns how many frames cover d of audio
func (f Format) FramesFor(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %s, %d frames/chunk", f.SampleRate, f.Channels, f.SampleFormat, f.ChunkFrames)
}
