package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gordonklaus/portaudio"
)

// PortAudioHost opens streams through PortAudio. Typed sample slices delivered by
// PortAudio are viewed as native byte order PCM, which is little-endian on every
// platform PortAudio ships for.
type PortAudioHost struct {
	closeOnce sync.Once
}

// NewPortAudioHost initializes the PortAudio library
func NewPortAudioHost() (*PortAudioHost, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioHost{}, nil
}

// Name returns the backend type
func (h *PortAudioHost) Name() BackendType {
	return BackendTypePortAudio
}

// Devices lists every PortAudio device with its input and output capabilities
func (h *PortAudioHost) Devices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	defaultName := ""
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	out := make([]DeviceInfo, 0, len(devices))
	for i, d := range devices {
		out = append(out, DeviceInfo{
			Index:             i,
			Name:              d.Name,
			MaxChannels:       d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         defaultName != "" && d.Name == defaultName,
		})
	}
	return out, nil
}

// lookup returns the PortAudio device for a selector, or the default for the direction
func (h *PortAudioHost) lookup(selector string, input bool) (*portaudio.DeviceInfo, error) {
	if selector == "" || selector == "default" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	listed, err := h.Devices()
	if err != nil {
		return nil, err
	}
	candidates := make([]DeviceInfo, 0, len(listed))
	for _, d := range listed {
		if (input && d.MaxChannels > 0) || (!input && d.MaxOutputChannels > 0) {
			candidates = append(candidates, d)
		}
	}
	dev, err := SelectDevice(candidates, selector)
	if err != nil {
		return nil, err
	}
	if dev == nil || dev.Index >= len(devices) {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, selector)
	}
	return devices[dev.Index], nil
}

// OpenInput opens an input-only stream
func (h *PortAudioHost) OpenInput(p StreamParams, cb InputCallback) (Stream, error) {
	dev, err := h.lookup(p.Device, true)
	if err != nil {
		return nil, err
	}
	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = p.Format.Channels
	params.Output.Channels = 0
	params.SampleRate = float64(p.Format.SampleRate)
	params.FramesPerBuffer = p.Format.ChunkFrames

	s := &portaudioStream{}
	deliver := func(in []byte) {
		if s.complete.Load() {
			return
		}
		if cb(in) == Complete {
			s.complete.Store(true)
		}
	}

	var callback any
	switch p.Format.SampleFormat {
	case Int16:
		callback = func(in []int16) { deliver(sampleBytes(in)) }
	case Int32:
		callback = func(in []int32) { deliver(sampleBytes(in)) }
	case Float32:
		callback = func(in []float32) { deliver(sampleBytes(in)) }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, p.Format.SampleFormat)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, err
	}
	s.stream = stream
	return s, nil
}

// OpenOutput opens an output-only stream
func (h *PortAudioHost) OpenOutput(p StreamParams, cb OutputCallback) (Stream, error) {
	dev, err := h.lookup(p.Device, false)
	if err != nil {
		return nil, err
	}
	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = p.Format.Channels
	params.Input.Channels = 0
	params.SampleRate = float64(p.Format.SampleRate)
	params.FramesPerBuffer = p.Format.ChunkFrames

	s := &portaudioStream{}
	fill := func(out []byte) {
		if s.complete.Load() {
			clear(out)
			return
		}
		if cb(out) == Complete {
			s.complete.Store(true)
		}
	}

	var callback any
	switch p.Format.SampleFormat {
	case Int16:
		callback = func(out []int16) { fill(sampleBytes(out)) }
	case Int32:
		callback = func(out []int32) { fill(sampleBytes(out)) }
	case Float32:
		callback = func(out []float32) { fill(sampleBytes(out)) }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, p.Format.SampleFormat)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, err
	}
	s.stream = stream
	return s, nil
}

// Close terminates the PortAudio library
func (h *PortAudioHost) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

// sampleBytes views a sample slice as raw bytes without copying
func sampleBytes[T int16 | int32 | float32](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

type portaudioStream struct {
	stream   *portaudio.Stream
	complete atomic.Bool
	once     sync.Once
}

func (s *portaudioStream) Start() error {
	s.complete.Store(false)
	return s.stream.Start()
}

func (s *portaudioStream) Stop() error {
	return s.stream.Stop()
}

func (s *portaudioStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.stream.Close()
	})
	return err
}
