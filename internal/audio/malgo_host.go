package audio

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// miniaudio reports 0 channels for formats that accept any channel count
const malgoAnyChannels = 2

// MalgoHost opens streams through miniaudio
type MalgoHost struct {
	ctx *malgo.AllocatedContext

	mu  sync.Mutex
	ids map[int]malgo.DeviceID
}

// NewMalgoHost initializes a miniaudio context for the platform backend
func NewMalgoHost() (*MalgoHost, error) {
	ctx, err := malgo.InitContext(platformBackends(), malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}
	return &MalgoHost{ctx: ctx, ids: make(map[int]malgo.DeviceID)}, nil
}

func platformBackends() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		// let miniaudio walk its own backend list
		return nil
	}
}

// Name returns the backend type
func (h *MalgoHost) Name() BackendType {
	return BackendTypeMalgo
}

// Devices lists capture devices first, then playback devices, under one index space
func (h *MalgoHost) Devices() ([]DeviceInfo, error) {
	captures, err := h.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	playbacks, err := h.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.ids)

	devices := make([]DeviceInfo, 0, len(captures)+len(playbacks))
	for i := range captures {
		info := h.describe(malgo.Capture, captures[i])
		info.Index = len(devices)
		h.ids[info.Index] = captures[i].ID
		devices = append(devices, info)
	}
	for i := range playbacks {
		info := h.describe(malgo.Playback, playbacks[i])
		info.MaxOutputChannels, info.MaxChannels = info.MaxChannels, 0
		info.Index = len(devices)
		h.ids[info.Index] = playbacks[i].ID
		devices = append(devices, info)
	}
	return devices, nil
}

// describe queries the native formats of a device for channel count and rate
func (h *MalgoHost) describe(kind malgo.DeviceType, d malgo.DeviceInfo) DeviceInfo {
	info := DeviceInfo{
		Name:              d.Name(),
		IsDefault:         d.IsDefault == 1,
		MaxChannels:       malgoAnyChannels,
		DefaultSampleRate: 0,
	}

	full, err := h.ctx.DeviceInfo(kind, d.ID, malgo.Shared)
	if err != nil {
		slog.Debug("Could not query device formats", "device", info.Name, "error", err)
		return info
	}

	maxChannels := 0
	for i := 0; i < int(full.FormatCount) && i < len(full.Formats); i++ {
		f := full.Formats[i]
		if int(f.Channels) > maxChannels {
			maxChannels = int(f.Channels)
		}
		if info.DefaultSampleRate == 0 && f.SampleRate > 0 {
			info.DefaultSampleRate = float64(f.SampleRate)
		}
	}
	if maxChannels > 0 {
		info.MaxChannels = maxChannels
	}
	return info
}

// OpenInput initializes a capture device
func (h *MalgoHost) OpenInput(p StreamParams, cb InputCallback) (Stream, error) {
	s := &malgoStream{}
	cfg, err := h.deviceConfig(malgo.Capture, p, s)
	if err != nil {
		return nil, err
	}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			if s.complete.Load() {
				return
			}
			if cb(pInput) == Complete {
				s.complete.Store(true)
			}
		},
	}
	return h.initDevice(cfg, callbacks, s)
}

// OpenOutput initializes a playback device
func (h *MalgoHost) OpenOutput(p StreamParams, cb OutputCallback) (Stream, error) {
	s := &malgoStream{}
	cfg, err := h.deviceConfig(malgo.Playback, p, s)
	if err != nil {
		return nil, err
	}
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) {
			if s.complete.Load() {
				clear(pOutput)
				return
			}
			if cb(pOutput) == Complete {
				s.complete.Store(true)
			}
		},
	}
	return h.initDevice(cfg, callbacks, s)
}

func (h *MalgoHost) deviceConfig(kind malgo.DeviceType, p StreamParams, s *malgoStream) (malgo.DeviceConfig, error) {
	format, err := malgoFormat(p.Format.SampleFormat)
	if err != nil {
		return malgo.DeviceConfig{}, err
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(p.Format.SampleRate)
	cfg.PeriodSizeInFrames = uint32(p.Format.ChunkFrames)
	cfg.Alsa.NoMMap = 1

	id, ok, err := h.resolve(kind, p.Device)
	if err != nil {
		return malgo.DeviceConfig{}, err
	}
	if ok {
		// the pointer handed to miniaudio must stay valid for the device lifetime
		s.id = id
	}

	switch kind {
	case malgo.Capture:
		cfg.Capture.Format = format
		cfg.Capture.Channels = uint32(p.Format.Channels)
		if ok {
			cfg.Capture.DeviceID = s.id.Pointer()
		}
	case malgo.Playback:
		cfg.Playback.Format = format
		cfg.Playback.Channels = uint32(p.Format.Channels)
		if ok {
			cfg.Playback.DeviceID = s.id.Pointer()
		}
	}
	return cfg, nil
}

// resolve maps a selector to a miniaudio device ID of the right kind
func (h *MalgoHost) resolve(kind malgo.DeviceType, selector string) (malgo.DeviceID, bool, error) {
	if selector == "" || selector == "default" {
		return malgo.DeviceID{}, false, nil
	}
	devices, err := h.Devices()
	if err != nil {
		return malgo.DeviceID{}, false, err
	}

	candidates := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if (kind == malgo.Capture && d.MaxChannels > 0) || (kind == malgo.Playback && d.MaxOutputChannels > 0) {
			candidates = append(candidates, d)
		}
	}
	dev, err := SelectDevice(candidates, selector)
	if err != nil || dev == nil {
		return malgo.DeviceID{}, false, err
	}

	h.mu.Lock()
	id, ok := h.ids[dev.Index]
	h.mu.Unlock()
	return id, ok, nil
}

func (h *MalgoHost) initDevice(cfg malgo.DeviceConfig, callbacks malgo.DeviceCallbacks, s *malgoStream) (Stream, error) {
	device, err := malgo.InitDevice(h.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, err
	}
	s.device = device
	return s, nil
}

// Close releases the miniaudio context
func (h *MalgoHost) Close() error {
	if h.ctx == nil {
		return nil
	}
	err := h.ctx.Uninit()
	h.ctx.Free()
	h.ctx = nil
	return err
}

func malgoFormat(f SampleFormat) (malgo.FormatType, error) {
	switch f {
	case Int16:
		return malgo.FormatS16, nil
	case Int32:
		return malgo.FormatS32, nil
	case Float32:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

type malgoStream struct {
	device   *malgo.Device
	id       malgo.DeviceID
	complete atomic.Bool
	once     sync.Once
}

func (s *malgoStream) Start() error {
	s.complete.Store(false)
	return s.device.Start()
}

func (s *malgoStream) Stop() error {
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	s.once.Do(s.device.Uninit)
	return nil
}
