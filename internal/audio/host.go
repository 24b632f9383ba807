package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// CallbackResult tells the host whether a stream wants more callbacks
type CallbackResult int

const (
	// Continue keeps the stream delivering
	Continue CallbackResult = iota
	// Complete asks the host to stop delivering. Teardown is still done by the owner.
	Complete
)

// InputCallback receives one chunk of captured PCM. The slice is only valid for the call.
type InputCallback func(in []byte) CallbackResult

// OutputCallback must fill out completely; out holds frames*FrameSize bytes
type OutputCallback func(out []byte) CallbackResult

// StreamParams selects the device and PCM layout for a stream
type StreamParams struct {
	Format Format
	// Device is empty or "default" for the host default, a device index, or a name.
	Device string
}

// Stream is an opened host stream
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// DeviceInfo describes one device reported by a host
type DeviceInfo struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	MaxChannels       int     `json:"max_channels"`
	MaxOutputChannels int     `json:"max_output_channels,omitempty"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default,omitempty"`
}

// Host is the audio subsystem the engines open streams against.
// Callbacks run on a host-owned thread and must not block.
type Host interface {
	Name() BackendType
	Devices() ([]DeviceInfo, error)
	OpenInput(p StreamParams, cb InputCallback) (Stream, error)
	OpenOutput(p StreamParams, cb OutputCallback) (Stream, error)
	Close() error
}

// ListInputDevices returns the devices of host that can capture
func ListInputDevices(host Host) ([]DeviceInfo, error) {
	devices, err := host.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", host.Name(), err)
	}
	inputs := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.MaxChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}

// SelectDevice resolves a selector against a device list: default, index, exact name,
// then partial name. A nil result with nil error means the host default.
func SelectDevice(devices []DeviceInfo, selector string) (*DeviceInfo, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || selector == "default" {
		for i := range devices {
			if devices[i].IsDefault {
				return &devices[i], nil
			}
		}
		return nil, nil
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		for i := range devices {
			if devices[i].Index == idx {
				return &devices[i], nil
			}
		}
		return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, idx)
	}

	for i := range devices {
		if devices[i].Name == selector {
			return &devices[i], nil
		}
	}

	lower := strings.ToLower(selector)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return &devices[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %q (%d devices available)", ErrDeviceNotFound, selector, len(devices))
}
