package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeMalgo     BackendType = "malgo"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeNull      BackendType = "null"
	BackendTypeAuto      BackendType = "auto"
)

// NewHost opens the host for the configured backend name
func NewHost(backend string) (Host, error) {
	switch determineBackend(backend) {
	case BackendTypeMalgo:
		return NewMalgoHost()
	case BackendTypePortAudio:
		return NewPortAudioHost()
	case BackendTypeNull:
		return NewNullHost(NullHostOptions{Realtime: true}), nil
	case BackendTypeAuto:
		return openFirstAvailable()
	default:
		return nil, fmt.Errorf("unknown audio backend: %q (valid: %s)", backend, strings.Join(backendNames(), ", "))
	}
}

// determineBackend normalizes the configured backend name
func determineBackend(backend string) BackendType {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "auto":
		return BackendTypeAuto
	case "malgo", "miniaudio":
		return BackendTypeMalgo
	case "portaudio":
		return BackendTypePortAudio
	case "null", "none":
		return BackendTypeNull
	default:
		return BackendType(backend)
	}
}

// openFirstAvailable tries the device backends in order of preference
func openFirstAvailable() (Host, error) {
	var errs []error
	for _, bt := range []BackendType{BackendTypeMalgo, BackendTypePortAudio} {
		var (
			host Host
			err  error
		)
		switch bt {
		case BackendTypeMalgo:
			host, err = NewMalgoHost()
		case BackendTypePortAudio:
			host, err = NewPortAudioHost()
		}
		if err == nil {
			slog.Debug("Audio backend selected", "backend", bt)
			return host, nil
		}
		slog.Debug("Audio backend unavailable", "backend", bt, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", bt, err))
	}
	return nil, fmt.Errorf("no audio backend available: %w", errors.Join(errs...))
}

// GetAvailableBackends returns the backends that can be selected in configuration
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeAuto, BackendTypeMalgo, BackendTypePortAudio, BackendTypeNull}
}

func backendNames() []string {
	names := make([]string, 0, 4)
	for _, b := range GetAvailableBackends() {
		names = append(names, string(b))
	}
	return names
}
