package audio

import "errors"

var (
	// ErrRecordingInSession is returned when capture is already active
	ErrRecordingInSession = errors.New("recording in session")
	// ErrPlayRecordingInSession is returned when playback is already active
	ErrPlayRecordingInSession = errors.New("playback in session")
	// ErrNoRecordingAvailable is returned when there is nothing in the buffer
	ErrNoRecordingAvailable = errors.New("no recording available")
	// ErrUnsupportedFormat is returned for sample formats the engine does not implement
	ErrUnsupportedFormat = errors.New("unsupported sample format")
	// ErrDeviceOpen wraps failures reported by the host while opening a stream
	ErrDeviceOpen = errors.New("failed to open audio device")
	// ErrDeviceNotFound is returned when a device selector matches nothing
	ErrDeviceNotFound = errors.New("audio device not found")
	// ErrNameRequired is returned when saving without auto-increment and without a name
	ErrNameRequired = errors.New("a file name is required when auto increment is disabled")
)
