package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/audiolibrelab/voicerec/internal/logging"
)

// CaptureEngine records an input stream into a SampleBuffer
type CaptureEngine struct {
	host   Host
	format Format
	device string
	buf    *SampleBuffer
	log    *slog.Logger

	mu      sync.Mutex
	stream  Stream
	running atomic.Bool
}

// NewCaptureEngine creates an engine that appends to buf
func NewCaptureEngine(host Host, format Format, device string, buf *SampleBuffer) *CaptureEngine {
	return &CaptureEngine{
		host:   host,
		format: format,
		device: device,
		buf:    buf,
		log:    logging.For("capture"),
	}
}

// Start opens the input stream and clears the buffer. A failed open keeps the
// previous take.
func (c *CaptureEngine) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return ErrRecordingInSession
	}

	stream, err := c.host.OpenInput(StreamParams{Format: c.format, Device: c.device}, c.onInput)
	if err != nil {
		return fmt.Errorf("%w: input %q: %w", ErrDeviceOpen, c.deviceLabel(), err)
	}

	// No chunk is delivered before Start
	c.buf.Reset()
	c.running.Store(true)
	if err := stream.Start(); err != nil {
		c.running.Store(false)
		if cerr := stream.Close(); cerr != nil {
			c.log.Debug("Closing failed input stream", "error", cerr)
		}
		return fmt.Errorf("%w: start input %q: %w", ErrDeviceOpen, c.deviceLabel(), err)
	}
	c.stream = stream

	c.log.Info("Capture started", "device", c.deviceLabel(), "format", c.format.String())
	return nil
}

// onInput runs on the host audio thread
func (c *CaptureEngine) onInput(in []byte) CallbackResult {
	if !c.running.Load() {
		return Complete
	}
	c.buf.Append(in)
	return Continue
}

// Stop closes the input stream. It is a no-op when not recording.
func (c *CaptureEngine) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}

	c.running.Store(false)
	stream := c.stream
	c.stream = nil

	err := errors.Join(stream.Stop(), stream.Close())
	c.log.Info("Capture stopped", "bytes", c.buf.Len(), "duration", c.format.Duration(c.buf.Len()))
	if err != nil {
		return fmt.Errorf("failed to release input stream: %w", err)
	}
	return nil
}

// IsRecording reports whether chunks are being accepted
func (c *CaptureEngine) IsRecording() bool {
	return c.running.Load()
}

// ListDevices returns the input-capable devices of the host
func (c *CaptureEngine) ListDevices() ([]DeviceInfo, error) {
	return ListInputDevices(c.host)
}

func (c *CaptureEngine) deviceLabel() string {
	if c.device == "" {
		return "default"
	}
	return c.device
}
