package audio

import (
	"errors"
	"sync"
	"time"
)

var errStreamClosed = errors.New("stream closed")

// NullHostOptions configures a NullHost
type NullHostOptions struct {
	// Realtime drives started streams from a ticker at the chunk cadence: inputs
	// receive silence, outputs are pulled and discarded. Without it streams are
	// driven only through Push and Pull.
	Realtime bool
	// DeviceList overrides the reported devices
	DeviceList []DeviceInfo
	// OpenErr, when set, is returned by every Open call
	OpenErr error
}

// NullHost is an in-process host without audio hardware
type NullHost struct {
	opts NullHostOptions

	mu      sync.Mutex
	inputs  []*NullStream
	outputs []*NullStream
}

// NewNullHost creates a host that never touches a device
func NewNullHost(opts NullHostOptions) *NullHost {
	if opts.DeviceList == nil {
		opts.DeviceList = []DeviceInfo{
			{Index: 0, Name: "Null Input", MaxChannels: 2, DefaultSampleRate: 44100, IsDefault: true},
			{Index: 1, Name: "Null Output", MaxOutputChannels: 2, DefaultSampleRate: 44100},
		}
	}
	return &NullHost{opts: opts}
}

// Name returns the backend type
func (h *NullHost) Name() BackendType {
	return BackendTypeNull
}

// Devices returns the configured device list
func (h *NullHost) Devices() ([]DeviceInfo, error) {
	out := make([]DeviceInfo, len(h.opts.DeviceList))
	copy(out, h.opts.DeviceList)
	return out, nil
}

// OpenInput registers an input stream
func (h *NullHost) OpenInput(p StreamParams, cb InputCallback) (Stream, error) {
	if err := h.openErr(); err != nil {
		return nil, err
	}
	if _, err := h.selectDevice(p.Device, true); err != nil {
		return nil, err
	}
	s := &NullStream{params: p, input: cb, realtime: h.opts.Realtime}
	h.mu.Lock()
	h.inputs = append(h.inputs, s)
	h.mu.Unlock()
	return s, nil
}

// OpenOutput registers an output stream
func (h *NullHost) OpenOutput(p StreamParams, cb OutputCallback) (Stream, error) {
	if err := h.openErr(); err != nil {
		return nil, err
	}
	if _, err := h.selectDevice(p.Device, false); err != nil {
		return nil, err
	}
	s := &NullStream{params: p, output: cb, realtime: h.opts.Realtime}
	h.mu.Lock()
	h.outputs = append(h.outputs, s)
	h.mu.Unlock()
	return s, nil
}

// SetOpenErr makes every later Open call fail with err, or succeed again when nil
func (h *NullHost) SetOpenErr(err error) {
	h.mu.Lock()
	h.opts.OpenErr = err
	h.mu.Unlock()
}

func (h *NullHost) openErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts.OpenErr
}

func (h *NullHost) selectDevice(selector string, input bool) (*DeviceInfo, error) {
	candidates := make([]DeviceInfo, 0, len(h.opts.DeviceList))
	for _, d := range h.opts.DeviceList {
		if (input && d.MaxChannels > 0) || (!input && d.MaxOutputChannels > 0) {
			candidates = append(candidates, d)
		}
	}
	return SelectDevice(candidates, selector)
}

// LastInput returns the most recently opened input stream, or nil
func (h *NullHost) LastInput() *NullStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inputs) == 0 {
		return nil
	}
	return h.inputs[len(h.inputs)-1]
}

// LastOutput returns the most recently opened output stream, or nil
func (h *NullHost) LastOutput() *NullStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.outputs) == 0 {
		return nil
	}
	return h.outputs[len(h.outputs)-1]
}

// OutputsOpened counts output streams opened so far
func (h *NullHost) OutputsOpened() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.outputs)
}

// InputsOpened counts input streams opened so far
func (h *NullHost) InputsOpened() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inputs)
}

// Close stops every stream still running
func (h *NullHost) Close() error {
	h.mu.Lock()
	streams := append(append([]*NullStream(nil), h.inputs...), h.outputs...)
	h.mu.Unlock()
	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

// NullStream is a stream of a NullHost. Callbacks are serialized with Stop and Close,
// so no callback runs after either returns.
type NullStream struct {
	params   StreamParams
	input    InputCallback
	output   OutputCallback
	realtime bool

	cbMu     sync.Mutex
	started  bool
	closed   bool
	complete bool

	pumpStop chan struct{}
	pumpDone chan struct{}
}

// Params returns the parameters the stream was opened with
func (s *NullStream) Params() StreamParams {
	return s.params
}

// Running reports whether the stream is started and not yet closed
func (s *NullStream) Running() bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	return s.started && !s.closed
}

// Closed reports whether Close was called
func (s *NullStream) Closed() bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	return s.closed
}

// Start begins delivery
func (s *NullStream) Start() error {
	s.cbMu.Lock()
	if s.closed {
		s.cbMu.Unlock()
		return errStreamClosed
	}
	s.started = true
	s.complete = false
	s.cbMu.Unlock()

	if s.realtime && s.pumpStop == nil {
		s.pumpStop = make(chan struct{})
		s.pumpDone = make(chan struct{})
		go s.pump(s.pumpStop, s.pumpDone)
	}
	return nil
}

// Stop halts delivery, waiting for an in-flight callback to return
func (s *NullStream) Stop() error {
	if s.pumpStop != nil {
		close(s.pumpStop)
		<-s.pumpDone
		s.pumpStop, s.pumpDone = nil, nil
	}
	s.cbMu.Lock()
	s.started = false
	s.cbMu.Unlock()
	return nil
}

// Close stops the stream and marks it unusable
func (s *NullStream) Close() error {
	_ = s.Stop()
	s.cbMu.Lock()
	s.closed = true
	s.cbMu.Unlock()
	return nil
}

// Push delivers one captured chunk to an input stream. It reports false when the
// stream is not delivering (not started, closed, or completed).
func (s *NullStream) Push(chunk []byte) (CallbackResult, bool) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.input == nil || !s.started || s.closed || s.complete {
		return Complete, false
	}
	res := s.input(chunk)
	if res == Complete {
		s.complete = true
	}
	return res, true
}

// Pull asks an output stream for frames of audio. A stream that is not delivering
// yields silence and false.
func (s *NullStream) Pull(frames int) ([]byte, CallbackResult, bool) {
	out := make([]byte, frames*s.params.Format.FrameSize())
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.output == nil || !s.started || s.closed || s.complete {
		return out, Complete, false
	}
	res := s.output(out)
	if res == Complete {
		s.complete = true
	}
	return out, res, true
}

func (s *NullStream) pump(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	f := s.params.Format
	interval := time.Duration(f.ChunkFrames) * time.Second / time.Duration(max(f.SampleRate, 1))
	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()
	silence := make([]byte, f.ChunkSize())

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.input != nil {
				s.Push(silence)
			} else {
				s.Pull(f.ChunkFrames)
			}
		}
	}
}
