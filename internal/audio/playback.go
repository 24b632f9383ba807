package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/audiolibrelab/voicerec/internal/logging"
)

type playbackStatus int

const (
	playbackIdle playbackStatus = iota
	playbackPlaying
	playbackPaused
)

// PlaybackEngine plays a SampleBuffer from its cursor through an output stream.
//
// The output callback never tears the stream down. When it runs out of audio it
// signals a monitor goroutine, which closes the stream and resets the cursor.
type PlaybackEngine struct {
	host   Host
	format Format
	device string
	buf    *SampleBuffer
	log    *slog.Logger

	mu       sync.Mutex
	status   playbackStatus
	stream   Stream
	finished chan struct{}
	quit     chan struct{}
	done     chan struct{}
	onFinish func()

	// active gates the callback between pulling audio and emitting silence
	active atomic.Bool
}

// NewPlaybackEngine creates an engine that reads from buf
func NewPlaybackEngine(host Host, format Format, device string, buf *SampleBuffer) *PlaybackEngine {
	return &PlaybackEngine{
		host:   host,
		format: format,
		device: device,
		buf:    buf,
		log:    logging.For("playback"),
	}
}

// OnFinish registers fn to run after playback reaches the end of the buffer on its
// own. It runs on the monitor goroutine after the stream is released.
func (p *PlaybackEngine) OnFinish(fn func()) {
	p.mu.Lock()
	p.onFinish = fn
	p.mu.Unlock()
}

// Play starts playback from the cursor, or resumes after Pause
func (p *PlaybackEngine) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf.Len() == 0 {
		return ErrNoRecordingAvailable
	}
	if p.status == playbackPlaying {
		return ErrPlayRecordingInSession
	}
	p.reapLocked()

	cursor := p.buf.AlignCursor(p.format.FrameSize())
	if cursor >= p.format.AlignDown(p.buf.Len()) {
		p.buf.SetCursor(0)
		cursor = 0
	}

	stream, err := p.host.OpenOutput(StreamParams{Format: p.format, Device: p.device}, p.onOutput)
	if err != nil {
		return fmt.Errorf("%w: output %q: %w", ErrDeviceOpen, p.deviceLabel(), err)
	}

	finished := make(chan struct{}, 1)
	p.finished = finished
	p.active.Store(true)
	if err := stream.Start(); err != nil {
		p.active.Store(false)
		if cerr := stream.Close(); cerr != nil {
			p.log.Debug("Closing failed output stream", "error", cerr)
		}
		return fmt.Errorf("%w: start output %q: %w", ErrDeviceOpen, p.deviceLabel(), err)
	}

	p.stream = stream
	p.status = playbackPlaying
	p.quit = make(chan struct{})
	p.done = make(chan struct{})
	go p.monitor(stream, finished, p.quit, p.done)

	p.log.Info("Playback started", "cursor", cursor, "bytes", p.buf.Len())
	return nil
}

// onOutput runs on the host audio thread
func (p *PlaybackEngine) onOutput(out []byte) CallbackResult {
	if !p.active.Load() {
		clear(out)
		return Continue
	}

	n := p.buf.ReadFromCursor(out, p.format.FrameSize())
	if n == len(out) {
		return Continue
	}

	clear(out[n:])
	p.active.Store(false)
	select {
	case p.finished <- struct{}{}:
	default:
	}
	return Complete
}

// monitor waits for the end of the buffer and releases the stream off the audio thread
func (p *PlaybackEngine) monitor(stream Stream, finished <-chan struct{}, quit <-chan struct{}, done chan<- struct{}) {
	select {
	case <-quit:
		close(done)
		return
	case <-finished:
	}

	p.mu.Lock()
	if p.stream != stream {
		// Pause or Stop already took the stream
		p.mu.Unlock()
		close(done)
		return
	}
	p.stream = nil
	p.status = playbackIdle
	p.buf.SetCursor(0)
	fn := p.onFinish
	p.mu.Unlock()

	p.release(stream)
	p.log.Info("Playback finished")
	close(done)

	if fn != nil {
		fn()
	}
}

// Pause stops output and keeps the cursor. It is a no-op when not playing.
func (p *PlaybackEngine) Pause() error {
	p.mu.Lock()
	if p.status != playbackPlaying {
		p.mu.Unlock()
		return nil
	}
	p.active.Store(false)
	stream, quit, done := p.takeLocked()
	p.status = playbackPaused
	p.mu.Unlock()

	p.wait(quit, done)
	p.release(stream)
	p.log.Info("Playback paused", "cursor", p.buf.Cursor())
	return nil
}

// Stop closes any open stream and rewinds the cursor
func (p *PlaybackEngine) Stop() error {
	p.mu.Lock()
	p.active.Store(false)
	stream, quit, done := p.takeLocked()
	wasIdle := p.status == playbackIdle && stream == nil
	p.status = playbackIdle
	p.buf.SetCursor(0)
	p.mu.Unlock()

	p.wait(quit, done)
	p.release(stream)
	if !wasIdle {
		p.log.Info("Playback stopped")
	}
	return nil
}

// IsPlaying reports whether a stream is delivering the buffer
func (p *PlaybackEngine) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == playbackPlaying
}

// IsPaused reports whether playback is paused with a preserved cursor
func (p *PlaybackEngine) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == playbackPaused
}

// takeLocked detaches the stream and the monitor channels of the current play
func (p *PlaybackEngine) takeLocked() (Stream, chan struct{}, chan struct{}) {
	stream, quit, done := p.stream, p.quit, p.done
	p.stream, p.quit, p.done = nil, nil, nil
	return stream, quit, done
}

// reapLocked retires the monitor of a play that ended on its own. That monitor has
// already left the lock, so waiting on it here cannot deadlock.
func (p *PlaybackEngine) reapLocked() {
	_, quit, done := p.takeLocked()
	if quit != nil {
		close(quit)
		<-done
	}
}

func (p *PlaybackEngine) wait(quit, done chan struct{}) {
	if quit == nil {
		return
	}
	close(quit)
	<-done
}

// release stops and closes a detached stream. Failures are logged only, the
// operation that detached it has already taken effect.
func (p *PlaybackEngine) release(stream Stream) {
	if stream == nil {
		return
	}
	if err := errors.Join(stream.Stop(), stream.Close()); err != nil {
		p.log.Warn("Output stream teardown failed", "error", err)
	}
}

func (p *PlaybackEngine) deviceLabel() string {
	if p.device == "" {
		return "default"
	}
	return p.device
}
