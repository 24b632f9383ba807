package audio

import "sync"

// SampleBuffer holds the captured PCM bytes and the play cursor behind a single lock.
//
// Capture appends, playback reads from the cursor, and the meter and encoder take
// copies. No caller does I/O or stream lifecycle work while holding the lock.
type SampleBuffer struct {
	mu     sync.Mutex
	data   []byte
	cursor int
}

// NewSampleBuffer creates a buffer with capacity bytes reserved up front so the capture
// callback does not have to grow it on the common path.
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &SampleBuffer{data: make([]byte, 0, capacity)}
}

// Reset drops all audio and rewinds the cursor, keeping the reserved capacity
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.cursor = 0
	b.mu.Unlock()
}

// Load replaces the contents with a copy of p
func (b *SampleBuffer) Load(p []byte) {
	b.mu.Lock()
	b.data = append(b.data[:0], p...)
	b.cursor = 0
	b.mu.Unlock()
}

// Append adds one delivered chunk
func (b *SampleBuffer) Append(p []byte) {
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()
}

// Len returns the number of buffered bytes
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Snapshot returns a copy of everything buffered
func (b *SampleBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Tail returns a copy of the last n bytes, or nil when fewer are buffered
func (b *SampleBuffer) Tail(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windowLocked(len(b.data), n)
}

// WindowAtCursor returns a copy of the n bytes that end at the play cursor,
// or nil when the cursor has not yet moved that far
func (b *SampleBuffer) WindowAtCursor(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windowLocked(b.cursor, n)
}

func (b *SampleBuffer) windowLocked(end, n int) []byte {
	if n <= 0 || end < n || end > len(b.data) {
		return nil
	}
	out := make([]byte, n)
	copy(out, b.data[end-n:end])
	return out
}

// ReadFromCursor copies whole frames starting at the cursor into dst and advances the
// cursor by the copied length. It returns how many bytes were copied.
func (b *SampleBuffer) ReadFromCursor(dst []byte, frameSize int) int {
	b.mu.Lock()
	avail := len(b.data) - b.cursor
	if frameSize > 0 {
		avail -= avail % frameSize
	}
	n := copy(dst, b.data[b.cursor:b.cursor+avail])
	b.cursor += n
	b.mu.Unlock()
	return n
}

// Cursor returns the current play position in bytes
func (b *SampleBuffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// SetCursor moves the play position, clamped to the buffered range
func (b *SampleBuffer) SetCursor(pos int) {
	b.mu.Lock()
	b.cursor = min(max(pos, 0), len(b.data))
	b.mu.Unlock()
}

// AlignCursor snaps the cursor down to a whole frame of frameSize bytes
func (b *SampleBuffer) AlignCursor(frameSize int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if frameSize > 0 {
		b.cursor -= b.cursor % frameSize
	}
	return b.cursor
}
