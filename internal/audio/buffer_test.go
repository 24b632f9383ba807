package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleBuffer_ResetKeepsCapacity(t *testing.T) {
	b := NewSampleBuffer(64)
	b.Append(make([]byte, 32))
	b.SetCursor(16)

	b.Reset()

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Cursor())
	assert.Equal(t, 64, cap(b.data))
}

func TestSampleBuffer_ReadFromCursorCopiesWholeFrames(t *testing.T) {
	b := NewSampleBuffer(0)
	b.Load([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	dst := make([]byte, 16)
	n := b.ReadFromCursor(dst, 4)

	assert.Equal(t, 8, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, dst[:n])
	assert.Equal(t, 8, b.Cursor())

	n = b.ReadFromCursor(dst, 4)
	assert.Equal(t, 0, n)
	assert.Equal(t, 8, b.Cursor())
}

func TestSampleBuffer_ReadFromCursorAdvances(t *testing.T) {
	b := NewSampleBuffer(0)
	b.Load(rampPCM(6))

	dst := make([]byte, 4)
	assert.Equal(t, 4, b.ReadFromCursor(dst, 2))
	assert.Equal(t, int16PCM(1, 2), dst)
	assert.Equal(t, 4, b.ReadFromCursor(dst, 2))
	assert.Equal(t, int16PCM(3, 4), dst)
	assert.Equal(t, 8, b.Cursor())
}

func TestSampleBuffer_Windows(t *testing.T) {
	b := NewSampleBuffer(0)
	b.Load([]byte{1, 2, 3, 4, 5, 6})

	assert.Equal(t, []byte{5, 6}, b.Tail(2))
	assert.Nil(t, b.Tail(7))
	assert.Nil(t, b.WindowAtCursor(2), "cursor at 0 has no window behind it")

	b.SetCursor(4)
	assert.Equal(t, []byte{3, 4}, b.WindowAtCursor(2))
}

func TestSampleBuffer_SnapshotIsACopy(t *testing.T) {
	b := NewSampleBuffer(0)
	b.Load([]byte{1, 2})

	snap := b.Snapshot()
	snap[0] = 9

	assert.Equal(t, []byte{1, 2}, b.Snapshot())
}

func TestSampleBuffer_CursorClampAndAlign(t *testing.T) {
	b := NewSampleBuffer(0)
	b.Load(make([]byte, 10))

	b.SetCursor(50)
	assert.Equal(t, 10, b.Cursor())
	b.SetCursor(-3)
	assert.Equal(t, 0, b.Cursor())

	b.SetCursor(7)
	assert.Equal(t, 4, b.AlignCursor(4))
}
