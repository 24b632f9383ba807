package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayback(t *testing.T, pcm []byte) (*PlaybackEngine, *NullHost, *SampleBuffer) {
	t.Helper()
	host := NewNullHost(NullHostOptions{})
	buf := NewSampleBuffer(0)
	buf.Load(pcm)
	p := NewPlaybackEngine(host, monoInt16, "", buf)
	t.Cleanup(func() {
		p.Stop()
		host.Close()
	})
	return p, host, buf
}

// drain pulls chunks until the stream completes and returns everything it emitted
func drain(t *testing.T, s *NullStream, frames int) []byte {
	t.Helper()
	var out []byte
	for i := 0; i < 1000; i++ {
		chunk, res, ok := s.Pull(frames)
		require.True(t, ok, "stream stopped delivering before completing")
		out = append(out, chunk...)
		if res == Complete {
			return out
		}
	}
	t.Fatal("stream never completed")
	return nil
}

func TestPlayback_EmptyBuffer(t *testing.T) {
	p, host, _ := newTestPlayback(t, nil)

	assert.ErrorIs(t, p.Play(), ErrNoRecordingAvailable)
	assert.Equal(t, 0, host.OutputsOpened())
	assert.False(t, p.IsPlaying())
}

func TestPlayback_DoublePlay(t *testing.T) {
	p, host, _ := newTestPlayback(t, rampPCM(100))

	require.NoError(t, p.Play())
	assert.ErrorIs(t, p.Play(), ErrPlayRecordingInSession)
	assert.Equal(t, 1, host.OutputsOpened())
}

func TestPlayback_NaturalFinish(t *testing.T) {
	pcm := rampPCM(25)
	p, host, buf := newTestPlayback(t, pcm)

	finished := make(chan struct{})
	p.OnFinish(func() { close(finished) })

	require.NoError(t, p.Play())
	out := drain(t, host.LastOutput(), 10)

	require.Len(t, out, 60)
	assert.Equal(t, pcm, out[:50])
	assert.Equal(t, make([]byte, 10), out[50:], "the short chunk is padded with silence")

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("finish callback not called")
	}
	assert.False(t, p.IsPlaying())
	assert.Equal(t, 0, buf.Cursor())
	assert.True(t, host.LastOutput().Closed())

	_, _, ok := host.LastOutput().Pull(10)
	assert.False(t, ok)
}

func TestPlayback_PauseResumeMatchesUninterrupted(t *testing.T) {
	pcm := rampPCM(100)
	p, host, buf := newTestPlayback(t, pcm)

	require.NoError(t, p.Play())
	first := host.LastOutput()
	chunk, _, ok := first.Pull(30)
	require.True(t, ok)

	require.NoError(t, p.Pause())
	assert.True(t, p.IsPaused())
	assert.Equal(t, 60, buf.Cursor())
	assert.True(t, first.Closed())

	require.NoError(t, p.Play())
	second := host.LastOutput()
	require.NotSame(t, first, second)
	rest := drain(t, second, 30)

	got := append(chunk, rest...)
	assert.Equal(t, pcm, got[:len(pcm)])
}

func TestPlayback_PauseWhenIdleIsNoop(t *testing.T) {
	p, host, _ := newTestPlayback(t, rampPCM(10))

	require.NoError(t, p.Pause())
	assert.False(t, p.IsPaused())
	assert.Equal(t, 0, host.OutputsOpened())
}

func TestPlayback_StopRewinds(t *testing.T) {
	p, host, buf := newTestPlayback(t, rampPCM(100))

	require.NoError(t, p.Play())
	host.LastOutput().Pull(20)
	require.NoError(t, p.Pause())
	require.NoError(t, p.Stop())

	assert.Equal(t, 0, buf.Cursor())
	assert.False(t, p.IsPaused())
	assert.False(t, p.IsPlaying())
}

func TestPlayback_ReplayAfterFinishStartsOver(t *testing.T) {
	pcm := rampPCM(10)
	p, host, _ := newTestPlayback(t, pcm)

	finished := make(chan struct{}, 2)
	p.OnFinish(func() { finished <- struct{}{} })

	require.NoError(t, p.Play())
	drain(t, host.LastOutput(), 20)
	<-finished

	require.NoError(t, p.Play())
	out := drain(t, host.LastOutput(), 20)
	assert.Equal(t, pcm, out[:len(pcm)])
	<-finished
}

func TestPlayback_SilenceAfterPause(t *testing.T) {
	p, host, _ := newTestPlayback(t, rampPCM(100))

	require.NoError(t, p.Play())
	stream := host.LastOutput()
	require.NoError(t, p.Pause())

	out := make([]byte, 8)
	for i := range out {
		out[i] = 0xff
	}
	assert.Equal(t, Continue, p.onOutput(out))
	assert.Equal(t, make([]byte, 8), out)
	assert.True(t, stream.Closed())
}
