package service

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/voicerec/internal/audio"
)

func TestLevelPoller_EmitsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	p := NewLevelPoller(5*time.Millisecond, func(audio.LevelSnapshot) { calls.Add(1) })

	p.Start(func() audio.LevelSnapshot { return audio.SilentLevels })
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestLevelPoller_RestartSwapsSource(t *testing.T) {
	got := make(chan float64, 16)
	p := NewLevelPoller(5*time.Millisecond, func(l audio.LevelSnapshot) {
		select {
		case got <- l.DBFS:
		default:
		}
	})
	defer p.Stop()

	p.Start(func() audio.LevelSnapshot { return audio.LevelSnapshot{DBFS: -10} })
	p.Start(func() audio.LevelSnapshot { return audio.LevelSnapshot{DBFS: -20} })

	for len(got) > 0 {
		<-got
	}
	assert.Equal(t, -20.0, <-got)
}

func TestLevelPoller_StopWhenIdle(t *testing.T) {
	p := NewLevelPoller(0, func(audio.LevelSnapshot) {})
	p.Stop()
	assert.False(t, p.Running())
}
