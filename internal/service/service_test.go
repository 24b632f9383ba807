package service

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Audio.Backend = "null"
	cfg.Audio.SampleRate = 1000
	cfg.Audio.Channels = 1
	cfg.Audio.ChunkFrames = 10
	cfg.Audio.SampleFormat = "int16"
	cfg.Audio.PreallocateSeconds = 1
	cfg.Output.Directory = t.TempDir()
	cfg.Meter.Interval = 10 * time.Millisecond
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, opts audio.NullHostOptions) (*RecorderService, *audio.NullHost) {
	t.Helper()
	host := audio.NewNullHost(opts)
	s, err := New(cfg, host)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		host.Close()
	})
	return s, host
}

func chunk(frames int, v int16) []byte {
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// recordTake records frames of a constant sample and stops
func recordTake(t *testing.T, s *RecorderService, host *audio.NullHost, frames int, v int16) {
	t.Helper()
	require.NoError(t, s.Record())
	for sent := 0; sent < frames; sent += 10 {
		_, ok := host.LastInput().Push(chunk(min(10, frames-sent), v))
		require.True(t, ok)
	}
	require.NoError(t, s.Stop())
}

func TestNew_RejectsUnsupportedFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.SampleFormat = "int8"

	_, err := New(cfg, audio.NewNullHost(audio.NullHostOptions{}))
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}

func TestService_RecordStopPlayFinish(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})

	var mu sync.Mutex
	var transitions []State
	s.SubscribeState(func(from, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	recordTake(t, s, host, 30, 1000)
	st := s.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.InDelta(t, 0.03, st.BufferedSeconds, 1e-9)
	require.NotNil(t, st.Session)
	assert.NotEmpty(t, st.Session.ID)

	require.NoError(t, s.Play())
	assert.Equal(t, StatePlaying, s.State())

	out := host.LastOutput()
	for {
		_, res, ok := out.Pull(10)
		require.True(t, ok)
		if res == audio.Complete {
			break
		}
	}

	require.Eventually(t, func() bool { return s.State() == StateStopped }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, s.Status().PositionSeconds)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateRecording, StateStopped, StatePlaying, StateStopped}, transitions)
}

func TestService_IllegalCommandsKeepState(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})

	assert.ErrorIs(t, s.Stop(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Play(), audio.ErrNoRecordingAvailable)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, host.OutputsOpened())
	assert.Contains(t, s.GetLastError(), "Failed to play")

	require.NoError(t, s.Record())
	assert.ErrorIs(t, s.Record(), audio.ErrRecordingInSession)
	assert.ErrorIs(t, s.Play(), ErrInvalidTransition)
	_, err := s.Save("")
	assert.ErrorIs(t, err, audio.ErrRecordingInSession)
	assert.Equal(t, StateRecording, s.State())
	assert.Equal(t, 1, host.InputsOpened())
	require.NoError(t, s.Stop())
	assert.Empty(t, s.GetLastError())
}

func TestService_RecordRejectedWhilePlayingOrPaused(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})
	recordTake(t, s, host, 100, 1000)

	require.NoError(t, s.Play())
	assert.ErrorIs(t, s.Record(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Play(), audio.ErrPlayRecordingInSession)

	require.NoError(t, s.Pause())
	assert.ErrorIs(t, s.Record(), ErrInvalidTransition)
	assert.Equal(t, StatePaused, s.State())
	assert.Equal(t, 1, host.InputsOpened())
}

func TestService_PauseResumeKeepsPosition(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})
	recordTake(t, s, host, 100, 1000)

	require.NoError(t, s.Play())
	host.LastOutput().Pull(40)
	require.NoError(t, s.Pause())
	assert.InDelta(t, 0.04, s.Status().PositionSeconds, 1e-9)

	require.NoError(t, s.Play())
	assert.Equal(t, 2, host.OutputsOpened())
	assert.InDelta(t, 0.04, s.Status().PositionSeconds, 1e-9)

	require.NoError(t, s.Pause())
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 0.0, s.Status().PositionSeconds)
}

func TestService_SaveAutoIncrementGoesIdle(t *testing.T) {
	cfg := testConfig(t)
	s, host := newTestService(t, cfg, audio.NullHostOptions{})
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Output.Directory, "take_002.wav"), nil, 0o644))

	recordTake(t, s, host, 20, 1000)
	path, err := s.Save("ignored")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Output.Directory, "take_003.wav"), path)
	st := s.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, path, st.LastSaved)
	assert.Nil(t, st.Session)

	require.NoError(t, s.Play(), "the buffer survives a save")
	require.NoError(t, s.Stop())
}

func TestService_SaveWhilePlayingStopsPlayback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.AutoIncrement = false
	s, host := newTestService(t, cfg, audio.NullHostOptions{})
	recordTake(t, s, host, 100, 1000)

	require.NoError(t, s.Play())
	out := host.LastOutput()

	_, err := s.Save("")
	assert.ErrorIs(t, err, audio.ErrNameRequired)
	assert.Equal(t, StatePlaying, s.State(), "a failed save leaves the state unchanged")

	path, err := s.Save("interview.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Output.Directory, "interview.wav"), path)
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, out.Closed())
}

func TestService_DeviceOpenFailure(t *testing.T) {
	s, _ := newTestService(t, testConfig(t), audio.NullHostOptions{OpenErr: errors.New("no such card")})

	err := s.Record()
	assert.ErrorIs(t, err, audio.ErrDeviceOpen)
	assert.Equal(t, StateIdle, s.State())
	assert.Contains(t, s.Status().LastError, "no such card")
}

func TestService_FailedRecordKeepsTake(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})
	recordTake(t, s, host, 100, 500)
	require.InDelta(t, 0.1, s.Status().BufferedSeconds, 1e-9)

	host.SetOpenErr(errors.New("no such card"))
	assert.ErrorIs(t, s.Record(), audio.ErrDeviceOpen)
	assert.Equal(t, StateStopped, s.State())
	assert.InDelta(t, 0.1, s.Status().BufferedSeconds, 1e-9)

	host.SetOpenErr(nil)
	require.NoError(t, s.Play())
	assert.Equal(t, StatePlaying, s.State())
	require.NoError(t, s.Stop())
}

func TestService_StopTwiceIsNoOp(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})

	var mu sync.Mutex
	var transitions []State
	s.SubscribeState(func(from, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	recordTake(t, s, host, 20, 500)
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
	assert.Empty(t, s.GetLastError())
	assert.Equal(t, 1, host.InputsOpened())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateRecording, StateStopped}, transitions)
}

func TestReserveBytes(t *testing.T) {
	mono := audio.Format{SampleRate: 1000, Channels: 1, ChunkFrames: 10, SampleFormat: audio.Int16}
	assert.Equal(t, 2000, reserveBytes(1, mono))
	assert.Equal(t, 0, reserveBytes(0, mono))

	huge := audio.Format{SampleRate: 384000, Channels: 32, ChunkFrames: 1024, SampleFormat: audio.Float32}
	got := reserveBytes(3600, huge)
	assert.LessOrEqual(t, got, maxReserveBytes)
	assert.Zero(t, got%huge.FrameSize())
	assert.Greater(t, got, 0)
}

func TestService_LevelsFollowTheActiveEngine(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})

	assert.Equal(t, audio.SilentLevels, s.Levels())

	require.NoError(t, s.Record())
	host.LastInput().Push(chunk(150, 16384))
	assert.InDelta(t, -6.02, s.Levels().DBFS, 0.01)
	require.NoError(t, s.Stop())
	assert.Equal(t, audio.SilentLevels, s.Levels())

	require.NoError(t, s.Play())
	assert.Equal(t, audio.SilentLevels, s.Levels(), "no audio has been played yet")
	host.LastOutput().Pull(150)
	assert.InDelta(t, -6.02, s.Levels().DBFS, 0.01)
}

func TestService_LevelSubscribersPolledWhileRecording(t *testing.T) {
	s, host := newTestService(t, testConfig(t), audio.NullHostOptions{})

	readings := make(chan audio.LevelSnapshot, 64)
	unsubscribe := s.SubscribeLevels(func(l audio.LevelSnapshot) {
		select {
		case readings <- l:
		default:
		}
	})
	defer unsubscribe()

	require.NoError(t, s.Record())
	host.LastInput().Push(chunk(150, 32767))

	require.Eventually(t, func() bool {
		select {
		case l := <-readings:
			return l.Clipping
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.poller.Running())

	require.NoError(t, s.Stop())
	assert.False(t, s.poller.Running())
}

func TestService_ListRecordingsAndPath(t *testing.T) {
	cfg := testConfig(t)
	s, host := newTestService(t, cfg, audio.NullHostOptions{})
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Output.Directory, "notes.txt"), []byte("x"), 0o644))

	recordTake(t, s, host, 1000, 1000)
	path, err := s.Save("")
	require.NoError(t, err)

	recordings, err := s.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recordings, 1)
	assert.Equal(t, "take_001.wav", recordings[0].Name)
	assert.InDelta(t, 1.0, recordings[0].DurationSeconds, 1e-6)
	assert.Equal(t, "/api/recordings/stream/take_001.wav", recordings[0].StreamURL)

	got, err := s.RecordingPath("take_001.wav")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	for _, bad := range []string{"", "../take_001.wav", "notes.txt", "missing.wav"} {
		_, err := s.RecordingPath(bad)
		assert.ErrorIs(t, err, ErrRecordingNotFound, bad)
	}
}

func TestService_ListRecordingsMissingDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Directory = filepath.Join(t.TempDir(), "not-yet")
	s, _ := newTestService(t, cfg, audio.NullHostOptions{})

	recordings, err := s.ListRecordings()
	require.NoError(t, err)
	assert.Empty(t, recordings)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
