package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCapture(t *testing.T, opts NullHostOptions) (*CaptureEngine, *NullHost, *SampleBuffer) {
	t.Helper()
	host := NewNullHost(opts)
	t.Cleanup(func() { host.Close() })
	buf := NewSampleBuffer(0)
	return NewCaptureEngine(host, monoInt16, "", buf), host, buf
}

func TestCapture_AppendsDeliveredChunks(t *testing.T) {
	capture, host, buf := newTestCapture(t, NullHostOptions{})

	require.NoError(t, capture.Start())
	assert.True(t, capture.IsRecording())

	stream := host.LastInput()
	require.NotNil(t, stream)
	assert.Equal(t, monoInt16, stream.Params().Format)

	res, ok := stream.Push(int16PCM(1, 2, 3))
	require.True(t, ok)
	assert.Equal(t, Continue, res)
	stream.Push(int16PCM(4))

	require.NoError(t, capture.Stop())
	assert.False(t, capture.IsRecording())
	assert.Equal(t, int16PCM(1, 2, 3, 4), buf.Snapshot())
	assert.True(t, stream.Closed())

	_, ok = stream.Push(int16PCM(5))
	assert.False(t, ok, "no chunk is delivered after stop")
	assert.Equal(t, 8, buf.Len())
}

func TestCapture_StartClearsPreviousTake(t *testing.T) {
	capture, host, buf := newTestCapture(t, NullHostOptions{})
	buf.Load(int16PCM(9, 9, 9))
	buf.SetCursor(2)

	require.NoError(t, capture.Start())
	host.LastInput().Push(int16PCM(1))
	require.NoError(t, capture.Stop())

	assert.Equal(t, int16PCM(1), buf.Snapshot())
	assert.Equal(t, 0, buf.Cursor())
}

func TestCapture_DoubleStart(t *testing.T) {
	capture, host, _ := newTestCapture(t, NullHostOptions{})

	require.NoError(t, capture.Start())
	assert.ErrorIs(t, capture.Start(), ErrRecordingInSession)
	assert.Equal(t, 1, host.InputsOpened())

	require.NoError(t, capture.Stop())
}

func TestCapture_StopIsIdempotent(t *testing.T) {
	capture, _, _ := newTestCapture(t, NullHostOptions{})

	assert.NoError(t, capture.Stop())
	require.NoError(t, capture.Start())
	assert.NoError(t, capture.Stop())
	assert.NoError(t, capture.Stop())
}

func TestCapture_DeviceOpenFailure(t *testing.T) {
	openErr := errors.New("device busy")
	capture, _, _ := newTestCapture(t, NullHostOptions{OpenErr: openErr})

	err := capture.Start()
	assert.ErrorIs(t, err, ErrDeviceOpen)
	assert.ErrorIs(t, err, openErr)
	assert.False(t, capture.IsRecording())
	assert.NoError(t, capture.Stop())
}

func TestCapture_FailedStartKeepsPreviousTake(t *testing.T) {
	capture, host, buf := newTestCapture(t, NullHostOptions{})
	buf.Load(int16PCM(7, 8, 9))
	buf.SetCursor(2)
	host.SetOpenErr(errors.New("device unplugged"))

	assert.ErrorIs(t, capture.Start(), ErrDeviceOpen)
	assert.Equal(t, int16PCM(7, 8, 9), buf.Snapshot())
	assert.Equal(t, 2, buf.Cursor())

	host.SetOpenErr(nil)
	require.NoError(t, capture.Start())
	assert.Equal(t, 0, buf.Len(), "a successful start clears the take")
	require.NoError(t, capture.Stop())
}

func TestCapture_UnknownDevice(t *testing.T) {
	host := NewNullHost(NullHostOptions{})
	defer host.Close()
	capture := NewCaptureEngine(host, monoInt16, "focusrite", NewSampleBuffer(0))

	err := capture.Start()
	assert.ErrorIs(t, err, ErrDeviceOpen)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestCapture_ListDevices(t *testing.T) {
	capture, _, _ := newTestCapture(t, NullHostOptions{})

	devices, err := capture.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Null Input", devices[0].Name)
}
