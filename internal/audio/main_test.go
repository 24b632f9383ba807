package audio

import (
	"encoding/binary"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// monoInt16 is a small format that keeps byte math in tests readable
var monoInt16 = Format{SampleRate: 1000, Channels: 1, ChunkFrames: 10, SampleFormat: Int16}

func int16PCM(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func rampPCM(frames int) []byte {
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	return int16PCM(samples...)
}

func constantPCM(frames int, v int16) []byte {
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = v
	}
	return int16PCM(samples...)
}
