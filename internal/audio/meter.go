package audio

import (
	"math"
	"time"
)

const (
	// MeterWindow is the amount of trailing audio a level is computed over
	MeterWindow = 150 * time.Millisecond
	// FloorDB is the lowest reported level
	FloorDB = -80.0
	// ClipThreshold is the normalized peak at which a window counts as clipping
	ClipThreshold = 0.999
)

// LevelSnapshot is the meter reading for one window
type LevelSnapshot struct {
	RMS      float64 `json:"rms"`
	Peak     float64 `json:"peak"`
	DBFS     float64 `json:"dbfs"`
	Clipping bool    `json:"clipping"`
}

// SilentLevels is the reading reported when there is not enough audio
var SilentLevels = LevelSnapshot{DBFS: FloorDB}

// Percent returns the RMS clamped to [0, 1] as a 0..100 bar value
func (l LevelSnapshot) Percent() int {
	return int(math.Round(math.Max(0, math.Min(1, l.RMS)) * 100))
}

// ClipLight returns the color of the clip indicator
func (l LevelSnapshot) ClipLight() string {
	if l.Clipping {
		return "red"
	}
	return "grey"
}

// windowBytes is the byte length of one meter window, frame aligned
func windowBytes(f Format) int {
	return f.FramesFor(MeterWindow) * f.FrameSize()
}

// ComputeLevels meters the trailing window of buf. Only the copy happens under the
// buffer lock.
func ComputeLevels(buf *SampleBuffer, f Format) LevelSnapshot {
	n := windowBytes(f)
	if n <= 0 {
		return SilentLevels
	}
	return LevelsFromPCM(buf.Tail(n), f)
}

// ComputePlaybackLevels meters the window that ends at the play cursor
func ComputePlaybackLevels(buf *SampleBuffer, f Format) LevelSnapshot {
	n := windowBytes(f)
	if n <= 0 {
		return SilentLevels
	}
	return LevelsFromPCM(buf.WindowAtCursor(n), f)
}

// LevelsFromPCM meters a raw PCM window. Windows shorter than MeterWindow give
// SilentLevels.
func LevelsFromPCM(pcm []byte, f Format) LevelSnapshot {
	need := windowBytes(f)
	if need <= 0 || len(pcm) < need {
		return SilentLevels
	}

	samples, frames := Normalize(pcm, f)
	if frames == 0 {
		return SilentLevels
	}
	mono := Mono(samples, f.Channels)

	var sumSquares, peak float64
	for _, v := range mono {
		sumSquares += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	rms := math.Sqrt(sumSquares / float64(len(mono)))

	return LevelSnapshot{
		RMS:      math.Min(rms, 1),
		Peak:     math.Min(peak, 1),
		DBFS:     math.Min(0, math.Max(20*math.Log10(rms+1e-12), FloorDB)),
		Clipping: peak >= ClipThreshold,
	}
}
