package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiolibrelab/voicerec/internal/logging"
)

// WavOptions is the output directory and naming policy for saved takes
type WavOptions struct {
	Dir           string
	Prefix        string
	AutoIncrement bool
}

// RecordingChecker reports whether capture is active
type RecordingChecker interface {
	IsRecording() bool
}

// WavEncoder writes the shared buffer to RIFF/WAVE files
type WavEncoder struct {
	format Format
	opts   WavOptions
	log    *slog.Logger
}

// NewWavEncoder creates an encoder for buffers of format f
func NewWavEncoder(f Format, opts WavOptions) *WavEncoder {
	if opts.Dir == "" {
		opts.Dir = "recordings"
	}
	if opts.Prefix == "" {
		opts.Prefix = "take"
	}
	return &WavEncoder{format: f, opts: opts, log: logging.For("wav")}
}

// Save snapshots buf and writes it to a new file. name is used only when auto
// increment is disabled. It returns the written path.
func (e *WavEncoder) Save(buf *SampleBuffer, rec RecordingChecker, name string) (string, error) {
	if rec != nil && rec.IsRecording() {
		return "", ErrRecordingInSession
	}

	pcm := buf.Snapshot()
	if len(pcm) == 0 {
		return "", ErrNoRecordingAvailable
	}

	path, err := e.TargetPath(name)
	if err != nil {
		return "", err
	}
	if err := WritePCM(path, pcm, e.format); err != nil {
		return "", err
	}

	e.log.Info("Recording saved", "path", path, "duration", e.format.Duration(len(pcm)))
	return path, nil
}

// TargetPath resolves the file the next save writes to and creates the output directory
func (e *WavEncoder) TargetPath(name string) (string, error) {
	if err := os.MkdirAll(e.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", e.opts.Dir, err)
	}

	if e.opts.AutoIncrement {
		file, err := NextTakeName(e.opts.Dir, e.opts.Prefix)
		if err != nil {
			return "", err
		}
		return filepath.Join(e.opts.Dir, file), nil
	}

	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", ErrNameRequired
	}
	return filepath.Join(e.opts.Dir, base+".wav"), nil
}

// NextTakeName scans dir for {prefix}_NNN.wav and returns the name after the highest NNN
func NextTakeName(dir, prefix string) (string, error) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)\.wav$`)

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to scan output directory %s: %w", dir, err)
	}

	highest := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		highest = max(highest, n)
	}
	return fmt.Sprintf("%s_%03d.wav", prefix, highest+1), nil
}

// createFile opens the destination of WritePCM
var createFile = os.Create

// WritePCM encodes raw PCM of format f to a WAV file at path. Float32 input is
// clamped and written as 16-bit PCM; a trailing partial frame is dropped.
func WritePCM(path string, pcm []byte, f Format) error {
	samples, bitDepth, err := pcmToInts(pcm, f)
	if err != nil {
		return err
	}

	out, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	enc := wav.NewEncoder(out, f.SampleRate, bitDepth, f.Channels, 1)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: f.SampleRate, NumChannels: f.Channels},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		discard(out, path)
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	if err := enc.Close(); err != nil {
		discard(out, path)
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close WAV file: %w", err)
	}
	return nil
}

// discard closes and removes a partially written file so it is neither listed
// nor counted by NextTakeName
func discard(out *os.File, path string) {
	out.Close()
	os.Remove(path)
}

// pcmToInts converts frame-aligned PCM to encoder samples and the bit depth to write
func pcmToInts(pcm []byte, f Format) ([]int, int, error) {
	pcm = pcm[:f.AlignDown(len(pcm))]

	switch f.SampleFormat {
	case Int16:
		out := make([]int, len(pcm)/2)
		for i := range out {
			out[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		}
		return out, 16, nil
	case Int32:
		out := make([]int, len(pcm)/4)
		for i := range out {
			out[i] = int(int32(binary.LittleEndian.Uint32(pcm[i*4:])))
		}
		return out, 32, nil
	case Float32:
		out := make([]int, len(pcm)/4)
		for i := range out {
			v := math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
			out[i] = int(ClampToInt16(float64(v)))
		}
		return out, 16, nil
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f.SampleFormat)
	}
}
