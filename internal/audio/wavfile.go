package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag
const wavFormatPCM = 1

// WavInfo is the header summary of a WAV file
type WavInfo struct {
	Path       string        `json:"path"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bit_depth"`
	Duration   time.Duration `json:"duration"`
}

// ReadWavInfo reads the header of a WAV file
func ReadWavInfo(path string) (*WavInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New("input is not a valid WAV audio file")
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate WAV data chunk: %w", err)
	}

	info := &WavInfo{
		Path:       path,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}
	// The RIFF size covers every chunk, so duration comes from the data chunk alone
	if bps := info.SampleRate * info.Channels * info.BitDepth / 8; bps > 0 {
		info.Duration = time.Duration(int64(decoder.PCMSize) * int64(time.Second) / int64(bps))
	}
	return info, nil
}

// ReadWavFile decodes a PCM WAV file into raw little-endian bytes and the Format
// needed to play them. 16-bit files map to Int16; 24- and 32-bit files map to Int32.
func ReadWavFile(path string, chunkFrames int) ([]byte, Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Format{}, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, Format{}, errors.New("input is not a valid WAV audio file")
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, Format{}, fmt.Errorf("%w: WAV audio format %d", ErrUnsupportedFormat, decoder.WavAudioFormat)
	}

	f := Format{
		SampleRate:  int(decoder.SampleRate),
		Channels:    int(decoder.NumChans),
		ChunkFrames: chunkFrames,
	}
	shift := 0
	switch decoder.BitDepth {
	case 16:
		f.SampleFormat = Int16
	case 24:
		f.SampleFormat = Int32
		shift = 8
	case 32:
		f.SampleFormat = Int32
	default:
		return nil, Format{}, fmt.Errorf("%w: %d-bit WAV", ErrUnsupportedFormat, decoder.BitDepth)
	}
	if err := f.Validate(); err != nil {
		return nil, Format{}, err
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("failed to decode WAV data: %w", err)
	}

	width := f.SampleFormat.BytesPerSample()
	pcm := make([]byte, len(buf.Data)*width)
	for i, v := range buf.Data {
		if width == 2 {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
		} else {
			binary.LittleEndian.PutUint32(pcm[i*4:], uint32(int32(v<<shift)))
		}
	}
	return pcm[:f.AlignDown(len(pcm))], f, nil
}
