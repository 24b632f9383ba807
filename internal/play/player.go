// Package play plays saved WAV takes through the configured audio host.
package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/audiolibrelab/voicerec/internal/logging"
)

// ErrFileNotFound is returned when a take cannot be resolved to a file
var ErrFileNotFound = errors.New("audio file not found")

type Player struct {
	cfg  *config.Config
	host audio.Host
	log  *slog.Logger
}

func New(cfg *config.Config, host audio.Host) *Player {
	return &Player{cfg: cfg, host: host, log: logging.For("play")}
}

// Resolve finds the file for name: an existing path as given, otherwise a take in
// the output directory, with or without the .wav extension
func (p *Player) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrFileNotFound)
	}
	candidates := []string{name}
	base := filepath.Base(name)
	if base == name {
		candidates = append(candidates, filepath.Join(p.cfg.Output.Directory, base))
		if !strings.EqualFold(filepath.Ext(base), ".wav") {
			candidates = append(candidates, filepath.Join(p.cfg.Output.Directory, base+".wav"))
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

// Play resolves name and plays it to the end or until ctx is cancelled
func (p *Player) Play(ctx context.Context, name string) error {
	path, err := p.Resolve(name)
	if err != nil {
		return err
	}
	return p.PlayFile(ctx, path)
}

// PlayFile plays a WAV file on the configured output device. Cancelling ctx stops
// playback and returns ctx.Err().
func (p *Player) PlayFile(ctx context.Context, path string) error {
	pcm, format, err := audio.ReadWavFile(path, p.cfg.Audio.ChunkFrames)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	buf := audio.NewSampleBuffer(len(pcm))
	buf.Load(pcm)

	engine := audio.NewPlaybackEngine(p.host, format, p.cfg.Audio.Device, buf)
	finished := make(chan struct{})
	engine.OnFinish(func() { close(finished) })

	if err := engine.Play(); err != nil {
		return err
	}
	p.log.Info("Playing", "file", path, "duration", format.Duration(len(pcm)),
		"sample_rate", format.SampleRate, "channels", format.Channels)

	select {
	case <-finished:
		p.log.Info("Playback completed", "file", path)
		return nil
	case <-ctx.Done():
		if err := engine.Stop(); err != nil {
			p.log.Warn("Stopping playback", "error", err)
		}
		return ctx.Err()
	}
}
