package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Errorf("Expected defaults to be valid, got: %v", err)
	}
}

func TestValidate_InvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate must be > 0"},
		{"negative channels", func(c *Config) { c.Audio.Channels = -1 }, "audio.channels must be > 0"},
		{"zero chunk frames", func(c *Config) { c.Audio.ChunkFrames = 0 }, "audio.chunk_frames must be > 0"},
		{"unknown sample format", func(c *Config) { c.Audio.SampleFormat = "int24" }, "audio.sample_format must be one of: int16 int32 float32"},
		{"unknown backend", func(c *Config) { c.Audio.Backend = "jack" }, "audio.backend must be one of"},
		{"empty directory", func(c *Config) { c.Output.Directory = "" }, "output.directory is required"},
		{"prefix with separator", func(c *Config) { c.Output.FilenamePrefix = "a/b" }, "output.filename_prefix must not contain path separators"},
		{"meter too fast", func(c *Config) { c.Meter.Interval = time.Millisecond }, "meter.interval must be >= 10ms"},
		{"file log without path", func(c *Config) { c.Logging.File.Enabled = true; c.Logging.File.Path = "" }, "logging.file.path is required"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port must be <= 65535"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	cfg := Defaults()
	cfg.Audio.SampleRate = 0
	cfg.Audio.Channels = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "audio.sample_rate") || !strings.Contains(err.Error(), "audio.channels") {
		t.Errorf("Expected both fields in error, got: %v", err)
	}
}

func TestLoadWithProfile_RejectsInvalidProfile(t *testing.T) {
	path := createTempConfig(t, `
configs:
  broken:
    audio:
      sample_format: mp3
`)

	_, err := LoadWithProfile(path, "broken")
	if err == nil {
		t.Fatal("Expected validation error for profile sample format")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("Expected config validation error, got: %v", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if s.Addr() != "127.0.0.1:8080" {
		t.Errorf("Expected 127.0.0.1:8080, got %s", s.Addr())
	}
}
