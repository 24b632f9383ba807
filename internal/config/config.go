package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. VOICEREC_AUDIO_SAMPLE_RATE
const EnvPrefix = "VOICEREC"

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Audio        AudioConfig               `mapstructure:"audio" yaml:"audio"`
	Output       OutputConfig              `mapstructure:"output" yaml:"output"`
	Meter        MeterConfig               `mapstructure:"meter" yaml:"meter"`
	Logging      LoggingConfig             `mapstructure:"logging" yaml:"logging"`
	Server       ServerConfig              `mapstructure:"server" yaml:"server"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs,omitempty"`
}

// Config is the resolved configuration of one session
type Config struct {
	Profile string        `mapstructure:"-" yaml:"profile"`
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Meter   MeterConfig   `mapstructure:"meter" yaml:"meter"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// ConfigProfile overrides the global audio and output sections. Zero values inherit.
type ConfigProfile struct {
	Audio  AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Output OutputOverride `mapstructure:"output" yaml:"output"`
}

type InheritanceInfo struct {
	// Fields maps a dotted key such as "audio.sample_rate" to "inherited" or "profile-specific"
	Fields map[string]string
}

// Keys returns the tracked keys in order
func (i *InheritanceInfo) Keys() []string {
	keys := make([]string, 0, len(i.Fields))
	for k := range i.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type AudioConfig struct {
	Backend            string `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=auto malgo miniaudio portaudio null none"`
	Device             string `mapstructure:"device" yaml:"device,omitempty"` // index, exact or partial name, empty for the host default
	SampleRate         int    `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gt=0,lte=384000"`
	Channels           int    `mapstructure:"channels" yaml:"channels" validate:"gt=0,lte=32"`
	ChunkFrames        int    `mapstructure:"chunk_frames" yaml:"chunk_frames" validate:"gt=0,lte=65536"`
	SampleFormat       string `mapstructure:"sample_format" yaml:"sample_format" validate:"oneof=int16 int32 float32"`
	PreallocateSeconds int    `mapstructure:"preallocate_seconds" yaml:"preallocate_seconds" validate:"gte=0,lte=3600"`
}

type OutputConfig struct {
	Directory      string `mapstructure:"directory" yaml:"directory" validate:"required"`
	FilenamePrefix string `mapstructure:"filename_prefix" yaml:"filename_prefix" validate:"required,excludesall=/\\"`
	AutoIncrement  bool   `mapstructure:"auto_increment" yaml:"auto_increment"`
}

// OutputOverride is the output section of a profile. AutoIncrement is a pointer so an
// explicit false can override a global true.
type OutputOverride struct {
	Directory      string `mapstructure:"directory" yaml:"directory,omitempty"`
	FilenamePrefix string `mapstructure:"filename_prefix" yaml:"filename_prefix,omitempty"`
	AutoIncrement  *bool  `mapstructure:"auto_increment" yaml:"auto_increment,omitempty"`
}

type MeterConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=10ms,lte=10s"`
}

type LoggingConfig struct {
	File FileLogConfig `mapstructure:"file" yaml:"file"`
}

type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port" validate:"gte=1,lte=65535"`
}

// Addr returns the listen address of the remote control server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

var defaultConfig = Config{
	Audio: AudioConfig{
		Backend:            "auto",
		SampleRate:         44100,
		Channels:           1,
		ChunkFrames:        1024,
		SampleFormat:       "int16",
		PreallocateSeconds: 60,
	},
	Output: OutputConfig{
		Directory:      "recordings",
		FilenamePrefix: "take",
		AutoIncrement:  true,
	},
	Meter: MeterConfig{
		Interval: 75 * time.Millisecond,
	},
	Logging: LoggingConfig{
		File: FileLogConfig{
			Path:       filepath.Join("logs", "voicerec.log"),
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	},
	Server: ServerConfig{
		Host: "127.0.0.1",
		Port: 8080,
	},
}

// Defaults returns a copy of the built-in configuration
func Defaults() *Config {
	c := defaultConfig
	c.Profile = "default"
	return &c
}

// DefaultConfigPath is the file read when --config is not given
func DefaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/voicerec.yaml")
}

// newViper creates an isolated viper instance with defaults and env overrides
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	d := defaultConfig
	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.device", d.Audio.Device)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.chunk_frames", d.Audio.ChunkFrames)
	v.SetDefault("audio.sample_format", d.Audio.SampleFormat)
	v.SetDefault("audio.preallocate_seconds", d.Audio.PreallocateSeconds)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.filename_prefix", d.Output.FilenamePrefix)
	v.SetDefault("output.auto_increment", d.Output.AutoIncrement)
	v.SetDefault("meter.interval", d.Meter.Interval)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)
	v.SetDefault("logging.file.max_size_mb", d.Logging.File.MaxSizeMB)
	v.SetDefault("logging.file.max_backups", d.Logging.File.MaxBackups)
	v.SetDefault("logging.file.max_age_days", d.Logging.File.MaxAgeDays)
	v.SetDefault("logging.file.compress", d.Logging.File.Compress)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("active_config", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadRoot parses configFile. An empty path yields the defaults with env overrides applied.
func ReadRoot(configFile string) (*RootConfig, error) {
	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &root, nil
}

// LoadWithProfile reads configFile and resolves profile, falling back to active_config
// and then to the global sections alone.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	root, err := ReadRoot(configFile)
	if err != nil {
		return nil, err
	}

	cfg, err := Resolve(root, profile)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Resolve picks the profile of root and merges it over the global sections
func Resolve(root *RootConfig, profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = root.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	base := &Config{
		Audio:   root.Audio,
		Output:  root.Output,
		Meter:   root.Meter,
		Logging: root.Logging,
		Server:  root.Server,
	}

	selected, exists := root.Configs[configName]
	if !exists && configName != "default" {
		return nil, fmt.Errorf("configuration profile '%s' not found (available: %s)", configName, strings.Join(root.ProfileNames(), ", "))
	}

	cfg := mergeProfile(base, selected)
	cfg.Profile = configName

	cfg.Audio.SampleFormat = strings.ToLower(strings.TrimSpace(cfg.Audio.SampleFormat))
	cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Logging.File.Path = expandPath(cfg.Logging.File.Path)
	return cfg, nil
}

// ProfileNames returns the configured profile names in order
func (r *RootConfig) ProfileNames() []string {
	names := make([]string, 0, len(r.Configs))
	for name := range r.Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListProfiles returns the profile names of configFile and the active one
func ListProfiles(configFile string) ([]string, string, error) {
	root, err := ReadRoot(configFile)
	if err != nil {
		return nil, "", err
	}
	return root.ProfileNames(), root.ActiveConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveConfig != "default" {
		if !v.IsSet("configs." + newActiveConfig) {
			return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
		}
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// mergeProfile applies the non-zero fields of profile over base. The meter, logging
// and server sections are global only.
func mergeProfile(base *Config, profile *ConfigProfile) *Config {
	result := *base
	result.Inheritance = &InheritanceInfo{Fields: map[string]string{}}
	track := func(key string, overridden bool) {
		if overridden {
			result.Inheritance.Fields[key] = "profile-specific"
		} else {
			result.Inheritance.Fields[key] = "inherited"
		}
	}

	if profile == nil {
		profile = &ConfigProfile{}
	}

	a := profile.Audio
	track("audio.backend", setString(&result.Audio.Backend, a.Backend))
	track("audio.device", setString(&result.Audio.Device, a.Device))
	track("audio.sample_rate", setInt(&result.Audio.SampleRate, a.SampleRate))
	track("audio.channels", setInt(&result.Audio.Channels, a.Channels))
	track("audio.chunk_frames", setInt(&result.Audio.ChunkFrames, a.ChunkFrames))
	track("audio.sample_format", setString(&result.Audio.SampleFormat, a.SampleFormat))
	track("audio.preallocate_seconds", setInt(&result.Audio.PreallocateSeconds, a.PreallocateSeconds))

	o := profile.Output
	track("output.directory", setString(&result.Output.Directory, o.Directory))
	track("output.filename_prefix", setString(&result.Output.FilenamePrefix, o.FilenamePrefix))
	if o.AutoIncrement != nil {
		result.Output.AutoIncrement = *o.AutoIncrement
	}
	track("output.auto_increment", o.AutoIncrement != nil)

	return &result
}

func setString(dst *string, v string) bool {
	if v == "" {
		return false
	}
	*dst = v
	return true
}

func setInt(dst *int, v int) bool {
	if v == 0 {
		return false
	}
	*dst = v
	return true
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
