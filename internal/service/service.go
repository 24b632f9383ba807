package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/audiolibrelab/voicerec/internal/logging"
)

// ErrRecordingNotFound is returned for a recording name outside the output directory
var ErrRecordingNotFound = errors.New("recording not found")

// Service represents the core recorder service interface
type Service interface {
	// Transport operations
	Record() error
	Stop() error
	Play() error
	Pause() error
	Save(name string) (string, error)

	// Information operations
	Status() Status
	Levels() audio.LevelSnapshot
	Devices() ([]audio.DeviceInfo, error)
	ListRecordings() ([]RecordingInfo, error)
	RecordingPath(name string) (string, error)
	GetConfig() *config.Config
	GetLastError() string

	// Observers
	SubscribeLevels(fn LevelFunc) (unsubscribe func())
	SubscribeState(fn StateFunc) (unsubscribe func())

	Close() error
}

// Session identifies one take from record to save
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

// Status is a point-in-time view of the recorder
type Status struct {
	State           State        `json:"state"`
	Verbs           []Verb       `json:"verbs"`
	Session         *Session     `json:"session,omitempty"`
	Backend         string       `json:"backend"`
	Device          string       `json:"device"`
	Format          audio.Format `json:"format"`
	BufferedSeconds float64      `json:"buffered_seconds"`
	PositionSeconds float64      `json:"position_seconds"`
	LastSaved       string       `json:"last_saved,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
}

// RecordingInfo describes a saved WAV file
type RecordingInfo struct {
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	Size            int64     `json:"size"`
	SizeHuman       string    `json:"size_human"`
	ModTime         time.Time `json:"mod_time"`
	ModTimeHuman    string    `json:"mod_time_human"`
	DurationSeconds float64   `json:"duration_seconds"`
	StreamURL       string    `json:"stream_url"`
}

// RecorderService coordinates capture, playback, metering and saving of one shared
// buffer under the recorder state machine
type RecorderService struct {
	cfg      *config.Config
	host     audio.Host
	format   audio.Format
	buf      *audio.SampleBuffer
	capture  *audio.CaptureEngine
	playback *audio.PlaybackEngine
	encoder  *audio.WavEncoder
	poller   *LevelPoller
	log      *slog.Logger

	// mu serializes commands and guards the fields below
	mu        sync.Mutex
	state     State
	session   *Session
	lastSaved string

	subMu     sync.Mutex
	nextSub   int
	levelSubs map[int]LevelFunc
	stateSubs map[int]StateFunc

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*RecorderService)(nil)

// New creates a recorder on host. The caller keeps ownership of host.
func New(cfg *config.Config, host audio.Host) (*RecorderService, error) {
	format, err := audio.NewFormat(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}

	buf := audio.NewSampleBuffer(reserveBytes(cfg.Audio.PreallocateSeconds, format))
	s := &RecorderService{
		cfg:      cfg,
		host:     host,
		format:   format,
		buf:      buf,
		capture:  audio.NewCaptureEngine(host, format, cfg.Audio.Device, buf),
		playback: audio.NewPlaybackEngine(host, format, cfg.Audio.Device, buf),
		encoder: audio.NewWavEncoder(format, audio.WavOptions{
			Dir:           cfg.Output.Directory,
			Prefix:        cfg.Output.FilenamePrefix,
			AutoIncrement: cfg.Output.AutoIncrement,
		}),
		log:       logging.For("service"),
		state:     StateIdle,
		levelSubs: map[int]LevelFunc{},
		stateSubs: map[int]StateFunc{},
	}
	s.poller = NewLevelPoller(cfg.Meter.Interval, s.emitLevels)
	s.playback.OnFinish(s.onPlaybackFinished)
	return s, nil
}

// Record clears the buffer and starts capture (IDLE|STOPPED -> RECORDING)
func (s *RecorderService) Record() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Next(s.state, VerbRecord)
	if err != nil {
		return s.fail("record", err)
	}
	if err := s.capture.Start(); err != nil {
		return s.fail("record", err)
	}

	s.session = &Session{ID: uuid.NewString(), StartedAt: time.Now()}
	s.clearLastError()
	s.setStateLocked(next)
	s.log.Info("Recording started", "session", s.session.ID)
	return nil
}

// Stop ends capture or playback (RECORDING|PLAYING|PAUSED -> STOPPED)
func (s *RecorderService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	next, err := Next(from, VerbStop)
	if err != nil {
		return s.fail("stop", err)
	}
	if from == StateStopped {
		return nil
	}

	if from == StateRecording {
		err = s.capture.Stop()
	} else {
		err = s.playback.Stop()
	}
	// The stream is gone either way, so the transition stands
	s.setStateLocked(next)
	if err != nil {
		return s.fail("stop", err)
	}
	s.clearLastError()
	return nil
}

// Play starts playback of the buffer or resumes after Pause (-> PLAYING)
func (s *RecorderService) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Next(s.state, VerbPlay)
	if err != nil {
		return s.fail("play", err)
	}
	if err := s.playback.Play(); err != nil {
		return s.fail("play", err)
	}

	s.clearLastError()
	s.setStateLocked(next)
	return nil
}

// Pause stops output and keeps the play position (PLAYING -> PAUSED)
func (s *RecorderService) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Next(s.state, VerbPause)
	if err != nil {
		return s.fail("pause", err)
	}
	if err := s.playback.Pause(); err != nil {
		return s.fail("pause", err)
	}

	s.setStateLocked(next)
	return nil
}

// Save writes the buffer to a WAV file and returns its path (-> IDLE). Playback in
// progress is stopped once the file is written.
func (s *RecorderService) Save(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	next, err := Next(from, VerbSave)
	if err != nil {
		return "", s.fail("save", err)
	}

	path, err := s.encoder.Save(s.buf, s.capture, name)
	if err != nil {
		return "", s.fail("save", err)
	}

	if from == StatePlaying || from == StatePaused {
		if err := s.playback.Stop(); err != nil {
			s.log.Warn("Stopping playback after save failed", "error", err)
		}
	}

	s.lastSaved = path
	s.session = nil
	s.clearLastError()
	s.setStateLocked(next)
	return path, nil
}

// onPlaybackFinished moves PLAYING -> STOPPED when the buffer ran out. A finish that
// raced with Pause, Stop, Save or a new Play is ignored.
func (s *RecorderService) onPlaybackFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying || s.playback.IsPlaying() {
		return
	}
	next, err := Next(s.state, VerbFinish)
	if err != nil {
		return
	}
	s.setStateLocked(next)
}

// setStateLocked records a transition, drives the level poller and notifies
// state subscribers. Subscribers run under the command lock and must not call back
// into the service.
func (s *RecorderService) setStateLocked(to State) {
	from := s.state
	s.state = to

	switch to {
	case StateRecording:
		s.poller.Start(s.recordLevels)
	case StatePlaying:
		s.poller.Start(s.playbackLevels)
	default:
		s.poller.Stop()
	}

	if from != to {
		s.log.Debug("State changed", "from", from, "to", to)
	}

	s.subMu.Lock()
	subs := make([]StateFunc, 0, len(s.stateSubs))
	for _, fn := range s.stateSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(from, to)
	}
}

func (s *RecorderService) recordLevels() audio.LevelSnapshot {
	return audio.ComputeLevels(s.buf, s.format)
}

func (s *RecorderService) playbackLevels() audio.LevelSnapshot {
	return audio.ComputePlaybackLevels(s.buf, s.format)
}

func (s *RecorderService) emitLevels(l audio.LevelSnapshot) {
	s.subMu.Lock()
	subs := make([]LevelFunc, 0, len(s.levelSubs))
	for _, fn := range s.levelSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(l)
	}
}

// Levels meters the buffer now: the tail while recording, the cursor window while
// playing or paused, silence otherwise
func (s *RecorderService) Levels() audio.LevelSnapshot {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateRecording:
		return s.recordLevels()
	case StatePlaying, StatePaused:
		return s.playbackLevels()
	default:
		return audio.SilentLevels
	}
}

// SubscribeLevels registers fn for every meter poll
func (s *RecorderService) SubscribeLevels(fn LevelFunc) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.levelSubs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.levelSubs, id)
		s.subMu.Unlock()
	}
}

// SubscribeState registers fn for every state transition
func (s *RecorderService) SubscribeState(fn StateFunc) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.stateSubs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.stateSubs, id)
		s.subMu.Unlock()
	}
}

// Status returns the current state and buffer position
func (s *RecorderService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:           s.state,
		Verbs:           Verbs(s.state),
		Backend:         string(s.host.Name()),
		Device:          s.cfg.Audio.Device,
		Format:          s.format,
		BufferedSeconds: s.format.Duration(s.buf.Len()).Seconds(),
		PositionSeconds: s.format.Duration(s.buf.Cursor()).Seconds(),
		LastSaved:       s.lastSaved,
		LastError:       s.GetLastError(),
	}
	if s.session != nil {
		session := *s.session
		st.Session = &session
	}
	if st.Device == "" {
		st.Device = "default"
	}
	return st
}

// State returns the current recorder state
func (s *RecorderService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Devices lists the capture devices of the host
func (s *RecorderService) Devices() ([]audio.DeviceInfo, error) {
	return s.capture.ListDevices()
}

// GetConfig returns the configuration the service was built with
func (s *RecorderService) GetConfig() *config.Config {
	return s.cfg
}

// ListRecordings returns the WAV files in the output directory, newest first
func (s *RecorderService) ListRecordings() ([]RecordingInfo, error) {
	dir := s.cfg.Output.Directory
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RecordingInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	recordings := []RecordingInfo{}
	for _, file := range files {
		if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), ".wav") {
			continue
		}

		filePath := filepath.Join(dir, file.Name())
		info, err := file.Info()
		if err != nil {
			s.log.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		rec := RecordingInfo{
			Name:         file.Name(),
			Path:         filePath,
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			StreamURL:    fmt.Sprintf("/api/recordings/stream/%s", file.Name()),
		}
		if wi, err := audio.ReadWavInfo(filePath); err == nil {
			rec.DurationSeconds = wi.Duration.Seconds()
		} else {
			s.log.Debug("Skipping duration of unreadable WAV", "file", file.Name(), "error", err)
		}
		recordings = append(recordings, rec)
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModTime.After(recordings[j].ModTime)
	})
	return recordings, nil
}

// RecordingPath resolves a recording file name inside the output directory
func (s *RecorderService) RecordingPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || !strings.EqualFold(filepath.Ext(name), ".wav") {
		return "", fmt.Errorf("%w: %q", ErrRecordingNotFound, name)
	}
	path := filepath.Join(s.cfg.Output.Directory, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrRecordingNotFound, name)
	}
	return path, nil
}

// Close stops any capture or playback in progress
func (s *RecorderService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := errors.Join(s.capture.Stop(), s.playback.Stop())
	s.poller.Stop()
	if s.state == StateRecording || s.state == StatePlaying || s.state == StatePaused {
		s.state = StateStopped
	}
	return err
}

// fail records err as the last error and returns it unchanged
func (s *RecorderService) fail(op string, err error) error {
	s.log.Debug("Command rejected", "op", op, "state", s.state, "error", err)
	s.setLastError(fmt.Sprintf("Failed to %s: %v", op, err))
	return err
}

// GetLastError returns the last error message
func (s *RecorderService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *RecorderService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
}

func (s *RecorderService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
// maxReserveBytes caps the up-front buffer reservation; longer takes grow the buffer
const maxReserveBytes = 256 << 20

// reserveBytes is the frame-aligned buffer capacity for seconds of audio in f
func reserveBytes(seconds int, f audio.Format) int {
	if seconds <= 0 {
		return 0
	}
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	if seconds > maxReserveBytes/bps {
		return f.AlignDown(maxReserveBytes)
	}
	return seconds * bps
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
