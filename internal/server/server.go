package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/logging"
	"github.com/audiolibrelab/voicerec/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Server is the remote control for a recorder service
type Server struct {
	service service.Service
	addr    string
	hub     *Hub
	log     *slog.Logger
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	service.Status
	Message string `json:"message"`
	Profile string `json:"profile"`
}

// DevicesResponse lists the capture devices of the active backend
type DevicesResponse struct {
	Backend string             `json:"backend"`
	Devices []audio.DeviceInfo `json:"devices"`
}

// RecordingsResponse lists saved takes
type RecordingsResponse struct {
	Directory  string                  `json:"directory"`
	Recordings []service.RecordingInfo `json:"recordings"`
	Count      int                     `json:"count"`
}

// LevelsResponse is a single meter reading
type LevelsResponse struct {
	audio.LevelSnapshot
	Percent   int    `json:"percent"`
	ClipLight string `json:"clip_light"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	State   service.State `json:"state"`
	Path    string        `json:"path,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// New creates a server for svc listening on addr
func New(svc service.Service, addr string) *Server {
	return &Server{
		service: svc,
		addr:    addr,
		hub:     NewHub(),
		log:     logging.For("server"),
	}
}

// Handler returns the HTTP routes of the remote control
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/record", s.command("record", "Recording started", s.service.Record))
	mux.HandleFunc("/stop", s.command("stop", "Stopped", s.service.Stop))
	mux.HandleFunc("/play", s.command("play", "Playback started", s.service.Play))
	mux.HandleFunc("/pause", s.command("pause", "Playback paused", s.service.Pause))
	mux.HandleFunc("/save", s.handleSave)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/levels", s.handleLevels)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/api/recordings/stream/{file}", s.handleRecordingStream)
	mux.HandleFunc("/ws/levels", s.handleWebSocket)
	return mux
}

// Run serves until ctx is cancelled, then shuts the listener and websocket clients down
func (s *Server) Run(ctx context.Context) error {
	detach := s.hub.Attach(s.service)
	defer detach()

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("Starting voicerec remote control",
			"addr", s.addr,
			"local_url", fmt.Sprintf("http://%s%s", getLocalIP(), portSuffix(s.addr)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.log.Info("Remote control stopped")
		return nil
	})

	return g.Wait()
}

// handleIndex serves a minimal page with the live meter
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

// command wraps a transport operation as a POST handler
func (s *Server) command(op, message string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.sendMethodNotAllowed(w)
			return
		}

		if err := fn(); err != nil {
			s.sendErrorResponse(w, statusForError(err), fmt.Sprintf("Failed to %s: %v", op, err), "operation", op)
			return
		}

		s.sendJSON(w, http.StatusOK, GenericResponse{
			Success: true,
			Message: message,
			State:   s.service.Status().State,
		})
	}
}

// handleSave writes the buffer to disk. The body is optional.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendMethodNotAllowed(w)
		return
	}

	var req SaveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "save")
		return
	}

	path, err := s.service.Save(req.Name)
	if err != nil {
		s.sendErrorResponse(w, statusForError(err), fmt.Sprintf("Failed to save: %v", err), "operation", "save", "name", req.Name)
		return
	}

	s.sendJSON(w, http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Saved %s", filepath.Base(path)),
		State:   s.service.Status().State,
		Path:    path,
	})
}

// handleStatus returns the recorder state and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	status := s.service.Status()
	s.sendJSON(w, http.StatusOK, StatusResponse{
		Status:  status,
		Message: generateStatusMessage(status),
		Profile: s.service.GetConfig().Profile,
	})
}

// handleLevels returns one meter reading
func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}
	s.sendJSON(w, http.StatusOK, newLevelsResponse(s.service.Levels()))
}

// handleDevices lists the capture devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	devices, err := s.service.Devices()
	if err != nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("Failed to list devices: %v", err), "operation", "devices")
		return
	}
	s.sendJSON(w, http.StatusOK, DevicesResponse{
		Backend: s.service.Status().Backend,
		Devices: devices,
	})
}

// handleRecordings lists the saved takes, newest first
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	recordings, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list recordings: %v", err), "operation", "recordings")
		return
	}
	s.sendJSON(w, http.StatusOK, RecordingsResponse{
		Directory:  s.service.GetConfig().Output.Directory,
		Recordings: recordings,
		Count:      len(recordings),
	})
}

// handleRecordingStream serves a saved take with range support
func (s *Server) handleRecordingStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := r.PathValue("file")
	path, err := s.service.RecordingPath(filename)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, filename, info.ModTime(), file)
}

func generateStatusMessage(st service.Status) string {
	switch st.State {
	case service.StateRecording:
		return fmt.Sprintf("Recording (%.1fs buffered)", st.BufferedSeconds)
	case service.StatePlaying:
		return fmt.Sprintf("Playing %.1fs / %.1fs", st.PositionSeconds, st.BufferedSeconds)
	case service.StatePaused:
		return fmt.Sprintf("Paused at %.1fs", st.PositionSeconds)
	case service.StateStopped:
		return fmt.Sprintf("Stopped with %.1fs of audio", st.BufferedSeconds)
	default:
		if st.LastSaved != "" {
			return fmt.Sprintf("Idle, last saved %s", filepath.Base(st.LastSaved))
		}
		return "Idle"
	}
}

func newLevelsResponse(l audio.LevelSnapshot) LevelsResponse {
	return LevelsResponse{LevelSnapshot: l, Percent: l.Percent(), ClipLight: l.ClipLight()}
}

// statusForError maps recorder errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, audio.ErrRecordingInSession),
		errors.Is(err, audio.ErrPlayRecordingInSession),
		errors.Is(err, audio.ErrNoRecordingAvailable):
		return http.StatusConflict
	case errors.Is(err, audio.ErrNameRequired):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrDeviceOpen), errors.Is(err, audio.ErrDeviceNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) sendMethodNotAllowed(w http.ResponseWriter) {
	s.sendJSON(w, http.StatusMethodNotAllowed, GenericResponse{
		Success: false,
		Error:   "Method not allowed",
		State:   s.service.Status().State,
	})
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...any) {
	// Log the error with structured context
	logFields := []any{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		s.log.Error("Sending error response to client", logFields...)
	} else {
		s.log.Info("Rejected request", logFields...)
	}

	s.sendJSON(w, statusCode, GenericResponse{
		Success: false,
		Error:   errorMsg,
		State:   s.service.Status().State,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

func portSuffix(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil {
		return ":" + port
	}
	return ""
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>voicerec</title>
</head>
<body>
    <h1>voicerec</h1>
    <p>State: <strong id="state">?</strong> <span id="clip" style="color:grey">&#9679;</span></p>
    <progress id="meter" max="100" value="0"></progress> <span id="db">-80.0 dBFS</span>
    <p>
        <button onclick="post('/record')">Record</button>
        <button onclick="post('/stop')">Stop</button>
        <button onclick="post('/play')">Play</button>
        <button onclick="post('/pause')">Pause</button>
        <button onclick="post('/save')">Save</button>
    </p>
    <script>
        function post(path) { fetch(path, {method: 'POST'}); }
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws/levels');
        ws.onmessage = (ev) => {
            const msg = JSON.parse(ev.data);
            if (msg.type === 'levels') {
                document.getElementById('meter').value = msg.levels.percent;
                document.getElementById('db').textContent = msg.levels.dbfs.toFixed(1) + ' dBFS';
                document.getElementById('clip').style.color = msg.levels.clip_light;
            } else if (msg.type === 'state' || msg.type === 'status') {
                document.getElementById('state').textContent = msg.state;
            }
        };
    </script>
</body>
</html>`
