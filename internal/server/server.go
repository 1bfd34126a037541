package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/beatgrid/internal/config"
	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/patternio"
	"github.com/audiolibrelab/beatgrid/internal/service"
)

// maxImportSize bounds the body of an import request
const maxImportSize = 4 << 20

// Server represents the web server for controlling a sequencer session
type Server struct {
	service service.Service
	cfg     *config.Config
	port    string
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PatternsResponse represents the JSON response for the saved patterns endpoint
type PatternsResponse struct {
	Patterns   []service.PatternFileInfo `json:"patterns"`
	TotalCount int                       `json:"total_count"`
	Directory  string                    `json:"directory"`
}

// TrackRequest is the body of POST /api/tracks
type TrackRequest struct {
	File   string   `json:"file"`
	Name   *string  `json:"name"`
	Volume *float64 `json:"volume"`
	Muted  bool     `json:"muted"`
	Steps  []bool   `json:"steps"`
}

// ImportResponse reports the outcome of an import
type ImportResponse struct {
	Success   bool                     `json:"success"`
	Tracks    int                      `json:"tracks"`
	StepCount int                      `json:"step_count"`
	BPM       float64                  `json:"bpm"`
	Dropped   []patternio.DroppedTrack `json:"dropped"`
}

// New creates a new web server instance
func New(cfg *config.Config, svc service.Service) *Server {
	port := cfg.Server.Port
	if port == "" {
		port = "8000"
	}
	return &Server{
		service: svc,
		cfg:     cfg,
		port:    port,
	}
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/sounds/", s.handleSoundFile)
	mux.HandleFunc("/api/sounds", s.handleSounds)
	mux.HandleFunc("/api/pattern", s.handlePattern)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/tracks", s.handleAddTrack)
	mux.HandleFunc("/api/tracks/", s.handleTrack)
	mux.HandleFunc("/api/steps", s.handleSteps)
	mux.HandleFunc("/api/bpm", s.handleBPM)
	mux.HandleFunc("/api/play", s.handlePlay)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/clear", s.handleClear)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/import", s.handleImport)
	// Saved patterns
	mux.HandleFunc("/api/patterns", s.handlePatterns)
	mux.HandleFunc("/api/patterns/save", s.handleSavePattern)
	mux.HandleFunc("/api/patterns/load/", s.handleLoadPattern)
	mux.HandleFunc("/api/patterns/download/", s.handlePatternDownload)

	if dir := s.cfg.Server.StaticDir; dir != "" {
		mux.Handle("/www/", http.StripPrefix("/www/", http.FileServer(http.Dir(dir))))
	}
	return mux
}

// Start starts the web server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting beatgrid web server",
		"port", s.port,
		"kit", s.cfg.KitName,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleIndex serves the UI from the static directory, or a fallback page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		if dir := s.cfg.Server.StaticDir; dir != "" {
			http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	var htmlContent []byte
	if dir := s.cfg.Server.StaticDir; dir != "" {
		htmlContent, _ = os.ReadFile(filepath.Join(dir, "index.html"))
	}
	if htmlContent == nil {
		htmlContent = []byte(getDefaultHTML())
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(htmlContent)
}

// getDefaultHTML provides a fallback HTML interface
func getDefaultHTML() string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>beatgrid</title>
</head>
<body>
    <h1>beatgrid</h1>
    <p>No static UI configured (server.static_dir). The API is available:</p>
    <ul>
        <li>GET /api/sounds - List sounds</li>
        <li>GET /api/pattern - Current pattern</li>
        <li>GET /api/status - Playback status</li>
        <li>POST /api/play, /api/pause, /api/stop - Transport</li>
        <li>GET /api/export, POST /api/import - Pattern documents</li>
    </ul>
</body>
</html>`
}

// handleSoundFile streams a catalog sound to the browser
func (s *Server) handleSoundFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ref, ok := pathParam(w, r, "/sounds/")
	if !ok {
		return
	}

	data, err := s.service.ReadSound(r.Context(), ref)
	if err != nil {
		if service.IsNotFound(err) {
			http.Error(w, "Sound not found", http.StatusNotFound)
		} else {
			slog.Error("Error reading sound", "sound", ref, "error", err)
			http.Error(w, "Error reading sound", http.StatusInternalServerError)
		}
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(ref)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

// handleSounds lists the catalog as a plain JSON array, optionally filtered
// by ?q=. Remote kits read this endpoint.
func (s *Server) handleSounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query().Get("q")
	sounds, err := s.service.Sounds(r.Context(), query)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadGateway, fmt.Sprintf("Failed to list sounds: %v", err))
		return
	}

	if sounds == nil {
		sounds = []string{}
	}
	sendJSON(w, sounds)
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sendJSON(w, s.service.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sendJSON(w, s.service.Status())
}

// handleAddTrack appends a track for a catalog sound
func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON request")
		return
	}
	if req.File == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "file is required")
		return
	}

	track, err := s.service.AddTrack(r.Context(), req.File, pattern.TrackOptions{
		Name:   req.Name,
		Volume: req.Volume,
		Muted:  req.Muted,
		Steps:  req.Steps,
	})
	if err != nil {
		s.sendServiceError(w, err, "file", req.File)
		return
	}

	slog.Info("Track added via web", "id", track.ID, "file", track.SoundRef)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"track":   track,
	})
}

// handleTrack routes /api/tracks/{id} and /api/tracks/{id}/{action}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(r.URL.Path[len("/api/tracks/"):], "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Track id required")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodDelete {
			s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		removed := s.service.RemoveTrack(id)
		if !removed {
			slog.Debug("Track already absent", "id", id)
		}
		sendJSON(w, map[string]interface{}{
			"success": true,
			"removed": removed,
		})
		return
	case "toggle", "volume", "mute", "preview":
	default:
		s.sendErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Unknown track action: %s", action))
		return
	}

	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Step   *int     `json:"step"`
		Volume *float64 `json:"volume"`
		Muted  *bool    `json:"muted"`
		Gain   *float64 `json:"gain"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON request")
			return
		}
	}

	switch action {
	case "toggle":
		if req.Step == nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "step is required")
			return
		}
		on, err := s.service.ToggleStep(id, *req.Step)
		if err != nil {
			s.sendServiceError(w, err, "id", id, "step", *req.Step)
			return
		}
		sendJSON(w, map[string]interface{}{"success": true, "step": *req.Step, "active": on})

	case "volume":
		if req.Volume == nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "volume is required")
			return
		}
		v, err := s.service.SetVolume(id, *req.Volume)
		if err != nil {
			s.sendServiceError(w, err, "id", id)
			return
		}
		sendJSON(w, map[string]interface{}{"success": true, "volume": v})

	case "mute":
		if req.Muted == nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "muted is required")
			return
		}
		if err := s.service.SetMuted(id, *req.Muted); err != nil {
			s.sendServiceError(w, err, "id", id)
			return
		}
		sendJSON(w, map[string]interface{}{"success": true, "muted": *req.Muted})

	case "preview":
		snap := s.service.Snapshot()
		var track *pattern.Track
		for i := range snap.Tracks {
			if snap.Tracks[i].ID == id {
				track = &snap.Tracks[i]
				break
			}
		}
		if track == nil {
			s.sendErrorResponse(w, http.StatusNotFound, "Track not found", "id", id)
			return
		}
		gain := track.Volume
		if req.Gain != nil {
			gain = *req.Gain
		}
		if err := s.service.Preview(r.Context(), track.SoundRef, gain); err != nil {
			s.sendServiceError(w, err, "id", id, "file", track.SoundRef)
			return
		}
		sendJSON(w, GenericResponse{Success: true, Message: "Preview started"})
	}
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Steps int `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON request")
		return
	}
	if err := s.service.SetStepCount(req.Steps); err != nil {
		s.sendServiceError(w, err, "steps", req.Steps)
		return
	}
	sendJSON(w, s.service.Snapshot())
}

func (s *Server) handleBPM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		BPM float64 `json:"bpm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON request")
		return
	}
	if err := s.service.SetBPM(req.BPM); err != nil {
		s.sendServiceError(w, err, "bpm", req.BPM)
		return
	}
	sendJSON(w, s.service.Status())
}

// handlePlay toggles between playing and paused, like the play button
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	running := s.service.TogglePlay(r.Context())
	slog.Debug("Play toggled via web", "running", running)
	sendJSON(w, s.service.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.service.Stop(false)
	sendJSON(w, s.service.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.service.Stop(true)
	sendJSON(w, s.service.Status())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.service.ClearAllPatterns()
	sendJSON(w, s.service.Snapshot())
}

// handleExport downloads the current pattern as a document
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = s.cfg.Export.Format
	}
	format, err := patternio.ParseFormat(formatName)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	doc := s.service.ExportDocument()
	data, err := patternio.Marshal(doc, format)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to export pattern: %v", err))
		return
	}

	contentType := "application/json"
	if format == patternio.FormatYAML {
		contentType = "application/yaml"
	}
	fileName := patternio.DefaultFileName(time.Now(), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	w.Write(data)
}

// handleImport replaces the pattern with a posted document. YAML is
// selected with ?format=yaml or a yaml content type.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendErrorResponse(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Pattern document exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	format := patternio.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		if format, err = patternio.ParseFormat(f); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = patternio.FormatYAML
	}

	plan, err := s.service.ImportData(r.Context(), data, format)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	sendJSON(w, newImportResponse(plan))
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	patterns, err := s.service.ListPatterns()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load patterns: %v", err))
		return
	}

	sendJSON(w, PatternsResponse{
		Patterns:   patterns,
		TotalCount: len(patterns),
		Directory:  s.cfg.Export.Directory,
	})
}

// handleSavePattern writes the current pattern to the export directory
func (s *Server) handleSavePattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Name   string `json:"name"`
		Format string `json:"format"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON request")
			return
		}
	}
	if req.Format == "" {
		req.Format = s.cfg.Export.Format
	}
	format, err := patternio.ParseFormat(req.Format)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.service.SavePattern(req.Name, format)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "name", req.Name)
		return
	}
	sendJSON(w, map[string]interface{}{
		"success": true,
		"pattern": info,
	})
}

func (s *Server) handleLoadPattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name, ok := pathParam(w, r, "/api/patterns/load/")
	if !ok {
		return
	}

	plan, err := s.service.LoadPattern(r.Context(), name)
	if err != nil {
		s.sendServiceError(w, err, "name", name)
		return
	}
	sendJSON(w, newImportResponse(plan))
}

func (s *Server) handlePatternDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, ok := pathParam(w, r, "/api/patterns/download/")
	if !ok {
		return
	}

	patterns, err := s.service.ListPatterns()
	if err != nil {
		http.Error(w, "Error accessing patterns", http.StatusInternalServerError)
		return
	}
	var found *service.PatternFileInfo
	for i := range patterns {
		if patterns[i].Name == name {
			found = &patterns[i]
			break
		}
	}
	if found == nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	file, err := os.Open(found.Path)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	contentType := "application/json"
	if found.Format == string(patternio.FormatYAML) {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", found.Size))

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("Error serving pattern download", "file", name, "error", err)
	}
}

func newImportResponse(plan *patternio.Plan) ImportResponse {
	dropped := plan.Dropped
	if dropped == nil {
		dropped = []patternio.DroppedTrack{}
	}
	return ImportResponse{
		Success:   true,
		Tracks:    len(plan.Tracks),
		StepCount: plan.StepCount,
		BPM:       plan.BPM,
		Dropped:   dropped,
	}
}

// pathParam extracts the single file name after prefix.
// It writes the error response itself and reports false on bad input.
func pathParam(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	name := r.URL.Path[len(prefix):]
	if name == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return "", false
	}

	// Validate filename (prevent path traversal)
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

// sendServiceError maps a service error to a status code: unknown items are
// 404, bad input is 400, anything else 500
func (s *Server) sendServiceError(w http.ResponseWriter, err error, logContext ...interface{}) {
	code := http.StatusInternalServerError
	switch {
	case service.IsNotFound(err):
		code = http.StatusNotFound
	case service.IsValidationError(err):
		code = http.StatusBadRequest
	}
	s.sendErrorResponse(w, code, err.Error(), logContext...)
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Warn("Sending error response to client", logFields...)
	}

	// Send JSON error response
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(GenericResponse{
		Success: false,
		Error:   errorMsg,
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
