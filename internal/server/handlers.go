package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"remotetriage/internal/config"
	"remotetriage/internal/export"
	"remotetriage/internal/logging"
	"remotetriage/internal/system"
	"remotetriage/internal/triage"
	"remotetriage/internal/version"
)

type lookupRequest struct {
	Host string `json:"host"`
	Port uint32 `json:"port,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newSessionID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type healthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Sessions int            `json:"sessions"`
	Process  *system.Vitals `json:"process,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Version:  version.Get().Version,
		Sessions: s.registry.Len(),
	}
	vitals, err := system.GetVitals()
	if err != nil {
		logging.Debug("Failed to sample process vitals: %v", err)
	} else {
		resp.Process = vitals
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTriage returns the session view. A _q parameter starts a lookup for
// that host unless the session already holds it.
func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	ts, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	if q := strings.TrimSpace(r.URL.Query().Get("_q")); q != "" {
		snap := ts.Snapshot()
		if snap.Address == nil || snap.Address.Host != q {
			ts.Submit(q)
		}
	}
	writeJSON(w, http.StatusOK, triage.NewView(ts.Snapshot()))
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	ts, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	var req lookupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Host = strings.TrimSpace(req.Host)
	if req.Host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}

	if !ts.SubmitAddress(triage.HostAddress{Host: req.Host, Port: req.Port}) {
		writeError(w, http.StatusServiceUnavailable, "session is closed")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		snap, err := ts.Wait(r.Context())
		if err != nil {
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, triage.NewView(snap))
		return
	}
	writeJSON(w, http.StatusAccepted, triage.NewView(ts.Snapshot()))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ts, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}
	writeJSON(w, http.StatusOK, triage.NewView(ts.Snapshot()))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ts, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	req, err := ts.ExportConfigDump()
	if err != nil {
		s.metrics.ExportDone(err)
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.config.ExportFormat
	}
	body, filename, err := export.Render(req, format)
	s.metrics.ExportDone(err)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := "application/json"
	if strings.EqualFold(format, config.ExportFormatYAML) {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.Error("Failed to write export for %s: %v", req.Host, err)
	}
}

// handleEvents streams session state changes as Server-Sent Events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ts, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &SSEClient{
		StreamID: ts.streamID,
		Messages: make(chan string, 64),
		Close:    make(chan bool, 1),
	}
	s.sseManager.RegisterClient(ts.streamID, client)
	defer s.sseManager.UnregisterClient(ts.streamID, client)

	initial, err := json.Marshal(triage.NewView(ts.Snapshot()))
	if err == nil {
		fmt.Fprintf(w, "event: view\ndata: %s\n\n", initial) //nolint:errcheck // SSE stream
		flusher.Flush()
	}

	ctx := r.Context()
	pingTicker := time.NewTicker(keepaliveInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Close:
			return
		case message := <-client.Messages:
			if _, err := fmt.Fprint(w, message); err != nil {
				logging.Debug("Failed to write SSE message for session %s: %v", ts.id, err)
				return
			}
			flusher.Flush()
		case <-pingTicker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, triage.ErrNoResult) || errors.Is(err, triage.ErrNoConfigDump)
}
