// Package api exposes the coaching pipeline over HTTP: per-frame metric
// snapshots, runtime tuning, session control, and recorded rep/cue history.
// Handlers only read published snapshots and the database; they never touch
// pipeline internals.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/db"
	"github.com/banshee-data/rep.coach/internal/session"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	sessions *session.Manager
	db       *db.DB // may be nil when persistence is disabled
}

func NewServer(sessions *session.Manager, database *db.DB) *Server {
	return &Server{
		sessions: sessions,
		db:       database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/metrics", s.showMetrics)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/session/reset", s.resetSession)
	mux.HandleFunc("/api/cue", s.showLastCue)
	mux.HandleFunc("/api/reps", s.listReps)
	mux.HandleFunc("/api/cues", s.listCues)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// showMetrics returns the latest published per-frame snapshot.
func (s *Server) showMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.sessions.Latest()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write metrics")
		return
	}
}

// handleParams serves the effective tuning config on GET and applies a
// partial JSON update on POST. Updated params take effect for sessions
// constructed after the update (reset the session to apply immediately).
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		if err := json.NewEncoder(w).Encode(s.sessions.Config()); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write params")
		}
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}

		// Overlay the partial update onto a copy of the current config so a
		// validation failure leaves the live config untouched.
		current, err := json.Marshal(s.sessions.Config())
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to snapshot current params")
			return
		}
		updated := config.EmptyTuningConfig()
		if err := json.Unmarshal(current, updated); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to copy current params")
			return
		}
		if err := json.Unmarshal(body, updated); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid params JSON: %v", err))
			return
		}
		if err := updated.Validate(); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid params: %v", err))
			return
		}

		s.sessions.SetConfig(updated)
		if err := json.NewEncoder(w).Encode(updated); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write params")
		}
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// resetSession discards the active session, forcing recalibration. Called
// when the camera or subject changes.
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	fresh := s.sessions.Reset()
	json.NewEncoder(w).Encode(map[string]string{"session_id": fresh.ID()})
}

// showLastCue returns the most recently emitted coaching cue, or an empty
// object if none has been emitted yet.
func (s *Server) showLastCue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cue := s.sessions.LastCue()
	if cue == nil {
		w.Write([]byte("{}\n"))
		return
	}
	if err := json.NewEncoder(w).Encode(cue); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write cue")
	}
}

// sessionIDParam resolves the session_id query parameter, defaulting to the
// active session.
func (s *Server) sessionIDParam(r *http.Request) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return s.sessions.Current().ID()
}

func (s *Server) listReps(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Persistence disabled")
		return
	}

	reps, err := s.db.Reps(s.sessionIDParam(r))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve reps: %v", err))
		return
	}
	if reps == nil {
		reps = []db.RepRecord{}
	}
	if err := json.NewEncoder(w).Encode(reps); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write reps")
	}
}

func (s *Server) listCues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Persistence disabled")
		return
	}

	cues, err := s.db.Cues(s.sessionIDParam(r))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve cues: %v", err))
		return
	}
	if cues == nil {
		cues = []db.CueRecord{}
	}
	if err := json.NewEncoder(w).Encode(cues); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write cues")
	}
}
