// Package db persists finished repetitions and emitted cues so a training
// session can be reviewed after the fact. The pipeline never blocks on the
// database: writes happen from the frame loop's goroutine after the frame's
// result is published.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path. Schema is
// managed by migrations; see MigrateUp.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows exactly one writer; the frame loop is it.
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

// SessionRecord is one training session row.
type SessionRecord struct {
	SessionID        string    `json:"session_id"`
	StartedAt        time.Time `json:"started_at"`
	ReferenceHipY    float64   `json:"reference_hip_y"`
	ScaleUnit        float64   `json:"scale_unit"`
	TrunkBaselineDeg float64   `json:"trunk_baseline_deg"`
}

// RepRecord is one counted repetition row.
type RepRecord struct {
	SessionID  string    `json:"session_id"`
	RepNumber  int       `json:"rep_number"`
	Depth      float64   `json:"depth"`
	Timestamp  float64   `json:"pipeline_time"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CueRecord is one emitted coaching cue row.
type CueRecord struct {
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	RepNumber  int       `json:"rep_number"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordSession inserts a session row once calibration completes. Re-inserts
// for the same session ID are ignored so a re-calibration cannot duplicate
// the row.
func (db *DB) RecordSession(s SessionRecord) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO sessions (session_id, started_at, reference_hip_y, scale_unit, trunk_baseline_deg)
		VALUES (?, ?, ?, ?, ?)`,
		s.SessionID, s.StartedAt, s.ReferenceHipY, s.ScaleUnit, s.TrunkBaselineDeg)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// RecordRep inserts one counted repetition.
func (db *DB) RecordRep(r RepRecord) error {
	_, err := db.Exec(`
		INSERT INTO rep_events (session_id, rep_number, depth, pipeline_time, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.SessionID, r.RepNumber, r.Depth, r.Timestamp, r.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record rep: %w", err)
	}
	return nil
}

// RecordCue inserts one emitted cue.
func (db *DB) RecordCue(c CueRecord) error {
	_, err := db.Exec(`
		INSERT INTO cue_events (session_id, kind, message, rep_number, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.SessionID, c.Kind, c.Message, c.RepNumber, c.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record cue: %w", err)
	}
	return nil
}

// Reps returns the counted repetitions for a session, oldest first.
func (db *DB) Reps(sessionID string) ([]RepRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, rep_number, depth, pipeline_time, recorded_at
		FROM rep_events WHERE session_id = ? ORDER BY rep_number`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reps []RepRecord
	for rows.Next() {
		var r RepRecord
		if err := rows.Scan(&r.SessionID, &r.RepNumber, &r.Depth, &r.Timestamp, &r.RecordedAt); err != nil {
			return nil, err
		}
		reps = append(reps, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reps, nil
}

// Cues returns the emitted cues for a session, oldest first.
func (db *DB) Cues(sessionID string) ([]CueRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, kind, message, rep_number, recorded_at
		FROM cue_events WHERE session_id = ? ORDER BY recorded_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cues []CueRecord
	for rows.Next() {
		var c CueRecord
		if err := rows.Scan(&c.SessionID, &c.Kind, &c.Message, &c.RepNumber, &c.RecordedAt); err != nil {
			return nil, err
		}
		cues = append(cues, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cues, nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]SessionRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, started_at, reference_hip_y, scale_unit, trunk_baseline_deg
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var s SessionRecord
		if err := rows.Scan(&s.SessionID, &s.StartedAt, &s.ReferenceHipY, &s.ScaleUnit, &s.TrunkBaselineDeg); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// AttachAdminRoutes mounts the tailsql live-query console and a backup
// endpoint on the debug mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://coach.db", db.DB, &tailsql.DBOptions{
		Label: "Coach DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
