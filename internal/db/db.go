// Package db persists the move history: one row per completed move on
// any axis, written by the daemon's event recorder and read back by the
// history API and the motion report.
package db

import (
	"compress/gzip"
	"context"
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
	path string
}

// baseSchema matches migration 000001; NewDB applies it so a fresh
// database works without running the migration tooling.
const baseSchema = `
	CREATE TABLE IF NOT EXISTS moves (
		id              TEXT PRIMARY KEY,
		axis            TEXT,
		kind            TEXT,
		origin          TEXT,
		start_counts    BIGINT,
		end_counts      BIGINT,
		start_position  DOUBLE,
		end_position    DOUBLE,
		units           TEXT,
		requested       BIGINT,
		applied         BIGINT,
		clamped         INTEGER,
		rate_hz         DOUBLE,
		duration_ms     DOUBLE,
		created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS moves_axis_created_at ON moves (axis, created_at);
`

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(baseSchema); err != nil {
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// MoveRecord is one row of the moves table.
type MoveRecord struct {
	ID          string    `json:"id"`
	Axis        string    `json:"axis"`
	Kind        string    `json:"kind"`
	Origin      string    `json:"origin"`
	StartCounts int64     `json:"start_counts"`
	EndCounts   int64     `json:"end_counts"`
	StartPos    float64   `json:"start_position"`
	EndPos      float64   `json:"end_position"`
	Units       string    `json:"units"`
	Requested   int64     `json:"requested"`
	Applied     int64     `json:"applied"`
	Clamped     bool      `json:"clamped"`
	RateHz      float64   `json:"rate_hz"`
	DurationMS  float64   `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *MoveRecord) String() string {
	return fmt.Sprintf("%s %s %s/%s %d->%d (%g %s) applied %d/%d",
		r.CreatedAt.Format(time.RFC3339), r.Axis, r.Kind, r.Origin,
		r.StartCounts, r.EndCounts, r.EndPos, r.Units, r.Applied, r.Requested)
}

// RecordMove inserts one move. A zero CreatedAt is stamped with the
// current time; timestamps are stored in UTC so range queries compare
// uniformly.
func (db *DB) RecordMove(ctx context.Context, rec MoveRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO moves (
			id, axis, kind, origin, start_counts, end_counts,
			start_position, end_position, units, requested, applied,
			clamped, rate_hz, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Axis, rec.Kind, rec.Origin, rec.StartCounts, rec.EndCounts,
		rec.StartPos, rec.EndPos, rec.Units, rec.Requested, rec.Applied,
		rec.Clamped, rec.RateHz, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record move: %w", err)
	}
	return nil
}

const moveColumns = `id, axis, kind, origin, start_counts, end_counts,
	start_position, end_position, units, requested, applied,
	clamped, rate_hz, duration_ms, created_at`

// ListMoves returns the newest moves first, optionally filtered by
// axis. A non-positive limit defaults to 100.
func (db *DB) ListMoves(ctx context.Context, axis string, limit int) ([]MoveRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if axis == "" {
		rows, err = db.QueryContext(ctx,
			`SELECT `+moveColumns+` FROM moves ORDER BY created_at DESC, id LIMIT ?`, limit)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT `+moveColumns+` FROM moves WHERE axis = ? ORDER BY created_at DESC, id LIMIT ?`, axis, limit)
	}
	if err != nil {
		return nil, err
	}
	return scanMoves(rows)
}

// MovesSince returns the moves recorded at or after t, newest first.
func (db *DB) MovesSince(ctx context.Context, t time.Time) ([]MoveRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+moveColumns+` FROM moves WHERE created_at >= ? ORDER BY created_at DESC, id`, t.UTC())
	if err != nil {
		return nil, err
	}
	return scanMoves(rows)
}

func scanMoves(rows *sql.Rows) ([]MoveRecord, error) {
	defer rows.Close()

	var moves []MoveRecord
	for rows.Next() {
		var rec MoveRecord
		if err := rows.Scan(
			&rec.ID, &rec.Axis, &rec.Kind, &rec.Origin,
			&rec.StartCounts, &rec.EndCounts, &rec.StartPos, &rec.EndPos,
			&rec.Units, &rec.Requested, &rec.Applied,
			&rec.Clamped, &rec.RateHz, &rec.DurationMS, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		moves = append(moves, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return moves, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB(fmt.Sprintf("sqlite://%s", db.path), db.DB, &tailsql.DBOptions{
		Label: "Rumble DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
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
