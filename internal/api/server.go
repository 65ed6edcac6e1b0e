// Package api exposes the rig and its move history over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rumble/internal/db"
	"github.com/banshee-data/rumble/internal/httputil"
	"github.com/banshee-data/rumble/internal/monitoring"
	"github.com/banshee-data/rumble/internal/motor"
	"github.com/banshee-data/rumble/internal/rig"
	"github.com/banshee-data/rumble/internal/t4"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	rig *rig.Rig
	db  *db.DB
}

func NewServer(r *rig.Rig, database *db.DB) *Server {
	return &Server{
		rig: r,
		db:  database,
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
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
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
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/axes", s.listAxes)
	mux.HandleFunc("/api/axes/{name}", s.showAxis)
	mux.HandleFunc("/api/axes/{name}/increment", s.incrementAxis)
	mux.HandleFunc("/api/axes/{name}/goto", s.gotoAxis)
	mux.HandleFunc("/api/axes/{name}/home", s.homeAxis)
	mux.HandleFunc("/api/axes/{name}/cal", s.calibrateAxis)
	mux.HandleFunc("/api/axes/{name}/limits", s.setLimits)
	mux.HandleFunc("/api/presets/{name}", s.runPreset)
	mux.HandleFunc("/api/moves", s.listMoves)
	mux.HandleFunc("/api/report", s.motionReport)
	mux.HandleFunc("/api/save", s.saveConfigs)
	mux.HandleFunc("/api/events", s.streamEvents)
	// unmatched API paths get a JSON 404 instead of the mux default
	mux.HandleFunc("/api/", s.apiNotFound)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) apiNotFound(w http.ResponseWriter, r *http.Request) {
	httputil.NotFound(w, "unknown endpoint "+r.URL.Path)
}

// statusForError maps rig and device errors onto HTTP status codes.
// Anything unrecognized is treated as a caller mistake.
func statusForError(err error) int {
	var devErr *t4.DeviceError
	switch {
	case errors.Is(err, rig.ErrUnknownAxis), errors.Is(err, rig.ErrUnknownPreset):
		return http.StatusNotFound
	case errors.Is(err, motor.ErrNoHomeSwitch), errors.Is(err, motor.ErrStalled):
		return http.StatusConflict
	case errors.As(err, &devErr),
		errors.Is(err, t4.ErrClosed),
		errors.Is(err, t4.ErrWriteFailed),
		errors.Is(err, t4.ErrNoReply):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, statusForError(err), err.Error())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	io.WriteString(w, "ok")
}
