package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rumble/internal/db"
	"github.com/banshee-data/rumble/internal/httputil"
	"github.com/banshee-data/rumble/internal/motor"
	"github.com/banshee-data/rumble/internal/report"
	"github.com/banshee-data/rumble/internal/rig"
)

// decodeBody decodes a JSON request body into v. An empty body leaves v
// at its zero value so handlers can apply defaults.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid request body: %v", err)
}

func (s *Server) listAxes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.rig.Statuses())
}

func (s *Server) showAxis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	m, err := s.rig.Motor(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, m.Status())
}

func (s *Server) incrementAxis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Steps    *int64   `json:"steps"`
		DeltaCal *float64 `json:"delta_cal"`
		Block    *bool    `json:"block"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if (req.Steps == nil) == (req.DeltaCal == nil) {
		httputil.BadRequest(w, "body requires exactly one of steps or delta_cal")
		return
	}

	axis := r.PathValue("name")
	block := req.Block == nil || *req.Block

	var mv motor.Move
	var err error
	if req.Steps != nil {
		mv, err = s.rig.Increment(r.Context(), axis, *req.Steps, block, rig.OriginAPI)
	} else {
		mv, err = s.rig.IncrementCal(r.Context(), axis, *req.DeltaCal, block, rig.OriginAPI)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, mv)
}

func (s *Server) gotoAxis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Counts   *int64   `json:"counts"`
		Position *float64 `json:"position"`
		Block    *bool    `json:"block"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if (req.Counts == nil) == (req.Position == nil) {
		httputil.BadRequest(w, "body requires exactly one of counts or position")
		return
	}

	axis := r.PathValue("name")
	block := req.Block == nil || *req.Block

	var mv motor.Move
	var err error
	if req.Counts != nil {
		mv, err = s.rig.Goto(r.Context(), axis, *req.Counts, block, rig.OriginAPI)
	} else {
		mv, err = s.rig.GotoCal(r.Context(), axis, *req.Position, block, rig.OriginAPI)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, mv)
}

func (s *Server) homeAxis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Step     int64 `json:"step"`
		MaxTries int   `json:"max_tries"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	found, err := s.rig.Home(r.Context(), r.PathValue("name"), req.Step, req.MaxTries, rig.OriginAPI)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"found": found})
}

func (s *Server) calibrateAxis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Zero  *float64     `json:"zero"`
		Slope *float64     `json:"slope"`
		Units *string      `json:"units"`
		Fit   [][2]float64 `json:"fit"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	m, err := s.rig.Motor(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if len(req.Fit) > 0 {
		if req.Zero != nil || req.Slope != nil || req.Units != nil {
			httputil.BadRequest(w, "fit cannot be combined with zero, slope, or units")
			return
		}
		samples := make([]motor.Sample, 0, len(req.Fit))
		for _, pair := range req.Fit {
			samples = append(samples, motor.Sample{Counts: int64(math.Round(pair[0])), Position: pair[1]})
		}
		if _, err := m.Fit(samples); err != nil {
			s.writeError(w, err)
			return
		}
	} else {
		if req.Zero == nil && req.Slope == nil && req.Units == nil {
			httputil.BadRequest(w, "body requires zero, slope, units, or fit")
			return
		}
		cal := m.Calibration()
		if req.Zero != nil {
			cal.Zero = *req.Zero
		}
		if req.Slope != nil {
			cal.Slope = *req.Slope
		}
		if req.Units != nil {
			cal.Units = *req.Units
		}
		if err := m.SetCal(cal.Zero, cal.Slope, cal.Units); err != nil {
			s.writeError(w, err)
			return
		}
	}
	httputil.WriteJSONOK(w, m.Status())
}

type limitSpec struct {
	Value *float64 `json:"value"`
	Cal   bool     `json:"cal"`
	Here  bool     `json:"here"`
	Clear bool     `json:"clear"`
}

// args translates a limit request into SetUpperLimit/SetLowerLimit
// arguments; clear wins over here, here wins over value.
func (spec *limitSpec) args(side string) (*float64, bool, bool, error) {
	switch {
	case spec.Clear:
		return nil, false, false, nil
	case spec.Here:
		return nil, false, true, nil
	case spec.Value != nil:
		return spec.Value, spec.Cal, false, nil
	default:
		return nil, false, false, fmt.Errorf("%s limit requires one of value, here, or clear", side)
	}
}

func (s *Server) setLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Upper *limitSpec `json:"upper"`
		Lower *limitSpec `json:"lower"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Upper == nil && req.Lower == nil {
		httputil.BadRequest(w, "body requires upper or lower")
		return
	}

	m, err := s.rig.Motor(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.Upper != nil {
		value, cal, here, err := req.Upper.args("upper")
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := m.SetUpperLimit(value, cal, here); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.Lower != nil {
		value, cal, here, err := req.Lower.args("lower")
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := m.SetLowerLimit(value, cal, here); err != nil {
			s.writeError(w, err)
			return
		}
	}
	httputil.WriteJSONOK(w, m.Status())
}

func (s *Server) runPreset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Block *bool `json:"block"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	block := req.Block == nil || *req.Block

	mv, err := s.rig.Preset(r.Context(), r.PathValue("name"), block, rig.OriginAPI)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, mv)
}

// parseLimit reads a non-negative integer query parameter, returning
// fallback when absent.
func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return v, nil
}

func (s *Server) listMoves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := parseLimit(r, 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	recs, err := s.db.ListMoves(r.Context(), r.URL.Query().Get("axis"), limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSONOK(w, recs)
}

const reportMoveLimit = 1000

func (s *Server) motionReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := parseLimit(r, reportMoveLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	// since selects a time window instead of the newest-N rows
	var moves []db.MoveRecord
	axis := r.URL.Query().Get("axis")
	sinceRaw := r.URL.Query().Get("since")
	if sinceRaw != "" {
		since, perr := time.Parse(time.RFC3339, sinceRaw)
		if perr != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid since %q: want RFC 3339", sinceRaw))
			return
		}
		moves, err = s.db.MovesSince(r.Context(), since)
	} else {
		moves, err = s.db.ListMoves(r.Context(), axis, limit)
	}
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sinceRaw != "" && axis != "" {
		kept := moves[:0]
		for _, mv := range moves {
			if mv.Axis == axis {
				kept = append(kept, mv)
			}
		}
		moves = kept
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, report.FromMoves(moves, s.rig.Statuses())); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render report: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) saveConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.rig.Save(""); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"saved": s.rig.Dir()})
}
