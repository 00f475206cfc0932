package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"donorpulse/internal/core"
	"donorpulse/internal/metrics"
	"donorpulse/internal/services"
	"donorpulse/internal/window"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.pipeline.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"pledges":   len(snap.Pledges),
		"payments":  len(snap.Payments),
		"loaded_at": snap.LoadedAt,
	})
}

// handleMetric computes one metric.
//
// Query parameters: name (required), window (monthly | fiscal_year_to_date |
// trailing_annual | custom; default fiscal_year_to_date), ref (YYYY-MM-DD,
// default today), start/end (required for custom windows), group.
func (s *Server) handleMetric(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing metric name")
		return
	}

	win, err := windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	grouping, err := metrics.ParseGrouping(r.URL.Query().Get("group"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := services.Compute(s.pipeline.Snapshot(), name, win, grouping)
	if err != nil {
		writeComputeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleAllMetrics computes every metric, ungrouped, over one window.
func (s *Server) handleAllMetrics(w http.ResponseWriter, r *http.Request) {
	win, err := windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.pipeline.Snapshot()
	all := make([]metrics.Result, 0, len(services.MetricNames()))
	for _, name := range services.MetricNames() {
		results, err := services.Compute(snap, name, win, metrics.GroupNone)
		if err != nil {
			writeComputeError(w, r, err)
			return
		}
		all = append(all, results...)
	}
	writeJSON(w, http.StatusOK, all)
}

func windowFromQuery(r *http.Request) (window.Window, error) {
	q := r.URL.Query()

	spec := window.Spec(q.Get("window"))
	if spec == "" {
		spec = window.FiscalYearToDate
	}

	if spec == window.Custom {
		start, err := parseQueryDate(q.Get("start"))
		if err != nil {
			return window.Window{}, fmt.Errorf("invalid start date: %v", err)
		}
		end, err := parseQueryDate(q.Get("end"))
		if err != nil {
			return window.Window{}, fmt.Errorf("invalid end date: %v", err)
		}
		return window.New(start, end)
	}

	ref := time.Now().UTC()
	if raw := q.Get("ref"); raw != "" {
		parsed, err := parseQueryDate(raw)
		if err != nil {
			return window.Window{}, fmt.Errorf("invalid ref date: %v", err)
		}
		ref = parsed
	}
	return window.Resolve(spec, ref)
}

func parseQueryDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	return time.Parse("2006-01-02", s)
}

func writeComputeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInsufficientData):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Metric computation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
