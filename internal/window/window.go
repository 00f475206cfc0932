// Package window resolves symbolic reporting periods into concrete date
// boundaries. The fiscal year runs July 1 through June 30.
package window

import (
	"fmt"
	"time"
)

type Spec string

const (
	Monthly          Spec = "monthly"
	FiscalYearToDate Spec = "fiscal_year_to_date"
	TrailingAnnual   Spec = "trailing_annual"
	Custom           Spec = "custom"
)

// Window is a closed date interval [Start, End].
type Window struct {
	Spec  Spec      `json:"spec"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Resolve turns a window spec and a reference date into concrete boundaries.
// It is pure: the same inputs always produce the same window, and no metric
// code ever consults the wall clock. Custom windows must be built with New.
func Resolve(spec Spec, ref time.Time) (Window, error) {
	ref = midnightUTC(ref)
	switch spec {
	case Monthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return Window{Spec: Monthly, Start: start, End: end}, nil
	case FiscalYearToDate:
		return Window{Spec: FiscalYearToDate, Start: FiscalYearStart(ref), End: ref}, nil
	case TrailingAnnual:
		return Window{Spec: TrailingAnnual, Start: ref.AddDate(-1, 0, 0), End: ref}, nil
	case Custom:
		return Window{}, fmt.Errorf("custom windows require explicit boundaries")
	}
	return Window{}, fmt.Errorf("unknown window spec %q", spec)
}

// New builds a custom window from explicit boundaries.
func New(start, end time.Time) (Window, error) {
	start, end = midnightUTC(start), midnightUTC(end)
	if end.Before(start) {
		return Window{}, fmt.Errorf("window end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return Window{Spec: Custom, Start: start, End: end}, nil
}

// FiscalYearStart returns July 1 of the fiscal year containing ref.
func FiscalYearStart(ref time.Time) time.Time {
	year := ref.Year()
	if ref.Month() < time.July {
		year--
	}
	return time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls inside the window, boundaries included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Months returns the last day of every calendar month touched by the window,
// in order. Used for month-grouped metric series.
func (w Window) Months() []time.Time {
	var ends []time.Time
	cur := time.Date(w.Start.Year(), w.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(w.End) {
		next := cur.AddDate(0, 1, 0)
		ends = append(ends, next.AddDate(0, 0, -1))
		cur = next
	}
	return ends
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
