package metrics

import (
	"time"

	"donorpulse/internal/core"
	"donorpulse/internal/window"

	"github.com/shopspring/decimal"
)

const MetricAttritionRate = "attrition_rate"

// AttritionRate is the share of pledges lost inside the window: pledges that
// transitioned to "Payment failure" or "Churned donor" within the window,
// over the pledges active at the window start. A pledge that both joined and
// churned inside the window appears in neither term, so it cannot inflate
// the rate. One-time pledges are excluded on both sides.
//
// With no pledges active at the window start the rate is NoData, never a
// fabricated zero. Month grouping reports the original monthly series
// instead: churned-in-month over the average of active-at-month-start and
// active-at-month-end.
func AttritionRate(pledges []core.Pledge, w window.Window, g Grouping) ([]Result, error) {
	if pledges == nil {
		return nil, insufficient(MetricAttritionRate)
	}

	if g == GroupMonth {
		return attritionByMonth(pledges, w), nil
	}

	type agg struct {
		churned int
		base    int
	}
	groups := map[string]*agg{}

	for _, p := range pledges {
		if p.Status == core.StatusOneTime {
			continue
		}
		key := pledgeGroupKey(p, g)
		a, ok := groups[key]
		if !ok {
			a = &agg{}
			groups[key] = a
		}
		if churnedWithin(p, w.Start, w.End) {
			a.churned++
		}
		if p.ActiveAt(w.Start) {
			a.base++
		}
	}

	if g == GroupNone {
		total, ok := groups[""]
		if !ok {
			total = &agg{}
		}
		return []Result{ratio(MetricAttritionRate, "", w, total.churned, total.base)}, nil
	}

	results := make([]Result, 0, len(groups))
	for key, a := range groups {
		results = append(results, ratio(MetricAttritionRate, key, w, a.churned, a.base))
	}
	return sortResults(results), nil
}

func attritionByMonth(pledges []core.Pledge, w window.Window) []Result {
	results := make([]Result, 0, len(w.Months()))
	for _, monthEnd := range w.Months() {
		monthStart := time.Date(monthEnd.Year(), monthEnd.Month(), 1, 0, 0, 0, 0, time.UTC)

		var churned, activeStart, activeEnd int
		for _, p := range pledges {
			if p.Status == core.StatusOneTime {
				continue
			}
			if churnedWithin(p, monthStart, monthEnd) {
				churned++
			}
			if p.ActiveAt(monthStart) {
				activeStart++
			}
			if p.ActiveAt(monthEnd) {
				activeEnd++
			}
		}

		key := monthEnd.Format(monthKey)
		avg := decimal.NewFromInt(int64(activeStart + activeEnd)).Div(decimal.NewFromInt(2))
		if avg.IsZero() {
			results = append(results, noData(MetricAttritionRate, key, w))
			continue
		}
		rate := decimal.NewFromInt(int64(churned)).Div(avg)
		results = append(results, value(MetricAttritionRate, key, w, rate, 0))
	}
	return results
}

func churnedWithin(p core.Pledge, start, end time.Time) bool {
	if p.Status != core.StatusPaymentFailure && p.Status != core.StatusChurnedDonor {
		return false
	}
	if p.EndedAt.IsZero() {
		return false
	}
	return !p.EndedAt.Before(start) && !p.EndedAt.After(end)
}

func ratio(metric, key string, w window.Window, num, den int) Result {
	if den == 0 {
		return noData(metric, key, w)
	}
	rate := decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den)))
	return value(metric, key, w, rate, 0)
}
