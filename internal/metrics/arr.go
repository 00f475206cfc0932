package metrics

import (
	"donorpulse/internal/core"
	"donorpulse/internal/window"

	"github.com/shopspring/decimal"
)

const (
	MetricActiveARR  = "active_arr"
	MetricFutureARR  = "future_arr"
	MetricChapterARR = "chapter_arr"
)

// ActiveARR sums the annualized USD run rate of pledges in "Active donor"
// status. One-time pledges carry no recurring rate and never contribute.
func ActiveARR(pledges []core.Pledge, w window.Window, g Grouping) ([]Result, error) {
	return runRate(MetricActiveARR, pledges, w, g, func(s core.PledgeStatus) bool {
		return s == core.StatusActiveDonor
	})
}

// FutureARR sums the annualized USD run rate of committed future pledges
// ("Pledged donor"), with no payment-activity requirement.
func FutureARR(pledges []core.Pledge, w window.Window, g Grouping) ([]Result, error) {
	return runRate(MetricFutureARR, pledges, w, g, func(s core.PledgeStatus) bool {
		return s == core.StatusPledgedDonor
	})
}

// ChapterARR sums the annualized run rate of active and pledged donors,
// broken down by chapter and chapter type unless a different grouping is
// requested.
func ChapterARR(pledges []core.Pledge, w window.Window, g Grouping) ([]Result, error) {
	if g == GroupNone {
		g = GroupChapterAndType
	}
	return runRate(MetricChapterARR, pledges, w, g, func(s core.PledgeStatus) bool {
		return s == core.StatusActiveDonor || s == core.StatusPledgedDonor
	})
}

func runRate(metric string, pledges []core.Pledge, w window.Window, g Grouping, statusOK func(core.PledgeStatus) bool) ([]Result, error) {
	if pledges == nil {
		return nil, insufficient(metric)
	}

	if g == GroupMonth {
		return runRateByMonth(metric, pledges, w, statusOK), nil
	}

	type agg struct {
		sum      decimal.Decimal
		excluded int
	}
	groups := map[string]*agg{}

	for _, p := range pledges {
		if !statusOK(p.Status) || !p.Recurring() {
			continue
		}
		key := pledgeGroupKey(p, g)
		a, ok := groups[key]
		if !ok {
			a = &agg{sum: decimal.Zero}
			groups[key] = a
		}
		annual, ok := p.AnnualizedUSD()
		if !ok {
			a.excluded++
			continue
		}
		a.sum = a.sum.Add(annual)
	}

	if g == GroupNone {
		total, ok := groups[""]
		if !ok {
			total = &agg{sum: decimal.Zero}
		}
		return []Result{value(metric, "", w, total.sum, total.excluded)}, nil
	}

	results := make([]Result, 0, len(groups))
	for key, a := range groups {
		results = append(results, value(metric, key, w, a.sum, a.excluded))
	}
	return sortResults(results), nil
}

// runRateByMonth reports the run rate as of each month end in the window,
// counting only pledges live at that point. This is the series behind the
// monthly ARR chart.
func runRateByMonth(metric string, pledges []core.Pledge, w window.Window, statusOK func(core.PledgeStatus) bool) []Result {
	results := make([]Result, 0, len(w.Months()))
	for _, monthEnd := range w.Months() {
		sum := decimal.Zero
		excluded := 0
		for _, p := range pledges {
			if !statusOK(p.Status) || !p.Recurring() || !p.ActiveAt(monthEnd) {
				continue
			}
			annual, ok := p.AnnualizedUSD()
			if !ok {
				excluded++
				continue
			}
			sum = sum.Add(annual)
		}
		results = append(results, value(metric, monthEnd.Format(monthKey), w, sum, excluded))
	}
	return results
}
