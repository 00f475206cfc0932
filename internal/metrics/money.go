package metrics

import (
	"donorpulse/internal/core"
	"donorpulse/internal/window"

	"github.com/shopspring/decimal"
)

// Metric names as published to consumers.
const (
	MetricMoneyMoved               = "money_moved"
	MetricCounterfactualMoneyMoved = "counterfactual_money_moved"
)

// MoneyMoved sums USD payment amounts inside the window, excluding payments
// to the internal funds (exact portfolio-name match).
func MoneyMoved(payments []core.JoinedPayment, w window.Window, g Grouping) ([]Result, error) {
	return sumPayments(MetricMoneyMoved, payments, w, g, func(p core.JoinedPayment) decimal.Decimal {
		return p.AmountUSD
	})
}

// CounterfactualMoneyMoved is MoneyMoved with each amount weighted by its
// counterfactuality. Since counterfactuality lies in [0, 1], this never
// exceeds MoneyMoved over the same window.
func CounterfactualMoneyMoved(payments []core.JoinedPayment, w window.Window, g Grouping) ([]Result, error) {
	return sumPayments(MetricCounterfactualMoneyMoved, payments, w, g, func(p core.JoinedPayment) decimal.Decimal {
		return p.CounterfactualUSD()
	})
}

func sumPayments(metric string, payments []core.JoinedPayment, w window.Window, g Grouping, amount func(core.JoinedPayment) decimal.Decimal) ([]Result, error) {
	if payments == nil {
		return nil, insufficient(metric)
	}

	type agg struct {
		sum      decimal.Decimal
		excluded int
	}
	groups := map[string]*agg{}

	for _, p := range payments {
		if p.InternalFund() || !w.Contains(p.Date) {
			continue
		}
		key := paymentGroupKey(p, g)
		a, ok := groups[key]
		if !ok {
			a = &agg{sum: decimal.Zero}
			groups[key] = a
		}
		if !p.USDKnown {
			a.excluded++
			continue
		}
		a.sum = a.sum.Add(amount(p))
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
