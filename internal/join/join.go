// Package join links payments to their originating pledges.
package join

import (
	"donorpulse/internal/core"
)

// Join produces one row per payment, annotated with the matching pledge's
// chapter, chapter type, status, frequency, and contribution when the
// payment's pledge_id resolves. Payments without a resolvable pledge are
// kept with PledgeResolved=false rather than dropped.
//
// A pledge_id appearing more than once in the pledge table is a data
// anomaly (pledge ids are defined unique) and fails the whole join with
// DuplicatePledgeIDError instead of silently picking one row.
func Join(pledges []core.Pledge, payments []core.Payment) ([]core.JoinedPayment, error) {
	byID := make(map[string]core.Pledge, len(pledges))
	counts := make(map[string]int, len(pledges))
	for _, p := range pledges {
		counts[p.ID]++
		if counts[p.ID] > 1 {
			return nil, &core.DuplicatePledgeIDError{PledgeID: p.ID, Count: counts[p.ID]}
		}
		byID[p.ID] = p
	}

	joined := make([]core.JoinedPayment, len(payments))
	for i, payment := range payments {
		row := core.JoinedPayment{Payment: payment}
		if pledge, ok := byID[payment.PledgeID]; ok && payment.PledgeID != "" {
			row.PledgeResolved = true
			row.PledgeStatus = pledge.Status
			row.Chapter = pledge.Chapter
			row.ChapterType = pledge.ChapterType
			row.Frequency = pledge.Frequency
			row.ContributionUSD = pledge.AmountUSD
		}
		joined[i] = row
	}
	return joined, nil
}

// PledgesWithoutPayments returns the pledges that have no payment referencing
// them. Metrics about pledge state alone (active-pledge counts, future ARR)
// must not require a payment to exist.
func PledgesWithoutPayments(pledges []core.Pledge, payments []core.Payment) []core.Pledge {
	paid := make(map[string]bool, len(payments))
	for _, p := range payments {
		if p.PledgeID != "" {
			paid[p.PledgeID] = true
		}
	}

	var unpaid []core.Pledge
	for _, p := range pledges {
		if !paid[p.ID] {
			unpaid = append(unpaid, p)
		}
	}
	return unpaid
}
