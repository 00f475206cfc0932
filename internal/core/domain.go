package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// PledgeStatus is the lifecycle state of a pledge as reported by the
	// donation platform. Values outside the known set are preserved verbatim
	// and flagged via Pledge.StatusRecognized.
	PledgeStatus string

	// Frequency is the recurrence of a pledge's contribution.
	Frequency string

	// Pledge is one immutable pledge version. A donor changing amount or
	// frequency produces a new pledge row with a new ID, so DonorID is
	// many-to-one with pledges.
	Pledge struct {
		ID          string
		DonorID     string
		Chapter     string
		ChapterType string
		Status      PledgeStatus
		CreatedAt   time.Time
		StartsAt    time.Time
		EndedAt     time.Time // zero means still open
		Amount      decimal.Decimal
		Currency    string
		Frequency   Frequency
		Platform    string

		// Derived during normalization, never present in the raw source.
		AmountUSD           decimal.Decimal
		USDKnown            bool
		StatusRecognized    bool
		FrequencyRecognized bool
		PaymentCount        int
		LastPaymentAt       time.Time
	}

	// Payment is one immutable donation transaction. PledgeID may be empty
	// or may point at a pledge that no longer resolves.
	Payment struct {
		ID                string
		DonorID           string
		Platform          string
		Portfolio         string
		PledgeID          string
		Amount            decimal.Decimal
		Currency          string
		Date              time.Time
		Counterfactuality float64

		AmountUSD decimal.Decimal
		USDKnown  bool
	}

	// JoinedPayment is one payment annotated with its pledge's attributes
	// when the pledge reference resolves. Payments without a resolvable
	// pledge keep PledgeResolved=false and are never dropped.
	JoinedPayment struct {
		Payment
		PledgeResolved  bool
		PledgeStatus    PledgeStatus
		Chapter         string
		ChapterType     string
		Frequency       Frequency
		ContributionUSD decimal.Decimal
	}
)

const (
	StatusActiveDonor    PledgeStatus = "Active donor"
	StatusPledgedDonor   PledgeStatus = "Pledged donor"
	StatusPaymentFailure PledgeStatus = "Payment failure"
	StatusChurnedDonor   PledgeStatus = "Churned donor"
	StatusOneTime        PledgeStatus = "One-Time"
	StatusUpdated        PledgeStatus = "Updated"
	StatusError          PledgeStatus = "ERROR"
)

const (
	FrequencyMonthly   Frequency = "Monthly"
	FrequencyQuarterly Frequency = "Quarterly"
	FrequencyAnnually  Frequency = "Annually"
	FrequencyOneTime   Frequency = "One-Time"
)

// InternalFunds are portfolio names that represent internal money movement
// and are excluded from the money-moved metrics. Matching is exact: a name
// differing by case or whitespace does not match.
var InternalFunds = map[string]bool{
	"One for the World Discretionary Fund": true,
	"One for the World Operating Costs":    true,
}

// KnownStatus reports whether s belongs to the recognized status set.
func KnownStatus(s PledgeStatus) bool {
	switch s {
	case StatusActiveDonor, StatusPledgedDonor, StatusPaymentFailure,
		StatusChurnedDonor, StatusOneTime, StatusUpdated, StatusError:
		return true
	}
	return false
}

// KnownFrequency reports whether f belongs to the recognized frequency set.
func KnownFrequency(f Frequency) bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually, FrequencyOneTime:
		return true
	}
	return false
}

// ActiveAt reports whether the pledge was live at t: it had started and had
// not yet ended. An open pledge (zero EndedAt) counts as live.
func (p Pledge) ActiveAt(t time.Time) bool {
	if p.StartsAt.IsZero() || p.StartsAt.After(t) {
		return false
	}
	return p.EndedAt.IsZero() || p.EndedAt.After(t)
}

// Recurring reports whether the pledge carries a recurring rate. One-time
// pledges have no annualized value and are excluded from ARR and attrition.
func (p Pledge) Recurring() bool {
	return p.Status != StatusOneTime && p.Frequency != FrequencyOneTime
}

// AnnualizedUSD returns the pledge's yearly run rate in USD: monthly
// contributions times 12, quarterly times 4, annual as-is. The second return
// is false for one-time pledges, unrecognized frequencies, and pledges whose
// USD amount is unknown.
func (p Pledge) AnnualizedUSD() (decimal.Decimal, bool) {
	if !p.USDKnown {
		return decimal.Zero, false
	}
	switch p.Frequency {
	case FrequencyMonthly:
		return p.AmountUSD.Mul(decimal.NewFromInt(12)), true
	case FrequencyQuarterly:
		return p.AmountUSD.Mul(decimal.NewFromInt(4)), true
	case FrequencyAnnually:
		return p.AmountUSD, true
	}
	return decimal.Zero, false
}

// InternalFund reports whether the payment went to an internal fund.
func (p Payment) InternalFund() bool {
	return InternalFunds[p.Portfolio]
}

// CounterfactualUSD is the payment's USD amount weighted by the probability
// that it would not have happened without the program.
func (p Payment) CounterfactualUSD() decimal.Decimal {
	return p.AmountUSD.Mul(decimal.NewFromFloat(p.Counterfactuality))
}
