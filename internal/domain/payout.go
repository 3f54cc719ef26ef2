package domain

import "time"

// PayoutStatus enumerates the payout state machine.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// Valid reports whether the status is a known state.
func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutProcessing, PayoutCompleted, PayoutFailed:
		return true
	}
	return false
}

// CanTransitionTo encodes the allowed edges:
// pending->processing, processing->completed|failed, failed->pending.
func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	switch s {
	case PayoutPending:
		return next == PayoutProcessing
	case PayoutProcessing:
		return next == PayoutCompleted || next == PayoutFailed
	case PayoutFailed:
		return next == PayoutPending
	}
	return false
}

// Payout is a weekly reward owed to a researcher for verified contributions.
type Payout struct {
	ID                string       `json:"id"`
	ResearcherAddress string       `json:"researcherAddress"`
	ResearcherID      int64        `json:"researcherId"`
	Amount            string       `json:"amount"`
	ContributionIDs   []string     `json:"contributionIds"`
	TxHash            string       `json:"txHash,omitempty"`
	Status            PayoutStatus `json:"status"`
	Timestamp         time.Time    `json:"timestamp"`
	Chain             Chain        `json:"chain"`
}

// Clone returns a deep copy of the payout.
func (p Payout) Clone() Payout {
	out := p
	if p.ContributionIDs != nil {
		out.ContributionIDs = append([]string(nil), p.ContributionIDs...)
	}
	return out
}
