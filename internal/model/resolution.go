package model

import "time"

// CandidateDate is one source's proposed opening date for an entity.
type CandidateDate struct {
	Date                PartialDate `json:"date"`
	Source              string      `json:"source"`
	ExternalReferenceID string      `json:"external_reference_id,omitempty"`
	// MatchConfidence is 1.0 for exact-key lookups and the link score for
	// fuzzy or spatial lookups.
	MatchConfidence float64 `json:"match_confidence"`
}

// Precision is shorthand for c.Date.Precision().
func (c CandidateDate) Precision() Precision {
	return c.Date.Precision()
}

// Tier is a coarse reliability class for a source.
type Tier string

// Tier values.
const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Rank gives the total order high > medium > low. Unknown tiers rank 0.
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Outcome is the result of asking one source about one entity.
type Outcome string

// Outcome values.
const (
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// Attempt records one step of the priority walk.
type Attempt struct {
	Source    string         `json:"source"`
	Outcome   Outcome        `json:"outcome"`
	Candidate *CandidateDate `json:"candidate,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}

// ResolvedDate is the arbitrated result for one entity. Source is empty
// exactly when Date is nil.
type ResolvedDate struct {
	EntityID         string       `json:"entity_id"`
	Date             *PartialDate `json:"date,omitempty"`
	Year             *int         `json:"year,omitempty"`
	Source           string       `json:"source,omitempty"`
	Tier             Tier         `json:"tier,omitempty"`
	AttemptedSources []string     `json:"attempted_sources"`
	Attempts         []Attempt    `json:"attempts,omitempty"`
}

// Resolved reports whether a source produced a date.
func (r ResolvedDate) Resolved() bool {
	return r.Date != nil
}

// Winner returns the winning candidate, or nil when exhausted.
func (r ResolvedDate) Winner() *CandidateDate {
	if !r.Resolved() || len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1].Candidate
}
