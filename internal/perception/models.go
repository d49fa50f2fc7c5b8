// Package perception holds what the AI believes about a user: labelled
// attributes with confidence and evidence. Users may contest a label through
// the dispute workflow; evidence is append-only and never deleted.
package perception

import (
	"time"

	id "consentgate/pkg/domain"
)

// Status is the lifecycle state of a perception attribute. Disputing moves
// active to disputed; an explicit reviewer resolution moves disputed to
// corrected or back to active.
type Status string

const (
	StatusActive    Status = "active"
	StatusDisputed  Status = "disputed"
	StatusCorrected Status = "corrected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusDisputed, StatusCorrected:
		return true
	}
	return false
}

// Attribute is one AI-derived belief about a user, keyed by (category, label).
type Attribute struct {
	UserID             id.UserID
	Category           string
	Label              string
	Status             Status
	Confidence         float64
	Evidence           []string
	DisputeReason      string
	ProposedCorrection string
	UpdatedAt          time.Time
}

// ResolveOutcome is the reviewer's verdict on a dispute.
type ResolveOutcome string

const (
	// OutcomeCorrected accepts the dispute; the proposed correction, when
	// present, becomes the new label.
	OutcomeCorrected ResolveOutcome = "corrected"

	// OutcomeRejected dismisses the dispute; the attribute returns to active
	// with its original label.
	OutcomeRejected ResolveOutcome = "rejected"
)

func (o ResolveOutcome) IsValid() bool {
	return o == OutcomeCorrected || o == OutcomeRejected
}

// Dispute is one entry in the append-only dispute log.
type Dispute struct {
	ID                 id.DisputeID
	UserID             id.UserID
	Category           string
	Label              string
	Reason             string
	ProposedCorrection string
	ResolvedBy         string
	Outcome            ResolveOutcome
	CreatedAt          time.Time
	ResolvedAt         *time.Time
}
