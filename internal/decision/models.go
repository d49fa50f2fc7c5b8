// Package decision holds the immutable audit records for AI-driven outcomes.
// A decision row is written before the AI result leaves the service and is
// never edited afterwards, except for the write-once human review and the
// repeatable user feedback annotation.
package decision

import (
	"time"

	id "consentgate/pkg/domain"
)

// EntityType names what kind of entity a decision is about.
type EntityType string

const (
	EntityTransaction     EntityType = "transaction"
	EntityAccount         EntityType = "account"
	EntityLoanApplication EntityType = "loan_application"
	EntityProfile         EntityType = "profile"
)

func (t EntityType) IsValid() bool {
	switch t {
	case EntityTransaction, EntityAccount, EntityLoanApplication, EntityProfile:
		return true
	}
	return false
}

// DecisionType names the AI computation that produced the decision.
type DecisionType string

const (
	TypeFraudCheck          DecisionType = "fraud_check"
	TypeLoanEligibility     DecisionType = "loan_eligibility"
	TypeRecommendation      DecisionType = "recommendation"
	TypeTransactionAnalysis DecisionType = "transaction_analysis"
)

func (t DecisionType) IsValid() bool {
	switch t {
	case TypeFraudCheck, TypeLoanEligibility, TypeRecommendation, TypeTransactionAnalysis:
		return true
	}
	return false
}

// Status is the decision outcome. It changes only through an overriding
// human review.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
	StatusFlagged     Status = "flagged"
	StatusUnderReview Status = "under_review"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusApproved, StatusDenied, StatusFlagged, StatusUnderReview:
		return true
	}
	return false
}

// Impact classifies how a factor moved the outcome.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

func (i Impact) IsValid() bool {
	switch i {
	case ImpactPositive, ImpactNegative, ImpactNeutral:
		return true
	}
	return false
}

// ReviewDecision is the reviewer's verdict.
type ReviewDecision string

const (
	ReviewConfirmed  ReviewDecision = "confirmed"
	ReviewOverridden ReviewDecision = "overridden"
)

func (d ReviewDecision) IsValid() bool {
	return d == ReviewConfirmed || d == ReviewOverridden
}

// Model identifies the AI model behind a decision.
type Model struct {
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Confidence float64 `json:"confidence"`
	BiasCheck  bool    `json:"biasCheck"`
}

// Factor is one weighted input to a decision.
type Factor struct {
	Name   string  `json:"name"`
	Value  any     `json:"value"`
	Weight float64 `json:"weight"`
	Impact Impact  `json:"impact"`
}

// Explanation is the human-readable account of why the AI decided as it did.
type Explanation struct {
	Summary         string   `json:"summary"`
	Details         string   `json:"details,omitempty"`
	Factors         []Factor `json:"factors"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// HumanReview is the one-time authoritative annotation by a named reviewer.
type HumanReview struct {
	ReviewedBy string         `json:"reviewedBy"`
	ReviewedAt time.Time      `json:"reviewedAt"`
	Decision   ReviewDecision `json:"decision"`
	Notes      string         `json:"notes,omitempty"`
}

// Feedback is the user's non-authoritative annotation. Unlike HumanReview it
// may be replaced and never changes the decision status.
type Feedback struct {
	UserFeedback   string    `json:"userFeedback"`
	CorrectOutcome *bool     `json:"correctOutcome,omitempty"`
	Note           string    `json:"note,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// Decision is one audited AI outcome.
type Decision struct {
	ID              id.DecisionID
	UserID          id.UserID
	RelatedEntityID string
	EntityType      EntityType
	DecisionType    DecisionType
	Status          Status
	Model           Model
	Explanation     Explanation
	AttributesUsed  []string
	HumanReview     *HumanReview
	Feedback        *Feedback
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OverriddenStatus is the deterministic flip applied when a review overrides
// the AI outcome.
func OverriddenStatus(current Status) Status {
	switch current {
	case StatusApproved:
		return StatusDenied
	case StatusDenied:
		return StatusApproved
	case StatusFlagged, StatusUnderReview:
		return StatusApproved
	}
	return current
}
