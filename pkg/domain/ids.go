// Package domain holds shared domain primitives: typed IDs and the consent
// type catalog. Typed IDs prevent cross-type assignment at compile time.
package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "consentgate/pkg/domain-errors"
)

// Typed IDs. Construct via the Parse functions at trust boundaries; direct
// casting bypasses validation.
type (
	// UserID identifies the user whose data and consents are managed.
	// Identity verification is external; callers supply an authenticated ID.
	UserID uuid.UUID

	// DecisionID identifies an immutable AI decision record.
	DecisionID uuid.UUID

	// ConsentID identifies a single ledger entry.
	ConsentID uuid.UUID

	// DisputeID identifies a perception dispute log entry.
	DisputeID uuid.UUID
)

// maxIDInputLen bounds parser input so oversized strings are rejected before
// uuid.Parse sees them.
const maxIDInputLen = 64

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if len(s) > maxIDInputLen || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "malformed id")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "malformed id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "nil id not allowed")
	}
	return u, nil
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseDecisionID constructs a DecisionID from external input.
func ParseDecisionID(s string) (DecisionID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DecisionID{}, err
	}
	return DecisionID(u), nil
}

// ParseConsentID constructs a ConsentID from external input.
func ParseConsentID(s string) (ConsentID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ConsentID{}, err
	}
	return ConsentID(u), nil
}

// NewUserID returns a fresh random UserID. Test and seed helper.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewDecisionID returns a fresh random DecisionID.
func NewDecisionID() DecisionID { return DecisionID(uuid.New()) }

// NewConsentID returns a fresh random ConsentID.
func NewConsentID() ConsentID { return ConsentID(uuid.New()) }

// NewDisputeID returns a fresh random DisputeID.
func NewDisputeID() DisputeID { return DisputeID(uuid.New()) }

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id DecisionID) String() string { return uuid.UUID(id).String() }
func (id ConsentID) String() string  { return uuid.UUID(id).String() }
func (id DisputeID) String() string  { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DecisionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
