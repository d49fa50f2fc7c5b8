package domain

import dErrors "consentgate/pkg/domain-errors"

// ConsentType is a domain value identifying which category of data use a
// ledger entry covers. Invariant: the value must be one of the supported
// consent types; the catalog is fixed and versioned, never user-definable.
//
// Usage: construct via ParseConsentType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentType string

// Supported consent types.
const (
	// ConsentTypeDataAccess covers per-attribute AI read permissions. The
	// permission store synthesizes entries of this type so every permission
	// edit is traceable in the ledger.
	ConsentTypeDataAccess ConsentType = "data_access_permissions"

	ConsentTypeAIAnalysis  ConsentType = "ai_analysis"
	ConsentTypeMarketing   ConsentType = "marketing"
	ConsentTypeDataSharing ConsentType = "data_sharing"
)

// validConsentTypes is the single source of truth for valid consent types.
var validConsentTypes = map[ConsentType]bool{
	ConsentTypeDataAccess:  true,
	ConsentTypeAIAnalysis:  true,
	ConsentTypeMarketing:   true,
	ConsentTypeDataSharing: true,
}

// ParseConsentType constructs a ConsentType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseConsentType(s string) (ConsentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "consent type cannot be empty")
	}
	t := ConsentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid consent type")
	}
	return t, nil
}

// IsValid checks if the consent type is one of the supported enum values.
func (t ConsentType) IsValid() bool {
	return validConsentTypes[t]
}

// String returns the string representation of the consent type.
func (t ConsentType) String() string {
	return string(t)
}
