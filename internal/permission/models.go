// Package permission holds the per-user attribute permission state. Attributes
// are allow-by-default: only explicit toggles are stored, and the absence of a
// row means the attribute is available to AI processing.
package permission

import (
	"time"

	id "consentgate/pkg/domain"
)

// State is one explicitly-set attribute toggle.
type State struct {
	AttributeID string
	Allowed     bool
	UpdatedAt   time.Time
}

// Snapshot is the full permission state of a user at one version. States only
// contains attributes the user has explicitly set.
type Snapshot struct {
	UserID  id.UserID
	States  map[string]bool
	Version int64
}

// Allowed reports whether an attribute may be used. Attributes without an
// explicit entry default to allowed.
func (s *Snapshot) Allowed(attributeID string) bool {
	if v, ok := s.States[attributeID]; ok {
		return v
	}
	return true
}

// Change is one attribute toggle in a batch update.
type Change struct {
	AttributeID string
	Allowed     bool
}
