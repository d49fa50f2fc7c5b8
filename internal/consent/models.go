// Package consent defines the append-only consent ledger model. Ledger
// entries are never edited; every state change appends a new record, and the
// record with the greatest Seq per (user, consent type) defines current status.
package consent

import (
	"time"

	id "consentgate/pkg/domain"
)

// Status is the stored state of a single ledger entry.
type Status string

const (
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"

	// StatusExpired is written lazily: a granted record past its ExpiresAt
	// already reads as expired; the stored status catches up on the next
	// write for that consent type.
	StatusExpired Status = "expired"
)

// Metadata captures where a consent decision came from. The user agent is
// stored as a parsed display label, not the raw header.
type Metadata struct {
	Source    string `json:"source"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Record is a single immutable ledger entry.
//
// Seq is assigned by the store and is monotonic per (UserID, ConsentType).
// Current status derivation uses Seq, never CreatedAt, so concurrent appends
// under clock skew still have a total order.
type Record struct {
	ID            id.ConsentID
	UserID        id.UserID
	ConsentType   id.ConsentType
	Status        Status
	Purpose       string
	DataTypes     []string
	ExpiresAt     *time.Time
	Metadata      Metadata
	PolicyVersion string
	Reason        string
	Seq           int64
	CreatedAt     time.Time
}

// ExpiredAt reports whether a granted record has passed its expiry.
func (r Record) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// ActiveAt reports whether the record represents a currently valid grant.
func (r Record) ActiveAt(now time.Time) bool {
	return r.Status == StatusGranted && !r.ExpiredAt(now)
}

// EffectiveStatus is the status a reader observes at the given time,
// accounting for lazy expiration.
func (r Record) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusGranted && r.ExpiredAt(now) {
		return StatusExpired
	}
	return r.Status
}
