// Package store persists consent ledger entries. Implementations must keep
// the ledger append-only: Append and MarkExpired are the only writes, and
// MarkExpired only flips a stale granted status to expired.
package store

import (
	"context"

	"consentgate/internal/consent"
	id "consentgate/pkg/domain"
)

// Store is the consent ledger persistence contract.
//
// Append assigns rec.Seq: the next monotonic sequence number for the record's
// (user, consent type) pair. Stores must make the assignment atomic so two
// concurrent appends never share a Seq.
type Store interface {
	Append(ctx context.Context, rec *consent.Record) error
	Latest(ctx context.Context, userID id.UserID, consentType id.ConsentType) (*consent.Record, error)
	List(ctx context.Context, userID id.UserID, consentType *id.ConsentType, limit int) ([]consent.Record, error)
	MarkExpired(ctx context.Context, recordID id.ConsentID) error
}
