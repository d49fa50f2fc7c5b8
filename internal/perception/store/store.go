// Package store persists perception attributes and the dispute log.
package store

import (
	"context"
	"time"

	"consentgate/internal/perception"
	id "consentgate/pkg/domain"
)

// Store is the persistence contract for perception attributes and disputes.
//
// Sentinel errors: ErrNotFound for missing attributes or disputes,
// ErrInvalidState when a state-transition precondition does not hold
// (disputing a non-active attribute, resolving a non-disputed one).
type Store interface {
	// Upsert writes an AI snapshot row. For existing rows only confidence,
	// evidence, and the timestamp are refreshed; a new snapshot never
	// silently clears a dispute or a correction.
	Upsert(ctx context.Context, attr *perception.Attribute) error

	List(ctx context.Context, userID id.UserID) ([]perception.Attribute, error)

	Get(ctx context.Context, userID id.UserID, category, label string) (*perception.Attribute, error)

	// MarkDisputed transitions active -> disputed, recording the reason and
	// the proposed correction on the attribute row.
	MarkDisputed(ctx context.Context, userID id.UserID, category, label, reason, correction string, now time.Time) error

	// SetResolution transitions disputed -> newStatus, renaming the label
	// when newLabel differs, and clears the dispute annotations.
	SetResolution(ctx context.Context, userID id.UserID, category, label, newLabel string, newStatus perception.Status, now time.Time) error

	// AppendEvidence adds evidence entries to an existing attribute.
	AppendEvidence(ctx context.Context, userID id.UserID, category, label string, evidence []string, now time.Time) error

	// AppendDispute writes one entry to the append-only dispute log.
	AppendDispute(ctx context.Context, d *perception.Dispute) error

	// OpenDispute returns the newest unresolved dispute for the attribute.
	OpenDispute(ctx context.Context, userID id.UserID, category, label string) (*perception.Dispute, error)

	ListDisputes(ctx context.Context, userID id.UserID) ([]perception.Dispute, error)

	// ResolveDispute stamps the reviewer and outcome on an open dispute.
	ResolveDispute(ctx context.Context, disputeID id.DisputeID, resolvedBy string, outcome perception.ResolveOutcome, resolvedAt time.Time) error
}
