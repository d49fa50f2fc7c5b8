// Package service implements attribute permission management: the annotated
// catalog view, batch and category-wide toggles, and the allow/deny filter the
// decision pipeline consults before reading user data.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"consentgate/internal/catalog"
	"consentgate/internal/consent"
	"consentgate/internal/device"
	"consentgate/internal/permission"
	"consentgate/internal/permission/store"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit"
	"consentgate/pkg/platform/sentinel"
	"consentgate/pkg/platform/tx"
	"consentgate/pkg/requestcontext"
)

// ledgerPurpose marks the synthesized consent ledger entries that record
// permission changes alongside explicit consent grants.
const ledgerPurpose = "data_access_permission_change"

// casRetries bounds how often a batch update re-reads and retries after a
// version conflict before giving up.
const casRetries = 3

// Auditor emits compliance audit events. Permission changes are fail-closed
// like consent changes: no audit trail, no update.
type Auditor interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// LedgerAppender appends the consent ledger record that mirrors a permission
// change. Satisfied by the consent store.
type LedgerAppender interface {
	Append(ctx context.Context, rec *consent.Record) error
}

// CacheInvalidator drops derived per-user state after a permission change.
// The privacy score cache implements it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID id.UserID) error
}

// Service manages per-user attribute permissions against the static catalog.
type Service struct {
	registry catalog.Registry
	store    store.Store
	ledger   LedgerAppender
	runner   tx.Runner
	auditor  Auditor
	cache    CacheInvalidator
	logger   *slog.Logger
}

func New(registry catalog.Registry, st store.Store, ledger LedgerAppender, runner tx.Runner, auditor Auditor, cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		store:    st,
		ledger:   ledger,
		runner:   runner,
		auditor:  auditor,
		cache:    cache,
		logger:   logger,
	}
}

// AttributeView is a catalog attribute annotated with the user's toggle.
type AttributeView struct {
	catalog.Attribute
	Allowed bool
}

// CategoryView groups annotated attributes with a per-category allowed count.
type CategoryView struct {
	Key          string
	Name         string
	Attributes   []AttributeView
	AllowedCount int
}

// Overview is the full permission state of one user. AllowedCount plus
// RestrictedCount always equals the catalog size.
type Overview struct {
	Categories      []CategoryView
	AllowedCount    int
	RestrictedCount int
	Version         int64
	CatalogVersion  string
}

// Overview returns the catalog annotated with the user's current toggles.
func (s *Service) Overview(ctx context.Context, userID id.UserID) (*Overview, error) {
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load permissions")
	}
	return s.buildOverview(snap), nil
}

func (s *Service) buildOverview(snap *permission.Snapshot) *Overview {
	out := &Overview{
		Version:        snap.Version,
		CatalogVersion: catalog.Version,
	}
	for _, cat := range s.registry.Categories() {
		view := CategoryView{Key: cat.Key, Name: cat.Name}
		for _, attr := range cat.Attributes {
			allowed := snap.Allowed(attr.ID)
			view.Attributes = append(view.Attributes, AttributeView{Attribute: attr, Allowed: allowed})
			if allowed {
				view.AllowedCount++
				out.AllowedCount++
			} else {
				out.RestrictedCount++
			}
		}
		out.Categories = append(out.Categories, view)
	}
	return out
}

// IsAllowed reports whether one catalog attribute may be used for the user.
//
// Errors: CodeValidation for attribute IDs not in the catalog.
func (s *Service) IsAllowed(ctx context.Context, userID id.UserID, attributeID string) (bool, error) {
	if _, ok := s.registry.Lookup(attributeID); !ok {
		return false, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown data attribute: %s", attributeID))
	}
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load permissions")
	}
	return snap.Allowed(attributeID), nil
}

// FilterAllowed splits requested attribute IDs into allowed and denied.
// Attributes outside the catalog are denied, not errors: a caller asking for
// something unregistered must not receive it.
func (s *Service) FilterAllowed(ctx context.Context, userID id.UserID, requested []string) (allowed, denied []string, err error) {
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load permissions")
	}

	for _, attrID := range requested {
		if _, ok := s.registry.Lookup(attrID); ok && snap.Allowed(attrID) {
			allowed = append(allowed, attrID)
		} else {
			denied = append(denied, attrID)
		}
	}
	return allowed, denied, nil
}

// Update applies a batch of attribute toggles. The write, the consent ledger
// entry recording it, and the compliance audit event commit atomically.
//
// Errors: CodeValidation for an empty batch or unknown attribute IDs,
// CodeConflict when concurrent updates exhaust the retry budget.
func (s *Service) Update(ctx context.Context, userID id.UserID, toggles map[string]bool) (*Overview, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if len(toggles) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no permission changes provided")
	}

	changes := make([]permission.Change, 0, len(toggles))
	for attrID, allow := range toggles {
		if _, ok := s.registry.Lookup(attrID); !ok {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown data attribute: %s", attrID))
		}
		changes = append(changes, permission.Change{AttributeID: attrID, Allowed: allow})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].AttributeID < changes[j].AttributeID })

	return s.apply(ctx, userID, changes, audit.EventPermissionsUpdated, "data_attributes")
}

// ToggleCategory sets every attribute in a catalog category at once.
//
// Errors: CodeValidation for unknown category keys.
func (s *Service) ToggleCategory(ctx context.Context, userID id.UserID, categoryKey string, allow bool) (*Overview, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}

	var changes []permission.Change
	for _, cat := range s.registry.Categories() {
		if cat.Key != categoryKey {
			continue
		}
		for _, attr := range cat.Attributes {
			changes = append(changes, permission.Change{AttributeID: attr.ID, Allowed: allow})
		}
	}
	if len(changes) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown data category: %s", categoryKey))
	}

	return s.apply(ctx, userID, changes, audit.EventCategoryToggled, categoryKey)
}

func (s *Service) apply(ctx context.Context, userID id.UserID, changes []permission.Change, action audit.AuditEvent, subject string) (*Overview, error) {
	now := requestcontext.Now(ctx)

	var result *permission.Snapshot
	for attempt := 0; attempt < casRetries; attempt++ {
		snap, err := s.store.Snapshot(ctx, userID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load permissions")
		}

		err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
			newVersion, err := s.store.Apply(ctx, userID, changes, snap.Version, now)
			if err != nil {
				return err
			}
			if err := s.appendLedgerRecord(ctx, userID, changes, now); err != nil {
				return err
			}
			if err := s.emitAudit(ctx, userID, action, subject, now); err != nil {
				return err
			}

			for _, c := range changes {
				snap.States[c.AttributeID] = c.Allowed
			}
			snap.Version = newVersion
			result = snap
			return nil
		})
		if errors.Is(err, sentinel.ErrVersionConflict) {
			continue
		}
		if err != nil {
			var domainErr *dErrors.Error
			if errors.As(err, &domainErr) {
				return nil, err
			}
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to update permissions")
		}

		s.invalidateCache(ctx, userID)
		return s.buildOverview(result), nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "permissions changed concurrently, please retry")
}

// appendLedgerRecord mirrors the permission change into the consent ledger so
// the user's privacy history is one chronological trail.
func (s *Service) appendLedgerRecord(ctx context.Context, userID id.UserID, changes []permission.Change, now time.Time) error {
	impacted := impactedCategories(s.registry, changes)

	rec := &consent.Record{
		ID:          id.NewConsentID(),
		UserID:      userID,
		ConsentType: id.ConsentTypeDataAccess,
		Status:      consent.StatusGranted,
		Purpose:     ledgerPurpose,
		DataTypes:   impacted,
		Metadata:    metadataFrom(ctx),
		CreatedAt:   now,
	}
	return s.ledger.Append(ctx, rec)
}

func (s *Service) emitAudit(ctx context.Context, userID id.UserID, action audit.AuditEvent, subject string, now time.Time) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.ComplianceEvent{
		Timestamp: now,
		UserID:    userID,
		Subject:   subject,
		Action:    string(action),
		Purpose:   ledgerPurpose,
		Decision:  "updated",
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to write permission audit trail")
	}
	return nil
}

// invalidateCache is best-effort. A stale score self-corrects on its TTL;
// the permission update itself must not fail over it.
func (s *Service) invalidateCache(ctx context.Context, userID id.UserID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate privacy score cache",
			"user_id", userID, "error", err)
	}
}

func impactedCategories(registry catalog.Registry, changes []permission.Change) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, c := range changes {
		attr, ok := registry.Lookup(c.AttributeID)
		if !ok || seen[attr.Category] {
			continue
		}
		seen[attr.Category] = true
		keys = append(keys, attr.Category)
	}
	sort.Strings(keys)
	return keys
}

func metadataFrom(ctx context.Context) consent.Metadata {
	source := "web"
	ua := requestcontext.UserAgent(ctx)
	if ua == "" {
		source = "system"
	}
	return consent.Metadata{
		Source:    source,
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: device.ParseUserAgent(ua),
	}
}
