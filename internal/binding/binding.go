// Package binding wraps storage.Store with the wallet-to-user binding
// policy: replace-on-rebind and audit emission.
package binding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/keycortex/wallet/internal/model"
	"github.com/keycortex/wallet/internal/storage"
)

// Store upserts and reads wallet-to-user bindings, emitting an audit event
// on every upsert.
type Store struct {
	backing storage.Store
}

// New wraps a storage.Store with binding policy.
func New(backing storage.Store) *Store {
	return &Store{backing: backing}
}

// Upsert replaces any prior mapping for address when outcome is success,
// and emits an auth_bind audit event with the given outcome in every case.
func (s *Store) Upsert(ctx context.Context, address, userID, chain string, outcome model.AuditOutcome, message string) error {
	now := time.Now().UTC()
	if outcome == model.OutcomeSuccess {
		if err := s.backing.UpsertBinding(ctx, model.Binding{
			Address:    address,
			UserID:     userID,
			Chain:      chain,
			VerifiedAt: now,
		}); err != nil {
			return err
		}
	}
	return s.backing.AppendAudit(ctx, model.AuditEvent{
		ID:        uuid.NewString(),
		EventType: model.EventAuthBind,
		Address:   address,
		UserID:    userID,
		Chain:     chain,
		Outcome:   outcome,
		Message:   message,
		Timestamp: now,
	})
}

// Get retrieves the binding for address, if any.
func (s *Store) Get(ctx context.Context, address string) (model.Binding, error) {
	return s.backing.GetBinding(ctx, address)
}

// ListAudit queries the audit trail.
func (s *Store) ListAudit(ctx context.Context, f storage.AuditFilter) ([]model.AuditEvent, error) {
	return s.backing.ListAudit(ctx, f)
}
