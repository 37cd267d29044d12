// Package storage provides the dual-store persistence layer: a primary
// relational store, a secondary embedded key-value store, and a wrapper
// that tries the primary first and absorbs failures into per-class
// fallback counters.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/keycortex/wallet/internal/model"
)

// Standard error values used across storage implementations.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the operation would violate a storage invariant.
	ErrConflict = errors.New("conflict")
)

// WalletStore persists wallet records, including encrypted secret material.
// It is the single writer of the encrypted-secret column; the secondary
// store is always authoritative for this data (Dual's wallet methods use
// only the secondary).
type WalletStore interface {
	PutWallet(ctx context.Context, w model.WalletRecord) error
	GetWallet(ctx context.Context, address string) (model.WalletRecord, error)
	ListWallets(ctx context.Context) ([]model.WalletRecord, error)
	RenameWallet(ctx context.Context, address, label string) error
}

// ChallengeStore persists challenges with atomic consume semantics.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, c model.Challenge) error
	// ConsumeChallenge atomically checks existence, expiry, and unused
	// state, and marks the challenge used in the same step.
	ConsumeChallenge(ctx context.Context, nonce string, now time.Time) (model.Challenge, ConsumeOutcome, error)
}

// ConsumeOutcome is the result of an atomic challenge consume attempt.
type ConsumeOutcome string

const (
	ConsumeOK          ConsumeOutcome = "ok"
	ConsumeNotFound    ConsumeOutcome = "not_found"
	ConsumeExpired     ConsumeOutcome = "expired"
	ConsumeAlreadyUsed ConsumeOutcome = "already_used"
)

// BindingStore persists wallet-to-user bindings.
type BindingStore interface {
	UpsertBinding(ctx context.Context, b model.Binding) error
	GetBinding(ctx context.Context, address string) (model.Binding, error)
}

// LedgerStore persists per-wallet nonce state, idempotency records, and
// submitted transactions.
type LedgerStore interface {
	LastNonce(ctx context.Context, address string) (uint64, error)
	AdvanceNonce(ctx context.Context, address string, nonce uint64) error
	Remember(ctx context.Context, key string, resp StoredResponse) error
	Recall(ctx context.Context, key string) (StoredResponse, bool, error)
	PutTransaction(ctx context.Context, tx model.SubmittedTransaction) error
	GetTransaction(ctx context.Context, txHash string) (model.SubmittedTransaction, error)
}

// AuditStore appends and lists audit events.
type AuditStore interface {
	AppendAudit(ctx context.Context, e model.AuditEvent) error
	ListAudit(ctx context.Context, f AuditFilter) ([]model.AuditEvent, error)
}

// AuditFilter narrows an audit query; zero values mean "unconstrained".
type AuditFilter struct {
	Address   string
	Chain     string
	EventType string
	Outcome   string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Store aggregates all persistence capabilities required by a single
// backing implementation (Postgres or bbolt).
type Store interface {
	WalletStore
	ChallengeStore
	BindingStore
	LedgerStore
	AuditStore
}

// StoredResponse captures the HTTP response data persisted for idempotent
// submit replays.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	RecordedAt time.Time
}
