// Package model holds the core data types for wallet custody, challenge/bind
// state, the submit ledger, and audit trail. Types are storage-agnostic;
// the storage package maps them onto Postgres rows and bbolt records.
package model

import (
	"encoding/hex"
	"time"
)

// WalletRecord is the persisted record for one custodied wallet.
type WalletRecord struct {
	Address      string
	PublicKey    []byte
	EncryptedKey []byte
	KeyNonce     []byte
	Label        string
	Chain        string
	CreatedAt    time.Time
}

// WalletRecordDTO is the JSON-safe wire shape for a WalletRecord, omitting
// all secret material.
type WalletRecordDTO struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Label     string `json:"label,omitempty"`
	Chain     string `json:"chain"`
	CreatedAt string `json:"createdAt"`
}

// ToDTO renders a WalletRecord without any secret-bearing field.
func (w WalletRecord) ToDTO() WalletRecordDTO {
	return WalletRecordDTO{
		Address:   w.Address,
		PublicKey: hex.EncodeToString(w.PublicKey),
		Label:     w.Label,
		Chain:     w.Chain,
		CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ChallengeStatus is the lifecycle state of a Challenge.
type ChallengeStatus string

const (
	ChallengeIssued   ChallengeStatus = "issued"
	ChallengeConsumed ChallengeStatus = "consumed"
	ChallengeExpired  ChallengeStatus = "expired"
)

// Challenge is a single-use, TTL-bounded nonce issued by the auth adapter.
type Challenge struct {
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    time.Time
}

// Binding is the persisted wallet-to-user mapping for a chain.
type Binding struct {
	Address    string
	UserID     string
	Chain      string
	VerifiedAt time.Time
}

// NonceEntry is the per-wallet last-submitted-nonce record.
type NonceEntry struct {
	Address   string
	LastNonce uint64
}

// IdempotencyRecord freezes a prior submit response under a caller-supplied key.
type IdempotencyRecord struct {
	Key        string
	StatusCode int
	Body       []byte
	RecordedAt time.Time
}

// TxStatus is the lifecycle state of a SubmittedTransaction.
type TxStatus string

const (
	TxSubmitted TxStatus = "submitted"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// SubmittedTransaction is the persisted record of one accepted submission.
type SubmittedTransaction struct {
	TxHash      string
	From        string
	To          string
	Amount      string
	Asset       string
	Chain       string
	Nonce       uint64
	SubmittedAt time.Time
	Status      TxStatus
	Accepted    bool
}

// AuditOutcome is the outcome recorded on an AuditEvent.
type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomeDenied  AuditOutcome = "denied"
	OutcomeError   AuditOutcome = "error"
)

// AuditEvent is an append-only audit log entry.
type AuditEvent struct {
	ID        string
	EventType string
	Address   string
	UserID    string
	Chain     string
	Outcome   AuditOutcome
	Message   string
	Timestamp time.Time
}

// Audit event type constants, referenced by the binding store and the
// orchestration API surface.
const (
	EventAuthBind              = "auth_bind"
	EventAuthVerify            = "auth_verify"
	EventOpsAccess             = "ops_access"
	EventProofCortexCommitment = "proofcortex_commitment"
)

// FallbackCounters tracks dual-store degradation, one counter per operation
// class plus a total. The storage layer owns the increments via atomics.
type FallbackCounters struct {
	PrimaryUnavailable        uint64
	BindingReadFailures       uint64
	BindingWriteFailures      uint64
	AuditReadFailures         uint64
	AuditWriteFailures        uint64
	ChallengePersistFailures  uint64
	ChallengeMarkUsedFailures uint64
	Total                     uint64
}

// JWKSState describes the current JWKS cache snapshot for diagnostics.
type JWKSState struct {
	Loaded      bool
	Source      string
	KeyCount    int
	LastRefresh time.Time
	LastError   string
}
