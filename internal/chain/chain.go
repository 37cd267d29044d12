// Package chain defines the adapter contract for the single configured
// blockchain and one concrete implementation for flowcortex-l1.
package chain

import "context"

// Status is the lifecycle state of a submitted transaction as reported by
// the chain adapter.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// SubmitRequest carries an already-signed transaction to the adapter.
type SubmitRequest struct {
	From      string
	To        string
	Amount    string
	Asset     string
	Chain     string
	Nonce     uint64
	Signature string // hex-encoded
	Payload   string // canonical payload that was signed
}

// Adapter is the contract every chain implementation must satisfy.
type Adapter interface {
	// ChainID returns the constant slug this adapter serves.
	ChainID() string
	// SubmitTransaction submits an already-signed transaction. It must be
	// idempotent on the same nonce.
	SubmitTransaction(ctx context.Context, req SubmitRequest) (txHash string, accepted bool, err error)
	// GetBalance returns the smallest-unit balance as a decimal string,
	// "0" for unknown or empty.
	GetBalance(ctx context.Context, address, asset string) (string, error)
	// GetTransactionStatus returns the current status of a submitted
	// transaction.
	GetTransactionStatus(ctx context.Context, txHash string) (Status, bool, error)
}
