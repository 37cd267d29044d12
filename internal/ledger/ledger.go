// Package ledger implements the per-wallet monotonic nonce, idempotency
// cache, and submitted-transaction pipeline described in the nonce and
// submit ledger component.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keycortex/wallet/internal/chain"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/model"
	"github.com/keycortex/wallet/internal/storage"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletKeyMismatch = errors.New("wallet key mismatch")
	ErrNonceReplay       = errors.New("nonce replay detected")
	ErrChainUnsupported  = errors.New("unsupported chain for MVP; only flowcortex-l1 is enabled")
	ErrAssetUnsupported  = errors.New("unsupported asset for MVP; only PROOF and FloweR are enabled")
	ErrChainSubmitFailed = errors.New("chain submit failed")
	ErrTransactionNotFound = errors.New("transaction not found")
)

var supportedAssets = map[string]bool{"PROOF": true, "FloweR": true}

// SubmitRequest is the caller-facing submit request.
type SubmitRequest struct {
	From           string
	To             string
	Amount         string
	Asset          string
	Chain          string
	Nonce          uint64
	IdempotencyKey string
}

// SubmitResult is what the caller receives, and what gets frozen for
// idempotency replay.
type SubmitResult struct {
	TxHash   string `json:"tx_hash"`
	Accepted bool   `json:"accepted"`
}

// Ledger coordinates nonce ordering, idempotency caching, chain
// submission, and transaction-status refresh for one configured chain.
type Ledger struct {
	store    storage.Store
	keystore *keystore.Keystore
	adapter  chain.Adapter
	locks    *keyLocks
	chain    string
}

// New constructs a Ledger bound to a single configured chain adapter.
func New(store storage.Store, ks *keystore.Keystore, adapter chain.Adapter, configuredChain string) *Ledger {
	return &Ledger{store: store, keystore: ks, adapter: adapter, locks: newKeyLocks(), chain: configuredChain}
}

// NextNonce reports the nonce a caller should use next for address.
func (l *Ledger) NextNonce(ctx context.Context, address string) (uint64, error) {
	last, err := l.store.LastNonce(ctx, address)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// Submit validates, signs, and submits a transaction, honoring
// idempotency-key replay and the per-wallet total order on nonce and
// idempotency checks.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, bool, error) {
	if req.From == "" || req.To == "" || req.Amount == "" {
		return SubmitResult{}, false, ErrInvalidInput
	}
	if req.Chain != l.chain {
		return SubmitResult{}, false, ErrChainUnsupported
	}
	if !supportedAssets[req.Asset] {
		return SubmitResult{}, false, ErrAssetUnsupported
	}
	if req.Nonce == 0 {
		return SubmitResult{}, false, ErrInvalidInput
	}

	unlock := l.locks.lock(req.From)
	defer unlock()

	if req.IdempotencyKey != "" {
		if cached, found, err := l.store.Recall(ctx, req.IdempotencyKey); err != nil {
			return SubmitResult{}, false, err
		} else if found {
			var result SubmitResult
			if err := decodeJSON(cached.Body, &result); err != nil {
				return SubmitResult{}, false, fmt.Errorf("decode cached response: %w", err)
			}
			return result, true, nil
		}
	}

	w, err := l.keystore.Get(ctx, req.From)
	if err != nil {
		if errors.Is(err, keystore.ErrWalletNotFound) {
			return SubmitResult{}, false, ErrWalletNotFound
		}
		return SubmitResult{}, false, err
	}
	if walletcrypto.DeriveAddress(w.PublicKey) != req.From {
		return SubmitResult{}, false, ErrWalletKeyMismatch
	}

	last, err := l.store.LastNonce(ctx, req.From)
	if err != nil {
		return SubmitResult{}, false, err
	}
	if req.Nonce <= last {
		return SubmitResult{}, false, ErrNonceReplay
	}

	payload := canonicalPayload(req)
	sig, err := l.keystore.Sign(ctx, req.From, walletcrypto.PurposeTransaction, []byte(payload))
	if err != nil {
		return SubmitResult{}, false, err
	}

	txHash, accepted, err := l.adapter.SubmitTransaction(ctx, chain.SubmitRequest{
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		Asset:     req.Asset,
		Chain:     req.Chain,
		Nonce:     req.Nonce,
		Signature: hexEncode(sig),
		Payload:   payload,
	})
	if err != nil {
		return SubmitResult{}, false, fmt.Errorf("%w: %v", ErrChainSubmitFailed, err)
	}

	result := SubmitResult{TxHash: txHash, Accepted: accepted}

	if err := l.store.AdvanceNonce(ctx, req.From, req.Nonce); err != nil {
		return SubmitResult{}, false, err
	}
	if err := l.store.PutTransaction(ctx, model.SubmittedTransaction{
		TxHash:      txHash,
		From:        req.From,
		To:          req.To,
		Amount:      req.Amount,
		Asset:       req.Asset,
		Chain:       req.Chain,
		Nonce:       req.Nonce,
		SubmittedAt: time.Now().UTC(),
		Status:      model.TxSubmitted,
		Accepted:    accepted,
	}); err != nil {
		return SubmitResult{}, false, err
	}

	if req.IdempotencyKey != "" {
		body, err := encodeJSON(result)
		if err != nil {
			return SubmitResult{}, false, fmt.Errorf("encode response for idempotency cache: %w", err)
		}
		if err := l.store.Remember(ctx, req.IdempotencyKey, storage.StoredResponse{
			StatusCode: 200,
			Body:       body,
			RecordedAt: time.Now().UTC(),
		}); err != nil {
			return SubmitResult{}, false, err
		}
	}

	return result, false, nil
}

// GetTransaction refreshes status from the chain adapter and persists the
// updated record before responding.
func (l *Ledger) GetTransaction(ctx context.Context, txHash string) (model.SubmittedTransaction, error) {
	txr, err := l.store.GetTransaction(ctx, txHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.SubmittedTransaction{}, ErrTransactionNotFound
		}
		return model.SubmittedTransaction{}, err
	}

	status, accepted, err := l.adapter.GetTransactionStatus(ctx, txHash)
	if err != nil {
		return txr, nil // status refresh failure is not surfaced; stale record still answers
	}
	if model.TxStatus(status) != txr.Status || accepted != txr.Accepted {
		txr.Status = model.TxStatus(status)
		txr.Accepted = accepted
		if err := l.store.PutTransaction(ctx, txr); err != nil {
			return txr, err
		}
	}
	return txr, nil
}

// canonicalPayload renders the exact wire format the spec's transaction
// nonce and submit ledger signs.
func canonicalPayload(req SubmitRequest) string {
	return fmt.Sprintf("from=%s;to=%s;amount=%s;asset=%s;chain=%s;nonce=%d",
		req.From, req.To, req.Amount, req.Asset, req.Chain, req.Nonce)
}
