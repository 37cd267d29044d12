package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keycortex/wallet/internal/model"
	bolt "go.etcd.io/bbolt"
)

// Key prefixes for the embedded key-value store: wallet-key,
// wallet-binding, wallet-nonce, idempotency, submitted-tx, audit. There is
// no separate wallet-label key; a wallet's label is stored inside its
// wallet-key record. Challenges are stored under audit:challenge:{nonce}.
const (
	prefixWalletKey     = "wallet-key:"
	prefixWalletBinding = "wallet-binding:"
	prefixWalletNonce   = "wallet-nonce:"
	prefixIdempotency   = "idempotency:"
	prefixSubmittedTx   = "submitted-tx:"
	prefixAudit         = "audit:"
)

var bucketName = []byte("keycortex")

// Embedded is the always-present, local, encrypted-key-material-holding
// secondary store, backed by bbolt. It is the source of truth for
// ownership, the nonce ledger, and the idempotency cache.
type Embedded struct {
	db *bolt.DB
	// nonceLocks holds one mutex per challenge nonce, guarding
	// ConsumeChallenge's check-then-mark-used step.
	mu         sync.Mutex
	nonceLocks map[string]*sync.Mutex
}

// OpenEmbedded opens (creating if absent) a bbolt database at path and
// ensures the root bucket exists.
func OpenEmbedded(path string) (*Embedded, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedded store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	return &Embedded{db: db, nonceLocks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying bbolt file handle.
func (e *Embedded) Close() error {
	return e.db.Close()
}

func (e *Embedded) lockFor(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.nonceLocks[key]
	if !ok {
		l = &sync.Mutex{}
		e.nonceLocks[key] = l
	}
	return l
}

func (e *Embedded) get(tx *bolt.Tx, key string, out any) (bool, error) {
	b := tx.Bucket(bucketName)
	v := b.Get([]byte(key))
	if v == nil {
		return false, nil
	}
	if err := json.Unmarshal(v, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (e *Embedded) put(tx *bolt.Tx, key string, val any) error {
	b := tx.Bucket(bucketName)
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}

// PutWallet stores a wallet record keyed by its address.
func (e *Embedded) PutWallet(_ context.Context, w model.WalletRecord) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return e.put(tx, prefixWalletKey+w.Address, w)
	})
}

// GetWallet retrieves a wallet record by address.
func (e *Embedded) GetWallet(_ context.Context, address string) (model.WalletRecord, error) {
	var w model.WalletRecord
	found := false
	err := e.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = e.get(tx, prefixWalletKey+address, &w)
		return err
	})
	if err != nil {
		return model.WalletRecord{}, err
	}
	if !found {
		return model.WalletRecord{}, ErrNotFound
	}
	return w, nil
}

// ListWallets returns all wallet records, sorted by address for
// deterministic output.
func (e *Embedded) ListWallets(_ context.Context) ([]model.WalletRecord, error) {
	var out []model.WalletRecord
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		prefix := []byte(prefixWalletKey)
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var w model.WalletRecord
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			out = append(out, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// RenameWallet updates a wallet's label without touching key material.
func (e *Embedded) RenameWallet(ctx context.Context, address, label string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		var w model.WalletRecord
		found, err := e.get(tx, prefixWalletKey+address, &w)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		w.Label = label
		return e.put(tx, prefixWalletKey+address, w)
	})
}

// PutChallenge stores a freshly issued challenge.
func (e *Embedded) PutChallenge(_ context.Context, c model.Challenge) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return e.put(tx, prefixAudit+"challenge:"+c.Nonce, c)
	})
}

// ConsumeChallenge performs an atomic check-then-mark-used guarded by a
// per-nonce critical section, since bbolt does not provide row-level
// locking across separate transactions.
func (e *Embedded) ConsumeChallenge(_ context.Context, nonce string, now time.Time) (model.Challenge, ConsumeOutcome, error) {
	lock := e.lockFor("challenge:" + nonce)
	lock.Lock()
	defer lock.Unlock()

	var result model.Challenge
	var outcome ConsumeOutcome
	err := e.db.Update(func(tx *bolt.Tx) error {
		key := prefixAudit + "challenge:" + nonce
		var c model.Challenge
		found, err := e.get(tx, key, &c)
		if err != nil {
			return err
		}
		if !found {
			outcome = ConsumeNotFound
			return nil
		}
		if c.Used {
			outcome = ConsumeAlreadyUsed
			result = c
			return nil
		}
		if !now.Before(c.ExpiresAt) {
			outcome = ConsumeExpired
			result = c
			return nil
		}
		c.Used = true
		c.UsedAt = now
		if err := e.put(tx, key, c); err != nil {
			return err
		}
		outcome = ConsumeOK
		result = c
		return nil
	})
	if err != nil {
		return model.Challenge{}, "", err
	}
	return result, outcome, nil
}

// UpsertBinding writes or replaces the binding for address.
func (e *Embedded) UpsertBinding(_ context.Context, b model.Binding) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return e.put(tx, prefixWalletBinding+b.Address, b)
	})
}

// GetBinding retrieves the binding for address.
func (e *Embedded) GetBinding(_ context.Context, address string) (model.Binding, error) {
	var b model.Binding
	found := false
	err := e.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = e.get(tx, prefixWalletBinding+address, &b)
		return err
	})
	if err != nil {
		return model.Binding{}, err
	}
	if !found {
		return model.Binding{}, ErrNotFound
	}
	return b, nil
}

// LastNonce returns the last submitted nonce for address, or 0 if none.
func (e *Embedded) LastNonce(_ context.Context, address string) (uint64, error) {
	var entry model.NonceEntry
	err := e.db.View(func(tx *bolt.Tx) error {
		_, err := e.get(tx, prefixWalletNonce+address, &entry)
		return err
	})
	if err != nil {
		return 0, err
	}
	return entry.LastNonce, nil
}

// AdvanceNonce records nonce as the new last-submitted nonce for address.
// Callers are expected to hold the per-wallet ledger lock (internal/ledger)
// around the read-check-write spanning LastNonce and AdvanceNonce.
func (e *Embedded) AdvanceNonce(_ context.Context, address string, nonce uint64) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return e.put(tx, prefixWalletNonce+address, model.NonceEntry{Address: address, LastNonce: nonce})
	})
}

// Remember freezes a submit response under an idempotency key.
func (e *Embedded) Remember(_ context.Context, key string, resp StoredResponse) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return e.put(tx, prefixIdempotency+key, resp)
	})
}

// Recall retrieves a previously frozen response, if any.
func (e *Embedded) Recall(_ context.Context, key string) (StoredResponse, bool, error) {
	var resp StoredResponse
	found := false
	err := e.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = e.get(tx, prefixIdempotency+key, &resp)
		return err
	})
	if err != nil {
		return StoredResponse{}, false, err
	}
	return resp, found, nil
}

// PutTransaction stores or updates a submitted transaction record.
func (e *Embedded) PutTransaction(_ context.Context, txr model.SubmittedTransaction) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return e.put(tx, prefixSubmittedTx+txr.TxHash, txr)
	})
}

// GetTransaction retrieves a submitted transaction record by hash.
func (e *Embedded) GetTransaction(_ context.Context, txHash string) (model.SubmittedTransaction, error) {
	var txr model.SubmittedTransaction
	found := false
	err := e.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = e.get(tx, prefixSubmittedTx+txHash, &txr)
		return err
	})
	if err != nil {
		return model.SubmittedTransaction{}, err
	}
	if !found {
		return model.SubmittedTransaction{}, ErrNotFound
	}
	return txr, nil
}

// AppendAudit appends an audit event keyed by timestamp and id, per the
// persisted state layout's audit:{ts}:{uuid} scheme.
func (e *Embedded) AppendAudit(_ context.Context, ev model.AuditEvent) error {
	key := fmt.Sprintf("%s%d:%s", prefixAudit, ev.Timestamp.UnixNano(), ev.ID)
	return e.db.Update(func(tx *bolt.Tx) error {
		return e.put(tx, key, ev)
	})
}

// ListAudit scans the audit prefix and applies f in memory. Embedded audit
// storage is small enough in the MVP that a full-prefix scan is acceptable.
func (e *Embedded) ListAudit(_ context.Context, f AuditFilter) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		prefix := []byte(prefixAudit)
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if hasPrefix(k, []byte(prefixAudit+"challenge:")) {
				continue
			}
			var ev model.AuditEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			if !matchesFilter(ev, f) {
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func matchesFilter(ev model.AuditEvent, f AuditFilter) bool {
	if f.Address != "" && ev.Address != f.Address {
		return false
	}
	if f.Chain != "" && ev.Chain != f.Chain {
		return false
	}
	if f.EventType != "" && ev.EventType != f.EventType {
		return false
	}
	if f.Outcome != "" && string(ev.Outcome) != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
		return false
	}
	return true
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
