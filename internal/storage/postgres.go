// Package storage: PostgreSQL implementation of Store, the primary
// relational mirror in the dual-store layer.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/keycortex/wallet/internal/model"
)

// Postgres implements Store backed by PostgreSQL with connection pooling.
// It is the convenience mirror in the dual-store layer: the embedded
// store remains the source of truth for ownership and the nonce/
// idempotency ledger.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a pooled connection and pings it once before returning.
// Connection pool configuration matches the service's relational-mirror
// role: bounded, short-lived connections, never a blocking dependency for
// readiness.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Postgres{db: db}, nil
}

// DB returns the underlying *sql.DB, used by the migration runner and the
// duck-typed ping check behind /startupz.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// PutWallet inserts or replaces a wallet record.
func (p *Postgres) PutWallet(ctx context.Context, w model.WalletRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO wallets (address, public_key, encrypted_key, key_nonce, label, chain, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET label = EXCLUDED.label`
	_, err := p.db.ExecContext(ctx, q, w.Address, w.PublicKey, w.EncryptedKey, w.KeyNonce, w.Label, w.Chain, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetWallet retrieves a wallet by address.
func (p *Postgres) GetWallet(ctx context.Context, address string) (model.WalletRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT address, public_key, encrypted_key, key_nonce, label, chain, created_at FROM wallets WHERE address = $1`
	var w model.WalletRecord
	err := p.db.QueryRowContext(ctx, q, address).Scan(&w.Address, &w.PublicKey, &w.EncryptedKey, &w.KeyNonce, &w.Label, &w.Chain, &w.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.WalletRecord{}, ErrNotFound
		}
		return model.WalletRecord{}, fmt.Errorf("query wallet: %w", err)
	}
	return w, nil
}

// ListWallets returns all wallets ordered by address.
func (p *Postgres) ListWallets(ctx context.Context) ([]model.WalletRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT address, public_key, encrypted_key, key_nonce, label, chain, created_at FROM wallets ORDER BY address ASC`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var out []model.WalletRecord
	for rows.Next() {
		var w model.WalletRecord
		if err := rows.Scan(&w.Address, &w.PublicKey, &w.EncryptedKey, &w.KeyNonce, &w.Label, &w.Chain, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, w)
	}
	return out, nil
}

// RenameWallet updates only the label column.
func (p *Postgres) RenameWallet(ctx context.Context, address, label string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `UPDATE wallets SET label = $1 WHERE address = $2`
	res, err := p.db.ExecContext(ctx, q, label, address)
	if err != nil {
		return fmt.Errorf("rename wallet: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// PutChallenge inserts a freshly issued challenge.
func (p *Postgres) PutChallenge(ctx context.Context, c model.Challenge) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO challenges (nonce, issued_at, expires_at, used) VALUES ($1, $2, $3, $4)`
	_, err := p.db.ExecContext(ctx, q, c.Nonce, c.IssuedAt, c.ExpiresAt, c.Used)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge atomically marks a challenge used via UPDATE ... RETURNING,
// so exactly one concurrent caller observes ConsumeOK for a given nonce.
func (p *Postgres) ConsumeChallenge(ctx context.Context, nonce string, now time.Time) (model.Challenge, ConsumeOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `UPDATE challenges SET used = true, used_at = $2
		WHERE nonce = $1 AND used = false AND expires_at > $2
		RETURNING issued_at, expires_at`
	var c model.Challenge
	c.Nonce = nonce
	err := p.db.QueryRowContext(ctx, q, nonce, now).Scan(&c.IssuedAt, &c.ExpiresAt)
	if err == nil {
		c.Used = true
		c.UsedAt = now
		return c, ConsumeOK, nil
	}
	if err != sql.ErrNoRows {
		return model.Challenge{}, "", fmt.Errorf("consume challenge: %w", err)
	}

	// The conditional update matched no row: disambiguate not-found,
	// already-used, and expired by re-reading the row.
	const lookup = `SELECT issued_at, expires_at, used FROM challenges WHERE nonce = $1`
	var issuedAt, expiresAt time.Time
	var used bool
	err = p.db.QueryRowContext(ctx, lookup, nonce).Scan(&issuedAt, &expiresAt, &used)
	if err == sql.ErrNoRows {
		return model.Challenge{}, ConsumeNotFound, nil
	}
	if err != nil {
		return model.Challenge{}, "", fmt.Errorf("lookup challenge: %w", err)
	}
	c.IssuedAt, c.ExpiresAt, c.Used = issuedAt, expiresAt, used
	if used {
		return c, ConsumeAlreadyUsed, nil
	}
	return c, ConsumeExpired, nil
}

// UpsertBinding writes or replaces the binding for address.
func (p *Postgres) UpsertBinding(ctx context.Context, b model.Binding) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO bindings (address, user_id, chain, verified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET user_id = EXCLUDED.user_id, chain = EXCLUDED.chain, verified_at = EXCLUDED.verified_at`
	_, err := p.db.ExecContext(ctx, q, b.Address, b.UserID, b.Chain, b.VerifiedAt)
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}

// GetBinding retrieves the binding for address.
func (p *Postgres) GetBinding(ctx context.Context, address string) (model.Binding, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT address, user_id, chain, verified_at FROM bindings WHERE address = $1`
	var b model.Binding
	err := p.db.QueryRowContext(ctx, q, address).Scan(&b.Address, &b.UserID, &b.Chain, &b.VerifiedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Binding{}, ErrNotFound
		}
		return model.Binding{}, fmt.Errorf("query binding: %w", err)
	}
	return b, nil
}

// LastNonce returns the last submitted nonce for address, or 0 if none.
func (p *Postgres) LastNonce(ctx context.Context, address string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT last_nonce FROM nonce_ledger WHERE address = $1`
	var n int64
	err := p.db.QueryRowContext(ctx, q, address).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query nonce: %w", err)
	}
	return uint64(n), nil
}

// AdvanceNonce records nonce as the new last-submitted nonce for address.
func (p *Postgres) AdvanceNonce(ctx context.Context, address string, nonce uint64) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO nonce_ledger (address, last_nonce) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET last_nonce = EXCLUDED.last_nonce`
	_, err := p.db.ExecContext(ctx, q, address, int64(nonce))
	if err != nil {
		return fmt.Errorf("advance nonce: %w", err)
	}
	return nil
}

// Remember caches a submit response under key.
func (p *Postgres) Remember(ctx context.Context, key string, resp StoredResponse) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO idempotency_cache (key, status_code, body, recorded_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`
	_, err := p.db.ExecContext(ctx, q, key, resp.StatusCode, resp.Body, resp.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// Recall retrieves a previously cached response, if any.
func (p *Postgres) Recall(ctx context.Context, key string) (StoredResponse, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT status_code, body, recorded_at FROM idempotency_cache WHERE key = $1`
	var resp StoredResponse
	err := p.db.QueryRowContext(ctx, q, key).Scan(&resp.StatusCode, &resp.Body, &resp.RecordedAt)
	if err == sql.ErrNoRows {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, fmt.Errorf("query idempotency record: %w", err)
	}
	return resp, true, nil
}

// PutTransaction inserts or updates a submitted transaction record.
func (p *Postgres) PutTransaction(ctx context.Context, txr model.SubmittedTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO submitted_transactions (tx_hash, from_address, to_address, amount, asset, chain, nonce, submitted_at, status, accepted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tx_hash) DO UPDATE SET status = EXCLUDED.status, accepted = EXCLUDED.accepted`
	_, err := p.db.ExecContext(ctx, q, txr.TxHash, txr.From, txr.To, txr.Amount, txr.Asset, txr.Chain, int64(txr.Nonce), txr.SubmittedAt, string(txr.Status), txr.Accepted)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a submitted transaction record by hash.
func (p *Postgres) GetTransaction(ctx context.Context, txHash string) (model.SubmittedTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT tx_hash, from_address, to_address, amount, asset, chain, nonce, submitted_at, status, accepted FROM submitted_transactions WHERE tx_hash = $1`
	var txr model.SubmittedTransaction
	var nonce int64
	var status string
	err := p.db.QueryRowContext(ctx, q, txHash).Scan(&txr.TxHash, &txr.From, &txr.To, &txr.Amount, &txr.Asset, &txr.Chain, &nonce, &txr.SubmittedAt, &status, &txr.Accepted)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.SubmittedTransaction{}, ErrNotFound
		}
		return model.SubmittedTransaction{}, fmt.Errorf("query transaction: %w", err)
	}
	txr.Nonce = uint64(nonce)
	txr.Status = model.TxStatus(status)
	return txr, nil
}

// AppendAudit inserts an audit event. Audit writes are best-effort on the
// relational path; the dual-store wrapper absorbs and counts failures.
func (p *Postgres) AppendAudit(ctx context.Context, ev model.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO audit_events (id, event_type, address, user_id, chain, outcome, message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := p.db.ExecContext(ctx, q, ev.ID, ev.EventType, ev.Address, ev.UserID, ev.Chain, string(ev.Outcome), ev.Message, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAudit queries audit events matching f, most constraints applied in SQL.
func (p *Postgres) ListAudit(ctx context.Context, f AuditFilter) ([]model.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := `SELECT id, event_type, address, user_id, chain, outcome, message, timestamp FROM audit_events WHERE 1=1`
	args := []any{}
	argN := 1
	add := func(clause string, val any) {
		q += fmt.Sprintf(" AND %s $%d", clause, argN)
		args = append(args, val)
		argN++
	}
	if f.Address != "" {
		add("address =", f.Address)
	}
	if f.Chain != "" {
		add("chain =", f.Chain)
	}
	if f.EventType != "" {
		add("event_type =", f.EventType)
	}
	if f.Outcome != "" {
		add("outcome =", f.Outcome)
	}
	if !f.Since.IsZero() {
		add("timestamp >=", f.Since)
	}
	if !f.Until.IsZero() {
		add("timestamp <=", f.Until)
	}
	q += fmt.Sprintf(" ORDER BY timestamp ASC, id ASC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var outcome string
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Address, &ev.UserID, &ev.Chain, &outcome, &ev.Message, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Outcome = model.AuditOutcome(outcome)
		out = append(out, ev)
	}
	return out, nil
}
