package storage

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/keycortex/wallet/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dual is the dual-store layer: a primary relational store (optional) and
// the always-present secondary embedded store. Each operation class tries
// the primary first; on failure it increments the matching fallback
// counter and falls through to the secondary. The secondary is the source
// of truth for ownership and for the nonce/idempotency ledger; the primary
// is a convenience mirror whose failures are absorbed, never surfaced.
type Dual struct {
	Primary   Store // nil when running in single-store mode
	Secondary Store

	primaryUnavailable        atomic.Uint64
	bindingReadFailures       atomic.Uint64
	bindingWriteFailures      atomic.Uint64
	auditReadFailures         atomic.Uint64
	auditWriteFailures        atomic.Uint64
	challengePersistFailures  atomic.Uint64
	challengeMarkUsedFailures atomic.Uint64

	fallbackTotal *prometheus.CounterVec
}

// NewDual constructs a Dual store. primary may be nil for single-store mode.
func NewDual(primary, secondary Store) *Dual {
	return &Dual{
		Primary:   primary,
		Secondary: secondary,
		fallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keycortex_wallet_fallback_total",
			Help: "Count of dual-store operations that fell through to the embedded store, by operation class.",
		}, []string{"class"}),
	}
}

func (d *Dual) countFallback(class string, counter *atomic.Uint64) {
	counter.Add(1)
	d.primaryUnavailable.Add(1)
	d.fallbackTotal.WithLabelValues(class).Inc()
}

// PrimaryHealthy reports whether the primary relational store is currently
// reachable, for startup/health diagnostics. It never surfaces as a request
// error; the dual-store layer always answers from the secondary regardless.
func (d *Dual) PrimaryHealthy(ctx context.Context) (bool, string) {
	if d.Primary == nil {
		return false, ""
	}
	pinger, ok := d.Primary.(interface{ DB() *sql.DB })
	if !ok {
		return true, ""
	}
	if err := pinger.DB().PingContext(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Counters snapshots the current fallback counts for diagnostics.
func (d *Dual) Counters() model.FallbackCounters {
	return model.FallbackCounters{
		PrimaryUnavailable:        d.primaryUnavailable.Load(),
		BindingReadFailures:       d.bindingReadFailures.Load(),
		BindingWriteFailures:      d.bindingWriteFailures.Load(),
		AuditReadFailures:         d.auditReadFailures.Load(),
		AuditWriteFailures:        d.auditWriteFailures.Load(),
		ChallengePersistFailures:  d.challengePersistFailures.Load(),
		ChallengeMarkUsedFailures: d.challengeMarkUsedFailures.Load(),
		Total: d.bindingReadFailures.Load() + d.bindingWriteFailures.Load() +
			d.auditReadFailures.Load() + d.auditWriteFailures.Load() +
			d.challengePersistFailures.Load() + d.challengeMarkUsedFailures.Load(),
	}
}

// --- Wallet custody: embedded store only, per §3 ownership rules. ---

func (d *Dual) PutWallet(ctx context.Context, w model.WalletRecord) error {
	return d.Secondary.PutWallet(ctx, w)
}

func (d *Dual) GetWallet(ctx context.Context, address string) (model.WalletRecord, error) {
	return d.Secondary.GetWallet(ctx, address)
}

func (d *Dual) ListWallets(ctx context.Context) ([]model.WalletRecord, error) {
	return d.Secondary.ListWallets(ctx)
}

func (d *Dual) RenameWallet(ctx context.Context, address, label string) error {
	return d.Secondary.RenameWallet(ctx, address, label)
}

// --- Challenges: try primary, absorb failures, fall through. ---

func (d *Dual) PutChallenge(ctx context.Context, c model.Challenge) error {
	if d.Primary != nil {
		if err := d.Primary.PutChallenge(ctx, c); err != nil {
			d.countFallback("challenge_persist", &d.challengePersistFailures)
		}
	} else {
		d.countFallback("challenge_persist", &d.challengePersistFailures)
	}
	return d.Secondary.PutChallenge(ctx, c)
}

func (d *Dual) ConsumeChallenge(ctx context.Context, nonce string, now time.Time) (model.Challenge, ConsumeOutcome, error) {
	// The secondary is authoritative for consume semantics (see §4.6); the
	// primary is attempted only to keep its mirror in step, and its result
	// is discarded on failure.
	if d.Primary != nil {
		if _, _, err := d.Primary.ConsumeChallenge(ctx, nonce, now); err != nil {
			d.countFallback("challenge_mark_used", &d.challengeMarkUsedFailures)
		}
	} else {
		d.countFallback("challenge_mark_used", &d.challengeMarkUsedFailures)
	}
	return d.Secondary.ConsumeChallenge(ctx, nonce, now)
}

// --- Bindings: try primary, absorb failures, fall through. ---

func (d *Dual) UpsertBinding(ctx context.Context, b model.Binding) error {
	if d.Primary != nil {
		if err := d.Primary.UpsertBinding(ctx, b); err != nil {
			d.countFallback("binding_write", &d.bindingWriteFailures)
		}
	} else {
		d.countFallback("binding_write", &d.bindingWriteFailures)
	}
	return d.Secondary.UpsertBinding(ctx, b)
}

func (d *Dual) GetBinding(ctx context.Context, address string) (model.Binding, error) {
	if d.Primary != nil {
		b, err := d.Primary.GetBinding(ctx, address)
		if err == nil {
			return b, nil
		}
		if err != ErrNotFound {
			d.countFallback("binding_read", &d.bindingReadFailures)
		} else {
			return model.Binding{}, ErrNotFound
		}
	} else {
		d.countFallback("binding_read", &d.bindingReadFailures)
	}
	return d.Secondary.GetBinding(ctx, address)
}

// --- Ledger: reads from the embedded store only, which is authoritative
// for nonce/idempotency; writes are mirrored to the primary best-effort,
// with failures ignored and not counted. ---

func (d *Dual) LastNonce(ctx context.Context, address string) (uint64, error) {
	return d.Secondary.LastNonce(ctx, address)
}

func (d *Dual) AdvanceNonce(ctx context.Context, address string, nonce uint64) error {
	if d.Primary != nil {
		_ = d.Primary.AdvanceNonce(ctx, address, nonce)
	}
	return d.Secondary.AdvanceNonce(ctx, address, nonce)
}

func (d *Dual) Remember(ctx context.Context, key string, resp StoredResponse) error {
	if d.Primary != nil {
		_ = d.Primary.Remember(ctx, key, resp)
	}
	return d.Secondary.Remember(ctx, key, resp)
}

func (d *Dual) Recall(ctx context.Context, key string) (StoredResponse, bool, error) {
	return d.Secondary.Recall(ctx, key)
}

func (d *Dual) PutTransaction(ctx context.Context, tx model.SubmittedTransaction) error {
	if d.Primary != nil {
		_ = d.Primary.PutTransaction(ctx, tx)
	}
	return d.Secondary.PutTransaction(ctx, tx)
}

func (d *Dual) GetTransaction(ctx context.Context, txHash string) (model.SubmittedTransaction, error) {
	return d.Secondary.GetTransaction(ctx, txHash)
}

// --- Audit: secondary is authoritative for continuity; reads union both
// sources, de-duplicating by event id. ---

func (d *Dual) AppendAudit(ctx context.Context, e model.AuditEvent) error {
	if d.Primary != nil {
		if err := d.Primary.AppendAudit(ctx, e); err != nil {
			d.countFallback("audit_write", &d.auditWriteFailures)
		}
	} else {
		d.countFallback("audit_write", &d.auditWriteFailures)
	}
	return d.Secondary.AppendAudit(ctx, e)
}

func (d *Dual) ListAudit(ctx context.Context, f AuditFilter) ([]model.AuditEvent, error) {
	secondary, err := d.Secondary.ListAudit(ctx, f)
	if err != nil {
		return nil, err
	}
	if d.Primary == nil {
		return secondary, nil
	}
	primary, err := d.Primary.ListAudit(ctx, f)
	if err != nil {
		d.countFallback("audit_read", &d.auditReadFailures)
		return secondary, nil
	}
	return unionAuditByID(primary, secondary), nil
}

func unionAuditByID(a, b []model.AuditEvent) []model.AuditEvent {
	seen := make(map[string]bool, len(a)+len(b))
	var out []model.AuditEvent
	for _, ev := range a {
		if !seen[ev.ID] {
			seen[ev.ID] = true
			out = append(out, ev)
		}
	}
	for _, ev := range b {
		if !seen[ev.ID] {
			seen[ev.ID] = true
			out = append(out, ev)
		}
	}
	return out
}
