package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/keycortex/wallet/internal/chain"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/storage"
)

func newTestLedger(t *testing.T) (*Ledger, *keystore.Keystore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.db")
	embedded, err := storage.OpenEmbedded(path)
	if err != nil {
		t.Fatalf("open embedded store: %v", err)
	}
	t.Cleanup(func() { embedded.Close() })

	ks := keystore.New(embedded, []byte("test-server-encryption-key"), 1000, "flowcortex-l1")
	adapter := chain.NewFlowcortexClient("")
	return New(embedded, ks, adapter, "flowcortex-l1"), ks
}

func TestSubmitNonceReplay(t *testing.T) {
	ctx := context.Background()
	l, ks := newTestLedger(t)

	w, _, err := ks.Create(ctx, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := SubmitRequest{From: w.Address, To: "0xdeadbeef", Amount: "100", Asset: "PROOF", Chain: "flowcortex-l1", Nonce: 1}
	if _, replayed, err := l.Submit(ctx, req); err != nil || replayed {
		t.Fatalf("expected first submit to succeed fresh, got replayed=%v err=%v", replayed, err)
	}

	if _, _, err := l.Submit(ctx, req); err != ErrNonceReplay {
		t.Fatalf("expected ErrNonceReplay on repeated nonce, got %v", err)
	}
}

func TestSubmitIdempotencyKeyReplaysIdenticalResponse(t *testing.T) {
	ctx := context.Background()
	l, ks := newTestLedger(t)

	w, _, err := ks.Create(ctx, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := SubmitRequest{From: w.Address, To: "0xdeadbeef", Amount: "100", Asset: "PROOF", Chain: "flowcortex-l1", Nonce: 1, IdempotencyKey: "key-1"}
	first, replayed1, err := l.Submit(ctx, req)
	if err != nil || replayed1 {
		t.Fatalf("expected fresh submit, got replayed=%v err=%v", replayed1, err)
	}

	second, replayed2, err := l.Submit(ctx, req)
	if err != nil {
		t.Fatalf("expected idempotent replay to succeed: %v", err)
	}
	if !replayed2 {
		t.Fatalf("expected second submit with same key to be reported as replayed")
	}
	if first.TxHash != second.TxHash {
		t.Fatalf("expected byte-identical response, got %q and %q", first.TxHash, second.TxHash)
	}
}

func TestSubmitRejectsUnsupportedChainAndAsset(t *testing.T) {
	ctx := context.Background()
	l, ks := newTestLedger(t)
	w, _, err := ks.Create(ctx, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	badChain := SubmitRequest{From: w.Address, To: "0xdeadbeef", Amount: "1", Asset: "PROOF", Chain: "ethereum-mainnet", Nonce: 1}
	if _, _, err := l.Submit(ctx, badChain); err != ErrChainUnsupported {
		t.Fatalf("expected ErrChainUnsupported, got %v", err)
	}

	badAsset := SubmitRequest{From: w.Address, To: "0xdeadbeef", Amount: "1", Asset: "USDC", Chain: "flowcortex-l1", Nonce: 1}
	if _, _, err := l.Submit(ctx, badAsset); err != ErrAssetUnsupported {
		t.Fatalf("expected ErrAssetUnsupported, got %v", err)
	}
}

func TestSubmitRejectsZeroNonce(t *testing.T) {
	ctx := context.Background()
	l, ks := newTestLedger(t)
	w, _, err := ks.Create(ctx, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req := SubmitRequest{From: w.Address, To: "0xdeadbeef", Amount: "1", Asset: "PROOF", Chain: "flowcortex-l1", Nonce: 0}
	if _, _, err := l.Submit(ctx, req); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for zero nonce, got %v", err)
	}
}
