package keystore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/keycortex/wallet/internal/storage"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

func newTestKeystore(t *testing.T) *Keystore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.db")
	embedded, err := storage.OpenEmbedded(path)
	if err != nil {
		t.Fatalf("open embedded store: %v", err)
	}
	t.Cleanup(func() { embedded.Close() })
	return New(embedded, []byte("test-server-encryption-key"), 1000, "flowcortex-l1")
}

func TestCreateWithPassphraseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ks := newTestKeystore(t)

	w1, existed1, err := ks.Create(ctx, "primary", "alpha")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if existed1 {
		t.Fatalf("expected first creation to be new")
	}

	w2, existed2, err := ks.Create(ctx, "primary-again", "alpha")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !existed2 {
		t.Fatalf("expected second creation to report already_existed")
	}
	if w1.Address != w2.Address {
		t.Fatalf("expected identical address, got %s and %s", w1.Address, w2.Address)
	}
}

func TestRenameNeverTouchesKeyMaterial(t *testing.T) {
	ctx := context.Background()
	ks := newTestKeystore(t)

	w, _, err := ks.Create(ctx, "original", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ks.Rename(ctx, w.Address, "renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, err := ks.Get(ctx, w.Address)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "renamed" {
		t.Fatalf("expected label renamed, got %s", got.Label)
	}
	if string(got.EncryptedKey) != string(w.EncryptedKey) {
		t.Fatalf("expected encrypted key to be unchanged by rename")
	}
}

func TestSignThenVerify(t *testing.T) {
	ctx := context.Background()
	ks := newTestKeystore(t)

	w, _, err := ks.Create(ctx, "signer", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := []byte("challenge-nonce-value")
	sig, err := ks.Sign(ctx, w.Address, walletcrypto.PurposeAuth, payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ks.Verify(ctx, w.Address, walletcrypto.PurposeAuth, payload, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := ks.Verify(ctx, w.Address, walletcrypto.PurposeTransaction, payload, sig); err == nil {
		t.Fatalf("expected verify under a different purpose to fail")
	}
}

func TestGetUnknownWalletFails(t *testing.T) {
	ctx := context.Background()
	ks := newTestKeystore(t)
	if _, err := ks.Get(ctx, "0xdoesnotexist"); err != ErrWalletNotFound {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}
