package authadapter

import (
	"context"
	"testing"

	"github.com/keycortex/wallet/internal/challenge"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/storage"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

func newTestAdapter(t *testing.T) (*Adapter, *keystore.Keystore) {
	t.Helper()
	store, err := storage.OpenEmbedded(t.TempDir() + "/wallet.db")
	if err != nil {
		t.Fatalf("open embedded store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ks := keystore.New(store, []byte("0123456789abcdef0123456789abcdef"), 1000, "flowcortex-l1")
	ch := challenge.New(store)
	return New(ch, ks), ks
}

func TestIssueThenVerifySucceeds(t *testing.T) {
	a, ks := newTestAdapter(t)
	ctx := context.Background()

	w, _, err := ks.Create(ctx, "primary", "")
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	nonce, err := a.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	sig, err := ks.Sign(ctx, w.Address, walletcrypto.PurposeAuth, []byte(nonce))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result, err := a.Verify(ctx, w.Address, nonce, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Address != w.Address {
		t.Fatalf("unexpected address: %s", result.Address)
	}
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	a, ks := newTestAdapter(t)
	ctx := context.Background()

	w, _, _ := ks.Create(ctx, "primary", "")
	nonce, _ := a.Issue(ctx)
	sig, _ := ks.Sign(ctx, w.Address, walletcrypto.PurposeAuth, []byte(nonce))

	if _, err := a.Verify(ctx, w.Address, nonce, sig); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := a.Verify(ctx, w.Address, nonce, sig); err != ErrChallengeAlreadyUsed {
		t.Fatalf("expected ErrChallengeAlreadyUsed, got %v", err)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	a, ks := newTestAdapter(t)
	ctx := context.Background()

	w, _, _ := ks.Create(ctx, "primary", "")
	other, _, _ := ks.Create(ctx, "other", "")
	nonce, _ := a.Issue(ctx)
	sig, _ := ks.Sign(ctx, other.Address, walletcrypto.PurposeAuth, []byte(nonce))

	if _, err := a.Verify(ctx, w.Address, nonce, sig); err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyRejectsUnknownNonce(t *testing.T) {
	a, ks := newTestAdapter(t)
	ctx := context.Background()

	// A validly signed payload over a nonce that was never issued: the
	// signature check passes, so the not-found outcome must come from the
	// challenge consume step, not from signature verification.
	w, _, _ := ks.Create(ctx, "primary", "")
	sig, _ := ks.Sign(ctx, w.Address, walletcrypto.PurposeAuth, []byte("not-a-real-nonce"))

	if _, err := a.Verify(ctx, w.Address, "not-a-real-nonce", sig); err != ErrChallengeNotFound {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestVerifyRejectsUnknownWalletWithoutConsumingChallenge(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	nonce, err := a.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := a.Verify(ctx, "0xdeadbeef00000000000000000000000000dead", nonce, []byte("not-a-real-signature")); err != ErrWalletNotFound {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}

	// The challenge must still be usable: a failed verify against an
	// unknown wallet must not have consumed it.
	if _, outcome, err := a.challenges.Consume(ctx, nonce); err != nil || outcome != storage.ConsumeOK {
		t.Fatalf("expected challenge to still be consumable, got outcome=%v err=%v", outcome, err)
	}
}

func TestVerifyRejectsBadSignatureWithoutConsumingChallenge(t *testing.T) {
	a, ks := newTestAdapter(t)
	ctx := context.Background()

	w, _, _ := ks.Create(ctx, "primary", "")
	other, _, _ := ks.Create(ctx, "other", "")
	nonce, _ := a.Issue(ctx)
	sig, _ := ks.Sign(ctx, other.Address, walletcrypto.PurposeAuth, []byte(nonce))

	if _, err := a.Verify(ctx, w.Address, nonce, sig); err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}

	// A bad signature must not have consumed the challenge either.
	if _, outcome, err := a.challenges.Consume(ctx, nonce); err != nil || outcome != storage.ConsumeOK {
		t.Fatalf("expected challenge to still be consumable, got outcome=%v err=%v", outcome, err)
	}
}
