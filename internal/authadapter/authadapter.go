// Package authadapter implements the issue and verify steps of the
// challenge/verify/bind state machine: issue a nonce and verify a wallet's
// signature over it. Binding a wallet to a user identity is a separate
// step handled by the binding package. Callers record verify attempts to
// the audit trail.
package authadapter

import (
	"context"
	"errors"

	"github.com/keycortex/wallet/internal/challenge"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/storage"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

var (
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeExpired     = errors.New("challenge expired")
	ErrChallengeAlreadyUsed = errors.New("challenge already used")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrSignatureInvalid     = errors.New("signature invalid")
)

// VerifyResult is what a successful verify call returns to its caller.
type VerifyResult struct {
	Address string
	Nonce   string
}

// Adapter wires the challenge store and keystore into the auth state
// machine's issue and verify steps. Binding itself is handled by the
// binding package through its own request; Verify does not bind.
type Adapter struct {
	challenges *challenge.Store
	keystore   *keystore.Keystore
}

// New constructs an Adapter.
func New(challenges *challenge.Store, ks *keystore.Keystore) *Adapter {
	return &Adapter{challenges: challenges, keystore: ks}
}

// Issue mints a fresh challenge nonce for a caller to sign.
func (a *Adapter) Issue(ctx context.Context) (string, error) {
	c, err := a.challenges.Issue(ctx)
	if err != nil {
		return "", err
	}
	return c.Nonce, nil
}

// Verify checks sig against nonce under the auth-purpose domain
// separation, using address's custodied public key, and only consumes
// the challenge once that check succeeds. Verification failures —
// unknown wallet or bad signature — never touch the nonce's state, so a
// caller that flubs a signature can retry against the same challenge
// until it expires.
func (a *Adapter) Verify(ctx context.Context, address, nonce string, sig []byte) (VerifyResult, error) {
	if err := a.keystore.Verify(ctx, address, walletcrypto.PurposeAuth, []byte(nonce), sig); err != nil {
		if errors.Is(err, keystore.ErrWalletNotFound) {
			return VerifyResult{}, ErrWalletNotFound
		}
		return VerifyResult{}, ErrSignatureInvalid
	}

	_, outcome, err := a.challenges.Consume(ctx, nonce)
	if err != nil {
		return VerifyResult{}, err
	}
	switch outcome {
	case storage.ConsumeNotFound:
		return VerifyResult{}, ErrChallengeNotFound
	case storage.ConsumeExpired:
		return VerifyResult{}, ErrChallengeExpired
	case storage.ConsumeAlreadyUsed:
		return VerifyResult{}, ErrChallengeAlreadyUsed
	}

	return VerifyResult{Address: address, Nonce: nonce}, nil
}
