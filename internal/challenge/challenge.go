// Package challenge defines the issue/consume contract for single-use,
// TTL-bounded auth nonces. Persistence is delegated to storage.Store; this
// package owns only the TTL policy and nonce generation.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/keycortex/wallet/internal/model"
	"github.com/keycortex/wallet/internal/storage"
)

// TTL is the fixed challenge lifetime.
const TTL = 300 * time.Second

// Store issues and consumes challenges against a backing storage.Store.
type Store struct {
	backing storage.Store
}

// New wraps a storage.Store with challenge issue/consume policy.
func New(backing storage.Store) *Store {
	return &Store{backing: backing}
}

// Issue creates a fresh, unpredictable nonce with TTL expiry.
func (s *Store) Issue(ctx context.Context) (model.Challenge, error) {
	nonce, err := randomNonce()
	if err != nil {
		return model.Challenge{}, fmt.Errorf("generate nonce: %w", err)
	}
	now := time.Now().UTC()
	c := model.Challenge{
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(TTL),
	}
	if err := s.backing.PutChallenge(ctx, c); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

// Consume atomically validates and marks a nonce used.
func (s *Store) Consume(ctx context.Context, nonce string) (model.Challenge, storage.ConsumeOutcome, error) {
	return s.backing.ConsumeChallenge(ctx, nonce, time.Now().UTC())
}

func randomNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
