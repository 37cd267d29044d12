// Package keystore implements wallet creation, passphrase-deterministic
// restore, rename, and lookup. It is the single writer of the
// encrypted-secret column; key material never leaves this package except
// as ciphertext, and decrypted secrets are wiped before a signing call
// returns.
package keystore

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/keycortex/wallet/internal/model"
	"github.com/keycortex/wallet/internal/storage"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrLabelRequired      = errors.New("label required")
	ErrPassphraseRequired = errors.New("passphrase required")
)

// Keystore wraps a storage.Store with the crypto operations needed to
// create, restore, and sign with custodied wallets.
type Keystore struct {
	store         storage.Store
	encryptionKey []byte
	kdfRounds     int
	chain         string
}

// New constructs a Keystore. encryptionKey is the process-scoped,
// server-wide secret injected at startup; kdfRounds is the SHA-256
// stretching round count applied to passphrase-derived keys.
func New(store storage.Store, encryptionKey []byte, kdfRounds int, chain string) *Keystore {
	return &Keystore{store: store, encryptionKey: encryptionKey, kdfRounds: kdfRounds, chain: chain}
}

// Create generates a fresh keypair, or derives one deterministically from
// passphrase if supplied. Creation under a passphrase is idempotent: if the
// derived address already exists, the existing record is returned.
func (k *Keystore) Create(ctx context.Context, label, passphrase string) (model.WalletRecord, bool, error) {
	var kp walletcrypto.KeyPair
	var err error
	if passphrase != "" {
		kp, err = walletcrypto.DeriveKeyPairFromPassphrase(passphrase, k.kdfRounds)
	} else {
		kp, err = walletcrypto.GenerateKeyPair()
	}
	if err != nil {
		return model.WalletRecord{}, false, err
	}
	defer kp.Wipe()

	address := walletcrypto.DeriveAddress(kp.Public)

	if existing, err := k.store.GetWallet(ctx, address); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.WalletRecord{}, false, fmt.Errorf("lookup existing wallet: %w", err)
	}

	ciphertext, nonce, err := walletcrypto.EncryptSecret(k.encryptionKey, kp.Private.Seed())
	if err != nil {
		return model.WalletRecord{}, false, fmt.Errorf("encrypt secret: %w", err)
	}

	record := model.WalletRecord{
		Address:      address,
		PublicKey:    append([]byte(nil), kp.Public...),
		EncryptedKey: ciphertext,
		KeyNonce:     nonce,
		Label:        label,
		Chain:        k.chain,
		CreatedAt:    time.Now().UTC(),
	}
	if err := k.store.PutWallet(ctx, record); err != nil {
		return model.WalletRecord{}, false, fmt.Errorf("persist wallet: %w", err)
	}
	return record, false, nil
}

// Restore derives a wallet deterministically from passphrase. It rejects
// an empty passphrase with ErrPassphraseRequired and is otherwise
// equivalent to Create with the given label, reporting whether the address
// already existed.
func (k *Keystore) Restore(ctx context.Context, passphrase, label string) (model.WalletRecord, bool, error) {
	if passphrase == "" {
		return model.WalletRecord{}, false, ErrPassphraseRequired
	}
	return k.Create(ctx, label, passphrase)
}

// Rename changes a wallet's label. Key material is never touched.
func (k *Keystore) Rename(ctx context.Context, address, label string) error {
	if label == "" {
		return ErrLabelRequired
	}
	if err := k.store.RenameWallet(ctx, address, label); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrWalletNotFound
		}
		return err
	}
	return nil
}

// List returns all custodied wallets.
func (k *Keystore) List(ctx context.Context) ([]model.WalletRecord, error) {
	return k.store.ListWallets(ctx)
}

// Get retrieves a wallet by address.
func (k *Keystore) Get(ctx context.Context, address string) (model.WalletRecord, error) {
	w, err := k.store.GetWallet(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return model.WalletRecord{}, ErrWalletNotFound
	}
	return w, err
}

// Sign decrypts the custodied secret for address, signs payload under
// purpose, and wipes the decrypted secret before returning — including on
// the error path.
func (k *Keystore) Sign(ctx context.Context, address string, purpose walletcrypto.Purpose, payload []byte) ([]byte, error) {
	w, err := k.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	secret, err := walletcrypto.DecryptSecret(k.encryptionKey, w.EncryptedKey, w.KeyNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", walletcrypto.ErrKeyMaterialInvalid, err)
	}
	defer walletcrypto.WipeBytes(secret)

	priv := ed25519.NewKeyFromSeed(secret)
	defer walletcrypto.WipeBytes(priv)

	sig, err := walletcrypto.Sign(purpose, payload, priv)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// Verify checks sig against payload under purpose using the custodied
// wallet's public key — no secret material is touched.
func (k *Keystore) Verify(ctx context.Context, address string, purpose walletcrypto.Purpose, payload, sig []byte) error {
	w, err := k.Get(ctx, address)
	if err != nil {
		return err
	}
	return walletcrypto.Verify(purpose, payload, w.PublicKey, sig)
}
