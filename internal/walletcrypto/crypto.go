// Package walletcrypto implements Ed25519 keypair generation and
// domain-separated signing/verification, wallet address derivation, and
// at-rest secret encryption for the keystore.
//
// Signing input is always "keycortex:v1:" + purpose + ":" + payload, so a
// signature minted for one purpose never verifies under another.
package walletcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// Purpose is the domain-separation tag applied before signing or verifying.
type Purpose string

const (
	PurposeAuth        Purpose = "auth"
	PurposeTransaction Purpose = "transaction"
	PurposeProof       Purpose = "proof"
)

const domainPrefix = "keycortex:v1:"

var (
	// ErrKeyMaterialInvalid is returned when a decrypted secret is not a
	// valid 32-byte Ed25519 seed.
	ErrKeyMaterialInvalid = errors.New("key material invalid")
	// ErrSignatureInvalid is returned when verification rejects a signature.
	ErrSignatureInvalid = errors.New("signature invalid")
)

// KeyPair holds an Ed25519 public/private keypair. Callers must call Wipe
// once the private key is no longer needed.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Wipe overwrites the private key bytes in place. The loop shape defeats
// dead-store elimination; do not replace with a plain slice clear in a
// hot path without re-checking the generated assembly.
func (k *KeyPair) Wipe() {
	if k == nil {
		return
	}
	for i := range k.Private {
		k.Private[i] = 0
	}
	clear(k.Private)
}

// GenerateKeyPair creates a fresh Ed25519 keypair from crypto/rand.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// DeriveKeyPairFromPassphrase derives a deterministic Ed25519 keypair from a
// passphrase using a fixed number of SHA-256 rounds as a seed stretcher.
// Identical passphrase and round count always yield an identical keypair.
//
// The round count is intentionally simple (a hash chain, not scrypt/argon2)
// per the reference value of 1000; see DESIGN.md for why this was kept
// rather than upgraded to a memory-hard KDF.
func DeriveKeyPairFromPassphrase(passphrase string, rounds int) (KeyPair, error) {
	if passphrase == "" {
		return KeyPair{}, ErrPassphraseRequired
	}
	if rounds <= 0 {
		rounds = 1000
	}
	seed := sha256.Sum256([]byte(passphrase))
	for i := 1; i < rounds; i++ {
		seed = sha256.Sum256(seed[:])
	}
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)
	return KeyPair{Public: pub, Private: priv}, nil
}

// ErrPassphraseRequired is returned when passphrase derivation is attempted
// with an empty passphrase.
var ErrPassphraseRequired = errors.New("passphrase required")

// DeriveAddress computes the wallet address from a public key: "0x" followed
// by the lowercase hex of the first 20 bytes of SHA-256(public key).
func DeriveAddress(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "0x" + hexEncode(sum[:20])
}

// Sign applies domain separation for purpose and signs payload with priv.
// priv must be a valid 32-byte-seed Ed25519 private key.
func Sign(purpose Purpose, payload []byte, priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrKeyMaterialInvalid
	}
	msg := frame(purpose, payload)
	sig := ed25519.Sign(priv, msg)
	return sig, nil
}

// Verify checks sig against payload under purpose and pub. It returns
// ErrSignatureInvalid (not a bare bool) so callers can distinguish a
// rejected signature from a malformed-input error upstream.
func Verify(purpose Purpose, payload []byte, pub ed25519.PublicKey, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrKeyMaterialInvalid
	}
	msg := frame(purpose, payload)
	if !ed25519.Verify(pub, msg, sig) {
		return ErrSignatureInvalid
	}
	return nil
}

func frame(purpose Purpose, payload []byte) []byte {
	out := make([]byte, 0, len(domainPrefix)+len(purpose)+1+len(payload))
	out = append(out, domainPrefix...)
	out = append(out, purpose...)
	out = append(out, ':')
	out = append(out, payload...)
	return out
}

// keystream derives a SHA-256 based keystream of the requested length from
// the server-scoped encryption key and a per-record nonce. It is XORed
// against the secret, matching the at-rest wrapper named in the design
// notes: this is deliberately NOT authenticated encryption.
func keystream(serverKey, nonce []byte, length int) []byte {
	out := make([]byte, 0, length)
	counter := uint32(0)
	for len(out) < length {
		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], counter)
		h := sha256.New()
		h.Write(serverKey)
		h.Write(nonce)
		h.Write(ctr[:])
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:length]
}

// EncryptSecret wraps secret with a keystream derived from serverKey and a
// freshly generated nonce. The returned ciphertext has the same length as
// secret.
func EncryptSecret(serverKey, secret []byte) (ciphertext, nonce []byte, err error) {
	if len(serverKey) == 0 {
		return nil, nil, errors.New("server encryption key not configured")
	}
	nonce = make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ks := keystream(serverKey, nonce, len(secret))
	ciphertext = make([]byte, len(secret))
	for i := range secret {
		ciphertext[i] = secret[i] ^ ks[i]
	}
	return ciphertext, nonce, nil
}

// DecryptSecret reverses EncryptSecret. The result must be wiped by the
// caller once it has been used for a single sign or verify operation.
func DecryptSecret(serverKey, ciphertext, nonce []byte) ([]byte, error) {
	if len(serverKey) == 0 {
		return nil, errors.New("server encryption key not configured")
	}
	ks := keystream(serverKey, nonce, len(ciphertext))
	plaintext := make([]byte, len(ciphertext))
	for i := range ciphertext {
		plaintext[i] = ciphertext[i] ^ ks[i]
	}
	if len(plaintext) != ed25519.SeedSize {
		WipeBytes(plaintext)
		return nil, ErrKeyMaterialInvalid
	}
	return plaintext, nil
}

// WipeBytes overwrites b in place with zeros.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	clear(b)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
