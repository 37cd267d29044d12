package walletcrypto

import (
	"bytes"
	"testing"
)

func TestDeriveKeyPairFromPassphraseDeterministic(t *testing.T) {
	kp1, err := DeriveKeyPairFromPassphrase("alpha", 1000)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	kp2, err := DeriveKeyPairFromPassphrase("alpha", 1000)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !bytes.Equal(kp1.Public, kp2.Public) {
		t.Fatalf("expected identical public keys for identical passphrase")
	}
	if DeriveAddress(kp1.Public) != DeriveAddress(kp2.Public) {
		t.Fatalf("expected identical derived address")
	}
}

func TestDeriveKeyPairFromPassphraseRequiresPassphrase(t *testing.T) {
	if _, err := DeriveKeyPairFromPassphrase("", 1000); err != ErrPassphraseRequired {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
}

func TestSignVerifyDomainSeparation(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer kp.Wipe()

	payload := []byte("challenge-nonce")
	sig, err := Sign(PurposeAuth, payload, kp.Private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify(PurposeAuth, payload, kp.Public, sig); err != nil {
		t.Fatalf("expected verify success, got %v", err)
	}
	if err := Verify(PurposeTransaction, payload, kp.Public, sig); err != ErrSignatureInvalid {
		t.Fatalf("expected signature invalid under different purpose, got %v", err)
	}
}

func TestDeriveAddressFormat(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer kp.Wipe()

	addr := DeriveAddress(kp.Public)
	if len(addr) != 42 || addr[:2] != "0x" {
		t.Fatalf("unexpected address format: %s", addr)
	}
}

func TestEncryptDecryptSecretRoundTrip(t *testing.T) {
	serverKey := []byte("server-scoped-encryption-key-0001")
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	seed := kp.Private.Seed()

	ciphertext, nonce, err := EncryptSecret(serverKey, seed)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, seed) {
		t.Fatalf("ciphertext must not equal plaintext")
	}

	plaintext, err := DecryptSecret(serverKey, ciphertext, nonce)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	defer WipeBytes(plaintext)
	if !bytes.Equal(plaintext, seed) {
		t.Fatalf("round trip mismatch")
	}
}

func TestDecryptSecretRejectsWrongLength(t *testing.T) {
	serverKey := []byte("server-scoped-encryption-key-0001")
	ciphertext, nonce, err := EncryptSecret(serverKey, []byte("too-short"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptSecret(serverKey, ciphertext, nonce); err != ErrKeyMaterialInvalid {
		t.Fatalf("expected ErrKeyMaterialInvalid, got %v", err)
	}
}
