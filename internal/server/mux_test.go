package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keycortex/wallet/internal/authadapter"
	"github.com/keycortex/wallet/internal/authn"
	"github.com/keycortex/wallet/internal/binding"
	"github.com/keycortex/wallet/internal/chain"
	"github.com/keycortex/wallet/internal/challenge"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/ledger"
	"github.com/keycortex/wallet/internal/storage"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := storage.OpenEmbedded(t.TempDir() + "/wallet.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ks := keystore.New(store, []byte("0123456789abcdef0123456789abcdef"), 1000, "flowcortex-l1")
	ledgerAdapter := chain.NewFlowcortexClient("")
	ld := ledger.New(store, ks, ledgerAdapter, "flowcortex-l1")
	chal := challenge.New(store)
	authAdapter := authadapter.New(chal, ks)
	bindings := binding.New(store)
	jwks := authn.NewJWKSCache("", "", "")
	validator := authn.NewValidator(jwks, []byte("test-hmac-secret"), "", "")

	return New(Deps{
		Keystore:   ks,
		Ledger:     ld,
		Challenges: authAdapter,
		Bindings:   bindings,
		Validator:  validator,
		JWKS:       jwks,
		Chain:      ledgerAdapter,
		Store:      store,
		Logger:     slog.New(slog.NewTextHandler(discardWriter{}, nil)),
		ChainID:    "flowcortex-l1",
		Version:    "test",
	})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst), "body=%s", rec.Body.String())
}

func TestHealthAndVersion(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	req = httptest.NewRequest("GET", "/version", nil)
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, "keycortex-wallet", out["service"])
}

func TestWalletCreateAndSign(t *testing.T) {
	h := newTestHandler(t)

	createBody, _ := json.Marshal(map[string]string{"label": "primary"})
	req := httptest.NewRequest("POST", "/wallet/create", bytes.NewReader(createBody))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var created struct {
		Wallet struct {
			Address string `json:"address"`
		} `json:"wallet"`
	}
	decodeBody(t, rec, &created)
	require.NotEmpty(t, created.Wallet.Address)

	signBody, _ := json.Marshal(map[string]string{
		"address": created.Wallet.Address,
		"purpose": "auth",
		"payload": "hello",
	})
	req = httptest.NewRequest("POST", "/wallet/sign", bytes.NewReader(signBody))
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code, rec.Body.String())
}

func TestAuthChallengeVerifyFlow(t *testing.T) {
	h := newTestHandler(t)

	createBody, _ := json.Marshal(map[string]string{"passphrase": "alpha"})
	req := httptest.NewRequest("POST", "/wallet/create", bytes.NewReader(createBody))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	var created struct {
		Wallet struct {
			Address string `json:"address"`
		} `json:"wallet"`
	}
	decodeBody(t, rec, &created)

	req = httptest.NewRequest("POST", "/auth/challenge", nil)
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	var challengeResp struct {
		Nonce string `json:"nonce"`
	}
	decodeBody(t, rec, &challengeResp)

	signBody, _ := json.Marshal(map[string]string{
		"address": created.Wallet.Address,
		"purpose": "auth",
		"payload": challengeResp.Nonce,
	})
	req = httptest.NewRequest("POST", "/wallet/sign", bytes.NewReader(signBody))
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	var signed struct {
		Signature string `json:"signature"`
	}
	decodeBody(t, rec, &signed)

	verifyBody, _ := json.Marshal(map[string]string{
		"address":   created.Wallet.Address,
		"nonce":     challengeResp.Nonce,
		"signature": signed.Signature,
	})
	req = httptest.NewRequest("POST", "/auth/verify", bytes.NewReader(verifyBody))
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	// Replay must fail: the nonce was already consumed.
	req = httptest.NewRequest("POST", "/auth/verify", bytes.NewReader(verifyBody))
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestOpsAuditRequiresAuthorization(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest("GET", "/ops/audit", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestProofCommitmentIsDeterministic(t *testing.T) {
	h := newTestHandler(t)

	createBody, _ := json.Marshal(map[string]string{"label": "primary"})
	req := httptest.NewRequest("POST", "/wallet/create", bytes.NewReader(createBody))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	var created struct {
		Wallet struct {
			Address string `json:"address"`
		} `json:"wallet"`
	}
	decodeBody(t, rec, &created)

	body, _ := json.Marshal(map[string]any{
		"wallet_address":      created.Wallet.Address,
		"challenge":           "550e8400-e29b-41d4-a716-446655440000",
		"verification_result": true,
		"chain":               "flowcortex-l1",
	})
	req = httptest.NewRequest("POST", "/proofcortex/commitment", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	var first struct {
		Commitment string `json:"commitment"`
	}
	decodeBody(t, rec, &first)

	req = httptest.NewRequest("POST", "/proofcortex/commitment", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	var second struct {
		Commitment string `json:"commitment"`
	}
	decodeBody(t, rec, &second)

	assert.Equal(t, first.Commitment, second.Commitment)
	assert.Len(t, first.Commitment, 64)
}

func TestProofCommitmentRejectsUnknownWallet(t *testing.T) {
	h := newTestHandler(t)

	body, _ := json.Marshal(map[string]any{
		"wallet_address":      "0xa1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2",
		"challenge":           "550e8400-e29b-41d4-a716-446655440000",
		"verification_result": true,
		"chain":               "flowcortex-l1",
	})
	req := httptest.NewRequest("POST", "/proofcortex/commitment", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestWalletSubmitRejectsUnsupportedChain(t *testing.T) {
	h := newTestHandler(t)

	createBody, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest("POST", "/wallet/create", bytes.NewReader(createBody))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	var created struct {
		Wallet struct {
			Address string `json:"address"`
		} `json:"wallet"`
	}
	decodeBody(t, rec, &created)

	submitBody, _ := json.Marshal(map[string]any{
		"from":   created.Wallet.Address,
		"to":     "0x0000000000000000000000000000000000dead",
		"amount": "100",
		"asset":  "PROOF",
		"chain":  "ethereum-mainnet",
		"nonce":  1,
	})
	req = httptest.NewRequest("POST", "/wallet/submit", bytes.NewReader(submitBody))
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code, rec.Body.String())
}
