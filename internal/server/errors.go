package server

import (
	"errors"
	"net/http"

	"github.com/keycortex/wallet/internal/authadapter"
	"github.com/keycortex/wallet/internal/authn"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/ledger"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

// writeDomainError maps a domain error from keystore/ledger/authadapter/authn
// onto the HTTP status + message taxonomy: input/not-found/ownership errors
// are 400, auth errors are 401, integrity/dependency errors are 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, keystore.ErrWalletNotFound):
		h.writeError(w, http.StatusBadRequest, "wallet not found")
	case errors.Is(err, keystore.ErrLabelRequired):
		h.writeError(w, http.StatusBadRequest, "label required")
	case errors.Is(err, keystore.ErrPassphraseRequired):
		h.writeError(w, http.StatusBadRequest, "passphrase required")
	case errors.Is(err, walletcrypto.ErrKeyMaterialInvalid):
		h.writeError(w, http.StatusInternalServerError, "key material invalid")
	case errors.Is(err, walletcrypto.ErrSignatureInvalid):
		h.writeError(w, http.StatusBadRequest, "signature invalid")

	case errors.Is(err, ledger.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, ledger.ErrWalletNotFound):
		h.writeError(w, http.StatusBadRequest, "wallet not found")
	case errors.Is(err, ledger.ErrWalletKeyMismatch):
		h.writeError(w, http.StatusBadRequest, "wallet key mismatch")
	case errors.Is(err, ledger.ErrNonceReplay):
		h.writeError(w, http.StatusBadRequest, "nonce replay detected")
	case errors.Is(err, ledger.ErrChainUnsupported):
		h.writeError(w, http.StatusBadRequest, "unsupported chain for MVP; only flowcortex-l1 is enabled")
	case errors.Is(err, ledger.ErrAssetUnsupported):
		h.writeError(w, http.StatusBadRequest, "unsupported asset for MVP; only PROOF and FloweR are enabled")
	case errors.Is(err, ledger.ErrChainSubmitFailed):
		h.writeError(w, http.StatusInternalServerError, "chain submit failed")
	case errors.Is(err, ledger.ErrTransactionNotFound):
		h.writeError(w, http.StatusBadRequest, "transaction not found")

	case errors.Is(err, authadapter.ErrChallengeNotFound):
		h.writeError(w, http.StatusBadRequest, "challenge not found")
	case errors.Is(err, authadapter.ErrChallengeExpired):
		h.writeError(w, http.StatusBadRequest, "challenge expired")
	case errors.Is(err, authadapter.ErrChallengeAlreadyUsed):
		h.writeError(w, http.StatusBadRequest, "challenge already used")
	case errors.Is(err, authadapter.ErrWalletNotFound):
		h.writeError(w, http.StatusBadRequest, "wallet not found")
	case errors.Is(err, authadapter.ErrSignatureInvalid):
		h.writeError(w, http.StatusBadRequest, "signature invalid")

	case errors.Is(err, authn.ErrMissingAuthorization):
		h.writeError(w, http.StatusUnauthorized, "missing Authorization header")
	case errors.Is(err, authn.ErrMalformedToken):
		h.writeError(w, http.StatusUnauthorized, "malformed token")
	case errors.Is(err, authn.ErrUnsupportedAlgorithm):
		h.writeError(w, http.StatusUnauthorized, "unsupported algorithm")
	case errors.Is(err, authn.ErrUnknownKid):
		h.writeError(w, http.StatusUnauthorized, "unknown kid")
	case errors.Is(err, authn.ErrExpired):
		h.writeError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, authn.ErrInvalidIssuer):
		h.writeError(w, http.StatusUnauthorized, "invalid issuer")
	case errors.Is(err, authn.ErrInvalidAudience):
		h.writeError(w, http.StatusUnauthorized, "invalid audience")
	case errors.Is(err, authn.ErrInvalidSubject):
		h.writeError(w, http.StatusUnauthorized, "invalid subject")
	case errors.Is(err, authn.ErrOpsAccessDenied):
		h.writeError(w, http.StatusUnauthorized, "ops access denied")

	default:
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
