package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/keycortex/wallet/internal/model"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

const commitmentDomainTag = "keycortex:proof:v1"

// handleProofCommitment computes the deterministic commitment hash over a
// wallet's verification facts: a function of its inputs only. The wallet
// must be custodied by this service; every successful commitment is
// recorded to the audit trail.
func (h *Handler) handleProofCommitment(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletAddress      string `json:"wallet_address"`
		Challenge          string `json:"challenge"`
		VerificationResult bool   `json:"verification_result"`
		Chain              string `json:"chain"`
		TxHash             string `json:"tx_hash"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	if input.WalletAddress == "" || input.Challenge == "" || input.Chain == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	if _, err := h.keystore.Get(r.Context(), input.WalletAddress); err != nil {
		h.writeDomainError(w, err)
		return
	}

	commitment := proofCommitment(input.WalletAddress, input.Challenge, input.VerificationResult, input.Chain, input.TxHash)

	if auditErr := h.store.AppendAudit(r.Context(), model.AuditEvent{
		ID:        correlationIDFrom(r.Context()),
		EventType: model.EventProofCortexCommitment,
		Address:   input.WalletAddress,
		Chain:     input.Chain,
		Outcome:   model.OutcomeSuccess,
		Message:   "proof commitment computed",
		Timestamp: time.Now().UTC(),
	}); auditErr != nil {
		h.logger.Warn("append proofcortex_commitment audit failed", "error", auditErr)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"commitment": commitment,
	})
}

func proofCommitment(walletAddress, challenge string, verified bool, chain, txHash string) string {
	status := "unverified"
	if verified {
		status = "verified"
	}
	msg := commitmentDomainTag + ":" + walletAddress + ":" + challenge + ":" + status + ":" + chain
	if txHash != "" {
		msg += ":" + txHash
	}
	sum := sha256.Sum256([]byte(msg))
	return hex.EncodeToString(sum[:])
}

// handleFortressWalletStatus reports wallet-level risk signals for a
// downstream policy engine: the wallet's chain and its binding state
// (bound flag and user id). Transaction history is not included.
func (h *Handler) handleFortressWalletStatus(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Address string `json:"address"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	if input.Address == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	wallet, err := h.keystore.Get(r.Context(), input.Address)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	bound := false
	var userID string
	if b, err := h.bindings.Get(r.Context(), input.Address); err == nil {
		bound = true
		userID = b.UserID
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"address": wallet.Address,
		"chain":   wallet.Chain,
		"bound":   bound,
		"user_id": userID,
	})
}

// handleFortressContext produces a signed context payload a downstream
// proof or policy subsystem can verify came from this service's custodied
// wallet, under the proof domain tag.
func (h *Handler) handleFortressContext(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Address string `json:"address"`
		Context string `json:"context"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	if input.Address == "" || input.Context == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	sig, err := h.keystore.Sign(r.Context(), input.Address, walletcrypto.PurposeProof, []byte(input.Context))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"address":   input.Address,
		"context":   input.Context,
		"signature": hex.EncodeToString(sig),
	})
}
