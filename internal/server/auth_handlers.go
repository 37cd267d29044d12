package server

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/keycortex/wallet/internal/model"
)

func (h *Handler) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	nonce, err := h.challenges.Issue(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	challengeIssuedCount.Inc()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"nonce":      nonce,
		"expires_in": 300,
	})
}

func (h *Handler) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Address   string `json:"address"`
		Nonce     string `json:"nonce"`
		Signature string `json:"signature"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	if input.Address == "" || input.Nonce == "" || input.Signature == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	sig, err := hex.DecodeString(input.Signature)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	now := time.Now().UTC()
	result, err := h.challenges.Verify(r.Context(), input.Address, input.Nonce, sig)
	outcome := model.OutcomeSuccess
	message := "auth verify succeeded"
	if err != nil {
		outcome = model.OutcomeDenied
		message = err.Error()
	}
	if auditErr := h.store.AppendAudit(r.Context(), model.AuditEvent{
		ID:        correlationIDFrom(r.Context()),
		EventType: model.EventAuthVerify,
		Address:   input.Address,
		Chain:     h.chainID,
		Outcome:   outcome,
		Message:   message,
		Timestamp: now,
	}); auditErr != nil {
		h.logger.Warn("append auth_verify audit failed", "error", auditErr)
	}

	if err != nil {
		challengeVerifyCount.WithLabelValues(string(outcome)).Inc()
		h.writeDomainError(w, err)
		return
	}
	challengeVerifyCount.WithLabelValues(string(outcome)).Inc()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"valid":               true,
		"wallet_address":      result.Address,
		"verified_at_epoch_ms": nowEpochMillis(now),
	})
}

func (h *Handler) handleAuthBind(w http.ResponseWriter, r *http.Request) {
	claims, err := h.validator.ValidateAuthorizationHeader(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var input struct {
		Address string `json:"address"`
		Chain   string `json:"chain"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	if input.Address == "" || input.Chain == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	if _, err := h.keystore.Get(r.Context(), input.Address); err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := h.bindings.Upsert(r.Context(), input.Address, claims.Subject, input.Chain, model.OutcomeSuccess, "auth bind succeeded"); err != nil {
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if h.callbackURL != "" {
		go h.fireBindCallback(input.Address, claims.Subject, input.Chain)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"bound": true, "address": input.Address, "user_id": claims.Subject})
}

// fireBindCallback notifies a configured callback URL, fire-and-forget, with
// a bounded timeout. The outcome never affects the caller of /auth/bind.
func (h *Handler) fireBindCallback(address, userID, chain string) {
	ctx, cancel := contextWithTimeout(10 * time.Second)
	defer cancel()
	if err := postBindNotification(ctx, h.callbackURL, address, userID, chain); err != nil {
		h.logger.Warn("bind callback failed", "error", err, "address", address)
	}
}
