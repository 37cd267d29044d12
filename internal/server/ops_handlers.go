package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keycortex/wallet/internal/authn"
	"github.com/keycortex/wallet/internal/model"
	"github.com/keycortex/wallet/internal/storage"
)

const maxAuditLimit = 500
const defaultAuditLimit = 100

// requireOpsAdmin validates the bearer token and the ops-admin role, always
// emitting an ops_access audit event with the resulting outcome.
func (h *Handler) requireOpsAdmin(w http.ResponseWriter, r *http.Request, address string) bool {
	claims, err := h.validator.ValidateAuthorizationHeader(r.Context(), r.Header.Get("Authorization"))
	if err == nil {
		err = authn.RequireOpsAdmin(claims)
	}

	outcome := model.OutcomeSuccess
	message := "ops access granted"
	if err != nil {
		outcome = model.OutcomeDenied
		message = err.Error()
	}
	if auditErr := h.store.AppendAudit(r.Context(), model.AuditEvent{
		ID:        correlationIDFrom(r.Context()),
		EventType: model.EventOpsAccess,
		Address:   address,
		Chain:     h.chainID,
		Outcome:   outcome,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}); auditErr != nil {
		h.logger.Warn("append ops_access audit failed", "error", auditErr)
	}

	if err != nil {
		h.writeDomainError(w, err)
		return false
	}
	return true
}

func (h *Handler) handleOpsBinding(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.PathValue("address"))
	if !h.requireOpsAdmin(w, r, address) {
		return
	}
	if address == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	b, err := h.bindings.Get(r.Context(), address)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "wallet not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"address":     b.Address,
		"user_id":     b.UserID,
		"chain":       b.Chain,
		"verified_at": b.VerifiedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleOpsAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireOpsAdmin(w, r, "") {
		return
	}

	q := r.URL.Query()
	filter := storage.AuditFilter{
		Address:   strings.TrimSpace(q.Get("wallet")),
		Chain:     strings.TrimSpace(q.Get("chain")),
		EventType: strings.TrimSpace(q.Get("event_type")),
		Outcome:   strings.TrimSpace(q.Get("outcome")),
		Limit:     defaultAuditLimit,
	}
	if since := strings.TrimSpace(q.Get("since")); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t
		}
	}
	if until := strings.TrimSpace(q.Get("until")); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			filter.Until = t
		}
	}
	if limitRaw := strings.TrimSpace(q.Get("limit")); limitRaw != "" {
		if n, err := strconv.Atoi(limitRaw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}

	events, err := h.bindings.ListAudit(r.Context(), filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
