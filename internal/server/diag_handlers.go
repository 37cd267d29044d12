package server

import (
	"context"
	"net/http"
	"time"

	"github.com/keycortex/wallet/internal/model"
	"github.com/keycortex/wallet/internal/storage"
)

func (h *Handler) handleChainConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"chain":  h.chainID,
		"assets": []string{"PROOF", "FloweR"},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"storage_mode":      h.storageMode(),
		"auth_mode":         h.authMode(),
		"jwks":              h.jwks.State(),
		"fallback_counters": h.fallbackCounters(),
	})
}

// handleReadyz always reports ready: cmd/walletd/main.go constructs Handler
// only after the embedded store, keystore, and auth validator exist (a
// failed initial JWKS load is logged, not fatal), so by the time a request
// can reach this handler there's no later init step left to fail.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) handleStartupz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	postgresEnabled, lastErr := h.postgresStartupState(ctx)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"postgres_startup": map[string]any{
			"enabled":    postgresEnabled,
			"last_error": lastErr,
		},
		"auth_mode":         h.authMode(),
		"jwks":              h.jwks.State(),
		"fallback_counters": h.fallbackCounters(),
	})
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"service": "keycortex-wallet",
		"version": h.version,
		"chain":   h.chainID,
	})
}

func (h *Handler) storageMode() string {
	if _, ok := h.store.(*storage.Dual); ok {
		return "dual"
	}
	return "embedded"
}

func (h *Handler) authMode() string {
	if h.jwks.Loaded() {
		return "rs256"
	}
	return "hs256"
}

// fallbackCounters reports per-class degradation counters, zero-valued
// when the store isn't a Dual (nothing to fall back from).
func (h *Handler) fallbackCounters() any {
	if d, ok := h.store.(*storage.Dual); ok {
		return d.Counters()
	}
	return model.FallbackCounters{}
}

// postgresStartupState reports whether the primary relational store is
// currently reachable, without surfacing the failure as a request error.
func (h *Handler) postgresStartupState(ctx context.Context) (bool, string) {
	d, ok := h.store.(*storage.Dual)
	if !ok {
		return false, ""
	}
	return d.PrimaryHealthy(ctx)
}
