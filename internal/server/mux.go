// Package server wires the wallet-custody, auth, ledger, and diagnostics
// components into an HTTP surface using net/http.ServeMux.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keycortex/wallet/internal/authadapter"
	"github.com/keycortex/wallet/internal/authn"
	"github.com/keycortex/wallet/internal/binding"
	"github.com/keycortex/wallet/internal/chain"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/ledger"
	"github.com/keycortex/wallet/internal/storage"
)

type contextKey string

const contextKeyCorrelationID contextKey = "correlationId"

const (
	headerCorrelationID  = "X-Correlation-Id"
	headerIdempotencyKey = "Idempotency-Key"
	headerContentType    = "Content-Type"
	contentTypeJSON      = "application/json"
)

// Handler wires HTTP endpoints for the wallet service.
type Handler struct {
	keystore   *keystore.Keystore
	ledger     *ledger.Ledger
	challenges *authadapter.Adapter
	bindings   *binding.Store
	validator  *authn.Validator
	jwks       *authn.JWKSCache
	chain      chain.Adapter
	store      storage.Store
	logger     *slog.Logger
	chainID    string
	callbackURL string
	version    string
	router     *http.ServeMux
}

// Deps bundles the constructed components New needs. Built once at startup
// and handed to the handler; no mutable package-level state besides the
// JWKS cache's own atomically-replaced snapshot.
type Deps struct {
	Keystore    *keystore.Keystore
	Ledger      *ledger.Ledger
	Challenges  *authadapter.Adapter
	Bindings    *binding.Store
	Validator   *authn.Validator
	JWKS        *authn.JWKSCache
	Chain       chain.Adapter
	Store       storage.Store
	Logger      *slog.Logger
	ChainID     string
	CallbackURL string
	Version     string
}

// New constructs a Handler and registers all routes.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		keystore:    d.Keystore,
		ledger:      d.Ledger,
		challenges:  d.Challenges,
		bindings:    d.Bindings,
		validator:   d.Validator,
		jwks:        d.JWKS,
		chain:       d.Chain,
		store:       d.Store,
		logger:      logger,
		chainID:     d.ChainID,
		callbackURL: d.CallbackURL,
		version:     d.Version,
		router:      http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// Router returns the handler's http.ServeMux wrapped in the CORS middleware.
func (h *Handler) Router() http.Handler {
	return h.corsMiddleware(h.router)
}

func (h *Handler) registerRoutes() {
	wrap := func(fn func(http.ResponseWriter, *http.Request)) http.Handler {
		return h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.wrap(fn))))
	}

	h.router.Handle("POST /wallet/create", wrap(h.handleWalletCreate))
	h.router.Handle("POST /wallet/restore", wrap(h.handleWalletRestore))
	h.router.Handle("POST /wallet/rename", wrap(h.handleWalletRename))
	h.router.Handle("GET /wallet/list", wrap(h.handleWalletList))
	h.router.Handle("POST /wallet/sign", wrap(h.handleWalletSign))
	h.router.Handle("GET /wallet/balance", wrap(h.handleWalletBalance))
	h.router.Handle("GET /wallet/nonce", wrap(h.handleWalletNonce))
	h.router.Handle("POST /wallet/submit", wrap(h.handleWalletSubmit))
	h.router.Handle("GET /wallet/tx/{tx_hash}", wrap(h.handleWalletTx))

	h.router.Handle("POST /auth/challenge", wrap(h.handleAuthChallenge))
	h.router.Handle("POST /auth/verify", wrap(h.handleAuthVerify))
	h.router.Handle("POST /auth/bind", wrap(h.handleAuthBind))

	h.router.Handle("GET /ops/bindings/{address}", wrap(h.handleOpsBinding))
	h.router.Handle("GET /ops/audit", wrap(h.handleOpsAudit))

	h.router.Handle("POST /proofcortex/commitment", wrap(h.handleProofCommitment))
	h.router.Handle("POST /fortressdigital/wallet-status", wrap(h.handleFortressWalletStatus))
	h.router.Handle("POST /fortressdigital/context", wrap(h.handleFortressContext))

	h.router.Handle("GET /chain/config", wrap(h.handleChainConfig))
	h.router.Handle("GET /health", wrap(h.handleHealth))
	h.router.Handle("GET /readyz", wrap(h.handleReadyz))
	h.router.Handle("GET /startupz", wrap(h.handleStartupz))
	h.router.Handle("GET /version", wrap(h.handleVersion))
	h.router.Handle("GET /metrics", wrap(h.metricsHandler))
}

// wrap assigns a correlation id, sets the JSON content type, recovers
// panics, and invokes next. Idempotent submit replay is handled by
// ledger.Submit, not here.
func (h *Handler) wrap(next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := h.ensureCorrelationID(w, r)
		ctx := context.WithValue(r.Context(), contextKeyCorrelationID, correlationID)
		r = r.WithContext(ctx)
		w.Header().Set(headerContentType, contentTypeJSON)

		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered", "panic", rec, "correlationId", correlationID)
				h.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next(w, r)
	}
}

func (h *Handler) ensureCorrelationID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(headerCorrelationID, id)
	return id
}

func correlationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}

// decodeJSON decodes the request body into dst, returning false and writing
// a 400 response if the body is not valid JSON.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal response failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write response failed", "error", err)
	}
}

// writeError writes the spec's flat error envelope: {"error": "<message>"}.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// idempotencyKeyFrom extracts the Idempotency-Key header, if any.
func idempotencyKeyFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
}

func nowEpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
