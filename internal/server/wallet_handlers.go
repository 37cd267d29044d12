package server

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/keycortex/wallet/internal/ledger"
	"github.com/keycortex/wallet/internal/walletcrypto"
)

func (h *Handler) handleWalletCreate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Label      string `json:"label"`
		Passphrase string `json:"passphrase"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	record, alreadyExisted, err := h.keystore.Create(r.Context(), input.Label, input.Passphrase)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"wallet":          record.ToDTO(),
		"already_existed": alreadyExisted,
	})
}

func (h *Handler) handleWalletRestore(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Passphrase string `json:"passphrase"`
		Label      string `json:"label"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	record, alreadyExisted, err := h.keystore.Restore(r.Context(), input.Passphrase, input.Label)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"wallet":          record.ToDTO(),
		"already_existed": alreadyExisted,
	})
}

func (h *Handler) handleWalletRename(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Address string `json:"address"`
		Label   string `json:"label"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	if strings.TrimSpace(input.Address) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.keystore.Rename(r.Context(), input.Address, input.Label); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"renamed": true})
}

func (h *Handler) handleWalletList(w http.ResponseWriter, r *http.Request) {
	records, err := h.keystore.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]any, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, rec.ToDTO())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"wallets": dtos})
}

func (h *Handler) handleWalletSign(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Address string `json:"address"`
		Purpose string `json:"purpose"`
		Payload string `json:"payload"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	purpose := walletcrypto.Purpose(input.Purpose)
	switch purpose {
	case walletcrypto.PurposeAuth, walletcrypto.PurposeTransaction, walletcrypto.PurposeProof:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	if input.Address == "" || input.Payload == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	sig, err := h.keystore.Sign(r.Context(), input.Address, purpose, []byte(input.Payload))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"signature": hex.EncodeToString(sig)})
}

func (h *Handler) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	if address == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	balance, err := h.chain.GetBalance(r.Context(), address, asset)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "chain submit failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"address": address, "asset": asset, "balance": balance})
}

func (h *Handler) handleWalletNonce(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	next, err := h.ledger.NextNonce(r.Context(), address)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"address": address, "next_nonce": next})
}

func (h *Handler) handleWalletSubmit(w http.ResponseWriter, r *http.Request) {
	var input struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
		Asset  string `json:"asset"`
		Chain  string `json:"chain"`
		Nonce  uint64 `json:"nonce"`
	}
	if !h.decodeJSON(w, r, &input) {
		return
	}
	result, replayed, err := h.ledger.Submit(r.Context(), ledger.SubmitRequest{
		From:           input.From,
		To:             input.To,
		Amount:         input.Amount,
		Asset:          input.Asset,
		Chain:          input.Chain,
		Nonce:          input.Nonce,
		IdempotencyKey: idempotencyKeyFrom(r),
	})
	if err != nil {
		submitCount.WithLabelValues("error").Inc()
		h.writeDomainError(w, err)
		return
	}
	if replayed {
		submitCount.WithLabelValues("replayed").Inc()
	} else {
		submitCount.WithLabelValues("accepted").Inc()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tx_hash":  result.TxHash,
		"accepted": result.Accepted,
		"replayed": replayed,
	})
}

func (h *Handler) handleWalletTx(w http.ResponseWriter, r *http.Request) {
	txHash := strings.TrimSpace(r.PathValue("tx_hash"))
	if txHash == "" {
		h.writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	tx, err := h.ledger.GetTransaction(r.Context(), txHash)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tx_hash":      tx.TxHash,
		"from":         tx.From,
		"to":           tx.To,
		"amount":       tx.Amount,
		"asset":        tx.Asset,
		"chain":        tx.Chain,
		"nonce":        tx.Nonce,
		"status":       tx.Status,
		"accepted":     tx.Accepted,
		"submitted_at": tx.SubmittedAt.UTC().Format(time.RFC3339),
	})
}
