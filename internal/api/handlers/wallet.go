package handlers

import (
	"net/http"

	"github.com/agoradata/agora/internal/api/middleware"
	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/wallet"
)

type WalletHandler struct {
	wallets *wallet.Service
}

func NewWalletHandler(wallets *wallet.Service) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Get returns the owner's wallet, provisioning one on first access.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	wlt, err := h.wallets.Provision(r.Context(), owner.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load wallet")
		return
	}

	balance, err := h.wallets.GetBalance(r.Context(), wlt.ID, domain.CurrencyUSDC)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet_id": wlt.ID,
		"address":   wlt.Address,
		"balance":   balance.StringFixed(6),
		"currency":  domain.CurrencyUSDC,
	})
}
