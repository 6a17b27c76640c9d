package handlers

import (
	"net/http"

	"github.com/cardarena/tournament-engine/middleware"
	"github.com/cardarena/tournament-engine/services"
)

type UserHandler struct {
	ledger *services.LedgerService
}

func NewUserHandler(ledger *services.LedgerService) *UserHandler {
	return &UserHandler{ledger: ledger}
}

// Wallet returns the caller's balance and recent currency movements.
func (h *UserHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "invalid token claims")
		return
	}

	wallet, err := h.ledger.GetWallet(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"wallet": wallet}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
