package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"x402gate/gate"
	"x402gate/ledger"
	"x402gate/verify"
)

// adminHandlers expose the owner-facing read surface. Mutations (deduct,
// withdraw) are deliberately absent: they require transaction signing and
// belong to the operator CLI.
type adminHandlers struct {
	inspector ledger.Inspector
	verifier  gate.Verifier
}

func (a *adminHandlers) handleContractBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.inspector.ContractBalance(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger_unavailable", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contractBalance": balance.String()})
}

func (a *adminHandlers) handleAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	result, err := a.verifier.Verify(r.Context(), address)
	if err != nil {
		if errors.Is(err, verify.ErrInvalidIdentity) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_identity", "message": "not a valid hex address"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger_unavailable", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		WalletAddress     string `json:"walletAddress"`
		Balance           string `json:"balance"`
		HasPaid           bool   `json:"hasPaid"`
		AvailableRequests string `json:"availableRequests"`
		PricePerRequest   string `json:"pricePerRequest"`
	}{
		WalletAddress:     result.Address.Hex(),
		Balance:           result.Balance.String(),
		HasPaid:           result.HasPaid,
		AvailableRequests: result.AvailableRequests.String(),
		PricePerRequest:   result.PricePerRequest.String(),
	})
}
