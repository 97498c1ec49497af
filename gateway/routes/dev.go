package routes

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"x402gate/ledger/memledger"
)

// devHandlers let local setups credit the in-memory ledger without a chain.
// They are mounted only when the memory backend is active and dev endpoints
// are enabled in configuration.
type devHandlers struct {
	ledger *memledger.Ledger
}

func (d *devHandlers) handlePay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string `json:"wallet"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "invalid JSON payload"})
		return
	}
	if !common.IsHexAddress(strings.TrimSpace(req.Wallet)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_identity", "message": "wallet must be a hex address"})
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "amount must be a decimal integer in wei"})
		return
	}
	payer := common.HexToAddress(strings.TrimSpace(req.Wallet))
	if err := d.ledger.Pay(payer, amount); err != nil {
		if errors.Is(err, memledger.ErrInvalidAmount) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_amount", "message": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger_error", "message": err.Error()})
		return
	}
	balance, _ := d.ledger.PaymentBalance(r.Context(), payer)
	writeJSON(w, http.StatusOK, map[string]string{"wallet": payer.Hex(), "balance": balance.String()})
}
