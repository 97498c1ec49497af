package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"x402gate/gate"
	"x402gate/verify"
)

// paymentEcho is the conventional payment block protected handlers attach to
// their responses. It is a handler-level convention, not enforced by the gate.
type paymentEcho struct {
	WalletAddress     string `json:"walletAddress"`
	Balance           string `json:"balance"`
	AvailableRequests string `json:"availableRequests"`
	PricePerRequest   string `json:"pricePerRequest"`
}

func echoFromResult(result *verify.Result) *paymentEcho {
	if result == nil {
		return nil
	}
	return &paymentEcho{
		WalletAddress:     result.Address.Hex(),
		Balance:           result.Balance.String(),
		AvailableRequests: result.AvailableRequests.String(),
		PricePerRequest:   result.PricePerRequest.String(),
	}
}

// handleWeather is an example protected handler. The gate has already decided
// access by the time it runs; it only reads the snapshot for the echo block.
func handleWeather(w http.ResponseWriter, r *http.Request) {
	result, _ := gate.FromContext(r.Context())
	resp := struct {
		City       string       `json:"city"`
		TempC      float64      `json:"tempC"`
		Conditions string       `json:"conditions"`
		FetchedAt  string       `json:"fetchedAt"`
		Payment    *paymentEcho `json:"payment,omitempty"`
	}{
		City:       "Lisbon",
		TempC:      21.5,
		Conditions: "partly cloudy",
		FetchedAt:  time.Now().UTC().Format(time.RFC3339),
		Payment:    echoFromResult(result),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCompletions is an example protected handler standing in for an AI
// inference backend.
func handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "invalid JSON payload"})
		return
	}
	result, _ := gate.FromContext(r.Context())
	resp := struct {
		Completion string       `json:"completion"`
		Payment    *paymentEcho `json:"payment,omitempty"`
	}{
		Completion: "echo: " + req.Prompt,
		Payment:    echoFromResult(result),
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
