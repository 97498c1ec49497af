package x402

// Metadata tags a 402 response with the payload convention and the endpoint
// that produced it.
type Metadata struct {
	Standard string `json:"standard"`
	Version  string `json:"version"`
	Endpoint string `json:"endpoint"`
}

// CurrentStatus reports the caller's ledger snapshot at decision time. In the
// payment-required branch availableRequests is always zero: hasPaid=false
// implies zero under the floor-division invariant, and the source reports the
// literal zero rather than the recomputed value.
type CurrentStatus struct {
	WalletAddress     string `json:"walletAddress"`
	Balance           string `json:"balance"`
	BalanceFormatted  string `json:"balanceFormatted"`
	HasPaid           bool   `json:"hasPaid"`
	AvailableRequests int64  `json:"availableRequests"`
}

// RequiredResponse is the body of an HTTP 402 gate-failure response.
type RequiredResponse struct {
	Status        int           `json:"status"`
	Message       string        `json:"message"`
	Payment       Instructions  `json:"payment"`
	Metadata      Metadata      `json:"metadata"`
	CurrentStatus CurrentStatus `json:"currentStatus"`
}
