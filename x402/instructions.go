// Package x402 renders the machine-readable "how to pay" payload returned
// with HTTP 402 responses, following the x402 convention: network identity,
// contract coordinates, required amount, and human-readable steps.
package x402

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"x402gate/ledger"
)

// Standard and Version identify the payload convention in response metadata.
const (
	Standard = "x402"
	Version  = "1.0"
)

// Network identifies the chain a payment must land on.
type Network struct {
	ChainID  int64  `json:"chainId"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// Contract locates the payable entry point.
type Contract struct {
	Address  string   `json:"address"`
	Function string   `json:"function"`
	ABI      []string `json:"abi"`
}

// Amount carries the required payment in raw and human form.
type Amount struct {
	Value     string `json:"value"`
	Formatted string `json:"formatted"`
	Currency  string `json:"currency"`
}

// StepList is the ordered walkthrough shown to humans.
type StepList struct {
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

// Instructions is the full payment block of a 402 response.
type Instructions struct {
	Network      Network  `json:"network"`
	Contract     Contract `json:"contract"`
	Amount       Amount   `json:"amount"`
	Instructions StepList `json:"instructions"`
}

// Generator renders Instructions for a fixed network and contract. Rendering
// is pure: the same price always produces an identical payload.
type Generator struct {
	network  Network
	contract common.Address
}

// NewGenerator constructs a Generator bound to one network and contract.
func NewGenerator(network Network, contract common.Address) *Generator {
	return &Generator{network: network, contract: contract}
}

// Render produces the payment block for the given per-request price in wei.
func (g *Generator) Render(pricePerRequest *big.Int) Instructions {
	price := new(big.Int)
	if pricePerRequest != nil {
		price.Set(pricePerRequest)
	}
	formatted := FormatWei(price, g.network.Currency)
	return Instructions{
		Network: g.network,
		Contract: Contract{
			Address:  g.contract.Hex(),
			Function: ledger.PayFunction,
			ABI:      []string{fmt.Sprintf("function %s() payable", ledger.PayFunction)},
		},
		Amount: Amount{
			Value:     price.String(),
			Formatted: formatted,
			Currency:  g.network.Currency,
		},
		Instructions: StepList{
			Description: fmt.Sprintf("Send %s to the payment contract on %s to unlock this endpoint.", formatted, g.network.Name),
			Steps: []string{
				fmt.Sprintf("Connect a wallet to %s (chain id %d).", g.network.Name, g.network.ChainID),
				fmt.Sprintf("Call %s() on contract %s with a value of at least %s wei.", ledger.PayFunction, g.contract.Hex(), price.String()),
				"Retry the request with your wallet address in the X-Wallet-Address header.",
			},
		},
	}
}

var weiPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatWei renders a wei amount as a trimmed decimal in whole-coin units,
// suffixed with the currency symbol, e.g. 1500000000000000 -> "0.0015 ETH".
func FormatWei(wei *big.Int, currency string) string {
	value := new(big.Int)
	if wei != nil {
		value.Set(wei)
	}
	whole, frac := new(big.Int).QuoRem(value, weiPerCoin, new(big.Int))
	text := whole.String()
	if frac.Sign() != 0 {
		digits := fmt.Sprintf("%018s", frac.String())
		digits = strings.TrimRight(digits, "0")
		text += "." + digits
	}
	if currency == "" {
		return text
	}
	return text + " " + currency
}
