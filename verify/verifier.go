// Package verify turns raw ledger reads into a normalized payment
// verification result for one wallet.
package verify

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"x402gate/ledger"
)

// ErrInvalidIdentity reports a wallet identifier that does not parse as a
// 20-byte hex address. The check is local; the ledger is never consulted.
var ErrInvalidIdentity = errors.New("invalid wallet address")

// Result is a projection of ledger state for one wallet at roughly one read
// instant. The four source reads are issued as independent queries, so the
// fields carry no mutual-consistency guarantee if the ledger mutates while
// they are in flight.
type Result struct {
	Address           common.Address
	Balance           *big.Int
	PricePerRequest   *big.Int
	HasPaid           bool
	AvailableRequests *big.Int
}

// Verifier answers "has this wallet prepaid enough for a request" by querying
// the ledger's read surface.
type Verifier struct {
	ledger ledger.Reader
}

// New constructs a Verifier over the given ledger reader.
func New(reader ledger.Reader) *Verifier {
	if reader == nil {
		panic("ledger reader required")
	}
	return &Verifier{ledger: reader}
}

// Verify validates the identity locally, then issues the four ledger reads
// concurrently and assembles the result. The first read failure cancels the
// remaining reads (best effort, at the context level) and surfaces as
// ledger.ErrUnavailable with the cause preserved. Verify never retries.
func (v *Verifier) Verify(ctx context.Context, identity string) (*Result, error) {
	trimmed := strings.TrimSpace(identity)
	if !common.IsHexAddress(trimmed) {
		return nil, ErrInvalidIdentity
	}
	account := common.HexToAddress(trimmed)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := &Result{Address: account}
	errs := make(chan error, 4)
	go func() {
		paid, err := v.ledger.HasPaid(ctx, account)
		if err == nil {
			result.HasPaid = paid
		}
		errs <- err
	}()
	go func() {
		balance, err := v.ledger.PaymentBalance(ctx, account)
		if err == nil {
			result.Balance = balance
		}
		errs <- err
	}()
	go func() {
		available, err := v.ledger.AvailableRequests(ctx, account)
		if err == nil {
			result.AvailableRequests = available
		}
		errs <- err
	}()
	go func() {
		price, err := v.ledger.PricePerRequest(ctx)
		if err == nil {
			result.PricePerRequest = price
		}
		errs <- err
	}()

	var firstErr error
	for i := 0; i < 4; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	if firstErr != nil {
		return nil, ledger.Unavailable(firstErr)
	}
	return result, nil
}
