// Package ledger defines the on-chain payment ledger contract surface and the
// read clients the gating path depends on. The ledger itself lives outside the
// process: an EVM contract holding prepaid balances per wallet, priced at a
// fixed amount per request.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ABIJSON is the payment contract ABI. The read surface is what the verifier
// consumes; the write surface (pay, deductPayment, withdraw) is exercised by
// operator tooling, never by the gating path.
const ABIJSON = `[
  {"type":"function","name":"pay","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"hasPaid","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getPaymentBalance","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getAvailableRequests","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"pricePerRequest","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"deductPayment","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"getContractBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"PaymentReceived","inputs":[{"name":"payer","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"newBalance","type":"uint256","indexed":false}]},
  {"type":"event","name":"FundsWithdrawn","inputs":[{"name":"to","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

// PayFunction is the name of the payable entry point clients call to top up.
const PayFunction = "pay"

// ErrUnavailable marks any failure to read ledger state: transport errors,
// timeouts, malformed responses. Callers must treat it as uncertainty, never
// as "unpaid".
var ErrUnavailable = errors.New("payment ledger unavailable")

// Unavailable wraps err with ErrUnavailable, preserving the cause. A nil err
// returns nil; an already-wrapped err is returned unchanged.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Reader is the read-only ledger surface the verifier consumes. Each call is
// an independent, possibly stale snapshot; the ledger may mutate between
// calls and implementations make no consistency promises across them.
type Reader interface {
	HasPaid(ctx context.Context, account common.Address) (bool, error)
	PaymentBalance(ctx context.Context, account common.Address) (*big.Int, error)
	AvailableRequests(ctx context.Context, account common.Address) (*big.Int, error)
	PricePerRequest(ctx context.Context) (*big.Int, error)
}

// Inspector extends Reader with the contract-level balance, used by operator
// and admin flows only.
type Inspector interface {
	Reader
	ContractBalance(ctx context.Context) (*big.Int, error)
}

// PaymentReceived mirrors the contract event of the same name.
type PaymentReceived struct {
	Payer      common.Address
	Amount     *big.Int
	NewBalance *big.Int
}

// FundsWithdrawn mirrors the contract event of the same name.
type FundsWithdrawn struct {
	To     common.Address
	Amount *big.Int
}
