// Package memledger implements the payment contract's mutation rules in
// process memory. It backs the gateway's memory ledger mode for local
// development and gives tests an authoritative model to exercise the gating
// path against without an RPC endpoint.
package memledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"x402gate/ledger"
)

// Failure taxonomy of the contract's guarded operations.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnauthorized        = errors.New("caller is not the ledger owner")
	ErrInsufficientBalance = errors.New("insufficient payment balance")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")
)

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithPaymentHook registers a callback invoked after every accepted payment,
// mirroring the PaymentReceived contract event.
func WithPaymentHook(fn func(ledger.PaymentReceived)) Option {
	return func(l *Ledger) { l.onPayment = fn }
}

// WithWithdrawHook registers a callback invoked after every successful
// withdrawal, mirroring the FundsWithdrawn contract event.
func WithWithdrawHook(fn func(ledger.FundsWithdrawn)) Option {
	return func(l *Ledger) { l.onWithdraw = fn }
}

// Ledger holds prepaid balances keyed by wallet address. Accounts are created
// implicitly on first payment and never deleted; unknown accounts read as
// zero. Balances only grow through Pay and only shrink through the owner's
// Deduct, never below zero.
type Ledger struct {
	mu         sync.RWMutex
	owner      common.Address
	price      *uint256.Int
	balances   map[common.Address]*uint256.Int
	held       *uint256.Int
	onPayment  func(ledger.PaymentReceived)
	onWithdraw func(ledger.FundsWithdrawn)
}

// New constructs a ledger owned by owner with the given immutable per-request
// price. Construction fails if the price is not strictly positive.
func New(owner common.Address, pricePerRequest *big.Int, opts ...Option) (*Ledger, error) {
	if (owner == common.Address{}) {
		return nil, fmt.Errorf("owner address required")
	}
	if pricePerRequest == nil || pricePerRequest.Sign() <= 0 {
		return nil, fmt.Errorf("price per request must be positive")
	}
	price, overflow := uint256.FromBig(pricePerRequest)
	if overflow {
		return nil, fmt.Errorf("price per request overflows uint256")
	}
	l := &Ledger{
		owner:    owner,
		price:    price,
		balances: make(map[common.Address]*uint256.Int),
		held:     uint256.NewInt(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Owner returns the address allowed to call Deduct and Withdraw.
func (l *Ledger) Owner() common.Address {
	return l.owner
}

// Pay credits amount to the payer's balance. Repeated payments accumulate;
// there is no cap. Fails with ErrInvalidAmount unless amount is strictly
// positive.
func (l *Ledger) Pay(payer common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	balance := l.balanceLocked(payer)
	balance.Add(balance, value)
	l.balances[payer] = balance
	l.held.Add(l.held, value)
	hook := l.onPayment
	newBalance := balance.ToBig()
	l.mu.Unlock()

	if hook != nil {
		hook(ledger.PaymentReceived{Payer: payer, Amount: new(big.Int).Set(amount), NewBalance: newBalance})
	}
	return nil
}

// Deduct removes amount from the account's credited balance. Only the owner
// may call it; it fails with ErrInsufficientBalance rather than driving a
// balance negative. Deduction does not move the held value out of the
// contract, matching the source contract.
func (l *Ledger) Deduct(caller, account common.Address, amount *big.Int) error {
	if caller != l.owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balanceLocked(account)
	if balance.Lt(value) {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, value)
	l.balances[account] = balance
	return nil
}

// Withdraw transfers the ledger's entire held value to the owner and returns
// the amount moved. Credited per-account balances are left untouched, as in
// the source contract. Fails with ErrNothingToWithdraw when the held value is
// zero.
func (l *Ledger) Withdraw(caller common.Address) (*big.Int, error) {
	if caller != l.owner {
		return nil, ErrUnauthorized
	}

	l.mu.Lock()
	if l.held.IsZero() {
		l.mu.Unlock()
		return nil, ErrNothingToWithdraw
	}
	amount := l.held.ToBig()
	l.held = uint256.NewInt(0)
	hook := l.onWithdraw
	to := l.owner
	l.mu.Unlock()

	if hook != nil {
		hook(ledger.FundsWithdrawn{To: to, Amount: new(big.Int).Set(amount)})
	}
	return amount, nil
}

// HasPaid reports whether the account's balance covers at least one request.
func (l *Ledger) HasPaid(_ context.Context, account common.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.balanceLocked(account).Lt(l.price), nil
}

// PaymentBalance returns the account's credited balance.
func (l *Ledger) PaymentBalance(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account).ToBig(), nil
}

// AvailableRequests returns floor(balance / pricePerRequest).
func (l *Ledger) AvailableRequests(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	available := new(uint256.Int).Div(l.balanceLocked(account), l.price)
	return available.ToBig(), nil
}

// PricePerRequest returns the immutable per-request price.
func (l *Ledger) PricePerRequest(_ context.Context) (*big.Int, error) {
	return l.price.ToBig(), nil
}

// ContractBalance returns the value currently held by the ledger.
func (l *Ledger) ContractBalance(_ context.Context) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.held.ToBig(), nil
}

// balanceLocked returns a copy of the account balance; callers hold l.mu.
func (l *Ledger) balanceLocked(account common.Address) *uint256.Int {
	if balance, ok := l.balances[account]; ok {
		return new(uint256.Int).Set(balance)
	}
	return uint256.NewInt(0)
}

var _ ledger.Inspector = (*Ledger)(nil)
