package verify

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"x402gate/ledger"
)

const testWallet = "0x1111111111111111111111111111111111111111"

type stubLedger struct {
	calls     atomic.Int64
	hasPaidFn func(ctx context.Context) (bool, error)
	balanceFn func(ctx context.Context) (*big.Int, error)
	availFn   func(ctx context.Context) (*big.Int, error)
	priceFn   func(ctx context.Context) (*big.Int, error)
}

func (s *stubLedger) HasPaid(ctx context.Context, _ common.Address) (bool, error) {
	s.calls.Add(1)
	if s.hasPaidFn == nil {
		return false, nil
	}
	return s.hasPaidFn(ctx)
}

func (s *stubLedger) PaymentBalance(ctx context.Context, _ common.Address) (*big.Int, error) {
	s.calls.Add(1)
	if s.balanceFn == nil {
		return big.NewInt(0), nil
	}
	return s.balanceFn(ctx)
}

func (s *stubLedger) AvailableRequests(ctx context.Context, _ common.Address) (*big.Int, error) {
	s.calls.Add(1)
	if s.availFn == nil {
		return big.NewInt(0), nil
	}
	return s.availFn(ctx)
}

func (s *stubLedger) PricePerRequest(ctx context.Context) (*big.Int, error) {
	s.calls.Add(1)
	if s.priceFn == nil {
		return big.NewInt(1), nil
	}
	return s.priceFn(ctx)
}

func TestVerifyRejectsMalformedIdentityLocally(t *testing.T) {
	stub := &stubLedger{}
	v := New(stub)

	for _, identity := range []string{"", "nope", "0x123", "1111111111111111111111111111111111111111x"} {
		if _, err := v.Verify(context.Background(), identity); !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("identity %q: expected ErrInvalidIdentity, got %v", identity, err)
		}
	}
	if got := stub.calls.Load(); got != 0 {
		t.Fatalf("ledger must not be consulted for malformed identities, got %d calls", got)
	}
}

func TestVerifyAssemblesResult(t *testing.T) {
	stub := &stubLedger{
		hasPaidFn: func(context.Context) (bool, error) { return true, nil },
		balanceFn: func(context.Context) (*big.Int, error) { return big.NewInt(2500), nil },
		availFn:   func(context.Context) (*big.Int, error) { return big.NewInt(2), nil },
		priceFn:   func(context.Context) (*big.Int, error) { return big.NewInt(1000), nil },
	}
	v := New(stub)

	result, err := v.Verify(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Address != common.HexToAddress(testWallet) {
		t.Fatalf("unexpected address %s", result.Address.Hex())
	}
	if !result.HasPaid {
		t.Fatalf("expected hasPaid")
	}
	if result.Balance.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("unexpected balance %s", result.Balance)
	}
	if result.AvailableRequests.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("unexpected availableRequests %s", result.AvailableRequests)
	}
	if result.PricePerRequest.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected price %s", result.PricePerRequest)
	}
	if got := stub.calls.Load(); got != 4 {
		t.Fatalf("expected four ledger reads, got %d", got)
	}
}

func TestVerifySurfacesReadFailureAsUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	stub := &stubLedger{
		balanceFn: func(context.Context) (*big.Int, error) { return nil, cause },
	}
	v := New(stub)

	_, err := v.Verify(context.Background(), testWallet)
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestVerifyFailFastCancelsRemainingReads(t *testing.T) {
	priceCancelled := make(chan struct{})
	stub := &stubLedger{
		hasPaidFn: func(context.Context) (bool, error) { return false, errors.New("boom") },
		priceFn: func(ctx context.Context) (*big.Int, error) {
			<-ctx.Done()
			close(priceCancelled)
			return nil, ctx.Err()
		},
	}
	v := New(stub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := v.Verify(context.Background(), testWallet); !errors.Is(err, ledger.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("verify did not fail fast")
	}
	select {
	case <-priceCancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("pending read was not cancelled")
	}
}

func TestVerifyTimeoutIsUnavailableNotUnpaid(t *testing.T) {
	stub := &stubLedger{
		hasPaidFn: func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		},
	}
	v := New(stub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result, err := v.Verify(ctx, testWallet)
	if result != nil {
		t.Fatalf("a timed-out verification must not produce a result")
	}
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
}
