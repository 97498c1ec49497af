package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractCaller is the subset of the Ethereum RPC the read client needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("ledger rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Client reads payment state from the deployed contract. All failures are
// reported as ErrUnavailable with the cause attached; the client never
// retries and never converts uncertainty into an "unpaid" answer.
type Client struct {
	caller   ContractCaller
	contract common.Address
	abi      abi.ABI
}

// NewClient constructs a read client bound to the contract address.
func NewClient(caller ContractCaller, contract common.Address) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller required")
	}
	if (contract == common.Address{}) {
		return nil, fmt.Errorf("contract address required")
	}
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse ledger abi: %w", err)
	}
	return &Client{caller: caller, contract: contract, abi: parsed}, nil
}

// Contract returns the bound contract address.
func (c *Client) Contract() common.Address {
	return c.contract
}

// HasPaid reports whether the account's balance covers at least one request.
func (c *Client) HasPaid(ctx context.Context, account common.Address) (bool, error) {
	out, err := c.call(ctx, "hasPaid", account)
	if err != nil {
		return false, err
	}
	paid, ok := out.(bool)
	if !ok {
		return false, Unavailable(fmt.Errorf("hasPaid: unexpected result type %T", out))
	}
	return paid, nil
}

// PaymentBalance returns the account's prepaid balance in wei.
func (c *Client) PaymentBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, "getPaymentBalance", account)
}

// AvailableRequests returns floor(balance / pricePerRequest) for the account.
func (c *Client) AvailableRequests(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, "getAvailableRequests", account)
}

// PricePerRequest returns the fixed per-request price in wei.
func (c *Client) PricePerRequest(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "pricePerRequest")
}

// ContractBalance returns the total value held by the contract.
func (c *Client) ContractBalance(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "getContractBalance")
}

func (c *Client) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	value, ok := out.(*big.Int)
	if !ok {
		return nil, Unavailable(fmt.Errorf("%s: unexpected result type %T", method, out))
	}
	return value, nil
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, Unavailable(fmt.Errorf("pack %s: %w", method, err))
	}
	msg := ethereum.CallMsg{To: &c.contract, Data: input}
	raw, err := c.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, Unavailable(fmt.Errorf("call %s: %w", method, err))
	}
	values, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, Unavailable(fmt.Errorf("unpack %s: %w", method, err))
	}
	if len(values) != 1 {
		return nil, Unavailable(fmt.Errorf("unpack %s: expected one result, got %d", method, len(values)))
	}
	return values[0], nil
}
