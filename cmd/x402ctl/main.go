// Command x402ctl operates the payment contract from the command line: it
// inspects wallet state and, with the owner key, exercises the contract's
// write surface (pay, deductPayment, withdraw).
package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"x402gate/ledger"
)

const keyEnv = "X402CTL_KEY"

type clientFlags struct {
	rpc      string
	contract string
	chainID  int64
	timeout  time.Duration
}

func registerClientFlags(fs *flag.FlagSet) *clientFlags {
	cf := &clientFlags{}
	fs.StringVar(&cf.rpc, "rpc", os.Getenv("X402_LEDGER_ENDPOINT"), "ledger RPC endpoint")
	fs.StringVar(&cf.contract, "contract", os.Getenv("X402_CONTRACT_ADDRESS"), "payment contract address")
	fs.Int64Var(&cf.chainID, "chain-id", 11155111, "chain id for transaction signing")
	fs.DurationVar(&cf.timeout, "timeout", 60*time.Second, "overall operation timeout")
	return cf
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "status":
		err = runStatus(os.Args[2:])
	case "contract-balance":
		err = runContractBalance(os.Args[2:])
	case "pay":
		err = runPay(os.Args[2:])
	case "deduct":
		err = runDeduct(os.Args[2:])
	case "withdraw":
		err = runWithdraw(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: x402ctl <command> [flags]

Commands:
  status <address>          show balance, paid state, and available requests
  contract-balance          show the value held by the contract
  pay -amount <wei>         top up the signing wallet's balance
  deduct <address> -amount <wei>
                            owner only: reduce a wallet's credited balance
  withdraw                  owner only: move the held value to the owner

Transaction commands sign with the private key in `+keyEnv+`.`)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := registerClientFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("status requires exactly one wallet address")
	}
	raw := strings.TrimSpace(fs.Arg(0))
	if !common.IsHexAddress(raw) {
		return fmt.Errorf("%q is not a valid hex address", raw)
	}
	account := common.HexToAddress(raw)

	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	client, reads, err := dialReader(cf)
	if err != nil {
		return err
	}
	defer client.Close()

	balance, err := reads.PaymentBalance(ctx, account)
	if err != nil {
		return err
	}
	paid, err := reads.HasPaid(ctx, account)
	if err != nil {
		return err
	}
	available, err := reads.AvailableRequests(ctx, account)
	if err != nil {
		return err
	}
	price, err := reads.PricePerRequest(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("wallet:            %s\n", account.Hex())
	fmt.Printf("balance:           %s wei\n", balance)
	fmt.Printf("hasPaid:           %t\n", paid)
	fmt.Printf("availableRequests: %s\n", available)
	fmt.Printf("pricePerRequest:   %s wei\n", price)
	return nil
}

func runContractBalance(args []string) error {
	fs := flag.NewFlagSet("contract-balance", flag.ExitOnError)
	cf := registerClientFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	client, reads, err := dialReader(cf)
	if err != nil {
		return err
	}
	defer client.Close()

	held, err := reads.ContractBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("contractBalance: %s wei\n", held)
	return nil
}

func runPay(args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	cf := registerClientFlags(fs)
	amount := fs.String("amount", "", "payment amount in wei")
	fs.Parse(args)
	value, err := parseAmount(*amount)
	if err != nil {
		return err
	}
	data, err := packCall("pay")
	if err != nil {
		return err
	}
	return submit(cf, value, data)
}

func runDeduct(args []string) error {
	fs := flag.NewFlagSet("deduct", flag.ExitOnError)
	cf := registerClientFlags(fs)
	amount := fs.String("amount", "", "deduction amount in wei")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("deduct requires exactly one wallet address")
	}
	raw := strings.TrimSpace(fs.Arg(0))
	if !common.IsHexAddress(raw) {
		return fmt.Errorf("%q is not a valid hex address", raw)
	}
	value, err := parseAmount(*amount)
	if err != nil {
		return err
	}
	data, err := packCall("deductPayment", common.HexToAddress(raw), value)
	if err != nil {
		return err
	}
	return submit(cf, nil, data)
}

func runWithdraw(args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	cf := registerClientFlags(fs)
	fs.Parse(args)
	data, err := packCall("withdraw")
	if err != nil {
		return err
	}
	return submit(cf, nil, data)
}

func dialReader(cf *clientFlags) (*ethclient.Client, *ledger.Client, error) {
	if !common.IsHexAddress(strings.TrimSpace(cf.contract)) {
		return nil, nil, fmt.Errorf("-contract must be a valid hex address")
	}
	client, err := ledger.Dial(cf.rpc)
	if err != nil {
		return nil, nil, err
	}
	reads, err := ledger.NewClient(client, common.HexToAddress(strings.TrimSpace(cf.contract)))
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, reads, nil
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("-amount must be a decimal integer in wei")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("-amount must be positive")
	}
	return value, nil
}

func packCall(method string, args ...interface{}) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(ledger.ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func loadKey() (*ecdsa.PrivateKey, error) {
	raw := strings.TrimSpace(os.Getenv(keyEnv))
	if raw == "" {
		return nil, fmt.Errorf("%s must hold a hex private key for transaction commands", keyEnv)
	}
	return gethcrypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
}

func submit(cf *clientFlags, value *big.Int, data []byte) error {
	if !common.IsHexAddress(strings.TrimSpace(cf.contract)) {
		return fmt.Errorf("-contract must be a valid hex address")
	}
	contract := common.HexToAddress(strings.TrimSpace(cf.contract))
	key, err := loadKey()
	if err != nil {
		return err
	}
	from := gethcrypto.PubkeyToAddress(key.PublicKey)

	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	client, err := ledger.Dial(cf.rpc)
	if err != nil {
		return err
	}
	defer client.Close()

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch gas price: %w", err)
	}
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &contract, Value: value, Data: data})
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(cf.chainID)), key)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	fmt.Printf("submitted %s, waiting for inclusion...\n", signed.Hash().Hex())
	receipt, err := bind.WaitMined(ctx, client, signed)
	if err != nil {
		return fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}
	fmt.Printf("mined in block %s\n", receipt.BlockNumber)
	return nil
}
