package routes

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"x402gate/gate"
	"x402gate/gateway/middleware"
	"x402gate/ledger/memledger"
	"x402gate/verify"
	"x402gate/x402"
)

var (
	testOwner  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testWallet = "0x1111111111111111111111111111111111111111"
)

type gatewayFixture struct {
	handler http.Handler
	ledger  *memledger.Ledger
}

func newGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	mem, err := memledger.New(testOwner, big.NewInt(1000))
	if err != nil {
		t.Fatalf("memledger: %v", err)
	}
	verifier := verify.New(mem)
	table, err := gate.NewTable([]gate.Policy{
		{Method: http.MethodGet, Path: "/api/weather"},
		{Method: http.MethodPost, Path: "/api/ai/completions"},
	})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	generator := x402.NewGenerator(x402.Network{ChainID: 84532, Name: "base-sepolia", Currency: "ETH"}, common.Address{})
	g := gate.New(table, verifier, generator, gate.Options{VerifyTimeout: time.Second})
	auth := middleware.NewAdminAuth(middleware.AdminAuthConfig{HMACSecret: "topsecret"}, nil)
	handler := New(Config{
		Gate:      g,
		Verifier:  verifier,
		Inspector: mem,
		DevLedger: mem,
		AdminAuth: auth,
	})
	return &gatewayFixture{handler: handler, ledger: mem}
}

func (f *gatewayFixture) do(t *testing.T, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *gatewayFixture) credit(t *testing.T, wallet string, amount int64) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"wallet": wallet, "amount": big.NewInt(amount).String()})
	rec := f.do(t, http.MethodPost, "/dev/pay", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dev pay: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthzIsUnrestricted(t *testing.T) {
	f := newGateway(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestUnpaidWalletGets402WithInstructions(t *testing.T) {
	f := newGateway(t)
	rec := f.do(t, http.MethodGet, "/api/weather", nil, map[string]string{gate.HeaderWalletAddress: testWallet})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp x402.RequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode 402 body: %v", err)
	}
	if resp.Status != http.StatusPaymentRequired || resp.Message != "Payment Required" {
		t.Fatalf("status block: %+v", resp)
	}
	if resp.Payment.Amount.Value != "1000" {
		t.Fatalf("amount: got %q", resp.Payment.Amount.Value)
	}
	if resp.Metadata.Endpoint != "GET /api/weather" {
		t.Fatalf("endpoint: got %q", resp.Metadata.Endpoint)
	}
	if resp.CurrentStatus.HasPaid || resp.CurrentStatus.AvailableRequests != 0 {
		t.Fatalf("current status: %+v", resp.CurrentStatus)
	}
}

func TestPaidWalletPassesWithPaymentEcho(t *testing.T) {
	f := newGateway(t)
	f.credit(t, testWallet, 2500)

	rec := f.do(t, http.MethodGet, "/api/weather", nil, map[string]string{gate.HeaderWalletAddress: testWallet})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		City    string       `json:"city"`
		Payment *paymentEcho `json:"payment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Payment == nil {
		t.Fatalf("expected payment echo block")
	}
	if resp.Payment.Balance != "2500" || resp.Payment.AvailableRequests != "2" || resp.Payment.PricePerRequest != "1000" {
		t.Fatalf("payment echo: %+v", resp.Payment)
	}
}

func TestCompletionsGateAndHandler(t *testing.T) {
	f := newGateway(t)
	f.credit(t, testWallet, 1000)

	body, _ := json.Marshal(map[string]string{"prompt": "hello"})
	rec := f.do(t, http.MethodPost, "/api/ai/completions", body, map[string]string{gate.HeaderWalletAddress: testWallet})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Completion string `json:"completion"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Completion != "echo: hello" {
		t.Fatalf("completion: got %q", resp.Completion)
	}
}

func TestMissingIdentityRejectedBeforeLedger(t *testing.T) {
	f := newGateway(t)
	rec := f.do(t, http.MethodGet, "/api/weather", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["error"] != "missing_identity" {
		t.Fatalf("error code: got %q", resp["error"])
	}
}

func TestDevPayValidation(t *testing.T) {
	f := newGateway(t)

	rec := f.do(t, http.MethodPost, "/dev/pay", []byte(`{"wallet":"nope","amount":"1000"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad wallet: expected 400, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/dev/pay", []byte(`{"wallet":"`+testWallet+`","amount":"-5"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: expected 400, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/dev/pay", []byte(`not json`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rec.Code)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	f := newGateway(t)
	f.credit(t, testWallet, 2500)

	rec := f.do(t, http.MethodGet, "/admin/contract-balance", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("topsecret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + token}

	rec = f.do(t, http.MethodGet, "/admin/contract-balance", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("contract-balance: %d %s", rec.Code, rec.Body.String())
	}
	var balance map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if balance["contractBalance"] != "2500" {
		t.Fatalf("contract balance: got %q", balance["contractBalance"])
	}

	rec = f.do(t, http.MethodGet, "/admin/accounts/"+testWallet, nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("accounts: %d %s", rec.Code, rec.Body.String())
	}
	var account struct {
		HasPaid           bool   `json:"hasPaid"`
		Balance           string `json:"balance"`
		AvailableRequests string `json:"availableRequests"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !account.HasPaid || account.Balance != "2500" || account.AvailableRequests != "2" {
		t.Fatalf("account: %+v", account)
	}

	rec = f.do(t, http.MethodGet, "/admin/accounts/garbage", nil, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid address: expected 400, got %d", rec.Code)
	}
}
