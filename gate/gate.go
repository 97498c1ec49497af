// Package gate decides, per request, whether a configured route may be served
// based on the caller's verified on-chain payment state. Routes without a
// policy pass through untouched; restricted routes either proceed with the
// verification snapshot attached to the request context or terminate with a
// structured 402 carrying payment instructions.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"x402gate/verify"
	"x402gate/x402"
)

// HeaderWalletAddress carries the caller's claimed identity.
const HeaderWalletAddress = "X-Wallet-Address"

// Gate decision outcomes, as recorded in metrics and the audit trail.
const (
	OutcomeAllowed         = "allowed"
	OutcomePaymentRequired = "payment_required"
	OutcomeMissingIdentity = "missing_identity"
	OutcomeInvalidIdentity = "invalid_identity"
	OutcomeLedgerError     = "ledger_error"
)

// Verifier is the verification dependency; *verify.Verifier satisfies it.
type Verifier interface {
	Verify(ctx context.Context, identity string) (*verify.Result, error)
}

// Decision is one restricted-route gating outcome.
type Decision struct {
	ID      string
	Time    time.Time
	Method  string
	Path    string
	Wallet  string
	Outcome string
	Status  int
}

// Auditor persists gate decisions. Implementations must tolerate being called
// from concurrent requests.
type Auditor interface {
	Record(ctx context.Context, d Decision) error
}

// Options tune a Gate beyond its required collaborators.
type Options struct {
	// VerifyTimeout bounds the ledger reads behind one verification. A
	// timed-out read surfaces as a 500, never as "unpaid".
	VerifyTimeout time.Duration
	// Auditor, when set, receives every restricted-route decision.
	Auditor Auditor
	// Registry, when set, receives the gate decision counter.
	Registry prometheus.Registerer
	Logger   *slog.Logger
}

// Gate is the request-gating state machine. It is stateless across requests
// except for the immutable policy table.
type Gate struct {
	table     *Table
	verifier  Verifier
	generator *x402.Generator
	timeout   time.Duration
	auditor   Auditor
	logger    *slog.Logger
	decisions *prometheus.CounterVec
}

// New constructs a Gate over the given policy table, verifier, and
// instruction generator.
func New(table *Table, verifier Verifier, generator *x402.Generator, opts Options) *Gate {
	if table == nil {
		panic("policy table required")
	}
	if verifier == nil {
		panic("verifier required")
	}
	if generator == nil {
		panic("instruction generator required")
	}
	timeout := opts.VerifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "x402gate",
		Name:      "decisions_total",
		Help:      "Gate decisions for restricted routes.",
	}, []string{"method", "path", "outcome"})
	if opts.Registry != nil {
		opts.Registry.MustRegister(decisions)
	}
	return &Gate{
		table:     table,
		verifier:  verifier,
		generator: generator,
		timeout:   timeout,
		auditor:   opts.Auditor,
		logger:    logger,
		decisions: decisions,
	}
}

// Middleware returns the gating handler wrapper. Unmatched routes are
// delegated immediately; matched routes run the verification state machine.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy, restricted := g.table.Lookup(r.Method, r.URL.Path)
		if !restricted {
			next.ServeHTTP(w, r)
			return
		}
		g.serveRestricted(w, r, policy, next)
	})
}

func (g *Gate) serveRestricted(w http.ResponseWriter, r *http.Request, policy Policy, next http.Handler) {
	wallet := r.Header.Get(HeaderWalletAddress)
	if wallet == "" {
		g.finish(r, policy, wallet, OutcomeMissingIdentity, http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "missing_identity", "wallet address required: set the "+HeaderWalletAddress+" header")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()
	result, err := g.verifier.Verify(ctx, wallet)
	switch {
	case err == nil:
	case errors.Is(err, verify.ErrInvalidIdentity):
		g.finish(r, policy, wallet, OutcomeInvalidIdentity, http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "invalid_identity", "wallet address is not a valid 0x-prefixed 20-byte hex address")
		return
	default:
		// Ledger uncertainty is a server-side failure. It is never
		// downgraded to "unpaid".
		g.logger.Error("ledger verification failed",
			slog.String("method", policy.Method),
			slog.String("path", policy.Path),
			slog.String("error", err.Error()))
		g.finish(r, policy, wallet, OutcomeLedgerError, http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "ledger_unavailable", err.Error())
		return
	}

	if !result.HasPaid {
		g.finish(r, policy, wallet, OutcomePaymentRequired, http.StatusPaymentRequired)
		g.writePaymentRequired(w, r, policy, result)
		return
	}

	g.finish(r, policy, wallet, OutcomeAllowed, http.StatusOK)
	next.ServeHTTP(w, r.WithContext(WithResult(r.Context(), result)))
}

func (g *Gate) writePaymentRequired(w http.ResponseWriter, r *http.Request, policy Policy, result *verify.Result) {
	payment := g.generator.Render(result.PricePerRequest)
	resp := x402.RequiredResponse{
		Status:  http.StatusPaymentRequired,
		Message: "Payment Required",
		Payment: payment,
		Metadata: x402.Metadata{
			Standard: x402.Standard,
			Version:  x402.Version,
			Endpoint: policy.Method + " " + policy.Path,
		},
		CurrentStatus: x402.CurrentStatus{
			WalletAddress:     result.Address.Hex(),
			Balance:           bigString(result.Balance),
			BalanceFormatted:  x402.FormatWei(result.Balance, payment.Amount.Currency),
			HasPaid:           false,
			AvailableRequests: 0,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(resp)
}

func (g *Gate) finish(r *http.Request, policy Policy, wallet, outcome string, status int) {
	g.decisions.WithLabelValues(policy.Method, policy.Path, outcome).Inc()
	if g.auditor == nil {
		return
	}
	d := Decision{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Method:  policy.Method,
		Path:    policy.Path,
		Wallet:  wallet,
		Outcome: outcome,
		Status:  status,
	}
	if err := g.auditor.Record(r.Context(), d); err != nil {
		g.logger.Warn("audit record failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
