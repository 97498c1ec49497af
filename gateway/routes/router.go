// Package routes assembles the gateway's HTTP surface: the payment gate in
// front of the protected API, the admin read endpoints, and the operational
// endpoints (health, metrics, dev payments).
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"x402gate/gate"
	"x402gate/gateway/middleware"
	"x402gate/ledger"
	"x402gate/ledger/memledger"
)

// Config wires the router's collaborators.
type Config struct {
	Gate          *gate.Gate
	Verifier      gate.Verifier
	Inspector     ledger.Inspector
	DevLedger     *memledger.Ledger
	AdminAuth     *middleware.AdminAuth
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New builds the gateway router. The gate wraps only the /api subtree;
// operational endpoints stay unrestricted.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	if cfg.Gate != nil {
		r.Group(func(pr chi.Router) {
			pr.Use(cfg.Gate.Middleware)
			pr.Get("/api/weather", handleWeather)
			pr.Post("/api/ai/completions", handleCompletions)
		})
	}

	if cfg.AdminAuth != nil && cfg.Inspector != nil {
		admin := &adminHandlers{inspector: cfg.Inspector, verifier: cfg.Verifier}
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(cfg.AdminAuth.Middleware)
			ar.Get("/contract-balance", admin.handleContractBalance)
			ar.Get("/accounts/{address}", admin.handleAccount)
		})
	}

	if cfg.DevLedger != nil {
		dev := &devHandlers{ledger: cfg.DevLedger}
		r.Post("/dev/pay", dev.handlePay)
	}

	return r
}
