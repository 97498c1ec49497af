package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"x402gate/audit"
	"x402gate/config"
	"x402gate/gate"
	"x402gate/gateway/middleware"
	"x402gate/gateway/routes"
	"x402gate/ledger"
	"x402gate/ledger/memledger"
	"x402gate/observability/logging"
	"x402gate/observability/otel"
	"x402gate/verify"
	"x402gate/x402"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Observability.ServiceName, cfg.Observability.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.Tracing {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: cfg.Observability.ServiceName,
			Environment: cfg.Observability.Environment,
			Endpoint:    cfg.Observability.OTLPEndpoint,
			Insecure:    true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("telemetry init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	var (
		inspector ledger.Inspector
		devLedger *memledger.Ledger
	)
	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		mem, err := memledger.New(cfg.OwnerAddress(), cfg.Price(),
			memledger.WithPaymentHook(func(ev ledger.PaymentReceived) {
				logger.Info("payment received",
					slog.String("payer", ev.Payer.Hex()),
					slog.String("amount", ev.Amount.String()),
					slog.String("newBalance", ev.NewBalance.String()))
			}))
		if err != nil {
			logger.Error("memory ledger init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Warn("running with the in-memory ledger; balances reset on restart")
		inspector = mem
		if cfg.DevEndpoints {
			devLedger = mem
		}
	case config.BackendRPC:
		eth, err := ledger.Dial(cfg.Ledger.Endpoint)
		if err != nil {
			logger.Error("ledger rpc dial failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer eth.Close()
		client, err := ledger.NewClient(eth, cfg.ContractAddress())
		if err != nil {
			logger.Error("ledger client init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		inspector = client
	}

	verifier := verify.New(inspector)
	generator := x402.NewGenerator(x402.Network{
		ChainID:  cfg.Ledger.ChainID,
		Name:     cfg.Ledger.NetworkName,
		Currency: cfg.Ledger.Currency,
	}, cfg.ContractAddress())

	policies := make([]gate.Policy, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		policies = append(policies, gate.Policy{
			Method:           route.Method,
			Path:             route.Path,
			AcceptedNetworks: route.Networks,
			Description:      route.Description,
		})
	}
	table, err := gate.NewTable(policies)
	if err != nil {
		logger.Error("route policy table invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics,
	}, logger)

	gateOpts := gate.Options{
		VerifyTimeout: cfg.Ledger.ReadTimeout,
		Registry:      obs.Registry(),
		Logger:        logger,
	}
	if cfg.AuditDatabase != "" {
		store, err := audit.Open(cfg.AuditDatabase)
		if err != nil {
			logger.Error("audit store init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer store.Close()
		gateOpts.Auditor = store
	}
	g := gate.New(table, verifier, generator, gateOpts)

	var adminAuth *middleware.AdminAuth
	if cfg.Admin.Enabled {
		adminAuth = middleware.NewAdminAuth(middleware.AdminAuthConfig{
			HMACSecret: cfg.Admin.HMACSecret,
			Issuer:     cfg.Admin.Issuer,
			Audience:   cfg.Admin.Audience,
			ClockSkew:  cfg.Admin.ClockSkew,
		}, logger)
	}

	router := routes.New(routes.Config{
		Gate:          g,
		Verifier:      verifier,
		Inspector:     inspector,
		DevLedger:     devLedger,
		AdminAuth:     adminAuth,
		Observability: obs,
	})
	var handler http.Handler = router
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, "gateway")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("gateway listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("backend", cfg.Ledger.Backend),
			slog.Int("restrictedRoutes", table.Len()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
	}
}
