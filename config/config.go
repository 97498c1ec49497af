// Package config loads and validates the gateway's runtime configuration.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Ledger backends.
const (
	BackendRPC    = "rpc"
	BackendMemory = "memory"
)

// Environment variables overriding file values, for secrets and per-deploy
// endpoints.
const (
	envListen        = "X402_LISTEN"
	envRPCEndpoint   = "X402_LEDGER_ENDPOINT"
	envContractAddr  = "X402_CONTRACT_ADDRESS"
	envAdminSecret   = "X402_ADMIN_SECRET"
	envOTLPEndpoint  = "X402_OTLP_ENDPOINT"
	envAuditDatabase = "X402_AUDIT_DB"
)

// RouteConfig declares one payment-restricted route.
type RouteConfig struct {
	Method      string   `yaml:"method"`
	Path        string   `yaml:"path"`
	Networks    []string `yaml:"networks"`
	Description string   `yaml:"description"`
}

// LedgerConfig selects and parameterizes the ledger backend.
type LedgerConfig struct {
	Backend         string        `yaml:"backend"`
	Endpoint        string        `yaml:"endpoint"`
	ContractAddress string        `yaml:"contractAddress"`
	ChainID         int64         `yaml:"chainId"`
	NetworkName     string        `yaml:"networkName"`
	Currency        string        `yaml:"currency"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	// Owner and PricePerRequest configure the memory backend only; the RPC
	// backend takes both from the deployed contract.
	Owner           string `yaml:"owner"`
	PricePerRequest string `yaml:"pricePerRequest"`
}

// AdminConfig guards the owner-facing read endpoints.
type AdminConfig struct {
	Enabled    bool          `yaml:"enabled"`
	HMACSecret string        `yaml:"hmacSecret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clockSkew"`
}

// ObservabilityConfig tunes logging, metrics, and tracing.
type ObservabilityConfig struct {
	ServiceName   string `yaml:"serviceName"`
	Environment   string `yaml:"environment"`
	Metrics       bool   `yaml:"metrics"`
	Tracing       bool   `yaml:"tracing"`
	LogRequests   bool   `yaml:"logRequests"`
	MetricsPrefix string `yaml:"metricsPrefix"`
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
}

// Config is the full gateway configuration.
type Config struct {
	ListenAddress string              `yaml:"listen"`
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	AuditDatabase string              `yaml:"auditDatabase"`
	DevEndpoints  bool                `yaml:"devEndpoints"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Routes        []RouteConfig       `yaml:"routes"`
	Admin         AdminConfig         `yaml:"admin"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Load reads the YAML file at path (an empty path yields defaults), applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Ledger: LedgerConfig{
			Backend:     BackendRPC,
			NetworkName: "ethereum-sepolia",
			ChainID:     11155111,
			Currency:    "ETH",
			ReadTimeout: 5 * time.Second,
		},
		Admin: AdminConfig{
			ClockSkew: 2 * time.Minute,
		},
		Observability: ObservabilityConfig{
			ServiceName:   "x402gate",
			Metrics:       true,
			LogRequests:   true,
			MetricsPrefix: "x402gate",
		},
	}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envListen)); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(envRPCEndpoint)); v != "" {
		cfg.Ledger.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(envContractAddr)); v != "" {
		cfg.Ledger.ContractAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(envAdminSecret)); v != "" {
		cfg.Admin.HMACSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(envOTLPEndpoint)); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(envAuditDatabase)); v != "" {
		cfg.AuditDatabase = v
	}
}

// Validate checks cross-field consistency. Route tables may repeat
// (method, path) keys; the gate resolves duplicates last-write-wins, so
// duplicates are not an error here.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Ledger.Backend {
	case BackendRPC:
		if strings.TrimSpace(cfg.Ledger.Endpoint) == "" {
			return fmt.Errorf("ledger.endpoint required for the rpc backend")
		}
		if !common.IsHexAddress(strings.TrimSpace(cfg.Ledger.ContractAddress)) {
			return fmt.Errorf("ledger.contractAddress must be a hex address")
		}
	case BackendMemory:
		if !common.IsHexAddress(strings.TrimSpace(cfg.Ledger.Owner)) {
			return fmt.Errorf("ledger.owner must be a hex address for the memory backend")
		}
		price, ok := new(big.Int).SetString(strings.TrimSpace(cfg.Ledger.PricePerRequest), 10)
		if !ok || price.Sign() <= 0 {
			return fmt.Errorf("ledger.pricePerRequest must be a positive integer for the memory backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be %q or %q", BackendRPC, BackendMemory)
	}
	if cfg.Ledger.ChainID <= 0 {
		return fmt.Errorf("ledger.chainId must be positive")
	}
	if cfg.Ledger.ReadTimeout <= 0 {
		return fmt.Errorf("ledger.readTimeout must be positive")
	}
	for i, route := range cfg.Routes {
		if strings.TrimSpace(route.Method) == "" {
			return fmt.Errorf("routes[%d]: method required", i)
		}
		if !strings.HasPrefix(strings.TrimSpace(route.Path), "/") {
			return fmt.Errorf("routes[%d]: path must start with '/'", i)
		}
	}
	if cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.HMACSecret) == "" {
		return fmt.Errorf("admin.hmacSecret required when admin endpoints are enabled")
	}
	return nil
}

// ContractAddress parses the configured contract address. Call only after
// Validate succeeded on an rpc-backend config.
func (cfg *Config) ContractAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(cfg.Ledger.ContractAddress))
}

// OwnerAddress parses the configured memory-backend owner.
func (cfg *Config) OwnerAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(cfg.Ledger.Owner))
}

// Price parses the configured memory-backend price in wei.
func (cfg *Config) Price() *big.Int {
	price, _ := new(big.Int).SetString(strings.TrimSpace(cfg.Ledger.PricePerRequest), 10)
	return price
}
