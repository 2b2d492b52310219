// Package config loads the operator configuration and keeps it current.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/evaluator"
	"solana-trade-agent/internal/supervisor"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the operator configuration. The engine reads one snapshot per cycle;
// trading fields may change between cycles, connection fields need a restart.
type Config struct {
	Mode            domain.Mode   `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`
	StartingCapital float64       `mapstructure:"starting_capital"`

	Thresholds evaluator.Thresholds `mapstructure:"thresholds"`
	Sizing     Sizing               `mapstructure:"sizing"`
	Exit       Exit                 `mapstructure:"exit"`
	Risk       Risk                 `mapstructure:"risk"`
	Simulation Simulation           `mapstructure:"simulation"`
	Execution  Execution            `mapstructure:"execution"`

	Market  Market  `mapstructure:"market"`
	Venue   Venue   `mapstructure:"venue"`
	Solana  Solana  `mapstructure:"solana"`
	Storage Storage `mapstructure:"storage"`
	Redis   Redis   `mapstructure:"redis"`
	Archive Archive `mapstructure:"archive"`
	HTTP    HTTP    `mapstructure:"http"`
}

// Sizing bounds capital per trade and the number of concurrent positions.
type Sizing struct {
	MinCapitalPerTrade     float64 `mapstructure:"min_capital_per_trade"`
	MaxCapitalPerTrade     float64 `mapstructure:"max_capital_per_trade"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
}

// Exit holds the exit thresholds.
type Exit struct {
	TakeProfitMultiple float64 `mapstructure:"take_profit_multiple"`
	StopLossPct        float64 `mapstructure:"stop_loss_pct"`
	TrailingStopPct    float64 `mapstructure:"trailing_stop_pct"`
	TrailingEnabled    bool    `mapstructure:"trailing_enabled"`
}

// Params converts to supervisor parameters.
func (e Exit) Params() supervisor.ExitParams {
	return supervisor.ExitParams{
		TakeProfitMultiple: e.TakeProfitMultiple,
		StopLossPct:        e.StopLossPct,
		TrailingPct:        e.TrailingStopPct,
		TrailingEnabled:    e.TrailingEnabled,
	}
}

// Risk toggles the heuristic risk scorer.
type Risk struct {
	Enabled bool `mapstructure:"enabled"`
}

// Simulation configures synthesized fills.
type Simulation struct {
	SlippagePct float64 `mapstructure:"slippage_pct"`
}

// Execution configures BUY retries.
type Execution struct {
	BuyRetries     uint64        `mapstructure:"buy_retries"`
	RetryInitial   time.Duration `mapstructure:"retry_initial"`
	RetryMax       time.Duration `mapstructure:"retry_max"`
	VenueTimeout   time.Duration `mapstructure:"venue_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

// Market configures the market data feed.
type Market struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	CandidatesPath string        `mapstructure:"candidates_path"`
	PricePath      string        `mapstructure:"price_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PriceMaxAge    time.Duration `mapstructure:"price_max_age"`
}

// Venue configures the live execution venue.
type Venue struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Solana configures RPC access for balance mirroring and confirmations.
type Solana struct {
	RPCURL        string `mapstructure:"rpc_url"`
	WSURL         string `mapstructure:"ws_url"`
	WalletAddress string `mapstructure:"wallet_address"`
}

// Storage selects the ledger and event backends.
type Storage struct {
	Driver        string `mapstructure:"driver"` // memory, sqlite or postgres
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresConns int32  `mapstructure:"postgres_max_conns"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

// Redis configures the shared price cache and cycle lease.
type Redis struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl"`
	PriceTTL  time.Duration `mapstructure:"price_ttl"`
}

// Archive configures trade log uploads to S3.
type Archive struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// HTTP configures the operational endpoint.
type HTTP struct {
	Addr string `mapstructure:"addr"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Defaults returns a configuration that runs a simulated agent on memory storage.
func Defaults() Config {
	return Config{
		Mode:            domain.ModeSimulated,
		LogLevel:        "info",
		CycleInterval:   30 * time.Second,
		StartingCapital: 10,
		Thresholds: evaluator.Thresholds{
			MinSafetyScore:  evaluator.On(5),
			MinVolume24h:    evaluator.On(10_000),
			MinLiquidityUSD: evaluator.On(20_000),
			MinHolderCount:  evaluator.On(100),
		},
		Sizing: Sizing{
			MinCapitalPerTrade:     0.1,
			MaxCapitalPerTrade:     1,
			MaxConcurrentPositions: 5,
		},
		Exit: Exit{
			TakeProfitMultiple: 1.5,
			StopLossPct:        0.25,
			TrailingStopPct:    0.15,
			TrailingEnabled:    false,
		},
		Execution: Execution{
			BuyRetries:     3,
			RetryInitial:   500 * time.Millisecond,
			RetryMax:       5 * time.Second,
			VenueTimeout:   30 * time.Second,
			ConfirmTimeout: 60 * time.Second,
		},
		Market: Market{
			Timeout:     10 * time.Second,
			PriceMaxAge: 2 * time.Minute,
		},
		Storage: Storage{
			Driver:        DriverMemory,
			SQLitePath:    "trader.db",
			PostgresConns: 5,
		},
		Redis: Redis{
			KeyPrefix: "trader:",
			LeaseTTL:  2 * time.Minute,
			PriceTTL:  10 * time.Minute,
		},
		Archive: Archive{Prefix: "ledger"},
		HTTP:    HTTP{Addr: ":8080"},
	}
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !c.Mode.IsValid() {
		add("mode %q must be SIMULATED or REAL", c.Mode)
	}
	if c.CycleInterval <= 0 {
		add("cycle_interval must be positive")
	}
	if !finite(c.StartingCapital) || c.StartingCapital < 0 {
		add("starting_capital must be a non-negative number")
	}

	s := c.Sizing
	if !finite(s.MinCapitalPerTrade) || s.MinCapitalPerTrade < 0 {
		add("sizing.min_capital_per_trade must be non-negative")
	}
	if !finite(s.MaxCapitalPerTrade) || s.MaxCapitalPerTrade <= 0 {
		add("sizing.max_capital_per_trade must be positive")
	}
	if s.MaxCapitalPerTrade < s.MinCapitalPerTrade {
		add("sizing.max_capital_per_trade must be >= min_capital_per_trade")
	}
	if s.MaxConcurrentPositions < 1 {
		add("sizing.max_concurrent_positions must be at least 1")
	}

	e := c.Exit
	if e.TakeProfitMultiple != 0 && e.TakeProfitMultiple <= 1 {
		add("exit.take_profit_multiple must exceed 1 (0 disables)")
	}
	if e.StopLossPct < 0 || e.StopLossPct >= 1 {
		add("exit.stop_loss_pct must be in [0, 1)")
	}
	if e.TrailingStopPct < 0 || e.TrailingStopPct >= 1 {
		add("exit.trailing_stop_pct must be in [0, 1)")
	}
	if e.TrailingEnabled && e.TrailingStopPct == 0 {
		add("exit.trailing_stop_pct is required when trailing is enabled")
	}
	if e.TakeProfitMultiple == 0 && e.StopLossPct == 0 && !e.TrailingEnabled {
		add("at least one exit rule must be enabled")
	}

	if c.Simulation.SlippagePct < 0 || c.Simulation.SlippagePct >= 100 {
		add("simulation.slippage_pct must be in [0, 100)")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			add("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		add("storage.driver %q must be memory, sqlite or postgres", c.Storage.Driver)
	}

	if c.Mode == domain.ModeReal {
		if c.Venue.BaseURL == "" {
			add("venue.base_url is required in REAL mode")
		}
		if c.Solana.RPCURL == "" {
			add("solana.rpc_url is required in REAL mode")
		}
		if c.Solana.WalletAddress == "" {
			add("solana.wallet_address is required in REAL mode")
		}
	}
	if c.Solana.WalletAddress != "" {
		if err := validateWallet(c.Solana.WalletAddress); err != nil {
			add("solana.wallet_address: %v", err)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("log_level %q must be debug, info, warn or error", c.LogLevel)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
