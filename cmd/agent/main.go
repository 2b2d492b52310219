// Package main runs the trading agent: the cycle loop plus the operational
// HTTP endpoints (/health, /metrics, /status).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	cacheredis "solana-trade-agent/internal/cache/redis"
	"solana-trade-agent/internal/config"
	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/engine"
	"solana-trade-agent/internal/executor"
	"solana-trade-agent/internal/ledger"
	"solana-trade-agent/internal/market"
	"solana-trade-agent/internal/observability"
	"solana-trade-agent/internal/risk"
	"solana-trade-agent/internal/solana"
	"solana-trade-agent/internal/storage"
	chstore "solana-trade-agent/internal/storage/clickhouse"
	"solana-trade-agent/internal/storage/memory"
	"solana-trade-agent/internal/storage/migrations"
	pgstore "solana-trade-agent/internal/storage/postgres"
	sqlitestore "solana-trade-agent/internal/storage/sqlite"
	"solana-trade-agent/internal/supervisor"
	"solana-trade-agent/internal/venue"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TRADER_CONFIG"), "Config file (YAML, TOML or JSON); watched for changes")
	resetSim := flag.Bool("reset-simulation", false, "Reset the simulated balance to starting_capital before starting")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	flag.Parse()

	if err := run(*configPath, *resetSim, *once); err != nil {
		slog.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, resetSim, once bool) error {
	cfgSource, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg := cfgSource.Current()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	ledgerStore, closeLedger, err := openLedgerStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	events, closeEvents, err := openEventStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	// Redis: shared price cache and cycle lease
	var (
		priceCache market.PriceWriter
		lease      engine.Lease
	)
	if cfg.Redis.Addr != "" {
		rc, err := cacheredis.New(ctx, cacheredis.ClientConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		priceCache = cacheredis.NewPriceCache(rc, cfg.Redis.PriceTTL)
		lease = cacheredis.NewLockManager(rc)
		logger.Info("redis enabled", "addr", cfg.Redis.Addr)
	}

	// Market data
	var provider *market.HTTPProvider
	var upstream market.Quoter
	if cfg.Market.BaseURL != "" {
		provider = market.NewHTTPProvider(market.HTTPProviderOptions{
			BaseURL:        cfg.Market.BaseURL,
			CandidatesPath: cfg.Market.CandidatesPath,
			PricePath:      cfg.Market.PricePath,
			APIKey:         cfg.Market.APIKey,
			Timeout:        cfg.Market.Timeout,
			Logger:         logger,
		})
		upstream = provider
	} else {
		logger.Warn("market.base_url not set; no candidates will be discovered")
	}
	prices := market.NewPriceBook(market.PriceBookOptions{
		Upstream: upstream,
		MaxAge:   cfg.Market.PriceMaxAge,
		Cache:    priceCache,
		Logger:   logger,
	})

	// Ledger
	led := ledger.New(ledger.Options{Store: ledgerStore, Logger: logger})
	if err := led.Init(ctx, domain.ModeSimulated, cfg.StartingCapital); err != nil {
		return err
	}
	if resetSim {
		if err := led.ResetSimulation(ctx, cfg.StartingCapital); err != nil {
			return fmt.Errorf("reset simulation: %w", err)
		}
	}

	// Executors: SIMULATED is always present so its positions keep being supervised.
	simFiller := executor.NewSimulatedFiller(prices, cfg.Simulation.SlippagePct, nil)
	executors := map[domain.Mode]executor.Executor{
		domain.ModeSimulated: executor.New(executor.Options{
			Filler:    simFiller,
			Ledger:    led,
			Prices:    prices,
			BuyBuffer: simFiller.BuyBuffer,
			Logger:    logger,
		}),
	}

	if cfg.Venue.BaseURL != "" {
		realEx, closeReal, err := newRealExecutor(ctx, cfg, led, prices, logger)
		if err != nil {
			return err
		}
		defer closeReal()
		executors[domain.ModeReal] = realEx
	}

	var scorer risk.Scorer
	if cfg.Risk.Enabled {
		scorer = risk.NewHeuristicScorer()
	}

	status := &statusTracker{started: time.Now()}

	var candidates engine.Candidates
	if provider != nil {
		candidates = provider
	}
	eng := engine.New(engine.Options{
		Config:     cfgSource,
		Candidates: candidates,
		Ledger:     led,
		Supervisor: supervisor.New(supervisor.Options{Positions: led, Prices: prices, Logger: logger}),
		Executors:  executors,
		Prices:     prices,
		Scorer:     scorer,
		Events:     events,
		Lease:      lease,
		Slippage:   simFiller,
		OnCycle:    status.record,
		Logger:     logger,
	})

	cfgSource.OnChange(func(next config.Config) {
		if next.Mode != cfg.Mode {
			logger.Warn("execution mode changed; applies to new buys from the next cycle",
				"from", cfg.Mode, "to", next.Mode)
		}
		if next.Mode == domain.ModeReal && executors[domain.ModeReal] == nil {
			logger.Error("REAL mode selected but no venue is configured; restart with venue.base_url")
		}
	})

	if once {
		rep, err := eng.RunCycle(ctx)
		if rep != nil {
			status.record(rep)
		}
		return err
	}

	srv := startHTTPServer(cfg.HTTP.Addr, status, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("agent started",
		"mode", cfg.Mode,
		"storage", cfg.Storage.Driver,
		"cycle_interval", cfg.CycleInterval,
		"real_executor", executors[domain.ModeReal] != nil)

	if err := eng.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// configSource is what the agent needs from config: a snapshot and change hooks.
type configSource interface {
	Current() config.Config
	OnChange(fn func(config.Config))
}

func loadConfig(path string) (configSource, error) {
	if path != "" {
		return config.NewWatcher(path, slog.Default())
	}
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	return config.Static(*cfg), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openLedgerStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (storage.LedgerStore, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("ledger storage", "driver", "sqlite", "path", cfg.SQLitePath)
		return store, func() { _ = store.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("ledger storage", "driver", "postgres")
		return pgstore.NewLedgerStore(pool), pool.Close, nil

	default:
		logger.Warn("ledger storage is in memory; trades are lost on restart")
		return memory.NewLedgerStore(), func() {}, nil
	}
}

func openEventStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (storage.EventStore, func(), error) {
	if cfg.ClickHouseDSN == "" {
		return memory.NewEventStore(), func() {}, nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	logger.Info("event storage", "driver", "clickhouse")
	return chstore.NewEventStore(conn), func() { _ = conn.Close() }, nil
}

// newRealExecutor wires the venue with on-chain confirmation and mirrors the
// wallet balance into the REAL ledger once at startup.
func newRealExecutor(ctx context.Context, cfg config.Config, led *ledger.Ledger, prices *market.PriceBook, logger *slog.Logger) (executor.Executor, func(), error) {
	closeFn := func() {}
	var confirmer venue.Confirmer

	if cfg.Solana.RPCURL != "" {
		rpc := solana.NewHTTPClient(cfg.Solana.RPCURL, solana.WithLogger(logger))
		confirmer = solana.NewPollingConfirmer(rpc, 0)

		if cfg.Solana.WalletAddress != "" {
			state, err := led.SyncBalance(ctx, domain.ModeReal, solana.NewWalletBalance(rpc, cfg.Solana.WalletAddress))
			if err != nil {
				return nil, nil, fmt.Errorf("sync wallet balance: %w", err)
			}
			logger.Info("real balance mirrored from wallet", "available", state.Available)
		}
	}
	if cfg.Solana.WSURL != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger
		ws, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, &wsCfg)
		if err != nil {
			// Polling still confirms; only the push path is lost.
			logger.Warn("solana websocket unavailable; confirming by polling", "error", err)
		} else {
			confirmer = ws
			closeFn = func() { _ = ws.Close() }
		}
	}
	if err := led.Init(ctx, domain.ModeReal, 0); err != nil {
		closeFn()
		return nil, nil, err
	}

	v := venue.New(venue.Options{
		BaseURL:        cfg.Venue.BaseURL,
		APIKey:         cfg.Venue.APIKey,
		Timeout:        cfg.Execution.VenueTimeout,
		Confirmer:      confirmer,
		ConfirmTimeout: cfg.Execution.ConfirmTimeout,
		Logger:         logger,
	})
	filler := executor.NewRealFiller(v, prices, cfg.Execution.VenueTimeout+cfg.Execution.ConfirmTimeout, nil)
	return executor.New(executor.Options{
		Filler: filler,
		Ledger: led,
		Prices: prices,
		Logger: logger,
	}), closeFn, nil
}

// statusTracker keeps the latest cycle for /status.
type statusTracker struct {
	started time.Time

	mu     sync.Mutex
	last   *engine.CycleReport
	cycles int
}

func (s *statusTracker) record(rep *engine.CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = rep
	s.cycles++
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	Started    time.Time `json:"started"`
	Cycles     int       `json:"cycles"`
	LastCycle  string    `json:"last_cycle_id,omitempty"`
	LastStatus string    `json:"last_cycle_status,omitempty"`
	LastAt     time.Time `json:"last_cycle_at,omitempty"`
	LastError  string    `json:"last_cycle_error,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	Buys       int       `json:"last_cycle_buys"`
	Failures   int       `json:"last_cycle_failures"`
}

func (s *statusTracker) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:  "running",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Started: s.started,
		Cycles:  s.cycles,
	}
	if rep := s.last; rep != nil {
		resp.LastCycle = rep.CycleID
		resp.LastStatus = rep.Status
		resp.LastAt = rep.StartedAt
		resp.Mode = rep.Mode.String()
		resp.Buys = len(rep.Buys)
		resp.Failures = len(rep.Errors)
		if rep.Err != nil {
			resp.LastError = rep.Err.Error()
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func startHTTPServer(addr string, status *statusTracker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", status.handleStatus)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}
