// Package main generates a trading report from a persisted ledger and
// optionally archives the trade log to S3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	s3archive "solana-trade-agent/internal/archive/s3"
	"solana-trade-agent/internal/config"
	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/ledger"
	"solana-trade-agent/internal/reporting"
	"solana-trade-agent/internal/storage"
	"solana-trade-agent/internal/storage/migrations"
	pgstore "solana-trade-agent/internal/storage/postgres"
	sqlitestore "solana-trade-agent/internal/storage/sqlite"
	"solana-trade-agent/internal/verification"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TRADER_CONFIG"), "Config file (YAML, TOML or JSON)")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	archive := flag.Bool("archive", false, "Upload the trade log of each mode to the configured S3 bucket")
	strict := flag.Bool("strict", false, "Exit non-zero when ledger verification finds divergences")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	store, closeStore, err := openLedgerStore(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	led := ledger.New(ledger.Options{Store: store})
	gen := reporting.NewGenerator(led, verification.NewLedgerVerifier(led))

	rep, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	trades, err := led.Trades(ctx, storage.TradeFilter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading trades: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output dir: %v\n", err)
		os.Exit(1)
	}
	reportPath := filepath.Join(*outputDir, "TRADING_REPORT.md")
	csvPath := filepath.Join(*outputDir, "TRADES.csv")
	if err := os.WriteFile(reportPath, []byte(reporting.RenderMarkdown(rep)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(trades)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing trades: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s\n", reportPath)
	fmt.Printf("  - %s\n", csvPath)

	if *archive {
		if err := archiveTrades(ctx, cfg.Archive, trades); err != nil {
			fmt.Fprintf(os.Stderr, "Error archiving trades: %v\n", err)
			os.Exit(1)
		}
	}

	if len(rep.IntegrityErrors) > 0 {
		fmt.Fprintf(os.Stderr, "Ledger verification found %d problem(s)\n", len(rep.IntegrityErrors))
		if *strict {
			os.Exit(2)
		}
	}
}

// openLedgerStore opens a persistent ledger. The memory driver has nothing to report on.
func openLedgerStore(ctx context.Context, cfg config.Storage) (storage.LedgerStore, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
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
		return pgstore.NewLedgerStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("storage.driver %q is not persistent; use sqlite or postgres", cfg.Driver)
	}
}

func archiveTrades(ctx context.Context, cfg config.Archive, trades []*domain.Trade) error {
	if cfg.Bucket == "" {
		return fmt.Errorf("archive.bucket is not set")
	}
	client, err := s3archive.NewClient(ctx, s3archive.ClientConfig{
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		Bucket:    cfg.Bucket,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
	if err != nil {
		return err
	}
	archiver := s3archive.NewArchiver(client, cfg.Bucket, cfg.Prefix)

	byMode := make(map[domain.Mode][]*domain.Trade)
	for _, t := range trades {
		byMode[t.Mode] = append(byMode[t.Mode], t)
	}
	for _, mode := range []domain.Mode{domain.ModeSimulated, domain.ModeReal} {
		key, err := archiver.ArchiveTrades(ctx, mode, byMode[mode])
		if err != nil {
			return fmt.Errorf("archive %s: %w", mode, err)
		}
		if key != "" {
			fmt.Printf("  - s3://%s/%s\n", cfg.Bucket, key)
		}
	}
	return nil
}
