package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping ledgerctl")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	root := cli.NewRootCommand(cli.Deps{
		Logger:   logger,
		SeedFile: cfg.COASeedFile,
		Migrations: func(ctx context.Context) (db.MigrationStore, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, 2)
			if err != nil {
				return nil, nil, err
			}
			return db.NewPGMigrationStore(pool), pool.Close, nil
		},
		Seeder: func(ctx context.Context) (cli.Seeder, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, 2)
			if err != nil {
				return nil, nil, err
			}
			return coa.NewSeeder(coa.NewRepository(pool), logger), pool.Close, nil
		},
		Jobs: func() (*cli.JobsCLI, error) {
			return cli.NewJobsCLI(cfg.RedisAddr, cfg.BalanceMaxRetry), nil
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
