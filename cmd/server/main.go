package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openbeans/plugin-counter/internal/buildinfo"
	"github.com/openbeans/plugin-counter/internal/config"
	"github.com/openbeans/plugin-counter/internal/scraper"
	"github.com/openbeans/plugin-counter/internal/server"
	"github.com/openbeans/plugin-counter/storage/postgres"
	"github.com/openbeans/plugin-counter/storage/sqlite"
)

func main() {
	buildinfo.PrintBuildInfo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := config.NewServerConfig()

	var (
		storage server.Storage
		err     error
	)
	if config.DatabaseDsn != "" {
		storage, err = postgres.NewPostgresStorage(ctx, config.DatabaseDsn)
	} else {
		storage, err = sqlite.NewSqliteStorage(ctx, config.DatabasePath)
	}
	if err != nil {
		config.Logger.Fatal(err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			config.Logger.Errorf("failed to close storage: %v", err)
		}
	}()

	config.Logger.Infof("Server config: Addr=%s, DatabasePath=%q, DatabaseDSN set=%t, ThrottleHours=%d, SparklineDays=%d, TrustedSubnet=%q",
		config.Addr,
		config.DatabasePath,
		config.DatabaseDsn != "",
		config.ThrottleHours,
		config.DefaultSparklineDays,
		config.TrustedSubnet,
	)

	fetcher := scraper.New(config.PortalBaseURL, time.Duration(config.FetchTimeout)*time.Second)

	srv := server.NewServer(storage, fetcher, config)
	if err := srv.Run(ctx); err != nil {
		config.Logger.Fatal(err)
	}
}
