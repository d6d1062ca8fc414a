package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/readshelf/readshelf/internal/config"
	"github.com/readshelf/readshelf/internal/logger"
	"github.com/readshelf/readshelf/internal/router"
	"github.com/readshelf/readshelf/internal/setup"
	"github.com/readshelf/readshelf/internal/storage/pg"
)

func main() {
	var configFolder string
	flag.StringVar(&configFolder, "config_folder", "config", "path to folder with configs")
	flag.Parse()

	cfg := config.MustLoad(configFolder)
	logger.Initialize(cfg.Public.LogLevel, cfg.Public.LogJSON)

	if err := pg.RunMigrations(pg.MigrateURL(cfg)); err != nil {
		logger.Log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	deps, err := setup.SetupDependencies(cfg)
	if err != nil {
		logger.Log.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Storage.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps.Dispatcher.Start(ctx)
	deps.Sweeper.Start(ctx)

	srv := router.Server(cfg.Public.ListenAddr, router.New(deps))

	go func() {
		logger.Log.Info("server started", "addr", cfg.Public.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("graceful shutdown failed", "error", err)
	}

	deps.MailLimiter.Stop()
	deps.AuthLimiter.Stop()
}
