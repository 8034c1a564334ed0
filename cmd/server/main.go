// Command server runs the availability core: the content gateway, the
// interaction ledger with its batcher, and the HTTP API in front of them.
//
// Configuration comes from the environment (a .env file is loaded first when
// present); see internal/config for the variables.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-availability-core/internal/app"
	"github.com/tbourn/go-availability-core/internal/config"
	httpapi "github.com/tbourn/go-availability-core/internal/http"
	"github.com/tbourn/go-availability-core/internal/observability"
	"github.com/tbourn/go-availability-core/internal/repo"
	"github.com/tbourn/go-availability-core/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Env:     cfg.Env,
		Version: sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev"),
	}, os.Stderr)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(version, "dev"), cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	core, err := app.New(cfg, app.Deps{DB: db, Client: client})
	if err != nil {
		return err
	}
	if err := core.Start(ctx); err != nil {
		return err
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, core, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("api_base", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// Stop accepting requests first so the final flush sees every record.
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Batch.ShutdownFlushTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := core.Close(sctx); err != nil {
		log.Error().Err(err).Msg("core shutdown")
	}
	log.Info().Msg("bye")
	return nil
}
