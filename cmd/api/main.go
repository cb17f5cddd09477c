package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/bootstrap"
	"carbon-scribe/credit-ledger/internal/config"
	"carbon-scribe/credit-ledger/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CARBON_CONFIG"), "path to a config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := bootstrap.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	app, err := bootstrap.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise services", zap.Error(err))
	}
	defer app.Close()

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.TokenTTL)
	router := server.NewRouter(server.Options{
		Mode:           cfg.Server.Mode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ping:           app.Storage.Ping,
	}, tokens, app.Services, logger)

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()
	logger.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.String("database", cfg.Database.Driver),
		zap.String("payments", cfg.Payments.Provider),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exiting")
}
