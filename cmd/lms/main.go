package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kitkatcodeskitty/LMS-sub001/internal/config"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/logger"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/server"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.NewConfig()

	logger.Initialize(cfg.LogLevel, cfg.LogFormat)

	// Amounts serialize as JSON numbers, matching the UI contract.
	decimal.MarshalJSONWithoutQuotes = true

	if err := cfg.LoadPolicy(); err != nil {
		logger.Error("failed to load payout policy", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(cfg)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
