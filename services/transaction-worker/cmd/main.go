package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/services/transaction-worker/app"
	"go.uber.org/zap"
)

// main runs the standalone transaction consumer.
func main() {
	// Initialize global logger with default configuration
	pkg.InitLogger("transaction-worker")
	logger := pkg.Logger
	defer func() { _ = logger.Sync() }()

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsSrv, cleanup, err := app.NewWorker(ctx, logger)
	if err != nil {
		logger.Fatal("failed_to_initialize_worker", zap.Error(err))
	}

	go func() {
		logger.Info("metrics_server_started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	osSignal := <-sigChan
	logger.Info("shutting_down", zap.String("signal", osSignal.String()))

	cancel()
	// waits for in-flight deliveries to settle
	cleanup()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics_shutdown_error", zap.Error(err))
	}
	logger.Info("transaction_worker_stopped")
}
