package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker/transport"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/database"
	basehandlers "github.com/nimeshabuddhika/resilient-order-saga/pkg/handlers"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/repositories"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/transactions"
	"github.com/nimeshabuddhika/resilient-order-saga/services/transaction-worker/configs"
	"go.uber.org/zap"
)

// NewMetricsRouter serves /health and /metrics for the worker.
func NewMetricsRouter(logger *zap.Logger, db basehandlers.Pinger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	basehandlers.NewBaseHandler(logger, db).RegisterRoutes(r)
	return r
}

// NewWorker starts consuming transaction events and returns the metrics server and a
// cleanup func that stops consumption before closing the broker and database.
func NewWorker(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	// Initialize PostgreSQL database connection
	db, disconnect, err := database.New(ctx, logger, database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	})
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){disconnect}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		cleanup()
		return nil, nil, err
	}

	tr, closeTransport, err := transport.New(logger, broker.Config{
		Driver:        cfg.BrokerDriver,
		RabbitMQURL:   cfg.RabbitMQURL,
		KafkaBrokers:  cfg.KafkaBrokers,
		ConsumerGroup: cfg.ConsumerGroup,
		MaxInFlight:   cfg.MaxConcurrentDeliveries,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeTransport)

	dlq, err := tr.Publisher(ctx, cfg.TransactionDLQ)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, dlq.Close)

	consumer, err := tr.Consumer(ctx, cfg.TransactionQueue)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	handler := transactions.NewHandler(transactions.HandlerConfig{
		Logger:     logger.With(zap.String("component", "transaction_worker")),
		Store:      transactions.NewStore(db, repositories.NewTransactionRepository()),
		DeadLetter: dlq,
		Queue:      cfg.TransactionQueue,
		Timeout:    cfg.ConsumerTimeout,
	})
	stop, err := consumer.Start(ctx, handler.Handle)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, stop)
	logger.Info("transaction_worker_consuming",
		zap.String("driver", cfg.BrokerDriver),
		zap.String("queue", cfg.TransactionQueue),
		zap.Int("max_in_flight", cfg.MaxConcurrentDeliveries))

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           NewMetricsRouter(logger, db),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv, cleanup, nil
}
