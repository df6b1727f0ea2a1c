package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker/transport"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/cache"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/database"
	basehandlers "github.com/nimeshabuddhika/resilient-order-saga/pkg/handlers"
	middleware "github.com/nimeshabuddhika/resilient-order-saga/pkg/middlewares"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/repositories"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/transactions"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/utils"
	"github.com/nimeshabuddhika/resilient-order-saga/services/order-api/configs"
	"github.com/nimeshabuddhika/resilient-order-saga/services/order-api/internal/handlers"
	"github.com/nimeshabuddhika/resilient-order-saga/services/order-api/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RouterConfig holds what the HTTP layer needs.
type RouterConfig struct {
	Logger       *zap.Logger
	OrderService services.OrderService
	Limiter      *pkg.DistributedLimiter // optional
	Health       basehandlers.Pinger     // optional
}

// NewRouter builds the Gin engine. Order routes are served under /api/v1 and at the
// unversioned paths.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	var guards []gin.HandlerFunc
	if cfg.Limiter != nil {
		guards = append(guards, middleware.RateLimit(cfg.Limiter))
	}
	orderHandler := handlers.NewOrderHandler(cfg.Logger, cfg.OrderService)

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics())
	orderHandler.RegisterRoutes(api, guards...)

	legacy := r.Group("")
	legacy.Use(middleware.TraceID())
	legacy.Use(middleware.Metrics())
	orderHandler.RegisterRoutes(legacy, guards...)

	basehandlers.NewBaseHandler(cfg.Logger, cfg.Health).RegisterRoutes(r)
	return r
}

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// It reads configuration from environment variables via configs.Load.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	// Load config
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	// Initialize postgres db
	dbConfig := database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	}
	db, disconnect, err := database.New(ctx, logger, dbConfig)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){disconnect}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Run migrations on primary
	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Redis is optional; without it validation is uncached and rate limiting is local only.
	var redisClient redis.Cmdable
	if !utils.IsEmpty(cfg.RedisAddr) {
		client, redisCloser, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, redisCloser)
		redisClient = client
		logger.Info("redis_client_initialized")
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

	if cfg.EmbeddedConsumer {
		stop, err := startEmbeddedConsumer(ctx, logger, cfg, tr, db)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, stop)
	}

	// Downstream client: the per-call context deadline fires first so timeouts classify as deadline_exceeded.
	httpClient := utils.NewHTTPClient(utils.WithClientTimeout(cfg.DownstreamTimeout + time.Second))

	orderService := services.NewOrderService(services.OrderServiceConfig{
		Logger:       logger,
		Orders:       services.NewOrderStore(db, repositories.NewOrderRepository()),
		Transactions: services.NewTransactionReader(db, repositories.NewTransactionRepository()),
		Customers: services.NewEntityValidator(services.EntityValidatorConfig{
			Logger:      logger,
			HTTPClient:  httpClient,
			BaseURL:     cfg.CustomerServiceURL,
			Resource:    "customers",
			CallTimeout: cfg.DownstreamTimeout,
			Cache:       redisClient,
			CacheTTL:    cfg.ValidationCacheTTL,
		}),
		Products: services.NewEntityValidator(services.EntityValidatorConfig{
			Logger:      logger,
			HTTPClient:  httpClient,
			BaseURL:     cfg.ProductServiceURL,
			Resource:    "products",
			CallTimeout: cfg.DownstreamTimeout,
			Cache:       redisClient,
			CacheTTL:    cfg.ValidationCacheTTL,
		}),
		Payments: services.NewPaymentClient(services.PaymentClientConfig{
			Logger:     logger,
			HTTPClient: httpClient,
			BaseURL:    cfg.PaymentServiceURL,
		}),
		FollowUp:    services.NewLoggingFollowUp(logger),
		CallTimeout: cfg.DownstreamTimeout,
	})

	var limiter *pkg.DistributedLimiter
	if cfg.OrderRateLimit > 0 {
		limiter = pkg.NewDistributedLimiter(redisClient, "order_api:place_order_rate",
			cfg.OrderRateLimit, cfg.OrderRateBurst, time.Second, logger)
	}

	r := NewRouter(RouterConfig{
		Logger:       logger,
		OrderService: orderService,
		Limiter:      limiter,
		Health:       db,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return srv, cleanup, nil
}

// startEmbeddedConsumer runs the Transaction Consumer inside the ordering process.
func startEmbeddedConsumer(ctx context.Context, logger *zap.Logger, cfg *configs.Config, tr *transport.Transport, db *database.DB) (func(), error) {
	dlq, err := tr.Publisher(ctx, cfg.TransactionDLQ)
	if err != nil {
		return nil, err
	}
	consumer, err := tr.Consumer(ctx, cfg.TransactionQueue)
	if err != nil {
		dlq.Close()
		return nil, err
	}
	handler := transactions.NewHandler(transactions.HandlerConfig{
		Logger:     logger.With(zap.String("component", "embedded_transaction_consumer")),
		Store:      transactions.NewStore(db, repositories.NewTransactionRepository()),
		DeadLetter: dlq,
		Queue:      cfg.TransactionQueue,
		Timeout:    cfg.ConsumerTimeout,
	})
	stop, err := consumer.Start(ctx, handler.Handle)
	if err != nil {
		dlq.Close()
		return nil, err
	}
	return func() {
		stop()
		dlq.Close()
	}, nil
}
