package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker/transport"
	basehandlers "github.com/nimeshabuddhika/resilient-order-saga/pkg/handlers"
	middleware "github.com/nimeshabuddhika/resilient-order-saga/pkg/middlewares"
	"github.com/nimeshabuddhika/resilient-order-saga/services/payment-api/configs"
	"github.com/nimeshabuddhika/resilient-order-saga/services/payment-api/internal/handlers"
	"github.com/nimeshabuddhika/resilient-order-saga/services/payment-api/internal/services"
	"go.uber.org/zap"
)

// NewRouter builds the Gin engine. The payment route is served under /api/v1 and at /payments.
func NewRouter(logger *zap.Logger, svc services.PaymentService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	paymentHandler := handlers.NewPaymentHandler(logger, svc)

	for _, prefix := range []string{"/api/v1", ""} {
		g := r.Group(prefix)
		g.Use(middleware.TraceID())
		g.Use(middleware.Metrics())
		paymentHandler.RegisterRoutes(g)
	}

	basehandlers.NewBaseHandler(logger, nil).RegisterRoutes(r)
	return r
}

// NewApp wires the transaction publisher and returns an *http.Server and a cleanup func.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	tr, closeTransport, err := transport.New(logger, broker.Config{
		Driver:         cfg.BrokerDriver,
		RabbitMQURL:    cfg.RabbitMQURL,
		KafkaBrokers:   cfg.KafkaBrokers,
		PublishTimeout: cfg.PublishTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	publisher, err := tr.Publisher(ctx, cfg.TransactionQueue)
	if err != nil {
		closeTransport()
		return nil, nil, err
	}
	cleanup := func() {
		publisher.Close()
		closeTransport()
	}

	svc := services.NewPaymentService(services.PaymentServiceConfig{
		Logger:         logger,
		Decider:        services.AmountCeilingDecider{MaxApproved: cfg.MaxApprovedAmount},
		Publisher:      publisher,
		Queue:          cfg.TransactionQueue,
		PublishTimeout: tr.Config().PublishTimeout,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: NewRouter(logger, svc), ReadHeaderTimeout: 5 * time.Second}
	return srv, cleanup, nil
}
