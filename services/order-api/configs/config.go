package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Port                    string        `mapstructure:"PORT" validate:"required"`
	PrimaryDbAddr           string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr              string        `mapstructure:"READ_DB_ADDR"`
	MaxDbCons               int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons               int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	CustomerServiceURL      string        `mapstructure:"CUSTOMER_SERVICE_URL" validate:"required,url"`
	ProductServiceURL       string        `mapstructure:"PRODUCT_SERVICE_URL" validate:"required,url"`
	PaymentServiceURL       string        `mapstructure:"PAYMENT_SERVICE_URL" validate:"required,url"`
	DownstreamTimeout       time.Duration `mapstructure:"DOWNSTREAM_TIMEOUT" validate:"required"`
	BrokerDriver            string        `mapstructure:"BROKER_DRIVER" validate:"oneof=rabbitmq kafka"`
	RabbitMQURL             string        `mapstructure:"RABBITMQ_URL" validate:"required_if=BrokerDriver rabbitmq"`
	KafkaBrokers            string        `mapstructure:"KAFKA_BROKERS" validate:"required_if=BrokerDriver kafka"`
	TransactionQueue        string        `mapstructure:"TRANSACTION_QUEUE" validate:"required"`
	TransactionDLQ          string        `mapstructure:"TRANSACTION_DLQ" validate:"required"`
	ConsumerGroup           string        `mapstructure:"CONSUMER_GROUP" validate:"required"`
	MaxConcurrentDeliveries int           `mapstructure:"MAX_CONCURRENT_DELIVERIES" validate:"min=1"`
	ConsumerTimeout         time.Duration `mapstructure:"CONSUMER_TIMEOUT" validate:"required"` // bounds one store write and, separately, its dead-letter publish
	EmbeddedConsumer        bool          `mapstructure:"EMBEDDED_CONSUMER"`
	RedisAddr               string        `mapstructure:"REDIS_ADDR"` // optional; enables the validation cache and the global rate limit
	ValidationCacheTTL      time.Duration `mapstructure:"VALIDATION_CACHE_TTL" validate:"required"`
	OrderRateLimit          int           `mapstructure:"ORDER_RATE_LIMIT" validate:"min=0"` // 0 disables limiting
	OrderRateBurst          int           `mapstructure:"ORDER_RATE_BURST" validate:"min=0"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("DOWNSTREAM_TIMEOUT", "5s")
	viper.SetDefault("BROKER_DRIVER", "rabbitmq")
	viper.SetDefault("TRANSACTION_QUEUE", "payment_transactions")
	viper.SetDefault("TRANSACTION_DLQ", "payment_transactions_dlq")
	viper.SetDefault("CONSUMER_GROUP", "transaction-consumers")
	viper.SetDefault("MAX_CONCURRENT_DELIVERIES", "8")
	viper.SetDefault("CONSUMER_TIMEOUT", "10s")
	viper.SetDefault("EMBEDDED_CONSUMER", "true")
	viper.SetDefault("VALIDATION_CACHE_TTL", "1m")
	viper.SetDefault("ORDER_RATE_LIMIT", "0")
	viper.SetDefault("ORDER_RATE_BURST", "0")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/order-api/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}
	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
