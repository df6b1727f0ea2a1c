package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for transaction-worker.
type Config struct {
	MetricsAddr             string        `mapstructure:"METRICS_ADDR" validate:"required"`
	PrimaryDbAddr           string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr              string        `mapstructure:"READ_DB_ADDR"`
	MaxDbCons               int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons               int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	BrokerDriver            string        `mapstructure:"BROKER_DRIVER" validate:"oneof=rabbitmq kafka"`
	RabbitMQURL             string        `mapstructure:"RABBITMQ_URL" validate:"required_if=BrokerDriver rabbitmq"`
	KafkaBrokers            string        `mapstructure:"KAFKA_BROKERS" validate:"required_if=BrokerDriver kafka"`
	TransactionQueue        string        `mapstructure:"TRANSACTION_QUEUE" validate:"required"`
	TransactionDLQ          string        `mapstructure:"TRANSACTION_DLQ" validate:"required"`
	ConsumerGroup           string        `mapstructure:"CONSUMER_GROUP" validate:"required"`
	MaxConcurrentDeliveries int           `mapstructure:"MAX_CONCURRENT_DELIVERIES" validate:"min=1"`
	ConsumerTimeout         time.Duration `mapstructure:"CONSUMER_TIMEOUT" validate:"required"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("METRICS_ADDR", ":9090")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("BROKER_DRIVER", "rabbitmq")
	viper.SetDefault("TRANSACTION_QUEUE", "payment_transactions")
	viper.SetDefault("TRANSACTION_DLQ", "payment_transactions_dlq")
	viper.SetDefault("CONSUMER_GROUP", "transaction-consumers")
	viper.SetDefault("MAX_CONCURRENT_DELIVERIES", "8")
	viper.SetDefault("CONSUMER_TIMEOUT", "10s")

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
	viper.AddConfigPath("./services/transaction-worker/configs")
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
