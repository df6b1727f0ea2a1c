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
	Port              string        `mapstructure:"PORT" validate:"required"`
	BrokerDriver      string        `mapstructure:"BROKER_DRIVER" validate:"oneof=rabbitmq kafka"`
	RabbitMQURL       string        `mapstructure:"RABBITMQ_URL" validate:"required_if=BrokerDriver rabbitmq"`
	KafkaBrokers      string        `mapstructure:"KAFKA_BROKERS" validate:"required_if=BrokerDriver kafka"`
	TransactionQueue  string        `mapstructure:"TRANSACTION_QUEUE" validate:"required"`
	PublishTimeout    time.Duration `mapstructure:"PUBLISH_TIMEOUT" validate:"required"`
	MaxApprovedAmount float64       `mapstructure:"MAX_APPROVED_AMOUNT" validate:"min=0"` // 0 approves everything
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8081")
	viper.SetDefault("BROKER_DRIVER", "rabbitmq")
	viper.SetDefault("TRANSACTION_QUEUE", "payment_transactions")
	viper.SetDefault("PUBLISH_TIMEOUT", "5s")
	viper.SetDefault("MAX_APPROVED_AMOUNT", "0")

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
	viper.AddConfigPath("./services/payment-api/configs")
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
