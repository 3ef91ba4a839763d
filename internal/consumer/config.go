package consumer

import (
	"fmt"
	"time"

	"github.com/bhaijames252-sketch/billbillbill/pkg/config"
)

// Config is the consumer daemon's environment surface
type Config struct {
	// Broker
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	Queue      string
	Exchange   string
	RoutingKey string

	PrefetchCount  int
	BatchSize      int
	BatchTimeout   time.Duration
	ReconnectDelay time.Duration
	UseBatching    bool

	// Downstream API
	APIBaseURL    string
	APITimeout    time.Duration
	APIRetryCount int
	APIRetryDelay time.Duration

	// Processing
	WorkerCount int
	SkipWallet  bool
	MetricsPort int
}

// LoadConfig reads the consumer configuration from the environment
func LoadConfig() Config {
	return Config{
		Host:     config.GetEnv("RABBITMQ_HOST", "localhost"),
		Port:     config.GetEnvInt("RABBITMQ_PORT", 5672),
		User:     config.GetEnv("RABBITMQ_USER", "guest"),
		Password: config.GetEnv("RABBITMQ_PASSWORD", "guest"),
		VHost:    config.GetEnv("RABBITMQ_VHOST", "/"),

		Queue:      config.GetEnv("MQ_QUEUE_NAME", "openstack_events"),
		Exchange:   config.GetEnv("MQ_EXCHANGE_NAME", "openstack"),
		RoutingKey: config.GetEnv("MQ_ROUTING_KEY", "resource.#"),

		PrefetchCount:  config.GetEnvInt("MQ_PREFETCH_COUNT", 100),
		BatchSize:      config.GetEnvInt("MQ_BATCH_SIZE", 50),
		BatchTimeout:   config.GetEnvDuration("MQ_BATCH_TIMEOUT", time.Second),
		ReconnectDelay: config.GetEnvDuration("MQ_RECONNECT_DELAY", 5*time.Second),
		UseBatching:    config.GetEnvBool("MQ_USE_BATCHING", true),

		APIBaseURL:    config.GetEnv("BILLING_API_URL", "http://localhost:8000"),
		APITimeout:    config.GetEnvDuration("API_TIMEOUT", 30*time.Second),
		APIRetryCount: config.GetEnvInt("API_RETRY_COUNT", 3),
		APIRetryDelay: config.GetEnvDuration("API_RETRY_DELAY", time.Second),

		WorkerCount: config.GetEnvInt("WORKER_COUNT", 10),
		SkipWallet:  config.GetEnvBool("SKIP_WALLET", true),
		MetricsPort: config.GetEnvInt("METRICS_PORT", 9090),
	}
}

// URL renders the broker connection string
func (c Config) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

// DLQ is the dead letter queue companion to the work queue
func (c Config) DLQ() string {
	return c.Queue + "_dlq"
}
