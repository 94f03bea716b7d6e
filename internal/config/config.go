package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all settings for the paper trading engine
type Config struct {
	// Service identity
	ServiceName string
	LogLevel    string

	// Servers
	GRPCPort int
	HTTPPort int

	// Persistence and messaging
	DataDir      string
	KafkaBrokers string
	KafkaEnabled bool

	// Feed (optional; when empty, prices come only from pushed ticks)
	FeedURL string

	// Trading loop
	Symbol        string
	TickInterval  time.Duration
	OrderQuantity float64
	MinBars       int
	FastPeriod    int
	SlowPeriod    int

	// Simulated broker
	StartingBalance float64
	CommissionRate  float64
	SlippageRate    float64

	// Connection behavior
	MaxRetries         int
	RetryDelay         time.Duration
	RateLimitPerMinute int

	// Guard thresholds
	MaxDailyLossDollars         float64
	MaxDailyLossPercent         float64
	MaxPositionPerSymbolDollars float64
	MaxPositionPerSymbolPercent float64
	MaxConsecutiveLosses        int
	MaxSlippageBps              float64
	SlippageViolationThreshold  int
	MaxOrdersPerMinute          int
	MaxOrdersPerHour            int
	MaxLatencyMs                float64
	HaltDuration                time.Duration
	AutoResume                  bool
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		LogLevel:    getEnvAsString("LOG_LEVEL", "info"),

		GRPCPort: getEnvAsInt("PORT_GRPC", 50051),
		HTTPPort: getEnvAsInt("PORT_HTTP", 8080),

		DataDir:      getEnvAsString("DATA_DIR", "./data"),
		KafkaBrokers: getEnvAsString("KAFKA_BROKERS", "127.0.0.1:9092"),
		KafkaEnabled: getEnvAsBool("KAFKA_ENABLED", false),

		FeedURL: getEnvAsString("FEED_URL", ""),

		Symbol:        getEnvAsString("SYMBOL", "AAPL"),
		TickInterval:  getEnvAsDuration("TICK_INTERVAL", time.Second),
		OrderQuantity: getEnvAsFloat("ORDER_QUANTITY", 1),
		MinBars:       getEnvAsInt("MIN_BARS", 30),
		FastPeriod:    getEnvAsInt("SMA_FAST_PERIOD", 10),
		SlowPeriod:    getEnvAsInt("SMA_SLOW_PERIOD", 30),

		StartingBalance: getEnvAsFloat("STARTING_BALANCE", 100000),
		CommissionRate:  getEnvAsFloat("COMMISSION_RATE", 0.001),
		SlippageRate:    getEnvAsFloat("SLIPPAGE_RATE", 0.0005),

		MaxRetries:         getEnvAsInt("CONN_MAX_RETRIES", 3),
		RetryDelay:         getEnvAsDuration("CONN_RETRY_DELAY", time.Second),
		RateLimitPerMinute: getEnvAsInt("CONN_RATE_LIMIT_PER_MINUTE", 0),

		MaxDailyLossDollars:         getEnvAsFloat("GUARD_MAX_DAILY_LOSS_DOLLARS", 1000),
		MaxDailyLossPercent:         getEnvAsFloat("GUARD_MAX_DAILY_LOSS_PERCENT", 0.02),
		MaxPositionPerSymbolDollars: getEnvAsFloat("GUARD_MAX_POSITION_DOLLARS", 5000),
		MaxPositionPerSymbolPercent: getEnvAsFloat("GUARD_MAX_POSITION_PERCENT", 0.10),
		MaxConsecutiveLosses:        getEnvAsInt("GUARD_MAX_CONSECUTIVE_LOSSES", 3),
		MaxSlippageBps:              getEnvAsFloat("GUARD_MAX_SLIPPAGE_BPS", 15),
		SlippageViolationThreshold:  getEnvAsInt("GUARD_SLIPPAGE_VIOLATION_THRESHOLD", 3),
		MaxOrdersPerMinute:          getEnvAsInt("GUARD_MAX_ORDERS_PER_MINUTE", 10),
		MaxOrdersPerHour:            getEnvAsInt("GUARD_MAX_ORDERS_PER_HOUR", 100),
		MaxLatencyMs:                getEnvAsFloat("GUARD_MAX_LATENCY_MS", 1000),
		HaltDuration:                getEnvAsDuration("GUARD_HALT_DURATION", 30*time.Minute),
		AutoResume:                  getEnvAsBool("GUARD_AUTO_RESUME", false),
	}
}

// Validate catches settings that would break the engine at runtime
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("SYMBOL must not be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %v", c.TickInterval)
	}
	if c.OrderQuantity <= 0 {
		return fmt.Errorf("ORDER_QUANTITY must be positive, got %v", c.OrderQuantity)
	}
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 {
		return fmt.Errorf("SMA periods must be positive, got fast=%d slow=%d", c.FastPeriod, c.SlowPeriod)
	}
	if c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("SMA_FAST_PERIOD (%d) must be shorter than SMA_SLOW_PERIOD (%d)", c.FastPeriod, c.SlowPeriod)
	}
	if c.StartingBalance <= 0 {
		return fmt.Errorf("STARTING_BALANCE must be positive, got %v", c.StartingBalance)
	}
	return nil
}

// Brokers splits the comma-separated broker list
func (c *Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
