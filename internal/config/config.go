package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Metrics   MetricsConfig
	Chain     ChainConfig
	Oracle    OracleConfig
	AMQP      AMQPConfig
	Requests  RequestsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
	TrustProxy     bool
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string // "none" or "api-key"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int

	// Per authenticated caller, and per oracle on callback routes
	CallerRequestsPerMin int
	CallerBurstSize      int
}

// SecurityConfig holds request filtering settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeKB int
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool
	ServiceName string
}

// ChainConfig holds the token network settings
type ChainConfig struct {
	ChainID         int64
	RPCURL          string
	PrivateKey      string
	ConsumerAddress string
	TokenBackend    string // "ledger" or "erc20"
}

// OracleConfig holds the deployment parameters seeded into the admin
// settings on first start, and the fulfillment callback settings.
type OracleConfig struct {
	NetworkFile      string
	Owner            string
	Address          string
	Link             string
	JobID            string
	Payment          string
	SignUpURL        string
	CallbackSecret   string
	CallbackInsecure bool // trust X-Oracle-Address when CallbackSecret is empty
	CallbackMaxSkew  time.Duration
	Dispatcher       string // "local" or "amqp"
}

// AMQPConfig holds RabbitMQ settings
type AMQPConfig struct {
	URL                string
	Exchange           string
	DispatchRoutingKey string
	EventRoutingPrefix string
	PublishEvents      bool
}

// RequestsConfig holds request lifecycle settings
type RequestsConfig struct {
	ExpirationWindow time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/revealer.db"),
			},
		},
		Auth: AuthConfig{
			Type: getEnv("AUTH_TYPE", "api-key"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),

			CallerRequestsPerMin: getEnvInt("RATE_LIMIT_CALLER_RPM", 120),
			CallerBurstSize:      getEnvInt("RATE_LIMIT_CALLER_BURST", 20),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeKB: getEnvInt("SECURITY_MAX_BODY_SIZE_KB", 64),
		},
		Metrics: MetricsConfig{
			Enabled:     getEnvBool("METRICS_ENABLED", true),
			ServiceName: getEnv("METRICS_SERVICE_NAME", "revealer"),
		},
		Chain: ChainConfig{
			ChainID:         int64(getEnvInt("CHAIN_ID", 5)),
			RPCURL:          getEnv("RPC_URL", ""),
			PrivateKey:      getEnv("CONSUMER_PRIVATE_KEY", ""),
			ConsumerAddress: getEnv("CONSUMER_ADDRESS", ""),
			TokenBackend:    getEnv("TOKEN_BACKEND", ""),
		},
		Oracle: OracleConfig{
			NetworkFile:      getEnv("NETWORK_FILE", ""),
			Owner:            getEnv("OWNER_ADDRESS", ""),
			Address:          getEnv("ORACLE_ADDRESS", ""),
			Link:             getEnv("LINK_ADDRESS", ""),
			JobID:            getEnv("ORACLE_JOB_ID", ""),
			Payment:          getEnv("ORACLE_PAYMENT", ""),
			SignUpURL:        getEnv("SIGN_UP_URL", ""),
			CallbackSecret:   getEnv("ORACLE_CALLBACK_SECRET", ""),
			CallbackInsecure: getEnvBool("ORACLE_CALLBACK_INSECURE", false),
			CallbackMaxSkew:  getEnvDuration("ORACLE_CALLBACK_MAX_SKEW", 5*time.Minute),
			Dispatcher:       getEnv("ORACLE_DISPATCHER", "local"),
		},
		AMQP: AMQPConfig{
			URL:                getEnv("AMQP_URL", ""),
			Exchange:           getEnv("AMQP_EXCHANGE", "revealer"),
			DispatchRoutingKey: getEnv("AMQP_DISPATCH_ROUTING_KEY", "oracle.requests"),
			EventRoutingPrefix: getEnv("AMQP_EVENT_ROUTING_PREFIX", "revealer.events"),
			PublishEvents:      getEnvBool("AMQP_PUBLISH_EVENTS", false),
		},
		Requests: RequestsConfig{
			ExpirationWindow: getEnvDuration("REQUEST_EXPIRATION_WINDOW", 5*time.Minute),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	// Without an RPC endpoint tokens live in the in-memory ledger
	if cfg.Chain.TokenBackend == "" {
		if cfg.Chain.RPCURL != "" {
			cfg.Chain.TokenBackend = "erc20"
		} else {
			cfg.Chain.TokenBackend = "ledger"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and cross-field requirements.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("STORAGE_TYPE must be sqlite or postgres, got %q", c.Storage.Type)
	}
	switch c.Auth.Type {
	case "none", "api-key":
	default:
		return fmt.Errorf("AUTH_TYPE must be none or api-key, got %q", c.Auth.Type)
	}
	switch c.Chain.TokenBackend {
	case "ledger":
	case "erc20":
		if c.Chain.RPCURL == "" || c.Chain.PrivateKey == "" {
			return fmt.Errorf("TOKEN_BACKEND=erc20 requires RPC_URL and CONSUMER_PRIVATE_KEY")
		}
	default:
		return fmt.Errorf("TOKEN_BACKEND must be ledger or erc20, got %q", c.Chain.TokenBackend)
	}
	switch c.Oracle.Dispatcher {
	case "local":
	case "amqp":
		if c.AMQP.URL == "" {
			return fmt.Errorf("ORACLE_DISPATCHER=amqp requires AMQP_URL")
		}
	default:
		return fmt.Errorf("ORACLE_DISPATCHER must be local or amqp, got %q", c.Oracle.Dispatcher)
	}
	if c.AMQP.PublishEvents && c.AMQP.URL == "" {
		return fmt.Errorf("AMQP_PUBLISH_EVENTS requires AMQP_URL")
	}
	if c.Oracle.CallbackInsecure && c.Oracle.CallbackSecret != "" {
		return fmt.Errorf("ORACLE_CALLBACK_INSECURE cannot be combined with ORACLE_CALLBACK_SECRET")
	}
	if c.Requests.ExpirationWindow <= 0 {
		return fmt.Errorf("REQUEST_EXPIRATION_WINDOW must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
