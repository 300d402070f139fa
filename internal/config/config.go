package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Shop     ShopConfig
	Log      LogConfig
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	HTTPAddr        string        `envconfig:"SERVER_HTTP_ADDR" default:":8080"`
	GRPCAddr        string        `envconfig:"SERVER_GRPC_ADDR" default:":50051"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	CORSOrigins     []string      `envconfig:"SERVER_CORS_ORIGINS" default:"*"`
}

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type DatabaseConfig struct {
	Driver string `envconfig:"DB_DRIVER" default:"sqlite"`
	Path   string `envconfig:"DB_PATH" default:"./data/slabby.db"`

	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"slabby"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

type RedisConfig struct {
	Enabled        bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Addr           string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password       string        `envconfig:"REDIS_PASSWORD" default:""`
	DB             int           `envconfig:"REDIS_DB" default:"0"`
	NotifyChannel  string        `envconfig:"REDIS_NOTIFY_CHANNEL" default:"slabby:notifications"`
	IdempotencyTTL time.Duration `envconfig:"REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// ShopConfig holds commerce settings and the defaults of new drafts. Prices
// are decimal strings; empty leaves the side disabled.
type ShopConfig struct {
	MaxStock       int    `envconfig:"SLABBY_MAX_STOCK" default:"3456"`
	RestockPunch   bool   `envconfig:"SLABBY_RESTOCK_PUNCH_ENABLED" default:"false"`
	RestockBulk    bool   `envconfig:"SLABBY_RESTOCK_PUNCH_BULK" default:"false"`
	RestockShulker bool   `envconfig:"SLABBY_RESTOCK_PUNCH_SHULKER" default:"false"`
	BuyPrice       string `envconfig:"SLABBY_DEFAULT_BUY_PRICE" default:""`
	SellPrice      string `envconfig:"SLABBY_DEFAULT_SELL_PRICE" default:""`
	Quantity       int    `envconfig:"SLABBY_DEFAULT_QUANTITY" default:"1"`
	Note           string `envconfig:"SLABBY_DEFAULT_NOTE" default:"Let's trade!"`
}

type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// DefaultBuyPrice parses the configured default, nil when unset.
func (s *ShopConfig) DefaultBuyPrice() (*decimal.Decimal, error) {
	return parsePrice("SLABBY_DEFAULT_BUY_PRICE", s.BuyPrice)
}

func (s *ShopConfig) DefaultSellPrice() (*decimal.Decimal, error) {
	return parsePrice("SLABBY_DEFAULT_SELL_PRICE", s.SellPrice)
}

func parsePrice(name, raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !v.IsPositive() {
		return nil, fmt.Errorf("%s must be positive, got %s", name, raw)
	}
	return &v, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverMySQL:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	if c.Shop.MaxStock <= 0 {
		return fmt.Errorf("SLABBY_MAX_STOCK must be positive, got %d", c.Shop.MaxStock)
	}
	if c.Shop.Quantity <= 0 {
		return fmt.Errorf("SLABBY_DEFAULT_QUANTITY must be positive, got %d", c.Shop.Quantity)
	}
	if _, err := c.Shop.DefaultBuyPrice(); err != nil {
		return err
	}
	if _, err := c.Shop.DefaultSellPrice(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Logger builds the process logger described by the log settings.
func (l *LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
