// Package bootstrap wires configuration into the storage, collaborators and
// service shared by the server and the admin CLI.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/adapter/cache"
	"github.com/rl1809/slabby/internal/adapter/itemcodec"
	"github.com/rl1809/slabby/internal/adapter/memory"
	"github.com/rl1809/slabby/internal/adapter/notify"
	"github.com/rl1809/slabby/internal/adapter/storage"
	"github.com/rl1809/slabby/internal/config"
	"github.com/rl1809/slabby/internal/core/service"
	"github.com/rl1809/slabby/internal/port"
)

// OpenRepository opens the configured backing store with a fresh location cache.
func OpenRepository(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*storage.Repository, error) {
	opts := []storage.Option{
		storage.WithCache(cache.NewLocationCache()),
		storage.WithLogger(logger),
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		return storage.OpenSQLite(ctx, cfg.Path, opts...)
	case config.DriverMySQL:
		repo, err := storage.OpenMySQL(ctx, storage.MySQLConfig(cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password), opts...)
		if err != nil {
			return nil, err
		}
		db := repo.DB()
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenRedis connects to Redis when it is enabled. It returns nil otherwise.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Standalone holds the in-memory collaborators used when no game host
// provides economy, permissions, inventories or markers.
type Standalone struct {
	Ledger      *memory.Ledger
	Holdings    *memory.Holdings
	Permissions *memory.Permissions
	Markers     *memory.Markers
}

func NewStandalone() *Standalone {
	return &Standalone{
		Ledger:      memory.NewLedger(),
		Holdings:    memory.NewHoldings(0),
		Permissions: memory.NewPermissions(service.PermissionInteract),
		Markers:     memory.NewMarkers(),
	}
}

// NewService builds the commerce service from cfg. rdb may be nil, in which
// case idempotency keys stay in process and notifications are only logged.
func NewService(cfg *config.Config, repo port.ShopRepository, collab *Standalone, rdb *redis.Client, logger *zap.Logger) (*service.CommerceService, error) {
	buy, err := cfg.Shop.DefaultBuyPrice()
	if err != nil {
		return nil, err
	}
	sell, err := cfg.Shop.DefaultSellPrice()
	if err != nil {
		return nil, err
	}

	var (
		requests port.IdempotencyStore = memory.NewIdempotency(cfg.Redis.IdempotencyTTL)
		notifier port.Notifier         = notify.NewLogNotifier(logger)
	)
	if rdb != nil {
		requests = storage.NewRedisAdapter(rdb, cfg.Redis.IdempotencyTTL)
		notifier = notify.Multi{notifier, notify.NewRedisNotifier(rdb, cfg.Redis.NotifyChannel)}
	}

	return service.NewCommerceService(service.Deps{
		Repository:  repo,
		Economy:     collab.Ledger,
		Permissions: collab.Permissions,
		Codec:       itemcodec.New(),
		Inventory:   collab.Holdings,
		Markers:     collab.Markers,
		Notifier:    notifier,
		Requests:    requests,
		Sessions: service.NewEditSessions(service.DraftDefaults{
			BuyPrice:  buy,
			SellPrice: sell,
			Quantity:  cfg.Shop.Quantity,
			Note:      cfg.Shop.Note,
		}),
		Logger: logger,
	}, service.Settings{
		MaxStock:       cfg.Shop.MaxStock,
		RestockPunch:   cfg.Shop.RestockPunch,
		RestockBulk:    cfg.Shop.RestockBulk,
		RestockShulker: cfg.Shop.RestockShulker,
	}), nil
}
