package store

import (
	"context"

	"github.com/parolam/breach-checker/config"
	"github.com/parolam/breach-checker/models"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/redis/go-redis/v9"
)

const (
	TableBreaches  = "breach_metadata"
	TablePasswords = "password_leaks"
	TableEmails    = "email_leaks"
)

// Store is the narrow interface the ingestion and query code consume.
//
// Inserts are append-only. Rows sharing a logical key are collapsed by the
// backend at some unspecified later time (summed for password_leaks, highest
// version kept for email_leaks), so every read must tolerate duplicates.
type Store interface {
	CreateIfMissing(ctx context.Context) error
	Ping(ctx context.Context) error

	FindBreachID(ctx context.Context, name string) (uint32, bool, error)
	MaxBreachID(ctx context.Context) (uint32, error)
	InsertBreach(ctx context.Context, b models.Breach) error
	Breaches(ctx context.Context, ids []uint32) ([]models.Breach, error)

	InsertEmailLeaks(ctx context.Context, rows []models.EmailLeak) error
	InsertPasswordLeaks(ctx context.Context, rows []models.PasswordLeak) error

	EmailBreachIDs(ctx context.Context, prefix, suffix string) ([]uint32, error)
	PasswordRange(ctx context.Context, prefix string) ([]models.SuffixCount, error)
	Stats(ctx context.Context) (models.Stats, error)

	Close() error
}

// Open returns the configured store without checking that it is reachable.
// The returned store owns a connection pool sized from cfg.Pool and is safe
// for concurrent use.
func Open(cfg *config.Config) (Store, error) {
	if cfg.StoreDriver == config.DriverPostgres {
		pg, err := OpenPostgres(cfg.PostgresURL, cfg.Pool)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}

	ch, err := OpenClickHouse(cfg.ClickHouse, cfg.Pool)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Connect opens the configured store and verifies it answers a ping.
func Connect(ctx context.Context, cfg *config.Config) (Store, error) {
	s, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "store unreachable")
	}

	pterm.Success.Println("database connected successfully ...")
	return s, nil
}

// ConnectRedis returns nil when no REDIS_URL is configured; callers treat a
// nil client as "no cache, process-local locking".
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		pterm.Warning.Println("REDIS_URL not set, running without cache ...")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "redis unreachable")
	}

	pterm.Success.Println("redis connected successfully ...")
	return rdb, nil
}
