package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend     string
	FilePath    string
	SQLitePath  string
	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	// CacheTTL wraps the backend in a CachedStore when positive.
	CacheTTL time.Duration
}

// Open builds the store described by opts.
//
// Returns:
//   - The store, wrapped in a CachedStore when opts.CacheTTL > 0
//   - An error for an unknown backend or when the backend is unreachable
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		store Store
		err   error
	)

	switch opts.Backend {
	case BackendFile, "":
		store, err = NewFileStore(opts.FilePath)
	case BackendSQLite:
		store, err = OpenSQLite(opts.SQLitePath)
	case BackendPostgres:
		store, err = OpenPostgres(opts.PostgresDSN)
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err = client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			err = fmt.Errorf("credstore: redis ping %s: %w", opts.RedisAddr, err)
			break
		}
		store = NewRedisStore(client, opts.RedisKey)
	default:
		err = fmt.Errorf("credstore: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.CacheTTL > 0 {
		store = NewCachedStore(store, opts.CacheTTL)
	}

	return store, nil
}
