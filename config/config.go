// Package config loads server settings from defaults, an optional config.yaml
// and CHATCORE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cyberinferno/go-chatcore/credstore"
)

const envVarPrefix = "CHATCORE"

// MinLogSizeMB is the smallest accepted append log rotation threshold.
const MinLogSizeMB = 10

// Config holds every server setting.
type Config struct {
	Server struct {
		// Number of workers executing command tasks.
		Workers int `mapstructure:"workers"`
		// Ready descriptors reported per multiplexer wake.
		MaxEvents      int           `mapstructure:"max_events"`
		ReadBufferSize int           `mapstructure:"read_buffer_size"`
		MaxFrameSize   uint32        `mapstructure:"max_frame_size"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		AcceptTimeout  time.Duration `mapstructure:"accept_timeout"`
	} `mapstructure:"server"`

	Logging struct {
		// One of debug, info, warn, error.
		Level       string `mapstructure:"level"`
		ServiceName string `mapstructure:"service_name"`
		// Connection event log, rotated once it grows past MaxSizeMB.
		EventLogPath string `mapstructure:"event_log_path"`
		MaxSizeMB    int    `mapstructure:"max_size_mb"`
	} `mapstructure:"logging"`

	Store struct {
		// One of file, sqlite, postgres, redis.
		Backend     string `mapstructure:"backend"`
		FilePath    string `mapstructure:"file_path"`
		SQLitePath  string `mapstructure:"sqlite_path"`
		PostgresDSN string `mapstructure:"postgres_dsn"`
		Redis       struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
			Key      string `mapstructure:"key"`
		} `mapstructure:"redis"`
		// Lookup cache lifetime; 0 disables the cache.
		CacheTTL   time.Duration `mapstructure:"cache_ttl"`
		BcryptCost int           `mapstructure:"bcrypt_cost"`
	} `mapstructure:"store"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.workers", 5)
	v.SetDefault("server.max_events", 10)
	v.SetDefault("server.read_buffer_size", 4096)
	v.SetDefault("server.max_frame_size", 1<<20)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.accept_timeout", 100*time.Millisecond)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.service_name", "chatserver")
	v.SetDefault("logging.event_log_path", "log/chat.log")
	v.SetDefault("logging.max_size_mb", 100)

	v.SetDefault("store.backend", credstore.BackendFile)
	v.SetDefault("store.file_path", "userInfo/info.txt")
	v.SetDefault("store.sqlite_path", "userInfo/users.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key", credstore.DefaultRedisKey)
	v.SetDefault("store.cache_ttl", time.Duration(0))
	v.SetDefault("store.bcrypt_cost", 10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9105")
}

// Load reads config.yaml from dir when present and applies environment
// overrides. A nested key such as store.redis.addr is set through
// CHATCORE_STORE_REDIS_ADDR. An empty dir skips the file.
//
// Returns:
//   - The validated configuration
//   - An error if the file is unreadable or a value is out of range
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if dir != "" {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read %s: %w", dir, err)
			}
		}
	}

	for _, k := range v.AllKeys() {
		envVar := envVarPrefix + "_" + strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVar); err != nil {
			return nil, fmt.Errorf("config: bind %s to %s: %w", k, envVar, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers))
	}
	if c.Server.MaxEvents < 1 {
		errs = append(errs, fmt.Errorf("server.max_events must be at least 1, got %d", c.Server.MaxEvents))
	}
	if c.Logging.MaxSizeMB < MinLogSizeMB {
		errs = append(errs, fmt.Errorf("logging.max_size_mb must be at least %d, got %d", MinLogSizeMB, c.Logging.MaxSizeMB))
	}
	switch c.Store.Backend {
	case credstore.BackendFile, credstore.BackendSQLite, credstore.BackendPostgres, credstore.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("store.backend unknown: %q", c.Store.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}

	return nil
}

// EventLogMaxBytes returns the rotation threshold in bytes.
func (c *Config) EventLogMaxBytes() int64 {
	return int64(c.Logging.MaxSizeMB) << 20
}

// StoreOptions converts the store section for credstore.Open.
func (c *Config) StoreOptions() credstore.Options {
	return credstore.Options{
		Backend:       c.Store.Backend,
		FilePath:      c.Store.FilePath,
		SQLitePath:    c.Store.SQLitePath,
		PostgresDSN:   c.Store.PostgresDSN,
		RedisAddr:     c.Store.Redis.Addr,
		RedisPassword: c.Store.Redis.Password,
		RedisDB:       c.Store.Redis.DB,
		RedisKey:      c.Store.Redis.Key,
		CacheTTL:      c.Store.CacheTTL,
	}
}
