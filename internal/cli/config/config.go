// Package config loads portal.yml and PORTAL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/portal/internal/alerts"
	"github.com/conduit-lang/portal/internal/cache"
	"github.com/conduit-lang/portal/internal/jobs"
	"github.com/conduit-lang/portal/internal/store"
	"github.com/conduit-lang/portal/internal/tenant"
	"github.com/conduit-lang/portal/internal/web/middleware"
	"github.com/conduit-lang/portal/internal/web/profiling"
	"github.com/conduit-lang/portal/internal/web/ratelimit"
	"github.com/conduit-lang/portal/internal/web/server"
)

// EnvPrefix prefixes every environment override, e.g. PORTAL_SERVER_ADDRESS
const EnvPrefix = "PORTAL"

// Config represents the portal configuration
type Config struct {
	Log       LogConfig         `mapstructure:"log"`
	Server    server.Config     `mapstructure:"server"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Redis     cache.RedisConfig `mapstructure:"redis"`
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Tenants   []tenant.Tenant   `mapstructure:"tenants"`
	Jobs      JobsConfig        `mapstructure:"jobs"`
	Alerts    alerts.Config     `mapstructure:"alerts"`
	Profiling profiling.Config  `mapstructure:"profiling"`
}

// LogConfig selects the zap configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL         string           `mapstructure:"url"`
	Pool        store.PoolConfig `mapstructure:"pool"`
	AutoMigrate bool             `mapstructure:"auto_migrate"`
}

// RateLimitConfig selects the limiter backend and overrides policies
type RateLimitConfig struct {
	Backend ratelimit.Backend `mapstructure:"backend"`
	// FailClosed rejects requests when the backend errors
	FailClosed    bool               `mapstructure:"fail_closed"`
	InternalToken string             `mapstructure:"internal_token"`
	Policies      []ratelimit.Policy `mapstructure:"policies"`
	// TrustedProxies are the CIDRs whose forwarding headers identify the client
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// AuthConfig configures token signing
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// JobsConfig configures the worker pool and housekeeping
type JobsConfig struct {
	Pool jobs.PoolConfig `mapstructure:"pool"`
	// Retention is how long completed jobs are kept before purging
	Retention time.Duration `mapstructure:"retention"`
	// PurgeInterval is how often the purge job is scheduled
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
	// SchedulerTick is how often due schedules are checked
	SchedulerTick time.Duration `mapstructure:"scheduler_tick"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	srv := server.DefaultConfig()
	v.SetDefault("server.address", srv.Address)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)
	v.SetDefault("server.idle_timeout", srv.IdleTimeout)
	v.SetDefault("server.read_header_timeout", srv.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)
	v.SetDefault("server.max_header_bytes", srv.MaxHeaderBytes)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")

	pool := store.DefaultPoolConfig()
	v.SetDefault("database.url", "")
	v.SetDefault("database.pool.max_open_conns", pool.MaxOpenConns)
	v.SetDefault("database.pool.max_idle_conns", pool.MaxIdleConns)
	v.SetDefault("database.pool.conn_max_lifetime", pool.ConnMaxLifetime)
	v.SetDefault("database.pool.conn_max_idle_time", pool.ConnMaxIdleTime)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", 3*time.Second)

	v.SetDefault("rate_limit.backend", string(ratelimit.BackendRedis))
	v.SetDefault("rate_limit.fail_closed", false)
	v.SetDefault("rate_limit.internal_token", "")
	v.SetDefault("rate_limit.trusted_proxies", []string{})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	jp := jobs.DefaultPoolConfig()
	v.SetDefault("jobs.pool.queue", jp.Queue)
	v.SetDefault("jobs.pool.workers", jp.Workers)
	v.SetDefault("jobs.pool.poll_interval", jp.PollInterval)
	v.SetDefault("jobs.pool.job_timeout", jp.JobTimeout)
	v.SetDefault("jobs.retention", 7*24*time.Hour)
	v.SetDefault("jobs.purge_interval", 6*time.Hour)
	v.SetDefault("jobs.scheduler_tick", time.Minute)

	v.SetDefault("alerts.cache_ttl", 30*time.Second)

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.block_rate", 0)
	v.SetDefault("profiling.mutex_fraction", 0)
}

// Load reads the configuration. An empty path searches for portal.yml in
// the working directory and /etc/portal; a missing file means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("portal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/portal")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// DATABASE_URL is honoured for compatibility with hosting platforms
	if err := v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind database url: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.RateLimit.Policies = mergePolicies(ratelimit.DefaultPolicies(), config.RateLimit.Policies)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// mergePolicies overrides built-in policies by name and appends new ones.
// Zero limit or window fields keep the built-in value.
func mergePolicies(builtin, overrides []ratelimit.Policy) []ratelimit.Policy {
	out := append([]ratelimit.Policy(nil), builtin...)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.Name] = i
	}

	for _, p := range overrides {
		i, ok := index[p.Name]
		if !ok {
			index[p.Name] = len(out)
			out = append(out, p)
			continue
		}
		if p.Limit > 0 {
			out[i].Limit = p.Limit
		}
		if p.Window > 0 {
			out[i].Window = p.Window
		}
	}
	return out
}

// TenantNames maps tenant slugs to display names for seeding
func (c *Config) TenantNames() map[string]string {
	names := make(map[string]string, len(c.Tenants))
	for _, t := range c.Tenants {
		name := t.Name
		if name == "" {
			name = t.Slug
		}
		names[t.Slug] = name
	}
	return names
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.RateLimit.Backend {
	case ratelimit.BackendRedis, ratelimit.BackendMemory, ratelimit.BackendNoop:
	default:
		return fmt.Errorf("rate_limit.backend must be one of redis, memory, noop, got: %s", cfg.RateLimit.Backend)
	}

	for _, p := range cfg.RateLimit.Policies {
		if p.Name == "" {
			return errors.New("rate_limit.policies: name is required")
		}
		if p.Limit <= 0 || p.Window <= 0 {
			return fmt.Errorf("rate_limit.policies.%s: limit and window must be greater than 0", p.Name)
		}
	}
	if _, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("rate_limit.trusted_proxies: %w", err)
	}

	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be greater than 0, got: %s", cfg.Auth.TokenTTL)
	}
	if cfg.Jobs.Pool.Workers < 0 {
		return fmt.Errorf("jobs.pool.workers must not be negative, got: %d", cfg.Jobs.Pool.Workers)
	}
	if cfg.Jobs.Retention <= 0 {
		return fmt.Errorf("jobs.retention must be greater than 0, got: %s", cfg.Jobs.Retention)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", cfg.Log.Level)
	}

	if _, err := tenant.NewRegistry(cfg.Tenants); err != nil {
		return fmt.Errorf("tenants: %w", err)
	}
	return nil
}

// ValidateServe checks the settings only portal serve needs
func (c *Config) ValidateServe() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required (set PORTAL_DATABASE_URL or DATABASE_URL)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes (set PORTAL_AUTH_JWT_SECRET)")
	}
	if len(c.Tenants) == 0 {
		return errors.New("at least one tenant must be configured")
	}
	return nil
}
