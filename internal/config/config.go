// Package config loads service configuration from defaults, an optional file,
// a local .env file and ITDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "ITDESK"

type Config struct {
	HTTP      HTTPConfig
	GRPCAddr  string
	Database  DatabaseConfig
	Auth      AuthConfig
	Paging    PagingConfig
	Log       LogConfig
	Warehouse WarehouseConfig
	Tracing   TracingConfig
}

type HTTPConfig struct {
	Addr        string
	RateBurst   int
	RatePerSec  int
	CORSOrigins []string

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is believed.
	TrustedProxies []string
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type AuthConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
	DefaultRole   string
}

type PagingConfig struct {
	DefaultLimit int
	MaxLimit     int
}

type LogConfig struct {
	Level  string
	Format string
}

type WarehouseConfig struct {
	// AlertSweep is a cron spec; empty disables the sweep.
	AlertSweep string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

// New returns a viper instance with defaults and env binding applied.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("http.rate_per_sec", 20)
	v.SetDefault("http.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("auth.issuer", "itdesk")
	v.SetDefault("auth.access_secret", "")
	v.SetDefault("auth.refresh_secret", "")
	v.SetDefault("auth.access_ttl", time.Hour)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.default_role", "User")
	v.SetDefault("paging.default_limit", 10)
	v.SetDefault("paging.max_limit", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("warehouse.alert_sweep", "@every 15m")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
}

// Load reads .env (if present) and the optional config file, then decodes
// and validates the resulting configuration.
func Load(v *viper.Viper, file string) (Config, error) {
	_ = godotenv.Load()
	if v == nil {
		v = New()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:        v.GetString("http.addr"),
			RateBurst:   v.GetInt("http.rate_burst"),
			RatePerSec:  v.GetInt("http.rate_per_sec"),
			CORSOrigins: v.GetStringSlice("http.cors_origins"),

			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		GRPCAddr: v.GetString("grpc.addr"),
		Database: DatabaseConfig{
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
		},
		Auth: AuthConfig{
			Issuer:        v.GetString("auth.issuer"),
			AccessSecret:  v.GetString("auth.access_secret"),
			RefreshSecret: v.GetString("auth.refresh_secret"),
			AccessTTL:     v.GetDuration("auth.access_ttl"),
			RefreshTTL:    v.GetDuration("auth.refresh_ttl"),
			BcryptCost:    v.GetInt("auth.bcrypt_cost"),
			DefaultRole:   v.GetString("auth.default_role"),
		},
		Paging: PagingConfig{
			DefaultLimit: v.GetInt("paging.default_limit"),
			MaxLimit:     v.GetInt("paging.max_limit"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Warehouse: WarehouseConfig{
			AlertSweep: v.GetString("warehouse.alert_sweep"),
		},
		Tracing: TracingConfig{
			Enabled:  v.GetBool("tracing.enabled"),
			Endpoint: v.GetString("tracing.endpoint"),
			Insecure: v.GetBool("tracing.insecure"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings the API cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.AccessSecret) == "" {
		errs = append(errs, errors.New("auth.access_secret is required"))
	}
	if strings.TrimSpace(c.Auth.RefreshSecret) == "" {
		errs = append(errs, errors.New("auth.refresh_secret is required"))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth.refresh_secret must differ from auth.access_secret"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("auth token ttls must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range [4,31]", c.Auth.BcryptCost))
	}
	if c.Paging.DefaultLimit < 1 || c.Paging.MaxLimit < c.Paging.DefaultLimit {
		errs = append(errs, errors.New("paging limits are inconsistent"))
	}
	return errors.Join(errs...)
}
