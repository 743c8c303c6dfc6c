// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the subsync configuration file into explicit structs.
// Clients receive their config section through their constructor; there is no
// process-wide mutable configuration state.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend selects the directory client implementation.
type Backend string

const (
	// BackendAPI talks to the panel's management HTTP API.
	BackendAPI Backend = "api"
	// BackendSQLite writes directly to the panel's embedded database.
	BackendSQLite Backend = "sqlite"
)

// Config is the root configuration for all subsync commands.
type Config struct {
	Billing      BillingConfig      `mapstructure:"billing"`
	Panel        PanelConfig        `mapstructure:"panel"`
	Links        LinksConfig        `mapstructure:"links"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Debug        DebugConfig        `mapstructure:"debug"`
}

// BillingConfig configures the MySQL billing store connection.
type BillingConfig struct {
	// DSN in go-sql-driver format, e.g. "user:pass@tcp(host:3306)/xmplus"
	DSN string `mapstructure:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PanelConfig configures the proxy-panel directory backend.
type PanelConfig struct {
	Backend Backend `mapstructure:"backend"`

	// HTTP API backend
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	// WriteRPS paces save calls against the panel (0 = unlimited).
	WriteRPS float64 `mapstructure:"write_rps"`

	// Embedded database backend
	SQLitePath string `mapstructure:"sqlite_path"`
	// RestartCommand is run after a settlement pass that reset counters,
	// because the panel only reloads direct database writes on restart.
	RestartCommand string `mapstructure:"restart_command"`
}

// ServerConfig identifies one proxy server for link generation.
type ServerConfig struct {
	Name         string `mapstructure:"name"`
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	Obfs         string `mapstructure:"obfs"`
	ObfsPassword string `mapstructure:"obfs_password"`
}

// LinksConfig parameterizes share-link generation.
type LinksConfig struct {
	Servers  []ServerConfig `mapstructure:"servers"`
	Inbounds []int          `mapstructure:"inbounds"`
}

// SyncConfig holds the reconciliation and settlement knobs.
type SyncConfig struct {
	// GraceBytes is the minimum remaining quota for an account to stay
	// eligible. Keeping this above zero avoids re-provisioning accounts
	// with negligible remaining quota and oscillation near the floor.
	GraceBytes int64 `mapstructure:"grace_bytes"`

	// DiscountFactor converts raw panel byte counts to billed bytes:
	// billed = raw / factor, truncated per direction. 1.0 = no conversion.
	DiscountFactor float64 `mapstructure:"discount_factor"`

	DryRun bool `mapstructure:"dry_run"`
}

// CacheConfig configures the optional redis-backed eligible-set cache used
// as a fallback when the billing store is unreachable.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SubscriptionConfig configures the subscription-link endpoint.
type SubscriptionConfig struct {
	Listen       string            `mapstructure:"listen"`
	UpstreamURL  string            `mapstructure:"upstream_url"`
	Names        map[string]string `mapstructure:"names"`
	DefaultVmess string            `mapstructure:"default_vmess"`
}

// DebugConfig configures the metrics/health listener of serve mode.
type DebugConfig struct {
	Listen string `mapstructure:"listen"`
}

// Default returns a Config with sensible defaults. File and environment
// values are merged on top by Load.
func Default() Config {
	return Config{
		Billing: BillingConfig{
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Panel: PanelConfig{
			Backend:  BackendAPI,
			BaseURL:  "http://localhost:2095/app/apiv2",
			Timeout:  15 * time.Second,
			WriteRPS: 20,
		},
		Sync: SyncConfig{
			GraceBytes:     200_000_000,
			DiscountFactor: 1.0,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Subscription: SubscriptionConfig{
			Listen: "127.0.0.1:5000",
		},
		Debug: DebugConfig{
			Listen: "127.0.0.1:6060",
		},
	}
}

// Load reads the named config file (no extension) from dir and the standard
// search paths, applies environment overrides, and unmarshals on top of the
// defaults.
func Load(dir, name string) (Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.subsync")
	v.AddConfigPath("/etc/subsync/")
	v.SetEnvPrefix("SUBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		// Missing file is fine: env vars and defaults still apply.
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Panel.Backend {
	case BackendAPI, BackendSQLite:
	default:
		return fmt.Errorf("invalid panel backend %q", c.Panel.Backend)
	}
	if c.Sync.DiscountFactor <= 0 {
		return fmt.Errorf("discount_factor must be positive, got %v", c.Sync.DiscountFactor)
	}
	if c.Sync.GraceBytes < 0 {
		return fmt.Errorf("grace_bytes must be non-negative, got %d", c.Sync.GraceBytes)
	}
	return nil
}
