// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "config")
	require.NoError(t, err)

	assert.Equal(t, BackendAPI, cfg.Panel.Backend)
	assert.Equal(t, "http://localhost:2095/app/apiv2", cfg.Panel.BaseURL)
	assert.Equal(t, int64(200_000_000), cfg.Sync.GraceBytes)
	assert.Equal(t, 1.0, cfg.Sync.DiscountFactor)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_File(t *testing.T) {
	dir := writeConfig(t, `
billing:
  dsn: "user:pass@tcp(db:3306)/xmplus"
panel:
  backend: sqlite
  sqlite_path: /opt/panel/s-ui.db
  restart_command: "systemctl restart s-ui"
links:
  inbounds: [3, 4]
  servers:
    - name: eu-1
      address: 203.0.113.7
      port: 443
      obfs: salamander
      obfs_password: secret
sync:
  grace_bytes: 500000000
  discount_factor: 0.8
cache:
  enabled: true
  addr: redis:6379
`)

	cfg, err := Load(dir, "config")
	require.NoError(t, err)

	assert.Equal(t, "user:pass@tcp(db:3306)/xmplus", cfg.Billing.DSN)
	assert.Equal(t, BackendSQLite, cfg.Panel.Backend)
	assert.Equal(t, "/opt/panel/s-ui.db", cfg.Panel.SQLitePath)
	assert.Equal(t, "systemctl restart s-ui", cfg.Panel.RestartCommand)
	assert.Equal(t, []int{3, 4}, cfg.Links.Inbounds)
	require.Len(t, cfg.Links.Servers, 1)
	assert.Equal(t, 443, cfg.Links.Servers[0].Port)
	assert.Equal(t, int64(500_000_000), cfg.Sync.GraceBytes)
	assert.Equal(t, 0.8, cfg.Sync.DiscountFactor)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1:5000", cfg.Subscription.Listen)
}

func TestLoad_InvalidBackend(t *testing.T) {
	dir := writeConfig(t, "panel:\n  backend: postgres\n")

	_, err := Load(dir, "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid panel backend")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults pass", func(c *Config) {}, ""},
		{"sqlite backend passes", func(c *Config) { c.Panel.Backend = BackendSQLite }, ""},
		{"unknown backend", func(c *Config) { c.Panel.Backend = "grpc" }, "invalid panel backend"},
		{"zero factor", func(c *Config) { c.Sync.DiscountFactor = 0 }, "discount_factor"},
		{"negative factor", func(c *Config) { c.Sync.DiscountFactor = -0.5 }, "discount_factor"},
		{"negative grace", func(c *Config) { c.Sync.GraceBytes = -1 }, "grace_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
