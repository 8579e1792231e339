package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeServe, cfg.Mode)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"graphs", "failures", "failures_extra"}, cfg.Variants)
	assert.False(t, cfg.SanitizeMarkup)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MODE", "WATCH")
	t.Setenv("UPSTREAM_URL", "http://dq.internal:5000/")
	t.Setenv("VARIANTS", " graphs , failures_extra ,")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("STORAGE", "sqlite")
	t.Setenv("STORAGE_PATH", "/tmp/polls.sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeWatch, cfg.Mode)
	assert.Equal(t, "http://dq.internal:5000", cfg.UpstreamURL)
	assert.Equal(t, []string{"graphs", "failures_extra"}, cfg.Variants)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, StorageSQLite, cfg.Storage)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Mode:           ModeServe,
			UpstreamURL:    "http://127.0.0.1:5000",
			Variants:       []string{"graphs"},
			PollInterval:   time.Second,
			RequestTimeout: time.Second,
			OutputDir:      "out",
			Storage:        StorageMemory,
			StorageMaxRows: 1000,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad mode", mutate: func(c *Config) { c.Mode = "daemon" }, wantErr: "invalid MODE"},
		{name: "bad storage", mutate: func(c *Config) { c.Storage = "redis" }, wantErr: "invalid STORAGE"},
		{name: "few rows", mutate: func(c *Config) { c.StorageMaxRows = 10 }, wantErr: "STORAGE_MAX_ROWS"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage = StorageSQLite }, wantErr: "STORAGE_PATH"},
		{name: "ftp upstream", mutate: func(c *Config) { c.UpstreamURL = "ftp://x" }, wantErr: "UPSTREAM_URL"},
		{name: "no variants", mutate: func(c *Config) { c.Variants = nil }, wantErr: "VARIANTS must not be empty"},
		{name: "duplicate variant", mutate: func(c *Config) { c.Variants = []string{"graphs", "graphs"} }, wantErr: "twice"},
		{name: "zero interval", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: "POLL_INTERVAL"},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "REQUEST_TIMEOUT"},
		{name: "docs without glob", mutate: func(c *Config) { c.DocsDir = "docs" }, wantErr: "DOCS_GLOB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
