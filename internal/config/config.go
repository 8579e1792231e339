package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mode controls which parts of the watcher run.
// - watch: poll the configured variants, write the rendered pages and exit
// - serve (default): poll, keep the viewer server up until a signal arrives
type Mode string

const (
	ModeWatch Mode = "watch"
	ModeServe Mode = "serve" // default
)

// StorageType controls the poll history backend.
type StorageType string

const (
	StorageSQLite StorageType = "sqlite"
	StorageMemory StorageType = "memory"
	StorageOff    StorageType = "off"
)

// Config contains all runtime configuration for the watcher.
type Config struct {
	// Core
	Mode        Mode   `env:"MODE" envDefault:"serve"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8050"`
	UpstreamURL string `env:"UPSTREAM_URL" envDefault:"http://127.0.0.1:5000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Polling
	Variants       []string      `env:"VARIANTS" envSeparator:"," envDefault:"graphs,failures,failures_extra"`
	VariantsFile   string        `env:"VARIANTS_FILE"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	SanitizeMarkup bool          `env:"SANITIZE_MARKUP" envDefault:"false"`

	// Output
	OutputDir   string `env:"OUTPUT_DIR" envDefault:"out"`
	SnapshotDir string `env:"SNAPSHOT_DIR"`
	DownloadDir string `env:"DOWNLOAD_DIR"`

	// Documentation search
	DocsDir  string `env:"DOCS_DIR"`
	DocsGlob string `env:"DOCS_GLOB" envDefault:"**/*.html"`

	// Storage
	Storage        StorageType `env:"STORAGE" envDefault:"memory"`
	StoragePath    string      `env:"STORAGE_PATH" envDefault:"data/polls.sqlite"`
	StorageMaxRows int         `env:"STORAGE_MAX_ROWS" envDefault:"5000"`
}

// Load reads an optional .env file, parses env vars and returns a validated Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.Storage = StorageType(strings.ToLower(strings.TrimSpace(string(c.Storage))))
	c.UpstreamURL = strings.TrimRight(strings.TrimSpace(c.UpstreamURL), "/")

	variants := make([]string, 0, len(c.Variants))
	for _, v := range c.Variants {
		v = strings.TrimSpace(v)
		if v != "" {
			variants = append(variants, v)
		}
	}
	c.Variants = variants
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeWatch, ModeServe:
		// ok
	default:
		return fmt.Errorf("invalid MODE: %q (must be watch|serve)", c.Mode)
	}

	switch c.Storage {
	case StorageSQLite, StorageMemory, StorageOff:
		// ok
	default:
		return fmt.Errorf("invalid STORAGE: %q (must be sqlite|memory|off)", c.Storage)
	}

	if c.StorageMaxRows < 100 {
		return fmt.Errorf("STORAGE_MAX_ROWS must be >= 100")
	}
	if c.Storage == StorageSQLite && c.StoragePath == "" {
		return fmt.Errorf("STORAGE_PATH is required for STORAGE=sqlite")
	}

	u, err := url.Parse(c.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("UPSTREAM_URL must be http or https, got %q", c.UpstreamURL)
	}

	if len(c.Variants) == 0 {
		return fmt.Errorf("VARIANTS must not be empty")
	}
	seen := make(map[string]bool, len(c.Variants))
	for _, v := range c.Variants {
		if seen[v] {
			return fmt.Errorf("VARIANTS lists %q twice", v)
		}
		seen[v] = true
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR must not be empty")
	}
	if c.DocsDir != "" && c.DocsGlob == "" {
		return fmt.Errorf("DOCS_GLOB must not be empty when DOCS_DIR is set")
	}

	return nil
}
