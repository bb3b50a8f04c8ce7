// Package config loads engine settings and the job-board source list.
//
// Settings come from an optional YAML file, then the environment: a set
// environment variable always wins, and defaults only fill fields that are
// still empty.
package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the settings file.
const DefaultPath = "config/jobsync.yml"

// ErrInvalidConfig is returned when settings fail validation.
var ErrInvalidConfig = errors.New("config: invalid settings")

type Config struct {
	DataDir     string `yaml:"data_dir" json:"data_dir" env:"JOBSYNC_DATA_DIR, overwrite, default=." validate:"required"`
	DBDriver    string `yaml:"db_driver" json:"db_driver" env:"JOBSYNC_DB_DRIVER, overwrite, default=sqlite" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" json:"-" env:"DATABASE_URL, overwrite" validate:"required_if=DBDriver postgres"`

	// SourcesEnv names the environment variable holding the JSON source list.
	SourcesEnv  string `yaml:"sources_env" json:"sources_env" env:"JOBSYNC_SOURCES_ENV, overwrite, default=JOB_BOARD_SOURCES" validate:"required"`
	SourcesFile string `yaml:"sources_file" json:"sources_file" env:"JOB_BOARD_SOURCES_FILE, overwrite, default=config/job-board-sources.json"`

	Fetch FetchConfig `yaml:"fetch" json:"fetch"`
	Sync  SyncConfig  `yaml:"sync" json:"sync"`
	Serve ServeConfig `yaml:"serve" json:"serve"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

type FetchConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts" env:"JOBSYNC_FETCH_MAX_ATTEMPTS, overwrite, default=3" validate:"min=1,max=10"`
	BackoffStep       time.Duration `yaml:"backoff_step" json:"backoff_step" env:"JOBSYNC_FETCH_BACKOFF_STEP, overwrite, default=300ms" validate:"min=0s"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" env:"JOBSYNC_FETCH_TIMEOUT, overwrite, default=20s" validate:"min=1s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second" env:"JOBSYNC_FETCH_RPS, overwrite, default=1" validate:"min=0"`
	Burst             int           `yaml:"burst" json:"burst" env:"JOBSYNC_FETCH_BURST, overwrite, default=2" validate:"min=1"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent" env:"JOBSYNC_FETCH_USER_AGENT, overwrite"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" json:"max_body_bytes" env:"JOBSYNC_FETCH_MAX_BODY_BYTES, overwrite, default=4194304" validate:"min=1024"`
}

type SyncConfig struct {
	// Concurrency is how many sources run at once; 1 processes them in order.
	Concurrency        int `yaml:"concurrency" json:"concurrency" env:"JOBSYNC_SYNC_CONCURRENCY, overwrite, default=1" validate:"min=1,max=4"`
	RecheckConcurrency int `yaml:"recheck_concurrency" json:"recheck_concurrency" env:"JOBSYNC_RECHECK_CONCURRENCY, overwrite, default=1" validate:"min=1,max=8"`
}

type ServeConfig struct {
	Schedule string `yaml:"schedule" json:"schedule" env:"JOBSYNC_SCHEDULE, overwrite, default=0 */6 * * *" validate:"required"`
	Addr     string `yaml:"addr" json:"addr" env:"JOBSYNC_ADDR, overwrite, default=127.0.0.1:38471" validate:"required,hostname_port"`
}

type LogConfig struct {
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT, overwrite, default=text" validate:"oneof=text json"`
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL, overwrite, default=info" validate:"oneof=debug info warn warning error"`
}

// Load reads the YAML file at path (a missing file is fine), applies the
// environment from l (the process environment when nil) and validates the
// result. Validation warnings are returned alongside a usable config.
func Load(ctx context.Context, path string, l envconfig.Lookuper) (*Config, Validation, error) {
	cfg := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, Validation{}, errors.Wrapf(err, "read config %s", path)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, Validation{}, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	if l == nil {
		l = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return nil, Validation{}, errors.Wrap(err, "config: environment")
	}

	out, v := NormalizeAndValidate(*cfg)
	if !v.OK() {
		return nil, v, errors.Wrapf(ErrInvalidConfig, "%s", v.Error())
	}
	return &out, v, nil
}

// DBPath is the SQLite catalog location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "jobsync.db")
}

// LockPath is the run lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "jobsync.lock")
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return errors.Wrapf(err, "create data dir %s", c.DataDir)
	}
	return nil
}
