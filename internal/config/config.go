package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBPath        string
	DataDir       string
	TemplatesPath string
	Addr          string
	Debounce      time.Duration
	MaxPageCount  int
	TimeZone      string
	Location      *time.Location
	Debug         bool
}

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// Register binds the shared flags onto fs. Environment variables provide the
// defaults so the same binary can be driven from a shell profile.
func Register(fs *flag.FlagSet) *Config {
	cfg := &Config{}
	fs.StringVar(&cfg.DBPath, "db", SafeEnv("REPORTER_DB", "reporter.sqlite"), "path to the SQLite database file")
	fs.StringVar(&cfg.DataDir, "data-dir", SafeEnv("REPORTER_DATA_DIR", "reporter-data"), "directory for backups and story bundles")
	fs.StringVar(&cfg.TemplatesPath, "templates", SafeEnv("REPORTER_TEMPLATES", "templates.json"), "template catalog file inside -data-dir")
	fs.StringVar(&cfg.Addr, "addr", SafeEnv("REPORTER_ADDR", "127.0.0.1:8787"), "loopback listen address for serve")
	fs.DurationVar(&cfg.Debounce, "debounce", envDuration("REPORTER_DEBOUNCE", time.Second), "autosave debounce window")
	fs.IntVar(&cfg.MaxPageCount, "max-pages", envInt("REPORTER_MAX_PAGES", 0), "SQLite max_page_count storage cap (0 = unlimited)")
	fs.StringVar(&cfg.TimeZone, "tz", SafeEnv("REPORTER_TZ", "Local"), "time zone used for dates in exported reports")
	fs.BoolVar(&cfg.Debug, "debug", SafeEnv("REPORTER_DEBUG", "") == "1", "log at DEBUG level")
	return cfg
}

// Parse registers the flags on fs, parses args and validates the result.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Register(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

// Validate checks the values and resolves the report time zone.
func (cfg *Config) Validate() error {
	if cfg.DBPath == "" {
		return errors.New("missing parameter -db")
	}
	if cfg.Debounce <= 0 {
		return fmt.Errorf("invalid -debounce %s: must be positive", cfg.Debounce)
	}
	if cfg.MaxPageCount < 0 {
		return fmt.Errorf("invalid -max-pages %d", cfg.MaxPageCount)
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid -tz %q: %w", cfg.TimeZone, err)
	}
	cfg.Location = loc
	return nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}
