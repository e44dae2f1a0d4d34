// Package config loads the server configuration from defaults, an optional
// YAML file, environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/msomdec/user-service-mcp/internal/fuzzy"
)

// Transports.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// ConfigFileEnv names the environment variable that points at a YAML config
// file when --config is not given.
const ConfigFileEnv = "USER_SERVICE_CONFIG"

// Config is the resolved server configuration.
type Config struct {
	DatabaseURL          string        `yaml:"database_url"`
	Port                 int           `yaml:"port"`
	Transport            string        `yaml:"transport"`
	LogLevel             string        `yaml:"log_level"`
	DBMaxOpenConns       int           `yaml:"db_max_open_conns"`
	SlowSessionThreshold time.Duration `yaml:"slow_session_threshold"`
	RateLimitRPS         float64       `yaml:"rate_limit_rps"`
	RateLimitBurst       int           `yaml:"rate_limit_burst"`
	FuzzyMetric          string        `yaml:"fuzzy_metric"`
	SearchLimit          int           `yaml:"search_limit"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DatabaseURL:          "sqlite:///users.db",
		Port:                 8001,
		Transport:            TransportHTTP,
		LogLevel:             "info",
		DBMaxOpenConns:       1,
		SlowSessionThreshold: 200 * time.Millisecond,
		RateLimitRPS:         0,
		RateLimitBurst:       20,
		FuzzyMetric:          fuzzy.MetricGestalt,
		SearchLimit:          5,
	}
}

// Load resolves the configuration for the given command-line arguments
// (without the program name). It returns pflag.ErrHelp when -h or --help
// was requested.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("user-service", pflag.ContinueOnError)
	def := Default()

	configPath := fs.String("config", "", "path to a YAML config file (env "+ConfigFileEnv+")")
	fs.String("database-url", def.DatabaseURL, "database connection URL (env DATABASE_URL)")
	fs.Int("port", def.Port, "HTTP listen port (env PORT)")
	fs.String("transport", def.Transport, "MCP transport: http or stdio (env TRANSPORT)")
	fs.String("log-level", def.LogLevel, "log level: debug, info, warn or error (env LOG_LEVEL)")
	fs.Int("db-max-open-conns", def.DBMaxOpenConns, "maximum open database connections (env DB_MAX_OPEN_CONNS)")
	fs.Duration("slow-session-threshold", def.SlowSessionThreshold, "log sessions slower than this; 0 disables (env SLOW_SESSION_THRESHOLD)")
	fs.Float64("rate-limit-rps", def.RateLimitRPS, "per-client MCP requests per second; 0 disables (env RATE_LIMIT_RPS)")
	fs.Int("rate-limit-burst", def.RateLimitBurst, "per-client MCP burst size (env RATE_LIMIT_BURST)")
	fs.String("fuzzy-metric", def.FuzzyMetric, "name similarity metric: gestalt or indel (env FUZZY_METRIC)")
	fs.Int("search-limit", def.SearchLimit, "matches returned by list_users_by_name (env SEARCH_LIMIT)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := def

	path := *configPath
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(fs); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("DATABASE_URL", &c.DatabaseURL)
	num("PORT", &c.Port)
	str("TRANSPORT", &c.Transport)
	str("LOG_LEVEL", &c.LogLevel)
	num("DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns)
	num("RATE_LIMIT_BURST", &c.RateLimitBurst)
	str("FUZZY_METRIC", &c.FuzzyMetric)
	num("SEARCH_LIMIT", &c.SearchLimit)

	if v, ok := os.LookupEnv("SLOW_SESSION_THRESHOLD"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLOW_SESSION_THRESHOLD: %w", err))
		} else {
			c.SlowSessionThreshold = d
		}
	}
	if v, ok := os.LookupEnv("RATE_LIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		} else {
			c.RateLimitRPS = f
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// applyFlags copies every flag set explicitly on the command line.
func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "database-url":
			c.DatabaseURL, err = fs.GetString(f.Name)
		case "port":
			c.Port, err = fs.GetInt(f.Name)
		case "transport":
			c.Transport, err = fs.GetString(f.Name)
		case "log-level":
			c.LogLevel, err = fs.GetString(f.Name)
		case "db-max-open-conns":
			c.DBMaxOpenConns, err = fs.GetInt(f.Name)
		case "slow-session-threshold":
			c.SlowSessionThreshold, err = fs.GetDuration(f.Name)
		case "rate-limit-rps":
			c.RateLimitRPS, err = fs.GetFloat64(f.Name)
		case "rate-limit-burst":
			c.RateLimitBurst, err = fs.GetInt(f.Name)
		case "fuzzy-metric":
			c.FuzzyMetric, err = fs.GetString(f.Name)
		case "search-limit":
			c.SearchLimit, err = fs.GetInt(f.Name)
		}
	})
	return err
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.Transport != TransportHTTP && c.Transport != TransportStdio {
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TransportHTTP, TransportStdio, c.Transport))
	}
	if c.Transport == TransportHTTP && (c.Port < 1 || c.Port > 65535) {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.DBMaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("db max open conns must be at least 1, got %d", c.DBMaxOpenConns))
	}
	if c.SlowSessionThreshold < 0 {
		errs = append(errs, fmt.Errorf("slow session threshold must not be negative, got %s", c.SlowSessionThreshold))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rate limit rps must not be negative, got %g", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("rate limit burst must be at least 1, got %d", c.RateLimitBurst))
	}
	if _, err := fuzzy.ScorerByName(c.FuzzyMetric); err != nil {
		errs = append(errs, err)
	}
	if c.SearchLimit < 1 {
		errs = append(errs, fmt.Errorf("search limit must be at least 1, got %d", c.SearchLimit))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
