package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config file is named. It may be absent.
const DefaultFile = "config.yaml"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBigQuery = "bigquery"
)

// Leaf fields carry no envconfig tag: a tag would make envconfig fall back to
// the bare name (USER, PATH, HOST) when the prefixed variable is unset.

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type PostgresConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the connection settings as a postgres:// URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type BigQueryConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
}

type PipelineConfig struct {
	Workers           int           `yaml:"workers"`
	AllowedCurrencies []string      `yaml:"allowed_currencies" split_words:"true"`
	FailOnRejects     bool          `yaml:"fail_on_rejects" split_words:"true"`
	MaskCustomerName  bool          `yaml:"mask_customer_name" split_words:"true"`
	Timeout           time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full application configuration.
type Config struct {
	Env      string         `yaml:"env" envconfig:"APP_ENV"`
	Store    StoreConfig    `yaml:"store" envconfig:"STORE"`
	Postgres PostgresConfig `yaml:"postgres" envconfig:"POSTGRES"`
	SQLite   SQLiteConfig   `yaml:"sqlite" envconfig:"SQLITE"`
	BigQuery BigQueryConfig `yaml:"bigquery" envconfig:"BIGQUERY"`
	AWS      AWSConfig      `yaml:"aws" envconfig:"AWS"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Log      LogConfig      `yaml:"log" envconfig:"LOG"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:   "production",
		Store: StoreConfig{Driver: DriverPostgres},
		Postgres: PostgresConfig{
			User:     "postgres",
			Host:     "localhost",
			Port:     5432,
			Database: "postgres",
			SSLMode:  "disable",
		},
		SQLite:   SQLiteConfig{Path: "txloader.db"},
		BigQuery: BigQueryConfig{Dataset: "txloader"},
		Pipeline: PipelineConfig{
			Workers: 1,
			Timeout: 5 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from, lowest to highest precedence: the
// built-in defaults, the YAML file, a .env file in the working directory and
// the process environment. An empty file name means DefaultFile, which may be
// missing; a named file must exist.
func Load(file string) (*Config, error) {
	cfg := Default()

	optional := file == ""
	if optional {
		file = DefaultFile
	}
	if err := cfg.loadFile(file, optional); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: reading .env: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config.Load: reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config.Load: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config.Load: parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite, DriverBigQuery:
	default:
		errs = append(errs, fmt.Errorf("store driver %q must be one of postgres, sqlite or bigquery", c.Store.Driver))
	}
	if c.Store.Driver == DriverBigQuery && c.BigQuery.Project == "" {
		errs = append(errs, errors.New("bigquery project is required for the bigquery driver"))
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline workers must not be negative, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline timeout must be positive, got %s", c.Pipeline.Timeout))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be console or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.Postgres.Password = maskValue(c.Postgres.Password)
	c.Pipeline.AllowedCurrencies = append([]string(nil), c.Pipeline.AllowedCurrencies...)
	return c
}

func maskValue(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
