// Package config gathers process settings. Scalars come from command-line
// flags whose defaults are seeded from environment variables; report sizes
// and mapping presets come from an optional YAML file named by -config.
//
// For tests, use LoadFromArgs with a private FlagSet and a map-backed getenv:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	cfg, err := config.LoadFromArgs(fs, func(k string) string { return env[k] }, []string{"-addr=:9090"})
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-sales-insights/internal/model"
	"go-sales-insights/internal/pipeline"
	"go-sales-insights/pkg/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server and CLI need. It is a plain value once
// loaded.
type Config struct {
	Addr       string // HTTP listen address
	DBPath     string // SQLite file for upload history and users
	OutputDir  string // Base directory for CLI report runs
	ConfigFile string // Optional YAML file

	JWTSecret string
	TokenTTL  time.Duration

	LogLevel  string // logrus level name
	LogFormat string // "text" or "json"

	Report  ReportConfig
	Presets map[string]model.Mapping
}

// ReportConfig sizes the derived summaries
type ReportConfig struct {
	BarTopN       int     `yaml:"bar_top_n"`
	PieTopN       int     `yaml:"pie_top_n"`
	TopTableTopN  int     `yaml:"top_table_top_n"`
	ProductLimit  int     `yaml:"product_limit"`
	DateThreshold float64 `yaml:"date_threshold"`
}

// Summary converts the report sizes for the aggregator
func (r ReportConfig) Summary() pipeline.SummaryOptions {
	return pipeline.SummaryOptions{BarTopN: r.BarTopN, PieTopN: r.PieTopN, TopTableTopN: r.TopTableTopN}
}

// fileConfig is the YAML layout
type fileConfig struct {
	Report  *ReportConfig                `yaml:"report"`
	Presets map[string]map[string]string `yaml:"presets"`
}

func defaultReport() ReportConfig {
	s := pipeline.DefaultSummaryOptions()
	return ReportConfig{
		BarTopN:       s.BarTopN,
		PieTopN:       s.PieTopN,
		TopTableTopN:  s.TopTableTopN,
		ProductLimit:  pipeline.DefaultProductLimit,
		DateThreshold: pipeline.DefaultDateThreshold,
	}
}

// Define registers the shared flags on fs with environment-seeded defaults.
// Callers may add their own flags, parse fs, and then call Finish.
func Define(fs *flag.FlagSet, getenv func(string) string) *Config {
	cfg := &Config{Report: defaultReport(), Presets: map[string]model.Mapping{}}

	envOrDefault := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	durationEnvOrDefault := func(k string, d time.Duration) time.Duration {
		return utils.ParseDuration(getenv(k), d)
	}

	fs.StringVar(&cfg.Addr, "addr", envOrDefault("INSIGHTS_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", envOrDefault("INSIGHTS_DB", "insights.db"), "SQLite database path")
	fs.StringVar(&cfg.OutputDir, "output_dir", envOrDefault("INSIGHTS_OUTPUT_DIR", "./outputs"), "Base directory for report runs")
	fs.StringVar(&cfg.ConfigFile, "config", getenv("INSIGHTS_CONFIG"), "Optional YAML file with report sizes and mapping presets")

	fs.StringVar(&cfg.JWTSecret, "jwt_secret", envOrDefault("INSIGHTS_JWT_SECRET", "change-me"), "Secret for signing session tokens")
	fs.DurationVar(&cfg.TokenTTL, "token_ttl", durationEnvOrDefault("INSIGHTS_TOKEN_TTL", 24*time.Hour), "Session token lifetime")

	fs.StringVar(&cfg.LogLevel, "log_level", envOrDefault("INSIGHTS_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log_format", envOrDefault("INSIGHTS_LOG_FORMAT", "text"), "Log format: text or json")

	return cfg
}

// LoadFromArgs defines the flags on fs, parses args and reads the YAML file
// if one is named.
//
// Precedence for flag-backed settings:
//  1. Environment values seed each flag's default.
//  2. Explicit flags in args override the seeded defaults.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	cfg := Define(fs, getenv)
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is the production entry point using os.Args and the process environment
func Load() (*Config, error) {
	return LoadFromArgs(flag.CommandLine, os.Getenv, os.Args[1:])
}

// Finish applies the YAML file named by ConfigFile, if any, and validates
func (c *Config) Finish() error {
	if c.ConfigFile != "" {
		if err := c.applyFile(c.ConfigFile); err != nil {
			return err
		}
	}
	return c.Validate()
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Report != nil {
		r := *fc.Report
		def := defaultReport()
		if r.BarTopN == 0 {
			r.BarTopN = def.BarTopN
		}
		if r.PieTopN == 0 {
			r.PieTopN = def.PieTopN
		}
		if r.TopTableTopN == 0 {
			r.TopTableTopN = def.TopTableTopN
		}
		if r.ProductLimit == 0 {
			r.ProductLimit = def.ProductLimit
		}
		if r.DateThreshold == 0 {
			r.DateThreshold = def.DateThreshold
		}
		c.Report = r
	}

	for name, roles := range fc.Presets {
		m := model.Mapping{}
		for role, column := range roles {
			r, err := model.ParseRole(strings.TrimSpace(role))
			if err != nil {
				return fmt.Errorf("preset %q: %w", name, err)
			}
			m[r] = column
		}
		c.Presets[name] = m
	}
	return nil
}

// Validate checks ranges the rest of the program relies on
func (c *Config) Validate() error {
	if c.Report.BarTopN < 1 || c.Report.PieTopN < 1 || c.Report.TopTableTopN < 1 {
		return fmt.Errorf("report sizes must be positive: %+v", c.Report)
	}
	if c.Report.ProductLimit < 1 {
		return fmt.Errorf("product_limit must be positive, got %d", c.Report.ProductLimit)
	}
	if c.Report.DateThreshold <= 0 || c.Report.DateThreshold >= 1 {
		return fmt.Errorf("date_threshold must be in (0, 1), got %s", strconv.FormatFloat(c.Report.DateThreshold, 'f', -1, 64))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger builds the process logger from the log settings
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
