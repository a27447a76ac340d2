// Package config handles YAML configuration parsing and environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"scout/internal/collector"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the root configuration structure.
type Config struct {
	Telemetry  TelemetryConfig       `yaml:"telemetry"`
	Report     ReportConfig          `yaml:"report"`
	Server     ServerConfig          `yaml:"server"`
	Targets    map[string]string     `yaml:"targets"`
	Timeouts   TimeoutConfig         `yaml:"timeouts"`
	LinkCheck  LinkCheckConfig       `yaml:"linkCheck"`
	Anomalies  AnomalyConfig         `yaml:"anomalies"`
	Thresholds *collector.Thresholds `yaml:"thresholds,omitempty"`
	Logging    LoggingConfig         `yaml:"logging"`
}

// TelemetryConfig controls collection. MaxEvents caps the in-memory run;
// zero means unbounded.
type TelemetryConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxEvents int  `yaml:"maxEvents"`
}

// ReportConfig locates the persisted artifact. Archive is an optional SQLite
// DSN; empty disables archiving.
type ReportConfig struct {
	Dir     string `yaml:"dir"`
	File    string `yaml:"file"`
	Archive string `yaml:"archive"`
}

type ServerConfig struct {
	Listen          string `yaml:"listen"`
	MaxPayloadBytes int64  `yaml:"maxPayloadBytes"`
}

type TimeoutConfig struct {
	PageLoad       time.Duration `yaml:"pageLoad"`
	LinkCheck      time.Duration `yaml:"linkCheck"`
	LinkCheckBatch time.Duration `yaml:"linkCheckBatch"`
}

type LinkCheckConfig struct {
	RPS           int `yaml:"rps"`
	MaxConcurrent int `yaml:"maxConcurrent"`
}

type AnomalyConfig struct {
	SlowPage time.Duration `yaml:"slowPage"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Telemetry: TelemetryConfig{Enabled: true, MaxEvents: collector.DefaultMaxEvents},
		Report:    ReportConfig{Dir: "reports/ai-insights", File: "latest-report.json"},
		Server:    ServerConfig{Listen: "127.0.0.1:7357", MaxPayloadBytes: 10 << 20},
		Targets: map[string]string{
			"parabank":  "https://parabank.parasoft.com",
			"saucedemo": "https://www.saucedemo.com",
		},
		Timeouts: TimeoutConfig{
			PageLoad:       120 * time.Second,
			LinkCheck:      10 * time.Second,
			LinkCheckBatch: 8 * time.Second,
		},
		LinkCheck: LinkCheckConfig{MaxConcurrent: 8},
		Anomalies: AnomalyConfig{SlowPage: 5 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Telemetry.Enabled = getEnvBool("AI_ENABLED", c.Telemetry.Enabled)
	if c.Targets == nil {
		c.Targets = make(map[string]string)
	}
	c.Targets["parabank"] = getEnv("PARABANK_URL", c.Targets["parabank"])
	c.Targets["saucedemo"] = getEnv("SAUCEDEMO_URL", c.Targets["saucedemo"])
	c.Server.Listen = getEnv("SCOUT_LISTEN", c.Server.Listen)
	c.Report.Dir = getEnv("SCOUT_REPORT_DIR", c.Report.Dir)
	c.Report.Archive = getEnv("SCOUT_ARCHIVE", c.Report.Archive)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Telemetry.MaxEvents < 0 {
		errs = append(errs, fmt.Errorf("telemetry.maxEvents must not be negative"))
	}
	if c.Server.MaxPayloadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.maxPayloadBytes must not be negative"))
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"timeouts.pageLoad", c.Timeouts.PageLoad},
		{"timeouts.linkCheck", c.Timeouts.LinkCheck},
		{"timeouts.linkCheckBatch", c.Timeouts.LinkCheckBatch},
		{"anomalies.slowPage", c.Anomalies.SlowPage},
	}
	for _, d := range durations {
		if d.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}
	if c.LinkCheck.RPS < 0 || c.LinkCheck.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("linkCheck limits must not be negative"))
	}
	for _, name := range c.TargetNames() {
		u, err := url.Parse(c.Targets[name])
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("targets.%s: %q is not an absolute URL", name, c.Targets[name]))
		}
	}
	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Target returns the base URL for a named site.
func (c *Config) Target(name string) (string, bool) {
	u, ok := c.Targets[name]
	return u, ok && u != ""
}

// TargetNames returns the configured site names in sorted order.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
