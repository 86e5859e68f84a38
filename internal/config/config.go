// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	Registry  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance shared by
// the run. Each scenario still gets its own isolated browsing context.
type BrowserConfig struct {
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath       string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	Viewport       map[string]int `mapstructure:"viewport" yaml:"viewport"`
	IgnoreTLSError bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// RunnerConfig tunes scenario scheduling and per-step execution.
type RunnerConfig struct {
	// Concurrency bounds how many scenarios of one feature run in parallel.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// MaxRetries is R in the per-step retry loop: a step is attempted at
	// most R+1 times.
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	StepTimeout  time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	// StabilityTimeout bounds the full page-stability wait after
	// navigations and redirects.
	StabilityTimeout time.Duration `mapstructure:"stability_timeout" yaml:"stability_timeout"`
	// ShortWait is the reactive-redirect window after fills and
	// same-page clicks.
	ShortWait time.Duration `mapstructure:"short_wait" yaml:"short_wait"`
	// URLPollWindow bounds how long a click polls for a URL change before
	// deciding no redirect happened.
	URLPollWindow time.Duration `mapstructure:"url_poll_window" yaml:"url_poll_window"`
	AssertTimeout time.Duration `mapstructure:"assert_timeout" yaml:"assert_timeout"`
	// Tags filters scenarios: when set, only features/scenarios carrying
	// one of the tags are executed.
	Tags []string `mapstructure:"tags" yaml:"tags"`
}

// RegistryConfig configures the persistent selector cache.
type RegistryConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// LookupTimeout bounds revalidation of a cached selector per frame.
	LookupTimeout time.Duration `mapstructure:"lookup_timeout" yaml:"lookup_timeout"`
	// SemanticTimeout bounds each semantic-tier lookup per frame.
	SemanticTimeout time.Duration `mapstructure:"semantic_timeout" yaml:"semantic_timeout"`
}

// DataConfig points at the run's test data file for {dot.path} placeholders.
type DataConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// ArtifactsConfig configures failure diagnostics persistence.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// DOMDepth bounds the depth of captured DOM snapshots.
	DOMDepth int `mapstructure:"dom_depth" yaml:"dom_depth"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "steppilot")
	v.SetDefault("logger.log_file", "steppilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})

	// -- Runner --
	v.SetDefault("runner.concurrency", 4)
	v.SetDefault("runner.max_retries", 2)
	v.SetDefault("runner.retry_backoff", "1s")
	v.SetDefault("runner.step_timeout", "45s")
	v.SetDefault("runner.stability_timeout", "10s")
	v.SetDefault("runner.short_wait", "750ms")
	v.SetDefault("runner.url_poll_window", "2s")
	v.SetDefault("runner.assert_timeout", "10s")

	// -- Registry --
	v.SetDefault("registry.dir", ".steppilot/selectors")
	v.SetDefault("registry.lookup_timeout", "500ms")
	v.SetDefault("registry.semantic_timeout", "250ms")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", ".steppilot/artifacts")
	v.SetDefault("artifacts.dom_depth", 12)

	// -- Report --
	v.SetDefault("report.format", "json")
	v.SetDefault("report.output", "")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in configured directories and files.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Registry.Dir, &c.Artifacts.Dir, &c.Data.File, &c.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.Runner.MaxRetries < 0 {
		return fmt.Errorf("runner.max_retries must not be negative")
	}
	if c.Runner.RetryBackoff < 0 {
		return fmt.Errorf("runner.retry_backoff must not be negative")
	}
	if c.Registry.Dir == "" {
		return fmt.Errorf("registry.dir is a required configuration field")
	}
	if c.Artifacts.DOMDepth <= 0 {
		return fmt.Errorf("artifacts.dom_depth must be a positive integer")
	}
	switch c.Report.Format {
	case "json", "junit", "":
	default:
		return fmt.Errorf("unsupported report.format %q", c.Report.Format)
	}
	return nil
}
