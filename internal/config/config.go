package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rivalscope/rivalscope/pkg/analysis"
	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/rivalscope/rivalscope/pkg/matcher"
	"github.com/rivalscope/rivalscope/pkg/pricing"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// RIVALSCOPE_EXTRACTION_API_KEY.
const EnvPrefix = "RIVALSCOPE"

// Config holds all configuration for the engine.
type Config struct {
	DBPath     string           `mapstructure:"dbpath"`
	LogLevel   string           `mapstructure:"loglevel"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Matcher    matcher.Config   `mapstructure:"matcher"`
	Pricing    pricing.Config   `mapstructure:"pricing"`
	Analysis   analysis.Config  `mapstructure:"analysis"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

// ExtractionConfig configures the hosted extraction service.
type ExtractionConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	// Budget is the credit ceiling of one run. Zero means unlimited.
	Budget int `mapstructure:"budget"`
}

type PipelineConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	URLConcurrency int           `mapstructure:"url_concurrency"`
	MaxURLs        int           `mapstructure:"max_urls"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	AlertLimit     int           `mapstructure:"alert_limit"`
	Schedule       string        `mapstructure:"schedule"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Retries    int           `mapstructure:"retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Load applies defaults and environment overrides to v and decodes the
// result. A config file, if any, must already be read into v.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// never appear in a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("dbpath", "rivalscope.db")
	v.SetDefault("loglevel", "info")

	v.SetDefault("extraction.api_key", "")
	v.SetDefault("extraction.base_url", "https://api.firecrawl.dev")
	v.SetDefault("extraction.timeout", 30*time.Second)
	v.SetDefault("extraction.max_retries", 3)
	v.SetDefault("extraction.requests_per_second", 2.0)
	v.SetDefault("extraction.burst", 1)
	v.SetDefault("extraction.budget", 500)

	v.SetDefault("pipeline.concurrency", 3)
	v.SetDefault("pipeline.url_concurrency", 2)
	v.SetDefault("pipeline.max_urls", 5)
	v.SetDefault("pipeline.stale_after", 7*24*time.Hour)
	v.SetDefault("pipeline.alert_limit", 20)
	v.SetDefault("pipeline.schedule", "0 6 * * *")

	m := matcher.DefaultConfig()
	v.SetDefault("matcher.weights.technology", m.Weights.Technology)
	v.SetDefault("matcher.weights.capacity", m.Weights.Capacity)
	v.SetDefault("matcher.weights.price", m.Weights.Price)
	v.SetDefault("matcher.weights.product_type", m.Weights.ProductType)
	v.SetDefault("matcher.min_confidence", m.MinConfidence)

	p := pricing.DefaultConfig()
	v.SetDefault("pricing.major_threshold", p.MajorThreshold)
	v.SetDefault("pricing.critical_threshold", p.CriticalThreshold)

	a := analysis.DefaultConfig()
	v.SetDefault("analysis.gap_threshold", a.GapThreshold)
	v.SetDefault("analysis.headroom_threshold", a.HeadroomThreshold)
	v.SetDefault("analysis.position_band", a.PositionBand)
	v.SetDefault("analysis.trend_window", a.TrendWindow)
	v.SetDefault("analysis.trend_band", a.TrendBand)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.retries", 3)
	v.SetDefault("notify.timeout", 10*time.Second)
}

func validate(c *Config) error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("dbpath is required")
	}
	if err := checkURL("extraction.base_url", c.Extraction.BaseURL); err != nil {
		return err
	}
	if c.Extraction.Budget < 0 {
		return errors.New("extraction.budget must not be negative")
	}
	if c.Extraction.Timeout <= 0 {
		return errors.New("extraction.timeout must be positive")
	}
	if c.Extraction.RequestsPerSecond < 0 {
		return errors.New("extraction.requests_per_second must not be negative")
	}
	if c.Pipeline.Concurrency < 1 {
		return errors.New("pipeline.concurrency must be at least 1")
	}
	if c.Pipeline.StaleAfter <= 0 {
		return errors.New("pipeline.stale_after must be positive")
	}
	if err := c.Matcher.Validate(); err != nil {
		return fmt.Errorf("matcher: %w", err)
	}
	if _, err := pricing.New(c.Pricing); err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	if c.Analysis.GapThreshold < 0 || c.Analysis.HeadroomThreshold < 0 || c.Analysis.PositionBand < 0 || c.Analysis.TrendBand < 0 {
		return errors.New("analysis thresholds must not be negative")
	}
	if c.Notify.WebhookURL != "" {
		if err := checkURL("notify.webhook_url", c.Notify.WebhookURL); err != nil {
			return err
		}
	}
	return nil
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

// ExtractionClient returns the client configuration for the extraction
// package. The logger is left for the caller.
func (c *Config) ExtractionClient() extraction.Config {
	return extraction.Config{
		APIKey:            c.Extraction.APIKey,
		BaseURL:           c.Extraction.BaseURL,
		Timeout:           c.Extraction.Timeout,
		MaxRetries:        c.Extraction.MaxRetries,
		RequestsPerSecond: c.Extraction.RequestsPerSecond,
		Burst:             c.Extraction.Burst,
		BatchConcurrency:  c.Pipeline.URLConcurrency,
	}
}
