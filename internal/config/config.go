package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/setlist/internal/compose"
	"github.com/lehigh-university-libraries/setlist/internal/export"
	"github.com/lehigh-university-libraries/setlist/internal/images"
	"github.com/lehigh-university-libraries/setlist/internal/retrieval"
)

// DefaultPath is read when no --config flag is given and the file exists
const DefaultPath = "setlist.yaml"

// EnvPrefix prefixes every environment override
const EnvPrefix = "SETLIST_"

// Strategy is the YAML form of a retrieval strategy
type Strategy struct {
	Name    string            `yaml:"name"`
	Base    string            `yaml:"base,omitempty"`
	Suffix  string            `yaml:"suffix,omitempty"`
	Hosts   []string          `yaml:"hosts,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// Retrieval settings
type Retrieval struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxBytes    int64         `yaml:"max_bytes"`
	UserAgent   string        `yaml:"user_agent"`
	Strategies  []Strategy    `yaml:"strategies"`
}

// Normalize settings
type Normalize struct {
	Enabled   bool `yaml:"enabled"`
	Quality   int  `yaml:"quality"`
	MaxPixels int  `yaml:"max_pixels"`
}

// Document settings
type Document struct {
	PageSize    string  `yaml:"page_size"`
	Orientation string  `yaml:"orientation"`
	Unit        string  `yaml:"unit"`
	Width       float64 `yaml:"width,omitempty"`
	Height      float64 `yaml:"height,omitempty"`
	Title       string  `yaml:"title"`
	Creator     string  `yaml:"creator"`
	AutoPrint   bool    `yaml:"auto_print"`
}

// Export settings
type Export struct {
	OutputDir string `yaml:"output_dir"`
	Prefix    string `yaml:"prefix"`
	Report    string `yaml:"report,omitempty"`
	Verify    bool   `yaml:"verify"`
}

// Config represents the YAML configuration structure
type Config struct {
	Catalog   string    `yaml:"catalog"`
	LogLevel  string    `yaml:"log_level"`
	Retrieval Retrieval `yaml:"retrieval"`
	Normalize Normalize `yaml:"normalize"`
	Document  Document  `yaml:"document"`
	Export    Export    `yaml:"export"`
}

// Default returns the built-in configuration
func Default() *Config {
	var strategies []Strategy
	for _, s := range retrieval.DefaultStrategies() {
		strategies = append(strategies, fromStrategy(s))
	}

	return &Config{
		LogLevel: "info",
		Retrieval: Retrieval{
			Concurrency: 6,
			Timeout:     retrieval.DefaultAttemptTimeout,
			MaxBytes:    images.DefaultMaxBytes,
			UserAgent:   images.DefaultUserAgent,
			Strategies:  strategies,
		},
		Normalize: Normalize{
			Enabled:   true,
			Quality:   images.DefaultQuality,
			MaxPixels: images.DefaultMaxPixels,
		},
		Document: Document{
			PageSize:    "a4",
			Orientation: "portrait",
			Unit:        "mm",
			Title:       "Setlist",
			Creator:     "setlist",
			AutoPrint:   true,
		},
		Export: Export{
			OutputDir: ".",
			Prefix:    export.DefaultPrefix,
			Verify:    true,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path reads DefaultPath when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from SETLIST_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("CATALOG", &c.Catalog)
	str("LOG_LEVEL", &c.LogLevel)
	str("USER_AGENT", &c.Retrieval.UserAgent)
	str("PAGE_SIZE", &c.Document.PageSize)
	str("ORIENTATION", &c.Document.Orientation)
	str("UNIT", &c.Document.Unit)
	str("OUTPUT_DIR", &c.Export.OutputDir)
	str("PREFIX", &c.Export.Prefix)
	str("REPORT", &c.Export.Report)

	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Retrieval.Timeout = d
	}

	for key, dst := range map[string]*int{
		"CONCURRENCY": &c.Retrieval.Concurrency,
		"QUALITY":     &c.Normalize.Quality,
		"MAX_PIXELS":  &c.Normalize.MaxPixels,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*bool{
		"NORMALIZE":  &c.Normalize.Enabled,
		"AUTO_PRINT": &c.Document.AutoPrint,
		"VERIFY":     &c.Export.Verify,
	} {
		if err := flag(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Retrieval.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Retrieval.Concurrency)
	}
	if c.Retrieval.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Retrieval.Timeout)
	}
	if c.Normalize.Quality < 1 || c.Normalize.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Normalize.Quality)
	}
	if len(c.Retrieval.Strategies) == 0 {
		return errors.New("at least one retrieval strategy is required")
	}
	for _, s := range c.Strategies() {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if _, err := c.PageSize(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Export.Prefix) == "" {
		return errors.New("export prefix is required")
	}
	return nil
}

// Strategies converts the configured strategies into retrieval strategies
func (c *Config) Strategies() []retrieval.Strategy {
	result := make([]retrieval.Strategy, 0, len(c.Retrieval.Strategies))
	for _, s := range c.Retrieval.Strategies {
		var header http.Header
		if len(s.Headers) > 0 {
			header = make(http.Header, len(s.Headers))
			for k, v := range s.Headers {
				header.Set(k, v)
			}
		}
		result = append(result, retrieval.Strategy{
			Name:    s.Name,
			Base:    s.Base,
			Suffix:  s.Suffix,
			Hosts:   s.Hosts,
			Header:  header,
			Timeout: s.Timeout,
		})
	}
	return result
}

// PageSize resolves the document page settings
func (c *Config) PageSize() (compose.PageSize, error) {
	d := c.Document
	return compose.ResolvePageSize(d.PageSize, d.Orientation, d.Unit, d.Width, d.Height)
}

// Normalizer returns the image normalizer selected by the configuration. With
// normalization off, images the PDF writer cannot embed as fetched are still
// re-encoded rather than dropped.
func (c *Config) Normalizer() images.Normalizer {
	jpeg := images.NewJPEGNormalizer(c.Normalize.Quality)
	jpeg.MaxPixels = c.Normalize.MaxPixels
	if !c.Normalize.Enabled {
		return images.Passthrough{Fallback: jpeg, MaxPixels: c.Normalize.MaxPixels}
	}
	return jpeg
}

// Fetcher returns an HTTP fetcher using the configured limits
func (c *Config) Fetcher() *images.Fetcher {
	f := images.NewFetcher()
	if c.Retrieval.UserAgent != "" {
		f.UserAgent = c.Retrieval.UserAgent
	}
	if c.Retrieval.MaxBytes > 0 {
		f.MaxBytes = c.Retrieval.MaxBytes
	}
	return f
}

// ParseLevel maps a log level name onto slog
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

func fromStrategy(s retrieval.Strategy) Strategy {
	result := Strategy{
		Name:    s.Name,
		Base:    s.Base,
		Suffix:  s.Suffix,
		Hosts:   s.Hosts,
		Timeout: s.Timeout,
	}
	if len(s.Header) > 0 {
		result.Headers = make(map[string]string, len(s.Header))
		for k := range s.Header {
			result.Headers[k] = s.Header.Get(k)
		}
	}
	return result
}
