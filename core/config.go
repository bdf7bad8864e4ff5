package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the effective configuration for one RunService/QueueService
// invocation. It is resolved in four layers — defaults, the base dir's
// config.yaml, environment variables, then functional options (which in
// cmd/hermes carry CLI flag overrides) — with each layer taking priority
// over the last.
type Config struct {
	// BaseDir is the Hermes home directory holding task/, history/, log/,
	// debug_log/ and cache/.
	BaseDir string `env:"HERMES_BASE_DIR" default:"~/.hermes"`

	Model    string `env:"HERMES_MODEL" default:"llama3"`
	Language string `env:"HERMES_LANGUAGE" default:"en"`

	QueryCount   int `env:"HERMES_QUERY_COUNT" default:"3"`
	MinSources   int `env:"HERMES_MIN_SOURCES" default:"2"`
	MaxSources   int `env:"HERMES_MAX_SOURCES" default:"5"`
	MinValidation int `env:"HERMES_MIN_VALIDATION" default:"0"`
	MaxValidation int `env:"HERMES_MAX_VALIDATION" default:"2"`

	QualityThreshold float64 `env:"HERMES_QUALITY_THRESHOLD" default:"0.75"`

	SearchWorkers int `env:"HERMES_SEARCH_WORKERS" default:"4"`
	TopFetch      int `env:"HERMES_TOP_FETCH" default:"3"`
	RetryAttempts int `env:"HERMES_RETRY_ATTEMPTS" default:"3"`

	LLMTimeout     time.Duration `env:"HERMES_LLM_TIMEOUT" default:"60s"`
	SearchTimeout  time.Duration `env:"HERMES_SEARCH_TIMEOUT" default:"30s"`
	FetchTimeout   time.Duration `env:"HERMES_FETCH_TIMEOUT" default:"10s"`
	RobotsTimeout  time.Duration `env:"HERMES_ROBOTS_TIMEOUT" default:"5s"`
	CacheTTL       time.Duration `env:"HERMES_CACHE_TTL" default:"1h"`
	MaxRecursion   int           `env:"HERMES_MAX_RECURSION" default:"50"`

	LLMEndpoint    string `env:"HERMES_LLM_ENDPOINT" default:"http://localhost:11434/api/chat"`
	SearchEndpoint string `env:"HERMES_SEARCH_ENDPOINT" default:""`

	RedisAddr string `env:"HERMES_REDIS_ADDR" default:""`

	LogLevel  string `env:"HERMES_LOG_LEVEL" default:"info"`

	logger Logger
}

// Option mutates a Config during construction.
type Option func(*Config)

// DefaultConfig returns the zero-override configuration.
func DefaultConfig() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

func applyDefaults(c *Config) {
	c.BaseDir = "~/.hermes"
	c.Model = "llama3"
	c.Language = "en"
	c.QueryCount = 3
	c.MinSources = 2
	c.MaxSources = 5
	c.MinValidation = 0
	c.MaxValidation = 2
	c.QualityThreshold = 0.75
	c.SearchWorkers = 4
	c.TopFetch = 3
	c.RetryAttempts = 3
	c.LLMTimeout = 60 * time.Second
	c.SearchTimeout = 30 * time.Second
	c.FetchTimeout = 10 * time.Second
	c.RobotsTimeout = 5 * time.Second
	c.CacheTTL = time.Hour
	c.MaxRecursion = 50
	c.LLMEndpoint = "http://localhost:11434/api/chat"
	c.LogLevel = "info"
}

// LoadFromEnv overlays environment variables onto c, layer 2 of the
// resolution order. Malformed values are logged (if a logger is attached)
// and otherwise ignored, leaving the prior layer's value in place.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("HERMES_BASE_DIR"); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv("HERMES_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("HERMES_LANGUAGE"); v != "" {
		c.Language = v
	}
	if v := os.Getenv("HERMES_QUERY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueryCount = n
		} else {
			c.warn("HERMES_QUERY_COUNT", v, err)
		}
	}
	if v := os.Getenv("HERMES_MIN_SOURCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinSources = n
		} else {
			c.warn("HERMES_MIN_SOURCES", v, err)
		}
	}
	if v := os.Getenv("HERMES_MAX_SOURCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxSources = n
		} else {
			c.warn("HERMES_MAX_SOURCES", v, err)
		}
	}
	if v := os.Getenv("HERMES_MIN_VALIDATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinValidation = n
		} else {
			c.warn("HERMES_MIN_VALIDATION", v, err)
		}
	}
	if v := os.Getenv("HERMES_MAX_VALIDATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxValidation = n
		} else {
			c.warn("HERMES_MAX_VALIDATION", v, err)
		}
	}
	if v := os.Getenv("HERMES_QUALITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.QualityThreshold = f
		} else {
			c.warn("HERMES_QUALITY_THRESHOLD", v, err)
		}
	}
	if v := os.Getenv("HERMES_SEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SearchWorkers = n
		} else {
			c.warn("HERMES_SEARCH_WORKERS", v, err)
		}
	}
	if v := os.Getenv("HERMES_TOP_FETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TopFetch = n
		} else {
			c.warn("HERMES_TOP_FETCH", v, err)
		}
	}
	if v := os.Getenv("HERMES_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryAttempts = n
		} else {
			c.warn("HERMES_RETRY_ATTEMPTS", v, err)
		}
	}
	if v := os.Getenv("HERMES_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LLMTimeout = d
		} else {
			c.warn("HERMES_LLM_TIMEOUT", v, err)
		}
	}
	if v := os.Getenv("HERMES_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SearchTimeout = d
		} else {
			c.warn("HERMES_SEARCH_TIMEOUT", v, err)
		}
	}
	if v := os.Getenv("HERMES_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.FetchTimeout = d
		} else {
			c.warn("HERMES_FETCH_TIMEOUT", v, err)
		}
	}
	if v := os.Getenv("HERMES_ROBOTS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RobotsTimeout = d
		} else {
			c.warn("HERMES_ROBOTS_TIMEOUT", v, err)
		}
	}
	if v := os.Getenv("HERMES_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CacheTTL = d
		} else {
			c.warn("HERMES_CACHE_TTL", v, err)
		}
	}
	if v := os.Getenv("HERMES_MAX_RECURSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRecursion = n
		} else {
			c.warn("HERMES_MAX_RECURSION", v, err)
		}
	}
	if v := os.Getenv("HERMES_LLM_ENDPOINT"); v != "" {
		c.LLMEndpoint = v
	}
	if v := os.Getenv("HERMES_SEARCH_ENDPOINT"); v != "" {
		c.SearchEndpoint = v
	}
	if v := os.Getenv("HERMES_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("HERMES_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) warn(envVar, value string, err error) {
	if c.logger != nil {
		c.logger.Warn("invalid environment value", map[string]interface{}{
			"env": envVar, "value": value, "error": err.Error(),
		})
	}
}

// fileConfig mirrors the subset of Config that config.yaml may override,
// using the field names from spec §6.3's options block.
type fileConfig struct {
	Model            string  `yaml:"model"`
	Language         string  `yaml:"language"`
	QueryCount       int     `yaml:"query_count"`
	MinSources       int     `yaml:"min_sources"`
	MaxSources       int     `yaml:"max_sources"`
	MinValidation    int     `yaml:"min_validation"`
	MaxValidation    int     `yaml:"max_validation"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// LoadFromFile merges config.yaml into c. Every non-zero value in the file
// overwrites the current field, and min_validation is always copied (an
// absent key sets it to 0), so the resolution order defaults < file < env <
// options holds only when LoadFromFile runs before LoadFromEnv and the
// options. A missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return NewError("Config.LoadFromFile", KindFatal, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return NewError("Config.LoadFromFile", KindInput, err)
	}
	if fc.Model != "" {
		c.Model = fc.Model
	}
	if fc.Language != "" {
		c.Language = fc.Language
	}
	if fc.QueryCount > 0 {
		c.QueryCount = fc.QueryCount
	}
	if fc.MinSources > 0 {
		c.MinSources = fc.MinSources
	}
	if fc.MaxSources > 0 {
		c.MaxSources = fc.MaxSources
	}
	if fc.MaxValidation > 0 {
		c.MaxValidation = fc.MaxValidation
	}
	c.MinValidation = fc.MinValidation
	if fc.QualityThreshold > 0 {
		c.QualityThreshold = fc.QualityThreshold
	}
	return nil
}

// Validate enforces the ordering constraints from spec §3.1.
func (c *Config) Validate() error {
	if c.QueryCount < 1 {
		return NewError("Config.Validate", KindInput, fmt.Errorf("query_count must be >= 1"))
	}
	if c.MinSources < 0 {
		return NewError("Config.Validate", KindInput, fmt.Errorf("min_sources must be >= 0"))
	}
	if c.MaxSources < c.MinSources {
		return NewError("Config.Validate", KindInput, fmt.Errorf("max_sources must be >= min_sources"))
	}
	if c.MinValidation < 0 {
		return NewError("Config.Validate", KindInput, fmt.Errorf("min_validation must be >= 0"))
	}
	if c.MaxValidation < c.MinValidation {
		return NewError("Config.Validate", KindInput, fmt.Errorf("max_validation must be >= min_validation"))
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return NewError("Config.Validate", KindInput, fmt.Errorf("quality_threshold must be within [0,1]"))
	}
	if c.Language != "ja" && c.Language != "en" {
		return NewError("Config.Validate", KindInput, fmt.Errorf("language must be ja or en"))
	}
	return nil
}

// ResolvedBaseDir expands a leading "~" against the user's home directory.
func (c *Config) ResolvedBaseDir() (string, error) {
	if c.BaseDir == "" || c.BaseDir[0] != '~' {
		return c.BaseDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, c.BaseDir[1:]), nil
}

// NewConfig resolves defaults, then config.yaml (if present in BaseDir),
// then environment variables, then opts, in that priority order.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()

	if dir, err := c.ResolvedBaseDir(); err == nil {
		_ = c.LoadFromFile(filepath.Join(dir, "config.yaml"))
	}
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func WithBaseDir(dir string) Option        { return func(c *Config) { c.BaseDir = dir } }
func WithModel(model string) Option        { return func(c *Config) { c.Model = model } }
func WithLanguage(lang string) Option      { return func(c *Config) { c.Language = lang } }
func WithQueryCount(n int) Option          { return func(c *Config) { c.QueryCount = n } }
func WithSources(min, max int) Option      { return func(c *Config) { c.MinSources = min; c.MaxSources = max } }
func WithValidation(min, max int) Option   { return func(c *Config) { c.MinValidation = min; c.MaxValidation = max } }
func WithQualityThreshold(t float64) Option { return func(c *Config) { c.QualityThreshold = t } }
func WithLogger(logger Logger) Option      { return func(c *Config) { c.logger = logger } }
func WithRedisAddr(addr string) Option     { return func(c *Config) { c.RedisAddr = addr } }
