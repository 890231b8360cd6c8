// Copyright (c) Hustler Authors.
// Licensed under the MIT License.

// Package config loads hustler configuration from YAML files with
// environment-variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("hustler.yaml").
//	    Load()
//
// Precedence: defaults, then the YAML file, then environment variables
// (HUSTLER_ prefix).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hustlerlabs/hustler/llm"
	"github.com/hustlerlabs/hustler/retry"
	"github.com/hustlerlabs/hustler/types"
)

// Config is the complete hustler configuration.
type Config struct {
	// Engine holds the default retry policy for task execution.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// LLM configures the chat-completion collaborator.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// EngineConfig holds the default retry policy for task execution.
type EngineConfig struct {
	// Total attempts per task execution, >= 1.
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// Delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// Exponential backoff factor.
	Multiplier float64 `yaml:"multiplier" env:"MULTIPLIER"`
	// Cap on the computed delay, 0 means uncapped.
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// Random jitter added to each delay.
	Jitter time.Duration `yaml:"jitter" env:"JITTER"`
}

// Policy builds the retry policy described by this config.
func (e EngineConfig) Policy() *retry.Policy {
	return &retry.Policy{
		MaxAttempts:  e.MaxAttempts,
		InitialDelay: e.InitialDelay,
		Multiplier:   e.Multiplier,
		MaxDelay:     e.MaxDelay,
		Jitter:       e.Jitter,
	}
}

// LLMConfig configures the chat-completion collaborator.
type LLMConfig struct {
	// Provider preset: openrouter, openai, ollama, custom.
	Provider string `yaml:"provider" env:"PROVIDER"`
	// Default model identifier.
	Model string `yaml:"model" env:"MODEL"`
	// API key; falls back to <PROVIDER>_API_KEY.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Endpoint override.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Per-request timeout.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Client-side request rate limit, 0 disables.
	RPS float64 `yaml:"rps" env:"RPS"`
}

// Universal builds the provider config described by this config.
func (l LLMConfig) Universal() llm.UniversalConfig {
	return llm.UniversalConfig{
		Provider: l.Provider,
		APIKey:   l.APIKey,
		BaseURL:  l.BaseURL,
		Timeout:  l.Timeout,
		RPS:      l.RPS,
	}
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: llm.ProviderOpenRouter,
			Timeout:  60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports a CONFIGURATION error describing every violation.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.MaxAttempts < 1 {
		errs = append(errs, "engine.max_attempts must be >= 1")
	}
	if c.Engine.InitialDelay < 0 {
		errs = append(errs, "engine.initial_delay must be >= 0")
	}
	if c.Engine.Multiplier != 0 && c.Engine.Multiplier < 1 {
		errs = append(errs, "engine.multiplier must be >= 1")
	}
	if c.LLM.RPS < 0 {
		errs = append(errs, "llm.rps must be >= 0")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug/info/warn/error", c.Log.Level))
	}

	if len(errs) > 0 {
		return types.NewConfigurationError("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the HUSTLER env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "HUSTLER"}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment-variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends an extra validation pass.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then YAML, then environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file means defaults.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}

// MustLoad loads configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
