// Package config provides configuration loading and validation for the backfill agent.
//
// Values come from an optional YAML file and are then overridden by the
// environment, so deployments can keep secrets out of the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and environment are read.
const (
	DefaultDeadline      = 15 * time.Minute
	DefaultRadiusMiles   = 10.0
	DefaultSweepInterval = 30 * time.Second
	DefaultPort          = 8080
	DefaultLogLevel      = "info"
	DefaultLLMProvider   = "gemini"
	DefaultRatePerMinute = 120
)

// Config is the complete runtime configuration.
type Config struct {
	DatabaseURL  string         `yaml:"database_url"`
	Redis        RedisConfig    `yaml:"redis"`
	Backfill     BackfillConfig `yaml:"backfill"`
	LLM          LLMConfig      `yaml:"llm"`
	Twilio       TwilioConfig   `yaml:"twilio"`
	Vapi         VapiConfig     `yaml:"vapi"`
	RateLimit    RateLimit      `yaml:"rate_limit"`
	ManagerPhone string         `yaml:"manager_phone" validate:"omitempty,e164"`
	Port         int            `yaml:"port" validate:"min=1,max=65535"`
	LogLevel     string         `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// RedisConfig locates the signal bus. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

// BackfillConfig tunes the run lifecycle.
type BackfillConfig struct {
	Deadline      time.Duration `yaml:"deadline" validate:"min=1s"`
	RadiusMiles   float64       `yaml:"radius_miles" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"min=1s"`
}

// LLMConfig selects the ranking oracle. An empty APIKey disables it.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"oneof=gemini openai anthropic"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// TwilioConfig holds SMS gateway credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number" validate:"omitempty,e164"`
}

// VapiConfig holds voice gateway credentials.
type VapiConfig struct {
	APIKey        string `yaml:"api_key"`
	PhoneNumberID string `yaml:"phone_number_id"`
	AssistantID   string `yaml:"assistant_id"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url" validate:"omitempty,url"`
}

// RateLimit throttles write and webhook routes per client address.
type RateLimit struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"per_minute" validate:"min=0"`
}

// Default returns a Config holding only defaults.
func Default() *Config {
	return &Config{
		Backfill: BackfillConfig{
			Deadline:      DefaultDeadline,
			RadiusMiles:   DefaultRadiusMiles,
			SweepInterval: DefaultSweepInterval,
		},
		LLM:       LLMConfig{Provider: DefaultLLMProvider},
		RateLimit: RateLimit{Enabled: true, PerMinute: DefaultRatePerMinute},
		Port:      DefaultPort,
		LogLevel:  DefaultLogLevel,
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)

	dur("BACKFILL_DEADLINE", &c.Backfill.Deadline)
	dur("SWEEP_INTERVAL", &c.Backfill.SweepInterval)
	if v, ok := lookup("BACKFILL_RADIUS_MILES"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("BACKFILL_RADIUS_MILES: %v", err))
		} else {
			c.Backfill.RadiusMiles = f
		}
	}

	str("LLM_PROVIDER", &c.LLM.Provider)
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	str("LLM_MODEL", &c.LLM.Model)
	// The generic key wins; otherwise use the key named after the provider.
	str(providerKeyEnv(c.LLM.Provider), &c.LLM.APIKey)
	str("LLM_API_KEY", &c.LLM.APIKey)

	str("TWILIO_ACCOUNT_SID", &c.Twilio.AccountSID)
	str("TWILIO_AUTH_TOKEN", &c.Twilio.AuthToken)
	str("TWILIO_FROM_NUMBER", &c.Twilio.FromNumber)

	str("VAPI_API_KEY", &c.Vapi.APIKey)
	str("VAPI_PHONE_NUMBER_ID", &c.Vapi.PhoneNumberID)
	str("VAPI_ASSISTANT_ID", &c.Vapi.AssistantID)
	str("VAPI_WEBHOOK_SECRET", &c.Vapi.WebhookSecret)
	str("VAPI_BASE_URL", &c.Vapi.BaseURL)

	if v, ok := lookup("RATE_LIMIT_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("RATE_LIMIT_ENABLED: %v", err))
		} else {
			c.RateLimit.Enabled = b
		}
	}
	num("RATE_LIMIT_PER_MINUTE", &c.RateLimit.PerMinute)

	str("MANAGER_PHONE_NUMBER", &c.ManagerPhone)
	num("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	c.LogLevel = strings.ToLower(c.LogLevel)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func providerKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// SMSConfigured reports whether all Twilio credentials are present.
func (c *Config) SMSConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.FromNumber != ""
}

// VoiceConfigured reports whether all Vapi settings are present.
func (c *Config) VoiceConfigured() bool {
	return c.Vapi.APIKey != "" && c.Vapi.PhoneNumberID != "" && c.Vapi.AssistantID != ""
}

// OracleConfigured reports whether an LLM key is available for ranking.
func (c *Config) OracleConfigured() bool {
	return c.LLM.APIKey != ""
}

// BusConfigured reports whether signals go through Redis.
func (c *Config) BusConfigured() bool {
	return c.Redis.Addr != ""
}
