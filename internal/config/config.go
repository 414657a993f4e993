// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache      bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// LLMProvider defines the supported reasoning oracle providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig defines the configuration for the reasoning oracle.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// SlotConfig names one piece of information the goal text (or session
// history) must contain before the planner will act, plus the patterns
// that detect it.
type SlotConfig struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
}

// AgentConfig holds settings for the decision loop and its safety rails.
type AgentConfig struct {
	LLM           LLMConfig     `mapstructure:"llm" yaml:"llm"`
	MaxIterations int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	PlanTimeout   time.Duration `mapstructure:"plan_timeout" yaml:"plan_timeout"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`

	// AllowedHosts is the domain allow-list. A candidate whose resolved
	// host falls outside it is discarded before scoring.
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	// FinalizePhrases identify the final-confirmation controls that must
	// be detected but never clicked.
	FinalizePhrases []string `mapstructure:"finalize_phrases" yaml:"finalize_phrases"`
	// ForbiddenPhrases identify controls the planner must never target
	// (login, signup, payment, messaging).
	ForbiddenPhrases []string `mapstructure:"forbidden_phrases" yaml:"forbidden_phrases"`
	// BlockedPatterns are page-text fragments that indicate an error or
	// blocked state.
	BlockedPatterns []string     `mapstructure:"blocked_patterns" yaml:"blocked_patterns"`
	RequiredSlots   []SlotConfig `mapstructure:"required_slots" yaml:"required_slots"`
}

// OutputConfig controls the per-iteration artifact recorder.
type OutputConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	SaveScreenshots bool   `mapstructure:"save_screenshots" yaml:"save_screenshots"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tablepilot")
	v.SetDefault("logger.log_file", "tablepilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")

	// -- Agent --
	v.SetDefault("agent.llm.provider", "gemini")
	v.SetDefault("agent.llm.model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.api_timeout", "60s")
	v.SetDefault("agent.llm.temperature", 0.1)
	v.SetDefault("agent.llm.max_tokens", 8192)
	v.SetDefault("agent.max_iterations", 15)
	v.SetDefault("agent.plan_timeout", "90s")
	v.SetDefault("agent.action_timeout", "5s")
	v.SetDefault("agent.allowed_hosts", []string{"opentable.com"})
	v.SetDefault("agent.finalize_phrases", []string{
		"complete reservation",
		"confirm reservation",
		"complete booking",
		"confirm booking",
		"book now",
		"reserve now",
	})
	v.SetDefault("agent.forbidden_phrases", []string{
		"sign in",
		"log in",
		"sign up",
		"create account",
		"message restaurant",
		"confirm payment",
	})
	v.SetDefault("agent.blocked_patterns", []string{
		"error occurred",
		"something went wrong",
		"try again",
		"page not found",
		"404",
		"access denied",
		"blocked",
	})
	v.SetDefault("agent.required_slots", []map[string]any{
		{"name": "time", "patterns": []string{`(?i)\b\d{1,2}(:\d{2})?\s*[ap]\.?m\.?\b`, `\b([01]?\d|2[0-3]):[0-5]\d\b`}},
		{"name": "party_size", "patterns": []string{`(?i)\b\d+\s*(people|person|guests?)\b`, `(?i)\bparty of \d+\b`}},
	})

	// -- Output --
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.save_screenshots", true)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("agent.llm.api_key", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Agent.LLM.APIKey == "" {
		cfg.Agent.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be a positive integer")
	}
	if len(c.Agent.AllowedHosts) == 0 {
		return fmt.Errorf("agent.allowed_hosts must not be empty")
	}
	for _, h := range c.Agent.AllowedHosts {
		if strings.Contains(h, "://") {
			u, err := url.Parse(h)
			if err != nil || u.Host == "" {
				return fmt.Errorf("agent.allowed_hosts entry %q is not a valid host", h)
			}
		}
	}
	if len(c.Agent.FinalizePhrases) == 0 {
		return fmt.Errorf("agent.finalize_phrases must not be empty")
	}
	if c.Agent.PlanTimeout <= 0 {
		return fmt.Errorf("agent.plan_timeout must be a positive duration")
	}
	return nil
}
