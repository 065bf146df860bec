// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/555Russich/18.fl-auto-response/internal/session"
	"github.com/555Russich/18.fl-auto-response/internal/site"
)

// Default credential variables.
const (
	DefaultLoginEnv    = "LOGIN_PROFI_RU"
	DefaultPasswordEnv = "PASSWORD_PROFI_RU"
)

var validate = validator.New()

// Config represents the responder configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or CLI flags.
type Config struct {
	// Storage
	Store       string   `json:"store,omitempty" yaml:"store,omitempty"`               // Record store DSN
	PatternFile string   `json:"pattern_file,omitempty" yaml:"pattern_file,omitempty"` // Exclusion pattern file
	CookieFile  string   `json:"cookie_file,omitempty" yaml:"cookie_file,omitempty"`   // Saved browser cookies
	CacheTTL    Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`       // Positive store cache, negative disables

	// Logging
	LogFile     string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `json:"development,omitempty" yaml:"development,omitempty"`

	// Browser
	Headless   *bool  `json:"headless,omitempty" yaml:"headless,omitempty"`
	UserAgent  string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	ChromePath string `json:"chrome_path,omitempty" yaml:"chrome_path,omitempty"`

	// Supervisor
	RestartDelay Duration `json:"restart_delay,omitempty" yaml:"restart_delay,omitempty"`
	MaxRestarts  int      `json:"max_restarts,omitempty" yaml:"max_restarts,omitempty" validate:"gte=0"`

	CredentialsEnv CredentialsEnv `json:"credentials_env,omitempty" yaml:"credentials_env,omitempty"`
	Timings        Timings        `json:"timings,omitempty" yaml:"timings,omitempty"`
	Site           site.Site      `json:"site,omitempty" yaml:"site,omitempty"`
}

// CredentialsEnv names the environment variables holding the account secrets.
type CredentialsEnv struct {
	Login    string `json:"login,omitempty" yaml:"login,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Timings are the waits of the engine.
type Timings struct {
	DiscoveryPoll     Duration `json:"discovery_poll,omitempty" yaml:"discovery_poll,omitempty" validate:"gte=0"`
	DiscoveryAttempts int      `json:"discovery_attempts,omitempty" yaml:"discovery_attempts,omitempty" validate:"gte=0"`
	DetailSettle      Duration `json:"detail_settle,omitempty" yaml:"detail_settle,omitempty" validate:"gte=0"`
	DetailRetry       Duration `json:"detail_retry,omitempty" yaml:"detail_retry,omitempty" validate:"gte=0"`
	DetailAttempts    int      `json:"detail_attempts,omitempty" yaml:"detail_attempts,omitempty" validate:"gte=0"`
	ActionStep        Duration `json:"action_step,omitempty" yaml:"action_step,omitempty" validate:"gte=0"`
	LocateTimeout     Duration `json:"locate_timeout,omitempty" yaml:"locate_timeout,omitempty" validate:"gte=0"`
	ScrollPause       Duration `json:"scroll_pause,omitempty" yaml:"scroll_pause,omitempty" validate:"gte=0"`
	IdleSleep         Duration `json:"idle_sleep,omitempty" yaml:"idle_sleep,omitempty" validate:"gte=0"`
	AuthSettle        Duration `json:"auth_settle,omitempty" yaml:"auth_settle,omitempty" validate:"gte=0"`
	ActionTimeout     Duration `json:"action_timeout,omitempty" yaml:"action_timeout,omitempty" validate:"gte=0"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	headless := true
	return Config{
		Store:        "file://orders_id.json",
		PatternFile:  "pattern_bad.regexp",
		CookieFile:   "cookies_profi.json",
		CacheTTL:     Duration(time.Hour),
		LogFile:      "bot.log",
		LogLevel:     "info",
		Headless:     &headless,
		RestartDelay: Duration(5 * time.Second),
		CredentialsEnv: CredentialsEnv{
			Login:    DefaultLoginEnv,
			Password: DefaultPasswordEnv,
		},
		Timings: Timings{
			DiscoveryPoll:     Duration(500 * time.Millisecond),
			DiscoveryAttempts: 3,
			DetailSettle:      Duration(time.Second),
			DetailRetry:       Duration(5 * time.Second),
			DetailAttempts:    3,
			ActionStep:        Duration(500 * time.Millisecond),
			LocateTimeout:     Duration(1500 * time.Millisecond),
			ScrollPause:       Duration(time.Second),
			IdleSleep:         Duration(30 * time.Second),
			AuthSettle:        Duration(3 * time.Second),
			ActionTimeout:     Duration(30 * time.Second),
		},
		Site: site.Default(),
	}
}

// Environment overrides read by FromEnv.
const (
	EnvStore       = "RESPONDER_STORE"
	EnvPatternFile = "RESPONDER_PATTERN_FILE"
	EnvCookieFile  = "RESPONDER_COOKIE_FILE"
	EnvLogFile     = "RESPONDER_LOG_FILE"
	EnvLogLevel    = "RESPONDER_LOG_LEVEL"
	EnvHeadless    = "RESPONDER_HEADLESS"
)

// FromEnv returns the settings given through RESPONDER_* variables. Unset variables leave
// fields empty, so the result is meant to be merged under a loaded config.
func FromEnv() (Config, error) {
	cfg := Config{
		Store:       os.Getenv(EnvStore),
		PatternFile: os.Getenv(EnvPatternFile),
		CookieFile:  os.Getenv(EnvCookieFile),
		LogFile:     os.Getenv(EnvLogFile),
		LogLevel:    os.Getenv(EnvLogLevel),
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, &Error{Field: EnvHeadless, Message: "expected a boolean", Cause: err}
		}
		cfg.Headless = &headless
	}
	return cfg, nil
}

// LoadConfig loads configuration from a JSON file, or a YAML file when the extension is
// .yaml or .yml.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// It expects a config already merged with Defaults, since site controls are required.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &Error{Field: verrs[0].Namespace(), Message: fmt.Sprintf("failed %q check", verrs[0].Tag()), Cause: err}
		}
		return &Error{Field: "config", Message: "invalid", Cause: err}
	}

	if c.Timings.DiscoveryAttempts > 10 {
		return &Error{Field: "timings.discovery_attempts", Message: "discovery must stay bounded, use at most 10"}
	}
	if c.Site.Timezone != "" {
		if _, err := c.Site.Location(); err != nil {
			return &Error{Field: "site.timezone", Message: "unknown timezone", Cause: err}
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	str := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	dur := func(dst *Duration, def Duration) {
		if *dst == 0 {
			*dst = def
		}
	}
	num := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	str(&result.Store, defaults.Store)
	str(&result.PatternFile, defaults.PatternFile)
	str(&result.CookieFile, defaults.CookieFile)
	str(&result.LogFile, defaults.LogFile)
	str(&result.LogLevel, defaults.LogLevel)
	str(&result.UserAgent, defaults.UserAgent)
	str(&result.ChromePath, defaults.ChromePath)
	str(&result.CredentialsEnv.Login, defaults.CredentialsEnv.Login)
	str(&result.CredentialsEnv.Password, defaults.CredentialsEnv.Password)
	dur(&result.CacheTTL, defaults.CacheTTL)
	dur(&result.RestartDelay, defaults.RestartDelay)
	num(&result.MaxRestarts, defaults.MaxRestarts)

	if result.Headless == nil {
		result.Headless = defaults.Headless
	}

	t, d := &result.Timings, defaults.Timings
	dur(&t.DiscoveryPoll, d.DiscoveryPoll)
	num(&t.DiscoveryAttempts, d.DiscoveryAttempts)
	dur(&t.DetailSettle, d.DetailSettle)
	dur(&t.DetailRetry, d.DetailRetry)
	num(&t.DetailAttempts, d.DetailAttempts)
	dur(&t.ActionStep, d.ActionStep)
	dur(&t.LocateTimeout, d.LocateTimeout)
	dur(&t.ScrollPause, d.ScrollPause)
	dur(&t.IdleSleep, d.IdleSleep)
	dur(&t.AuthSettle, d.AuthSettle)
	dur(&t.ActionTimeout, d.ActionTimeout)

	result.Site = result.Site.MergeWithDefaults()

	// Bool fields other than Headless cannot distinguish unset from false,
	// so CLI flags always win for them.

	return result
}

// HeadlessOrDefault reports the headless setting, true when unset.
func (c *Config) HeadlessOrDefault() bool {
	return c.Headless == nil || *c.Headless
}

// Credentials reads the account secrets from the environment. Both must be set.
func (c *Config) Credentials() (session.Credentials, error) {
	loginEnv := c.CredentialsEnv.Login
	if loginEnv == "" {
		loginEnv = DefaultLoginEnv
	}
	passwordEnv := c.CredentialsEnv.Password
	if passwordEnv == "" {
		passwordEnv = DefaultPasswordEnv
	}

	creds := session.Credentials{
		Login:    os.Getenv(loginEnv),
		Password: os.Getenv(passwordEnv),
	}
	var missing []string
	if creds.Login == "" {
		missing = append(missing, loginEnv)
	}
	if creds.Password == "" {
		missing = append(missing, passwordEnv)
	}
	if len(missing) > 0 {
		return session.Credentials{}, &Error{
			Field:   "credentials",
			Message: "environment variables not set: " + strings.Join(missing, ", "),
			Cause:   session.ErrMissingCredentials,
		}
	}
	return creds, nil
}
