// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/textstream/lib/scheduler"
	"github.com/bureau-foundation/textstream/lib/statusline"
	"github.com/bureau-foundation/textstream/lib/transport"
	"github.com/bureau-foundation/textstream/stream"
)

// EnvironmentVariable names the configuration file for [Load].
const EnvironmentVariable = "TEXTSTREAM_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Backend kinds.
const (
	BackendMatrix = "matrix"
	BackendSlack  = "slack"
	BackendMemory = "memory"
)

// Duration is a time.Duration written as a string such as "500ms" or
// "2.5s" in every supported file format.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for textstream.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment" toml:"environment" json:"environment"`

	Backend   BackendConfig   `yaml:"backend" toml:"backend" json:"backend"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler" json:"scheduler"`
	Transport TransportConfig `yaml:"transport" toml:"transport" json:"transport"`
	Session   SessionConfig   `yaml:"session" toml:"session" json:"session"`
	Status    StatusConfig    `yaml:"status" toml:"status" json:"status"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" json:"logging"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *Overrides `yaml:"development,omitempty" toml:"development,omitempty" json:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty" toml:"staging,omitempty" json:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty" toml:"production,omitempty" json:"production,omitempty"`
}

// Overrides contains the sections that can be overridden per environment.
type Overrides struct {
	Backend   *BackendConfig   `yaml:"backend,omitempty" toml:"backend,omitempty" json:"backend,omitempty"`
	Scheduler *SchedulerConfig `yaml:"scheduler,omitempty" toml:"scheduler,omitempty" json:"scheduler,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty" toml:"transport,omitempty" json:"transport,omitempty"`
	Logging   *LoggingConfig   `yaml:"logging,omitempty" toml:"logging,omitempty" json:"logging,omitempty"`
}

// BackendConfig selects and configures the chat backend.
type BackendConfig struct {
	// Kind is matrix, slack or memory.
	// Default: memory
	Kind string `yaml:"kind" toml:"kind" json:"kind"`

	Matrix MatrixConfig `yaml:"matrix" toml:"matrix" json:"matrix"`
	Slack  SlackConfig  `yaml:"slack" toml:"slack" json:"slack"`
}

// MatrixConfig configures the Matrix backend.
type MatrixConfig struct {
	// HomeserverURL is the client-server API base, e.g. https://matrix.example.org.
	HomeserverURL string `yaml:"homeserver_url" toml:"homeserver_url" json:"homeserver_url"`

	// AccessToken is usually a ${VAR} reference rather than a literal.
	// Default: ${TEXTSTREAM_MATRIX_TOKEN}
	AccessToken string `yaml:"access_token" toml:"access_token" json:"access_token"`
}

// SlackConfig configures the Slack backend.
type SlackConfig struct {
	// Token is a bot token, usually a ${VAR} reference.
	// Default: ${TEXTSTREAM_SLACK_TOKEN}
	Token string `yaml:"token" toml:"token" json:"token"`

	// APIURL overrides the Web API base URL. Empty uses Slack's.
	APIURL string `yaml:"api_url" toml:"api_url" json:"api_url"`
}

// SchedulerConfig mirrors scheduler.Config.
type SchedulerConfig struct {
	FlushInterval       Duration `yaml:"flush_interval" toml:"flush_interval" json:"flush_interval"`
	MinCharsDelta       int      `yaml:"min_chars_delta" toml:"min_chars_delta" json:"min_chars_delta"`
	MaxUpdatesPerMinute int      `yaml:"max_updates_per_minute" toml:"max_updates_per_minute" json:"max_updates_per_minute"`
}

// TransportConfig mirrors the retry fields of transport.Config.
type TransportConfig struct {
	MaxRetries     int      `yaml:"max_retries" toml:"max_retries" json:"max_retries"`
	BaseRetryDelay Duration `yaml:"base_retry_delay" toml:"base_retry_delay" json:"base_retry_delay"`
	MaxRetryDelay  Duration `yaml:"max_retry_delay" toml:"max_retry_delay" json:"max_retry_delay"`
}

// SessionConfig holds the defaults for new sessions.
type SessionConfig struct {
	Mode                   stream.Mode `yaml:"mode" toml:"mode" json:"mode"`
	HybridSwitchChars      int         `yaml:"hybrid_switch_chars" toml:"hybrid_switch_chars" json:"hybrid_switch_chars"`
	DisableRateLimitSwitch bool        `yaml:"disable_rate_limit_switch" toml:"disable_rate_limit_switch" json:"disable_rate_limit_switch"`
}

// StatusConfig configures the rotating status line.
type StatusConfig struct {
	// Messages replaces the built-in catalog when non-empty.
	Messages []string `yaml:"messages" toml:"messages" json:"messages"`
	Interval Duration `yaml:"interval" toml:"interval" json:"interval"`
	Shuffle  bool     `yaml:"shuffle" toml:"shuffle" json:"shuffle"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level" json:"level"`

	// Format is auto, text or json. Auto picks text on a terminal.
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Default returns the default configuration. These defaults are the
// base every file is merged onto.
func Default() *Config {
	schedulerDefaults := scheduler.DefaultConfig()
	transportDefaults := transport.DefaultConfig()
	return &Config{
		Environment: Development,
		Backend: BackendConfig{
			Kind:   BackendMemory,
			Matrix: MatrixConfig{AccessToken: "${TEXTSTREAM_MATRIX_TOKEN}"},
			Slack:  SlackConfig{Token: "${TEXTSTREAM_SLACK_TOKEN}"},
		},
		Scheduler: SchedulerConfig{
			FlushInterval:       Duration(schedulerDefaults.FlushInterval),
			MinCharsDelta:       schedulerDefaults.MinCharsDelta,
			MaxUpdatesPerMinute: schedulerDefaults.MaxUpdatesPerMinute,
		},
		Transport: TransportConfig{
			MaxRetries:     transportDefaults.MaxRetries,
			BaseRetryDelay: Duration(transportDefaults.BaseRetryDelay),
			MaxRetryDelay:  Duration(transportDefaults.MaxRetryDelay),
		},
		Session: SessionConfig{
			Mode:              stream.ModeEdit,
			HybridSwitchChars: stream.DefaultHybridSwitchChars,
		},
		Status: StatusConfig{
			Interval: Duration(statusline.DefaultInterval),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by TEXTSTREAM_CONFIG.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your textstream config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The format
// follows the extension: .yaml/.yml, .toml, or .json/.jsonc.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges one file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	case ".toml":
		_, err := toml.Decode(string(data), c)
		return err
	case ".json", ".jsonc":
		// JSONC allows comments and trailing commas; strip them first.
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml, .toml, .json or .jsonc)", extension)
	}
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &Overrides{Logging: &LoggingConfig{Format: "json"}}
		}
	}

	if overrides == nil {
		return
	}

	if backend := overrides.Backend; backend != nil {
		overrideString(&c.Backend.Kind, backend.Kind)
		overrideString(&c.Backend.Matrix.HomeserverURL, backend.Matrix.HomeserverURL)
		overrideString(&c.Backend.Matrix.AccessToken, backend.Matrix.AccessToken)
		overrideString(&c.Backend.Slack.Token, backend.Slack.Token)
		overrideString(&c.Backend.Slack.APIURL, backend.Slack.APIURL)
	}

	if flush := overrides.Scheduler; flush != nil {
		if flush.FlushInterval != 0 {
			c.Scheduler.FlushInterval = flush.FlushInterval
		}
		if flush.MinCharsDelta != 0 {
			c.Scheduler.MinCharsDelta = flush.MinCharsDelta
		}
		if flush.MaxUpdatesPerMinute != 0 {
			c.Scheduler.MaxUpdatesPerMinute = flush.MaxUpdatesPerMinute
		}
	}

	if retry := overrides.Transport; retry != nil {
		if retry.MaxRetries != 0 {
			c.Transport.MaxRetries = retry.MaxRetries
		}
		if retry.BaseRetryDelay != 0 {
			c.Transport.BaseRetryDelay = retry.BaseRetryDelay
		}
		if retry.MaxRetryDelay != 0 {
			c.Transport.MaxRetryDelay = retry.MaxRetryDelay
		}
	}

	if logging := overrides.Logging; logging != nil {
		overrideString(&c.Logging.Level, logging.Level)
		overrideString(&c.Logging.Format, logging.Format)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in backend
// settings.
func (c *Config) expandVariables() {
	c.Backend.Matrix.HomeserverURL = expandVars(c.Backend.Matrix.HomeserverURL)
	c.Backend.Matrix.AccessToken = expandVars(c.Backend.Matrix.AccessToken)
	c.Backend.Slack.Token = expandVars(c.Backend.Slack.Token)
	c.Backend.Slack.APIURL = expandVars(c.Backend.Slack.APIURL)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	switch c.Backend.Kind {
	case BackendMatrix:
		if c.Backend.Matrix.HomeserverURL == "" {
			errs = append(errs, fmt.Errorf("backend.matrix.homeserver_url is required"))
		}
		if c.Backend.Matrix.AccessToken == "" {
			errs = append(errs, fmt.Errorf("backend.matrix.access_token is empty (is TEXTSTREAM_MATRIX_TOKEN set?)"))
		}
	case BackendSlack:
		if c.Backend.Slack.Token == "" {
			errs = append(errs, fmt.Errorf("backend.slack.token is empty (is TEXTSTREAM_SLACK_TOKEN set?)"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("backend.kind must be one of: %v",
			[]string{BackendMatrix, BackendSlack, BackendMemory}))
	}

	if c.Scheduler.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.flush_interval must be positive"))
	}
	if c.Scheduler.MinCharsDelta < 0 {
		errs = append(errs, fmt.Errorf("scheduler.min_chars_delta must not be negative"))
	}
	if c.Scheduler.MaxUpdatesPerMinute < 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_updates_per_minute must not be negative"))
	}

	if c.Transport.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("transport.max_retries must not be negative"))
	}
	if c.Transport.BaseRetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("transport.base_retry_delay must be positive"))
	}
	if c.Transport.MaxRetryDelay < c.Transport.BaseRetryDelay {
		errs = append(errs, fmt.Errorf("transport.max_retry_delay must be at least base_retry_delay"))
	}

	if c.Session.HybridSwitchChars < 0 {
		errs = append(errs, fmt.Errorf("session.hybrid_switch_chars must not be negative"))
	}
	if c.Status.Interval <= 0 {
		errs = append(errs, fmt.Errorf("status.interval must be positive"))
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be one of: [auto text json]"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Config converts the section to scheduler options.
func (c SchedulerConfig) Config() scheduler.Config {
	return scheduler.Config{
		FlushInterval:       c.FlushInterval.Std(),
		MinCharsDelta:       c.MinCharsDelta,
		MaxUpdatesPerMinute: c.MaxUpdatesPerMinute,
	}
}

// Config converts the section to transport options. Clock, Logger and
// the callbacks keep their defaults.
func (c TransportConfig) Config() transport.Config {
	config := transport.DefaultConfig()
	config.MaxRetries = c.MaxRetries
	config.BaseRetryDelay = c.BaseRetryDelay.Std()
	config.MaxRetryDelay = c.MaxRetryDelay.Std()
	return config
}

// Options returns the session defaults for channel.
func (c SessionConfig) Options(channel string) stream.SessionOptions {
	return stream.SessionOptions{
		Channel:                channel,
		Mode:                   c.Mode,
		HybridSwitchChars:      c.HybridSwitchChars,
		DisableRateLimitSwitch: c.DisableRateLimitSwitch,
	}
}

// Config converts the section to rotator options.
func (c StatusConfig) Config() statusline.Config {
	return statusline.Config{
		Messages: c.Messages,
		Interval: c.Interval.Std(),
		Shuffle:  c.Shuffle,
	}
}

// SlogLevel parses Level.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
