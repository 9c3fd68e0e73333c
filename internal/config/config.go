// Package config loads the engine's YAML configuration file, applies
// environment variable overrides, and validates the result before the
// server starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Platform   PlatformConfig   `yaml:"platform"`
	Actions    ActionsConfig    `yaml:"actions"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Health     HealthConfig     `yaml:"health"`
	Audit      AuditConfig      `yaml:"audit"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
	Playbooks  PlaybooksConfig  `yaml:"playbooks"`
}

// ServerConfig configures the HTTP surfaces: the incoming failure-event
// webhook, the operator API, and the Prometheus scrape endpoint.
type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port"`
	WebhookPath string `yaml:"webhook_path"`
	OperatorPort string `yaml:"operator_port"`
	MetricsPort string `yaml:"metrics_port"`
}

// ClassifierConfig configures the three-tier AI error classifier chain.
type ClassifierConfig struct {
	Provider       string        `yaml:"provider"` // anthropic | bedrock | rule_based
	AnthropicModel string        `yaml:"anthropic_model"`
	BedrockModel   string        `yaml:"bedrock_model"`
	BedrockRegion  string        `yaml:"bedrock_region"`
	Timeout        time.Duration `yaml:"timeout"`
	Temperature    float32       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
}

// PlatformConfig configures the Databricks and ADF adapter clients.
type PlatformConfig struct {
	DatabricksHost  string        `yaml:"databricks_host"`
	DatabricksToken string        `yaml:"databricks_token"`
	ADFBaseURL      string        `yaml:"adf_base_url"`
	ADFSubscription string        `yaml:"adf_subscription"`
	ADFToken        string        `yaml:"adf_token"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
}

// ActionsConfig gates which remediation actions the executor is permitted
// to carry out, independent of what the playbook registry declares.
type ActionsConfig struct {
	// AutoRemediationEnabled is the top-level kill switch: nil or true means
	// the executor runs playbooks normally, false means Execute returns a
	// skip result without touching the breaker or registry. A pointer (not
	// a plain bool) so an absent config key and an explicit "false" are
	// distinguishable; use Enabled() rather than reading the field directly.
	AutoRemediationEnabled *bool           `yaml:"enabled"`
	DryRun                 bool            `yaml:"dry_run"`
	EnabledActions         map[string]bool `yaml:"enabled_actions"`
	RetryBaseDelay         time.Duration   `yaml:"retry_base_delay"`
	RetryMaxDelay          time.Duration   `yaml:"retry_max_delay"`
	MaxChainDepth          int             `yaml:"max_chain_depth"`
}

// Enabled reports whether auto-remediation is globally enabled: true unless
// AutoRemediationEnabled was explicitly set to false.
func (a ActionsConfig) Enabled() bool {
	return a.AutoRemediationEnabled == nil || *a.AutoRemediationEnabled
}

// BreakerConfig sets the default circuit breaker parameters applied to
// every (error_type, resource) key the fabric has not been told otherwise
// about.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenDuration     time.Duration `yaml:"open_duration"`
	RedisLockURL     string        `yaml:"redis_lock_url"`
}

// HealthConfig tunes the post-action health verifier's polling loop.
type HealthConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AuditConfig configures the Postgres-backed audit event sink.
type AuditConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	MigrationsPath  string `yaml:"migrations_path"`
}

// NotifyConfig configures the Slack notification sink.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel"`
}

// LoggingConfig mirrors the teacher's logging knobs.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PlaybooksConfig enables hot-reload of the playbook catalog from disk.
type PlaybooksConfig struct {
	Path       string `yaml:"path"`
	HotReload  bool   `yaml:"hot_reload"`
}

var supportedClassifierProviders = map[string]bool{
	"anthropic":  true,
	"bedrock":    true,
	"rule_based": true,
}

// Load reads, parses, defaults, env-overrides, and validates the config at
// path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(config)

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.WebhookPath == "" {
		config.Server.WebhookPath = "/webhook"
	}
	if config.Server.OperatorPort == "" {
		config.Server.OperatorPort = "8081"
	}
	if config.Server.MetricsPort == "" {
		config.Server.MetricsPort = "9090"
	}
	if config.Classifier.Provider == "" {
		config.Classifier.Provider = "rule_based"
	}
	if config.Classifier.Timeout == 0 {
		config.Classifier.Timeout = 15 * time.Second
	}
	if config.Classifier.MaxTokens == 0 {
		config.Classifier.MaxTokens = 500
	}
	if config.Platform.RequestTimeout == 0 {
		config.Platform.RequestTimeout = 30 * time.Second
	}
	if config.Platform.MaxConcurrent == 0 {
		config.Platform.MaxConcurrent = 10
	}
	if config.Actions.RetryBaseDelay == 0 {
		config.Actions.RetryBaseDelay = 2 * time.Second
	}
	if config.Actions.RetryMaxDelay == 0 {
		config.Actions.RetryMaxDelay = 30 * time.Second
	}
	if config.Actions.MaxChainDepth == 0 {
		config.Actions.MaxChainDepth = 3
	}
	if config.Breaker.FailureThreshold == 0 {
		config.Breaker.FailureThreshold = 3
	}
	if config.Breaker.OpenDuration == 0 {
		config.Breaker.OpenDuration = 5 * time.Minute
	}
	if config.Health.PollInterval == 0 {
		config.Health.PollInterval = 10 * time.Second
	}
	if config.Health.Timeout == 0 {
		config.Health.Timeout = 2 * time.Minute
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
	if config.Playbooks.Path == "" {
		config.Playbooks.Path = "playbooks.yaml"
	}
}

// loadFromEnv applies a small set of environment variable overrides, used
// for container deployments that inject secrets (tokens, webhook URLs) and
// a handful of operational knobs without rewriting the mounted config file.
func loadFromEnv(config *Config) error {
	if v := os.Getenv("DATABRICKS_TOKEN"); v != "" {
		config.Platform.DatabricksToken = v
	}
	if v := os.Getenv("ADF_TOKEN"); v != "" {
		config.Platform.ADFToken = v
	}
	if v := os.Getenv("AUTO_REMEDIATION_ENABLED"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTO_REMEDIATION_ENABLED value %q: %w", v, err)
		}
		config.Actions.AutoRemediationEnabled = &parsed
	}
	if v := os.Getenv("CLASSIFIER_PROVIDER"); v != "" {
		config.Classifier.Provider = v
	}
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		config.Server.WebhookPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DRY_RUN value %q: %w", v, err)
		}
		config.Actions.DryRun = parsed
	}
	if v := os.Getenv("AUDIT_DATABASE_URL"); v != "" {
		config.Audit.DatabaseURL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		config.Notify.SlackWebhookURL = v
	}
	if v := os.Getenv("BREAKER_REDIS_LOCK_URL"); v != "" {
		config.Breaker.RedisLockURL = v
	}
	return nil
}

func validate(config *Config) error {
	if config.Server.WebhookPort == "" {
		return fmt.Errorf("webhook port is required")
	}

	if !supportedClassifierProviders[config.Classifier.Provider] {
		return fmt.Errorf("unsupported classifier provider: %s", config.Classifier.Provider)
	}
	if config.Classifier.Provider == "anthropic" && config.Classifier.AnthropicModel == "" {
		return fmt.Errorf("anthropic model is required for anthropic provider")
	}
	if config.Classifier.Provider == "bedrock" && config.Classifier.BedrockModel == "" {
		return fmt.Errorf("bedrock model is required for bedrock provider")
	}
	if config.Classifier.Temperature < 0.0 || config.Classifier.Temperature > 1.0 {
		return fmt.Errorf("classifier temperature must be between 0.0 and 1.0")
	}
	if config.Classifier.MaxTokens <= 0 {
		return fmt.Errorf("classifier max tokens must be greater than 0")
	}

	if config.Platform.MaxConcurrent <= 0 {
		return fmt.Errorf("platform max concurrent must be greater than 0")
	}

	if config.Actions.MaxChainDepth <= 0 {
		return fmt.Errorf("max chain depth must be greater than 0")
	}

	if config.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be greater than 0")
	}

	return nil
}
