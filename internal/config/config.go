package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"wadispatch/internal/constants"
	"wadispatch/internal/models"
	"wadispatch/internal/security"
)

var (
	ErrMissingProviderURL = models.ConfigError{Message: "missing provider API base URL"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads, defaults, and validates the configuration file.
// Environment variables override file values so secrets stay out of
// the config file.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)
	applyEnvironmentOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	if err := validateSecurity(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(c *models.Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = constants.DefaultProviderTimeoutSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.WebhookMaxSkewSec <= 0 {
		c.Server.WebhookMaxSkewSec = constants.DefaultWebhookMaxSkewSec
	}

	if c.Dispatch.BatchSize <= 0 {
		c.Dispatch.BatchSize = constants.DefaultBatchSize
	}
	if c.Dispatch.MaxConcurrentBatches <= 0 {
		c.Dispatch.MaxConcurrentBatches = constants.DefaultMaxConcurrentBatches
	}
	if c.Dispatch.DelayBetweenSendsMs < 0 {
		c.Dispatch.DelayBetweenSendsMs = constants.DefaultDelayBetweenSendsMs
	}
	if c.Dispatch.RetryMaxAttempts <= 0 {
		c.Dispatch.RetryMaxAttempts = constants.DefaultRetryMaxAttempts
	}
	if c.Dispatch.RetryBaseDelayMs <= 0 {
		c.Dispatch.RetryBaseDelayMs = constants.DefaultRetryBaseDelayMs
	}
	if c.Dispatch.RetryMaxDelayMs <= 0 {
		c.Dispatch.RetryMaxDelayMs = constants.DefaultRetryMaxDelayMs
	}

	if c.RateLimit.DefaultQuota <= 0 {
		c.RateLimit.DefaultQuota = constants.DefaultRateLimitQuota
	}
	if c.RateLimit.WindowSec <= 0 {
		c.RateLimit.WindowSec = constants.DefaultRateLimitWindowSec
	}
	if c.RateLimit.PauseThresholdSec <= 0 {
		c.RateLimit.PauseThresholdSec = constants.DefaultPauseThresholdSec
	}
	if c.RateLimit.DeniedRetryWaitMs <= 0 {
		c.RateLimit.DeniedRetryWaitMs = constants.DefaultDeniedRetryWaitMs
	}
	if c.RateLimit.DegradedModeWaitMs <= 0 {
		c.RateLimit.DegradedModeWaitMs = constants.DefaultDegradedModeWaitMs
	}

	if c.RetentionDays == 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
}

func validate(c *models.Config) error {
	if c.Provider.APIBaseURL == "" {
		return ErrMissingProviderURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Dispatch.RetryMaxDelayMs < c.Dispatch.RetryBaseDelayMs {
		return models.ConfigError{Message: "retry_max_delay_ms must be at least retry_base_delay_ms"}
	}
	for channelID, quota := range c.RateLimit.ChannelQuotas {
		if quota < 0 {
			return models.ConfigError{Message: fmt.Sprintf("negative rate limit quota for channel %s", channelID)}
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return models.ConfigError{Message: "redis.addr is required when redis is enabled"}
	}
	if c.RetentionDays < 0 {
		return models.ConfigError{Message: "retention_days cannot be negative"}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WADISPATCH_PROVIDER_API_URL"); url != "" {
		c.Provider.APIBaseURL = url
	}
	if key := os.Getenv("WADISPATCH_PROVIDER_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	if secret := os.Getenv("WADISPATCH_WEBHOOK_SECRET"); secret != "" {
		c.Provider.WebhookSecret = secret
	}
	if path := os.Getenv("WADISPATCH_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if addr := os.Getenv("WADISPATCH_REDIS_ADDR"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = addr
	}
	if password := os.Getenv("WADISPATCH_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if level := os.Getenv("WADISPATCH_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if port := os.Getenv("WADISPATCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

// validateSecurity enforces production-only requirements. Outside
// production it warns instead so local development stays frictionless.
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("WADISPATCH_ENV") == "production"

	if isProduction {
		if c.Provider.WebhookSecret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set WADISPATCH_WEBHOOK_SECRET)"}
		}
		if len(c.Provider.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging must not be enabled in production"}
		}
		return nil
	}

	if c.Provider.WebhookSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set, delivery callbacks are unauthenticated. Set WADISPATCH_WEBHOOK_SECRET.\n")
	}
	return nil
}
