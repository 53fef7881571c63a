package models

// Config holds the application configuration
type Config struct {
	Provider  ProviderConfig   `json:"provider"`
	Database  DatabaseConfig   `json:"database"`
	Server    ServerConfig     `json:"server"`
	Dispatch  DispatchDefaults `json:"dispatch"`
	RateLimit RateLimitConfig  `json:"rate_limit"`
	Redis     RedisConfig      `json:"redis"`
	Tracing   TracingConfig    `json:"tracing"`

	LogLevel      string `json:"log_level"`
	RetentionDays int    `json:"retention_days"`
}

// ProviderConfig holds messaging-provider related configuration
type ProviderConfig struct {
	APIBaseURL    string `json:"api_base_url"`
	APIKey        string `json:"api_key"`
	TimeoutSec    int    `json:"timeout_sec"`
	WebhookSecret string `json:"webhook_secret"`
}

// DatabaseConfig holds database related configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port              int `json:"port"`
	ReadTimeoutSec    int `json:"read_timeout_sec"`
	WriteTimeoutSec   int `json:"write_timeout_sec"`
	IdleTimeoutSec    int `json:"idle_timeout_sec"`
	WebhookMaxSkewSec int `json:"webhook_max_skew_sec"`
}

// DispatchDefaults holds the dispatch knobs applied to jobs that do
// not carry their own values. Delays are in milliseconds.
type DispatchDefaults struct {
	BatchSize            int `json:"batch_size"`
	MaxConcurrentBatches int `json:"max_concurrent_batches"`
	DelayBetweenSendsMs  int `json:"delay_between_sends_ms"`
	RetryMaxAttempts     int `json:"retry_max_attempts"`
	RetryBaseDelayMs     int `json:"retry_base_delay_ms"`
	RetryMaxDelayMs      int `json:"retry_max_delay_ms"`
}

// RateLimitConfig holds per-channel admission control configuration.
// ChannelQuotas overrides the default quota for specific channel IDs.
type RateLimitConfig struct {
	DefaultQuota       int            `json:"default_quota"`
	WindowSec          int            `json:"window_sec"`
	PauseThresholdSec  int            `json:"pause_threshold_sec"`
	DeniedRetryWaitMs  int            `json:"denied_retry_wait_ms"`
	ChannelQuotas      map[string]int `json:"channel_quotas,omitempty"`
	DegradedModeWaitMs int            `json:"degraded_mode_wait_ms"`
}

// RedisConfig holds the optional shared rate-limit window store.
// When disabled the limiter keeps windows in process memory.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
