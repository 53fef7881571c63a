package constants

// Default dispatch configuration values
const (
	DefaultBatchSize            = 100
	DefaultMaxConcurrentBatches = 3
	DefaultDelayBetweenSendsMs  = 0
	DefaultRetryMaxAttempts     = 3
	DefaultRetryBaseDelayMs     = 1000
	DefaultRetryMaxDelayMs      = 60000
	DefaultRetentionDays        = 30
)

// Default rate-limit configuration values
const (
	DefaultRateLimitQuota     = 80
	DefaultRateLimitWindowSec = 1
	DefaultPauseThresholdSec  = 300
	DefaultDeniedRetryWaitMs  = 250
	DefaultDegradedModeWaitMs = 500
)

// Default timeout values
const (
	DefaultProviderTimeoutSec    = 30
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabaseBackoffMs     = 500
	DefaultDatabaseMaxBackoffMs  = 5000
	DefaultGracefulShutdownSec   = 30
	DefaultServerPort            = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultWebhookMaxSkewSec     = 300
)

// Cancellation latency: long sleeps (rate-limit waits, retry backoff)
// are cut into slices of this size and the job status rechecked, so
// pause and cancel take effect within a bounded delay.
const (
	CancellationPollIntervalMs = 2000
)

// Scheduler defaults
const (
	SchedulerIntervalSec = 30
)

// Circuit breaker defaults for the provider client
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerTimeoutSec  = 30
)
