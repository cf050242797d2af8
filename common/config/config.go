// Package config centralizes environment-tunable knobs for the gateway.
//
// Values are read once at process start via env vars (no koanf/viper — the
// gateway follows the teacher's plain os.Getenv convention) and exposed as
// package-level vars so call sites can read (and, in tests, override) them
// directly.
package config

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	// ServerAddress is the bind address for the HTTP server.
	ServerAddress = getEnvString("SERVER_ADDRESS", ":3000")

	// DebugEnabled toggles verbose request/response logging.
	DebugEnabled = getEnvBool("DEBUG", false)

	// SessionSecret seeds the derived key used by common.EncryptSecret/DecryptSecret.
	SessionSecret = getEnvString("SESSION_SECRET", "")

	// RelayProxy is an optional HTTP(S) proxy used for all upstream relay calls.
	RelayProxy = getEnvString("RELAY_PROXY", "")
	// RelayTimeout is the upstream HTTP client timeout, in seconds (0 = library default).
	RelayTimeout = getEnvInt("RELAY_TIMEOUT_SECONDS", 0)
	// UserContentRequestProxy proxies outbound fetches of user-supplied content URLs.
	UserContentRequestProxy = getEnvString("USER_CONTENT_REQUEST_PROXY", "")
	// BlockInternalUserContentRequests blocks user-content fetches that resolve to
	// private/loopback address ranges (SSRF guard).
	BlockInternalUserContentRequests = getEnvBool("BLOCK_INTERNAL_USER_CONTENT_REQUESTS", true)
	// MaxInlineImageSizeMB bounds inline (data-url) image payload size.
	MaxInlineImageSizeMB = getEnvInt("MAX_INLINE_IMAGE_SIZE_MB", 20)

	// DefaultMaxToken is the fallback max-output-tokens applied when a client omits it.
	DefaultMaxToken = getEnvInt("DEFAULT_MAX_TOKEN", 2048)
	// EnforceIncludeUsage forces `stream_options.include_usage=true` on OpenAI streams.
	EnforceIncludeUsage = getEnvBool("ENFORCE_INCLUDE_USAGE", true)
	// OpenrouterProviderSort is forwarded as OpenRouter's `provider.sort` hint.
	OpenrouterProviderSort = getEnvString("OPENROUTER_PROVIDER_SORT", "")

	// DefaultItemsPerPage / MaxItemsPerPage bound admin list endpoints.
	DefaultItemsPerPage = getEnvInt("DEFAULT_ITEMS_PER_PAGE", 10)
	MaxItemsPerPage     = getEnvInt("MAX_ITEMS_PER_PAGE", 100)

	// MemoryCacheEnabled toggles the process-local candidate/ability cache.
	MemoryCacheEnabled = getEnvBool("MEMORY_CACHE_ENABLED", true)
	// TokenKeyPrefix is prepended to issued API keys (e.g. "sk-").
	TokenKeyPrefix = getEnvString("TOKEN_KEY_PREFIX", "sk-")

	// Ratio / CompletionRatio are legacy global pricing multipliers retained
	// for migrations that still reference flat per-token ratios.
	Ratio           = getEnvFloat("GLOBAL_RATIO", 1.0)
	CompletionRatio = getEnvFloat("GLOBAL_COMPLETION_RATIO", 1.0)

	// ChannelSuspendSecondsFor429 / For5XX / ForAuth control how long a
	// misbehaving candidate is removed from scheduling consideration.
	ChannelSuspendSecondsFor429   = getEnvDuration("CHANNEL_SUSPEND_SECONDS_429", 30*time.Second)
	ChannelSuspendSecondsFor5XX   = getEnvDuration("CHANNEL_SUSPEND_SECONDS_5XX", 60*time.Second)
	ChannelSuspendSecondsForAuth  = getEnvDuration("CHANNEL_SUSPEND_SECONDS_AUTH", 300*time.Second)

	// EnablePrometheusMetrics toggles the /metrics endpoint and counter registration.
	EnablePrometheusMetrics = getEnvBool("ENABLE_PROMETHEUS_METRICS", true)

	// OpenTelemetry* configure the OTLP trace/metric exporter.
	OpenTelemetryEnabled     = getEnvBool("OTEL_ENABLED", false)
	OpenTelemetryEndpoint    = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	OpenTelemetryInsecure    = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true)
	OpenTelemetryServiceName = getEnvString("OTEL_SERVICE_NAME", "llmgateway")
	OpenTelemetryEnvironment = getEnvString("OTEL_ENVIRONMENT", "")

	// Billing engine knobs (spec.md §6).
	BillingEngine             = getEnvString("BILLING_ENGINE", "legacy")
	BillingEngineOverridesRaw = getEnvString("BILLING_ENGINE_OVERRIDES", "")
	BillingDiffThresholdUSD   = getEnvFloat("BILLING_DIFF_THRESHOLD_USD", 0.0001)
	BillingRequireRule        = getEnvBool("BILLING_REQUIRE_RULE", false)
	BillingStrictMode         = getEnvBool("BILLING_STRICT_MODE", false)

	// Video poll knobs (spec.md §6).
	VideoPollIntervalSeconds   = getEnvInt("VIDEO_POLL_INTERVAL_SECONDS", 5)
	VideoPollBatchSize         = getEnvInt("VIDEO_POLL_BATCH_SIZE", 50)
	VideoPollConcurrency       = getEnvInt("VIDEO_POLL_CONCURRENCY", 8)
	VideoMaxPollCount          = getEnvInt("VIDEO_MAX_POLL_COUNT", 360)

	// Redis backs the scheduler's distributed video-poll lock.
	RedisConnString  = getEnvString("REDIS_CONN_STRING", "")
	RedisPassword    = getEnvString("REDIS_PASSWORD", "")
	RedisMasterName  = getEnvString("REDIS_MASTER_NAME", "")

	// SQLDSN selects the gateway's own database: empty defaults to a local
	// sqlite file, otherwise a "mysql://" or "postgres://" DSN.
	SQLDSN = getEnvString("SQL_DSN", "")
)

var logConsumeEnabled atomic.Bool

func init() {
	logConsumeEnabled.Store(true)
}

// IsLogConsumeEnabled reports whether quota-consumption logging is active.
func IsLogConsumeEnabled() bool { return logConsumeEnabled.Load() }

// SetLogConsumeEnabled toggles quota-consumption logging (primarily for tests).
func SetLogConsumeEnabled(enabled bool) { logConsumeEnabled.Store(enabled) }

func getEnvString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
