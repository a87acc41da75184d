package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderEndpoint names one configured subtitle source and its JSON API base.
type ProviderEndpoint struct {
	Name     string
	Endpoint string
	APIKey   string
}

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	UserAgent string

	// Fan-out limits and timing.
	ProviderTimeout     time.Duration
	GlobalConcurrency   int
	ProviderConcurrency int
	RetryAttempts       int
	RetryDelay          time.Duration
	ProviderMinInterval time.Duration

	// Cache and breaker TTLs.
	ProviderCacheTTL time.Duration
	NegativeCacheTTL time.Duration
	ResolvedCacheTTL time.Duration
	BreakerTTL       time.Duration

	// Selection policy.
	ProviderResultCap  int
	GlobalResultCap    int
	UnlimitedProviders []string
	DisabledProviders  []string
	BlockedTitles      []string

	// Resolution.
	DownloadRetries    int
	DownloadRetryDelay time.Duration
	ResolveWaitTimeout time.Duration

	RedisURL    string
	ProbeBinary string

	Providers []ProviderEndpoint
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8095"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent: getEnv("SUBTITLES_USER_AGENT", "substream-subtitles/1.0"),

		ProviderTimeout:     time.Duration(getEnvInt("SUBTITLES_PROVIDER_TIMEOUT_SECONDS", 12)) * time.Second,
		GlobalConcurrency:   getEnvInt("SUBTITLES_GLOBAL_CONCURRENCY", 8),
		ProviderConcurrency: getEnvInt("SUBTITLES_PROVIDER_CONCURRENCY", 2),
		RetryAttempts:       getEnvInt("SUBTITLES_RETRY_ATTEMPTS", 2),
		RetryDelay:          time.Duration(getEnvInt("SUBTITLES_RETRY_DELAY_MS", 400)) * time.Millisecond,
		ProviderMinInterval: time.Duration(getEnvInt("SUBTITLES_PROVIDER_MIN_INTERVAL_MS", 250)) * time.Millisecond,

		ProviderCacheTTL: time.Duration(getEnvInt("SUBTITLES_PROVIDER_CACHE_TTL_MINUTES", 30)) * time.Minute,
		NegativeCacheTTL: time.Duration(getEnvInt("SUBTITLES_NEGATIVE_CACHE_TTL_MINUTES", 5)) * time.Minute,
		ResolvedCacheTTL: time.Duration(getEnvInt("SUBTITLES_RESOLVED_CACHE_TTL_MINUTES", 5)) * time.Minute,
		BreakerTTL:       time.Duration(getEnvInt("SUBTITLES_BREAKER_TTL_SECONDS", 90)) * time.Second,

		ProviderResultCap:  getEnvInt("SUBTITLES_PROVIDER_RESULT_CAP", 5),
		GlobalResultCap:    getEnvIntAllowZero("SUBTITLES_GLOBAL_RESULT_CAP", 0),
		UnlimitedProviders: getEnvList("SUBTITLES_UNLIMITED_PROVIDERS", "opensubtitles"),
		DisabledProviders:  getEnvList("SUBTITLES_DISABLED_PROVIDERS", ""),
		BlockedTitles:      getEnvList("SUBTITLES_BLOCKED_TITLES", ""),

		DownloadRetries:    getEnvInt("SUBTITLES_DOWNLOAD_RETRIES", 3),
		DownloadRetryDelay: time.Duration(getEnvInt("SUBTITLES_DOWNLOAD_RETRY_DELAY_MS", 500)) * time.Millisecond,
		ResolveWaitTimeout: time.Duration(getEnvInt("SUBTITLES_RESOLVE_WAIT_SECONDS", 10)) * time.Second,

		RedisURL:    getEnv("REDIS_URL", ""),
		ProbeBinary: getEnv("SUBTITLES_PROBE_BINARY", ""),

		Providers: parseProviderEndpoints(getEnv("SUBTITLES_PROVIDERS", "")),
	}
}

// parseProviderEndpoints parses "name=endpoint[|apikey],name=endpoint" lists.
func parseProviderEndpoints(raw string) []ProviderEndpoint {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var endpoints []ProviderEndpoint
	for _, part := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		endpoint, apiKey, _ := strings.Cut(strings.TrimSpace(value), "|")
		if name == "" || endpoint == "" {
			continue
		}
		endpoints = append(endpoints, ProviderEndpoint{
			Name:     name,
			Endpoint: endpoint,
			APIKey:   strings.TrimSpace(apiKey),
		})
	}
	return endpoints
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvIntAllowZero treats 0 as a valid value (used for "no cap").
func getEnvIntAllowZero(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.ToLower(strings.TrimSpace(item))
		if value != "" {
			values = append(values, value)
		}
	}
	return values
}
