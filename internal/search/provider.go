package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"substream/subtitleservice/internal/domain"
)

var (
	ErrNoProviders     = errors.New("no subtitle providers configured")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider is the two-operation adapter contract every subtitle source
// implements. Search is idempotent and side-effect-free besides network I/O.
type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.Candidate, error)
	Download(ctx context.Context, ref domain.TokenPayload) (content []byte, suggestedName string, err error)
}

// QueryFormatter is an optional interface for providers with their own query
// string normalization. The engine falls back to the canonical title when a
// provider does not implement it.
type QueryFormatter interface {
	FormatQuery(query domain.SearchQuery) string
}

// Options carries every tunable the orchestrator and resolver recognize.
type Options struct {
	ProviderTimeout     time.Duration
	GlobalConcurrency   int
	ProviderConcurrency int
	RetryAttempts       int
	RetryDelay          time.Duration
	ProviderMinInterval time.Duration
	BreakerTTL          time.Duration

	ProviderResultCap  int
	GlobalResultCap    int
	UnlimitedProviders []string
	DisabledProviders  []string
	BlockedTitles      []string

	DownloadRetries    int
	DownloadRetryDelay time.Duration
	ResolveWaitTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		ProviderTimeout:     12 * time.Second,
		GlobalConcurrency:   8,
		ProviderConcurrency: 2,
		RetryAttempts:       2,
		RetryDelay:          400 * time.Millisecond,
		ProviderMinInterval: 250 * time.Millisecond,
		ProviderResultCap:   5,
		DownloadRetries:     3,
		DownloadRetryDelay:  500 * time.Millisecond,
		ResolveWaitTimeout:  10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = defaults.ProviderTimeout
	}
	if o.GlobalConcurrency <= 0 {
		o.GlobalConcurrency = defaults.GlobalConcurrency
	}
	if o.ProviderConcurrency <= 0 {
		o.ProviderConcurrency = defaults.ProviderConcurrency
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = defaults.RetryAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaults.RetryDelay
	}
	if o.DownloadRetries <= 0 {
		o.DownloadRetries = defaults.DownloadRetries
	}
	if o.DownloadRetryDelay <= 0 {
		o.DownloadRetryDelay = defaults.DownloadRetryDelay
	}
	if o.ResolveWaitTimeout <= 0 {
		o.ResolveWaitTimeout = defaults.ResolveWaitTimeout
	}
	if o.ProviderResultCap < 0 {
		o.ProviderResultCap = 0
	}
	return o
}

// Service is the aggregation, ranking, and resolution engine. Shared mutable
// state (caches, breaker) is injected, never ambient.
type Service struct {
	providers map[string]Provider
	enabled   []string
	options   Options

	caches  *CacheService
	breaker *breaker

	globalSem    *semaphore.Weighted
	providerSems map[string]*semaphore.Weighted
	limiters     map[string]*rate.Limiter

	flights singleflight.Group

	unlimited map[string]struct{}
	blocked   []string
}

func NewService(providers []Provider, caches *CacheService, options Options) *Service {
	options = options.withDefaults()

	disabled := make(map[string]struct{}, len(options.DisabledProviders))
	for _, name := range options.DisabledProviders {
		disabled[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	registry := make(map[string]Provider, len(providers))
	enabled := make([]string, 0, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		if _, off := disabled[name]; off {
			continue
		}
		if _, exists := registry[name]; exists {
			continue
		}
		registry[name] = provider
		enabled = append(enabled, name)
	}
	sort.Strings(enabled)

	unlimited := make(map[string]struct{}, len(options.UnlimitedProviders))
	for _, name := range options.UnlimitedProviders {
		unlimited[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	blocked := make([]string, 0, len(options.BlockedTitles))
	for _, title := range options.BlockedTitles {
		fragment := normalizeFragment(title)
		if fragment != "" {
			blocked = append(blocked, fragment)
		}
	}

	providerSems := make(map[string]*semaphore.Weighted, len(enabled))
	limiters := make(map[string]*rate.Limiter, len(enabled))
	for _, name := range enabled {
		providerSems[name] = semaphore.NewWeighted(int64(options.ProviderConcurrency))
		if options.ProviderMinInterval > 0 {
			limiters[name] = rate.NewLimiter(rate.Every(options.ProviderMinInterval), 1)
		}
	}

	if caches == nil {
		caches = NewCacheService(0, 0, 0)
	}

	return &Service{
		providers:    registry,
		enabled:      enabled,
		options:      options,
		caches:       caches,
		breaker:      newBreaker(options.BreakerTTLOrDefault()),
		globalSem:    semaphore.NewWeighted(int64(options.GlobalConcurrency)),
		providerSems: providerSems,
		limiters:     limiters,
		unlimited:    unlimited,
		blocked:      blocked,
	}
}

// BreakerTTLOrDefault returns the configured breaker TTL, or 90s.
func (o Options) BreakerTTLOrDefault() time.Duration {
	if o.BreakerTTL > 0 {
		return o.BreakerTTL
	}
	return 90 * time.Second
}

func (s *Service) resolveProviders(names []string) ([]string, error) {
	if len(s.enabled) == 0 {
		return nil, ErrNoProviders
	}
	if len(names) == 0 {
		return append([]string(nil), s.enabled...), nil
	}
	selected := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := s.providers[name]; !ok {
			return nil, ErrUnknownProvider
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, name)
	}
	if len(selected) == 0 {
		return nil, ErrNoProviders
	}
	sort.Strings(selected)
	return selected, nil
}

func (s *Service) Providers() []domain.ProviderInfo {
	items := make([]domain.ProviderInfo, 0, len(s.enabled))
	for _, name := range s.enabled {
		info := s.providers[name].Info()
		if info.Name == "" {
			info.Name = name
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		info.Enabled = true
		items = append(items, info)
	}
	return items
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	return s.breaker.Diagnostics(s.Providers())
}
