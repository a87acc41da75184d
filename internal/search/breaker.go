package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/metrics"
)

type breakerEntry struct {
	reason    string
	trippedAt time.Time
}

type providerStats struct {
	lastError     string
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastLatency   time.Duration
	totalRequests int64
	totalFailures int64
}

// breaker is the per-(provider,query) failure cache. While an entry is live
// the orchestrator must not re-invoke that provider for that query.
type breaker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]breakerEntry
	stats   map[string]*providerStats
}

func newBreaker(ttl time.Duration) *breaker {
	return &breaker{
		ttl:     ttl,
		entries: make(map[string]breakerEntry),
		stats:   make(map[string]*providerStats),
	}
}

func breakerKey(provider, queryKey string) string {
	return provider + "|" + queryKey
}

// Open reports whether the breaker is currently open for this provider/query.
func (b *breaker) Open(provider, queryKey string, now time.Time) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[breakerKey(provider, queryKey)]
	if !ok {
		return false, ""
	}
	if now.Sub(entry.trippedAt) >= b.ttl {
		delete(b.entries, breakerKey(provider, queryKey))
		return false, ""
	}
	return true, entry.reason
}

func (b *breaker) Trip(provider, queryKey, reason string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[breakerKey(provider, queryKey)] = breakerEntry{reason: reason, trippedAt: now}
	metrics.BreakerTrippedTotal.WithLabelValues(provider).Inc()
}

// RecordResult updates provider-level diagnostics and metrics after a call.
func (b *breaker) RecordResult(provider string, err error, latency time.Duration, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stats[provider]
	if state == nil {
		state = &providerStats{}
		b.stats[provider] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.ProviderRequestDuration.WithLabelValues(provider).Observe(latency.Seconds())
	}

	if err == nil {
		state.lastSuccessAt = now
		state.lastError = ""
		metrics.ProviderRequestsTotal.WithLabelValues(provider, "ok").Inc()
		return
	}

	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if isTimeoutLikeError(err) {
		status = "timeout"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

func (b *breaker) Diagnostics(infos []domain.ProviderInfo) []domain.ProviderDiagnostics {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	trippedByProvider := make(map[string]int, len(infos))
	for key, entry := range b.entries {
		if now.Sub(entry.trippedAt) >= b.ttl {
			continue
		}
		provider, _, ok := strings.Cut(key, "|")
		if ok {
			trippedByProvider[provider]++
		}
	}

	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.ProviderDiagnostics{
			Name:           info.Name,
			Label:          info.Label,
			Enabled:        info.Enabled,
			TrippedQueries: trippedByProvider[info.Name],
		}
		if state := b.stats[info.Name]; state != nil {
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				at := state.lastSuccessAt
				item.LastSuccessAt = &at
			}
			if !state.lastFailureAt.IsZero() {
				at := state.lastFailureAt
				item.LastFailureAt = &at
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
		}
		items = append(items, item)
	}
	return items
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}
