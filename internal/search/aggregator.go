package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/metrics"
)

// fanOutIndexStride spaces per-provider index ranges so the ranking tiebreak
// is deterministic regardless of goroutine completion order.
const fanOutIndexStride = 10000

// LookupRequest is one incoming subtitle lookup prior to normalization.
type LookupRequest struct {
	ID        string
	Filename  string
	Title     string
	Year      int
	FPS       float64
	Providers []string
}

// Search normalizes the request, fans out to all enabled providers, and
// returns the ranked, tokenized result set. Provider failures degrade the
// result set; they never fail the query.
func (s *Service) Search(ctx context.Context, req LookupRequest) (domain.SearchResponse, error) {
	startedAt := time.Now()

	query, err := NormalizeQuery(req.ID, QueryHints{
		Filename: req.Filename,
		Title:    req.Title,
		Year:     req.Year,
		FPS:      req.FPS,
	})
	if err != nil {
		// Unresolvable input: empty result, cached negatively under the raw key.
		rawKey := "raw|" + strings.ToLower(strings.TrimSpace(req.ID)) + "|" + strings.ToLower(strings.TrimSpace(req.Filename))
		s.caches.StoreNegative(rawKey, time.Now())
		slog.Warn("lookup not normalizable",
			slog.String("id", req.ID),
			slog.String("filename", req.Filename),
		)
		return domain.SearchResponse{
			Negative:  true,
			ElapsedMS: time.Since(startedAt).Milliseconds(),
		}, nil
	}

	if s.isTitleBlocked(query.Fragment) {
		return domain.SearchResponse{
			Query:     query,
			Negative:  true,
			ElapsedMS: time.Since(startedAt).Milliseconds(),
		}, nil
	}

	selected, err := s.resolveProviders(req.Providers)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	key := queryKey(query)
	if s.caches.IsNegative(key, time.Now()) {
		return domain.SearchResponse{
			Query:     query,
			Negative:  true,
			ElapsedMS: time.Since(startedAt).Milliseconds(),
		}, nil
	}

	candidates, statuses := s.fanOut(ctx, query, key, selected)

	ranked := rankAndSelect(query, candidates, selectionPolicy{
		perProviderCap: s.options.ProviderResultCap,
		globalCap:      s.options.GlobalResultCap,
		unlimited:      s.unlimited,
	})

	items := make([]domain.RankedSubtitle, 0, len(ranked))
	for _, scored := range ranked {
		token, err := EncodeToken(domain.TokenPayload{
			Provider:  scored.Provider,
			SourceRef: scored.SourceRef,
			Format:    scored.Format,
			FPS:       scored.FPS,
			Extra:     scored.Extra,
		})
		if err != nil {
			continue
		}
		items = append(items, domain.RankedSubtitle{
			Token:     token,
			Provider:  scored.Provider,
			Info:      scored.Info,
			Year:      scored.Year,
			FPS:       scored.FPS,
			Downloads: scored.Downloads,
			Score:     scored.Score,
		})
	}

	if len(items) == 0 {
		s.caches.StoreNegative(key, time.Now())
	}

	slog.Info("subtitle search completed",
		slog.String("query", key),
		slog.Int("providers", len(selected)),
		slog.Int("results", len(items)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	return domain.SearchResponse{
		Query:     query,
		Items:     items,
		Providers: statuses,
		Negative:  len(items) == 0,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
	}, nil
}

type indexedCandidate struct {
	domain.Candidate
	index int
}

// fanOut invokes every selected provider concurrently under the global and
// per-provider concurrency ceilings. Total wall clock is bounded by the
// slowest non-skipped provider, not the sum.
func (s *Service) fanOut(ctx context.Context, query domain.SearchQuery, key string, selected []string) ([]indexedCandidate, []domain.ProviderStatus) {
	statuses := make([]domain.ProviderStatus, len(selected))
	var merged []indexedCandidate

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, name := range selected {
		wg.Add(1)
		go func(index int, name string) {
			defer wg.Done()

			provider := s.providers[name]
			status := domain.ProviderStatus{Name: name}
			providerKey := name + "|" + key

			items, cached := s.caches.ProviderResults(providerKey, time.Now())
			if cached {
				status.OK = true
				status.Cached = true
			} else {
				var fetchErr error
				items, fetchErr = s.callProvider(ctx, provider, name, query, key)
				if fetchErr != nil {
					status.Error = fetchErr.Error()
					mu.Lock()
					statuses[index] = status
					mu.Unlock()
					return
				}
				status.OK = true
				s.caches.StoreProviderResults(providerKey, items, time.Now())
			}
			status.Count = len(items)

			mu.Lock()
			statuses[index] = status
			for pos, item := range items {
				item.Provider = name
				merged = append(merged, indexedCandidate{
					Candidate: item,
					index:     index*fanOutIndexStride + pos,
				})
			}
			mu.Unlock()
		}(i, name)
	}
	wg.Wait()

	return merged, statuses
}

// callProvider runs one provider search under the limiter stack: breaker
// check, global and per-provider semaphores, min-interval rate limit, call
// timeout, and a small retry budget. Any failure trips the breaker.
func (s *Service) callProvider(ctx context.Context, provider Provider, name string, query domain.SearchQuery, key string) ([]domain.Candidate, error) {
	now := time.Now()
	if open, reason := s.breaker.Open(name, key, now); open {
		metrics.BreakerSkippedTotal.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("%w: breaker open: %s", domain.ErrProviderFailed, reason)
	}

	if err := s.globalSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailed, err)
	}
	defer s.globalSem.Release(1)

	if sem := s.providerSems[name]; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailed, err)
		}
		defer sem.Release(1)
	}

	if limiter := s.limiters[name]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailed, err)
		}
	}

	// Providers with their own query normalization rewrite the title;
	// everyone else searches on the canonical one.
	callQuery := query
	if formatter, ok := provider.(QueryFormatter); ok {
		if formatted := strings.TrimSpace(formatter.FormatQuery(query)); formatted != "" {
			callQuery.Title = formatted
		}
	}

	startedAt := time.Now()
	var items []domain.Candidate
	searchErr := RetryWithBackoff(ctx, RetryConfig{
		MaxAttempts:  s.options.RetryAttempts + 1,
		InitialDelay: s.options.RetryDelay,
	}, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.options.ProviderTimeout)
		defer cancel()
		var err error
		items, err = provider.Search(callCtx, callQuery)
		return err
	})
	latency := time.Since(startedAt)
	s.breaker.RecordResult(name, searchErr, latency, time.Now())

	if searchErr != nil {
		s.breaker.Trip(name, key, searchErr.Error(), time.Now())
		slog.Warn("provider search failed",
			slog.String("provider", name),
			slog.String("query", key),
			slog.Int64("elapsedMs", latency.Milliseconds()),
			slog.String("error", searchErr.Error()),
		)
		if isTimeoutLikeError(searchErr) {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, searchErr)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailed, searchErr)
	}

	slog.Debug("provider search completed",
		slog.String("provider", name),
		slog.String("query", key),
		slog.Int("results", len(items)),
		slog.Int64("elapsedMs", latency.Milliseconds()),
	)
	return items, nil
}

func (s *Service) isTitleBlocked(fragment string) bool {
	if fragment == "" {
		return false
	}
	for _, blocked := range s.blocked {
		if strings.Contains(fragment, blocked) {
			return true
		}
	}
	return false
}
