package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/metrics"
	"substream/subtitleservice/internal/repair"
)

// resolveTakeoverLimit bounds how many times a waiter may become the new
// owner after a shared in-flight download fails.
const resolveTakeoverLimit = 2

// Resolve turns an opaque token into repaired subtitle content. Concurrent
// calls for the same token share one provider download; the repaired result
// is cached so replays of the same token skip the network entirely.
func (s *Service) Resolve(ctx context.Context, token string) (*domain.ResolvedSubtitle, error) {
	payload, err := DecodeToken(token)
	if err != nil {
		metrics.ResolveTotal.WithLabelValues("decode_error").Inc()
		return nil, err
	}

	waitTimer := time.NewTimer(s.options.ResolveWaitTimeout)
	defer waitTimer.Stop()

	for attempt := 0; attempt <= resolveTakeoverLimit; attempt++ {
		if cached, ok := s.caches.Resolved(ctx, token, time.Now()); ok {
			return cached, nil
		}

		ch := s.flights.DoChan(token, func() (any, error) {
			// Forget before returning so a failed flight is retryable
			// immediately and a succeeded one is served from cache.
			defer s.flights.Forget(token)
			return s.fetchAndRepair(context.WithoutCancel(ctx), token, payload)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				if res.Shared && attempt < resolveTakeoverLimit {
					slog.Debug("resolve takeover after shared failure",
						slog.String("provider", payload.Provider),
						slog.Int("attempt", attempt+1))
					continue
				}
				return nil, res.Err
			}
			if res.Shared {
				metrics.ResolveShared.Inc()
			}
			return res.Val.(*domain.ResolvedSubtitle), nil
		case <-waitTimer.C:
			metrics.ResolveTotal.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w: timed out waiting for in-flight download", domain.ErrDownloadFailed)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: retries exhausted", domain.ErrDownloadFailed)
}

func (s *Service) fetchAndRepair(ctx context.Context, token string, payload domain.TokenPayload) (*domain.ResolvedSubtitle, error) {
	provider, ok := s.providers[payload.Provider]
	if !ok {
		metrics.ResolveTotal.WithLabelValues("decode_error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, payload.Provider)
	}

	var content []byte
	var suggestedName string
	startedAt := time.Now()
	err := retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, s.options.ProviderTimeout)
			defer cancel()
			data, name, err := provider.Download(attemptCtx, payload)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.New("empty download body")
			}
			content = data
			suggestedName = name
			return nil
		},
		retry.Attempts(uint(s.options.DownloadRetries)),
		retry.Delay(s.options.DownloadRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(s.options.DownloadRetryDelay/2),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		metrics.ResolveTotal.WithLabelValues("download_error").Inc()
		slog.Warn("subtitle download failed",
			slog.String("provider", payload.Provider),
			slog.String("ref", payload.SourceRef),
			slog.Duration("elapsed", time.Since(startedAt)),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDownloadFailed, payload.Provider, err)
	}
	metrics.DownloadBytes.Observe(float64(len(content)))

	result, err := repair.Process(content, suggestedName, repair.Options{
		FPS:        payload.FPS,
		FormatHint: payload.Format,
	})
	if err != nil {
		outcome := "extract_error"
		if errors.Is(err, domain.ErrUnsupportedFormat) {
			outcome = "format_error"
		}
		metrics.ResolveTotal.WithLabelValues(outcome).Inc()
		slog.Warn("subtitle repair failed",
			slog.String("provider", payload.Provider),
			slog.String("ref", payload.SourceRef),
			slog.Any("error", err))
		return nil, err
	}

	resolved := &domain.ResolvedSubtitle{
		Filename: result.Filename,
		Content:  result.Content,
		Encoding: result.Encoding,
		Format:   result.Format,
	}
	s.caches.StoreResolved(ctx, token, resolved, time.Now())
	metrics.ResolveTotal.WithLabelValues("ok").Inc()
	slog.Info("subtitle resolved",
		slog.String("provider", payload.Provider),
		slog.String("format", resolved.Format),
		slog.Int("bytes", len(resolved.Content)),
		slog.Duration("elapsed", time.Since(startedAt)))
	return resolved, nil
}
