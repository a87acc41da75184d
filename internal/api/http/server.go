// Package apihttp exposes the subtitle engine over a small JSON HTTP
// surface. The engine itself never sees http types; this package owns the
// translation both ways.
package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/fingerprint"
	"substream/subtitleservice/internal/search"
)

type SubtitleService interface {
	Search(ctx context.Context, req search.LookupRequest) (domain.SearchResponse, error)
	Resolve(ctx context.Context, token string) (*domain.ResolvedSubtitle, error)
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

// Fingerprinter probes a local media file for its sync signature. Optional;
// the match endpoint works without it as long as callers supply the probe
// payload themselves.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, filePath string) (domain.ProbeFingerprint, error)
}

type Server struct {
	subtitles SubtitleService
	prober    Fingerprinter
	logger    *slog.Logger
}

const (
	maxIDLength    = 200
	maxTokenLength = 4096
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithProber(prober Fingerprinter) ServerOption {
	return func(s *Server) {
		s.prober = prober
	}
}

func NewServer(subtitles SubtitleService, options ...ServerOption) *Server {
	server := &Server{
		subtitles: subtitles,
		logger:    slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/subtitles/providers", s.handleProviders)
	mux.HandleFunc("/subtitles/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/subtitles/download", s.handleDownload)
	mux.HandleFunc("/subtitles/search", s.handleSearch)
	mux.HandleFunc("/subtitles/match", s.handleMatch)
	mux.HandleFunc("/subtitles/fingerprint", s.handleFingerprint)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "subtitle-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}

	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("id"))
	filename := strings.TrimSpace(q.Get("filename"))
	if id == "" && filename == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id or filename is required")
		return
	}
	if len(id) > maxIDLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "id too long")
		return
	}

	year, err := parseNonNegativeInt(r, "year", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid year")
		return
	}
	fps, err := parseOptionalFloat(r, "fps", 0)
	if err != nil || fps < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fps")
		return
	}

	response, err := s.subtitles.Search(r.Context(), search.LookupRequest{
		ID:        id,
		Filename:  filename,
		Title:     strings.TrimSpace(q.Get("title")),
		Year:      year,
		FPS:       fps,
		Providers: parseCSV(q.Get("providers")),
	})
	if err != nil {
		s.logger.Warn("subtitle search request failed",
			slog.String("id", truncate(id, 80)),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrNoProviders):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "subtitle search failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if len(token) > maxTokenLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "token too long")
		return
	}

	resolved, err := s.subtitles.Resolve(r.Context(), token)
	if err != nil {
		s.logger.Warn("subtitle download request failed",
			slog.String("token", truncate(token, 24)),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, domain.ErrTokenDecode), errors.Is(err, search.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid token")
		case errors.Is(err, domain.ErrUnsupportedFormat):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
		case errors.Is(err, domain.ErrExtraction), errors.Is(err, domain.ErrDownloadFailed):
			writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "subtitle download failed")
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+sanitizeFilename(resolved.Filename)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(resolved.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resolved.Content)
}

const maxMatchBodyBytes = 1 << 20

type matchRequest struct {
	Probe      domain.ProbeFingerprint       `json:"probe"`
	Candidates []domain.CandidateFingerprint `json:"candidates"`
	Limit      int                           `json:"limit,omitempty"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req matchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMatchBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid match payload")
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "candidates are required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matches": fingerprint.Rank(req.Probe, req.Candidates, req.Limit),
	})
}

func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.prober == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "media probe is not configured")
		return
	}

	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}

	fp, err := s.prober.Fingerprint(r.Context(), path)
	if err != nil {
		s.logger.Warn("media fingerprint failed",
			slog.String("path", truncate(path, 120)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "probe_error", "media fingerprint failed")
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/subtitles/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.subtitles.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.subtitles.ProviderDiagnostics(),
	})
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\n', '\r':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "subtitle.srt"
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
