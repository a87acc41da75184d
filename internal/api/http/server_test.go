package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/search"
)

type fakeSubtitleService struct {
	searchFunc  func(ctx context.Context, req search.LookupRequest) (domain.SearchResponse, error)
	resolveFunc func(ctx context.Context, token string) (*domain.ResolvedSubtitle, error)
}

func (f *fakeSubtitleService) Search(ctx context.Context, req search.LookupRequest) (domain.SearchResponse, error) {
	if f.searchFunc == nil {
		return domain.SearchResponse{}, nil
	}
	return f.searchFunc(ctx, req)
}

func (f *fakeSubtitleService) Resolve(ctx context.Context, token string) (*domain.ResolvedSubtitle, error) {
	if f.resolveFunc == nil {
		return &domain.ResolvedSubtitle{}, nil
	}
	return f.resolveFunc(ctx, token)
}

func (f *fakeSubtitleService) Providers() []domain.ProviderInfo {
	return []domain.ProviderInfo{{Name: "alpha", Label: "Alpha", Enabled: true}}
}

func (f *fakeSubtitleService) ProviderDiagnostics() []domain.ProviderDiagnostics {
	return []domain.ProviderDiagnostics{{Name: "alpha"}}
}

func newTestHandler(fake *fakeSubtitleService) http.Handler {
	return NewServer(fake).Handler()
}

// ---------------------------------------------------------------------------
// /subtitles/search
// ---------------------------------------------------------------------------

func TestHandleSearchPassesRequestThrough(t *testing.T) {
	var got search.LookupRequest
	handler := newTestHandler(&fakeSubtitleService{
		searchFunc: func(_ context.Context, req search.LookupRequest) (domain.SearchResponse, error) {
			got = req
			return domain.SearchResponse{Items: []domain.RankedSubtitle{{Token: "t1", Provider: "alpha"}}}, nil
		},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/subtitles/search?id=tt1234567&filename=Movie.2019.1080p.mkv&year=2019&fps=23.976&providers=alpha,beta", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got.ID != "tt1234567" || got.Year != 2019 || got.FPS != 23.976 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Providers) != 2 || got.Providers[0] != "alpha" {
		t.Errorf("providers = %v", got.Providers)
	}

	var body domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Token != "t1" {
		t.Errorf("items = %+v", body.Items)
	}
}

func TestHandleSearchRequiresIDOrFilename(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/search", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearchMapsProviderErrors(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{
		searchFunc: func(context.Context, search.LookupRequest) (domain.SearchResponse, error) {
			return domain.SearchResponse{}, search.ErrNoProviders
		},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/search?id=tt1234567", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// /subtitles/download
// ---------------------------------------------------------------------------

func TestHandleDownloadWritesAttachment(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{
		resolveFunc: func(_ context.Context, token string) (*domain.ResolvedSubtitle, error) {
			if token != "abc" {
				t.Errorf("token = %q", token)
			}
			return &domain.ResolvedSubtitle{
				Filename: "episode.srt",
				Content:  []byte("1\n00:00:01,000 --> 00:00:02,000\nHi\n"),
				Format:   "srt",
			}, nil
		},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/download?token=abc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "episode.srt") {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "-->") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleDownloadErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad token", domain.ErrTokenDecode, http.StatusBadRequest},
		{"unsupported format", domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{"extraction failure", domain.ErrExtraction, http.StatusBadGateway},
		{"download failure", domain.ErrDownloadFailed, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(&fakeSubtitleService{
				resolveFunc: func(context.Context, string) (*domain.ResolvedSubtitle, error) {
					return nil, tc.err
				},
			})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/download?token=abc", nil))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestHandleDownloadRequiresToken(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/download", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// /subtitles/match and /subtitles/fingerprint
// ---------------------------------------------------------------------------

func TestHandleMatchRanksCandidates(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{})

	payload := `{
		"probe": {"contentHash": "aa11", "runtimeSeconds": 5400},
		"candidates": [
			{"provider": "alpha", "runtimeSeconds": 3000},
			{"provider": "beta", "contentHash": "aa11", "runtimeSeconds": 5400}
		]
	}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subtitles/match", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Matches []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Matches) != 2 {
		t.Fatalf("matches = %+v", body.Matches)
	}
	if body.Matches[0].Index != 1 {
		t.Errorf("best match index = %d, want 1", body.Matches[0].Index)
	}
}

func TestHandleMatchRequiresCandidates(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subtitles/match",
		strings.NewReader(`{"probe": {"runtimeSeconds": 5400}}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type fakeProber struct {
	fp  domain.ProbeFingerprint
	err error
}

func (f *fakeProber) Fingerprint(context.Context, string) (domain.ProbeFingerprint, error) {
	return f.fp, f.err
}

func TestHandleFingerprint(t *testing.T) {
	handler := NewServer(&fakeSubtitleService{}, WithProber(&fakeProber{
		fp: domain.ProbeFingerprint{ContentHash: "aa11", RuntimeSeconds: 5400},
	})).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/fingerprint?path=/media/movie.mkv", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "aa11") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleFingerprintWithoutProber(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/fingerprint?path=/media/movie.mkv", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Provider listing
// ---------------------------------------------------------------------------

func TestHandleProviders(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subtitles/providers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "alpha") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestNilServiceReturnsErrorEnvelope(t *testing.T) {
	handler := NewServer(nil).Handler()

	for _, target := range []string{"/subtitles/providers", "/subtitles/providers/health"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s status = %d, want 500", target, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not configured") {
			t.Errorf("%s body = %s, want the error envelope", target, rec.Body.String())
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(&fakeSubtitleService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subtitles/search", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
