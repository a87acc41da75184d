package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"substream/subtitleservice/internal/domain"
)

func TestSearchParsesListing(t *testing.T) {
	var gotKey, gotImdb, gotSeason string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotImdb = r.URL.Query().Get("imdb")
		gotSeason = r.URL.Query().Get("season")
		w.Write([]byte(`{"items":[
			{"id":"42","release":"Show.S01E02.1080p.WEB-DL","year":2020,"fps":23.976,"downloads":1500,"language":"en"},
			{"id":"","release":"missing id"}
		]}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Name: "Catalog", Endpoint: server.URL, APIKey: "secret"})
	candidates, err := provider.Search(context.Background(), domain.SearchQuery{
		Kind:    domain.MediaKindSeries,
		ImdbID:  "tt1234567",
		Season:  1,
		Episode: 2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotImdb != "tt1234567" || gotSeason != "1" {
		t.Errorf("query params: imdb=%q season=%q", gotImdb, gotSeason)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 (blank id dropped)", len(candidates))
	}
	c := candidates[0]
	if c.Provider != "catalog" || c.SourceRef != "42" || c.FPS != 23.976 {
		t.Errorf("candidate = %+v", c)
	}
	if c.Extra["language"] != "en" {
		t.Errorf("extra = %v", c.Extra)
	}
}

func TestSearchAcceptsBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"1","release":"Movie.2019.BluRay"}]`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Name: "bare", Endpoint: server.URL})
	candidates, err := provider.Search(context.Background(), domain.SearchQuery{Title: "movie"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
}

func TestSearchSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewProvider(Config{Name: "limited", Endpoint: server.URL})
	_, err := provider.Search(context.Background(), domain.SearchQuery{Title: "movie"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want HTTP 429", err)
	}
}

func TestDownloadUsesAttachmentName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/download/42") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="episode.srt"`)
		w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nHi\n"))
	}))
	defer server.Close()

	provider := NewProvider(Config{Name: "catalog", Endpoint: server.URL})
	content, name, err := provider.Download(context.Background(), domain.TokenPayload{
		Provider:  "catalog",
		SourceRef: "42",
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if name != "episode.srt" {
		t.Errorf("name = %q", name)
	}
	if len(content) == 0 {
		t.Error("empty content")
	}
}
