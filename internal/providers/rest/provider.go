// Package rest implements the subtitle provider contract against JSON HTTP
// catalog APIs. One Provider instance per configured endpoint.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"substream/subtitleservice/internal/domain"
)

const (
	defaultUserAgent = "substream-subtitle-search/1.0"
	maxListBytes     = 4 << 20
	maxFileBytes     = 32 << 20
)

type Config struct {
	Name      string
	Label     string
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	name      string
	label     string
	endpoint  string
	apiKey    string
	userAgent string
}

type apiItem struct {
	ID        string  `json:"id"`
	Release   string  `json:"release"`
	Year      int     `json:"year"`
	FPS       float64 `json:"fps"`
	Rating    float64 `json:"rating"`
	Downloads int     `json:"downloads"`
	Comments  int     `json:"comments"`
	Format    string  `json:"format"`
	Language  string  `json:"language"`
	Uploader  string  `json:"uploader"`
}

type apiListing struct {
	Items []apiItem `json:"items"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	label := strings.TrimSpace(cfg.Label)
	if label == "" {
		label = name
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Provider{
		client:    client,
		name:      name,
		label:     label,
		endpoint:  strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.name,
		Label:   p.label,
		Kind:    "rest",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, query domain.SearchQuery) ([]domain.Candidate, error) {
	uri, err := url.Parse(p.endpoint + "/search")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	if query.ImdbID != "" {
		values.Set("imdb", query.ImdbID)
	}
	if query.Title != "" {
		values.Set("query", query.Title)
	}
	if query.Year > 0 {
		values.Set("year", strconv.Itoa(query.Year))
	}
	if query.Kind == domain.MediaKindSeries {
		values.Set("season", strconv.Itoa(query.Season))
		values.Set("episode", strconv.Itoa(query.Episode))
	}
	uri.RawQuery = values.Encode()

	payload, _, err := p.get(ctx, uri.String(), maxListBytes)
	if err != nil {
		return nil, err
	}

	items, err := parseListing(payload)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(items))
	for _, item := range items {
		candidate, ok := p.toCandidate(item)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (p *Provider) Download(ctx context.Context, ref domain.TokenPayload) ([]byte, string, error) {
	id := strings.TrimSpace(ref.SourceRef)
	if id == "" {
		return nil, "", fmt.Errorf("empty source reference")
	}
	uri := p.endpoint + "/download/" + url.PathEscape(id)

	content, header, err := p.get(ctx, uri, maxFileBytes)
	if err != nil {
		return nil, "", err
	}
	return content, attachmentName(header), nil
}

func (p *Provider) get(ctx context.Context, uri string, limit int64) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json, application/octet-stream")
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, nil, fmt.Errorf("provider HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, nil, err
	}
	return payload, resp.Header, nil
}

func parseListing(payload []byte) ([]apiItem, error) {
	var listing apiListing
	if err := json.Unmarshal(payload, &listing); err == nil && listing.Items != nil {
		return listing.Items, nil
	}

	// Some catalogs return a bare array.
	var items []apiItem
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}

	return nil, fmt.Errorf("unexpected provider payload")
}

func (p *Provider) toCandidate(item apiItem) (domain.Candidate, bool) {
	id := strings.TrimSpace(item.ID)
	release := strings.TrimSpace(item.Release)
	if id == "" || release == "" {
		return domain.Candidate{}, false
	}

	var extra map[string]string
	if lang := strings.TrimSpace(item.Language); lang != "" {
		extra = map[string]string{"language": lang}
	}
	if uploader := strings.TrimSpace(item.Uploader); uploader != "" {
		if extra == nil {
			extra = map[string]string{}
		}
		extra["uploader"] = uploader
	}

	return domain.Candidate{
		Provider:  p.name,
		SourceRef: id,
		Info:      release,
		Year:      item.Year,
		FPS:       item.FPS,
		Rating:    item.Rating,
		Downloads: item.Downloads,
		Comments:  item.Comments,
		Format:    strings.ToLower(strings.TrimSpace(item.Format)),
		Extra:     extra,
	}, true
}

func attachmentName(header http.Header) string {
	if header == nil {
		return ""
	}
	disposition := header.Get("Content-Disposition")
	if disposition == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		return params["filename"]
	}
	return ""
}
