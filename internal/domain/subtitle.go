package domain

import "time"

type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindSeries MediaKind = "series"
)

// SearchQuery is the canonical form of one incoming lookup. It is built once
// by the normalizer and never mutated afterwards.
type SearchQuery struct {
	Kind    MediaKind `json:"kind"`
	ImdbID  string    `json:"imdbId,omitempty"`
	Title   string    `json:"title"`
	Year    int       `json:"year,omitempty"`
	Season  int       `json:"season,omitempty"`
	Episode int       `json:"episode,omitempty"`
	// Fragment is the lower-cased, token-normalized title used for fuzzy
	// containment checks against provider release names.
	Fragment string  `json:"fragment,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	Filename string  `json:"filename,omitempty"`
}

// Candidate is one raw provider hit prior to ranking.
type Candidate struct {
	Provider  string            `json:"provider"`
	SourceRef string            `json:"sourceRef"`
	Info      string            `json:"info,omitempty"`
	Year      int               `json:"year,omitempty"`
	FPS       float64           `json:"fps,omitempty"`
	Rating    float64           `json:"rating,omitempty"`
	Downloads int               `json:"downloads,omitempty"`
	Comments  int               `json:"comments,omitempty"`
	Format    string            `json:"format,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// ScoredCandidate exists only while ranking; FanOutIndex is the stable
// tiebreak so identical inputs always rank identically.
type ScoredCandidate struct {
	Candidate
	Score       float64
	FanOutIndex int
}

// TokenPayload is the internal reference a client-safe token encodes. It
// contains only provider-addressable data, never credentials.
type TokenPayload struct {
	Provider  string            `json:"p"`
	SourceRef string            `json:"r"`
	Format    string            `json:"f,omitempty"`
	FPS       float64           `json:"fps,omitempty"`
	Extra     map[string]string `json:"x,omitempty"`
}

// ResolvedSubtitle is the cleaned, client-safe file produced by the resolver.
// Every concurrent waiter for the same token receives the same instance.
type ResolvedSubtitle struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
	Encoding string `json:"encoding"`
	Format   string `json:"format"`
}

// RankedSubtitle is one entry of the client-facing result set.
type RankedSubtitle struct {
	Token     string  `json:"token"`
	Provider  string  `json:"provider"`
	Info      string  `json:"info,omitempty"`
	Year      int     `json:"year,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
	Downloads int     `json:"downloads,omitempty"`
	Score     float64 `json:"score"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	// Cached is set when the provider's list was served from the provider
	// cache without a network call.
	Cached bool   `json:"cached,omitempty"`
	Error  string `json:"error,omitempty"`
}

type SearchResponse struct {
	Query     SearchQuery      `json:"query"`
	Items     []RankedSubtitle `json:"items"`
	Providers []ProviderStatus `json:"providers"`
	ElapsedMS int64            `json:"elapsedMs"`
	// Negative marks an empty response that was (or will be) served from
	// the negative cache.
	Negative bool `json:"negative,omitempty"`
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderDiagnostics struct {
	Name           string     `json:"name"`
	Label          string     `json:"label"`
	Enabled        bool       `json:"enabled"`
	TrippedQueries int        `json:"trippedQueries"`
	LastError      string     `json:"lastError,omitempty"`
	LastSuccessAt  *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt  *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS  int64      `json:"lastLatencyMs,omitempty"`
	TotalRequests  int64      `json:"totalRequests,omitempty"`
	TotalFailures  int64      `json:"totalFailures,omitempty"`
}

// CueSpan is one subtitle cue interval in milliseconds.
type CueSpan struct {
	StartMS int64 `json:"startMs"`
	EndMS   int64 `json:"endMs"`
}

// ProbeFingerprint is what the external media probe reports for a video.
type ProbeFingerprint struct {
	ContentHash    string    `json:"contentHash"`
	RuntimeSeconds float64   `json:"runtimeSeconds"`
	FrameRate      float64   `json:"frameRate,omitempty"`
	Cues           []CueSpan `json:"cues,omitempty"`
}

// CandidateFingerprint is the comparable signature of one subtitle candidate.
type CandidateFingerprint struct {
	Provider       string    `json:"provider,omitempty"`
	URL            string    `json:"url,omitempty"`
	ContentHash    string    `json:"contentHash,omitempty"`
	RuntimeSeconds float64   `json:"runtimeSeconds,omitempty"`
	Cues           []CueSpan `json:"cues,omitempty"`
}
