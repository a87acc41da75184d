package search

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"substream/subtitleservice/internal/domain"
)

var (
	imdbPattern           = regexp.MustCompile(`^(tt\d{6,9})(?::(\d{1,3}):(\d{1,3}))?$`)
	tokenPattern          = regexp.MustCompile(`[\p{L}\p{N}]+`)
	yearPattern           = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	seasonEpisodePattern  = regexp.MustCompile(`(?i)\bs\s*(\d{1,2})\s*e\s*(\d{1,3})\b`)
	seasonXEpisodePattern = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,3})\b`)
)

// releaseStopTokens are resolution/source/codec/group noise stripped from
// filenames when synthesizing a fallback query.
var releaseStopTokens = map[string]struct{}{
	"2160p": {}, "1440p": {}, "1080p": {}, "720p": {}, "480p": {}, "4k": {},
	"x264": {}, "h264": {}, "x265": {}, "h265": {}, "hevc": {}, "av1": {}, "xvid": {}, "divx": {},
	"bluray": {}, "blu": {}, "ray": {}, "bdrip": {}, "brrip": {}, "webrip": {}, "web": {},
	"webdl": {}, "dl": {}, "dvdrip": {}, "dvd": {}, "hdrip": {}, "hdtv": {}, "remux": {},
	"cam": {}, "camrip": {}, "ts": {}, "telesync": {}, "scr": {}, "screener": {}, "workprint": {},
	"aac": {}, "ac3": {}, "eac3": {}, "dts": {}, "atmos": {}, "truehd": {}, "mp3": {}, "flac": {},
	"hdr": {}, "hdr10": {}, "dv": {}, "10bit": {}, "8bit": {},
	"proper": {}, "repack": {}, "internal": {}, "limited": {}, "extended": {}, "unrated": {},
	"multi": {}, "dual": {}, "sub": {}, "subs": {}, "nf": {}, "amzn": {}, "dsnp": {},
	"mkv": {}, "mp4": {}, "avi": {}, "srt": {},
}

// QueryHints carries the optional metadata that accompanies an identifier.
type QueryHints struct {
	Filename string
	Title    string
	Year     int
	FPS      float64
}

// NormalizeQuery turns a heterogeneous media identifier plus hints into a
// canonical SearchQuery. When authoritative metadata is unavailable it
// synthesizes a fallback query from filename heuristics; when neither exists
// it fails with ErrNormalization.
func NormalizeQuery(rawID string, hints QueryHints) (domain.SearchQuery, error) {
	id := strings.TrimSpace(strings.ToLower(rawID))
	id = stripCatalogPrefix(id)

	query := domain.SearchQuery{
		Kind:     domain.MediaKindMovie,
		Title:    strings.TrimSpace(hints.Title),
		Year:     hints.Year,
		FPS:      hints.FPS,
		Filename: strings.TrimSpace(hints.Filename),
	}

	if match := imdbPattern.FindStringSubmatch(id); match != nil {
		query.ImdbID = match[1]
		if match[2] != "" {
			query.Kind = domain.MediaKindSeries
			query.Season = parseIntOrZero(match[2])
			query.Episode = parseIntOrZero(match[3])
		}
	}

	if query.Title == "" && query.Filename != "" {
		title, year, season, episode := parseFilename(query.Filename)
		query.Title = title
		if query.Year == 0 {
			query.Year = year
		}
		if query.Season == 0 && season > 0 {
			query.Kind = domain.MediaKindSeries
			query.Season = season
			query.Episode = episode
		}
	}

	if query.ImdbID == "" && query.Title == "" {
		return domain.SearchQuery{}, domain.ErrNormalization
	}

	query.Fragment = normalizeFragment(query.Title)
	return query, nil
}

// stripCatalogPrefix drops an alternate catalog's id scheme ("local:tt123",
// "stream:tt123:1:2") so the canonical identifier remains.
func stripCatalogPrefix(id string) string {
	if imdbPattern.MatchString(id) {
		return id
	}
	prefix, rest, ok := strings.Cut(id, ":")
	if !ok || strings.HasPrefix(prefix, "tt") {
		return id
	}
	if imdbPattern.MatchString(rest) {
		return rest
	}
	return id
}

// parseFilename applies release-name heuristics: strip the extension and
// release tokens, stop at the first year or season marker, and keep the
// leading tokens as the title.
func parseFilename(filename string) (title string, year, season, episode int) {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	lower := strings.ToLower(base)

	year = extractYear(lower)
	if match := seasonEpisodePattern.FindStringSubmatch(lower); match != nil {
		season = parseIntOrZero(match[1])
		episode = parseIntOrZero(match[2])
	} else if match := seasonXEpisodePattern.FindStringSubmatch(lower); match != nil {
		season = parseIntOrZero(match[1])
		episode = parseIntOrZero(match[2])
	}

	var titleTokens []string
	for _, token := range tokenPattern.FindAllString(lower, -1) {
		if _, stop := releaseStopTokens[token]; stop {
			break
		}
		if numeric, err := strconv.Atoi(token); err == nil && numeric == year && year > 0 {
			break
		}
		if seasonEpisodePattern.MatchString(token) || seasonXEpisodePattern.MatchString(token) {
			break
		}
		titleTokens = append(titleTokens, token)
	}
	return strings.Join(titleTokens, " "), year, season, episode
}

func extractYear(input string) int {
	matches := yearPattern.FindAllString(input, -1)
	if len(matches) == 0 {
		return 0
	}
	// The last 4-digit year in a release name is almost always the release
	// year; earlier ones tend to belong to the title itself.
	return parseIntOrZero(matches[len(matches)-1])
}

// normalizeFragment lower-cases and token-normalizes a title for fuzzy
// containment checks.
func normalizeFragment(title string) string {
	tokens := tokenPattern.FindAllString(strings.ToLower(title), -1)
	return strings.Join(tokens, " ")
}

func parseIntOrZero(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// queryKey is the canonical cache/breaker key for one SearchQuery.
func queryKey(q domain.SearchQuery) string {
	parts := []string{string(q.Kind)}
	if q.ImdbID != "" {
		parts = append(parts, q.ImdbID)
	} else {
		parts = append(parts, q.Fragment)
	}
	if q.Year > 0 {
		parts = append(parts, fmt.Sprintf("y%d", q.Year))
	}
	if q.Season > 0 {
		parts = append(parts, fmt.Sprintf("s%d", q.Season))
	}
	if q.Episode > 0 {
		parts = append(parts, fmt.Sprintf("e%d", q.Episode))
	}
	return strings.Join(parts, "|")
}
