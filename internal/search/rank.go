package search

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"substream/subtitleservice/internal/domain"
)

// releaseAttrs are the attributes parsed out of a release name or candidate
// description. Scoring compares query attrs against candidate attrs field by
// field so each signal stays unit-testable.
type releaseAttrs struct {
	resolution string
	source     string
	codec      string
	group      string
	editions   map[string]struct{}
	bundle     bool
	lowQuality bool
	tokens     map[string]struct{}
}

var resolutionTokens = map[string]string{
	"2160p": "2160p", "4k": "2160p", "1440p": "1440p",
	"1080p": "1080p", "720p": "720p", "480p": "480p",
}

var sourceTokens = map[string]string{
	"bluray": "bluray", "blu-ray": "bluray", "bdrip": "bluray", "brrip": "bluray", "remux": "bluray",
	"webrip": "web", "webdl": "web", "web-dl": "web", "web": "web",
	"dvdrip": "dvd", "dvd": "dvd",
	"hdtv": "hdtv", "hdrip": "hdtv",
	"cam": "cam", "camrip": "cam", "hdcam": "cam", "telesync": "cam", "ts": "cam",
	"screener": "cam", "scr": "cam", "dvdscr": "cam", "workprint": "cam",
}

var codecTokens = map[string]string{
	"x264": "h264", "h264": "h264", "avc": "h264",
	"x265": "h265", "h265": "h265", "hevc": "h265",
	"xvid": "xvid", "divx": "xvid", "av1": "av1",
}

var editionTokens = map[string]struct{}{
	"directors": {}, "extended": {}, "unrated": {}, "remastered": {},
	"theatrical": {}, "imax": {}, "uncut": {},
}

var bundleTokens = map[string]struct{}{
	"trilogy": {}, "duology": {}, "dilogy": {}, "quadrilogy": {},
	"collection": {}, "complete": {}, "pack": {}, "anthology": {},
}

var lowQualityTokens = map[string]struct{}{
	"cam": {}, "camrip": {}, "hdcam": {}, "telesync": {}, "ts": {},
	"screener": {}, "scr": {}, "dvdscr": {}, "workprint": {},
}

// groupSuffixPattern captures the release-group tag after the final dash of
// a release name, tolerating one trailing file extension.
var groupSuffixPattern = regexp.MustCompile(`(?i)-([a-z0-9]+)(?:\.(?:mkv|mp4|avi|m4v|srt|sub|ssa|ass|vtt|txt))?\s*$`)

// parseReleaseGroup returns the lower-cased group tag of a release name, or
// empty when the name carries none. Known quality tokens and years after the
// final dash are not groups, and the dash inside a hyphenated source tag
// (web-dl, blu-ray) is not a group separator.
func parseReleaseGroup(raw string) string {
	raw = strings.TrimSpace(raw)
	match := groupSuffixPattern.FindStringSubmatch(raw)
	if match == nil {
		return ""
	}
	group := strings.ToLower(match[1])
	if isKnownReleaseToken(group) {
		return ""
	}
	dash := strings.LastIndex(raw, "-")
	head := raw[:dash]
	start := strings.LastIndexAny(head, " ._([") + 1
	if _, ok := sourceTokens[strings.ToLower(head[start:])+"-"+group]; ok {
		return ""
	}
	return group
}

func isKnownReleaseToken(token string) bool {
	if _, ok := resolutionTokens[token]; ok {
		return true
	}
	if _, ok := sourceTokens[token]; ok {
		return true
	}
	if _, ok := codecTokens[token]; ok {
		return true
	}
	if _, ok := editionTokens[token]; ok {
		return true
	}
	if _, ok := bundleTokens[token]; ok {
		return true
	}
	return yearPattern.MatchString(token)
}

func parseReleaseAttrs(raw string) releaseAttrs {
	attrs := releaseAttrs{
		group:    parseReleaseGroup(raw),
		editions: make(map[string]struct{}),
		tokens:   make(map[string]struct{}),
	}
	for _, token := range tokenPattern.FindAllString(strings.ToLower(raw), -1) {
		attrs.tokens[token] = struct{}{}
		if value, ok := resolutionTokens[token]; ok && attrs.resolution == "" {
			attrs.resolution = value
		}
		if value, ok := sourceTokens[token]; ok && attrs.source == "" {
			attrs.source = value
		}
		if value, ok := codecTokens[token]; ok && attrs.codec == "" {
			attrs.codec = value
		}
		if _, ok := editionTokens[token]; ok {
			attrs.editions[token] = struct{}{}
		}
		if _, ok := bundleTokens[token]; ok {
			attrs.bundle = true
		}
		if _, ok := lowQualityTokens[token]; ok {
			attrs.lowQuality = true
		}
	}
	return attrs
}

// scoreFeatures is the weighted linear model, one named field per signal.
type scoreFeatures struct {
	YearMatch      float64
	FPSCloseness   float64
	FragmentBonus  float64
	TokenOverlap   float64
	EditionMatch   float64
	Popularity     float64
	BundlePenalty  float64
	QualityPenalty float64
	MetadataBonus  float64
}

func (f scoreFeatures) total() float64 {
	return f.YearMatch + f.FPSCloseness + f.FragmentBonus + f.TokenOverlap +
		f.EditionMatch + f.Popularity + f.BundlePenalty + f.QualityPenalty +
		f.MetadataBonus
}

// scoreCandidate is pure: same inputs always produce the same features.
func scoreCandidate(query domain.SearchQuery, queryAttrs releaseAttrs, c domain.Candidate) scoreFeatures {
	var f scoreFeatures
	candidateAttrs := parseReleaseAttrs(c.Info)

	candidateYear := c.Year
	if candidateYear == 0 {
		candidateYear = extractYear(strings.ToLower(c.Info))
	}
	if query.Year > 0 && candidateYear > 0 {
		switch delta := abs(query.Year - candidateYear); {
		case delta == 0:
			f.YearMatch = 20
		case delta == 1:
			f.YearMatch = 10
		default:
			f.YearMatch = -12
		}
	}

	if query.FPS > 0 && c.FPS > 0 {
		switch delta := math.Abs(query.FPS - c.FPS); {
		case delta < 0.01:
			f.FPSCloseness = 15
		case delta < 0.5:
			f.FPSCloseness = 8
		case delta >= 1:
			f.FPSCloseness = -10
		}
	}

	if query.Fragment != "" && fragmentContained(query.Fragment, candidateAttrs.tokens) {
		f.FragmentBonus = 10
	}

	f.TokenOverlap = releaseTokenScore(queryAttrs, candidateAttrs)

	f.EditionMatch = editionScore(queryAttrs.editions, candidateAttrs.editions)

	f.Popularity = math.Log1p(math.Max(float64(c.Downloads), 0))*2 +
		math.Log1p(math.Max(float64(c.Comments), 0)) +
		math.Max(c.Rating, 0)*0.3

	if candidateAttrs.bundle && !queryAttrs.bundle {
		f.BundlePenalty = -15
	}
	if candidateAttrs.lowQuality && !queryAttrs.lowQuality {
		f.QualityPenalty = -20
	}

	f.MetadataBonus = math.Min(float64(len(c.Info))/80, 3)
	return f
}

// releaseTokenScore compares resolution, source tier, codec, and release
// group with symmetric penalties: a BluRay request matching a DVDRip
// candidate loses as much as a match gains.
func releaseTokenScore(query, candidate releaseAttrs) float64 {
	score := 0.0
	compare := func(left, right string, weight float64) {
		if left == "" || right == "" {
			return
		}
		if left == right {
			score += weight
		} else {
			score -= weight
		}
	}
	compare(query.resolution, candidate.resolution, 6)
	compare(query.source, candidate.source, 6)
	compare(query.codec, candidate.codec, 4)
	compare(query.group, candidate.group, 5)
	return score
}

func editionScore(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 && len(candidate) == 0 {
		return 0
	}
	score := 0.0
	for edition := range query {
		if _, ok := candidate[edition]; ok {
			score += 8
		} else {
			score -= 8
		}
	}
	for edition := range candidate {
		if _, ok := query[edition]; !ok {
			score -= 8
		}
	}
	return score
}

func fragmentContained(fragment string, tokens map[string]struct{}) bool {
	for _, token := range strings.Fields(fragment) {
		if _, ok := tokens[token]; !ok {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ---------------------------------------------------------------------------
// Dedupe, rank, select
// ---------------------------------------------------------------------------

type selectionPolicy struct {
	perProviderCap int
	globalCap      int
	unlimited      map[string]struct{}
}

// rankAndSelect removes duplicates, scores every survivor, and picks a
// bounded, provider-diverse result set in deterministic order: score
// descending, original fan-out index ascending.
func rankAndSelect(query domain.SearchQuery, candidates []indexedCandidate, policy selectionPolicy) []domain.ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	// Dedupe by (provider, sourceRef), keeping the first occurrence in
	// fan-out order.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].index < candidates[j].index
	})
	seen := make(map[string]struct{}, len(candidates))
	unique := candidates[:0:0]
	for _, c := range candidates {
		key := c.Provider + "|" + c.SourceRef
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}

	queryAttrs := parseReleaseAttrs(query.Filename)

	// Strict pass: only candidates whose description contains the full
	// title fragment qualify. When release naming is too inconsistent and
	// nothing qualifies, the soft pass re-ranks everything on parsed
	// release attributes alone so the result set is not empty.
	pool := make([]indexedCandidate, 0, len(unique))
	if query.Fragment != "" {
		for _, c := range unique {
			if fragmentContained(query.Fragment, parseReleaseAttrs(c.Info).tokens) {
				pool = append(pool, c)
			}
		}
	}
	if len(pool) == 0 {
		pool = unique
	}

	scored := make([]domain.ScoredCandidate, 0, len(pool))
	for _, c := range pool {
		features := scoreCandidate(query, queryAttrs, c.Candidate)
		scored = append(scored, domain.ScoredCandidate{
			Candidate:   c.Candidate,
			Score:       features.total(),
			FanOutIndex: c.index,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].FanOutIndex < scored[j].FanOutIndex
	})

	return applySelection(scored, policy)
}

// applySelection enforces the per-provider signature dedupe, per-provider
// caps, the diversity floor (at least one result per non-empty provider),
// and the optional global cap.
func applySelection(scored []domain.ScoredCandidate, policy selectionPolicy) []domain.ScoredCandidate {
	perProviderCount := make(map[string]int)
	signatures := make(map[string]struct{})

	kept := make([]domain.ScoredCandidate, 0, len(scored))
	for _, item := range scored {
		// Same (fps + token set) within one provider is a duplicate; the
		// ranked order guarantees the highest-scored copy wins.
		signature := item.Provider + "|" + dedupeSignature(item.Candidate)
		if _, dup := signatures[signature]; dup {
			continue
		}
		if limit := providerCap(policy, item.Provider); limit > 0 && perProviderCount[item.Provider] >= limit {
			continue
		}
		signatures[signature] = struct{}{}
		perProviderCount[item.Provider]++
		kept = append(kept, item)
	}

	if policy.globalCap <= 0 || len(kept) <= policy.globalCap {
		return kept
	}

	// Diversity floor under the global cap: reserve the best entry of every
	// provider first, then fill the remaining slots in ranked order.
	bestByProvider := make(map[string]int, len(perProviderCount))
	for i, item := range kept {
		if _, ok := bestByProvider[item.Provider]; !ok {
			bestByProvider[item.Provider] = i
		}
	}
	reserve := make(map[int]struct{}, len(bestByProvider))
	for _, i := range bestByProvider {
		reserve[i] = struct{}{}
	}

	selected := make([]domain.ScoredCandidate, 0, policy.globalCap)
	if len(reserve) >= policy.globalCap {
		// More providers than slots: take the floor entries in ranked order.
		for i := range kept {
			if _, ok := reserve[i]; ok {
				selected = append(selected, kept[i])
				if len(selected) == policy.globalCap {
					break
				}
			}
		}
		return selected
	}
	for i := range kept {
		if _, ok := reserve[i]; ok {
			selected = append(selected, kept[i])
		}
	}
	for i := range kept {
		if len(selected) == policy.globalCap {
			break
		}
		if _, ok := reserve[i]; ok {
			continue
		}
		selected = append(selected, kept[i])
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Score != selected[j].Score {
			return selected[i].Score > selected[j].Score
		}
		return selected[i].FanOutIndex < selected[j].FanOutIndex
	})
	return selected
}

func providerCap(policy selectionPolicy, provider string) int {
	if _, ok := policy.unlimited[provider]; ok {
		return 0
	}
	return policy.perProviderCap
}

// dedupeSignature is fps plus the sorted release-token set of a candidate.
func dedupeSignature(c domain.Candidate) string {
	attrs := parseReleaseAttrs(c.Info)
	tokens := make([]string, 0, len(attrs.tokens))
	for token := range attrs.tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return fmt.Sprintf("%.3f|%s", c.FPS, strings.Join(tokens, " "))
}
