// Package fingerprint scores subtitle candidates against a media probe
// report. Everything here is pure: no I/O, no clocks, deterministic output.
package fingerprint

import (
	"math"
	"sort"

	"substream/subtitleservice/internal/domain"
)

// targetCueDensity is the typical dialogue rate of a feature film, in cues
// per second of runtime.
const targetCueDensity = 0.4

// Signal weights. The content hash dominates: an exact hash match outranks
// any combination of the soft signals.
const (
	hashWeight    = 10.0
	runtimeWeight = 3.0
	densityWeight = 2.0
	offsetWeight  = 1.0
)

// Match pairs a candidate's position in the input slice with its score.
type Match struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rank scores every candidate against the probe and returns the top k in
// descending score order. Ties keep the input order. A k of zero or less
// returns all candidates.
func Rank(probe domain.ProbeFingerprint, candidates []domain.CandidateFingerprint, k int) []Match {
	matches := make([]Match, 0, len(candidates))
	for i, candidate := range candidates {
		matches = append(matches, Match{Index: i, Score: score(probe, candidate)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func score(probe domain.ProbeFingerprint, candidate domain.CandidateFingerprint) float64 {
	total := 0.0
	if probe.ContentHash != "" && probe.ContentHash == candidate.ContentHash {
		total += hashWeight
	}
	total += runtimeWeight * runtimeScore(probe.RuntimeSeconds, candidate.RuntimeSeconds)
	total += densityWeight * densityScore(probe.RuntimeSeconds, candidate.Cues)
	total += offsetWeight * offsetScore(candidate.Cues)
	return total
}

// runtimeScore is the smaller/larger ratio of the two runtimes, 0 when
// either side is unknown. Equal runtimes score 1.
func runtimeScore(probeSeconds, candidateSeconds float64) float64 {
	if probeSeconds <= 0 || candidateSeconds <= 0 {
		return 0
	}
	if probeSeconds < candidateSeconds {
		return probeSeconds / candidateSeconds
	}
	return candidateSeconds / probeSeconds
}

// densityScore rewards cue counts near the typical dialogue rate for the
// probed runtime.
func densityScore(probeSeconds float64, cues []domain.CueSpan) float64 {
	if probeSeconds <= 0 || len(cues) == 0 {
		return 0
	}
	density := float64(len(cues)) / probeSeconds
	return 1 / (1 + math.Abs(density-targetCueDensity)/targetCueDensity)
}

// offsetScore rewards subtitles whose first cue starts near the beginning
// of the media. A 30 second offset halves the score.
func offsetScore(cues []domain.CueSpan) float64 {
	if len(cues) == 0 {
		return 0
	}
	first := cues[0].StartMS
	for _, cue := range cues[1:] {
		if cue.StartMS < first {
			first = cue.StartMS
		}
	}
	if first < 0 {
		first = 0
	}
	return 1 / (1 + float64(first)/30000)
}
