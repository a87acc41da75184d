package fingerprint

import (
	"testing"

	"substream/subtitleservice/internal/domain"
)

func cuesEvery(runtimeSeconds float64, perSecond float64) []domain.CueSpan {
	interval := int64(1000 / perSecond)
	var cues []domain.CueSpan
	for at := int64(0); at < int64(runtimeSeconds*1000); at += interval {
		cues = append(cues, domain.CueSpan{StartMS: at, EndMS: at + 800})
	}
	return cues
}

func TestRankHashMatchDominates(t *testing.T) {
	probe := domain.ProbeFingerprint{
		ContentHash:    "abc123",
		RuntimeSeconds: 5400,
	}
	candidates := []domain.CandidateFingerprint{
		// Perfect soft signals, wrong hash.
		{ContentHash: "zzz", RuntimeSeconds: 5400, Cues: cuesEvery(5400, 0.4)},
		// Exact hash, mediocre soft signals.
		{ContentHash: "abc123", RuntimeSeconds: 4000},
	}

	matches := Rank(probe, candidates, 0)
	if matches[0].Index != 1 {
		t.Fatalf("top match = index %d, want the hash-matching candidate", matches[0].Index)
	}
	if matches[0].Score <= matches[1].Score {
		t.Fatalf("hash match did not dominate: %v <= %v", matches[0].Score, matches[1].Score)
	}
}

func TestRankPrefersCloserRuntime(t *testing.T) {
	probe := domain.ProbeFingerprint{RuntimeSeconds: 6000}
	candidates := []domain.CandidateFingerprint{
		{RuntimeSeconds: 3000},
		{RuntimeSeconds: 5900},
	}

	matches := Rank(probe, candidates, 1)
	if len(matches) != 1 || matches[0].Index != 1 {
		t.Fatalf("matches = %v, want single entry for index 1", matches)
	}
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	probe := domain.ProbeFingerprint{RuntimeSeconds: 5400}
	same := domain.CandidateFingerprint{RuntimeSeconds: 5400}
	candidates := []domain.CandidateFingerprint{same, same, same}

	matches := Rank(probe, candidates, 0)
	for want, match := range matches {
		if match.Index != want {
			t.Fatalf("tie order broken: matches = %v", matches)
		}
	}
}

func TestRankUnknownRuntimeIsNeutral(t *testing.T) {
	probe := domain.ProbeFingerprint{RuntimeSeconds: 0}
	candidates := []domain.CandidateFingerprint{{RuntimeSeconds: 5400}}

	matches := Rank(probe, candidates, 0)
	if matches[0].Score != 0 {
		t.Fatalf("score = %v, want 0 for unknown probe runtime", matches[0].Score)
	}
}
