// Package repair turns raw provider downloads into clean, playable subtitle
// files: archive extraction, charset normalization, format conversion, and
// SubRip timing repair.
package repair

import (
	"fmt"
	"path"
	"strings"

	"substream/subtitleservice/internal/domain"
)

// Options tune one repair run.
type Options struct {
	// FPS is the player-reported frame rate, used for frame-addressed
	// formats. Zero means unknown.
	FPS float64
	// FormatHint is the format the provider claimed, e.g. "sub" or "srt".
	// The pipeline trusts content sniffing over the hint.
	FormatHint string
}

// Result is the repaired subtitle file.
type Result struct {
	Filename string
	Content  []byte
	Encoding string
	Format   string
}

// Process runs the full repair pipeline on a raw download. Time-addressed
// output is always canonical SubRip; styled formats (ASS/SSA, WebVTT) pass
// through with text normalization only. Process is a pure function of its
// inputs and is idempotent: feeding a result back in reproduces it.
func Process(raw []byte, name string, opts Options) (Result, error) {
	member, err := extractArchive(raw, name)
	if err != nil {
		return Result{}, err
	}

	text, sourceEncoding, err := normalizeText(member.content)
	if err != nil {
		return Result{}, err
	}

	switch {
	case isMicroDVD(text):
		cues := repairCues(convertMicroDVD(text, opts.FPS))
		if len(cues) == 0 {
			return Result{}, fmt.Errorf("%w: no usable frame-addressed cues", domain.ErrUnsupportedFormat)
		}
		return Result{
			Filename: replaceExt(member.name, ".srt"),
			Content:  renderSRT(cues),
			Encoding: sourceEncoding,
			Format:   "srt",
		}, nil
	case looksLikeASS(text):
		return Result{
			Filename: replaceExt(member.name, ".ass"),
			Content:  []byte(text),
			Encoding: sourceEncoding,
			Format:   "ass",
		}, nil
	case looksLikeVTT(text):
		return Result{
			Filename: replaceExt(member.name, ".vtt"),
			Content:  []byte(text),
			Encoding: sourceEncoding,
			Format:   "vtt",
		}, nil
	default:
		cues := repairCues(parseSRT(text))
		if len(cues) == 0 {
			return Result{}, fmt.Errorf("%w: no recognizable cues (hint %q)", domain.ErrUnsupportedFormat, opts.FormatHint)
		}
		return Result{
			Filename: replaceExt(member.name, ".srt"),
			Content:  renderSRT(cues),
			Encoding: sourceEncoding,
			Format:   "srt",
		}, nil
	}
}

func looksLikeASS(text string) bool {
	head := strings.ToLower(firstLines(text, 10))
	return strings.Contains(head, "[script info]") || strings.Contains(head, "[v4+ styles]")
}

func looksLikeVTT(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "WEBVTT")
}

func firstLines(text string, n int) string {
	lines := strings.SplitN(text, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func replaceExt(name, ext string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		base = "subtitle" + ext
	}
	if old := path.Ext(base); old != "" {
		base = strings.TrimSuffix(base, old)
	}
	return base + ext
}
