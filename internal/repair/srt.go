package repair

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// minCueDurationMS replaces non-positive cue durations produced by broken
// timestamps.
const minCueDurationMS = 500

type cue struct {
	startMS int64
	endMS   int64
	lines   []string
}

// srtTimePattern accepts the comma, dot, and colon millisecond separators
// seen in the wild, plus missing leading zeros.
var srtTimePattern = regexp.MustCompile(`(\d{1,2}):(\d{1,2}):(\d{1,2})[,.:](\d{1,3})`)

var srtTimingLinePattern = regexp.MustCompile(
	`^\s*(\d{1,2}:\d{1,2}:\d{1,2}[,.:]\d{1,3})\s*-+>\s*(\d{1,2}:\d{1,2}:\d{1,2}[,.:]\d{1,3})`)

// parseSRT tolerantly reads SubRip text. Index lines are ignored (they get
// renumbered on output), malformed blocks are dropped, and text lines are
// gathered until the next blank line.
func parseSRT(text string) []cue {
	var cues []cue
	var current *cue

	flush := func() {
		if current != nil && len(current.lines) > 0 {
			cues = append(cues, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if match := srtTimingLinePattern.FindStringSubmatch(trimmed); match != nil {
			flush()
			start, ok1 := parseSRTTime(match[1])
			end, ok2 := parseSRTTime(match[2])
			if !ok1 || !ok2 {
				continue
			}
			current = &cue{startMS: start, endMS: end}
			continue
		}
		if current == nil {
			// Index line or stray text before the first timing line.
			continue
		}
		current.lines = append(current.lines, trimmed)
	}
	flush()
	return cues
}

func parseSRTTime(raw string) (int64, bool) {
	match := srtTimePattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, false
	}
	hours, _ := strconv.ParseInt(match[1], 10, 64)
	minutes, _ := strconv.ParseInt(match[2], 10, 64)
	seconds, _ := strconv.ParseInt(match[3], 10, 64)
	millisRaw := match[4]
	for len(millisRaw) < 3 {
		millisRaw += "0"
	}
	millis, _ := strconv.ParseInt(millisRaw, 10, 64)
	if minutes > 59 || seconds > 59 {
		return 0, false
	}
	return ((hours*60+minutes)*60+seconds)*1000 + millis, true
}

// repairCues enforces monotonic sanity on a cue list: non-positive
// durations are extended to minCueDurationMS and empty cues are removed.
func repairCues(cues []cue) []cue {
	repaired := cues[:0:0]
	for _, c := range cues {
		if len(c.lines) == 0 {
			continue
		}
		if c.endMS <= c.startMS {
			c.endMS = c.startMS + minCueDurationMS
		}
		repaired = append(repaired, c)
	}
	return repaired
}

// renderSRT writes the canonical SubRip form: sequential indices from 1,
// "HH:MM:SS,mmm --> HH:MM:SS,mmm" timing lines, \n separators, and a
// trailing newline. Rendering is idempotent: parsing the output and
// rendering again yields identical bytes.
func renderSRT(cues []cue) []byte {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		b.WriteString(formatSRTTime(c.startMS))
		b.WriteString(" --> ")
		b.WriteString(formatSRTTime(c.endMS))
		b.WriteByte('\n')
		for _, line := range c.lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

func formatSRTTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	minutes := ms % 3600000 / 60000
	seconds := ms % 60000 / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
