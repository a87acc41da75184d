package repair

import (
	"regexp"
	"strconv"
	"strings"
)

// defaultFrameRate is assumed when neither the player nor the file itself
// declares one. 23.976 is the dominant film rate in practice.
const defaultFrameRate = 23.976

var microDVDLinePattern = regexp.MustCompile(`^\{(\d+)\}\{(\d+)\}(.*)$`)

// isMicroDVD reports whether the first non-empty line is a {start}{stop}
// frame-addressed cue.
func isMicroDVD(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return microDVDLinePattern.MatchString(line)
	}
	return false
}

// convertMicroDVD maps frame-addressed cues to time-addressed ones. The
// frame rate precedence is: the caller's player-reported rate, then a
// {1}{1}fps declaration inside the file, then defaultFrameRate. Lines that
// do not parse are dropped rather than failing the whole file.
func convertMicroDVD(text string, playerFPS float64) []cue {
	fps := playerFPS
	declared, body := splitFPSDeclaration(text)
	if fps <= 0 {
		fps = declared
	}
	if fps <= 0 {
		fps = defaultFrameRate
	}

	var cues []cue
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		match := microDVDLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		startFrame, err1 := strconv.ParseInt(match[1], 10, 64)
		stopFrame, err2 := strconv.ParseInt(match[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		payload := strings.TrimSpace(match[3])
		if payload == "" {
			continue
		}
		cues = append(cues, cue{
			startMS: framesToMillis(startFrame, fps),
			endMS:   framesToMillis(stopFrame, fps),
			// MicroDVD separates visual lines with a pipe.
			lines: strings.Split(payload, "|"),
		})
	}
	return cues
}

// splitFPSDeclaration consumes a leading {1}{1}23.976 style marker when
// present and returns the declared rate plus the remaining body.
func splitFPSDeclaration(text string) (float64, string) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		match := microDVDLinePattern.FindStringSubmatch(trimmed)
		if match == nil || match[1] != "1" || match[2] != "1" {
			return 0, text
		}
		declared, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(match[3]), ",", "."), 64)
		if err != nil || declared < 10 || declared > 120 {
			return 0, text
		}
		return declared, strings.Join(lines[i+1:], "\n")
	}
	return 0, text
}

func framesToMillis(frame int64, fps float64) int64 {
	return int64(float64(frame)/fps*1000 + 0.5)
}
