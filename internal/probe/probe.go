// Package probe shells out to the external media fingerprint tool and
// parses its JSON report.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"substream/subtitleservice/internal/domain"
)

const maxProbeTimeout = 30 * time.Second

type Prober struct {
	binary string
}

func New(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "mediafp"
	}
	return &Prober{binary: bin}
}

// Fingerprint probes a local media file. The tool exits non-zero for
// partially written files but can still emit a usable hash and runtime;
// the report is kept whenever it parses.
func (p *Prober) Fingerprint(ctx context.Context, filePath string) (domain.ProbeFingerprint, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return domain.ProbeFingerprint{}, errors.New("file path is required")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, p.binary, "--json", path)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	report, parseErr := parseReport(stdout.Bytes())
	if parseErr != nil {
		if runErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return domain.ProbeFingerprint{}, fmt.Errorf("probe failed: %w", runErr)
			}
			return domain.ProbeFingerprint{}, fmt.Errorf("probe failed: %w: %s", runErr, msg)
		}
		return domain.ProbeFingerprint{}, fmt.Errorf("probe output parse failed: %w", parseErr)
	}
	if runErr != nil && report.ContentHash == "" && report.RuntimeSeconds <= 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return domain.ProbeFingerprint{}, fmt.Errorf("probe failed: %w", runErr)
		}
		return domain.ProbeFingerprint{}, fmt.Errorf("probe failed: %w: %s", runErr, msg)
	}
	return report, nil
}

// reportPayload is the subset of the probe tool's JSON output we parse.
// Numeric fields arrive as strings, matching the tool's output format.
type reportPayload struct {
	Hash      string       `json:"hash"`
	Duration  string       `json:"duration"`
	FrameRate string       `json:"frame_rate"`
	Cues      []cuePayload `json:"cues"`
}

type cuePayload struct {
	Start int64 `json:"start_ms"`
	End   int64 `json:"end_ms"`
}

func parseReport(data []byte) (domain.ProbeFingerprint, error) {
	var payload reportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.ProbeFingerprint{}, err
	}

	report := domain.ProbeFingerprint{ContentHash: strings.TrimSpace(payload.Hash)}
	if payload.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Duration, 64); err == nil && d > 0 {
			report.RuntimeSeconds = d
		}
	}
	if payload.FrameRate != "" {
		if rate, err := parseFrameRate(payload.FrameRate); err == nil && rate > 0 {
			report.FrameRate = rate
		}
	}
	for _, c := range payload.Cues {
		if c.End < c.Start {
			continue
		}
		report.Cues = append(report.Cues, domain.CueSpan{StartMS: c.Start, EndMS: c.End})
	}
	return report, nil
}

// parseFrameRate accepts both decimal ("23.976") and rational ("24000/1001")
// notation.
func parseFrameRate(raw string) (float64, error) {
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, errors.New("zero denominator")
		}
		return n / d, nil
	}
	return strconv.ParseFloat(raw, 64)
}
