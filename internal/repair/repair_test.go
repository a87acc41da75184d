package repair

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"substream/subtitleservice/internal/domain"
)

// ---------------------------------------------------------------------------
// MicroDVD conversion
// ---------------------------------------------------------------------------

func TestProcessMicroDVDUsesPlayerFrameRate(t *testing.T) {
	raw := []byte("{0}{25}Hello\n{50}{75}World|Again\n")

	result, err := Process(raw, "movie.sub", Options{FPS: 25})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Format != "srt" {
		t.Fatalf("format = %q, want srt", result.Format)
	}
	content := string(result.Content)
	if !strings.Contains(content, "00:00:00,000 --> 00:00:01,000") {
		t.Errorf("first cue timing missing, got:\n%s", content)
	}
	if !strings.Contains(content, "00:00:02,000 --> 00:00:03,000") {
		t.Errorf("second cue timing missing, got:\n%s", content)
	}
	if !strings.Contains(content, "World\nAgain") {
		t.Errorf("pipe separator not split into lines, got:\n%s", content)
	}
	if result.Filename != "movie.srt" {
		t.Errorf("filename = %q, want movie.srt", result.Filename)
	}
}

func TestProcessMicroDVDDeclaredFrameRate(t *testing.T) {
	// A {1}{1} marker declares the rate when the player reports none.
	raw := []byte("{1}{1}50\n{100}{200}Text\n")

	result, err := Process(raw, "movie.sub", Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(string(result.Content), "00:00:02,000 --> 00:00:04,000") {
		t.Errorf("declared fps not honored, got:\n%s", result.Content)
	}
}

func TestConvertMicroDVDDropsMalformedLines(t *testing.T) {
	cues := convertMicroDVD("{0}{25}ok\ngarbage line\n{malformed}{25}x\n", 25)
	if len(cues) != 1 {
		t.Fatalf("cues = %d, want 1", len(cues))
	}
}

// ---------------------------------------------------------------------------
// SubRip repair
// ---------------------------------------------------------------------------

func TestProcessRepairsBrokenSRT(t *testing.T) {
	raw := []byte("7\n00:00:05.500 --> 00:00:04,000\nBackwards cue\n\n" +
		"9\n0:1:2,50 --> 00:01:04,000\nShort fields\n\n" +
		"not a block at all\n")

	result, err := Process(raw, "broken.srt", Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	content := string(result.Content)
	// Non-positive duration extended, indices renumbered from 1.
	if !strings.HasPrefix(content, "1\n00:00:05,500 --> 00:00:06,000") {
		t.Errorf("broken duration not repaired, got:\n%s", content)
	}
	if !strings.Contains(content, "2\n00:01:02,500 --> 00:01:04,000") {
		t.Errorf("short timestamp fields not normalized, got:\n%s", content)
	}
}

func TestProcessSRTIsIdempotent(t *testing.T) {
	raw := []byte("1\n00:00:01,000 --> 00:00:02,500\nFirst\n\n2\n00:00:03,000 --> 00:00:04,000\nSecond line\nwith two rows\n")

	once, err := Process(raw, "a.srt", Options{})
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	twice, err := Process(once.Content, once.Filename, Options{})
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !bytes.Equal(once.Content, twice.Content) {
		t.Errorf("repair is not idempotent:\nfirst:\n%s\nsecond:\n%s", once.Content, twice.Content)
	}
}

func TestProcessStripsFormattingCodes(t *testing.T) {
	raw := []byte("1\n00:00:01,000 --> 00:00:02,000\n{y:i}<font color=\"red\">Styled</font> text\n")

	result, err := Process(raw, "styled.srt", Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	content := string(result.Content)
	if strings.Contains(content, "{y:") || strings.Contains(content, "<font") {
		t.Errorf("formatting codes survived repair:\n%s", content)
	}
	if !strings.Contains(content, "Styled text") {
		t.Errorf("text payload damaged:\n%s", content)
	}
}

// ---------------------------------------------------------------------------
// Container and encoding handling
// ---------------------------------------------------------------------------

func TestProcessExtractsBestZipMember(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"readme.txt":     "not a subtitle",
		"mislabeled.srt": "this file has no cues",
		"episode.srt":    "1\n00:00:01,000 --> 00:00:02,000\nLine\n",
	} {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	result, err := Process(buf.Bytes(), "pack.zip", Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Filename != "episode.srt" {
		t.Errorf("filename = %q, want episode.srt", result.Filename)
	}
	if !strings.Contains(string(result.Content), "Line") {
		t.Errorf("wrong member extracted:\n%s", result.Content)
	}
}

func TestProcessSkipsMislabeledVTTMember(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"mislabeled.vtt": "no timing lines in here",
		"subtitle.txt":   "1\n00:00:01,000 --> 00:00:02,000\nLine\n",
	} {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	result, err := Process(buf.Bytes(), "pack.zip", Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(string(result.Content), "Line") {
		t.Errorf("wrong member extracted:\n%s", result.Content)
	}
}

func TestProcessRejectsBinaryPayload(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	_, err := Process(png, "fake.srt", Options{})
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestProcessRejectsCuelessText(t *testing.T) {
	_, err := Process([]byte("just some prose with no timing lines"), "notes.txt", Options{})
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestProcessStripsBOMAndReportsEncoding(t *testing.T) {
	raw := append([]byte{0xef, 0xbb, 0xbf}, []byte("1\n00:00:01,000 --> 00:00:02,000\nText\n")...)

	result, err := Process(raw, "bom.srt", Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Encoding != "utf-8" {
		t.Errorf("encoding = %q, want utf-8", result.Encoding)
	}
	if bytes.Contains(result.Content, []byte{0xef, 0xbb, 0xbf}) {
		t.Errorf("BOM survived normalization")
	}
}

func TestProcessPassesThroughWebVTT(t *testing.T) {
	raw := []byte("WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nCue\n")

	result, err := Process(raw, "cues.vtt", Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Format != "vtt" {
		t.Errorf("format = %q, want vtt", result.Format)
	}
}
