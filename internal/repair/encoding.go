package repair

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"substream/subtitleservice/internal/domain"
)

var (
	formattingCodePattern = regexp.MustCompile(`(?i)\{\\?[ycsfp]:[^}]*\}`)
	markupTagPattern      = regexp.MustCompile(`(?i)</?(font|b|i|u)\b[^>]*>`)
)

// normalizeText converts arbitrary provider output to clean UTF-8 text with
// \n line endings. It reports the charset the input was decoded from and
// rejects binary payloads that merely pretend to be subtitles.
func normalizeText(raw []byte) (text string, sourceEncoding string, err error) {
	if len(raw) == 0 {
		return "", "", fmt.Errorf("%w: empty subtitle body", domain.ErrUnsupportedFormat)
	}

	detected := mimetype.Detect(raw)
	if !isTextual(detected) {
		return "", "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, detected.String())
	}

	decoded, sourceEncoding, err := decodeToUTF8(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrUnsupportedFormat, err)
	}

	text = strings.ReplaceAll(decoded, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = formattingCodePattern.ReplaceAllString(text, "")
	text = markupTagPattern.ReplaceAllString(text, "")
	text = stripControlChars(text)
	return text, sourceEncoding, nil
}

func isTextual(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// decodeToUTF8 honors a BOM first and falls back to statistical charset
// detection, which handles the windows-125x families common in older
// subtitle releases.
func decodeToUTF8(raw []byte) (string, string, error) {
	if bytes.HasPrefix(raw, []byte{0xef, 0xbb, 0xbf}) {
		return string(raw[3:]), "utf-8", nil
	}
	encoding, name, _ := charset.DetermineEncoding(raw, "text/plain")
	if name == "utf-8" {
		return string(raw), name, nil
	}
	decoded, _, err := transform.Bytes(encoding.NewDecoder(), raw)
	if err != nil {
		return "", "", err
	}
	return string(decoded), name, nil
}

func stripControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || r >= 0x20 && r != 0x7f && r != 0xfeff {
			b.WriteRune(r)
		}
	}
	return b.String()
}
