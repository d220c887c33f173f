package transport

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const maxLineLength = 4096

// LineSplitter accumulates raw reads and yields complete decoded lines.
type LineSplitter struct {
	buf []byte
}

func (l *LineSplitter) Feed(p []byte) []string {
	l.buf = append(l.buf, p...)
	var lines []string
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(DecodeLine(l.buf[:i])); line != "" {
			lines = append(lines, line)
		}
		l.buf = l.buf[i+1:]
	}
	// A peer that never sends a newline should not grow the buffer forever.
	if len(l.buf) > maxLineLength {
		if line := strings.TrimSpace(DecodeLine(l.buf)); line != "" {
			lines = append(lines, line)
		}
		l.buf = nil
	}
	return lines
}

// DecodeLine decodes b as UTF-8 and falls back to ISO-8859-1, which maps every
// byte to a rune, when the link delivered something that is not valid UTF-8.
func DecodeLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
