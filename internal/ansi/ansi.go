// Package ansi filters ANSI escape sequences out of text. Jenkins console
// logs are often colorized by build plugins; when our own output is not a
// color-capable terminal the sequences are noise.
package ansi

import (
	"io"
	"strings"
)

// Strip removes ANSI escape sequences from a string.
func Strip(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StripWriter wraps a writer and removes escape sequences from everything
// written through it. Sequences split across Write calls are handled.
type StripWriter struct {
	w        io.Writer
	inEscape bool
}

// NewStripWriter returns a writer that strips ANSI sequences before
// forwarding to w.
func NewStripWriter(w io.Writer) *StripWriter {
	return &StripWriter{w: w}
}

// Write strips escape sequences from p and forwards the rest. The returned
// count is len(p) on success so callers see a full write.
func (sw *StripWriter) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p))
	for _, b := range p {
		if b == 0x1b {
			sw.inEscape = true
			continue
		}
		if sw.inEscape {
			if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') {
				sw.inEscape = false
			}
			continue
		}
		out = append(out, b)
	}

	if len(out) > 0 {
		if _, err := sw.w.Write(out); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}
