package decoder

import (
	"regexp"
	"strings"
)

const (
	openToken    = "[FILE:"
	closeToken   = "[/FILE]"
	serviceToken = "[SERVICE:"
	fenceToken   = "```"
)

var (
	// servicePattern captures the display name and domain of a single-line annotation.
	servicePattern = regexp.MustCompile(`\[SERVICE:[ \t]*([^|\]\n]+?)[ \t]*\|[ \t]*([^|\]\n]+?)[ \t]*\]`)

	// serviceMarkerLine matches an annotation that sits alone on its line, newline included.
	serviceMarkerLine = regexp.MustCompile(`(?m)^[ \t]*\[SERVICE:[^\]\n]*\][ \t]*(?:\r?\n|$)`)

	// serviceMarker matches any annotation-shaped marker, well-formed or not.
	serviceMarker = regexp.MustCompile(`\[SERVICE:[^\]\n]*\]`)
)

// capture is one `[FILE: path]` occurrence and the body that follows it.
//
// A body ends at the nearest `[/FILE]`, at the next `[FILE:` token, or at the end
// of the transcript, whichever comes first. An open marker therefore always
// terminates the preceding unterminated capture, and one file's body never
// runs into another file's marker.
type capture struct {
	path      string
	start     int // offset of the open marker
	bodyStart int
	end       int  // body end (exclusive)
	next      int  // where scanning resumes
	closed    bool // ended with [/FILE]
	atEOF     bool // ended at the end of the transcript; may still grow
}

// settled reports whether more text can no longer change this capture.
func (c capture) settled() bool {
	return !c.atEOF
}

// content returns the normalized body. While the stream is live a trailing
// fragment that could still become a marker is withheld, which keeps every
// draft a prefix of the content that follows it.
func (c capture) content(text string, final bool) string {
	raw := text[c.bodyStart:c.end]
	if c.atEOF && !final {
		raw = raw[:len(raw)-partialSuffixLen(raw, closeToken, openToken)]
	}
	return normalizeContent(raw)
}

// normalizeContent drops the line break(s) right after the open marker and
// trailing whitespace before the close marker.
func normalizeContent(raw string) string {
	raw = strings.TrimLeft(raw, "\r\n")
	return strings.TrimRight(raw, " \t\r\n")
}

// scanBlocks returns the captures found in text starting at offset from.
// Scanning stops early at an open marker whose closing bracket has not arrived yet.
func scanBlocks(text string, from int) []capture {
	var caps []capture
	i := from
	for i < len(text) {
		j := strings.Index(text[i:], openToken)
		if j < 0 {
			break
		}
		open := i + j
		argStart := open + len(openToken)

		k := strings.IndexByte(text[argStart:], ']')
		if k < 0 {
			nl := strings.IndexByte(text[argStart:], '\n')
			if nl < 0 {
				// Marker still arriving.
				break
			}
			i = argStart
			continue
		}
		arg := text[argStart : argStart+k]
		path := strings.TrimSpace(arg)
		if strings.ContainsAny(arg, "\r\n") || path == "" {
			// Malformed open marker; its token still ends whatever came before it.
			i = argStart
			continue
		}

		c := capture{path: path, start: open, bodyStart: argStart + k + 1}
		body := text[c.bodyStart:]
		closeAt := strings.Index(body, closeToken)
		nextOpen := strings.Index(body, openToken)

		switch {
		case closeAt >= 0 && (nextOpen < 0 || closeAt < nextOpen):
			c.end = c.bodyStart + closeAt
			c.next = c.end + len(closeToken)
			c.closed = true
		case nextOpen >= 0:
			c.end = c.bodyStart + nextOpen
			c.next = c.end
		default:
			c.end = len(text)
			c.next = len(text)
			c.atEOF = true
		}

		caps = append(caps, c)
		i = c.next
	}
	return caps
}

// findService looks for the first annotation at or after offset from. When
// nothing matches, next points past the last complete line, since the marker
// never spans lines.
func findService(text string, from int) (svc ServiceAnnotation, next int, ok bool) {
	rest := text[from:]
	if m := servicePattern.FindStringSubmatchIndex(rest); m != nil {
		return ServiceAnnotation{
			Name:   strings.TrimSpace(rest[m[2]:m[3]]),
			Domain: strings.TrimSpace(rest[m[4]:m[5]]),
		}, from + m[1], true
	}
	if nl := strings.LastIndexByte(rest, '\n'); nl >= 0 {
		return ServiceAnnotation{}, from + nl + 1, false
	}
	return ServiceAnnotation{}, from, false
}

// partialSuffixLen returns the length of the longest suffix of s that is a
// proper, non-empty prefix of one of the tokens.
func partialSuffixLen(s string, tokens ...string) int {
	best := 0
	for _, tok := range tokens {
		for k := len(tok) - 1; k > best; k-- {
			if strings.HasSuffix(s, tok[:k]) {
				best = k
				break
			}
		}
	}
	return best
}
