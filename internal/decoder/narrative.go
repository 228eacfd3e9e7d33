package decoder

import "strings"

// narrativeOf derives the human-readable prefix of text.
//
// cut is the offset of the first file-open token, or -1 when none has been
// seen. Annotation markers are removed wherever they appear in the prefix and
// stray close markers are dropped. Unless final is set, an unbounded prefix
// withholds a trailing fragment that may still turn into a marker.
func narrativeOf(text string, cut int, final, stopAtFence bool) string {
	prefix, bounded := text, false
	if cut >= 0 {
		prefix, bounded = text[:cut], true
	}
	if stopAtFence {
		if i := strings.Index(prefix, fenceToken); i >= 0 {
			prefix, bounded = prefix[:i], true
		}
	}

	if !final && !bounded {
		tokens := []string{openToken, serviceToken, closeToken}
		if stopAtFence {
			tokens = append(tokens, fenceToken)
		}
		prefix = prefix[:len(prefix)-partialSuffixLen(prefix, tokens...)]
		prefix = withoutUnclosedService(prefix)
	}

	prefix = serviceMarkerLine.ReplaceAllString(prefix, "")
	prefix = serviceMarker.ReplaceAllString(prefix, "")
	prefix = strings.ReplaceAll(prefix, closeToken, "")
	return strings.TrimSpace(prefix)
}

// withoutUnclosedService cuts an annotation that has started on the last line
// but whose closing bracket has not arrived.
func withoutUnclosedService(prefix string) string {
	i := strings.LastIndex(prefix, serviceToken)
	if i < 0 {
		return prefix
	}
	if strings.ContainsAny(prefix[i:], "]\n") {
		return prefix
	}
	return prefix[:i]
}
