package decoder

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

// chunkSource replays fixed chunks, then returns err (io.EOF when nil).
type chunkSource struct {
	chunks [][]byte
	err    error
	i      int
}

func (c *chunkSource) Next(ctx context.Context) ([]byte, error) {
	if c.i < len(c.chunks) {
		ch := c.chunks[c.i]
		c.i++
		return ch, nil
	}
	if c.err != nil {
		return nil, c.err
	}
	return nil, io.EOF
}

func sourceOf(chunks ...string) *chunkSource {
	src := &chunkSource{}
	for _, ch := range chunks {
		src.chunks = append(src.chunks, []byte(ch))
	}
	return src
}

// dataFrame renders one `data:` line carrying a content delta.
func dataFrame(t *testing.T, delta string) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{"content": delta})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return "data: " + string(b) + "\n\n"
}

func sseBody(t *testing.T, done bool, deltas ...string) string {
	t.Helper()
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(dataFrame(t, d))
	}
	if done {
		b.WriteString("data: [DONE]\n\n")
	}
	return b.String()
}

func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var out []Event
	for ev := range s.Events(context.Background()) {
		out = append(out, ev)
	}
	return out
}

func applyAll(s *Session, deltas ...string) []Event {
	var out []Event
	for _, d := range deltas {
		out = append(out, s.ApplyDelta(d)...)
	}
	return out
}

func ofKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func forPath(events []Event, kind EventKind, path string) []Event {
	var out []Event
	for _, ev := range ofKind(events, kind) {
		if ev.Path == path {
			out = append(out, ev)
		}
	}
	return out
}

func completions(events []Event, path string) int {
	n := 0
	for _, ev := range forPath(events, EventFileContentUpdated, path) {
		if ev.Complete {
			n++
		}
	}
	return n
}

// splitEvery cuts s into pieces of n bytes.
func splitEvery(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
