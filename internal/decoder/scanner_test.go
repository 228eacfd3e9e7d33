package decoder

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestPartialSuffixLen(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abc[", 1},
		{"abc[/", 2},
		{"abc[/FILE", 6},
		{"abc[/FILE]", 0}, // a whole token is not a partial one
		{"abc[FI", 3},
		{"abc[FILE", 5},
		{"abc[F", 2},
		{"[/F", 3},
		{"abc]", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, partialSuffixLen(tt.in, closeToken, openToken))
		})
	}
}

type scanned struct {
	Path   string
	Body   string
	Closed bool
	AtEOF  bool
}

func scanSummary(text string, from int) []scanned {
	var out []scanned
	for _, c := range scanBlocks(text, from) {
		out = append(out, scanned{Path: c.path, Body: text[c.bodyStart:c.end], Closed: c.closed, AtEOF: c.atEOF})
	}
	return out
}

func TestScanBlocks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []scanned
	}{
		{
			name: "no markers",
			text: "just text [/FILE] here",
		},
		{
			name: "closed block",
			text: "pre [FILE: a.txt]body[/FILE] post",
			want: []scanned{{Path: "a.txt", Body: "body", Closed: true}},
		},
		{
			name: "draft at end",
			text: "[FILE: a.txt]bo",
			want: []scanned{{Path: "a.txt", Body: "bo", AtEOF: true}},
		},
		{
			name: "open marker still arriving",
			text: "[FILE: a.t",
		},
		{
			name: "open marker cuts previous draft",
			text: "[FILE: a]one[FILE: b]two[/FILE]",
			want: []scanned{
				{Path: "a", Body: "one"},
				{Path: "b", Body: "two", Closed: true},
			},
		},
		{
			name: "incomplete next open still cuts previous draft",
			text: "[FILE: a]one[FILE: b",
			want: []scanned{{Path: "a", Body: "one"}},
		},
		{
			name: "path whitespace trimmed",
			text: "[FILE:   dir/x y.go  ]z[/FILE]",
			want: []scanned{{Path: "dir/x y.go", Body: "z", Closed: true}},
		},
		{
			name: "multiline path skipped",
			text: "[FILE: a\nb]x[FILE: c]y[/FILE]",
			want: []scanned{{Path: "c", Body: "y", Closed: true}},
		},
		{
			name: "empty path skipped",
			text: "[FILE:]x[FILE: c]y[/FILE]",
			want: []scanned{{Path: "c", Body: "y", Closed: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, scanSummary(tt.text, 0)); diff != "" {
				t.Errorf("scanBlocks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanBlocks_ResumeMatchesFullScan(t *testing.T) {
	text := "[FILE: a]1[/FILE]gap[FILE: b]2[/FILE][FILE: c]3"
	full := scanBlocks(text, 0)
	assert.Len(t, full, 3)

	resumed := scanBlocks(text, full[0].next)
	if diff := cmp.Diff(scanSummary(text, 0)[1:], scanSummary(text, full[0].next)); diff != "" {
		t.Errorf("resumed scan differs (-full +resumed):\n%s", diff)
	}
	assert.Len(t, resumed, 2)
}

func TestFindService(t *testing.T) {
	text := "line one\n[SERVICE: Acme Cloud|acme.cloud] rest"
	svc, next, ok := findService(text, 0)
	assert.True(t, ok)
	assert.Equal(t, ServiceAnnotation{Name: "Acme Cloud", Domain: "acme.cloud"}, svc)
	assert.Equal(t, len("line one\n[SERVICE: Acme Cloud|acme.cloud]"), next)

	_, next, ok = findService("no marker\nstill [SERVICE: half", 0)
	assert.False(t, ok)
	assert.Equal(t, len("no marker\n"), next, "search resumes at the unfinished line")

	_, _, ok = findService("[SERVICE: missing pipe]", 0)
	assert.False(t, ok)
}
