package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codestream/internal/config"
	"codestream/internal/decoder"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const captured = "data: {\"content\":\"Here it is.\\n[SERVICE: Acme|acme.io]\\n\"}\n\n" +
	"data: {\"content\":\"[FILE: main.go]package main\"}\n\n" +
	"data: {\"content\":\"\\n[/FILE]\"}\n\n" +
	"data: [DONE]\n\n"

// setup resets the globals the commands read and returns a command whose
// output is captured.
func setup(t *testing.T, stdin string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	format = formatJSONL
	systemPrompt = ""
	decodeParallel = 4

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	return cmd, &out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readRecords(t *testing.T, r io.Reader) []eventRecord {
	t.Helper()
	var records []eventRecord
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var rec eventRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec), sc.Text())
		records = append(records, rec)
	}
	return records
}

func TestDecode_File(t *testing.T) {
	cmd, out := setup(t, "")
	path := writeFile(t, "one.sse", captured)

	require.NoError(t, runDecode(cmd, []string{path}))

	records := readRecords(t, out)
	require.NotEmpty(t, records)
	var kinds []decoder.EventKind
	for _, rec := range records {
		assert.Empty(t, rec.Source, "single input carries no source")
		kinds = append(kinds, rec.Kind)
	}
	assert.Equal(t, []decoder.EventKind{
		decoder.EventNarrativeUpdated,
		decoder.EventServiceAnnotated,
		decoder.EventFileCreated,
		decoder.EventFileContentUpdated,
		decoder.EventFileContentUpdated,
		decoder.EventSessionFinished,
	}, kinds)

	last := records[len(records)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, "Here it is.", last.Result.Narrative)
	require.Len(t, last.Result.Files, 1)
	assert.Equal(t, "package main", last.Result.Files[0].Content)
}

func TestDecode_ManyFilesKeepArgumentOrder(t *testing.T) {
	cmd, out := setup(t, "")
	format = formatText

	var paths []string
	for _, name := range []string{"a.sse", "b.sse", "c.sse"} {
		paths = append(paths, writeFile(t, name, captured))
	}
	require.NoError(t, runDecode(cmd, paths))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 18)
	for i, path := range paths {
		for _, line := range lines[i*6 : i*6+6] {
			assert.True(t, strings.HasPrefix(line, path+": "), line)
		}
		assert.Contains(t, lines[i*6+5], "finished(1 files)")
	}
}

func TestDecode_StdinResultFormat(t *testing.T) {
	cmd, out := setup(t, captured)
	format = formatResult

	require.NoError(t, runDecode(cmd, nil))

	var res decoder.SessionResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, decoder.StatusComplete, res.Status)
	require.NotNil(t, res.Service)
	assert.Equal(t, "acme.io", res.Service.Domain)
	assert.Equal(t, 3, res.Deltas)
}

func TestDecode_Options(t *testing.T) {
	cmd, out := setup(t, "data: {\"content\":\"Look:\\n```go\\nx\\n```\\n[FILE: a]half\"}\n\n")
	format = formatResult
	cfg.Decoder.StopAtFence = true
	cfg.Decoder.SalvageDrafts = true

	require.NoError(t, runDecode(cmd, []string{"-"}))

	var res decoder.SessionResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "Look:", res.Narrative)
	require.Len(t, res.Files, 1)
	assert.Equal(t, decoder.BlockStreaming, res.Files[0].State)
	assert.Empty(t, res.Dropped)
}

func TestDecode_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cmd, _ := setup(t, "")
		err := runDecode(cmd, []string{filepath.Join(t.TempDir(), "nope.sse")})
		assert.ErrorContains(t, err, "failed to open input")
	})

	t.Run("failed session", func(t *testing.T) {
		cmd, out := setup(t, "data: {\"error\":\"overloaded\"}\n\n")
		err := runDecode(cmd, nil)
		assert.ErrorContains(t, err, "1 of 1 sessions failed")

		records := readRecords(t, out)
		require.NotEmpty(t, records)
		assert.Equal(t, decoder.EventSessionFailed, records[len(records)-1].Kind)
		assert.Contains(t, records[len(records)-1].Error, "overloaded")
	})

	t.Run("stdin twice", func(t *testing.T) {
		cmd, out := setup(t, captured)
		path := writeFile(t, "one.sse", captured)
		err := runDecode(cmd, []string{"-", path, "-"})
		assert.ErrorContains(t, err, "stdin (-) given more than once")
		assert.Empty(t, out.String())
	})

	t.Run("unknown format", func(t *testing.T) {
		cmd, _ := setup(t, captured)
		format = "yaml"
		assert.ErrorContains(t, runDecode(cmd, nil), "unknown output format")
	})
}

func TestReplay(t *testing.T) {
	cmd, out := setup(t, "")
	path := writeFile(t, "transcript.txt", "Sure.\n[FILE: a.txt]A[/FILE]\n[FILE: b.txt]B")

	require.NoError(t, runReplay(cmd, []string{path}))

	var res decoder.SessionResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "Sure.", res.Narrative)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "a.txt", res.Files[0].Path)
	assert.Equal(t, []string{"b.txt"}, res.Dropped)
	assert.Equal(t, 1, res.Deltas)
}

func TestReplay_Stdin(t *testing.T) {
	cmd, out := setup(t, "[FILE: x]1[/FILE]")
	require.NoError(t, runReplay(cmd, nil))
	assert.Contains(t, out.String(), `"path": "x"`)
}

func TestFetch_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, captured)
	}))
	defer srv.Close()

	cmd, out := setup(t, "")
	cfg.Transport.APIKey = "sk-test"
	cfg.Transport.BaseURL = srv.URL
	cfg.Transport.MaxRetries = 0
	format = formatResult

	require.NoError(t, runFetch(cmd, []string{"write", "main.go"}))

	var res decoder.SessionResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, decoder.StatusComplete, res.Status)
	assert.Len(t, res.Files, 1)
}

func TestFetch_RequiresKey(t *testing.T) {
	cmd, _ := setup(t, "")
	cfg.Transport.APIKey = ""
	assert.ErrorContains(t, runFetch(cmd, []string{"hi"}), "API key")
}

func TestFetch_UpstreamRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	cmd, _ := setup(t, "")
	cfg.Transport.APIKey = "sk-test"
	cfg.Transport.BaseURL = srv.URL
	err := runFetch(cmd, []string{"hi"})
	assert.ErrorContains(t, err, "status 404")
}

func TestTail_IdleTimeout(t *testing.T) {
	cmd, out := setup(t, "")
	cfg.Tail.IdleTimeout = "50ms"
	format = formatResult
	path := writeFile(t, "live.sse", "data: {\"content\":\"[FILE: a]1[/FILE]\"}\n\n")

	require.NoError(t, runTail(cmd, []string{path}))

	var res decoder.SessionResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, decoder.StatusComplete, res.Status)
	assert.Len(t, res.Files, 1)
}

func TestTail_MissingFile(t *testing.T) {
	cmd, _ := setup(t, "")
	assert.Error(t, runTail(cmd, []string{filepath.Join(t.TempDir(), "nope.sse")}))
}
