package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docstore-mcp/internal/config"
	"github.com/dshills/docstore-mcp/internal/docset"
	"github.com/dshills/docstore-mcp/internal/storage"
	"github.com/dshills/docstore-mcp/pkg/types"
)

func TestParseAttributes(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    types.AttributeFilter
		wantErr bool
	}{
		{name: "empty", raw: nil, want: types.AttributeFilter{}},
		{
			name: "repeated kind",
			raw:  []string{"speaker=A", "speaker=B", "subject=x=y"},
			want: types.AttributeFilter{"speaker": {"A", "B"}, "subject": {"x=y"}},
		},
		{name: "missing separator", raw: []string{"speaker"}, wantErr: true},
		{name: "missing value", raw: []string{"speaker="}, wantErr: true},
		{name: "missing kind", raw: []string{"=A"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAttributes(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryArgs(t *testing.T) {
	assert.Equal(t, "", queryArgs([]string{"quote"}))
	assert.Equal(t, `"good morning" coffee`, queryArgs([]string{"quote", `"good morning"`, "coffee"}))
}

func TestPrintDocument(t *testing.T) {
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	set, err := docset.New("quote", s, docset.Options{NotFoundMessage: "Nothing."})
	require.NoError(t, err)

	var buf bytes.Buffer
	printDocument(&buf, set.NullDocument())
	assert.Equal(t, "Nothing.\n", buf.String())

	doc, err := set.Add(t.Context(), "bob", "hello", []types.Attribute{
		{Kind: types.KindSpeaker, Value: "alice"},
		{Kind: types.KindMention, Value: "carol"},
		{Kind: types.KindMention, Value: "dave"},
	})
	require.NoError(t, err)

	buf.Reset()
	printDocument(&buf, doc)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "#1  "+doc.Created.Format(time.RFC3339)+"  by bob", lines[0])
	assert.Equal(t, "hello", lines[1])
	assert.Equal(t, "  mention: carol, dave", lines[2])
	assert.Equal(t, "  speaker: alice", lines[3])
}

func TestCLI_EndToEnd(t *testing.T) {
	t.Setenv(config.EnvDBPath, "")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvLogEnv, "")
	db := filepath.Join(t.TempDir(), "data", "docstore.db")

	run := func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--db", db}, args...))
		err := cmd.Execute()
		return out.String(), err
	}
	mustRun := func(args ...string) string {
		t.Helper()
		out, err := run(args...)
		require.NoError(t, err, out)
		return out
	}

	out := mustRun("create", "quote")
	assert.Contains(t, out, "quote_documents")

	mustRun("add", "quote", "alpha one", "--attr", "speaker=X")
	mustRun("add", "quote", "beta two")
	mustRun("add", "quote", "alpha three", "--attr", "speaker=X")

	assert.Equal(t, "2\n", mustRun("count", "quote", "alpha", "--attr", "speaker=X"))
	assert.Equal(t, "1\n", mustRun("count", "quote", "one", "alpha"))
	assert.Equal(t, "0\n", mustRun("count", "quote", `"one alpha"`))
	assert.Contains(t, mustRun("count", "--help"), `'"to be"'`)
	assert.Equal(t, docset.DefaultNotFoundMessage+"\n", mustRun("random", "quote", "beta", "--attr", "speaker=X"))
	assert.Contains(t, mustRun("latest", "quote", "--attr", "speaker=X"), "alpha three")

	out = mustRun("search", "quote", "--page-size", "2")
	assert.Contains(t, out, "alpha one")
	assert.Contains(t, out, "beta two")
	assert.Contains(t, out, "-- more: --after 2")

	assert.Equal(t, "1. X  2  0\n", mustRun("stats", "quote"))

	jsonl := filepath.Join(t.TempDir(), "more.jsonl")
	require.NoError(t, os.WriteFile(jsonl, []byte(`{"body": "gamma four", "attributes": {"speaker": ["Y"]}}
{"body": "delta five", "attributes": {"speaker": ["Z"]}}
`), 0o600))
	assert.Equal(t, "Imported 1, skipped 1, failed 0 of 2 record(s)\n", mustRun("import", "quote", jsonl, "--only", "speaker=Y"))
	assert.Equal(t, "4\n", mustRun("count", "quote"))
	assert.Contains(t, mustRun("list"), "quote")

	_, err := run("delete", "quote")
	assert.Error(t, err)
	assert.Equal(t, "Deleted 2 document(s)\n", mustRun("delete", "quote", "--attr", "speaker=X"))

	_, err = run("count", "quote", `"open`)
	assert.Error(t, err)

	mustRun("destroy", "quote")
	_, err = run("count", "quote")
	assert.ErrorContains(t, err, "does not exist")

	assert.Contains(t, mustRun("version"), "Schema Version: "+storage.CurrentSchemaVersion)
}
