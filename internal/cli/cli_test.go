package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flights = `{"primary_key": "a", "fields": {"body": "delayed flight", "airport": "JFK"}}
{"primary_key": "b", "fields": {"body": "flight on time", "airport": "EWR"}}
{"primary_key": "c", "fields": {"body": "cancelled flight", "airport": "SEA"}}
`

func setup(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("KVX_STORE_BACKEND", "bolt")
	t.Setenv("KVX_BOLT_PATH", filepath.Join(t.TempDir(), "index.db"))
	t.Setenv("KVX_STORE_TABLE", "flights")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateAddSearchLookup(t *testing.T) {
	setup(t)

	out, err := run(t, "", "create", "--codec", "zstd")
	require.NoError(t, err)
	assert.Contains(t, out, "created index flights (codec zstd)")

	_, err = run(t, "", "create")
	assert.True(t, errors.Is(err, apperrors.ErrTableExists))

	out, err = run(t, flights, "add")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 3 documents")

	out, err = run(t, "", "search", "-q", "flight", "--sort", "airport", "--json")
	require.NoError(t, err)
	var res search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "airport", res.SortedBy)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "b", res.Results[0].PrimaryKey)
	assert.Equal(t, "c", res.Results[2].PrimaryKey)

	out, err = run(t, "", "lookup", "c")
	require.NoError(t, err)
	var doc search.StoredDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "SEA", doc.Fields["airport"])

	out, err = run(t, "", "segments", "body/flight")
	require.NoError(t, err)
	assert.Contains(t, out, "body/flight: 3 documents")

	out, err = run(t, "", "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "forward rows: 3")
}

func TestSearchRejectsTwoSortKeys(t *testing.T) {
	setup(t)
	_, err := run(t, "", "search", "-q", "flight", "--sort", "airport", "--sort", "_score")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSort))
}

func TestCreateForceRecreates(t *testing.T) {
	setup(t)
	_, err := run(t, "", "create")
	require.NoError(t, err)
	_, err = run(t, flights, "add")
	require.NoError(t, err)

	_, err = run(t, "", "create", "--force")
	require.NoError(t, err)
	_, err = run(t, "", "lookup", "a")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDecodeDocuments(t *testing.T) {
	docs, err := decodeDocuments(strings.NewReader(`  [{"primary_key": "x", "fields": {"body": "one"}}]`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "x", docs[0].PrimaryKey)

	docs, err = decodeDocuments(strings.NewReader(flights))
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = decodeDocuments(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = decodeDocuments(strings.NewReader(`{"primary_key": 1}`))
	assert.Error(t, err)
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2024", "jan"), 0o755))
	for _, name := range []string{"2024/jan/b.jsonl", "2024/a.jsonl", "2024/notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(flights), 0o644))
	}

	got, err := expandPaths([]string{"-", filepath.Join(dir, "**", "*.jsonl")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-",
		filepath.Join(dir, "2024", "a.jsonl"),
		filepath.Join(dir, "2024", "jan", "b.jsonl"),
	}, got)

	_, err = expandPaths([]string{filepath.Join(dir, "*.csv")})
	assert.ErrorContains(t, err, "no files match")
}

func TestAddGlob(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte(flights), 0o644))

	_, err := run(t, "", "create")
	require.NoError(t, err)
	out, err := run(t, "", "add", filepath.Join(dir, "*.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 3 documents")
}
