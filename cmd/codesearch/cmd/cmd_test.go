package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/preflight"
	"github.com/Aman-CERP/codesearch/internal/project"
	"github.com/Aman-CERP/codesearch/pkg/version"
)

// isolate points every per-user path at temp dirs and returns a small
// project.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("CODESEARCH_DATA_DIR", filepath.Join(home, ".codesearch"))
	t.Setenv("CODESEARCH_WORKERS", "2")
	t.Setenv("CODESEARCH_EMBEDDINGS_PROVIDER", "static")

	root := t.TempDir()
	files := map[string]string{
		"math.py":  "def add(a, b):\n    \"\"\"Sum two numbers.\"\"\"\n    return a + b\n",
		"greet.go": "package greet\n\n// Hello returns a greeting for name.\nfunc Hello(name string) string {\n\treturn \"hello \" + name\n}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestIndexSearchStatus(t *testing.T) {
	// Given: an indexed project
	root := isolate(t)
	out, err := run(t, "index", root, "--no-tui")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 of 2 files")

	// When: searching it as JSON
	out, err = run(t, "search", "sum", "two", "numbers", "--path", root, "-k", "1", "--json")

	// Then: the best chunk is returned with its location
	require.NoError(t, err)
	var res searchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "sum two numbers", res.Query)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "math.py", res.Results[0].FilePath)

	// And: status reports a ready index
	out, err = run(t, "status", root, "--json")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, string(project.StateReady), status["state"])
	assert.InDelta(t, 2, status["file_count"], 0)
	assert.Positive(t, status["index_bytes"])
}

func TestIndex_JSONAndReindex(t *testing.T) {
	root := isolate(t)
	_, err := run(t, "index", root, "--json")
	require.NoError(t, err)

	// A second pass over unchanged files indexes nothing.
	out, err := run(t, "index", root, "--json")
	require.NoError(t, err)
	var res indexResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, root, res.Root)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 2, res.Summary.FilesScanned)
	assert.Zero(t, res.Summary.FilesIndexed)
}

func TestIndex_Background(t *testing.T) {
	root := isolate(t)

	out, err := run(t, "index", root, "--background", "--json")

	require.NoError(t, err)
	var res indexResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.TaskID)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 2, res.Summary.FilesIndexed)
}

func TestSearch_WithoutIndex(t *testing.T) {
	root := isolate(t)

	_, err := run(t, "search", "anything", "--path", root)

	assert.True(t, errors.Is(err, cserrors.ErrIndexNotFound))
}

func TestSearch_PlainOutput(t *testing.T) {
	root := isolate(t)
	_, err := run(t, "index", root, "--no-tui")
	require.NoError(t, err)

	out, err := run(t, "search", "greeting", "--path", root, "--no-context")

	require.NoError(t, err)
	assert.Contains(t, out, "1. ")
	assert.Contains(t, out, "score")
}

func TestStatus_Absent(t *testing.T) {
	root := isolate(t)

	out, err := run(t, "status", root)

	require.NoError(t, err)
	assert.Contains(t, out, "No index exists for "+root)
}

func TestConfigInitAndShow(t *testing.T) {
	root := isolate(t)

	out, err := run(t, "config", "init")
	require.NoError(t, err)
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "codesearch", "config.yaml")
	assert.Contains(t, out, "Wrote "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# provider: static")

	// A second init without --force keeps the file.
	out, err = run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = run(t, "config", "show", root)
	require.NoError(t, err)
	assert.Contains(t, out, "chunk_size: 1500")
	assert.Contains(t, out, "provider: static")
}

func TestConfigInit_Defaults(t *testing.T) {
	isolate(t)

	_, err := run(t, "config", "init", "--defaults")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "codesearch", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_top_k: 5")
	assert.NotContains(t, string(data), "#")
}

func TestConfigFlag(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  default_top_k: 7\n"), 0o644))

	out, err := run(t, "--config", path, "config", "show", root)

	require.NoError(t, err)
	assert.Contains(t, out, "default_top_k: 7")
}

func TestDoctor_JSON(t *testing.T) {
	root := isolate(t)

	// Disk space depends on the machine, so only the report shape is checked.
	out, _ := run(t, "doctor", root, "--json")

	var res doctorResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Checks, 5)
	assert.Equal(t, "embedder", res.Checks[4].Name)
	assert.Equal(t, preflight.StatusPass, res.Checks[4].Status)
}

func TestServe_UnknownTransport(t *testing.T) {
	root := isolate(t)

	_, err := run(t, "serve", root, "--transport", "carrier-pigeon")

	assert.ErrorContains(t, err, "unknown transport")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "codesearch "+version.Version)

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestArgs(t *testing.T) {
	_, err := run(t, "search")
	assert.Error(t, err)

	_, err = run(t, "index", "a", "b")
	assert.Error(t, err)
}
