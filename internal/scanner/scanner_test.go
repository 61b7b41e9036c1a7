package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/config"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestScanner(t *testing.T, mutate func(*Options)) *Scanner {
	t.Helper()
	opts := OptionsFromConfig(config.NewConfig())
	opts.Workers = 2
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func paths(files []FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestScanner_Walk_FiltersByExtensionAndSkipLists(t *testing.T) {
	// Given: a project with code, noise, dependency dirs and lock files
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "pkg/util.py", "def f(): pass\n")
	writeFile(t, root, "Makefile", "all:\n")
	writeFile(t, root, "image.png", "\x89PNG")
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = 1\n")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "package-lock.json", "{}")
	writeFile(t, root, "web/app.min.js", "var a=1")
	writeFile(t, root, ".env.local", "SECRET=1")

	s := newTestScanner(t, nil)

	// When: walking
	listing, err := s.Walk(context.Background(), root)

	// Then: only indexable files are listed, slash-relative
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "pkg/util.py", "Makefile"}, paths(listing.Files))
	assert.Empty(t, listing.Oversized)
}

func TestScanner_Walk_ReportsOversizedFiles(t *testing.T) {
	// Given: one small and one large file
	root := t.TempDir()
	writeFile(t, root, "small.go", "package a\n")
	writeFile(t, root, "big.go", strings.Repeat("x", 2048))

	s := newTestScanner(t, func(o *Options) { o.MaxFileSize = 1024 })

	// When: walking
	listing, err := s.Walk(context.Background(), root)

	// Then: the large file is reported, not listed
	require.NoError(t, err)
	assert.Equal(t, []string{"small.go"}, paths(listing.Files))
	assert.Equal(t, []string{"big.go"}, paths(listing.Oversized))
}

func TestScanner_Walk_RespectsGitignore(t *testing.T) {
	// Given: root and nested .gitignore files with a negation
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log.txt\ngenerated/\n!keep.log.txt\n")
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "debug.log.txt", "noise")
	writeFile(t, root, "keep.log.txt", "kept")
	writeFile(t, root, "generated/gen.go", "package gen\n")
	writeFile(t, root, "sub/.gitignore", "local.go\n")
	writeFile(t, root, "sub/local.go", "package sub\n")
	writeFile(t, root, "sub/other.go", "package sub\n")
	writeFile(t, root, "local.go", "package a\n")

	s := newTestScanner(t, nil)

	// When: walking
	listing, err := s.Walk(context.Background(), root)

	// Then: ignored paths are excluded; the nested rule only applies below sub/
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "keep.log.txt", "sub/other.go", "local.go"}, paths(listing.Files))
}

func TestScanner_Walk_GitignoreDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.go\n")
	writeFile(t, root, "a.go", "package a\n")

	s := newTestScanner(t, func(o *Options) { o.RespectGitignore = false })

	listing, err := s.Walk(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, paths(listing.Files))
}

func TestScanner_Walk_DoesNotFollowSymlinks(t *testing.T) {
	// Given: a symlink to a file outside the project
	outside := t.TempDir()
	target := writeFile(t, outside, "secret.go", "package s\n")
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	if err := os.Symlink(target, filepath.Join(root, "link.go")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	s := newTestScanner(t, nil)

	// When: walking
	listing, err := s.Walk(context.Background(), root)

	// Then: the link is ignored
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, paths(listing.Files))
}

func TestScanner_Walk_RootMustBeDirectory(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "a.go", "package a\n")
	s := newTestScanner(t, nil)

	_, err := s.Walk(context.Background(), file)

	assert.Error(t, err)
}

func TestScanner_Walk_ContextCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	s := newTestScanner(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Walk(ctx, root)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_IsIndexable(t *testing.T) {
	s := newTestScanner(t, nil)

	tests := []struct {
		rel  string
		want bool
	}{
		{"main.go", true},
		{"src/App.TSX", true},
		{"Dockerfile", true},
		{"node_modules/x/index.js", false},
		{"a/.git/HEAD", false},
		{"yarn.lock", false},
		{"photo.jpg", false},
		{"dist/bundle.min.js", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsIndexable(tt.rel))
		})
	}
}

func TestIgnoreMatcher_Patterns(t *testing.T) {
	m := &ignoreMatcher{}
	for _, line := range []string{"/build", "docs/**/*.md", "*.tmp", "cache/", "!important.tmp", "file?.txt"} {
		r, ok := compileIgnoreRule(line, "")
		require.True(t, ok, line)
		m.add([]ignoreRule{r})
	}

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"build", true, true},
		{"src/build", true, false},
		{"docs/a/b/readme.md", false, true},
		{"docs/readme.md", false, true},
		{"x/y.tmp", false, true},
		{"important.tmp", false, false},
		{"cache", true, true},
		{"cache", false, false},
		{"cache/inner.go", false, true},
		{"file1.txt", false, true},
		{"file10.txt", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, m.match(tt.rel, tt.isDir))
		})
	}
}

func TestCompileIgnoreRule_SkipsCommentsAndBlanks(t *testing.T) {
	for _, line := range []string{"", "   ", "# comment", "!", "/"} {
		_, ok := compileIgnoreRule(line, "")
		assert.False(t, ok, "line %q", line)
	}
}
