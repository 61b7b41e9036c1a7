package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchDeclaration(t *testing.T) {
	tests := []struct {
		line string
		typ  ChunkType
		name string
	}{
		{"class UserService {", TypeClass, "UserService"},
		{"public abstract class Repo<T> {", TypeClass, "Repo"},
		{"export default class App extends Component {", TypeClass, "App"},
		{"def parse_config(path):", TypeFunction, "parse_config"},
		{"async def fetch(url):", TypeFunction, "fetch"},
		{"func (s *Server) Start(ctx context.Context) error {", TypeFunction, "Start"},
		{"pub async fn run() -> Result<()> {", TypeFunction, "run"},
		{"export const add = (a, b) => a + b;", TypeFunction, "add"},
		{"suspend fun load(id: Int): User {", TypeFunction, "load"},
		{"    public function handle($request)", TypeFunction, "handle"},
		{"    public static void main(String[] args) {", TypeFunction, "main"},
		{"deploy() {", TypeFunction, "deploy"},
		{"CREATE OR REPLACE FUNCTION total_sales()", TypeFunction, "total_sales"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			typ, name, ok := matchDeclaration(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.name, name)
		})
	}

	for _, line := range []string{"x := 1", "// func commented()", "return value", ""} {
		_, _, ok := matchDeclaration(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestHeuristic_IndentedFunctionsBecomeMethods(t *testing.T) {
	// Given Kotlin source with a class and a top-level function
	source := `import kotlin.math.max

class Greeter {
    fun hello(): String {
        return "hi"
    }

    fun bye(): String {
        return "bye"
    }
}

fun main() {
    println(Greeter().hello())
}
`
	file := &File{Path: "app.kt", Content: []byte(source), Lines: splitLines(source)}

	// When chunking heuristically without merging
	chunks, err := NewHeuristicStrategy(noMerge).Chunk(context.Background(), file)

	// Then members are methods and the trailing function is top level
	require.NoError(t, err)
	requireCoverage(t, source, chunks)
	require.Len(t, chunks, 4)
	assert.Equal(t, []string{"Greeter", "hello", "bye", "main"}, chunkNames(chunks))
	assert.Equal(t, TypeClass, chunks[0].Type)
	assert.Equal(t, TypeMethod, chunks[1].Type)
	assert.Equal(t, TypeMethod, chunks[2].Type)
	assert.Equal(t, TypeFunction, chunks[3].Type)
	assert.Equal(t, "import kotlin.math.max", chunks[0].Context)
}

func TestHeuristic_LeadingCommentsJoinDeclaration(t *testing.T) {
	source := `#!/bin/sh

# build compiles the project.
build() {
  go build ./...
}
`
	file := &File{Path: "run.sh", Content: []byte(source), Lines: splitLines(source)}

	chunks, err := NewHeuristicStrategy(noMerge).Chunk(context.Background(), file)

	require.NoError(t, err)
	requireCoverage(t, source, chunks)
	require.Len(t, chunks, 1)
	assert.Equal(t, "build", chunks[0].Name)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestHeuristic_NoDeclarations(t *testing.T) {
	source := "alpha\nbeta\ngamma\n"
	file := &File{Path: "words.txt", Content: []byte(source), Lines: splitLines(source)}

	chunks, err := NewHeuristicStrategy(DefaultOptions()).Chunk(context.Background(), file)

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeBlock, chunks[0].Type)
	assert.Equal(t, "alpha\nbeta\ngamma", chunks[0].Content)
}

func TestImportContext_Capped(t *testing.T) {
	var lines []string
	for i := 0; i < 15; i++ {
		lines = append(lines, "import x")
	}
	ctx := importContext(lines)
	assert.Len(t, splitLines(ctx), maxContextLines)
}

func TestIndentation(t *testing.T) {
	assert.Equal(t, 0, indentation("x"))
	assert.Equal(t, 4, indentation("    x"))
	assert.Equal(t, 8, indentation("\t\tx"))
	assert.Equal(t, 3, indentation("   "))
}
