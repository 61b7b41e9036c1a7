package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language describes how files of one language are chunked. Grammar is nil
// for languages chunked heuristically.
type Language struct {
	Name       string
	Extensions []string
	Filenames  []string

	Grammar *sitter.Language

	// Top-level node types, by chunk kind.
	FunctionTypes []string
	MethodTypes   []string
	ClassTypes    []string

	// WrapperTypes (export_statement, decorated_definition) take the kind of
	// the declaration they wrap.
	WrapperTypes []string
	// BodyTypes are class body nodes searched for members.
	BodyTypes []string
	// ContextTypes are top-level nodes collected as chunk context.
	ContextTypes []string
}

func (l *Language) structural() bool {
	return l != nil && l.Grammar != nil
}

// Registry maps file extensions to languages and languages to strategies.
type Registry struct {
	mu         sync.RWMutex
	byName     map[string]*Language
	byExt      map[string]*Language
	byFilename map[string]*Language
	strategies map[string]Strategy
	fallback   Strategy
}

// NewRegistry returns a registry with the built-in languages and the given
// strategies: languages with a grammar use structural, markdown uses
// markdown, everything else heuristic.
func NewRegistry(structural, heuristic, markdown Strategy) *Registry {
	r := &Registry{
		byName:     make(map[string]*Language),
		byExt:      make(map[string]*Language),
		byFilename: make(map[string]*Language),
		strategies: make(map[string]Strategy),
		fallback:   heuristic,
	}
	for _, lang := range builtinLanguages() {
		s := heuristic
		switch {
		case lang.structural():
			s = structural
		case lang.Name == "markdown" && markdown != nil:
			s = markdown
		}
		r.Register(lang, s)
	}
	return r
}

// Register adds or replaces a language and its strategy.
func (r *Registry) Register(lang *Language, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[lang.Name] = lang
	r.strategies[lang.Name] = s
	for _, ext := range lang.Extensions {
		r.byExt[strings.ToLower(ext)] = lang
	}
	for _, name := range lang.Filenames {
		r.byFilename[name] = lang
	}
}

// Lookup returns the language of path, or nil when unknown.
func (r *Registry) Lookup(path string) *Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lang, ok := r.byFilename[filepath.Base(path)]; ok {
		return lang
	}
	return r.byExt[strings.ToLower(filepath.Ext(path))]
}

// Language returns a language by name.
func (r *Registry) Language(name string) (*Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.byName[name]
	return lang, ok
}

// StrategyFor returns the strategy for lang. Unknown languages get the fallback.
func (r *Registry) StrategyFor(lang *Language) Strategy {
	if lang == nil {
		return r.fallback
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[lang.Name]; ok && s != nil {
		return s
	}
	return r.fallback
}

// Fallback returns the strategy used after a structural parse failure.
func (r *Registry) Fallback() Strategy {
	return r.fallback
}

func builtinLanguages() []*Language {
	jsLike := func(name string, exts []string, grammar *sitter.Language, extraClass ...string) *Language {
		return &Language{
			Name:          name,
			Extensions:    exts,
			Grammar:       grammar,
			FunctionTypes: []string{"function_declaration", "generator_function_declaration"},
			ClassTypes:    append([]string{"class_declaration"}, extraClass...),
			MethodTypes:   []string{"method_definition"},
			WrapperTypes:  []string{"export_statement"},
			BodyTypes:     []string{"class_body"},
			ContextTypes:  []string{"import_statement"},
		}
	}

	return []*Language{
		{
			Name:          "go",
			Extensions:    []string{".go"},
			Grammar:       golang.GetLanguage(),
			FunctionTypes: []string{"function_declaration"},
			MethodTypes:   []string{"method_declaration"},
			ClassTypes:    []string{"type_declaration"},
			ContextTypes:  []string{"package_clause", "import_declaration"},
		},
		{
			Name:          "python",
			Extensions:    []string{".py", ".pyw", ".pyi"},
			Grammar:       python.GetLanguage(),
			FunctionTypes: []string{"function_definition"},
			MethodTypes:   []string{"function_definition"},
			ClassTypes:    []string{"class_definition"},
			WrapperTypes:  []string{"decorated_definition"},
			BodyTypes:     []string{"block"},
			ContextTypes:  []string{"import_statement", "import_from_statement", "future_import_statement"},
		},
		jsLike("javascript", []string{".js", ".jsx", ".mjs", ".cjs"}, javascript.GetLanguage()),
		jsLike("typescript", []string{".ts"}, typescript.GetLanguage(), "abstract_class_declaration", "interface_declaration"),
		jsLike("tsx", []string{".tsx"}, tsx.GetLanguage(), "abstract_class_declaration", "interface_declaration"),
		{
			Name:          "java",
			Extensions:    []string{".java"},
			Grammar:       java.GetLanguage(),
			ClassTypes:    []string{"class_declaration", "interface_declaration", "enum_declaration", "record_declaration"},
			MethodTypes:   []string{"method_declaration", "constructor_declaration"},
			BodyTypes:     []string{"class_body", "interface_body", "enum_body", "enum_body_declarations"},
			ContextTypes:  []string{"package_declaration", "import_declaration"},
			FunctionTypes: []string{},
		},
		{
			Name:          "rust",
			Extensions:    []string{".rs"},
			Grammar:       rust.GetLanguage(),
			FunctionTypes: []string{"function_item"},
			MethodTypes:   []string{"function_item"},
			ClassTypes:    []string{"struct_item", "enum_item", "trait_item", "impl_item", "mod_item"},
			BodyTypes:     []string{"declaration_list", "field_declaration_list"},
			ContextTypes:  []string{"use_declaration", "extern_crate_declaration"},
		},
		{
			Name:          "c",
			Extensions:    []string{".c", ".h"},
			Grammar:       c.GetLanguage(),
			FunctionTypes: []string{"function_definition"},
			ClassTypes:    []string{"struct_specifier"},
			ContextTypes:  []string{"preproc_include"},
		},
		{
			Name:          "cpp",
			Extensions:    []string{".cpp", ".cc", ".cxx", ".hpp", ".hxx"},
			Grammar:       cpp.GetLanguage(),
			FunctionTypes: []string{"function_definition"},
			MethodTypes:   []string{"function_definition"},
			ClassTypes:    []string{"class_specifier", "struct_specifier", "namespace_definition"},
			BodyTypes:     []string{"field_declaration_list", "declaration_list"},
			ContextTypes:  []string{"preproc_include", "using_declaration"},
		},
		{
			Name:          "ruby",
			Extensions:    []string{".rb", ".rake", ".gemspec"},
			Filenames:     []string{"Rakefile", "Gemfile"},
			Grammar:       ruby.GetLanguage(),
			FunctionTypes: []string{"method", "singleton_method"},
			MethodTypes:   []string{"method", "singleton_method"},
			ClassTypes:    []string{"class", "module"},
			BodyTypes:     []string{"body_statement"},
		},
		{Name: "markdown", Extensions: []string{".md", ".markdown", ".rst"}},
		{Name: "kotlin", Extensions: []string{".kt", ".kts"}},
		{Name: "csharp", Extensions: []string{".cs"}},
		{Name: "php", Extensions: []string{".php"}},
		{Name: "swift", Extensions: []string{".swift"}},
		{Name: "shell", Extensions: []string{".sh", ".bash", ".zsh", ".fish"}},
		{Name: "web", Extensions: []string{".html", ".htm", ".vue", ".svelte", ".css", ".scss", ".sass", ".less"}},
		{Name: "sql", Extensions: []string{".sql"}},
		{Name: "make", Filenames: []string{"Makefile", "Dockerfile"}},
	}
}
