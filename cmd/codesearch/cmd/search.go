package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/output"
	"github.com/Aman-CERP/codesearch/internal/search"
)

type searchOptions struct {
	path      string
	k         int
	noContext bool
	json      bool
	language  string
	chunkType string
	scope     []string
}

// searchResult is the --json output of search.
type searchResult struct {
	Query   string          `json:"query"`
	Root    string          `json:"root"`
	Results []search.Result `json:"results"`
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed project by meaning",
		Long: `Embed the query and return the k most similar chunks with their current
file content and surrounding lines.

The project must have been indexed; search never builds an index.`,
		Example: `  codesearch search "parse yaml configuration"
  codesearch search "retry with backoff" -k 10 --language go
  codesearch search "http handlers" --scope internal/api --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, a, strings.Join(args, " "), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.path, "path", "", "Project root (default: current directory)")
	f.IntVarP(&opts.k, "top-k", "k", 0, "Number of results (default from config)")
	f.BoolVar(&opts.noContext, "no-context", false, "Omit the lines around each chunk")
	f.BoolVar(&opts.json, "json", false, "Print results as JSON")
	f.StringVar(&opts.language, "language", "", "Only return chunks of this language")
	f.StringVar(&opts.chunkType, "type", "", "Only return chunks of this type (function, class, method, ...)")
	f.StringSliceVar(&opts.scope, "scope", nil, "Only return chunks under these path prefixes")
	return cmd
}

func runSearch(cmd *cobra.Command, a *app, query string, opts searchOptions) error {
	m, root, err := a.openManager(opts.path)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	results, err := m.Search(cmd.Context(), root, search.Request{
		Query:          query,
		K:              opts.k,
		IncludeContext: !opts.noContext,
		Scopes:         opts.scope,
		Language:       opts.language,
		ChunkType:      opts.chunkType,
	})
	if err != nil {
		return err
	}

	if opts.json {
		if results == nil {
			results = []search.Result{}
		}
		return writeJSON(cmd.OutOrStdout(), searchResult{Query: query, Root: root, Results: results})
	}
	output.New(cmd.OutOrStdout()).SearchResults(query, results)
	return nil
}
