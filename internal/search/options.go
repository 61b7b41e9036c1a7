package search

import (
	"strings"

	"github.com/Aman-CERP/codesearch/internal/store"
)

// FilterFunc checks if a candidate record matches filter criteria.
type FilterFunc func(rec *store.VectorRecord) bool

// LanguageFunc maps a file path to its language name.
type LanguageFunc func(path string) string

// buildFilters creates filter functions for the request. Filters are applied
// to candidates before their files are read.
func buildFilters(req Request, language LanguageFunc) []FilterFunc {
	var filters []FilterFunc
	if len(req.Scopes) > 0 {
		filters = append(filters, scopeFilter(req.Scopes))
	}
	if req.Language != "" && language != nil {
		filters = append(filters, languageFilter(req.Language, language))
	}
	if req.ChunkType != "" {
		filters = append(filters, chunkTypeFilter(req.ChunkType))
	}
	return filters
}

// matchesAllFilters checks if a record passes all filters (AND logic).
func matchesAllFilters(rec *store.VectorRecord, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(rec) {
			return false
		}
	}
	return true
}

func languageFilter(lang string, language LanguageFunc) FilterFunc {
	lang = strings.ToLower(lang)
	return func(rec *store.VectorRecord) bool {
		return language(rec.FilePath) == lang
	}
}

func chunkTypeFilter(chunkType string) FilterFunc {
	chunkType = strings.ToLower(chunkType)
	return func(rec *store.VectorRecord) bool {
		return rec.Type == chunkType
	}
}

// NormalizeScope ensures consistent path format for matching.
// Strips leading and trailing slashes.
func NormalizeScope(scope string) string {
	return strings.Trim(scope, "/")
}

// scopeFilter creates a filter for path scope prefixes.
// Multiple scopes use OR logic - matches if path starts with ANY scope.
func scopeFilter(scopes []string) FilterFunc {
	// Trailing slash keeps "services/api" from matching "services/api-v2".
	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if n := NormalizeScope(s); n != "" {
			normalized = append(normalized, n+"/")
		}
	}

	if len(normalized) == 0 {
		return func(*store.VectorRecord) bool { return true }
	}

	return func(rec *store.VectorRecord) bool {
		filePath := NormalizeScope(rec.FilePath) + "/"
		for _, scope := range normalized {
			if strings.HasPrefix(filePath, scope) {
				return true
			}
		}
		return false
	}
}
