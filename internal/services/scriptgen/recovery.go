package scriptgen

import (
	"strings"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/ingest"
)

// RecoverHTML finds page markup among retrieved chunks, in order of preference:
//  1. the segment after the structure delimiter in an HTML-looking chunk
//  2. a chunk that is itself raw markup
//  3. all chunks from .html sources joined in retrieval order
//
// It returns ErrNoMarkup when none applies.
func RecoverHTML(results []domain.RetrievalResult) (string, error) {
	for _, r := range results {
		if !looksLikeHTML(r) || !strings.Contains(r.Content, ingest.HTMLStructureDelimiter) {
			continue
		}
		_, after, _ := strings.Cut(r.Content, ingest.HTMLStructureDelimiter)
		if markup := strings.TrimSpace(after); markup != "" {
			return markup, nil
		}
	}

	for _, r := range results {
		if hasMarkupPreamble(r.Content) {
			return r.Content, nil
		}
	}

	var parts []string
	for _, r := range results {
		if strings.HasSuffix(strings.ToLower(r.Metadata.Source), ".html") {
			parts = append(parts, r.Content)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n"), nil
	}

	return "", domain.ErrNoMarkup()
}

func looksLikeHTML(r domain.RetrievalResult) bool {
	return r.Metadata.FileType == domain.FileTypeHTML ||
		strings.Contains(r.Content, "HTML Structure") ||
		hasMarkupPreamble(r.Content)
}

func hasMarkupPreamble(content string) bool {
	return strings.Contains(content, "<!DOCTYPE") || strings.Contains(content, "<html")
}
