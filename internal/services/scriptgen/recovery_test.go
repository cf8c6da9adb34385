package scriptgen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/qaagent/internal/domain"
)

func result(source string, ft domain.FileType, content string) domain.RetrievalResult {
	return domain.RetrievalResult{
		Content:  content,
		Metadata: domain.ChunkMetadata{Source: source, FileType: ft},
	}
}

func TestRecoverHTML(t *testing.T) {
	tests := []struct {
		name    string
		results []domain.RetrievalResult
		want    string
	}{
		{
			name: "delimiter segment wins over earlier raw markup",
			results: []domain.RetrievalResult{
				result("notes.md", domain.FileTypeMD, "<html><body>inline sample</body></html>"),
				result("checkout.html", domain.FileTypeHTML, "Title: Checkout\n--- HTML Structure ---\n  <form id=\"f\"></form>  "),
			},
			want: `<form id="f"></form>`,
		},
		{
			name: "first delimiter chunk in retrieval order",
			results: []domain.RetrievalResult{
				result("cart.html", domain.FileTypeHTML, "Title: Cart\n--- HTML Structure ---\n<div id=\"cart\"></div>"),
				result("checkout.html", domain.FileTypeHTML, "Title: Checkout\n--- HTML Structure ---\n<form></form>"),
			},
			want: `<div id="cart"></div>`,
		},
		{
			name: "empty delimiter segment falls through",
			results: []domain.RetrievalResult{
				result("checkout.html", domain.FileTypeHTML, "Title: Checkout\n--- HTML Structure ---\n   "),
				result("checkout.html", domain.FileTypeHTML, "<html lang=\"en\">"),
			},
			want: `<html lang="en">`,
		},
		{
			name: "raw markup chunk",
			results: []domain.RetrievalResult{
				result("product_specs.md", domain.FileTypeMD, "SAVE15 gives 15% off"),
				result("page.txt", domain.FileTypeTXT, "<!DOCTYPE html>\n<html><body></body></html>"),
			},
			want: "<!DOCTYPE html>\n<html><body></body></html>",
		},
		{
			name: "reconstruct from html sources in order",
			results: []domain.RetrievalResult{
				result("checkout.html", domain.FileTypeHTML, "<form id=\"a\">"),
				result("product_specs.md", domain.FileTypeMD, "prose"),
				result("checkout.HTML", domain.FileTypeHTML, "<button id=\"b\">Pay</button></form>"),
			},
			want: "<form id=\"a\">\n<button id=\"b\">Pay</button></form>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecoverHTML(tt.results)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoverHTML_NoMarkup(t *testing.T) {
	_, err := RecoverHTML([]domain.RetrievalResult{
		result("product_specs.md", domain.FileTypeMD, "prose only"),
	})
	assert.True(t, errors.Is(err, domain.ErrNoMarkupSentinel))

	_, err = RecoverHTML(nil)
	assert.True(t, errors.Is(err, domain.ErrNoMarkupSentinel))
}
