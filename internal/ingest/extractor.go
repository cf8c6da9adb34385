// Package ingest turns uploaded source documents into indexed chunks.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/testforge/qaagent/internal/domain"
)

// HTMLStructureDelimiter separates extracted page text from the verbatim markup
const HTMLStructureDelimiter = "--- HTML Structure ---"

// Element contents that never render as text
var invisibleElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// Extractor converts source files into plain text
type Extractor struct {
	markdown goldmark.Markdown
	logger   *zap.Logger
}

// NewExtractor creates a new text extractor
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:   logger,
	}
}

// Extract reads the file at path and converts it according to fileType
func (e *Extractor) Extract(ctx context.Context, path string, fileType domain.FileType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !fileType.IsValid() {
		return "", domain.ErrUnsupportedFileType(string(fileType))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", domain.ErrExtractionFailed(filepath.Base(path), fmt.Errorf("reading file: %w", err))
	}

	return e.ExtractBytes(filepath.Base(path), data, fileType)
}

// ExtractBytes converts an in-memory document. name is used for error reporting only.
func (e *Extractor) ExtractBytes(name string, data []byte, fileType domain.FileType) (string, error) {
	var (
		text string
		err  error
	)

	switch fileType {
	case domain.FileTypeTXT:
		text, err = extractPlain(data)
	case domain.FileTypeMD:
		text, err = e.extractMarkdown(data)
	case domain.FileTypeJSON:
		text, err = extractJSON(data)
	case domain.FileTypePDF:
		text, err = extractPDF(data)
	case domain.FileTypeHTML:
		text, err = extractHTML(data)
	default:
		return "", domain.ErrUnsupportedFileType(string(fileType))
	}

	if err != nil {
		e.logger.Error("Failed to extract text",
			zap.String("source", name),
			zap.String("file_type", string(fileType)),
			zap.Error(err),
		)
		return "", domain.ErrExtractionFailed(name, err)
	}

	e.logger.Debug("Extracted text",
		zap.String("source", name),
		zap.String("file_type", string(fileType)),
		zap.Int("chars", utf8.RuneCountInString(text)),
	)
	return text, nil
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("invalid UTF-8 byte sequence")
	}
	return string(data), nil
}

func (e *Extractor) extractMarkdown(data []byte) (string, error) {
	src, err := extractPlain(data)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return "", fmt.Errorf("parsing rendered markdown: %w", err)
	}

	return strings.Join(visibleText(doc.Selection), "\n"), nil
}

func extractJSON(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return "", fmt.Errorf("parsing JSON: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("parsing JSON: unexpected data after top-level value")
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", fmt.Errorf("encoding JSON: %w", err)
	}

	return strings.TrimRight(out.String(), "\n"), nil
}

func extractPDF(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", i)

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		sb.WriteString(content)
	}

	return sb.String(), nil
}

func extractHTML(data []byte) (string, error) {
	raw, err := extractPlain(data)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var parts []string
	if title := doc.Find("title").First(); title.Length() > 0 {
		parts = append(parts, "Title: "+strings.TrimSpace(title.Text()))
	}
	parts = append(parts, "\nContent:")
	parts = append(parts, strings.Join(visibleText(doc.Selection), "\n"))
	parts = append(parts, "\n"+HTMLStructureDelimiter)
	parts = append(parts, raw)

	return strings.Join(parts, "\n"), nil
}

// visibleText returns every non-empty text node under sel in document order, trimmed
func visibleText(sel *goquery.Selection) []string {
	var out []string
	for _, n := range sel.Nodes {
		out = collectText(n, out)
	}
	return out
}

func collectText(n *html.Node, out []string) []string {
	switch n.Type {
	case html.ElementNode:
		if invisibleElements[n.DataAtom] {
			return out
		}
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			out = append(out, t)
		}
		return out
	case html.CommentNode, html.DoctypeNode:
		return out
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = collectText(c, out)
	}
	return out
}

// DetectFileType resolves a document's type from its extension, falling back to
// content sniffing when the extension is missing or unknown.
func DetectFileType(name string, data []byte) (domain.FileType, error) {
	if ft, err := domain.FileTypeFromName(name); err == nil {
		return ft, nil
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("text/html"):
		return domain.FileTypeHTML, nil
	case mtype.Is("application/pdf"):
		return domain.FileTypePDF, nil
	case mtype.Is("application/json"):
		return domain.FileTypeJSON, nil
	case mtype.Is("text/markdown"):
		return domain.FileTypeMD, nil
	case mtype.Is("text/plain"):
		return domain.FileTypeTXT, nil
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = mtype.String()
	}
	return "", domain.ErrUnsupportedFileType(ext)
}
