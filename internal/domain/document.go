package domain

import (
	"path/filepath"
	"strings"
)

// FileType identifies a supported source document format
type FileType string

const (
	FileTypeTXT  FileType = "txt"
	FileTypeMD   FileType = "md"
	FileTypeJSON FileType = "json"
	FileTypePDF  FileType = "pdf"
	FileTypeHTML FileType = "html"
)

// SupportedFileTypes lists every format the extractor understands
var SupportedFileTypes = []FileType{FileTypeTXT, FileTypeMD, FileTypeJSON, FileTypePDF, FileTypeHTML}

// IsValid reports whether the file type is supported
func (f FileType) IsValid() bool {
	switch f {
	case FileTypeTXT, FileTypeMD, FileTypeJSON, FileTypePDF, FileTypeHTML:
		return true
	}
	return false
}

// ParseFileType maps an extension (".md", "MD", "markdown") to a FileType
func ParseFileType(ext string) (FileType, error) {
	e := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch e {
	case "txt", "text":
		return FileTypeTXT, nil
	case "md", "markdown":
		return FileTypeMD, nil
	case "json":
		return FileTypeJSON, nil
	case "pdf":
		return FileTypePDF, nil
	case "html", "htm":
		return FileTypeHTML, nil
	}
	return "", ErrUnsupportedFileType(ext)
}

// FileTypeFromName derives the file type from a file name's extension
func FileTypeFromName(name string) (FileType, error) {
	return ParseFileType(filepath.Ext(name))
}

// ChunkMetadata records the provenance of a chunk
type ChunkMetadata struct {
	Source      string   `json:"source"`
	FileType    FileType `json:"file_type"`
	FilePath    string   `json:"file_path"`
	ChunkID     int      `json:"chunk_id"`
	TotalChunks int      `json:"total_chunks"`
}

// Map renders the metadata as a vector store payload
func (m ChunkMetadata) Map() map[string]any {
	return map[string]any{
		"source":       m.Source,
		"file_type":    string(m.FileType),
		"file_path":    m.FilePath,
		"chunk_id":     m.ChunkID,
		"total_chunks": m.TotalChunks,
	}
}

// ChunkMetadataFromMap parses a payload produced by Map.
// Numbers decoded from JSON arrive as float64.
func ChunkMetadataFromMap(m map[string]any) ChunkMetadata {
	var md ChunkMetadata
	if m == nil {
		return md
	}
	md.Source, _ = m["source"].(string)
	if ft, ok := m["file_type"].(string); ok {
		md.FileType = FileType(ft)
	}
	md.FilePath, _ = m["file_path"].(string)
	md.ChunkID = toInt(m["chunk_id"])
	md.TotalChunks = toInt(m["total_chunks"])
	return md
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	}
	return 0
}

// Chunk is a bounded-size slice of a document's extracted text
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// RetrievalResult is a chunk returned by similarity search
type RetrievalResult struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float32       `json:"score"`
}
