package ingest

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Separator ladder, coarsest first. The empty separator splits into runes.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into overlapping segments of bounded length.
// Lengths are measured in runes.
type Chunker struct {
	size       int
	overlap    int
	separators []string
	logger     *zap.Logger
}

// NewChunker creates a recursive text splitter. Non-positive sizes fall back to
// the defaults and an overlap that does not fit inside a chunk is clamped.
func NewChunker(size, overlap int, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
		logger:     logger,
	}
}

// Size returns the maximum chunk length
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap between consecutive chunks
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text and annotates each piece with base plus its position.
// Any internal failure yields an empty result.
func (c *Chunker) Chunk(text string, base domain.ChunkMetadata) []domain.Chunk {
	pieces := c.Split(text)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		md := base
		md.ChunkID = i
		md.TotalChunks = len(pieces)
		chunks[i] = domain.Chunk{Content: p, Metadata: md}
	}

	c.logger.Debug("Created chunks",
		zap.String("source", base.Source),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

// Split returns the chunk texts for text
func (c *Chunker) Split(text string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Text splitting failed", zap.Any("panic", r))
			out = nil
		}
	}()
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < c.size {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			final = append(final, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, c.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good)...)
	}

	return final
}

// merge greedily packs pieces into chunks, carrying up to overlap runes of
// trailing pieces into the next chunk.
func (c *Chunker) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > c.size {
			if total > c.size {
				c.logger.Warn("Created a chunk larger than the configured size",
					zap.Int("length", total),
					zap.Int("size", c.size),
				)
			}
			if len(current) > 0 {
				if doc := joinPieces(current); doc != "" {
					docs = append(docs, doc)
				}
				for total > c.overlap || (total+n > c.size && total > 0) {
					total -= runeLen(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n
	}

	if doc := joinPieces(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits text on sep, attaching each separator to the
// start of the piece that follows it. Empty pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	var splits []string
	if sep == "" {
		splits = make([]string, 0, len(text))
		for _, r := range text {
			splits = append(splits, string(r))
		}
		return splits
	}

	parts := strings.Split(text, sep)
	splits = make([]string, 0, len(parts))
	if parts[0] != "" {
		splits = append(splits, parts[0])
	}
	for _, p := range parts[1:] {
		splits = append(splits, sep+p)
	}
	return splits
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
