package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/observability"
)

// FileInput describes one document to ingest. When Data is nil the file is read from Path.
type FileInput struct {
	Path string
	Name string
	Type domain.FileType
	Data []byte
}

// FileFailure records a document that was skipped
type FileFailure struct {
	Name string
	Err  error
}

// BatchResult is the outcome of processing a batch of documents
type BatchResult struct {
	Chunks    []domain.Chunk
	Failures  []FileFailure
	Processed int
}

// Sources returns the names of the documents that produced chunks, in input order
func (r *BatchResult) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.Chunks {
		if !seen[c.Metadata.Source] {
			seen[c.Metadata.Source] = true
			out = append(out, c.Metadata.Source)
		}
	}
	return out
}

// Indexer is the write side of the vector index
type Indexer interface {
	EnsureCollection(ctx context.Context, forceRecreate bool) error
	Upsert(ctx context.Context, chunks []domain.Chunk) error
}

// Pipeline extracts, chunks and indexes documents
type Pipeline struct {
	extractor *Extractor
	chunker   *Chunker
	index     Indexer
	metrics   *observability.Metrics
	logger    *zap.Logger

	// OnFileDone is called after each file with its chunk count or failure
	OnFileDone func(name string, chunks int, err error)
}

// NewPipeline creates an ingestion pipeline. index may be nil when only
// ProcessFiles is used.
func NewPipeline(extractor *Extractor, chunker *Chunker, index Indexer, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		metrics:   metrics,
		logger:    logger,
	}
}

// ProcessFiles extracts and chunks every file. A failing file is logged,
// recorded in the result and skipped.
func (p *Pipeline) ProcessFiles(ctx context.Context, files []FileInput) *BatchResult {
	result := &BatchResult{}

	for _, f := range files {
		if ctx.Err() != nil {
			result.Failures = append(result.Failures, FileFailure{Name: f.Name, Err: ctx.Err()})
			continue
		}

		chunks, err := p.processFile(ctx, f)
		if p.OnFileDone != nil {
			p.OnFileDone(f.Name, len(chunks), err)
		}
		if err != nil {
			p.logger.Error("Skipping document",
				zap.String("source", f.Name),
				zap.Error(err),
			)
			p.metrics.RecordDocument(string(f.Type), "failure", 0)
			result.Failures = append(result.Failures, FileFailure{Name: f.Name, Err: err})
			continue
		}

		p.logger.Info("Processed document",
			zap.String("source", f.Name),
			zap.Int("chunks", len(chunks)),
		)
		p.metrics.RecordDocument(string(f.Type), "success", len(chunks))
		result.Chunks = append(result.Chunks, chunks...)
		result.Processed++
	}

	p.logger.Info("Batch processed",
		zap.Int("files", len(files)),
		zap.Int("failed", len(result.Failures)),
		zap.Int("chunks", len(result.Chunks)),
	)
	return result
}

func (p *Pipeline) processFile(ctx context.Context, f FileInput) ([]domain.Chunk, error) {
	if f.Name == "" {
		f.Name = f.Path
	}
	if !f.Type.IsValid() {
		return nil, domain.ErrUnsupportedFileType(string(f.Type))
	}

	var (
		text string
		err  error
	)
	if f.Data != nil {
		text, err = p.extractor.ExtractBytes(f.Name, f.Data, f.Type)
	} else {
		text, err = p.extractor.Extract(ctx, f.Path, f.Type)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrExtractionFailed(f.Name, fmt.Errorf("no text extracted"))
	}

	chunks := p.chunker.Chunk(text, domain.ChunkMetadata{
		Source:   f.Name,
		FileType: f.Type,
		FilePath: f.Path,
	})
	if len(chunks) == 0 {
		return nil, domain.ErrExtractionFailed(f.Name, fmt.Errorf("no chunks produced"))
	}
	return chunks, nil
}

// Ingest processes files and writes the resulting chunks to the index.
// The batch result is returned even when indexing fails.
func (p *Pipeline) Ingest(ctx context.Context, files []FileInput, forceRecreate bool) (*BatchResult, error) {
	if p.index == nil {
		return nil, domain.ErrInternal("ingestion pipeline has no index")
	}

	result := p.ProcessFiles(ctx, files)
	if len(result.Chunks) == 0 {
		return result, domain.ErrValidation("no documents could be processed")
	}

	if err := p.index.EnsureCollection(ctx, forceRecreate); err != nil {
		return result, err
	}
	if err := p.index.Upsert(ctx, result.Chunks); err != nil {
		return result, err
	}

	p.logger.Info("Knowledge base built",
		zap.Int("documents", result.Processed),
		zap.Int("chunks", len(result.Chunks)),
	)
	return result, nil
}
