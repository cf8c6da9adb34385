package intelligence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/observability"
)

const (
	// DefaultUpsertBatchSize bounds the number of points per write request
	DefaultUpsertBatchSize = 100
	// DefaultTopK is the number of results returned when k is not positive
	DefaultTopK = 5

	probeText = "test"
)

// Embedder generates embeddings for text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// VectorStore is the subset of the Qdrant API the index needs
type VectorStore interface {
	Collection() string
	CollectionExists(ctx context.Context) (bool, error)
	CreateCollection(ctx context.Context, dimension int) error
	DeleteCollection(ctx context.Context) error
	UpsertPoints(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, vector []float32, limit int, filter map[string]interface{}) ([]SearchResult, error)
	CollectionInfo(ctx context.Context) (*CollectionInfo, error)
	Health(ctx context.Context) error
}

// CollectionStats is a best-effort summary of the collection
type CollectionStats struct {
	Name         string `json:"name"`
	PointsCount  int64  `json:"points_count"`
	VectorsCount int64  `json:"vectors_count"`
	Status       string `json:"status"`
}

// IndexService owns the document collection: creation, writes and similarity search
type IndexService struct {
	store     VectorStore
	embedder  Embedder
	batchSize int
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewIndexService creates an index over store using embedder for both documents and queries
func NewIndexService(store VectorStore, embedder Embedder, batchSize int, metrics *observability.Metrics, logger *zap.Logger) *IndexService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	return &IndexService{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// EnsureCollection creates the collection if it is missing. With forceRecreate
// any existing collection is dropped first. The vector size comes from a probe
// embedding so it always matches the active model, and the probe runs before
// anything is dropped so an embedding failure leaves the index untouched.
func (s *IndexService) EnsureCollection(ctx context.Context, forceRecreate bool) error {
	if !forceRecreate {
		exists, err := s.store.CollectionExists(ctx)
		if err != nil {
			return domain.ErrIndexTransport("list collections", err)
		}
		if exists {
			s.logger.Debug("collection already exists", zap.String("collection", s.store.Collection()))
			return nil
		}
	}

	probe, err := s.embed(ctx, []string{probeText})
	if err != nil {
		return err
	}

	if forceRecreate {
		if err := s.store.DeleteCollection(ctx); err != nil {
			return domain.ErrIndexTransport("delete collection", err)
		}
	}

	if err := s.store.CreateCollection(ctx, len(probe[0])); err != nil {
		return domain.ErrIndexTransport("create collection", err)
	}
	return nil
}

// Embed returns one vector per text, in order
func (s *IndexService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return s.embed(ctx, texts)
}

func (s *IndexService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if domain.IsAppError(err) {
			return nil, err
		}
		return nil, domain.ErrEmbeddingFailed(err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.ErrEmbeddingFailed(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}
	return vectors, nil
}

// Upsert embeds and writes chunks in bounded batches. The first failing batch
// aborts the rest; batches already written stay committed.
func (s *IndexService) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return err
	}

	points := make([]VectorPoint, len(chunks))
	for i, c := range chunks {
		points[i] = VectorPoint{
			ID:     uuid.New().String(),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"content":  c.Content,
				"metadata": c.Metadata.Map(),
			},
		}
	}

	batches := (len(points) + s.batchSize - 1) / s.batchSize
	for b := 0; b < batches; b++ {
		start := b * s.batchSize
		end := start + s.batchSize
		if end > len(points) {
			end = len(points)
		}

		if err := s.store.UpsertPoints(ctx, points[start:end]); err != nil {
			s.metrics.RecordUpsertBatch("failure", end-start)
			s.logger.Error("upsert batch failed",
				zap.String("collection", s.store.Collection()),
				zap.Int("batch", b+1),
				zap.Int("batches", batches),
				zap.Int("committed_points", start),
				zap.Error(err),
			)
			return domain.ErrIndexTransport("upsert", fmt.Errorf("batch %d/%d: %w", b+1, batches, err)).
				WithMetadata("committed_points", start)
		}
		s.metrics.RecordUpsertBatch("success", end-start)
	}

	s.logger.Info("indexed chunks",
		zap.String("collection", s.store.Collection()),
		zap.Int("points", len(points)),
		zap.Int("batches", batches),
	)
	return nil
}

// Query returns the k chunks most similar to text, best first. When a filter
// is given and the filtered search fails, the search is retried once without it.
func (s *IndexService) Query(ctx context.Context, text string, k int, filter map[string]interface{}) ([]domain.RetrievalResult, error) {
	start := time.Now()
	if k <= 0 {
		k = DefaultTopK
	}

	vectors, err := s.embed(ctx, []string{text})
	if err != nil {
		s.metrics.RecordSearch("embedding_failure", false, time.Since(start))
		return nil, err
	}

	fallback := false
	hits, err := s.store.Search(ctx, vectors[0], k, MatchFilter(filter))
	if err != nil && len(filter) > 0 {
		s.logger.Warn("filtered search failed, retrying without filter",
			zap.Any("filter", filter),
			zap.Error(err),
		)
		fallback = true
		hits, err = s.store.Search(ctx, vectors[0], k, nil)
	}
	if err != nil {
		s.metrics.RecordSearch("failure", fallback, time.Since(start))
		return nil, domain.ErrIndexTransport("search", err)
	}

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		content, _ := h.Payload["content"].(string)
		md, _ := h.Payload["metadata"].(map[string]interface{})
		results = append(results, domain.RetrievalResult{
			Content:  content,
			Metadata: domain.ChunkMetadataFromMap(md),
			Score:    h.Score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	s.metrics.RecordSearch("success", fallback, time.Since(start))
	return results, nil
}

// Clear drops every point by deleting and recreating the collection
func (s *IndexService) Clear(ctx context.Context) error {
	if err := s.store.DeleteCollection(ctx); err != nil {
		return domain.ErrIndexTransport("delete collection", err)
	}
	if err := s.EnsureCollection(ctx, false); err != nil {
		return err
	}

	s.logger.Info("cleared collection", zap.String("collection", s.store.Collection()))
	return nil
}

// Stats never fails: transport or parsing errors yield zero counts and status "unknown"
func (s *IndexService) Stats(ctx context.Context) CollectionStats {
	stats := CollectionStats{Name: s.store.Collection(), Status: "unknown"}

	info, err := s.store.CollectionInfo(ctx)
	if err != nil {
		s.logger.Debug("collection info unavailable", zap.Error(err))
		return stats
	}

	stats.PointsCount = info.PointsCount
	stats.VectorsCount = info.VectorsCount
	if info.Status != "" {
		stats.Status = info.Status
	}
	return stats
}

// Health checks the vector store
func (s *IndexService) Health(ctx context.Context) error {
	if err := s.store.Health(ctx); err != nil {
		return domain.ErrIndexTransport("health", err)
	}
	return nil
}

// EmbeddingModel returns the name of the model used for documents and queries
func (s *IndexService) EmbeddingModel() string {
	return s.embedder.Model()
}
