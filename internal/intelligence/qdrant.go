// Package intelligence provides embeddings and the document vector index
package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// QdrantConfig holds Qdrant configuration
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantClient provides access to the Qdrant REST API
type QdrantClient struct {
	config     QdrantConfig
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
}

// NewQdrantClient creates a new Qdrant client
func NewQdrantClient(config QdrantConfig, logger *zap.Logger) *QdrantClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:6333"
	}
	if config.Collection == "" {
		config.Collection = "qa_agent_docs"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &QdrantClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
	}
}

// VectorPoint represents a point in the vector space
type VectorPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// SearchResult represents a search result from Qdrant
type SearchResult struct {
	ID      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// CollectionInfo is the subset of collection details used for display
type CollectionInfo struct {
	Status       string `json:"status"`
	PointsCount  int64  `json:"points_count"`
	VectorsCount int64  `json:"vectors_count"`
}

// StatusError is a non-2xx response from Qdrant
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant error %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a Qdrant 404
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Collection returns the collection name
func (q *QdrantClient) Collection() string {
	return q.config.Collection
}

// CollectionExists reports whether the configured collection exists
func (q *QdrantClient) CollectionExists(ctx context.Context) (bool, error) {
	resp, err := q.request(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return false, err
	}

	var result struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return false, fmt.Errorf("parsing collections: %w", err)
	}

	for _, c := range result.Result.Collections {
		if c.Name == q.config.Collection {
			return true, nil
		}
	}

	return false, nil
}

// CreateCollection creates the collection with cosine distance
func (q *QdrantClient) CreateCollection(ctx context.Context, dimension int) error {
	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}

	if _, err := q.request(ctx, http.MethodPut, q.collectionPath(""), payload); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	q.logger.Info("created Qdrant collection",
		zap.String("collection", q.config.Collection),
		zap.Int("dimension", dimension),
	)
	return nil
}

// DeleteCollection drops the collection. A missing collection is not an error.
func (q *QdrantClient) DeleteCollection(ctx context.Context) error {
	_, err := q.request(ctx, http.MethodDelete, q.collectionPath(""), nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("deleting collection: %w", err)
	}

	q.logger.Info("deleted Qdrant collection", zap.String("collection", q.config.Collection))
	return nil
}

// UpsertPoints stores multiple points in one request and waits for them to be applied
func (q *QdrantClient) UpsertPoints(ctx context.Context, points []VectorPoint) error {
	payload := map[string]interface{}{
		"points": points,
	}

	if _, err := q.request(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), payload); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	return nil
}

// Search finds the nearest points to vector. filter may be nil.
func (q *QdrantClient) Search(ctx context.Context, vector []float32, limit int, filter map[string]interface{}) ([]SearchResult, error) {
	payload := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	if filter != nil {
		payload["filter"] = filter
	}

	resp, err := q.request(ctx, http.MethodPost, q.collectionPath("/points/search"), payload)
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	var result struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}

	results := make([]SearchResult, 0, len(result.Result))
	for _, r := range result.Result {
		results = append(results, SearchResult{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}

	return results, nil
}

// CollectionInfo returns point counts and status for the collection
func (q *QdrantClient) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	resp, err := q.request(ctx, http.MethodGet, q.collectionPath(""), nil)
	if err != nil {
		return nil, fmt.Errorf("getting collection info: %w", err)
	}

	var result struct {
		Result CollectionInfo `json:"result"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parsing collection info: %w", err)
	}

	return &result.Result, nil
}

// Health checks the Qdrant server health
func (q *QdrantClient) Health(ctx context.Context) error {
	_, err := q.request(ctx, http.MethodGet, "/healthz", nil)
	return err
}

// MatchFilter renders an equality filter over chunk metadata fields
func MatchFilter(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	must := make([]map[string]interface{}, 0, len(fields))
	for key, value := range fields {
		must = append(must, map[string]interface{}{
			"key":   "metadata." + key,
			"match": map[string]interface{}{"value": value},
		})
	}

	return map[string]interface{}{"must": must}
}

// Private methods

func (q *QdrantClient) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.config.Collection) + suffix
}

func (q *QdrantClient) request(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if q.config.APIKey != "" {
		req.Header.Set("api-key", q.config.APIKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
