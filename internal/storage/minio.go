// Package storage persists generated artifacts (scripts and captured pages)
// in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
)

const (
	scriptContentType = "text/x-python"
	pageContentType   = "text/html; charset=utf-8"

	// DefaultScriptPrefix is the key prefix for generated scripts
	DefaultScriptPrefix = "scripts"
	// PagePrefix is the key prefix for captured pages
	PagePrefix = "pages"
)

// MinIOConfig contains MinIO connection settings
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	ScriptPrefix    string
}

// ArtifactStore wraps the MinIO client
type ArtifactStore struct {
	client       *minio.Client
	bucketName   string
	scriptPrefix string
	logger       *zap.Logger
}

// NewArtifactStore creates a new MinIO-backed artifact store
func NewArtifactStore(cfg MinIOConfig, logger *zap.Logger) (*ArtifactStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	prefix := strings.Trim(cfg.ScriptPrefix, "/")
	if prefix == "" {
		prefix = DefaultScriptPrefix
	}

	return &ArtifactStore{
		client:       client,
		bucketName:   cfg.BucketName,
		scriptPrefix: prefix,
		logger:       logger,
	}, nil
}

// Bucket returns the bucket name
func (s *ArtifactStore) Bucket() string {
	return s.bucketName
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *ArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		s.logger.Info("created artifact bucket", zap.String("bucket", s.bucketName))
	}

	return nil
}

// Health reports whether the bucket is reachable
func (s *ArtifactStore) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

// Upload stores data under key and returns its s3:// URI
func (s *ArtifactStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading object: %w", err)
	}

	uri := ObjectURI(s.bucketName, key)
	s.logger.Debug("uploaded artifact", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return uri, nil
}

// UploadScript stores a generated script under the script prefix
func (s *ArtifactStore) UploadScript(ctx context.Context, fileName, script string) (string, error) {
	return s.Upload(ctx, ObjectKey(s.scriptPrefix, fileName), []byte(script), scriptContentType)
}

// UploadPage stores captured page markup under the page prefix
func (s *ArtifactStore) UploadPage(ctx context.Context, fileName, html string) (string, error) {
	return s.Upload(ctx, ObjectKey(PagePrefix, fileName), []byte(html), pageContentType)
}

// Download downloads an object. A missing key is reported as domain.ErrNotFound.
func (s *ArtifactStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, domain.ErrNotFound("artifact", key)
		}
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// Delete deletes an object
func (s *ArtifactStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
}

// ListScripts lists stored script keys
func (s *ArtifactStore) ListScripts(ctx context.Context) ([]string, error) {
	return s.ListObjects(ctx, s.scriptPrefix+"/")
}

// ListObjects lists objects with a given prefix
func (s *ArtifactStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}

	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, object.Err
		}
		keys = append(keys, object.Key)
	}

	return keys, nil
}

// ObjectKey joins a prefix and a file name, keeping only the base name
func ObjectKey(prefix, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "artifact"
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ObjectURI returns the S3-style URI of an object
func ObjectURI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
