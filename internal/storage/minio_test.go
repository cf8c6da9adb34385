package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/qaagent/internal/domain"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{"scripts", "test_TC-001.py", "scripts/test_TC-001.py"},
		{"/scripts/", "test_TC-001.py", "scripts/test_TC-001.py"},
		{"", "test_TC-001.py", "test_TC-001.py"},
		{"scripts", "../../etc/passwd", "scripts/passwd"},
		{"pages", `C:\tmp\checkout.html`, "pages/checkout.html"},
		{"scripts", "", "scripts/artifact"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.prefix, tt.name))
		})
	}
}

func TestObjectURI(t *testing.T) {
	assert.Equal(t, "s3://qa-agent/scripts/test_TC-001.py", ObjectURI("qa-agent", "scripts/test_TC-001.py"))
}

func TestNewArtifactStore(t *testing.T) {
	s, err := NewArtifactStore(MinIOConfig{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "qa-agent",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "qa-agent", s.Bucket())
	assert.Equal(t, DefaultScriptPrefix, s.scriptPrefix)

	_, err = NewArtifactStore(MinIOConfig{Endpoint: "localhost:9000"}, nil)
	assert.Error(t, err)
}

func TestDownload_MissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		if r.URL.Query().Has("location") {
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>scripts/test_TC-404.py</Key><BucketName>qa-agent</BucketName></Error>`))
	}))
	defer srv.Close()

	s, err := NewArtifactStore(MinIOConfig{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "qa-agent",
	}, nil)
	require.NoError(t, err)

	_, err = s.Download(context.Background(), "scripts/test_TC-404.py")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFoundSentinel))
	assert.Contains(t, err.Error(), "scripts/test_TC-404.py")
}
