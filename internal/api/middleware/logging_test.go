package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	if rw.statusCode != http.StatusOK {
		t.Errorf("default statusCode = %d, want %d", rw.statusCode, http.StatusOK)
	}

	rw.WriteHeader(http.StatusAccepted)
	rw.Write([]byte("ingest"))
	rw.Write([]byte("ed"))

	if rw.statusCode != http.StatusAccepted {
		t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusAccepted)
	}
	if rw.written != 8 {
		t.Errorf("written = %d, want 8", rw.written)
	}
	if rec.Body.String() != "ingested" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ingested")
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"search ok", http.StatusOK, zapcore.InfoLevel},
		{"no markup", http.StatusUnprocessableEntity, zapcore.WarnLevel},
		{"rate limited", http.StatusTooManyRequests, zapcore.WarnLevel},
		{"model unreachable", http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			m := NewLoggingMiddleware(zap.New(core))

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/index/search", nil)
			rec := httptest.NewRecorder()
			m.Handler(handler).ServeHTTP(rec, req)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("logged %d entries, want 1", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("level = %v, want %v", entries[0].Level, tt.level)
			}
			fields := entries[0].ContextMap()
			if fields["path"] != "/api/v1/index/search" {
				t.Errorf("path field = %v", fields["path"])
			}
			if fields["status"] != int64(tt.status) {
				t.Errorf("status field = %v, want %d", fields["status"], tt.status)
			}
		})
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	t.Run("generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewLoggingMiddleware(zaptest.NewLogger(t)).Handler(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		if len(rec.Header().Get("X-Request-ID")) != 36 {
			t.Errorf("X-Request-ID = %q, want a UUID", rec.Header().Get("X-Request-ID"))
		}
	})

	t.Run("header is echoed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("X-Request-ID", "ingest-batch-7")
		rec := httptest.NewRecorder()
		NewLoggingMiddleware(zaptest.NewLogger(t)).Handler(ok).ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "ingest-batch-7" {
			t.Errorf("X-Request-ID = %q, want %q", got, "ingest-batch-7")
		}
	})

	t.Run("chi request ID is preferred", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		rec := httptest.NewRecorder()
		chimw.RequestID(NewLoggingMiddleware(zaptest.NewLogger(t)).Handler(ok)).ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if !strings.Contains(got, "/") {
			t.Errorf("X-Request-ID = %q, want chi's generated ID", got)
		}
	})
}

func TestNewLoggingMiddleware_NilLogger(t *testing.T) {
	if m := NewLoggingMiddleware(nil); m.logger == nil {
		t.Error("nil logger should be replaced by a no-op logger")
	}
	if m := NewRecoveryMiddleware(nil); m.logger == nil {
		t.Error("nil logger should be replaced by a no-op logger")
	}
}

func TestRecoveryMiddleware_Handler(t *testing.T) {
	t.Run("passes through normal requests", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true}`))
		})

		rec := httptest.NewRecorder()
		NewRecoveryMiddleware(zaptest.NewLogger(t)).Handler(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/index/stats", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("panic becomes an internal error envelope", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("chunker exploded")
		})

		rec := httptest.NewRecorder()
		NewRecoveryMiddleware(zap.New(core)).Handler(handler).ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/documents", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
		body := rec.Body.String()
		if !strings.Contains(body, `"INTERNAL_ERROR"`) {
			t.Errorf("body = %q, want JSON error envelope", body)
		}
		if strings.Contains(body, "chunker exploded") {
			t.Errorf("body leaks panic value: %q", body)
		}
		if logs.FilterMessage("Panic recovered").Len() != 1 {
			t.Error("panic was not logged")
		}
	})

	t.Run("abort handler panics propagate", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		})

		defer func() {
			if r := recover(); r != http.ErrAbortHandler {
				t.Errorf("recovered %v, want http.ErrAbortHandler", r)
			}
		}()
		NewRecoveryMiddleware(zap.NewNop()).Handler(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	})
}
