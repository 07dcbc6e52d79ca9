package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type triggerStub struct {
	called chan struct{}
}

func (s triggerStub) DispatchTracked(ctx context.Context) (int, error) {
	close(s.called)
	return 3, nil
}

func TestTriggerQueueJobs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := trace.NewNoopTracerProvider().Tracer("handler-test")

	h := New(tracer, nil, nil)
	r := gin.New()
	h.RegisterRoutes(r, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/queue-jobs", nil)
	req.Header.Set("X-API-Key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a trigger, got %d", w.Code)
	}

	stub := triggerStub{called: make(chan struct{})}
	h.SetQueueTrigger(stub)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/queue-jobs", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/queue-jobs", nil)
	req.Header.Set("X-API-Key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	select {
	case <-stub.called:
	case <-time.After(time.Second):
		t.Fatal("dispatch was not started")
	}
}
