package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.DocumentProcessed("completed")
	m.DocumentProcessed("completed")
	m.DocumentProcessed("failed")
	m.ChunksEmitted(7)
	m.SetQueueDepth(3)
	m.ObserveConfidence(0.8)
	m.ObserveStage("parsing", time.Now())

	if got := testutil.ToFloat64(m.documents.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.chunks); got != 7 {
		t.Errorf("chunks = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(m.stages); n != 1 {
		t.Errorf("stage series = %d, want 1", n)
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)
	m.ChunksEmitted(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "docchunk_chunks_emitted_total 2") {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DocumentProcessed("completed")
	m.ChunksEmitted(1)
	m.ObserveStage("x", time.Now())
	m.ObserveConfidence(1)
	m.SetQueueDepth(1)
	m.EmbeddingRequest("ok")
}
