package embed

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedEmbedder struct {
	calls    [][]string
	failures []error
}

func (s *scriptedEmbedder) Model() string { return "scripted" }

func (s *scriptedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func noWait(int) time.Duration { return 0 }

func TestEmbedAllBatches(t *testing.T) {
	e := &scriptedEmbedder{}
	var progress [][2]int
	vecs, err := EmbedAll(context.Background(), e, []string{"a", "bb", "ccc", "dddd", "eeeee"}, 2, RetryPolicy{
		OnBatch: func(start, n int) { progress = append(progress, [2]int{start, n}) },
	})
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	if len(e.calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(e.calls))
	}
	want := [][2]int{{0, 2}, {2, 2}, {4, 1}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Errorf("vecs[%d] = %v", i, v)
		}
	}
}

func TestEmbedAllRetriesTransientFailure(t *testing.T) {
	e := &scriptedEmbedder{failures: []error{&RetryableError{StatusCode: 429, Message: "busy"}}}
	var retries int
	vecs, err := EmbedAll(context.Background(), e, []string{"a"}, 10, RetryPolicy{
		MaxRetries: 3,
		Backoff:    noWait,
		OnRetry:    func(int, error) { retries++ },
	})
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	if len(vecs) != 1 || retries != 1 || len(e.calls) != 2 {
		t.Fatalf("vecs=%d retries=%d calls=%d", len(vecs), retries, len(e.calls))
	}
}

func TestEmbedAllGivesUpAfterMaxRetries(t *testing.T) {
	busy := &RetryableError{StatusCode: 503, Message: "down"}
	e := &scriptedEmbedder{failures: []error{busy, busy, busy}}
	_, err := EmbedAll(context.Background(), e, []string{"a"}, 10, RetryPolicy{MaxRetries: 2, Backoff: noWait})
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if len(e.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(e.calls))
	}
}

func TestEmbedAllPermanentFailureNotRetried(t *testing.T) {
	boom := errors.New("bad request")
	e := &scriptedEmbedder{failures: []error{boom}}
	_, err := EmbedAll(context.Background(), e, []string{"a"}, 10, RetryPolicy{MaxRetries: 3, Backoff: noWait})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if len(e.calls) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(e.calls))
	}
}

func TestEmbedAllHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &scriptedEmbedder{failures: []error{&RetryableError{StatusCode: 429}}}
	_, err := EmbedAll(ctx, e, []string{"a"}, 1, RetryPolicy{
		MaxRetries: 3,
		Backoff:    func(int) time.Duration { return time.Hour },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
