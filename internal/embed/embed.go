// Package embed turns chunk text into vectors.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Embedder maps texts to vectors, one per text and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// RetryPolicy controls how EmbedAll retries transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error)
	// OnBatch, if set, is called after each batch succeeds with the batch's
	// offset into texts and its size.
	OnBatch func(start, n int)
}

// EmbedAll embeds texts in batches of batchSize, retrying each batch on
// RetryableError. The result is aligned with texts.
func EmbedAll(ctx context.Context, e Embedder, texts []string, batchSize int, policy RetryPolicy) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := embedWithRetry(ctx, e, texts[start:end], policy)
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("batch [%d:%d]: got %d vectors", start, end, len(vecs))
		}
		out = append(out, vecs...)
		if policy.OnBatch != nil {
			policy.OnBatch(start, len(vecs))
		}
	}
	return out, nil
}

func embedWithRetry(ctx context.Context, e Embedder, texts []string, policy RetryPolicy) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		vecs, err := e.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == policy.MaxRetries {
			break
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}
		var wait time.Duration
		if policy.Backoff != nil {
			wait = policy.Backoff(attempt)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
