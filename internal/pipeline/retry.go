package pipeline

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/docchunk/internal/embed"
)

// Retry controls how embedding batches are retried on transient upstream
// errors (429 and 5xx).
type Retry struct {
	MaxRetries int           // retries after the first attempt; 0 disables
	BaseDelay  time.Duration // wait before the first retry, doubled per attempt
	MaxDelay   time.Duration // cap on the doubled delay
}

// DefaultRetry waits 1s, 2s, 4s (plus jitter) between four attempts.
func DefaultRetry() Retry {
	return Retry{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Backoff returns the wait before retry attempt n (0-indexed): the doubled
// base capped at MaxDelay, plus up to half of that again as jitter.
func (r Retry) Backoff(attempt int) time.Duration {
	if r.BaseDelay <= 0 {
		return 0
	}
	d := r.BaseDelay << min(attempt, 30)
	if d <= 0 || (r.MaxDelay > 0 && d > r.MaxDelay) {
		d = r.MaxDelay
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

// policy builds the embed retry policy for one job, reporting retries and
// per-batch progress.
func (r Retry) policy(log *slog.Logger, w *Worker, job *Job) embed.RetryPolicy {
	return embed.RetryPolicy{
		MaxRetries: r.MaxRetries,
		Backoff:    r.Backoff,
		OnRetry: func(attempt int, err error) {
			w.deps.Metrics.EmbeddingRequest("retry")
			log.Warn("retryable embedding error", "attempt", attempt+1, "max_retries", r.MaxRetries, "error", err)
		},
		OnBatch: func(start, n int) {
			w.deps.Metrics.EmbeddingRequest("ok")
			job.AddEmbedded(n)
			log.Debug("batch embedded", "batch_start", start, "size", n)
		},
	}
}
