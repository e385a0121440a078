package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/dgallion1/docchunk/internal/chunker"
)

// OpenAIConfig configures the OpenAI embeddings client.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // empty for api.openai.com
	Model           string
	TokensPerMinute int
	Timeout         time.Duration
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint. All calls share one
// token-rate limiter.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
	stats   *Stats
}

// NewOpenAIEmbedder creates an embedder. stats may be nil.
func NewOpenAIEmbedder(cfg OpenAIConfig, stats *Stats) *OpenAIEmbedder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = 1_000_000
	}
	if stats == nil {
		stats = NewStats(time.Hour)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Retries happen in EmbedAll so the limiter and backoff see them.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	perSecond := float64(cfg.TokensPerMinute) / 60
	return &OpenAIEmbedder{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(int(perSecond*2), 1)),
		stats:   stats,
	}
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Stats returns the latency tracker.
func (e *OpenAIEmbedder) Stats() *Stats { return e.stats }

// Embed sends one request for all texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tokens := 0
	for _, t := range texts {
		tokens += chunker.EstimateTokens(t)
	}
	if err := e.limiter.WaitN(ctx, min(max(tokens, 1), e.limiter.Burst())); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		e.stats.RecordError()
		return nil, classifyError(err)
	}
	e.stats.Record(time.Since(start))

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vecs[idx] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input index %d", i)
		}
	}
	return vecs, nil
}

// classifyError turns rate limiting and server errors into RetryableError.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return &RetryableError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
	}
	return fmt.Errorf("openai embeddings: %w", err)
}
