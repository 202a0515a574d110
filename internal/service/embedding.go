package service

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/parley-labs/parley/internal/domain"
	"golang.org/x/sync/errgroup"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

const embedMaxRetries = 3

// EmbeddingPipeline turns knowledge chunks into embedded chunks. Requests
// run through a bounded worker pool; the in-flight cap defaults to 1 to
// respect provider rate limits, and each request retries transient
// failures with exponential backoff before the whole ingestion is aborted.
type EmbeddingPipeline struct {
	client      EmbeddingClient
	maxInFlight int
	newBackOff  func() backoff.BackOff
}

// NewEmbeddingPipeline creates a pipeline with the given concurrency cap.
func NewEmbeddingPipeline(client EmbeddingClient, maxInFlight int) *EmbeddingPipeline {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &EmbeddingPipeline{
		client:      client,
		maxInFlight: maxInFlight,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), embedMaxRetries)
		},
	}
}

// EmbedChunks embeds every chunk and pairs it with its vector, preserving
// chunk order. Any chunk that still fails after retries aborts the batch:
// a half-embedded knowledge base must never be silently upserted.
func (p *EmbeddingPipeline) EmbedChunks(ctx context.Context, personaID string, chunks []domain.KnowledgeChunk) ([]domain.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	embedded := make([]domain.EmbeddedChunk, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxInFlight)

	for i, chunk := range chunks {
		g.Go(func() error {
			vector, err := p.embedWithRetry(ctx, chunk.Text)
			if err != nil {
				return domain.NewEmbeddingError(err)
			}
			embedded[i] = domain.EmbeddedChunk{
				Text:      chunk.Text,
				Ordinal:   chunk.Ordinal,
				Vector:    vector,
				PersonaID: personaID,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embedded, nil
}

// EmbedQuery embeds a single query string with the same retry policy.
func (p *EmbeddingPipeline) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := p.embedWithRetry(ctx, text)
	if err != nil {
		return nil, domain.NewEmbeddingError(err)
	}
	return vector, nil
}

func (p *EmbeddingPipeline) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	operation := func() error {
		v, err := p.client.GenerateEmbedding(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			// An empty vector is not retryable and must never be
			// defaulted to zeros.
			return backoff.Permanent(domain.ErrEmbeddingEmpty)
		}
		vector = v
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(p.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return vector, nil
}
