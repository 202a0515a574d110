package service

import (
	"context"
	"log"

	"github.com/parley-labs/parley/internal/domain"
	"github.com/parley-labs/parley/internal/telemetry"
)

// ChunkEmbedder defines the interface for embedding knowledge chunks
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, personaID string, chunks []domain.KnowledgeChunk) ([]domain.EmbeddedChunk, error)
}

// VectorWriter defines the vector index operations ingestion needs
type VectorWriter interface {
	Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error
	DeleteCollection(ctx context.Context, namespace string) error
}

// IngestService replaces a persona's knowledge in the vector index:
// chunk, embed, drop the old collection, upsert the new chunks.
type IngestService struct {
	embedder ChunkEmbedder
	index    VectorWriter
	chunkCfg ChunkConfig
}

// NewIngestService creates a new IngestService instance
func NewIngestService(embedder ChunkEmbedder, index VectorWriter, chunkCfg ChunkConfig) *IngestService {
	if chunkCfg.MaxWords <= 0 {
		chunkCfg = DefaultChunkConfig()
	}
	return &IngestService{
		embedder: embedder,
		index:    index,
		chunkCfg: chunkCfg,
	}
}

// ReplaceKnowledge re-ingests rawText as the persona's entire knowledge
// base. The old collection is always dropped first so no stale chunks
// survive a replacement. Empty text leaves the namespace empty without a
// single embedding or upsert call. Errors abort the ingestion and surface
// to the caller, who owns cleanup of any associated persisted state.
//
// Concurrent replacements of the same namespace are not safe; callers
// must serialize edits per persona.
func (s *IngestService) ReplaceKnowledge(ctx context.Context, personaID, namespace, rawText string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.ReplaceKnowledge", telemetry.SpanAttributes{
		PersonaID: personaID,
		Namespace: namespace,
		Operation: "ingest",
	})
	defer span.End()

	if err := s.index.DeleteCollection(ctx, namespace); err != nil {
		return err
	}

	chunks := ChunkText(rawText, s.chunkCfg)
	if len(chunks) == 0 {
		log.Printf("persona %s: empty knowledge base, namespace %q left empty", personaID, namespace)
		return nil
	}

	embedded, err := s.embedder.EmbedChunks(ctx, personaID, chunks)
	if err != nil {
		span.SetError(err)
		return err
	}

	if err := s.index.Upsert(ctx, namespace, embedded); err != nil {
		span.SetError(err)
		return err
	}

	log.Printf("persona %s: ingested %d chunks into %q", personaID, len(chunks), namespace)
	return nil
}

// DeleteKnowledge drops the persona's collection. A missing collection
// is not an error; any other index failure surfaces to the caller.
func (s *IngestService) DeleteKnowledge(ctx context.Context, namespace string) error {
	return s.index.DeleteCollection(ctx, namespace)
}
