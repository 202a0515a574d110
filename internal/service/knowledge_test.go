package service

import (
	"context"
	"errors"
	"testing"

	"github.com/parley-labs/parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChunkEmbedder is a mock implementation of ChunkEmbedder
type MockChunkEmbedder struct {
	mock.Mock
}

func (m *MockChunkEmbedder) EmbedChunks(ctx context.Context, personaID string, chunks []domain.KnowledgeChunk) ([]domain.EmbeddedChunk, error) {
	args := m.Called(ctx, personaID, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EmbeddedChunk), args.Error(1)
}

// MockVectorWriter is a mock implementation of VectorWriter
type MockVectorWriter struct {
	mock.Mock
}

func (m *MockVectorWriter) Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	args := m.Called(ctx, namespace, chunks)
	return args.Error(0)
}

func (m *MockVectorWriter) DeleteCollection(ctx context.Context, namespace string) error {
	args := m.Called(ctx, namespace)
	return args.Error(0)
}

func TestIngestService_ReplaceKnowledge(t *testing.T) {
	ctx := context.Background()
	cfg := ChunkConfig{MinWords: 2, MaxWords: 50, OverlapWords: 1}

	t.Run("drops the old collection then embeds and upserts", func(t *testing.T) {
		embedder := new(MockChunkEmbedder)
		index := new(MockVectorWriter)

		embedded := []domain.EmbeddedChunk{
			{Text: "some persona knowledge", Ordinal: 0, Vector: []float32{0.1}, PersonaID: "p1"},
		}

		var deleted bool
		index.On("DeleteCollection", mock.Anything, "persona_p1").
			Run(func(args mock.Arguments) { deleted = true }).Return(nil)
		embedder.On("EmbedChunks", mock.Anything, "p1", mock.MatchedBy(func(chunks []domain.KnowledgeChunk) bool {
			return deleted && len(chunks) == 1 && chunks[0].Text == "some persona knowledge"
		})).Return(embedded, nil)
		index.On("Upsert", mock.Anything, "persona_p1", embedded).Return(nil)

		svc := NewIngestService(embedder, index, cfg)

		err := svc.ReplaceKnowledge(ctx, "p1", "persona_p1", "some persona knowledge")
		require.NoError(t, err)

		embedder.AssertExpectations(t)
		index.AssertExpectations(t)
	})

	t.Run("empty knowledge drops the collection and stops", func(t *testing.T) {
		embedder := new(MockChunkEmbedder)
		index := new(MockVectorWriter)

		index.On("DeleteCollection", mock.Anything, "persona_p1").Return(nil)

		svc := NewIngestService(embedder, index, cfg)

		err := svc.ReplaceKnowledge(ctx, "p1", "persona_p1", "   \n  ")
		require.NoError(t, err)

		embedder.AssertNotCalled(t, "EmbedChunks", mock.Anything, mock.Anything, mock.Anything)
		index.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delete failure aborts before embedding", func(t *testing.T) {
		embedder := new(MockChunkEmbedder)
		index := new(MockVectorWriter)

		index.On("DeleteCollection", mock.Anything, "persona_p1").
			Return(errors.New("index down"))

		svc := NewIngestService(embedder, index, cfg)

		err := svc.ReplaceKnowledge(ctx, "p1", "persona_p1", "some persona knowledge")
		require.Error(t, err)

		embedder.AssertNotCalled(t, "EmbedChunks", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("embedding failure aborts before upsert", func(t *testing.T) {
		embedder := new(MockChunkEmbedder)
		index := new(MockVectorWriter)

		index.On("DeleteCollection", mock.Anything, "persona_p1").Return(nil)
		embedder.On("EmbedChunks", mock.Anything, "p1", mock.Anything).
			Return(nil, domain.NewEmbeddingError(errors.New("provider down")))

		svc := NewIngestService(embedder, index, cfg)

		err := svc.ReplaceKnowledge(ctx, "p1", "persona_p1", "some persona knowledge")
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeEmbedding, domainErr.Code)

		index.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("upsert failure surfaces to the caller", func(t *testing.T) {
		embedder := new(MockChunkEmbedder)
		index := new(MockVectorWriter)

		embedded := []domain.EmbeddedChunk{{Text: "some persona knowledge", Vector: []float32{0.1}}}

		index.On("DeleteCollection", mock.Anything, "persona_p1").Return(nil)
		embedder.On("EmbedChunks", mock.Anything, "p1", mock.Anything).Return(embedded, nil)
		index.On("Upsert", mock.Anything, "persona_p1", embedded).
			Return(errors.New("write failed"))

		svc := NewIngestService(embedder, index, cfg)

		err := svc.ReplaceKnowledge(ctx, "p1", "persona_p1", "some persona knowledge")
		require.Error(t, err)
	})
}

func TestIngestService_DeleteKnowledge(t *testing.T) {
	embedder := new(MockChunkEmbedder)
	index := new(MockVectorWriter)

	index.On("DeleteCollection", mock.Anything, "persona_p1").Return(nil)

	svc := NewIngestService(embedder, index, DefaultChunkConfig())

	err := svc.DeleteKnowledge(context.Background(), "persona_p1")
	require.NoError(t, err)
	index.AssertExpectations(t)
}
