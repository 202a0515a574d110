package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/parley-labs/parley/internal/domain"
	"github.com/parley-labs/parley/internal/telemetry"
)

// RefusalSentence is the fixed string the model is instructed to emit
// when the retrieved knowledge cannot answer the question.
const RefusalSentence = "I don't have enough information to answer that question."

// NoKnowledgeBlock is rendered when retrieval returns nothing.
const NoKnowledgeBlock = "No relevant knowledge found."

// QueryEmbedder defines the interface for embedding a user query
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher defines the similarity search interface
type VectorSearcher interface {
	Search(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.RetrievedChunk, error)
}

// TextGenerator defines the interface for answer generation
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// AnswerInput carries everything the pipeline needs for one chat turn.
type AnswerInput struct {
	PersonaID     string
	PersonaName   string
	PersonaPrompt string
	Namespace     string
	Message       string
}

// ChatService runs the retrieval-augmented answer pipeline: embed the
// query, retrieve grounding chunks, assemble the prompt, generate.
// Stateless; safe for concurrent use across personas and users.
type ChatService struct {
	embedder  QueryEmbedder
	searcher  VectorSearcher
	generator TextGenerator
	topK      int
}

// NewChatService creates a new ChatService instance
func NewChatService(embedder QueryEmbedder, searcher VectorSearcher, generator TextGenerator, topK int) *ChatService {
	if topK <= 0 {
		topK = 3
	}
	return &ChatService{
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		topK:      topK,
	}
}

// Answer produces a grounded reply to the user message. A failed query
// embedding fails the whole operation; a failed search degrades to an
// empty retrieval set so the chat stays available; a failed generation
// is fatal to the request.
func (s *ChatService) Answer(ctx context.Context, input AnswerInput) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.Answer", telemetry.SpanAttributes{
		PersonaID: input.PersonaID,
		Namespace: input.Namespace,
		Operation: "answer",
	})
	defer span.End()

	queryVector, err := s.embedder.EmbedQuery(ctx, input.Message)
	if err != nil {
		span.SetError(err)
		return "", err
	}

	retrieved, err := s.searcher.Search(ctx, input.Namespace, queryVector, s.topK)
	if err != nil {
		// Answering matters more than grounding completeness: proceed
		// without context and let the prompt signal low confidence.
		log.Printf("vector search failed for %q, proceeding without context: %v", input.Namespace, err)
		telemetry.CaptureError(ctx, err)
		retrieved = nil
	}

	prompt := buildPrompt(input, retrieved)

	answer, err := s.generator.GenerateText(ctx, prompt)
	if err != nil {
		span.SetError(err)
		return "", domain.NewGenerationError(err)
	}

	return answer, nil
}

// buildPrompt assembles the deterministic grounding prompt: persona
// block, only-from-knowledge instructions with the fixed refusal
// sentence, the rendered knowledge block, and the literal user message.
func buildPrompt(input AnswerInput, retrieved []domain.RetrievedChunk) string {
	personality := input.PersonaPrompt
	if personality == "" {
		personality = domain.DefaultPersonality
	}

	return fmt.Sprintf(`System:
You are %s.
Personality: %s

Only answer using the provided knowledge below.
If the knowledge is insufficient to answer the question, respond with:
%q

Do NOT make up facts. Do NOT answer outside the provided knowledge.

Knowledge:
%s

User:
%s`, input.PersonaName, personality, RefusalSentence, renderKnowledge(retrieved), input.Message)
}

func renderKnowledge(retrieved []domain.RetrievedChunk) string {
	if len(retrieved) == 0 {
		return NoKnowledgeBlock
	}

	blocks := make([]string, 0, len(retrieved))
	for i, c := range retrieved {
		blocks = append(blocks, fmt.Sprintf("[Chunk %d] (relevance: %.3f)\n%s", i+1, c.Score, c.Text))
	}
	return strings.Join(blocks, "\n\n")
}
