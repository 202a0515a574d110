package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parley-labs/parley/internal/domain"
	"github.com/parley-labs/parley/internal/telemetry"
)

// PersonaRepositoryInterface defines the repository interface for persona persistence
type PersonaRepositoryInterface interface {
	Create(ctx context.Context, p *domain.Persona) error
	GetByID(ctx context.Context, id string) (*domain.Persona, error)
	List(ctx context.Context) ([]*domain.Persona, error)
	Update(ctx context.Context, p *domain.Persona) error
	Delete(ctx context.Context, id string) error
}

// KnowledgeIngestor defines the ingestion interface the persona service depends on
type KnowledgeIngestor interface {
	ReplaceKnowledge(ctx context.Context, personaID, namespace, rawText string) error
	DeleteKnowledge(ctx context.Context, namespace string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// PersonaService handles persona lifecycle. Knowledge replacement is
// drop-and-recreate, so edits to one persona are serialized here with a
// per-persona lock; interleaved deletes and upserts from two concurrent
// edits would corrupt the namespace.
type PersonaService struct {
	repo     PersonaRepositoryInterface
	ingestor KnowledgeIngestor
	uuidGen  UUIDGenerator

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPersonaService creates a new PersonaService instance
func NewPersonaService(repo PersonaRepositoryInterface, ingestor KnowledgeIngestor) *PersonaService {
	return NewPersonaServiceWithUUIDGen(repo, ingestor, &DefaultUUIDGenerator{})
}

// NewPersonaServiceWithUUIDGen creates a new PersonaService with a custom UUID generator (for testing)
func NewPersonaServiceWithUUIDGen(repo PersonaRepositoryInterface, ingestor KnowledgeIngestor, uuidGen UUIDGenerator) *PersonaService {
	return &PersonaService{
		repo:     repo,
		ingestor: ingestor,
		uuidGen:  uuidGen,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *PersonaService) lockFor(personaID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[personaID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[personaID] = l
	}
	return l
}

// CreateInput represents the input for creating a persona
type CreateInput struct {
	Name              string
	PersonalityPrompt string
	AvatarColor       string
	KnowledgeBase     string
}

// UpdateInput represents the input for updating a persona
type UpdateInput struct {
	PersonaID         string
	Name              string
	PersonalityPrompt string
	AvatarColor       string
	KnowledgeBase     string
}

// Create creates a persona and ingests its knowledge base. If ingestion
// fails, the persona row and any partially created namespace are removed
// so the caller sees a single actionable error, never partial success.
func (s *PersonaService) Create(ctx context.Context, input CreateInput) (*domain.Persona, error) {
	now := time.Now().UTC()
	personaID := s.uuidGen.NewString()

	persona := &domain.Persona{
		ID:                personaID,
		Name:              input.Name,
		PersonalityPrompt: input.PersonalityPrompt,
		AvatarColor:       input.AvatarColor,
		Namespace:         domain.NamespaceFor(personaID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	ctx, span := telemetry.StartSpan(ctx, "PersonaService.Create", telemetry.SpanAttributes{
		PersonaID: personaID,
		Namespace: persona.Namespace,
		Operation: "create",
	})
	defer span.End()

	if err := domain.ValidatePersona(persona); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, persona); err != nil {
		return nil, err
	}

	if input.KnowledgeBase != "" {
		lock := s.lockFor(personaID)
		lock.Lock()
		err := s.ingestor.ReplaceKnowledge(ctx, personaID, persona.Namespace, input.KnowledgeBase)
		lock.Unlock()
		if err != nil {
			span.SetError(err)
			s.rollbackCreate(ctx, persona)
			return nil, err
		}
	}

	return persona, nil
}

// rollbackCreate undoes a persona creation after a failed ingestion.
func (s *PersonaService) rollbackCreate(ctx context.Context, persona *domain.Persona) {
	if err := s.repo.Delete(ctx, persona.ID); err != nil {
		log.Printf("rollback: failed to delete persona %s: %v", persona.ID, err)
	}
	if err := s.ingestor.DeleteKnowledge(ctx, persona.Namespace); err != nil {
		log.Printf("rollback: failed to delete namespace %q: %v", persona.Namespace, err)
	}
}

// GetByID retrieves a persona by ID
func (s *PersonaService) GetByID(ctx context.Context, id string) (*domain.Persona, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves all personas
func (s *PersonaService) List(ctx context.Context) ([]*domain.Persona, error) {
	return s.repo.List(ctx)
}

// Update updates a persona's profile and, when a knowledge base is
// provided, replaces its entire knowledge namespace.
func (s *PersonaService) Update(ctx context.Context, input UpdateInput) (*domain.Persona, error) {
	ctx, span := telemetry.StartSpan(ctx, "PersonaService.Update", telemetry.SpanAttributes{
		PersonaID: input.PersonaID,
		Operation: "update",
	})
	defer span.End()

	persona, err := s.repo.GetByID(ctx, input.PersonaID)
	if err != nil {
		return nil, err
	}

	persona.Name = input.Name
	persona.PersonalityPrompt = input.PersonalityPrompt
	persona.AvatarColor = input.AvatarColor
	persona.UpdatedAt = time.Now().UTC()

	if err := domain.ValidatePersona(persona); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, persona); err != nil {
		return nil, err
	}

	if input.KnowledgeBase != "" {
		lock := s.lockFor(persona.ID)
		lock.Lock()
		err := s.ingestor.ReplaceKnowledge(ctx, persona.ID, persona.Namespace, input.KnowledgeBase)
		lock.Unlock()
		if err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	return persona, nil
}

// Delete removes the persona row and then its knowledge namespace.
// Namespace deletion is best-effort; the janitor reaps any leftovers.
func (s *PersonaService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "PersonaService.Delete", telemetry.SpanAttributes{
		PersonaID: id,
		Operation: "delete",
	})
	defer span.End()

	persona, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.ingestor.DeleteKnowledge(ctx, persona.Namespace); err != nil {
		log.Printf("could not delete namespace %q for persona %s: %v", persona.Namespace, id, err)
	}

	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()

	return nil
}
