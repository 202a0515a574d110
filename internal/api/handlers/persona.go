package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/parley-labs/parley/internal/api"
	"github.com/parley-labs/parley/internal/domain"
	"github.com/parley-labs/parley/internal/service"
)

type PersonaService interface {
	Create(ctx context.Context, input service.CreateInput) (*domain.Persona, error)
	GetByID(ctx context.Context, id string) (*domain.Persona, error)
	List(ctx context.Context) ([]*domain.Persona, error)
	Update(ctx context.Context, input service.UpdateInput) (*domain.Persona, error)
	Delete(ctx context.Context, id string) error
}

type PersonaHandler struct {
	svc PersonaService
}

func NewPersonaHandler(svc PersonaService) *PersonaHandler {
	return &PersonaHandler{svc: svc}
}

type CreatePersonaRequest struct {
	Name              string `json:"name"`
	PersonalityPrompt string `json:"personality_prompt"`
	AvatarColor       string `json:"avatar_color"`
	KnowledgeBase     string `json:"knowledge_base"`
}

type UpdatePersonaRequest struct {
	Name              string `json:"name"`
	PersonalityPrompt string `json:"personality_prompt"`
	AvatarColor       string `json:"avatar_color"`
	KnowledgeBase     string `json:"knowledge_base"`
}

type PersonaResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PersonalityPrompt string `json:"personality_prompt"`
	AvatarColor       string `json:"avatar_color,omitempty"`
	Namespace         string `json:"namespace"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func personaToResponse(p *domain.Persona) *PersonaResponse {
	return &PersonaResponse{
		ID:                p.ID,
		Name:              p.Name,
		PersonalityPrompt: p.PersonalityPrompt,
		AvatarColor:       p.AvatarColor,
		Namespace:         p.Namespace,
		CreatedAt:         p.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:         p.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *PersonaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	input := service.CreateInput{
		Name:              req.Name,
		PersonalityPrompt: req.PersonalityPrompt,
		AvatarColor:       req.AvatarColor,
		KnowledgeBase:     req.KnowledgeBase,
	}

	persona, err := h.svc.Create(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, personaToResponse(persona))
}

func (h *PersonaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	persona, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, personaToResponse(persona))
}

func (h *PersonaHandler) List(w http.ResponseWriter, r *http.Request) {
	personas, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*PersonaResponse, len(personas))
	for i, p := range personas {
		responses[i] = personaToResponse(p)
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *PersonaHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req UpdatePersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	input := service.UpdateInput{
		PersonaID:         id,
		Name:              req.Name,
		PersonalityPrompt: req.PersonalityPrompt,
		AvatarColor:       req.AvatarColor,
		KnowledgeBase:     req.KnowledgeBase,
	}

	persona, err := h.svc.Update(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, personaToResponse(persona))
}

func (h *PersonaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}
