package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/parley-labs/parley/internal/api"
	"github.com/parley-labs/parley/internal/api/middleware"
	"github.com/parley-labs/parley/internal/domain"
	"github.com/parley-labs/parley/internal/service"
)

// assistantUnavailableMsg hides provider failure detail from end users.
const assistantUnavailableMsg = "the assistant is unavailable"

type ChatAnswerer interface {
	Answer(ctx context.Context, input service.AnswerInput) (string, error)
}

type ChatPersonaReader interface {
	GetByID(ctx context.Context, id string) (*domain.Persona, error)
}

type ChatMessageStore interface {
	Create(ctx context.Context, m *domain.ChatMessage) error
	ListByPersona(ctx context.Context, personaID string, limit int) ([]*domain.ChatMessage, error)
}

// ChatHandler runs one chat turn: load the persona, answer via the RAG
// pipeline, and persist both sides of the exchange.
type ChatHandler struct {
	answerer ChatAnswerer
	personas ChatPersonaReader
	messages ChatMessageStore
}

func NewChatHandler(answerer ChatAnswerer, personas ChatPersonaReader, messages ChatMessageStore) *ChatHandler {
	return &ChatHandler{
		answerer: answerer,
		personas: personas,
		messages: messages,
	}
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type ChatMessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	personaID := chi.URLParam(r, "id")
	if personaID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	persona, err := h.personas.GetByID(r.Context(), personaID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())

	reply, err := h.answerer.Answer(r.Context(), service.AnswerInput{
		PersonaID:     persona.ID,
		PersonaName:   persona.Name,
		PersonaPrompt: persona.PersonalityPrompt,
		Namespace:     persona.Namespace,
		Message:       req.Message,
	})
	if err != nil {
		// Never leak raw provider errors to chat users.
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			api.Error(w, api.DomainErrorToHTTP(err), assistantUnavailableMsg)
		} else {
			api.Error(w, http.StatusInternalServerError, assistantUnavailableMsg)
		}
		return
	}

	now := time.Now().UTC()
	userMsg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		PersonaID: persona.ID,
		UserID:    userID,
		Role:      domain.ChatRoleUser,
		Content:   req.Message,
		CreatedAt: now,
	}
	assistantMsg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		PersonaID: persona.ID,
		UserID:    userID,
		Role:      domain.ChatRoleAssistant,
		Content:   reply,
		CreatedAt: now.Add(time.Millisecond),
	}

	if err := h.messages.Create(r.Context(), userMsg); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.messages.Create(r.Context(), assistantMsg); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	personaID := chi.URLParam(r, "id")
	if personaID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if _, err := h.personas.GetByID(r.Context(), personaID); err != nil {
		api.HandleError(w, err)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.messages.ListByPersona(r.Context(), personaID, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ChatMessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = &ChatMessageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
	}

	api.Success(w, http.StatusOK, responses)
}
