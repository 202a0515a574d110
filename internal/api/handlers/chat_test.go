package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/parley-labs/parley/internal/domain"
	"github.com/parley-labs/parley/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatAnswerer struct {
	mock.Mock
}

func (m *MockChatAnswerer) Answer(ctx context.Context, input service.AnswerInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

type MockPersonaReader struct {
	mock.Mock
}

func (m *MockPersonaReader) GetByID(ctx context.Context, id string) (*domain.Persona, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Persona), args.Error(1)
}

type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) Create(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageStore) ListByPersona(ctx context.Context, personaID string, limit int) ([]*domain.ChatMessage, error) {
	args := m.Called(ctx, personaID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatMessage), args.Error(1)
}

func newTestPersona() *domain.Persona {
	now := time.Now().UTC()
	return &domain.Persona{
		ID:                "p-123",
		Name:              "Ada",
		PersonalityPrompt: "Curious.",
		Namespace:         "persona_p-123",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func requestWithID(method, url, id string, body []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestChatHandler_Send_Success(t *testing.T) {
	answerer := new(MockChatAnswerer)
	personas := new(MockPersonaReader)
	messages := new(MockMessageStore)
	handler := NewChatHandler(answerer, personas, messages)

	persona := newTestPersona()
	personas.On("GetByID", mock.Anything, "p-123").Return(persona, nil)
	answerer.On("Answer", mock.Anything, mock.MatchedBy(func(input service.AnswerInput) bool {
		return input.PersonaID == "p-123" &&
			input.PersonaName == "Ada" &&
			input.Namespace == "persona_p-123" &&
			input.Message == "hello there"
	})).Return("hi!", nil)
	messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.ChatMessage) bool {
		return m.Role == domain.ChatRoleUser && m.Content == "hello there"
	})).Return(nil)
	messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.ChatMessage) bool {
		return m.Role == domain.ChatRoleAssistant && m.Content == "hi!"
	})).Return(nil)

	req := requestWithID(http.MethodPost, "/personas/p-123/chat", "p-123", []byte(`{"message":"hello there"}`))
	w := httptest.NewRecorder()

	handler.Send(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "hi!", data["reply"])

	answerer.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestChatHandler_Send_EmptyMessage(t *testing.T) {
	handler := NewChatHandler(new(MockChatAnswerer), new(MockPersonaReader), new(MockMessageStore))

	req := requestWithID(http.MethodPost, "/personas/p-123/chat", "p-123", []byte(`{"message":""}`))
	w := httptest.NewRecorder()

	handler.Send(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message is required")
}

func TestChatHandler_Send_PersonaNotFound(t *testing.T) {
	answerer := new(MockChatAnswerer)
	personas := new(MockPersonaReader)
	handler := NewChatHandler(answerer, personas, new(MockMessageStore))

	personas.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrPersonaNotFound)

	req := requestWithID(http.MethodPost, "/personas/missing/chat", "missing", []byte(`{"message":"hi"}`))
	w := httptest.NewRecorder()

	handler.Send(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestChatHandler_Send_ProviderFailure(t *testing.T) {
	answerer := new(MockChatAnswerer)
	personas := new(MockPersonaReader)
	messages := new(MockMessageStore)
	handler := NewChatHandler(answerer, personas, messages)

	personas.On("GetByID", mock.Anything, "p-123").Return(newTestPersona(), nil)
	answerer.On("Answer", mock.Anything, mock.Anything).
		Return("", domain.NewGenerationError(errors.New("model overloaded")))

	req := requestWithID(http.MethodPost, "/personas/p-123/chat", "p-123", []byte(`{"message":"hi"}`))
	w := httptest.NewRecorder()

	handler.Send(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), assistantUnavailableMsg)
	// Provider detail must never reach the chat user.
	assert.NotContains(t, w.Body.String(), "model overloaded")
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestChatHandler_Send_NonDomainFailure(t *testing.T) {
	answerer := new(MockChatAnswerer)
	personas := new(MockPersonaReader)
	handler := NewChatHandler(answerer, personas, new(MockMessageStore))

	personas.On("GetByID", mock.Anything, "p-123").Return(newTestPersona(), nil)
	answerer.On("Answer", mock.Anything, mock.Anything).Return("", errors.New("boom"))

	req := requestWithID(http.MethodPost, "/personas/p-123/chat", "p-123", []byte(`{"message":"hi"}`))
	w := httptest.NewRecorder()

	handler.Send(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), assistantUnavailableMsg)
}

func TestChatHandler_History(t *testing.T) {
	t.Run("returns messages in order", func(t *testing.T) {
		personas := new(MockPersonaReader)
		messages := new(MockMessageStore)
		handler := NewChatHandler(new(MockChatAnswerer), personas, messages)

		now := time.Now().UTC()
		personas.On("GetByID", mock.Anything, "p-123").Return(newTestPersona(), nil)
		messages.On("ListByPersona", mock.Anything, "p-123", 50).Return([]*domain.ChatMessage{
			{ID: "m1", Role: domain.ChatRoleUser, Content: "hi", CreatedAt: now},
			{ID: "m2", Role: domain.ChatRoleAssistant, Content: "hello", CreatedAt: now.Add(time.Millisecond)},
		}, nil)

		req := requestWithID(http.MethodGet, "/personas/p-123/messages", "p-123", nil)
		w := httptest.NewRecorder()

		handler.History(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp["data"].([]interface{})
		require.Len(t, data, 2)
		first := data[0].(map[string]interface{})
		assert.Equal(t, "user", first["role"])
		assert.Equal(t, "hi", first["content"])
	})

	t.Run("honors the limit query param", func(t *testing.T) {
		personas := new(MockPersonaReader)
		messages := new(MockMessageStore)
		handler := NewChatHandler(new(MockChatAnswerer), personas, messages)

		personas.On("GetByID", mock.Anything, "p-123").Return(newTestPersona(), nil)
		messages.On("ListByPersona", mock.Anything, "p-123", 10).Return([]*domain.ChatMessage{}, nil)

		req := requestWithID(http.MethodGet, "/personas/p-123/messages?limit=10", "p-123", nil)
		w := httptest.NewRecorder()

		handler.History(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		messages.AssertExpectations(t)
	})

	t.Run("unknown persona yields not found", func(t *testing.T) {
		personas := new(MockPersonaReader)
		handler := NewChatHandler(new(MockChatAnswerer), personas, new(MockMessageStore))

		personas.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrPersonaNotFound)

		req := requestWithID(http.MethodGet, "/personas/missing/messages", "missing", nil)
		w := httptest.NewRecorder()

		handler.History(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
