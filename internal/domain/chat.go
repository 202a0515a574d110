package domain

import (
	"fmt"
	"time"
)

// ChatRole identifies who authored a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a persona conversation.
type ChatMessage struct {
	ID        string
	PersonaID string
	UserID    string
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}

// ValidateChatMessage validates a ChatMessage instance
func ValidateChatMessage(m *ChatMessage) error {
	if m == nil {
		return fmt.Errorf("chat message cannot be nil")
	}

	if m.ID == "" {
		return NewMissingFieldError("chat message ID")
	}

	if m.PersonaID == "" {
		return NewMissingFieldError("chat message PersonaID")
	}

	if m.Content == "" {
		return NewMissingFieldError("chat message Content")
	}

	if !isValidChatRole(m.Role) {
		return ErrInvalidChatRole
	}

	return nil
}

func isValidChatRole(r ChatRole) bool {
	switch r {
	case ChatRoleUser, ChatRoleAssistant:
		return true
	}
	return false
}
