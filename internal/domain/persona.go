package domain

import (
	"fmt"
	"regexp"
	"time"
)

// DefaultPersonality is used when a persona has no personality prompt.
const DefaultPersonality = "Helpful and professional."

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Persona represents a chat persona backed by its own knowledge namespace.
// The knowledge text itself is never stored here; once ingested it lives
// only in the vector index collection named by Namespace.
type Persona struct {
	ID                string
	Name              string
	PersonalityPrompt string
	AvatarColor       string
	Namespace         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NamespaceFor derives the vector index collection name for a persona ID.
func NamespaceFor(personaID string) string {
	return "persona_" + personaID
}

// Personality returns the personality prompt, falling back to the default.
func (p *Persona) Personality() string {
	if p.PersonalityPrompt == "" {
		return DefaultPersonality
	}
	return p.PersonalityPrompt
}

// ValidatePersona validates a Persona instance
func ValidatePersona(p *Persona) error {
	if p == nil {
		return fmt.Errorf("persona cannot be nil")
	}

	if p.ID == "" {
		return NewMissingFieldError("persona ID")
	}

	if p.Name == "" {
		return NewMissingFieldError("persona Name")
	}

	if p.Namespace == "" {
		return NewMissingFieldError("persona Namespace")
	}

	if p.AvatarColor != "" && !hexColorRe.MatchString(p.AvatarColor) {
		return ErrInvalidAvatarColor
	}

	return nil
}
