package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parley-labs/parley/internal/domain"
)

type ChatMessageRepository struct {
	pool *pgxpool.Pool
}

func NewChatMessageRepository(pool *pgxpool.Pool) *ChatMessageRepository {
	return &ChatMessageRepository{pool: pool}
}

func (r *ChatMessageRepository) Create(ctx context.Context, m *domain.ChatMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, persona_id, user_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.PersonaID, m.UserID, m.Role, m.Content, m.CreatedAt,
	)
	return err
}

// ListByPersona returns a persona's transcript in chronological order,
// newest last, capped at limit.
func (r *ChatMessageRepository) ListByPersona(ctx context.Context, personaID string, limit int) ([]*domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, persona_id, user_id, role, content, created_at
		 FROM (
		   SELECT id, persona_id, user_id, role, content, created_at
		   FROM chat_messages WHERE persona_id = $1
		   ORDER BY created_at DESC LIMIT $2
		 ) recent
		 ORDER BY created_at ASC`,
		personaID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.PersonaID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (r *ChatMessageRepository) DeleteByPersona(ctx context.Context, personaID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM chat_messages WHERE persona_id = $1`,
		personaID,
	)
	return err
}
