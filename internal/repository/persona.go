package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parley-labs/parley/internal/domain"
)

type PersonaRepository struct {
	pool *pgxpool.Pool
}

func NewPersonaRepository(pool *pgxpool.Pool) *PersonaRepository {
	return &PersonaRepository{pool: pool}
}

func (r *PersonaRepository) Create(ctx context.Context, p *domain.Persona) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO personas (id, name, personality_prompt, avatar_color, namespace, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.PersonalityPrompt, p.AvatarColor, p.Namespace, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *PersonaRepository) GetByID(ctx context.Context, id string) (*domain.Persona, error) {
	var p domain.Persona
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, personality_prompt, avatar_color, namespace, created_at, updated_at
		 FROM personas WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.PersonalityPrompt, &p.AvatarColor, &p.Namespace, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPersonaNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PersonaRepository) List(ctx context.Context) ([]*domain.Persona, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, personality_prompt, avatar_color, namespace, created_at, updated_at
		 FROM personas ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var personas []*domain.Persona
	for rows.Next() {
		var p domain.Persona
		if err := rows.Scan(&p.ID, &p.Name, &p.PersonalityPrompt, &p.AvatarColor, &p.Namespace, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		personas = append(personas, &p)
	}
	return personas, rows.Err()
}

// ListNamespaces returns the namespaces of all live personas.
func (r *PersonaRepository) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT namespace FROM personas`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}

func (r *PersonaRepository) Update(ctx context.Context, p *domain.Persona) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE personas SET name = $1, personality_prompt = $2, avatar_color = $3, updated_at = $4
		 WHERE id = $5`,
		p.Name, p.PersonalityPrompt, p.AvatarColor, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrPersonaNotFound
	}
	return nil
}

func (r *PersonaRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM personas WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrPersonaNotFound
	}
	return nil
}
