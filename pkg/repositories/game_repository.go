package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cardhaven/cardhaven-engine/pkg/database"
)

// GameRepository provides data access for games and their aliases.
type GameRepository interface {
	// Upsert creates or updates a game by its unique name and replaces its
	// aliases wholesale. Returns the game's ID.
	Upsert(ctx context.Context, q database.Querier, name string, aliases []string) (uuid.UUID, error)
}

type gameRepository struct{}

// NewGameRepository creates a new GameRepository.
func NewGameRepository() GameRepository {
	return &gameRepository{}
}

var _ GameRepository = (*gameRepository)(nil)

func (r *gameRepository) Upsert(ctx context.Context, q database.Querier, name string, aliases []string) (uuid.UUID, error) {
	// The no-op DO UPDATE makes RETURNING yield the id on conflict too.
	query := `
		INSERT INTO games (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	var id uuid.UUID
	if err := q.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert game %q: %w", name, err)
	}

	if _, err := q.Exec(ctx, `DELETE FROM game_aliases WHERE game = $1`, id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to clear aliases for game %q: %w", name, err)
	}

	if len(aliases) > 0 {
		query = `
			INSERT INTO game_aliases (game, alias)
			SELECT $1, unnest($2::text[])`
		if _, err := q.Exec(ctx, query, id, aliases); err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert aliases for game %q: %w", name, err)
		}
	}

	return id, nil
}
