package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cardhaven/cardhaven-engine/pkg/database"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
	"github.com/cardhaven/cardhaven-engine/pkg/query"
)

// CardOutputRepository executes compiled filters against the denormalized
// card_outputs read view.
type CardOutputRepository interface {
	// Search returns up to limit matching cards at the given offset, ordered
	// by name then id so pagination is stable. The view's [name, value]
	// attribute pairs are collapsed into a map per card.
	Search(ctx context.Context, q database.Querier, compiled *query.Compiled, limit, offset int) ([]*models.CardOutput, error)
}

type cardOutputRepository struct{}

// NewCardOutputRepository creates a new CardOutputRepository.
func NewCardOutputRepository() CardOutputRepository {
	return &cardOutputRepository{}
}

var _ CardOutputRepository = (*cardOutputRepository)(nil)

func (r *cardOutputRepository) Search(ctx context.Context, q database.Querier, compiled *query.Compiled, limit, offset int) ([]*models.CardOutput, error) {
	args := append([]any{}, compiled.Args...)
	args = append(args, limit, offset)

	sql := fmt.Sprintf(`
		SELECT co.id, co.oid, co.name, co.game_name, co.attributes
		FROM card_outputs co
		WHERE %s
		ORDER BY co.name, co.id
		LIMIT $%d OFFSET $%d`,
		compiled.Where, len(args)-1, len(args))

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search cards: %w", err)
	}
	defer rows.Close()

	var cards []*models.CardOutput
	for rows.Next() {
		var card models.CardOutput
		var attributes []byte
		if err := rows.Scan(&card.ID, &card.OID, &card.Name, &card.Game, &attributes); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}

		card.Attributes, err = collapseAttributes(attributes)
		if err != nil {
			return nil, err
		}

		cards = append(cards, &card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}

	return cards, nil
}

// collapseAttributes turns the view's jsonb array of [name, value] pairs into
// a single mapping.
func collapseAttributes(raw []byte) (map[string]any, error) {
	var pairs [][]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card attributes: %w", err)
		}
	}

	attributes := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed attribute pair: %v", pair)
		}
		name, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("malformed attribute name: %v", pair[0])
		}
		attributes[name] = pair[1]
	}
	return attributes, nil
}
