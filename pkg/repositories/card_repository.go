package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cardhaven/cardhaven-engine/pkg/apperrors"
	"github.com/cardhaven/cardhaven-engine/pkg/database"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
)

// CardRepository provides data access for cards and their typed attribute
// rows.
type CardRepository interface {
	// UpsertCards inserts or updates cards by (game, oid), refreshing the
	// name on conflict. Returns a map from source oid to internal card ID.
	UpsertCards(ctx context.Context, q database.Querier, gameID uuid.UUID, cards []models.CardInput) (map[string]uuid.UUID, error)

	// ReconcileAttributes makes one typed table's rows for the given cards
	// exactly match attrs: rows for those cards whose (id, attribute) pair is
	// absent from attrs are deleted, then every pair in attrs is upserted.
	// Cards outside cardIDs are untouched. Passing the full batch's cardIDs
	// with a partial (or empty) attrs list is what removes rows whose
	// attribute changed type or disappeared.
	ReconcileAttributes(ctx context.Context, q database.Querier, typ models.AttributeType, cardIDs []uuid.UUID, attrs []models.CardAttribute) error
}

type cardRepository struct{}

// NewCardRepository creates a new CardRepository.
func NewCardRepository() CardRepository {
	return &cardRepository{}
}

var _ CardRepository = (*cardRepository)(nil)

func (r *cardRepository) UpsertCards(ctx context.Context, q database.Querier, gameID uuid.UUID, cards []models.CardInput) (map[string]uuid.UUID, error) {
	if len(cards) == 0 {
		return map[string]uuid.UUID{}, nil
	}

	oids := make([]string, len(cards))
	names := make([]string, len(cards))
	for i, card := range cards {
		oids[i] = card.OID
		names[i] = card.Name
	}

	query := `
		INSERT INTO cards (oid, name, game)
		SELECT t.oid, t.name, $3
		FROM unnest($1::text[], $2::text[]) AS t(oid, name)
		ON CONFLICT (game, oid) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, oid`

	rows, err := q.Query(ctx, query, oids, names, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cards: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]uuid.UUID, len(cards))
	for rows.Next() {
		var id uuid.UUID
		var oid string
		if err := rows.Scan(&id, &oid); err != nil {
			return nil, fmt.Errorf("failed to scan upserted card: %w", err)
		}
		ids[oid] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upserted cards: %w", err)
	}

	return ids, nil
}

func (r *cardRepository) ReconcileAttributes(ctx context.Context, q database.Querier, typ models.AttributeType, cardIDs []uuid.UUID, attrs []models.CardAttribute) error {
	if len(cardIDs) == 0 {
		return nil
	}

	table, ok := typ.Table()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrUnimplementedType, typ)
	}

	ids := make([]uuid.UUID, len(attrs))
	names := make([]string, len(attrs))
	for i, attr := range attrs {
		ids[i] = attr.CardID
		names[i] = attr.Attribute
	}

	// Delete rows from the previous import for cards in this batch whose
	// (id, attribute) pair the batch no longer declares.
	query := fmt.Sprintf(`
		DELETE FROM %s t
		WHERE t.id = ANY($1::uuid[])
		  AND NOT EXISTS (
			SELECT 1
			FROM unnest($2::uuid[], $3::text[]) AS b(id, attribute)
			WHERE b.id = t.id AND b.attribute = t.attribute
		  )`, table)
	if _, err := q.Exec(ctx, query, cardIDs, ids, names); err != nil {
		return fmt.Errorf("failed to delete stale %s rows: %w", table, err)
	}

	if len(attrs) == 0 {
		return nil
	}

	values, err := attributeValueArray(typ, attrs)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`
		INSERT INTO %s (id, attribute, value)
		SELECT t.id, t.attribute, t.value
		FROM unnest($1::uuid[], $2::text[], $3::%s) AS t(id, attribute, value)
		ON CONFLICT (id, attribute) DO UPDATE SET value = EXCLUDED.value`,
		table, valueArrayType(typ))
	if _, err := q.Exec(ctx, query, ids, names, values); err != nil {
		return fmt.Errorf("failed to upsert %s rows: %w", table, err)
	}

	return nil
}

// attributeValueArray builds the typed value slice pgx encodes as the array
// parameter for one typed table.
func attributeValueArray(typ models.AttributeType, attrs []models.CardAttribute) (any, error) {
	switch typ {
	case models.AttributeTypeText:
		values := make([]string, len(attrs))
		for i, attr := range attrs {
			v, ok := attr.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %T in text batch", apperrors.ErrUnimplementedType, attr.Value)
			}
			values[i] = v
		}
		return values, nil
	case models.AttributeTypeNumeric:
		values := make([]float64, len(attrs))
		for i, attr := range attrs {
			v, ok := attr.Value.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: %T in numeric batch", apperrors.ErrUnimplementedType, attr.Value)
			}
			values[i] = v
		}
		return values, nil
	case models.AttributeTypeBoolean:
		values := make([]bool, len(attrs))
		for i, attr := range attrs {
			v, ok := attr.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %T in boolean batch", apperrors.ErrUnimplementedType, attr.Value)
			}
			values[i] = v
		}
		return values, nil
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnimplementedType, typ)
	}
}

func valueArrayType(typ models.AttributeType) string {
	switch typ {
	case models.AttributeTypeNumeric:
		return "float8[]"
	case models.AttributeTypeBoolean:
		return "boolean[]"
	default:
		return "text[]"
	}
}
