package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cardhaven/cardhaven-engine/pkg/database"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
)

// EnumerationThreshold is the distinct-value count beyond which a catalog
// entry stops enumerating values and becomes unbounded.
const EnumerationThreshold = 12

// AttributeRepository maintains and reads the derived schema catalog and the
// denormalized read view.
type AttributeRepository interface {
	// RebuildCatalog recomputes catalog rows for every attribute observed on
	// the game's cards across all three typed tables. Rows are upserted by
	// (game, attribute); entries for attributes with no remaining
	// observations are left in place (see StaleDefinitions).
	RebuildCatalog(ctx context.Context, q database.Querier, gameID uuid.UUID) error

	// StaleDefinitions lists catalog attributes for the game that no longer
	// have a single row in any typed table.
	StaleDefinitions(ctx context.Context, q database.Querier, gameID uuid.UUID) ([]string, error)

	// ListDefinitions returns the whole schema catalog.
	ListDefinitions(ctx context.Context, q database.Querier) ([]*models.AttributeDefinition, error)

	// RefreshReadView rebuilds the card_outputs materialized view. The
	// refresh is concurrent, so readers never observe a half-built view.
	RefreshReadView(ctx context.Context, q database.Querier) error
}

type attributeRepository struct{}

// NewAttributeRepository creates a new AttributeRepository.
func NewAttributeRepository() AttributeRepository {
	return &attributeRepository{}
}

var _ AttributeRepository = (*attributeRepository)(nil)

func (r *attributeRepository) RebuildCatalog(ctx context.Context, q database.Querier, gameID uuid.UUID) error {
	query := `
		WITH attribute_types AS (
			SELECT DISTINCT t.attribute AS name, 'text'::attribute_type AS type
			FROM card_text_attributes t
			JOIN cards c ON c.id = t.id
			WHERE c.game = $1
			UNION
			SELECT DISTINCT n.attribute, 'numeric'::attribute_type
			FROM card_numeric_attributes n
			JOIN cards c ON c.id = n.id
			WHERE c.game = $1
			UNION
			SELECT DISTINCT b.attribute, 'boolean'::attribute_type
			FROM card_boolean_attributes b
			JOIN cards c ON c.id = b.id
			WHERE c.game = $1
		),
		attribute_values AS (
			SELECT t.attribute AS name, to_jsonb(t.value) AS value
			FROM card_text_attributes t
			JOIN cards c ON c.id = t.id
			WHERE c.game = $1
			UNION
			SELECT n.attribute, to_jsonb(n.value)
			FROM card_numeric_attributes n
			JOIN cards c ON c.id = n.id
			WHERE c.game = $1
			UNION
			SELECT b.attribute, to_jsonb(b.value)
			FROM card_boolean_attributes b
			JOIN cards c ON c.id = b.id
			WHERE c.game = $1
		)
		INSERT INTO attributes (game, attribute, types, "values")
		SELECT
			$1,
			at.name,
			ARRAY_AGG(DISTINCT at.type ORDER BY at.type),
			CASE
				WHEN COUNT(DISTINCT av.value) > $2 THEN '[]'::jsonb
				ELSE jsonb_agg(DISTINCT av.value)
			END
		FROM attribute_types at
		LEFT JOIN attribute_values av ON at.name = av.name
		GROUP BY at.name
		ON CONFLICT (game, attribute) DO UPDATE
		SET types = EXCLUDED.types, "values" = EXCLUDED."values"`

	if _, err := q.Exec(ctx, query, gameID, EnumerationThreshold); err != nil {
		return fmt.Errorf("failed to rebuild attribute catalog: %w", err)
	}
	return nil
}

func (r *attributeRepository) StaleDefinitions(ctx context.Context, q database.Querier, gameID uuid.UUID) ([]string, error) {
	query := `
		SELECT a.attribute
		FROM attributes a
		WHERE a.game = $1
		  AND NOT EXISTS (
			SELECT 1 FROM card_text_attributes t
			JOIN cards c ON c.id = t.id
			WHERE c.game = a.game AND t.attribute = a.attribute
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM card_numeric_attributes n
			JOIN cards c ON c.id = n.id
			WHERE c.game = a.game AND n.attribute = a.attribute
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM card_boolean_attributes b
			JOIN cards c ON c.id = b.id
			WHERE c.game = a.game AND b.attribute = a.attribute
		  )
		ORDER BY a.attribute`

	rows, err := q.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale catalog rows: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var attribute string
		if err := rows.Scan(&attribute); err != nil {
			return nil, fmt.Errorf("failed to scan stale catalog row: %w", err)
		}
		stale = append(stale, attribute)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale catalog rows: %w", err)
	}

	return stale, nil
}

func (r *attributeRepository) ListDefinitions(ctx context.Context, q database.Querier) ([]*models.AttributeDefinition, error) {
	query := `
		SELECT game, attribute, types::text[], "values"
		FROM attributes
		ORDER BY attribute`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribute definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.AttributeDefinition
	for rows.Next() {
		var def models.AttributeDefinition
		var types []string
		var values []byte
		if err := rows.Scan(&def.GameID, &def.Attribute, &types, &values); err != nil {
			return nil, fmt.Errorf("failed to scan attribute definition: %w", err)
		}

		def.Types = make([]models.AttributeType, len(types))
		for i, t := range types {
			def.Types[i] = models.AttributeType(t)
		}

		if len(values) > 0 && string(values) != "null" {
			if err := json.Unmarshal(values, &def.Values); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attribute values: %w", err)
			}
		}

		defs = append(defs, &def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribute definitions: %w", err)
	}

	return defs, nil
}

func (r *attributeRepository) RefreshReadView(ctx context.Context, q database.Querier) error {
	if _, err := q.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY card_outputs`); err != nil {
		return fmt.Errorf("failed to refresh card_outputs view: %w", err)
	}
	return nil
}
