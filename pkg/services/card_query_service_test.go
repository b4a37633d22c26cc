package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/apperrors"
	"github.com/cardhaven/cardhaven-engine/pkg/database"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
	"github.com/cardhaven/cardhaven-engine/pkg/query"
)

// mockAttributeRepository implements repositories.AttributeRepository.
type mockAttributeRepository struct {
	listFunc func(ctx context.Context) ([]*models.AttributeDefinition, error)
}

func (m *mockAttributeRepository) RebuildCatalog(ctx context.Context, q database.Querier, gameID uuid.UUID) error {
	return nil
}

func (m *mockAttributeRepository) StaleDefinitions(ctx context.Context, q database.Querier, gameID uuid.UUID) ([]string, error) {
	return nil, nil
}

func (m *mockAttributeRepository) ListDefinitions(ctx context.Context, q database.Querier) ([]*models.AttributeDefinition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockAttributeRepository) RefreshReadView(ctx context.Context, q database.Querier) error {
	return nil
}

// mockCardOutputRepository implements repositories.CardOutputRepository.
type mockCardOutputRepository struct {
	searchFunc func(ctx context.Context, compiled *query.Compiled, limit, offset int) ([]*models.CardOutput, error)
}

func (m *mockCardOutputRepository) Search(ctx context.Context, q database.Querier, compiled *query.Compiled, limit, offset int) ([]*models.CardOutput, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, compiled, limit, offset)
	}
	return nil, nil
}

func newQueryService(attrs *mockAttributeRepository, outputs *mockCardOutputRepository) CardQueryService {
	logger := zap.NewNop()
	return NewCardQueryService(nil, attrs, outputs, query.NewParser(logger), logger)
}

func makeCards(n int) []*models.CardOutput {
	cards := make([]*models.CardOutput, n)
	for i := range cards {
		cards[i] = &models.CardOutput{ID: uuid.New(), Name: "card"}
	}
	return cards
}

func TestCardQueryService_Search(t *testing.T) {
	attrs := &mockAttributeRepository{
		listFunc: func(ctx context.Context) ([]*models.AttributeDefinition, error) {
			return []*models.AttributeDefinition{
				{
					Attribute: "rarity",
					Types:     []models.AttributeType{models.AttributeTypeText},
					Values:    []any{"common", "rare"},
				},
			}, nil
		},
	}

	t.Run("returns a page without more results", func(t *testing.T) {
		outputs := &mockCardOutputRepository{
			searchFunc: func(ctx context.Context, compiled *query.Compiled, limit, offset int) ([]*models.CardOutput, error) {
				assert.Equal(t, query.DefaultPageSize+1, limit)
				assert.Equal(t, 0, offset)
				return makeCards(5), nil
			},
		}

		result, err := newQueryService(attrs, outputs).Search(context.Background(), map[string]string{
			"attributes.rarity": "rare",
		})
		require.NoError(t, err)

		assert.Len(t, result.Cards, 5)
		assert.Equal(t, 1, result.Page)
		assert.False(t, result.HasMore)
	})

	t.Run("extra row signals another page and is trimmed", func(t *testing.T) {
		outputs := &mockCardOutputRepository{
			searchFunc: func(ctx context.Context, compiled *query.Compiled, limit, offset int) ([]*models.CardOutput, error) {
				assert.Equal(t, 11, limit)
				assert.Equal(t, 10, offset)
				return makeCards(11), nil
			},
		}

		result, err := newQueryService(attrs, outputs).Search(context.Background(), map[string]string{
			"page":      "2",
			"page_size": "10",
		})
		require.NoError(t, err)

		assert.Len(t, result.Cards, 10)
		assert.Equal(t, 2, result.Page)
		assert.True(t, result.HasMore)
	})

	t.Run("no matches yields an empty non-nil page", func(t *testing.T) {
		outputs := &mockCardOutputRepository{}

		result, err := newQueryService(attrs, outputs).Search(context.Background(), map[string]string{})
		require.NoError(t, err)

		require.NotNil(t, result.Cards)
		assert.Empty(t, result.Cards)
		assert.False(t, result.HasMore)
	})

	t.Run("unknown attribute is a validation error", func(t *testing.T) {
		outputs := &mockCardOutputRepository{
			searchFunc: func(ctx context.Context, compiled *query.Compiled, limit, offset int) ([]*models.CardOutput, error) {
				t.Fatal("search must not run for an invalid query")
				return nil, nil
			},
		}

		_, err := newQueryService(attrs, outputs).Search(context.Background(), map[string]string{
			"attributes.nope": "x",
		})
		require.Error(t, err)

		verr, ok := apperrors.AsValidation(err)
		require.True(t, ok)
		assert.Contains(t, verr.Issues, "Invalid query attribute 'nope'")
	})

	t.Run("catalog failure propagates", func(t *testing.T) {
		failing := &mockAttributeRepository{
			listFunc: func(ctx context.Context) ([]*models.AttributeDefinition, error) {
				return nil, errors.New("connection refused")
			},
		}

		_, err := newQueryService(failing, &mockCardOutputRepository{}).Search(context.Background(), map[string]string{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}
