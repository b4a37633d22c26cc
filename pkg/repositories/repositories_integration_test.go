//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhaven/cardhaven-engine/pkg/models"
	"github.com/cardhaven/cardhaven-engine/pkg/query"
	"github.com/cardhaven/cardhaven-engine/pkg/repositories"
	"github.com/cardhaven/cardhaven-engine/pkg/testhelpers"
)

// uniqueName keeps tests independent on the shared database.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func TestGameRepository_Upsert(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()
	repo := repositories.NewGameRepository()

	name := uniqueName("game")

	id, err := repo.Upsert(ctx, testDB.DB, name, []string{"alias-a", "alias-b"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	// Upserting again keeps the id and replaces the aliases wholesale.
	again, err := repo.Upsert(ctx, testDB.DB, name, []string{"alias-c"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	rows, err := testDB.DB.Query(ctx, `SELECT alias FROM game_aliases WHERE game = $1 ORDER BY alias`, id)
	require.NoError(t, err)
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var alias string
		require.NoError(t, rows.Scan(&alias))
		aliases = append(aliases, alias)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"alias-c"}, aliases)
}

func TestCardRepository_UpsertCards(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	gameID, err := repositories.NewGameRepository().Upsert(ctx, testDB.DB, uniqueName("game"), nil)
	require.NoError(t, err)

	repo := repositories.NewCardRepository()

	ids, err := repo.UpsertCards(ctx, testDB.DB, gameID, []models.CardInput{
		{OID: "1", Name: "Lotus"},
		{OID: "2", Name: "Angel"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Re-importing the same oid updates the name but keeps the id.
	updated, err := repo.UpsertCards(ctx, testDB.DB, gameID, []models.CardInput{
		{OID: "1", Name: "Black Lotus"},
	})
	require.NoError(t, err)
	assert.Equal(t, ids["1"], updated["1"])

	var name string
	err = testDB.DB.QueryRow(ctx, `SELECT name FROM cards WHERE id = $1`, ids["1"]).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "Black Lotus", name)
}

func TestCardRepository_ReconcileAttributes(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	gameID, err := repositories.NewGameRepository().Upsert(ctx, testDB.DB, uniqueName("game"), nil)
	require.NoError(t, err)

	repo := repositories.NewCardRepository()
	ids, err := repo.UpsertCards(ctx, testDB.DB, gameID, []models.CardInput{{OID: "1", Name: "Lotus"}})
	require.NoError(t, err)
	cardID := ids["1"]
	cardIDs := []uuid.UUID{cardID}

	// First import: rarity and cost are text.
	err = repo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText, cardIDs, []models.CardAttribute{
		{CardID: cardID, Attribute: "rarity", Value: "rare"},
		{CardID: cardID, Attribute: "cost", Value: "three"},
	})
	require.NoError(t, err)
	err = repo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeNumeric, cardIDs, nil)
	require.NoError(t, err)

	// Second import: cost became numeric and rarity changed value.
	err = repo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText, cardIDs, []models.CardAttribute{
		{CardID: cardID, Attribute: "rarity", Value: "mythic"},
	})
	require.NoError(t, err)
	err = repo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeNumeric, cardIDs, []models.CardAttribute{
		{CardID: cardID, Attribute: "cost", Value: float64(3)},
	})
	require.NoError(t, err)

	var textCount int
	err = testDB.DB.QueryRow(ctx, `SELECT COUNT(*) FROM card_text_attributes WHERE id = $1`, cardID).Scan(&textCount)
	require.NoError(t, err)
	assert.Equal(t, 1, textCount, "the text cost row must be gone after the type change")

	var rarity string
	err = testDB.DB.QueryRow(ctx,
		`SELECT value FROM card_text_attributes WHERE id = $1 AND attribute = 'rarity'`, cardID).Scan(&rarity)
	require.NoError(t, err)
	assert.Equal(t, "mythic", rarity)

	var cost float64
	err = testDB.DB.QueryRow(ctx,
		`SELECT value FROM card_numeric_attributes WHERE id = $1 AND attribute = 'cost'`, cardID).Scan(&cost)
	require.NoError(t, err)
	assert.Equal(t, float64(3), cost)

	// Third import: rarity vanished entirely.
	err = repo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText, cardIDs, nil)
	require.NoError(t, err)

	err = testDB.DB.QueryRow(ctx, `SELECT COUNT(*) FROM card_text_attributes WHERE id = $1`, cardID).Scan(&textCount)
	require.NoError(t, err)
	assert.Equal(t, 0, textCount)
}

func TestAttributeRepository_RebuildCatalog(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	gameID, err := repositories.NewGameRepository().Upsert(ctx, testDB.DB, uniqueName("game"), nil)
	require.NoError(t, err)

	cardRepo := repositories.NewCardRepository()
	attrRepo := repositories.NewAttributeRepository()

	// Two cards carrying the same attribute name with different types, plus
	// one attribute with more distinct values than the enumeration threshold.
	inputs := make([]models.CardInput, repositories.EnumerationThreshold+1)
	for i := range inputs {
		inputs[i] = models.CardInput{OID: fmt.Sprintf("%d", i), Name: fmt.Sprintf("card %d", i)}
	}
	ids, err := cardRepo.UpsertCards(ctx, testDB.DB, gameID, inputs)
	require.NoError(t, err)

	cardIDs := make([]uuid.UUID, 0, len(ids))
	flavors := make([]models.CardAttribute, 0, len(ids))
	for oid, id := range ids {
		cardIDs = append(cardIDs, id)
		flavors = append(flavors, models.CardAttribute{
			CardID: id, Attribute: "flavor", Value: "flavor " + oid,
		})
	}
	require.NoError(t, cardRepo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText, cardIDs, flavors))

	mixed := []models.CardAttribute{{CardID: cardIDs[0], Attribute: "cost", Value: "x"}}
	require.NoError(t, cardRepo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText,
		[]uuid.UUID{cardIDs[0]}, append(mixed, flavors[0])))
	require.NoError(t, cardRepo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeNumeric,
		[]uuid.UUID{cardIDs[1]}, []models.CardAttribute{{CardID: cardIDs[1], Attribute: "cost", Value: float64(2)}}))

	require.NoError(t, attrRepo.RebuildCatalog(ctx, testDB.DB, gameID))

	defs, err := attrRepo.ListDefinitions(ctx, testDB.DB)
	require.NoError(t, err)

	byName := make(map[string]*models.AttributeDefinition)
	for _, def := range defs {
		if def.GameID == gameID {
			byName[def.Attribute] = def
		}
	}

	require.Contains(t, byName, "cost")
	assert.ElementsMatch(t,
		[]models.AttributeType{models.AttributeTypeText, models.AttributeTypeNumeric},
		byName["cost"].Types)
	assert.ElementsMatch(t, []any{"x", float64(2)}, byName["cost"].Values)

	require.Contains(t, byName, "flavor")
	assert.True(t, byName["flavor"].Unbounded(),
		"more distinct values than the threshold must collapse to the unbounded marker")
}

func TestAttributeRepository_StaleDefinitions(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	gameID, err := repositories.NewGameRepository().Upsert(ctx, testDB.DB, uniqueName("game"), nil)
	require.NoError(t, err)

	cardRepo := repositories.NewCardRepository()
	attrRepo := repositories.NewAttributeRepository()

	ids, err := cardRepo.UpsertCards(ctx, testDB.DB, gameID, []models.CardInput{{OID: "1", Name: "Lotus"}})
	require.NoError(t, err)
	cardIDs := []uuid.UUID{ids["1"]}

	require.NoError(t, cardRepo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText, cardIDs,
		[]models.CardAttribute{{CardID: ids["1"], Attribute: "rarity", Value: "rare"}}))
	require.NoError(t, attrRepo.RebuildCatalog(ctx, testDB.DB, gameID))

	stale, err := attrRepo.StaleDefinitions(ctx, testDB.DB, gameID)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// The attribute vanishes from the next import; its catalog row remains
	// and is reported as stale.
	require.NoError(t, cardRepo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText, cardIDs, nil))
	require.NoError(t, attrRepo.RebuildCatalog(ctx, testDB.DB, gameID))

	stale, err = attrRepo.StaleDefinitions(ctx, testDB.DB, gameID)
	require.NoError(t, err)
	assert.Equal(t, []string{"rarity"}, stale)
}

func TestCardOutputRepository_Search(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	gameName := uniqueName("game")
	gameID, err := repositories.NewGameRepository().Upsert(ctx, testDB.DB, gameName, []string{gameName + "-alias"})
	require.NoError(t, err)

	cardRepo := repositories.NewCardRepository()
	attrRepo := repositories.NewAttributeRepository()
	outputRepo := repositories.NewCardOutputRepository()

	ids, err := cardRepo.UpsertCards(ctx, testDB.DB, gameID, []models.CardInput{
		{OID: "1", Name: "Serra Angel"},
		{OID: "2", Name: "Fallen Angel"},
		{OID: "3", Name: "Black Lotus"},
	})
	require.NoError(t, err)

	cardIDs := []uuid.UUID{ids["1"], ids["2"], ids["3"]}
	require.NoError(t, cardRepo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeText, cardIDs,
		[]models.CardAttribute{
			{CardID: ids["1"], Attribute: "rarity", Value: "uncommon"},
			{CardID: ids["2"], Attribute: "rarity", Value: "rare"},
			{CardID: ids["3"], Attribute: "rarity", Value: "rare"},
		}))
	require.NoError(t, cardRepo.ReconcileAttributes(ctx, testDB.DB, models.AttributeTypeNumeric, cardIDs,
		[]models.CardAttribute{
			{CardID: ids["1"], Attribute: "cost", Value: float64(5)},
			{CardID: ids["2"], Attribute: "cost", Value: float64(4)},
			{CardID: ids["3"], Attribute: "cost", Value: float64(0)},
		}))
	require.NoError(t, attrRepo.RefreshReadView(ctx, testDB.DB))

	search := func(req *query.Request, limit, offset int) []*models.CardOutput {
		t.Helper()
		compiled, err := query.Compile(req)
		require.NoError(t, err)
		cards, err := outputRepo.Search(ctx, testDB.DB, compiled, limit, offset)
		require.NoError(t, err)
		return cards
	}

	t.Run("substring name match with collapsed attributes", func(t *testing.T) {
		req := &query.Request{Name: "angel", Game: gameName}
		cards := search(req, 10, 0)

		require.Len(t, cards, 2)
		// Ordered by name: Fallen Angel before Serra Angel.
		assert.Equal(t, "Fallen Angel", cards[0].Name)
		assert.Equal(t, "rare", cards[0].Attributes["rarity"])
		assert.Equal(t, float64(4), cards[0].Attributes["cost"])
	})

	t.Run("game alias matches exactly", func(t *testing.T) {
		req := &query.Request{Game: `"` + gameName + `-alias"`}
		cards := search(req, 10, 0)
		assert.Len(t, cards, 3)
	})

	t.Run("attribute and range filters apply conjunctively", func(t *testing.T) {
		min := 1.0
		req := &query.Request{
			Game: gameName,
			Attributes: map[string]query.Value{
				"rarity": query.Literal{Value: "rare"},
				"cost":   query.Range{Min: &min},
			},
		}
		cards := search(req, 10, 0)

		require.Len(t, cards, 1)
		assert.Equal(t, "Fallen Angel", cards[0].Name)
	})

	t.Run("offset pagination is stable", func(t *testing.T) {
		req := &query.Request{Game: gameName}

		first := search(req, 2, 0)
		require.Len(t, first, 2)
		rest := search(req, 2, 2)
		require.Len(t, rest, 1)

		assert.Equal(t, "Black Lotus", first[0].Name)
		assert.Equal(t, "Serra Angel", rest[0].Name)
	})
}
