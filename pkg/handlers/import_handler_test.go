package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/config"
)

// mockIngestService implements services.IngestService.
type mockIngestService struct {
	ingestFunc func(ctx context.Context) (int, error)
}

func (m *mockIngestService) Ingest(ctx context.Context) (int, error) {
	return m.ingestFunc(ctx)
}

func TestImportHandler_Import(t *testing.T) {
	t.Run("runs an ingestion in the local environment", func(t *testing.T) {
		service := &mockIngestService{
			ingestFunc: func(ctx context.Context) (int, error) { return 1234, nil },
		}
		handler := NewImportHandler(&config.Config{Env: "local"}, service, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/import", nil)
		rec := httptest.NewRecorder()
		handler.Import(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp ApiResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)

		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1234), data["imported"])
	})

	t.Run("refuses to run outside the local environment", func(t *testing.T) {
		service := &mockIngestService{
			ingestFunc: func(ctx context.Context) (int, error) {
				t.Fatal("ingestion must not run outside local")
				return 0, nil
			},
		}
		handler := NewImportHandler(&config.Config{Env: "production"}, service, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/import", nil)
		rec := httptest.NewRecorder()
		handler.Import(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)

		var resp ApiResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "forbidden", resp.Error)
	})

	t.Run("ingestion failure maps to 500", func(t *testing.T) {
		service := &mockIngestService{
			ingestFunc: func(ctx context.Context) (int, error) {
				return 0, errors.New("refresh failed")
			},
		}
		handler := NewImportHandler(&config.Config{Env: "local"}, service, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/import", nil)
		rec := httptest.NewRecorder()
		handler.Import(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
