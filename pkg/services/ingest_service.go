package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/config"
	"github.com/cardhaven/cardhaven-engine/pkg/database"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
	"github.com/cardhaven/cardhaven-engine/pkg/repositories"
)

// reservedRecordKeys are record properties shared by every card; they are
// never imported as generic attributes.
var reservedRecordKeys = map[string]struct{}{
	"id":   {},
	"name": {},
	"game": {},
}

// ManifestEntry maps one data file (by basename before the first dot) to its
// game and that game's aliases.
type ManifestEntry struct {
	File    string   `json:"file"`
	Game    string   `json:"game"`
	Aliases []string `json:"aliases,omitempty"`
}

// IngestService runs the ingestion pipeline: it streams raw card records per
// game, applies them to storage in fixed-size batches, then rebuilds the
// schema catalog for every touched game and refreshes the read view once.
type IngestService interface {
	// Ingest processes every manifest-listed file in the configured data
	// directory. Returns the number of records imported.
	Ingest(ctx context.Context) (int, error)
}

type ingestService struct {
	db         *database.DB
	games      repositories.GameRepository
	cards      repositories.CardRepository
	attributes repositories.AttributeRepository
	cfg        config.IngestConfig
	logger     *zap.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	db *database.DB,
	games repositories.GameRepository,
	cards repositories.CardRepository,
	attributes repositories.AttributeRepository,
	cfg config.IngestConfig,
	logger *zap.Logger,
) IngestService {
	return &ingestService{
		db:         db,
		games:      games,
		cards:      cards,
		attributes: attributes,
		cfg:        cfg,
		logger:     logger,
	}
}

var _ IngestService = (*ingestService)(nil)

func (s *ingestService) Ingest(ctx context.Context) (int, error) {
	manifest, err := s.loadManifest()
	if err != nil {
		return 0, err
	}

	files, err := filepath.Glob(filepath.Join(s.cfg.DataDir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list data files: %w", err)
	}
	sort.Strings(files)

	// Games are processed strictly sequentially: one game's full
	// stream-to-finalize cycle completes before the next begins, bounding
	// peak memory to one batch plus one decoder buffer.
	imported := 0
	var gameIDs []uuid.UUID
	for _, file := range files {
		base := filepath.Base(file)
		if base == "manifest.json" {
			continue
		}

		entry := findManifestEntry(manifest, base)
		if entry == nil {
			s.logger.Warn("No game definition for data file", zap.String("file", base))
			continue
		}

		gameID, err := s.games.Upsert(ctx, s.db, entry.Game, entry.Aliases)
		if err != nil {
			return imported, fmt.Errorf("failed to upsert game %q: %w", entry.Game, err)
		}
		gameIDs = append(gameIDs, gameID)

		s.logger.Info("Processing game data",
			zap.String("game", entry.Game),
			zap.String("file", base))

		n, err := s.ingestFile(ctx, gameID, file)
		imported += n
		if err != nil {
			s.logger.Error("Game ingestion failed",
				zap.String("game", entry.Game),
				zap.String("file", base),
				zap.Error(err))
			if s.cfg.FailFast {
				return imported, fmt.Errorf("ingestion of %q failed: %w", entry.Game, err)
			}
		}
	}

	for _, gameID := range gameIDs {
		if err := s.attributes.RebuildCatalog(ctx, s.db, gameID); err != nil {
			return imported, err
		}
		s.warnStaleCatalogRows(ctx, gameID)
	}

	if err := s.attributes.RefreshReadView(ctx, s.db); err != nil {
		return imported, err
	}

	s.logger.Info("Ingestion run complete", zap.Int("imported", imported))
	return imported, nil
}

// loadManifest reads and decodes data/manifest.json.
func (s *ingestService) loadManifest() ([]ManifestEntry, error) {
	path := filepath.Join(s.cfg.DataDir, "manifest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest []ManifestEntry
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("manifest is not an array of file and game definitions: %w", err)
	}
	return manifest, nil
}

// findManifestEntry matches a data file to its manifest entry by basename up
// to the first dot.
func findManifestEntry(manifest []ManifestEntry, basename string) *ManifestEntry {
	name := basename
	if idx := strings.Index(name, "."); idx >= 0 {
		name = name[:idx]
	}
	for i := range manifest {
		if manifest[i].File == name {
			return &manifest[i]
		}
	}
	return nil
}

// ingestFile streams one game's JSON array of records, applying full batches
// as they fill and the final partial batch at end of stream. The decoder
// never holds more than one batch of records in memory.
func (s *ingestService) ingestFile(ctx context.Context, gameID uuid.UUID, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("data file is not a JSON array: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, fmt.Errorf("data file is not a JSON array")
	}

	imported := 0
	batchIndex := 1
	batch := make([]map[string]any, 0, s.cfg.BatchSize)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return imported, fmt.Errorf("failed to decode record: %w", err)
		}

		record, ok := s.validRecord(raw)
		if !ok {
			continue
		}
		batch = append(batch, record)

		if len(batch) >= s.cfg.BatchSize {
			s.logger.Info("Processing batch", zap.Int("batch", batchIndex))
			batchIndex++
			n, err := s.processBatch(ctx, gameID, batch)
			imported += n
			if err != nil {
				return imported, err
			}
			batch = batch[:0]
		}
	}

	// Leftovers that never filled a whole batch.
	s.logger.Info("Processing batch", zap.Int("batch", batchIndex))
	n, err := s.processBatch(ctx, gameID, batch)
	imported += n
	return imported, err
}

// validRecord checks the required record shape: an object with a non-empty
// name and an id that is a non-empty string or a number. Anything else is
// skipped with a diagnostic.
func (s *ingestService) validRecord(raw json.RawMessage) (map[string]any, bool) {
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		s.logger.Warn("Unsupported card format", zap.String("record", string(raw)))
		return nil, false
	}

	name, ok := record["name"].(string)
	if !ok || name == "" {
		s.logger.Warn("Unsupported card format", zap.String("record", string(raw)))
		return nil, false
	}
	if normalizeOID(record["id"]) == "" {
		s.logger.Warn("Unsupported card format", zap.String("record", string(raw)))
		return nil, false
	}

	return record, true
}

// normalizeOID renders a record id as its canonical string form. Returns ""
// for anything that is not a non-empty string or a number.
func normalizeOID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

// processBatch applies one batch atomically: cards are upserted to obtain the
// oid-to-id map, then each typed attribute table is reconciled against the
// batch. A reader never observes cards without their reconciled attributes.
func (s *ingestService) processBatch(ctx context.Context, gameID uuid.UUID, batch []map[string]any) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	// Later occurrences of the same oid win, mirroring upsert order.
	deduped := make([]map[string]any, 0, len(batch))
	seen := make(map[string]int, len(batch))
	for _, record := range batch {
		oid := normalizeOID(record["id"])
		if i, dup := seen[oid]; dup {
			deduped[i] = record
			continue
		}
		seen[oid] = len(deduped)
		deduped = append(deduped, record)
	}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		inputs := make([]models.CardInput, len(deduped))
		for i, record := range deduped {
			inputs[i] = models.CardInput{
				OID:  normalizeOID(record["id"]),
				Name: record["name"].(string),
			}
		}

		ids, err := s.cards.UpsertCards(ctx, tx, gameID, inputs)
		if err != nil {
			return err
		}

		partitions, cardIDs := s.partitionAttributes(deduped, ids)
		for _, typ := range models.AttributeTypes() {
			if err := s.cards.ReconcileAttributes(ctx, tx, typ, cardIDs, partitions[typ]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(batch), nil
}

// partitionAttributes splits every record's non-reserved keys by the runtime
// type of their value into one list per typed table. Values of unsupported
// types are dropped with a diagnostic.
func (s *ingestService) partitionAttributes(batch []map[string]any, ids map[string]uuid.UUID) (map[models.AttributeType][]models.CardAttribute, []uuid.UUID) {
	partitions := make(map[models.AttributeType][]models.CardAttribute)
	cardIDs := make([]uuid.UUID, 0, len(batch))

	for _, record := range batch {
		cardID := ids[normalizeOID(record["id"])]
		cardIDs = append(cardIDs, cardID)

		for key, value := range record {
			if _, reserved := reservedRecordKeys[key]; reserved {
				continue
			}

			typ, ok := models.ClassifyAttributeValue(value)
			if !ok {
				s.logger.Warn("Card contains unsupported attribute value type",
					zap.String("card", record["name"].(string)),
					zap.String("attribute", key))
				continue
			}

			partitions[typ] = append(partitions[typ], models.CardAttribute{
				CardID:    cardID,
				Attribute: key,
				Value:     value,
			})
		}
	}

	return partitions, cardIDs
}

// warnStaleCatalogRows surfaces catalog entries whose attribute no longer
// appears anywhere for the game. They are deliberately not purged; the
// catalog only ever upserts.
func (s *ingestService) warnStaleCatalogRows(ctx context.Context, gameID uuid.UUID) {
	stale, err := s.attributes.StaleDefinitions(ctx, s.db, gameID)
	if err != nil {
		s.logger.Warn("Failed to check for stale catalog rows",
			zap.String("game_id", gameID.String()),
			zap.Error(err))
		return
	}
	if len(stale) > 0 {
		s.logger.Warn("Catalog retains rows for attributes with no remaining values",
			zap.String("game_id", gameID.String()),
			zap.Strings("attributes", stale))
	}
}
