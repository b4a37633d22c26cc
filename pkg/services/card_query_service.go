package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/database"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
	"github.com/cardhaven/cardhaven-engine/pkg/query"
	"github.com/cardhaven/cardhaven-engine/pkg/repositories"
)

// CardQueryResult is one page of search results. HasMore reports whether at
// least one further page exists.
type CardQueryResult struct {
	Cards   []*models.CardOutput `json:"cards"`
	Page    int                  `json:"page"`
	HasMore bool                 `json:"has_more"`
}

// CardQueryService answers card searches: it parses the raw query parameters,
// validates them against the schema catalog, compiles them to SQL and runs
// the result against the read view.
type CardQueryService interface {
	Search(ctx context.Context, params map[string]string) (*CardQueryResult, error)
}

type cardQueryService struct {
	db         *database.DB
	attributes repositories.AttributeRepository
	outputs    repositories.CardOutputRepository
	parser     *query.Parser
	logger     *zap.Logger
}

// NewCardQueryService creates a new CardQueryService.
func NewCardQueryService(
	db *database.DB,
	attributes repositories.AttributeRepository,
	outputs repositories.CardOutputRepository,
	parser *query.Parser,
	logger *zap.Logger,
) CardQueryService {
	return &cardQueryService{
		db:         db,
		attributes: attributes,
		outputs:    outputs,
		parser:     parser,
		logger:     logger,
	}
}

var _ CardQueryService = (*cardQueryService)(nil)

func (s *cardQueryService) Search(ctx context.Context, params map[string]string) (*CardQueryResult, error) {
	req, err := s.parser.ParseRequest(params)
	if err != nil {
		return nil, err
	}

	// The catalog is read fresh on every request so an ingestion run is
	// visible without a restart.
	defs, err := s.attributes.ListDefinitions(ctx, s.db)
	if err != nil {
		return nil, err
	}

	if err := query.Validate(req, defs); err != nil {
		return nil, err
	}

	compiled, err := query.Compile(req)
	if err != nil {
		return nil, err
	}

	// One extra row tells us whether a next page exists without a COUNT.
	limit := req.PageSize + 1
	offset := (req.Page - 1) * req.PageSize
	cards, err := s.outputs.Search(ctx, s.db, compiled, limit, offset)
	if err != nil {
		return nil, err
	}

	hasMore := len(cards) > req.PageSize
	if hasMore {
		cards = cards[:req.PageSize]
	}
	if cards == nil {
		cards = []*models.CardOutput{}
	}

	return &CardQueryResult{
		Cards:   cards,
		Page:    req.Page,
		HasMore: hasMore,
	}, nil
}
