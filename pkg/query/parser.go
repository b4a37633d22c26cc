package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/apperrors"
	"github.com/cardhaven/cardhaven-engine/pkg/jsonutil"
)

// AttributePrefix marks query parameters that filter on card attributes
// rather than reserved card fields.
const AttributePrefix = "attributes."

// DefaultPageSize is used when page_size is absent. MaxPageSize caps it.
const (
	DefaultPageSize = 100
	MaxPageSize     = 100
)

// reservedKeys are the recognized non-attribute query parameters.
var reservedKeys = map[string]struct{}{
	"name":      {},
	"id":        {},
	"oid":       {},
	"game":      {},
	"page":      {},
	"page_size": {},
}

// Request is a fully parsed card query: reserved filters plus one tagged
// Value per surviving attribute filter (keyed by attribute name, prefix
// stripped).
type Request struct {
	ID       string
	OID      string
	Name     string
	Game     string
	Page     int
	PageSize int

	Attributes map[string]Value
}

// Parser converts a flat map of raw string query parameters into a Request.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a Parser. Soft-dropped keys are logged through the given
// logger.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseRequest parses params into a Request. Unknown non-attribute keys and
// malformed reserved values are validation errors; attribute values with
// unsupported syntax are dropped from the filter set with a warning, not
// fatally. All issues are aggregated into a single *apperrors.ValidationError.
func (p *Parser) ParseRequest(params map[string]string) (*Request, error) {
	req := &Request{
		Page:       1,
		PageSize:   DefaultPageSize,
		Attributes: make(map[string]Value),
	}
	verr := &apperrors.ValidationError{}

	for key, raw := range params {
		if _, ok := reservedKeys[key]; ok {
			p.parseReserved(req, key, raw, verr)
			continue
		}

		if !strings.HasPrefix(key, AttributePrefix) {
			verr.Add(fmt.Sprintf("Invalid query parameter '%s'", key))
			continue
		}

		name := strings.TrimPrefix(key, AttributePrefix)
		value, outcome := parseValue(raw)
		switch outcome {
		case outcomeValue:
			req.Attributes[name] = value
		case outcomeInvalid:
			verr.Add(fmt.Sprintf("Invalid query parameter value for '%s'", key))
		case outcomeSkipKey, outcomeSkipValue:
			p.logger.Warn("Dropping unsupported attribute filter",
				zap.String("key", key),
				zap.String("value", raw))
		}
	}

	if verr.HasIssues() {
		return nil, verr
	}
	return req, nil
}

// parseReserved handles the recognized non-attribute keys.
func (p *Parser) parseReserved(req *Request, key, raw string, verr *apperrors.ValidationError) {
	switch key {
	case "id":
		req.ID = raw
	case "oid":
		req.OID = raw
	case "name":
		req.Name = raw
	case "game":
		req.Game = raw
	case "page":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			verr.Add("Invalid query parameter 'page': must be a positive integer")
			return
		}
		req.Page = n
	case "page_size":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxPageSize {
			verr.Add(fmt.Sprintf("Invalid query parameter 'page_size': must be an integer between 1 and %d", MaxPageSize))
			return
		}
		req.PageSize = n
	}
}

// parseOutcome distinguishes a usable value from the two drop signals and
// from malformed input.
type parseOutcome int

const (
	outcomeValue parseOutcome = iota
	// outcomeSkipKey drops the whole attribute filter (unsupported syntax).
	outcomeSkipKey
	// outcomeSkipValue drops one candidate value; at the top level it also
	// drops the key (a range with both sides open carries no constraint).
	outcomeSkipValue
	// outcomeInvalid is valid JSON of a non-scalar shape: a validation error.
	outcomeInvalid
)

// parseValue parses one raw attribute value through the full grammar:
// JSON scalar, then comma set, then ".." range, then raw string literal.
func parseValue(raw string) (Value, parseOutcome) {
	if lit, outcome, ok := parseJSONScalar(raw); ok {
		return lit, outcome
	}

	if set, outcome, ok := parseSetSyntax(raw); ok {
		return set, outcome
	}

	if rng, outcome, ok := parseRangeSyntax(raw); ok {
		return rng, outcome
	}

	return Literal{Value: raw}, outcomeValue
}

// parseJSONScalar attempts strict JSON parsing. A scalar result is used
// directly; any other JSON shape is malformed input. The ok result is false
// when raw is not valid JSON at all and the next syntax should be tried.
func parseJSONScalar(raw string) (Value, parseOutcome, bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, 0, false
	}

	switch v.(type) {
	case string, float64, bool:
		return Literal{Value: v}, outcomeValue, true
	default:
		return nil, outcomeInvalid, true
	}
}

// parseSetSyntax handles comma-separated value sets (color=w,g). Each part is
// parsed as a JSON scalar, falling back to the raw substring; a part that is
// valid non-scalar JSON poisons the whole key. Mixed runtime types coerce
// every element to its string form - a set is homogeneous by definition, so
// mixed parts were meant as raw strings.
func parseSetSyntax(raw string) (Value, parseOutcome, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) <= 1 {
		return nil, 0, false
	}

	elements := make([]Literal, 0, len(parts))
	for _, part := range parts {
		lit, outcome, ok := parseJSONScalar(part)
		if !ok {
			elements = append(elements, Literal{Value: part})
			continue
		}
		if outcome != outcomeValue {
			return nil, outcomeSkipKey, true
		}
		elements = append(elements, lit.(Literal))
	}

	if len(elements) == 0 {
		return nil, outcomeSkipKey, true
	}

	if !homogeneous(elements) {
		for i, el := range elements {
			elements[i] = Literal{Value: jsonutil.ScalarString(el.Value)}
		}
	}

	return Set{Elements: elements}, outcomeValue, true
}

// homogeneous reports whether every element shares the first element's
// runtime type.
func homogeneous(elements []Literal) bool {
	first, _ := elements[0].Type()
	for _, el := range elements[1:] {
		t, _ := el.Type()
		if t != first {
			return false
		}
	}
	return true
}

// parseRangeSyntax handles numeric ranges (cost=2..5, cost=2.., cost=..5).
// A side that is empty or non-numeric is open; both sides open means the
// value carries no constraint and is dropped.
func parseRangeSyntax(raw string) (Value, parseOutcome, bool) {
	parts := strings.Split(raw, "..")
	if len(parts) != 2 {
		return nil, 0, false
	}

	min := parseRangeBound(parts[0])
	max := parseRangeBound(parts[1])
	if min == nil && max == nil {
		return nil, outcomeSkipValue, true
	}

	return Range{Min: min, Max: max}, outcomeValue, true
}

func parseRangeBound(s string) *float64 {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &n
}
