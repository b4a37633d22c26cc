package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cardhaven/cardhaven-engine/pkg/apperrors"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
)

// Compiled is the storage-level form of a validated request: a WHERE
// conjunction over the card_outputs view (aliased co) with positional args.
type Compiled struct {
	Where string
	Args  []any
}

// builder accumulates conditions and their positional arguments.
type builder struct {
	conds []string
	args  []any
}

// arg registers a value and returns its placeholder.
func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) cond(c string) {
	b.conds = append(b.conds, c)
}

// Compile turns a validated request into a predicate conjunction. Reserved
// filters constrain the view's own columns; each attribute filter becomes an
// EXISTS over the typed table implied by the filter's type, so every
// requested attribute must hold simultaneously for a card to match.
func Compile(req *Request) (*Compiled, error) {
	b := &builder{}

	if req.ID != "" {
		b.cond(fmt.Sprintf("co.id::text = %s", b.arg(req.ID)))
	}
	if req.OID != "" {
		b.cond(fmt.Sprintf("co.oid = %s", b.arg(req.OID)))
	}
	if req.Name != "" {
		b.cond(nameMatch("co.name", req.Name, b))
	}
	if req.Game != "" {
		gameName := nameMatch("co.game_name", req.Game, b)
		// Aliases only ever match exactly (case-insensitively).
		alias := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM game_aliases ga WHERE ga.game = co.game AND ga.alias ILIKE %s)",
			b.arg(unquote(req.Game)))
		b.cond(fmt.Sprintf("(%s OR %s)", gameName, alias))
	}

	// Sorted for deterministic SQL and argument ordering.
	names := make([]string, 0, len(req.Attributes))
	for name := range req.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		clause, err := attributeClause(name, req.Attributes[name], b)
		if err != nil {
			return nil, err
		}
		b.cond(clause)
	}

	where := "TRUE"
	if len(b.conds) > 0 {
		where = strings.Join(b.conds, " AND ")
	}
	return &Compiled{Where: where, Args: b.args}, nil
}

// nameMatch compiles the quoted-exact / unquoted-substring convention for
// name and game filters. Both forms are case-insensitive.
func nameMatch(column, value string, b *builder) string {
	if isQuoted(value) {
		return fmt.Sprintf("%s ILIKE %s", column, b.arg(unquote(value)))
	}
	return fmt.Sprintf("%s ILIKE '%%' || %s || '%%'", column, b.arg(value))
}

func isQuoted(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

func unquote(s string) string {
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// attributeClause compiles one attribute filter into an EXISTS over its
// typed table.
func attributeClause(name string, value Value, b *builder) (string, error) {
	typ, err := filterType(value)
	if err != nil {
		return "", err
	}

	table, ok := typ.Table()
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnimplementedType, typ)
	}

	var valuePred string
	switch v := value.(type) {
	case Literal:
		valuePred = literalPredicate(v, typ, b)

	case Set:
		preds := make([]string, 0, len(v.Elements))
		for _, el := range v.Elements {
			preds = append(preds, literalPredicate(el, typ, b))
		}
		valuePred = "(" + strings.Join(preds, " OR ") + ")"

	case Range:
		var bounds []string
		if v.Min != nil {
			bounds = append(bounds, fmt.Sprintf("a.value >= %s", b.arg(*v.Min)))
		}
		if v.Max != nil {
			bounds = append(bounds, fmt.Sprintf("a.value < %s", b.arg(*v.Max)))
		}
		valuePred = strings.Join(bounds, " AND ")

	default:
		return "", fmt.Errorf("%w: %T", apperrors.ErrUnimplementedType, value)
	}

	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s a WHERE a.id = co.id AND a.attribute = %s AND %s)",
		table, b.arg(name), valuePred), nil
}

// filterType infers the typed table a filter targets: ranges are numeric,
// sets take their (homogeneous) element type, literals their own type.
func filterType(value Value) (models.AttributeType, error) {
	switch v := value.(type) {
	case Range:
		return models.AttributeTypeNumeric, nil
	case Set:
		typ, ok := v.Type()
		if !ok {
			return "", fmt.Errorf("%w: empty or untyped set", apperrors.ErrUnimplementedType)
		}
		return typ, nil
	case Literal:
		typ, ok := v.Type()
		if !ok {
			return "", fmt.Errorf("%w: %T", apperrors.ErrUnimplementedType, v.Value)
		}
		return typ, nil
	default:
		return "", fmt.Errorf("%w: %T", apperrors.ErrUnimplementedType, value)
	}
}

// literalPredicate compares a.value to the literal: ILIKE for text (exact,
// case-insensitive), plain equality otherwise.
func literalPredicate(lit Literal, typ models.AttributeType, b *builder) string {
	if typ == models.AttributeTypeText {
		return fmt.Sprintf("a.value ILIKE %s", b.arg(lit.Value))
	}
	return fmt.Sprintf("a.value = %s", b.arg(lit.Value))
}
