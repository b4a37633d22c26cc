package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cardhaven/cardhaven-engine/pkg/apperrors"
	"github.com/cardhaven/cardhaven-engine/pkg/jsonutil"
	"github.com/cardhaven/cardhaven-engine/pkg/models"
)

// Validate checks every attribute filter in req against the schema catalog.
// Validation is all-or-nothing: each problem becomes one issue and any issue
// rejects the whole query. A filter whose runtime type has no typed table is
// an internal error (apperrors.ErrUnimplementedType), not a validation issue.
func Validate(req *Request, defs []*models.AttributeDefinition) error {
	verr := &apperrors.ValidationError{}

	// Sorted for deterministic issue ordering.
	names := make([]string, 0, len(req.Attributes))
	for name := range req.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		matching := defsFor(defs, name)
		if len(matching) == 0 {
			verr.Add(fmt.Sprintf("Invalid query attribute '%s'", name))
			continue
		}

		if err := validateFilter(name, req.Attributes[name], matching, verr); err != nil {
			return err
		}
	}

	if verr.HasIssues() {
		return verr
	}
	return nil
}

func defsFor(defs []*models.AttributeDefinition, name string) []*models.AttributeDefinition {
	var matching []*models.AttributeDefinition
	for _, def := range defs {
		if def.Attribute == name {
			matching = append(matching, def)
		}
	}
	return matching
}

func validateFilter(name string, value Value, defs []*models.AttributeDefinition, verr *apperrors.ValidationError) error {
	switch v := value.(type) {
	case Literal:
		return validateLiteral(name, v, defs, verr)

	case Set:
		for _, el := range v.Elements {
			if err := validateLiteral(name, el, defs, verr); err != nil {
				return err
			}
		}
		return nil

	case Range:
		// Ranges only ever constrain numeric values; the type check is the
		// whole validation.
		if !anyDefHasType(defs, models.AttributeTypeNumeric) {
			verr.Add(fmt.Sprintf("Invalid query attribute value type '%s' for '%s'", models.AttributeTypeNumeric, name))
		}
		return nil

	default:
		return fmt.Errorf("%w: %T", apperrors.ErrUnimplementedType, value)
	}
}

func validateLiteral(name string, lit Literal, defs []*models.AttributeDefinition, verr *apperrors.ValidationError) error {
	typ, ok := lit.Type()
	if !ok {
		return fmt.Errorf("%w: %T", apperrors.ErrUnimplementedType, lit.Value)
	}

	if !anyDefHasType(defs, typ) {
		verr.Add(fmt.Sprintf("Invalid query attribute value type '%s' for '%s'", typ, name))
		return nil
	}

	// Enumeration check: a bounded catalog entry restricts literals to its
	// observed values (case-insensitively for text). Any unbounded entry for
	// the attribute disables the check entirely.
	hasPredefined := true
	hasExactMatch := false
	for _, def := range defs {
		if def.Unbounded() {
			hasPredefined = false
			break
		}
		if matchesEnumerated(lit, typ, def.Values) {
			hasExactMatch = true
			break
		}
	}

	if hasPredefined && !hasExactMatch {
		verr.Add(fmt.Sprintf("Invalid query attribute value '%v' for '%s'", lit.Value, name))
	}
	return nil
}

func anyDefHasType(defs []*models.AttributeDefinition, typ models.AttributeType) bool {
	for _, def := range defs {
		if def.HasType(typ) {
			return true
		}
	}
	return false
}

// matchesEnumerated reports whether lit equals one of the catalog's
// enumerated values. Text compares case-insensitively against the string
// form of each option; numeric and boolean compare directly.
func matchesEnumerated(lit Literal, typ models.AttributeType, options []any) bool {
	if typ == models.AttributeTypeText {
		want := strings.ToLower(lit.Value.(string))
		for _, option := range options {
			if strings.ToLower(jsonutil.ScalarString(option)) == want {
				return true
			}
		}
		return false
	}

	for _, option := range options {
		if option == lit.Value {
			return true
		}
	}
	return false
}
