package query

import (
	"github.com/cardhaven/cardhaven-engine/pkg/models"
)

// Value is the parsed form of one attribute filter: a scalar literal, a set
// of literals, or a numeric range. Downstream code switches exhaustively over
// the three concrete types instead of comparing sentinels.
type Value interface {
	filterValue()
}

// Literal wraps a single scalar (string, float64, or bool).
type Literal struct {
	Value any
}

func (Literal) filterValue() {}

// Type returns the attribute type implied by the literal's runtime type.
func (l Literal) Type() (models.AttributeType, bool) {
	return models.ClassifyAttributeValue(l.Value)
}

// Set matches any of its elements. Elements are homogeneous: mixed-type input
// is coerced to strings at parse time.
type Set struct {
	Elements []Literal
}

func (Set) filterValue() {}

// Type returns the element type of the set, taken from the first element.
func (s Set) Type() (models.AttributeType, bool) {
	if len(s.Elements) == 0 {
		return "", false
	}
	return s.Elements[0].Type()
}

// Range is a numeric interval. A nil side is open; the upper bound is
// exclusive.
type Range struct {
	Min *float64
	Max *float64
}

func (Range) filterValue() {}
