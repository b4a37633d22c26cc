package models

import "github.com/google/uuid"

// AttributeType identifies which typed table stores a value. It is a closed
// set; anything that doesn't classify is dropped at ingestion time and an
// internal error at query time.
type AttributeType string

const (
	AttributeTypeText    AttributeType = "text"
	AttributeTypeNumeric AttributeType = "numeric"
	AttributeTypeBoolean AttributeType = "boolean"
)

// attributeTables maps each type to its storage table.
var attributeTables = map[AttributeType]string{
	AttributeTypeText:    "card_text_attributes",
	AttributeTypeNumeric: "card_numeric_attributes",
	AttributeTypeBoolean: "card_boolean_attributes",
}

// Table returns the typed attribute table backing this type, or false if the
// type has no table.
func (t AttributeType) Table() (string, bool) {
	table, ok := attributeTables[t]
	return table, ok
}

// AttributeTypes returns all typed-table types in a stable order.
func AttributeTypes() []AttributeType {
	return []AttributeType{AttributeTypeText, AttributeTypeNumeric, AttributeTypeBoolean}
}

// ClassifyAttributeValue maps the runtime type of a decoded JSON value to an
// attribute type. JSON numbers always decode to float64, so numeric covers
// integers too.
func ClassifyAttributeValue(v any) (AttributeType, bool) {
	switch v.(type) {
	case string:
		return AttributeTypeText, true
	case float64:
		return AttributeTypeNumeric, true
	case bool:
		return AttributeTypeBoolean, true
	default:
		return "", false
	}
}

// AttributeDefinition is one schema-catalog row: the types and, when bounded,
// the distinct values observed for an attribute across one game's cards.
// An empty Values slice is the unbounded marker.
type AttributeDefinition struct {
	GameID    uuid.UUID       `json:"game"`
	Attribute string          `json:"attribute"`
	Types     []AttributeType `json:"types"`
	Values    []any           `json:"values"`
}

// HasType reports whether the catalog observed values of type t for this
// attribute.
func (d *AttributeDefinition) HasType(t AttributeType) bool {
	for _, have := range d.Types {
		if have == t {
			return true
		}
	}
	return false
}

// Unbounded reports whether the attribute's distinct values exceeded the
// enumeration threshold when the catalog was last rebuilt.
func (d *AttributeDefinition) Unbounded() bool {
	return len(d.Values) == 0
}
