package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAttributeValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  AttributeType
		ok    bool
	}{
		{"string", "rare", AttributeTypeText, true},
		{"float", 2.5, AttributeTypeNumeric, true},
		{"integer decodes as float", float64(3), AttributeTypeNumeric, true},
		{"bool", true, AttributeTypeBoolean, true},
		{"nil", nil, "", false},
		{"object", map[string]any{"a": 1}, "", false},
		{"array", []any{1, 2}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, ok := ClassifyAttributeValue(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, typ)
		})
	}
}

func TestAttributeTypeTable(t *testing.T) {
	for _, typ := range AttributeTypes() {
		table, ok := typ.Table()
		require.True(t, ok)
		assert.NotEmpty(t, table)
	}

	_, ok := AttributeType("json").Table()
	assert.False(t, ok)
}

func TestAttributeDefinition_Unbounded(t *testing.T) {
	bounded := &AttributeDefinition{Values: []any{"a", "b"}}
	assert.False(t, bounded.Unbounded())

	unbounded := &AttributeDefinition{}
	assert.True(t, unbounded.Unbounded())
}

func TestAttributeDefinition_HasType(t *testing.T) {
	def := &AttributeDefinition{Types: []AttributeType{AttributeTypeText, AttributeTypeNumeric}}

	assert.True(t, def.HasType(AttributeTypeText))
	assert.True(t, def.HasType(AttributeTypeNumeric))
	assert.False(t, def.HasType(AttributeTypeBoolean))
}
