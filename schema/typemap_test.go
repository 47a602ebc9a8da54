package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapType(t *testing.T) {
	tests := []struct {
		name      string
		declared  string
		expected  string
		increment bool
		warnings  int
	}{
		{name: "identity", declared: "integer", expected: "integer"},
		{name: "alias int4", declared: "int4", expected: "integer"},
		{name: "alias int8", declared: "int8", expected: "bigint"},
		{name: "alias bool", declared: "bool", expected: "boolean"},
		{name: "alias decimal", declared: "decimal", expected: "numeric"},
		{name: "alias bpchar keeps parameters", declared: "bpchar(2)", expected: "char(2)"},
		{name: "serial", declared: "serial", expected: "integer", increment: true},
		{name: "bigserial", declared: "bigserial", expected: "bigint", increment: true},
		{name: "smallserial", declared: "smallserial", expected: "smallint", increment: true},
		{name: "varchar keeps parameters", declared: "varchar(255)", expected: "varchar(255)"},
		{name: "numeric keeps parameters", declared: "numeric(10,2)", expected: "numeric(10,2)"},
		{name: "time drops parameters", declared: "time(6)", expected: "time"},
		{name: "native passthrough", declared: "inet", expected: "inet"},
		{name: "geometric passthrough", declared: "point", expected: "point"},
		{name: "range passthrough", declared: "tsrange", expected: "tsrange"},
		{name: "multirange degrades to text", declared: "int4multirange", expected: "text", warnings: 1},
		{name: "hstore degrades to text", declared: "hstore", expected: "text", warnings: 1},
		{name: "ltree degrades to text", declared: "ltree", expected: "text", warnings: 1},
		{name: "unknown falls back to text", declared: "customtype", expected: "text", warnings: 1},
		{name: "array is quoted with a space", declared: "text[]", expected: `"text []"`},
		{name: "array element is mapped", declared: "int4[]", expected: `"integer []"`},
		{name: "parameterized array", declared: "varchar(64)[]", expected: `"varchar(64) []"`},
		{name: "already mapped array is unchanged", declared: `"text []"`, expected: `"text []"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTypeMapper(DefaultDecisions(), nil)
			mapped, increment, warnings := m.MapType(tt.declared)
			assert.Equal(t, mapped, tt.expected)
			assert.Equal(t, increment, tt.increment)
			assert.Len(t, warnings, tt.warnings)
		})
	}
}

func TestMapTypeUnknownFallbackDecision(t *testing.T) {
	decisions := DefaultDecisions()
	decisions.UnknownTypeFallback = UnknownTypeVarchar

	m := NewTypeMapper(decisions, nil)
	mapped, _, warnings := m.MapType("customtype")

	assert.Equal(t, mapped, "varchar")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "unknown type customtype")
}

func TestMapTypeArrayTextFallbackDecision(t *testing.T) {
	decisions := DefaultDecisions()
	decisions.ArrayType = ArrayTypeTextFallback

	m := NewTypeMapper(decisions, nil)
	mapped, _, warnings := m.MapType("text[]")

	assert.Equal(t, mapped, "text")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "degraded to text")
}

func TestMapTypeEnumPassthrough(t *testing.T) {
	m := NewTypeMapper(DefaultDecisions(), map[string]bool{"mood": true})

	mapped, increment, warnings := m.MapType("mood")
	assert.Equal(t, mapped, "mood")
	assert.False(t, increment)
	assert.Empty(t, warnings)

	mapped, _, _ = m.MapType("mood[]")
	assert.Equal(t, mapped, `"mood []"`)
}

func TestTransformSchemaSerialColumn(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name:    "users",
		Columns: []*Column{{Name: "id", Type: "serial"}},
	})

	m := NewTypeMapper(DefaultDecisions(), nil)
	m.TransformSchema(s)

	col := s.Tables[0].Columns[0]
	assert.Equal(t, col.Type, "integer")
	assert.Equal(t, col.OriginalType, "serial")
	assert.True(t, col.Increment)

	require.Len(t, m.Transformations, 1)
	assert.Equal(t, m.Transformations[0].Reason, ReasonSerial)
	assert.Equal(t, m.Transformations[0].Table, "users")
	assert.Equal(t, m.Transformations[0].Column, "id")
}

func TestTransformSchemaRecordsOnlyChanges(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "users",
		Columns: []*Column{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "varchar(255)"},
			{Name: "age", Type: "int4"},
		},
	})

	m := NewTypeMapper(DefaultDecisions(), nil)
	m.TransformSchema(s)

	// Only int4 changes; the identity mappings leave no trace.
	require.Len(t, m.Transformations, 1)
	assert.Equal(t, m.Transformations[0].OriginalType, "int4")
	assert.Equal(t, m.Transformations[0].TransformedType, "integer")
	assert.Equal(t, m.Transformations[0].Reason, ReasonAlias)
}

func TestTransformSchemaIsIdempotent(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "posts",
		Columns: []*Column{
			{Name: "id", Type: "bigserial"},
			{Name: "tags", Type: "text[]"},
			{Name: "title", Type: "varchar(200)"},
		},
	})

	first := NewTypeMapper(DefaultDecisions(), nil)
	first.TransformSchema(s)
	require.Len(t, first.Transformations, 2)

	second := NewTypeMapper(DefaultDecisions(), nil)
	second.TransformSchema(s)
	assert.Empty(t, second.Transformations)
	assert.Empty(t, second.Warnings)
}

func TestTransformSchemaArrayReason(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name:    "posts",
		Columns: []*Column{{Name: "scores", Type: "int4[]"}},
	})

	m := NewTypeMapper(DefaultDecisions(), nil)
	m.TransformSchema(s)

	require.Len(t, m.Transformations, 1)
	assert.Equal(t, m.Transformations[0].TransformedType, `"integer []"`)
	assert.Equal(t, m.Transformations[0].Reason, ReasonArraySyntax)
}

func TestTransformSchemaArrayTextFallback(t *testing.T) {
	decisions := DefaultDecisions()
	decisions.ArrayType = ArrayTypeTextFallback

	s := NewSchema()
	s.AddTable(&Table{
		Name:    "posts",
		Columns: []*Column{{Name: "tags", Type: "text[]"}},
	})

	m := NewTypeMapper(decisions, nil)
	m.TransformSchema(s)

	assert.Equal(t, s.Tables[0].Columns[0].Type, "text")
	require.Len(t, m.Transformations, 1)
	assert.Equal(t, m.Transformations[0].Reason, ReasonPGSpecific)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "posts.tags")
}

func TestTransformSchemaWarnsOnSemanticLoss(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "docs",
		Columns: []*Column{
			{Name: "attrs", Type: "hstore"},
			{Name: "path", Type: "ltree"},
		},
	})

	m := NewTypeMapper(DefaultDecisions(), nil)
	m.TransformSchema(s)

	assert.Equal(t, s.Tables[0].Columns[0].Type, "text")
	assert.Equal(t, s.Tables[0].Columns[1].Type, "text")
	require.Len(t, m.Warnings, 2)
	assert.Contains(t, m.Warnings[0], "key/value semantics lost")
	assert.Contains(t, m.Warnings[1], "label tree semantics lost")

	report := m.TransformationReport()
	assert.Equal(t, report[ReasonPGSpecific], 2)
}

func TestTransformSchemaDropsUnrepresentableParameters(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name:    "events",
		Columns: []*Column{{Name: "at", Type: "time(6)"}},
	})

	m := NewTypeMapper(DefaultDecisions(), nil)
	m.TransformSchema(s)

	assert.Equal(t, s.Tables[0].Columns[0].Type, "time")
	require.Len(t, m.Transformations, 1)
	assert.Equal(t, m.Transformations[0].Reason, ReasonParamsDropped)
}
