package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecomposeType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		base     string
		params   string
		isArray  bool
	}{
		{name: "plain", declared: "integer", base: "integer"},
		{name: "parameters", declared: "varchar(255)", base: "varchar", params: "255"},
		{name: "two parameters", declared: "numeric(10,2)", base: "numeric", params: "10,2"},
		{name: "raw array", declared: "text[]", base: "text", isArray: true},
		{name: "quoted array", declared: `"text []"`, base: "text", isArray: true},
		{name: "parameterized array", declared: "varchar(64)[]", base: "varchar", params: "64", isArray: true},
		{name: "case folds", declared: "INTEGER", base: "integer"},
		{name: "multi-word", declared: "timestamp with time zone", base: "timestamp with time zone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, params, isArray := DecomposeType(tt.declared)
			assert.Equal(t, base, tt.base)
			assert.Equal(t, params, tt.params)
			assert.Equal(t, isArray, tt.isArray)
		})
	}
}

func TestCanonicalizeFillsDerivedFields(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "users",
		Columns: []*Column{
			{Name: "id", Type: "integer"},
			{Name: "tags", Type: "text[]"},
		},
		Constraints: []*Constraint{
			{Type: ConstraintPrimaryKey, Columns: []string{"id"}},
		},
	})
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "users",
		SourceColumns: []string{"id", "tenant_id"},
		TargetTable:   "users",
		TargetColumns: []string{"id", "tenant_id"},
	})

	Canonicalize(s)

	table := s.Tables[0]
	assert.Equal(t, table.PrimaryKey, []string{"id"})
	assert.Equal(t, table.Columns[0].BaseType, "integer")
	assert.True(t, table.Columns[1].IsArray)
	assert.Equal(t, table.Columns[1].BaseType, "text")

	rel := s.Relationships[0]
	assert.True(t, rel.Composite)
	assert.True(t, rel.SelfReference)
}

func TestCanonicalizeMergesConstraintAndColumnPrimaryKeys(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "sessions",
		Columns: []*Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "user_id", Type: "integer"},
		},
		Constraints: []*Constraint{
			{Type: ConstraintPrimaryKey, Columns: []string{"id", "user_id"}},
		},
	})

	Canonicalize(s)

	// The flagged column is already covered by the constraint; no duplicate.
	assert.Equal(t, s.Tables[0].PrimaryKey, []string{"id", "user_id"})
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name:    "users",
		Columns: []*Column{{Name: "id", Type: "integer", IsPrimaryKey: true}},
	})

	Canonicalize(s)
	first := append([]string(nil), s.Tables[0].PrimaryKey...)
	Canonicalize(s)

	assert.Equal(t, s.Tables[0].PrimaryKey, first)
}

func TestStats(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "users",
		Columns: []*Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true, NotNull: true},
			{Name: "email", Type: "text", NotNull: true},
			{Name: "tags", Type: "text[]"},
		},
		Constraints: []*Constraint{
			{Type: ConstraintPrimaryKey, Columns: []string{"id"}},
		},
	})
	s.AddTable(&Table{
		Name:    "posts",
		Columns: []*Column{{Name: "id", Type: "integer"}},
	})
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "posts",
		SourceColumns: []string{"id"},
		TargetTable:   "posts",
		TargetColumns: []string{"id"},
	})
	s.Indexes = append(s.Indexes, &Index{Name: "users_email_idx", Table: "users"})
	s.Enums = append(s.Enums, &Enum{Name: "mood"})
	s.Sequences = append(s.Sequences, &Sequence{Name: "users_id_seq"})

	Canonicalize(s)
	st := Stats(s)

	assert.Equal(t, st.Tables, 2)
	assert.Equal(t, st.Columns, 4)
	assert.Equal(t, st.Relationships, 1)
	assert.Equal(t, st.Constraints, 1)
	assert.Equal(t, st.Indexes, 1)
	assert.Equal(t, st.Enums, 1)
	assert.Equal(t, st.Sequences, 1)
	assert.Equal(t, st.ArrayColumns, 1)
	assert.Equal(t, st.NullableColumns, 2)
	assert.Equal(t, st.PrimaryKeyColumns, 1)
	assert.Equal(t, st.SelfReferencingRelationships, 1)
	assert.Equal(t, st.CompositeRelationships, 0)
}

func TestAddTableFirstDefinitionWins(t *testing.T) {
	s := NewSchema()
	first := &Table{Name: "users", Columns: []*Column{{Name: "id", Type: "integer"}}}
	second := &Table{Name: "users", Columns: []*Column{{Name: "id", Type: "bigint"}}}

	require.True(t, s.AddTable(first))
	assert.False(t, s.AddTable(second))
	require.Len(t, s.Tables, 1)
	assert.Equal(t, s.Table("users").Columns[0].Type, "integer")
}
