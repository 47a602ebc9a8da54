package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTableSchema() *Schema {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "users",
		Columns: []*Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "email", Type: "text", IsUnique: true},
		},
	})
	s.AddTable(&Table{
		Name: "posts",
		Columns: []*Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "author_id", Type: "integer"},
		},
	})
	return s
}

func TestBuildManyToOne(t *testing.T) {
	s := twoTableSchema()
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "posts",
		SourceColumns: []string{"author_id"},
		TargetTable:   "users",
		TargetColumns: []string{"id"},
		OnDelete:      "CASCADE",
	})
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	require.Len(t, valid, 1)
	assert.Equal(t, valid[0].Cardinality, CardinalityManyToOne)
	assert.Equal(t, valid[0].OnDelete, "CASCADE")
	assert.Empty(t, b.Skipped)
	assert.Empty(t, b.Warnings)
}

func TestBuildOneToOne(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name:    "users",
		Columns: []*Column{{Name: "id", Type: "integer", IsPrimaryKey: true}},
	})
	s.AddTable(&Table{
		Name: "profiles",
		Columns: []*Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "user_id", Type: "integer", IsUnique: true},
		},
	})
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "profiles",
		SourceColumns: []string{"user_id"},
		TargetTable:   "users",
		TargetColumns: []string{"id"},
	})
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	require.Len(t, valid, 1)
	assert.Equal(t, valid[0].Cardinality, CardinalityOneToOne)
}

func TestBuildMissingTargetTableSkipped(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name:    "posts",
		Columns: []*Column{{Name: "author_id", Type: "integer"}},
	})
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "posts",
		SourceColumns: []string{"author_id"},
		TargetTable:   "users",
		TargetColumns: []string{"id"},
	})
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	assert.Empty(t, valid)
	require.Len(t, b.Skipped, 1)
	assert.Equal(t, b.Skipped[0].Reason, SkipMissingTargetTable)
}

func TestBuildSkipReasons(t *testing.T) {
	tests := []struct {
		name   string
		rel    *Relationship
		reason string
	}{
		{
			name: "missing source table",
			rel: &Relationship{
				SourceTable: "ghosts", SourceColumns: []string{"id"},
				TargetTable: "users", TargetColumns: []string{"id"},
			},
			reason: SkipMissingSourceTable,
		},
		{
			name: "missing source column",
			rel: &Relationship{
				SourceTable: "posts", SourceColumns: []string{"editor_id"},
				TargetTable: "users", TargetColumns: []string{"id"},
			},
			reason: SkipMissingSourceColumns,
		},
		{
			name: "missing target column",
			rel: &Relationship{
				SourceTable: "posts", SourceColumns: []string{"author_id"},
				TargetTable: "users", TargetColumns: []string{"uuid"},
			},
			reason: SkipMissingTargetColumns,
		},
		{
			name: "column count mismatch",
			rel: &Relationship{
				SourceTable: "posts", SourceColumns: []string{"author_id", "id"},
				TargetTable: "users", TargetColumns: []string{"id"},
			},
			reason: SkipColumnCountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := twoTableSchema()
			s.Relationships = append(s.Relationships, tt.rel)
			Canonicalize(s)

			b := NewRelationshipBuilder()
			valid := b.Build(s)

			assert.Empty(t, valid)
			require.Len(t, b.Skipped, 1)
			assert.Equal(t, b.Skipped[0].Reason, tt.reason)
		})
	}
}

func TestBuildResolvesOmittedTargetColumns(t *testing.T) {
	s := twoTableSchema()
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "posts",
		SourceColumns: []string{"author_id"},
		TargetTable:   "users",
	})
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	require.Len(t, valid, 1)
	assert.Equal(t, valid[0].TargetColumns, []string{"id"})
	assert.Equal(t, valid[0].Cardinality, CardinalityManyToOne)
}

func TestBuildDeduplicates(t *testing.T) {
	s := twoTableSchema()
	for i := 0; i < 2; i++ {
		s.Relationships = append(s.Relationships, &Relationship{
			SourceTable:   "posts",
			SourceColumns: []string{"author_id"},
			TargetTable:   "users",
			TargetColumns: []string{"id"},
		})
	}
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	assert.Len(t, valid, 1)
	assert.Len(t, b.Duplicates, 1)
}

func TestBuildWarnsWhenTargetNotUnique(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name:    "a",
		Columns: []*Column{{Name: "x", Type: "integer"}},
	})
	s.AddTable(&Table{
		Name:    "b",
		Columns: []*Column{{Name: "y", Type: "integer"}},
	})
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "a",
		SourceColumns: []string{"x"},
		TargetTable:   "b",
		TargetColumns: []string{"y"},
	})
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	require.Len(t, valid, 1)
	assert.Equal(t, valid[0].Cardinality, CardinalityManyToOne)
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], "unusual foreign key")
}

func TestBuildFlagsCompositeAndSelfReference(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "employees",
		Columns: []*Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "manager_id", Type: "integer"},
		},
	})
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "employees",
		SourceColumns: []string{"manager_id"},
		TargetTable:   "employees",
		TargetColumns: []string{"id"},
	})
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	require.Len(t, valid, 1)
	assert.True(t, valid[0].SelfReference)
	assert.False(t, valid[0].Composite)
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], "self-referencing")
}

func TestBuildUniqueConstraintSetMakesOneToOne(t *testing.T) {
	s := NewSchema()
	s.AddTable(&Table{
		Name: "users",
		Columns: []*Column{
			{Name: "tenant_id", Type: "integer"},
			{Name: "id", Type: "integer"},
		},
		Constraints: []*Constraint{
			{Type: ConstraintPrimaryKey, Columns: []string{"tenant_id", "id"}},
		},
	})
	s.AddTable(&Table{
		Name: "settings",
		Columns: []*Column{
			{Name: "tenant_id", Type: "integer"},
			{Name: "user_id", Type: "integer"},
		},
		Constraints: []*Constraint{
			{Type: ConstraintUnique, Columns: []string{"tenant_id", "user_id"}},
		},
	})
	s.Relationships = append(s.Relationships, &Relationship{
		SourceTable:   "settings",
		SourceColumns: []string{"tenant_id", "user_id"},
		TargetTable:   "users",
		TargetColumns: []string{"tenant_id", "id"},
	})
	Canonicalize(s)

	b := NewRelationshipBuilder()
	valid := b.Build(s)

	require.Len(t, valid, 1)
	assert.Equal(t, valid[0].Cardinality, CardinalityOneToOne)
	assert.True(t, valid[0].Composite)
}
