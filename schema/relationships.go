package schema

import (
	"fmt"
	"strings"
)

// Skip reasons recorded when a parsed foreign key cannot become a Ref.
const (
	SkipMissingSourceTable   = "MISSING_SOURCE_TABLE"
	SkipMissingTargetTable   = "MISSING_TARGET_TABLE"
	SkipMissingSourceColumns = "MISSING_SOURCE_COLUMNS"
	SkipMissingTargetColumns = "MISSING_TARGET_COLUMNS"
	SkipColumnCountMismatch  = "COLUMN_COUNT_MISMATCH"
)

// SkippedRelationship keeps the rejected relationship next to the reason so
// the report can show exactly what was lost.
type SkippedRelationship struct {
	Relationship *Relationship
	Reason       string
}

// RelationshipBuilder validates parsed foreign keys against the table model,
// classifies cardinality, and drops duplicates. Invalid relationships are
// never silently discarded.
type RelationshipBuilder struct {
	Skipped    []SkippedRelationship
	Duplicates []*Relationship
	Warnings   []string
}

func NewRelationshipBuilder() *RelationshipBuilder {
	return &RelationshipBuilder{}
}

// Build returns the validated relationships. Both endpoints must exist with
// every named column, and source and target must have the same width.
func (b *RelationshipBuilder) Build(s *Schema) []*Relationship {
	var valid []*Relationship
	seen := map[string]bool{}

	for _, r := range s.Relationships {
		if reason := b.validate(s, r); reason != "" {
			b.Skipped = append(b.Skipped, SkippedRelationship{Relationship: r, Reason: reason})
			continue
		}
		if seen[r.Signature()] {
			b.Duplicates = append(b.Duplicates, r)
			continue
		}
		seen[r.Signature()] = true

		b.classify(s, r)
		r.Composite = len(r.SourceColumns) > 1
		r.SelfReference = r.SourceTable == r.TargetTable
		if r.Composite {
			b.Warnings = append(b.Warnings,
				fmt.Sprintf("%s -> %s: composite relationship over (%s)",
					r.SourceTable, r.TargetTable, strings.Join(r.SourceColumns, ", ")))
		}
		if r.SelfReference {
			b.Warnings = append(b.Warnings,
				fmt.Sprintf("%s: self-referencing relationship on (%s)",
					r.SourceTable, strings.Join(r.SourceColumns, ", ")))
		}
		valid = append(valid, r)
	}
	return valid
}

func (b *RelationshipBuilder) validate(s *Schema, r *Relationship) string {
	src := s.Table(r.SourceTable)
	if src == nil {
		return SkipMissingSourceTable
	}
	tgt := s.Table(r.TargetTable)
	if tgt == nil {
		return SkipMissingTargetTable
	}
	// REFERENCES without a column list points at the target's primary key.
	if len(r.TargetColumns) == 0 && len(tgt.PrimaryKey) == len(r.SourceColumns) {
		r.TargetColumns = append([]string(nil), tgt.PrimaryKey...)
	}
	for _, col := range r.SourceColumns {
		if !src.HasColumn(col) {
			return SkipMissingSourceColumns
		}
	}
	for _, col := range r.TargetColumns {
		if !tgt.HasColumn(col) {
			return SkipMissingTargetColumns
		}
	}
	if len(r.SourceColumns) != len(r.TargetColumns) || len(r.SourceColumns) == 0 {
		return SkipColumnCountMismatch
	}
	return ""
}

// classify derives cardinality from uniqueness. A unique source column set
// makes the relationship one-to-one; a unique target alone is the ordinary
// many-to-one foreign key. Neither side unique is suspicious but still
// emitted as many-to-one.
func (b *RelationshipBuilder) classify(s *Schema, r *Relationship) {
	srcUnique := isUniqueColumnSet(s.Table(r.SourceTable), r.SourceColumns)
	tgtUnique := isUniqueColumnSet(s.Table(r.TargetTable), r.TargetColumns)

	switch {
	case srcUnique && tgtUnique:
		r.Cardinality = CardinalityOneToOne
	case tgtUnique:
		r.Cardinality = CardinalityManyToOne
	default:
		r.Cardinality = CardinalityManyToOne
		b.Warnings = append(b.Warnings,
			fmt.Sprintf("%s -> %s: unusual foreign key, referenced columns (%s) are not unique",
				r.SourceTable, r.TargetTable, strings.Join(r.TargetColumns, ", ")))
	}
}

// isUniqueColumnSet reports whether cols are guaranteed unique on t, either
// as the primary key, through a unique constraint over exactly this set, or
// as a single column carrying a unique flag.
func isUniqueColumnSet(t *Table, cols []string) bool {
	if t == nil || len(cols) == 0 {
		return false
	}
	if sameColumnSet(t.PrimaryKey, cols) {
		return true
	}
	for _, c := range t.Constraints {
		if (c.Type == ConstraintUnique || c.Type == ConstraintPrimaryKey) && sameColumnSet(c.Columns, cols) {
			return true
		}
	}
	if len(cols) == 1 {
		if col := t.Column(cols[0]); col != nil && (col.IsUnique || col.IsPrimaryKey) {
			return true
		}
	}
	return false
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, col := range a {
		set[col] = true
	}
	for _, col := range b {
		if !set[col] {
			return false
		}
	}
	return true
}
