package schema

import "strings"

// Statistics summarizes a schema for the conversion report.
type Statistics struct {
	Tables        int
	Columns       int
	Relationships int
	Constraints   int
	Indexes       int
	Enums         int
	Sequences     int

	ArrayColumns      int
	NullableColumns   int
	PrimaryKeyColumns int

	CompositeRelationships       int
	SelfReferencingRelationships int
}

// Canonicalize fills the derived fields of a parsed schema: per-column type
// decomposition, table primary key sets, and composite/self-reference flags
// on relationships. It is idempotent.
func Canonicalize(s *Schema) *Schema {
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			c.BaseType, c.TypeParams, c.IsArray = DecomposeType(c.Type)
		}
		t.PrimaryKey = primaryKeyColumns(t)
	}
	for _, r := range s.Relationships {
		r.Composite = len(r.SourceColumns) > 1
		r.SelfReference = r.SourceTable == r.TargetTable
	}
	return s
}

func primaryKeyColumns(t *Table) []string {
	var pk []string
	seen := map[string]bool{}
	for _, c := range t.Constraints {
		if c.Type != ConstraintPrimaryKey {
			continue
		}
		for _, col := range c.Columns {
			if !seen[col] {
				seen[col] = true
				pk = append(pk, col)
			}
		}
	}
	for _, c := range t.Columns {
		if c.IsPrimaryKey && !seen[c.Name] {
			seen[c.Name] = true
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// DecomposeType splits a declared column type into its base name, parameter
// list, and array flag. Both the quoted form produced by the preprocessor
// ("text []") and the raw form (text[]) are understood.
func DecomposeType(declared string) (base, params string, isArray bool) {
	s := strings.TrimSpace(declared)
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(strings.Trim(s, `"`))
	}
	if strings.HasSuffix(s, "[]") {
		isArray = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "[]"))
	}
	if open := strings.Index(s, "("); open >= 0 {
		if close := strings.LastIndex(s, ")"); close > open {
			params = strings.TrimSpace(s[open+1 : close])
			s = strings.TrimSpace(s[:open])
		}
	}
	base = strings.ToLower(s)
	return base, params, isArray
}

// Stats counts the schema's contents. Canonicalize should run first so the
// derived fields are populated.
func Stats(s *Schema) Statistics {
	var st Statistics
	st.Tables = len(s.Tables)
	st.Relationships = len(s.Relationships)
	st.Indexes = len(s.Indexes)
	st.Enums = len(s.Enums)
	st.Sequences = len(s.Sequences)
	for _, t := range s.Tables {
		st.Columns += len(t.Columns)
		st.Constraints += len(t.Constraints)
		for _, c := range t.Columns {
			if c.IsArray {
				st.ArrayColumns++
			}
			if !c.NotNull && !c.IsPrimaryKey {
				st.NullableColumns++
			}
			if c.IsPrimaryKey {
				st.PrimaryKeyColumns++
			}
		}
	}
	for _, r := range s.Relationships {
		if r.Composite {
			st.CompositeRelationships++
		}
		if r.SelfReference {
			st.SelfReferencingRelationships++
		}
	}
	return st
}
