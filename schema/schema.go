// Package schema holds the intermediate representation shared by the parser,
// the transformation passes, and the DBML generator.
package schema

import "strings"

// Constraint types follow pg_catalog.pg_constraint.contype.
const (
	ConstraintPrimaryKey = "p"
	ConstraintUnique     = "u"
	ConstraintForeignKey = "f"
	ConstraintCheck      = "c"
	ConstraintExclude    = "x"
	ConstraintTrigger    = "t"
)

const (
	CardinalityOneToOne  = "one-to-one"
	CardinalityManyToOne = "many-to-one"
)

type Column struct {
	Name         string
	Type         string // as declared, rewritten in place by the type mapper
	OriginalType string // set when the type mapper changed Type
	NotNull      bool
	Default      string
	IsPrimaryKey bool
	IsUnique     bool
	Increment    bool // serial provenance

	// Derived from Type by Canonicalize.
	BaseType   string
	TypeParams string
	IsArray    bool
}

type Constraint struct {
	Name       string
	Type       string // contype letter
	Table      string
	Columns    []string
	Definition string

	// Foreign keys only
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
	OnUpdate          string
	Deferrable        bool

	// Check constraints only
	CheckExpression string
}

type Table struct {
	Name        string
	Columns     []*Column
	Constraints []*Constraint
	PrimaryKey  []string // derived
	Raw         string   // original statement text
	PartitionOf string
	PartitionBy string
	Inherits    []string
	Note        string
}

func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (t *Table) HasColumn(name string) bool {
	return t.Column(name) != nil
}

type Relationship struct {
	ConstraintName string
	SourceTable    string
	SourceColumns  []string
	TargetTable    string
	TargetColumns  []string
	Cardinality    string
	Composite      bool
	SelfReference  bool
	OnDelete       string
	OnUpdate       string
}

// Signature identifies a relationship regardless of constraint naming, so
// duplicates introduced by repeated ALTER TABLE statements collapse.
func (r *Relationship) Signature() string {
	return strings.Join([]string{
		r.SourceTable,
		strings.Join(r.SourceColumns, ","),
		r.TargetTable,
		strings.Join(r.TargetColumns, ","),
	}, "|")
}

type Index struct {
	Name       string
	Table      string
	Method     string
	Unique     bool
	Concurrent bool
	Columns    []string
	Definition string
}

type Enum struct {
	Name   string
	Values []string
}

type Sequence struct {
	Name       string
	Definition string
}

// ParseError records a statement that could not be understood. Parsing never
// aborts on bad input; the error is kept and the statement skipped.
type ParseError struct {
	Statement string
	Message   string
}

type Schema struct {
	Tables        []*Table
	Relationships []*Relationship
	Constraints   []*Constraint // standalone ALTER TABLE ADD CONSTRAINT, also attached to tables when possible
	Indexes       []*Index
	Enums         []*Enum
	Sequences     []*Sequence
	ParsingErrors []ParseError
}

func NewSchema() *Schema {
	return &Schema{}
}

func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// AddTable registers a table unless one with the same name exists already.
// The first definition wins; the duplicate is reported by the caller.
func (s *Schema) AddTable(t *Table) bool {
	if s.Table(t.Name) != nil {
		return false
	}
	s.Tables = append(s.Tables, t)
	return true
}

func (s *Schema) EnumNames() map[string]bool {
	names := make(map[string]bool, len(s.Enums))
	for _, e := range s.Enums {
		names[e.Name] = true
	}
	return names
}
