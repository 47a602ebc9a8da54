package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// DroppedConstraint documents a constraint removed from the model. Every
// drop must leave one of these behind; the silent failure audit counts them.
type DroppedConstraint struct {
	Table           string
	Name            string
	ConstraintType  string
	CheckExpression string
	Impact          string
	Workaround      string
	Reason          string
}

// ConstraintModification documents a constraint kept in altered form.
type ConstraintModification struct {
	Table            string
	Name             string
	ModificationType string
	Before           string
	After            string
}

var reDeferrableClause = regexp.MustCompile(`(?i)\s+DEFERRABLE(\s+INITIALLY\s+(DEFERRED|IMMEDIATE))?\s*`)

// ConstraintHandler decides the fate of every parsed constraint. Primary
// keys and unique constraints survive as column markers, foreign keys feed
// the relationship builder, and everything else is dropped with a record.
type ConstraintHandler struct {
	decisions Decisions

	Dropped  []DroppedConstraint
	Modified []ConstraintModification
	Warnings []string
}

func NewConstraintHandler(decisions Decisions) *ConstraintHandler {
	return &ConstraintHandler{decisions: decisions}
}

// ProcessSchema filters table constraints in place and back-propagates the
// survivors onto the column flags the generator reads.
func (h *ConstraintHandler) ProcessSchema(s *Schema) {
	for _, t := range s.Tables {
		kept := t.Constraints[:0]
		for _, c := range t.Constraints {
			if h.keep(t, c) {
				kept = append(kept, c)
			}
		}
		t.Constraints = kept
		h.propagate(t)
		t.PrimaryKey = primaryKeyColumns(t)
	}

	// Standalone constraints whose table never parsed still need a verdict,
	// otherwise they would vanish without a trace.
	kept := s.Constraints[:0]
	for _, c := range s.Constraints {
		if t := s.Table(c.Table); t != nil {
			continue // handled through the table above
		}
		placeholder := &Table{Name: c.Table}
		if h.keep(placeholder, c) {
			kept = append(kept, c)
		}
	}
	s.Constraints = kept
}

func (h *ConstraintHandler) keep(t *Table, c *Constraint) bool {
	// EXCLUDE constraints sometimes arrive unclassified when the dump spells
	// them inside a named constraint body.
	if c.Type == "" && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(c.Definition)), "EXCLUDE") {
		c.Type = ConstraintExclude
	}

	switch c.Type {
	case ConstraintPrimaryKey, ConstraintUnique:
		return true

	case ConstraintForeignKey:
		if reDeferrableClause.MatchString(c.Definition) {
			before := c.Definition
			c.Definition = strings.TrimSpace(reDeferrableClause.ReplaceAllString(c.Definition, " "))
			c.Deferrable = true
			h.Modified = append(h.Modified, ConstraintModification{
				Table:            t.Name,
				Name:             c.Name,
				ModificationType: "FOREIGN_KEY_DEFERRABLE",
				Before:           before,
				After:            c.Definition,
			})
		}
		if len(c.Columns) > 1 {
			h.Warnings = append(h.Warnings,
				fmt.Sprintf("%s.%s: composite foreign key over (%s)", t.Name, c.Name, strings.Join(c.Columns, ", ")))
		}
		return true

	case ConstraintCheck:
		h.dropCheck(t, c)
		return false

	case ConstraintExclude, ConstraintTrigger:
		h.drop(t, c, "Constraint type has no DBML equivalent")
		return false

	default:
		h.drop(t, c, fmt.Sprintf("Unrecognized constraint type %q", c.Type))
		return false
	}
}

func (h *ConstraintHandler) dropCheck(t *Table, c *Constraint) {
	h.Dropped = append(h.Dropped, DroppedConstraint{
		Table:           t.Name,
		Name:            c.Name,
		ConstraintType:  "CHECK",
		CheckExpression: c.CheckExpression,
		Impact:          "Business logic validation lost",
		Workaround:      "Implement validation in application layer",
		Reason:          "CHECK constraints cannot be represented in DBML",
	})
	if h.decisions.CheckConstraintAction == CheckConstraintComment {
		note := fmt.Sprintf("CHECK: %s", c.CheckExpression)
		if c.Name != "" {
			note = fmt.Sprintf("CHECK %s: %s", c.Name, c.CheckExpression)
		}
		if t.Note != "" {
			t.Note += "\n"
		}
		t.Note += note
	}
}

func (h *ConstraintHandler) drop(t *Table, c *Constraint, reason string) {
	constraintType := strings.ToUpper(c.Type)
	switch c.Type {
	case ConstraintExclude:
		constraintType = "EXCLUDE"
	case ConstraintTrigger:
		constraintType = "TRIGGER"
	}
	h.Dropped = append(h.Dropped, DroppedConstraint{
		Table:          t.Name,
		Name:           c.Name,
		ConstraintType: constraintType,
		Impact:         "Constraint enforcement lost",
		Workaround:     "Recreate the constraint when applying the schema to PostgreSQL",
		Reason:         reason,
	})
}

// propagate moves surviving primary key and unique constraints onto column
// flags. A single-column primary key also marks the column unique.
func (h *ConstraintHandler) propagate(t *Table) {
	for _, c := range t.Constraints {
		switch c.Type {
		case ConstraintPrimaryKey:
			for _, name := range c.Columns {
				col := t.Column(name)
				if col == nil {
					h.Warnings = append(h.Warnings,
						fmt.Sprintf("%s: primary key names unknown column %s", t.Name, name))
					continue
				}
				col.IsPrimaryKey = true
				col.NotNull = true
				if len(c.Columns) == 1 {
					col.IsUnique = true
				}
			}
		case ConstraintUnique:
			if len(c.Columns) != 1 {
				continue
			}
			col := t.Column(c.Columns[0])
			if col == nil {
				h.Warnings = append(h.Warnings,
					fmt.Sprintf("%s: unique constraint names unknown column %s", t.Name, c.Columns[0]))
				continue
			}
			col.IsUnique = true
		}
	}
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			col.NotNull = true
		}
	}
}

// DroppedByType groups the drop records for the report.
func (h *ConstraintHandler) DroppedByType() map[string]int {
	byType := map[string]int{}
	for _, d := range h.Dropped {
		byType[d.ConstraintType]++
	}
	return byType
}
