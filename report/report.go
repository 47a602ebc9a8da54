// Package report assembles everything the pipeline logged into a conversion
// report, and audits the logs for silent failures: schema elements that
// disappeared without any record saying why.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pg2dbml/pg2dbml/dbml"
	"github.com/pg2dbml/pg2dbml/preprocess"
	"github.com/pg2dbml/pg2dbml/schema"
)

// SilentFailure marks content lost with no corresponding log entry. A clean
// conversion has none; any entry is a bug in the pipeline, not in the input.
type SilentFailure struct {
	Kind        string
	Location    string
	Description string
	Severity    string
}

const (
	FailureTableLost        = "TABLE_LOST"
	FailureColumnLost       = "COLUMN_LOST"
	FailureRelationshipLost = "RELATIONSHIP_LOST"
)

// Report is the full account of one conversion run.
type Report struct {
	GeneratedAt time.Time
	Statistics  schema.Statistics
	Decisions   schema.Decisions

	DecisionRecords []schema.DecisionRecord
	Removals        []preprocess.Removal
	ParsingErrors   []schema.ParseError

	Transformations []schema.TypeTransformation
	TypeWarnings    []string

	DroppedConstraints  []schema.DroppedConstraint
	ModifiedConstraints []schema.ConstraintModification

	Features            []schema.Feature
	CompatibilityIssues []schema.Feature

	SkippedRelationships   []schema.SkippedRelationship
	DuplicateRelationships int
	Warnings               []string

	Validation     dbml.ValidationResult
	SilentFailures []SilentFailure
}

// Snapshot captures the parsed schema before the transformation passes so
// the audit can compare what went in against what came out.
type Snapshot struct {
	Tables            map[string][]string
	RelationshipCount int
}

func TakeSnapshot(s *schema.Schema) Snapshot {
	snap := Snapshot{Tables: make(map[string][]string, len(s.Tables))}
	for _, t := range s.Tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name)
		}
		snap.Tables[t.Name] = cols
	}
	snap.RelationshipCount = len(s.Relationships)
	return snap
}

// AuditSilentFailures compares the snapshot against the processed schema.
// Transformation passes may rewrite tables and columns but never delete
// them, and every rejected relationship must carry a skip record.
func (r *Report) AuditSilentFailures(before Snapshot, after *schema.Schema) {
	for name, cols := range before.Tables {
		t := after.Table(name)
		if t == nil {
			r.SilentFailures = append(r.SilentFailures, SilentFailure{
				Kind:        FailureTableLost,
				Location:    name,
				Description: fmt.Sprintf("table %s disappeared during transformation with no record", name),
				Severity:    schema.SeverityCritical,
			})
			continue
		}
		for _, col := range cols {
			if !t.HasColumn(col) {
				r.SilentFailures = append(r.SilentFailures, SilentFailure{
					Kind:        FailureColumnLost,
					Location:    name + "." + col,
					Description: fmt.Sprintf("column %s.%s disappeared during transformation with no record", name, col),
					Severity:    schema.SeverityCritical,
				})
			}
		}
	}

	accounted := len(after.Relationships) + len(r.SkippedRelationships) + r.DuplicateRelationships
	if accounted != before.RelationshipCount {
		r.SilentFailures = append(r.SilentFailures, SilentFailure{
			Kind:     FailureRelationshipLost,
			Location: "relationships",
			Description: fmt.Sprintf("%d relationships parsed but only %d accounted for (%d kept, %d skipped, %d duplicates)",
				before.RelationshipCount, accounted, len(after.Relationships), len(r.SkippedRelationships), r.DuplicateRelationships),
			Severity: schema.SeverityHigh,
		})
	}
}

// StrictViolations lists the conditions that fail a --strict run.
func (r *Report) StrictViolations() []string {
	var v []string
	if n := len(r.ParsingErrors); n > 0 {
		v = append(v, fmt.Sprintf("%d statements failed to parse", n))
	}
	critical := 0
	for _, f := range r.Features {
		if f.Severity == schema.SeverityCritical {
			critical++
		}
	}
	if critical > 0 {
		v = append(v, fmt.Sprintf("%d critical compatibility features detected", critical))
	}
	if n := len(r.SkippedRelationships); n > 0 {
		v = append(v, fmt.Sprintf("%d relationships skipped", n))
	}
	if !r.Validation.IsValid {
		v = append(v, fmt.Sprintf("output failed validation with %d errors", r.Validation.TotalErrors))
	}
	if n := len(r.SilentFailures); n > 0 {
		v = append(v, fmt.Sprintf("%d silent failures detected", n))
	}
	return v
}

// JSON renders the report for machine consumption.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the human-readable report.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Conversion Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- Tables: %d\n", r.Statistics.Tables)
	fmt.Fprintf(&b, "- Columns: %d\n", r.Statistics.Columns)
	fmt.Fprintf(&b, "- Relationships: %d\n", r.Statistics.Relationships)
	fmt.Fprintf(&b, "- Enums: %d\n", r.Statistics.Enums)
	fmt.Fprintf(&b, "- Indexes: %d\n", r.Statistics.Indexes)
	fmt.Fprintf(&b, "- Sequences: %d\n", r.Statistics.Sequences)
	fmt.Fprintf(&b, "- Statements removed: %d\n", len(r.Removals))
	fmt.Fprintf(&b, "- Parsing errors: %d\n", len(r.ParsingErrors))
	fmt.Fprintf(&b, "- Type transformations: %d\n", len(r.Transformations))
	fmt.Fprintf(&b, "- Constraints dropped: %d\n", len(r.DroppedConstraints))
	fmt.Fprintf(&b, "- Silent failures: %d\n\n", len(r.SilentFailures))

	fmt.Fprintf(&b, "## Decisions\n\n")
	fmt.Fprintf(&b, "| Decision | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s |\n", schema.DecisionArrayType, r.Decisions.ArrayType)
	fmt.Fprintf(&b, "| %s | %s |\n", schema.DecisionUnknownTypeFallback, r.Decisions.UnknownTypeFallback)
	fmt.Fprintf(&b, "| %s | %s |\n", schema.DecisionCheckConstraintAction, r.Decisions.CheckConstraintAction)
	fmt.Fprintf(&b, "| %s | %s |\n", schema.DecisionComplexIndexAction, r.Decisions.ComplexIndexAction)
	fmt.Fprintf(&b, "| %s | %s |\n", schema.DecisionInheritanceAction, r.Decisions.InheritanceAction)
	fmt.Fprintf(&b, "| %s | %s |\n\n", schema.DecisionPartitioningAction, r.Decisions.PartitioningAction)

	if len(r.Removals) > 0 {
		fmt.Fprintf(&b, "## Removed Statements (%d)\n\n", len(r.Removals))
		for _, rm := range r.Removals {
			fmt.Fprintf(&b, "- line %d [%s]: `%s` (%s)\n", rm.LineNumber, rm.Category, rm.Content, rm.Reason)
		}
		b.WriteString("\n")
	}

	if len(r.ParsingErrors) > 0 {
		fmt.Fprintf(&b, "## Parsing Errors (%d)\n\n", len(r.ParsingErrors))
		for _, pe := range r.ParsingErrors {
			fmt.Fprintf(&b, "- %s: `%s`\n", pe.Message, pe.Statement)
		}
		b.WriteString("\n")
	}

	if len(r.Transformations) > 0 {
		fmt.Fprintf(&b, "## Type Transformations (%d)\n\n", len(r.Transformations))
		byReason := map[string]int{}
		for _, tr := range r.Transformations {
			byReason[tr.Reason]++
		}
		for _, reason := range sortedKeys(byReason) {
			fmt.Fprintf(&b, "- %s: %d\n", reason, byReason[reason])
		}
		b.WriteString("\n")
		for _, tr := range r.Transformations {
			fmt.Fprintf(&b, "- %s.%s: `%s` -> `%s` (%s)\n", tr.Table, tr.Column, tr.OriginalType, tr.TransformedType, tr.Reason)
		}
		b.WriteString("\n")
	}

	if len(r.TypeWarnings) > 0 {
		fmt.Fprintf(&b, "## Type Warnings (%d)\n\n", len(r.TypeWarnings))
		for _, w := range r.TypeWarnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if len(r.DroppedConstraints) > 0 {
		fmt.Fprintf(&b, "## Dropped Constraints (%d)\n\n", len(r.DroppedConstraints))
		byType := map[string]int{}
		for _, d := range r.DroppedConstraints {
			byType[d.ConstraintType]++
		}
		for _, constraintType := range sortedKeys(byType) {
			fmt.Fprintf(&b, "- %s: %d\n", constraintType, byType[constraintType])
		}
		b.WriteString("\n")
		for _, d := range r.DroppedConstraints {
			location := d.Table
			if d.Name != "" {
				location += "." + d.Name
			}
			fmt.Fprintf(&b, "- %s [%s]", location, d.ConstraintType)
			if d.CheckExpression != "" {
				fmt.Fprintf(&b, " `%s`", d.CheckExpression)
			}
			fmt.Fprintf(&b, ": %s. %s.\n", d.Impact, d.Workaround)
		}
		b.WriteString("\n")
	}

	if len(r.ModifiedConstraints) > 0 {
		fmt.Fprintf(&b, "## Modified Constraints (%d)\n\n", len(r.ModifiedConstraints))
		for _, m := range r.ModifiedConstraints {
			fmt.Fprintf(&b, "- %s.%s [%s]\n", m.Table, m.Name, m.ModificationType)
		}
		b.WriteString("\n")
	}

	if len(r.CompatibilityIssues) > 0 {
		fmt.Fprintf(&b, "## Compatibility Issues (%d)\n\n", len(r.CompatibilityIssues))
		for _, f := range r.CompatibilityIssues {
			fmt.Fprintf(&b, "- [%s] %s at %s: %s. Impact: %s. Workaround: %s.\n",
				f.Severity, f.Type, f.Location, f.Description, f.Impact, f.Workaround)
		}
		b.WriteString("\n")
	}

	if len(r.SkippedRelationships) > 0 {
		fmt.Fprintf(&b, "## Skipped Relationships (%d)\n\n", len(r.SkippedRelationships))
		for _, sk := range r.SkippedRelationships {
			rel := sk.Relationship
			fmt.Fprintf(&b, "- %s(%s) -> %s(%s): %s\n",
				rel.SourceTable, strings.Join(rel.SourceColumns, ", "),
				rel.TargetTable, strings.Join(rel.TargetColumns, ", "),
				sk.Reason)
		}
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "## Warnings (%d)\n\n", len(r.Warnings))
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Validation\n\n")
	fmt.Fprintf(&b, "- Valid: %t\n", r.Validation.IsValid)
	fmt.Fprintf(&b, "- Errors: %d\n", r.Validation.TotalErrors)
	fmt.Fprintf(&b, "- Warnings: %d\n", r.Validation.TotalWarnings)
	for _, issue := range r.Validation.Errors {
		fmt.Fprintf(&b, "- [%s] line %d %s: %s\n", issue.Severity, issue.LineNumber, issue.ErrorType, issue.Message)
	}
	for _, issue := range r.Validation.Warnings {
		fmt.Fprintf(&b, "- [%s] line %d %s: %s\n", issue.Severity, issue.LineNumber, issue.ErrorType, issue.Message)
	}
	b.WriteString("\n")

	if len(r.SilentFailures) > 0 {
		fmt.Fprintf(&b, "## Silent Failures (%d)\n\n", len(r.SilentFailures))
		for _, f := range r.SilentFailures {
			fmt.Fprintf(&b, "- [%s] %s at %s: %s\n", f.Severity, f.Kind, f.Location, f.Description)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
