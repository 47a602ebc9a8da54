package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity levels for detected features and report entries.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Feature flags one PostgreSQL construct that DBML cannot express directly.
type Feature struct {
	Type        string
	Severity    string
	Location    string
	Description string
	Impact      string
	Workaround  string
}

// featureSeverity fixes the severity per feature type. CRITICAL and HIGH
// features surface as compatibility issues.
var featureSeverity = map[string]string{
	"ARRAY_TYPE":               SeverityCritical,
	"MULTIRANGE_TYPE":          SeverityCritical,
	"TABLE_INHERITANCE":        SeverityCritical,
	"TABLE_PARTITIONING":       SeverityCritical,
	"EXCLUDE_CONSTRAINT":       SeverityCritical,
	"UUID_FUNCTION":            SeverityHigh,
	"GEOMETRIC_TYPE":           SeverityHigh,
	"NETWORK_TYPE":             SeverityHigh,
	"RANGE_TYPE":               SeverityHigh,
	"TEXT_SEARCH_TYPE":         SeverityHigh,
	"CHECK_CONSTRAINT":         SeverityHigh,
	"DEFERRABLE_CONSTRAINT":    SeverityHigh,
	"PARTIAL_INDEX":            SeverityHigh,
	"EXPRESSION_INDEX":         SeverityHigh,
	"OPERATOR_CLASS":           SeverityHigh,
	"COMPOSITE_FOREIGN_KEY":    SeverityHigh,
	"NEGATIVE_DEFAULT":         SeverityMedium,
	"POSTGRESQL_SPECIFIC_TYPE": SeverityMedium,
	"CONCURRENT_INDEX":         SeverityMedium,
	"CASCADE_ACTION":           SeverityMedium,
}

var (
	geometricTypes  = map[string]bool{"point": true, "line": true, "lseg": true, "box": true, "path": true, "polygon": true, "circle": true}
	networkTypes    = map[string]bool{"inet": true, "cidr": true, "macaddr": true, "macaddr8": true}
	rangeTypes      = map[string]bool{"int4range": true, "int8range": true, "numrange": true, "tsrange": true, "tstzrange": true, "daterange": true}
	textSearchTypes = map[string]bool{"tsvector": true, "tsquery": true}
	pgSpecificTypes = map[string]bool{"xml": true, "money": true, "bytea": true, "bit": true, "varbit": true}

	reUUIDDefault     = regexp.MustCompile(`(?i)(gen_random_uuid|uuid_generate_v\d)\s*\(`)
	reNegativeDefault = regexp.MustCompile(`^\s*'?-\d`)
	reDeferrable      = regexp.MustCompile(`(?i)\bDEFERRABLE\b`)
	rePartialIndex    = regexp.MustCompile(`(?i)\)\s*WHERE\s`)
	reExpressionIndex = regexp.MustCompile(`\([^)]*\(`)
	reOperatorClass   = regexp.MustCompile(`(?i)\b\w+_ops\b`)
	reInherits        = regexp.MustCompile(`(?i)\bINHERITS\s*\(`)
	rePartition       = regexp.MustCompile(`(?i)\bPARTITION\s+(BY|OF)\b`)
)

// DetectFeatures scans a parsed schema before any transformation runs, so
// original type names and constraint definitions are still visible.
func DetectFeatures(s *Schema) []Feature {
	var found []Feature
	add := func(featureType, location, description, impact, workaround string) {
		found = append(found, Feature{
			Type:        featureType,
			Severity:    featureSeverity[featureType],
			Location:    location,
			Description: description,
			Impact:      impact,
			Workaround:  workaround,
		})
	}

	for _, t := range s.Tables {
		for _, c := range t.Columns {
			loc := t.Name + "." + c.Name
			base, _, isArray := DecomposeType(c.Type)
			if isArray {
				add("ARRAY_TYPE", loc,
					fmt.Sprintf("column uses array type %s", c.Type),
					"Array element semantics are not modeled in DBML",
					"Array columns are emitted with quoted array syntax")
			}
			switch {
			case strings.Contains(base, "multirange"):
				add("MULTIRANGE_TYPE", loc,
					fmt.Sprintf("column uses multirange type %s", base),
					"Multirange semantics cannot be represented",
					"Column degrades to text")
			case geometricTypes[base]:
				add("GEOMETRIC_TYPE", loc,
					fmt.Sprintf("column uses geometric type %s", base),
					"Geometric operators are unavailable outside PostgreSQL",
					"Type name is kept as an opaque type")
			case networkTypes[base]:
				add("NETWORK_TYPE", loc,
					fmt.Sprintf("column uses network type %s", base),
					"Address validation is unavailable outside PostgreSQL",
					"Type name is kept as an opaque type")
			case rangeTypes[base]:
				add("RANGE_TYPE", loc,
					fmt.Sprintf("column uses range type %s", base),
					"Range operators are unavailable outside PostgreSQL",
					"Type name is kept as an opaque type")
			case textSearchTypes[base]:
				add("TEXT_SEARCH_TYPE", loc,
					fmt.Sprintf("column uses text search type %s", base),
					"Full text search configuration is lost",
					"Type name is kept as an opaque type")
			case pgSpecificTypes[base]:
				add("POSTGRESQL_SPECIFIC_TYPE", loc,
					fmt.Sprintf("column uses PostgreSQL-specific type %s", base),
					"Type has no portable equivalent",
					"Type name is kept as an opaque type")
			}
			if c.Default != "" {
				if reUUIDDefault.MatchString(c.Default) {
					add("UUID_FUNCTION", loc,
						fmt.Sprintf("column default calls %s", c.Default),
						"UUID generation function must exist in the target database",
						"Default is emitted as a backticked expression")
				}
				if reNegativeDefault.MatchString(c.Default) {
					add("NEGATIVE_DEFAULT", loc,
						fmt.Sprintf("column default is negative: %s", c.Default),
						"Unquoted negative defaults break DBML parsing",
						"Default is emitted as a quoted literal")
				}
			}
		}

		if len(t.Inherits) > 0 || reInherits.MatchString(t.Raw) {
			add("TABLE_INHERITANCE", t.Name,
				"table uses INHERITS",
				"Inheritance hierarchies cannot be represented",
				"Parent and child tables are emitted separately")
		}
		if t.PartitionOf != "" || t.PartitionBy != "" || rePartition.MatchString(t.Raw) {
			add("TABLE_PARTITIONING", t.Name,
				"table participates in partitioning",
				"Partition topology cannot be represented",
				"Partitions are emitted as plain tables")
		}

		for _, c := range t.Constraints {
			detectConstraintFeatures(add, t.Name, c)
		}
	}

	for _, c := range s.Constraints {
		if c.Table != "" && s.Table(c.Table) != nil {
			continue // already seen via the table
		}
		detectConstraintFeatures(add, c.Table, c)
	}

	for _, idx := range s.Indexes {
		loc := idx.Table + "." + idx.Name
		if rePartialIndex.MatchString(idx.Definition) {
			add("PARTIAL_INDEX", loc,
				"index has a WHERE clause",
				"Partial index predicate is lost",
				"Index is simplified to its column list")
		}
		if reExpressionIndex.MatchString(idx.Definition) {
			add("EXPRESSION_INDEX", loc,
				"index is built over an expression",
				"Expression cannot be represented in DBML",
				"Index is simplified or dropped per the complex index decision")
		}
		if reOperatorClass.MatchString(idx.Definition) {
			add("OPERATOR_CLASS", loc,
				"index names an operator class",
				"Operator class selection is lost",
				"Index is emitted without the operator class")
		}
		if idx.Concurrent {
			add("CONCURRENT_INDEX", loc,
				"index was created CONCURRENTLY",
				"Build strategy is not part of the schema model",
				"Index is treated as a plain index")
		}
	}

	for _, r := range s.Relationships {
		loc := r.SourceTable + " -> " + r.TargetTable
		if len(r.SourceColumns) > 1 {
			add("COMPOSITE_FOREIGN_KEY", loc,
				fmt.Sprintf("foreign key spans columns (%s)", strings.Join(r.SourceColumns, ", ")),
				"Composite references render as column tuples",
				"Reference is emitted with tuple syntax")
		}
		if strings.EqualFold(r.OnDelete, "CASCADE") || strings.EqualFold(r.OnUpdate, "CASCADE") {
			add("CASCADE_ACTION", loc,
				"foreign key cascades",
				"Cascade behavior is invisible in rendered diagrams",
				"Action is kept in the Ref settings")
		}
	}

	return found
}

func detectConstraintFeatures(add func(t, l, d, i, w string), table string, c *Constraint) {
	loc := table
	if c.Name != "" {
		loc = table + "." + c.Name
	}
	switch c.Type {
	case ConstraintCheck:
		add("CHECK_CONSTRAINT", loc,
			fmt.Sprintf("CHECK constraint: %s", c.CheckExpression),
			"Business logic validation lost",
			"Implement validation in application layer")
	case ConstraintExclude:
		add("EXCLUDE_CONSTRAINT", loc,
			"EXCLUDE constraint",
			"Exclusion rules cannot be represented",
			"Constraint is dropped with a report entry")
	}
	if c.Deferrable || reDeferrable.MatchString(c.Definition) {
		add("DEFERRABLE_CONSTRAINT", loc,
			"constraint is DEFERRABLE",
			"Deferral timing is lost",
			"Constraint is kept without the DEFERRABLE clause")
	}
}

// CompatibilityIssues filters the detected features down to the ones severe
// enough to need a human decision or a report callout.
func CompatibilityIssues(features []Feature) []Feature {
	var issues []Feature
	for _, f := range features {
		if f.Severity == SeverityHigh || f.Severity == SeverityCritical {
			issues = append(issues, f)
		}
	}
	return issues
}
