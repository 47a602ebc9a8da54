// Package dbml renders the processed schema as DBML text and validates the
// result against the syntax rules dbdiagram.io actually enforces.
package dbml

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pg2dbml/pg2dbml/schema"
)

// headerPalette is cycled in table order so diagrams get stable colors.
var headerPalette = []string{
	"#1E69FD", "#24BAB1", "#D65C5C", "#8E44AD",
	"#F39C12", "#16A085", "#2C3E50", "#C0392B",
}

var dbmlKeywords = map[string]bool{
	"table": true, "ref": true, "enum": true, "project": true,
	"note": true, "indexes": true, "as": true, "type": true,
}

var (
	reBareIdent  = regexp.MustCompile(`^[A-Za-z_]\w*$`)
	reNumericLit = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	reFuncCall   = regexp.MustCompile(`^[\w.]+\(.*\)$`)
	reLeadIdent  = regexp.MustCompile(`^"?([A-Za-z_]\w*)"?`)
)

var bareTimeKeywords = map[string]bool{
	"current_timestamp": true, "current_date": true, "current_time": true,
	"localtimestamp": true, "localtime": true, "now": true,
}

type Generator struct {
	decisions schema.Decisions
}

func NewGenerator(decisions schema.Decisions) *Generator {
	return &Generator{decisions: decisions}
}

// Generate renders the project header, enums, tables, and refs, in that
// order. The output always parses back through Validate without errors for
// any schema the pipeline produces.
func (g *Generator) Generate(s *schema.Schema) string {
	var b strings.Builder

	b.WriteString("Project postgresql_schema {\n")
	b.WriteString("  database_type: 'PostgreSQL'\n")
	b.WriteString("  Note: '''\n")
	b.WriteString("  Converted from a PostgreSQL schema dump.\n")
	b.WriteString("  CHECK constraints, functions, and other procedural objects are not included.\n")
	b.WriteString("  '''\n")
	b.WriteString("}\n")

	for _, e := range s.Enums {
		b.WriteString("\n")
		g.writeEnum(&b, e)
	}
	for i, t := range s.Tables {
		b.WriteString("\n")
		g.writeTable(&b, t, s, headerPalette[i%len(headerPalette)])
	}
	if len(s.Relationships) > 0 {
		b.WriteString("\n")
		for _, r := range s.Relationships {
			b.WriteString(formatRef(r))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (g *Generator) writeEnum(b *strings.Builder, e *schema.Enum) {
	fmt.Fprintf(b, "Enum %s {\n", quoteIdent(e.Name))
	for _, v := range e.Values {
		if reBareIdent.MatchString(v) {
			fmt.Fprintf(b, "  %s\n", v)
		} else {
			fmt.Fprintf(b, "  %q\n", v)
		}
	}
	b.WriteString("}\n")
}

func (g *Generator) writeTable(b *strings.Builder, t *schema.Table, s *schema.Schema, color string) {
	fmt.Fprintf(b, "Table %s [headercolor: %s] {\n", quoteIdent(t.Name), color)
	for _, c := range t.Columns {
		b.WriteString(formatColumn(c))
		b.WriteString("\n")
	}
	g.writeIndexes(b, t, s)
	if t.Note != "" {
		b.WriteString("\n  Note: '''\n")
		for _, line := range strings.Split(t.Note, "\n") {
			fmt.Fprintf(b, "  %s\n", line)
		}
		b.WriteString("  '''\n")
	}
	b.WriteString("}\n")
}

// formatColumn renders one column line. Attribute order is fixed: pk,
// increment, unique, not null, default. A primary key column never repeats
// the not null and unique markers it implies.
func formatColumn(c *schema.Column) string {
	var attrs []string
	nextvalDefault := strings.HasPrefix(c.Default, "nextval(")

	if c.IsPrimaryKey {
		attrs = append(attrs, "pk")
	}
	if c.Increment || nextvalDefault {
		attrs = append(attrs, "increment")
	}
	if c.IsUnique && !c.IsPrimaryKey {
		attrs = append(attrs, "unique")
	}
	if c.NotNull && !c.IsPrimaryKey {
		attrs = append(attrs, "not null")
	}
	if !nextvalDefault {
		if def, ok := formatDefault(c.Default); ok {
			attrs = append(attrs, "default: "+def)
		}
	}

	line := fmt.Sprintf("  %s %s", quoteIdent(c.Name), c.Type)
	if len(attrs) > 0 {
		line += fmt.Sprintf(" [%s]", strings.Join(attrs, ", "))
	}
	return line
}

// formatDefault normalizes a parsed default expression into DBML: function
// calls go into backticks, negative numbers and string literals are quoted,
// plain numbers and booleans stay bare. NULL defaults are omitted.
func formatDefault(def string) (string, bool) {
	def = strings.TrimSpace(stripCast(def))
	if def == "" {
		return "", false
	}
	if strings.HasPrefix(def, "`") {
		return def, true
	}
	lower := strings.ToLower(def)
	if lower == "null" {
		return "", false
	}
	if reNumericLit.MatchString(def) {
		if strings.HasPrefix(def, "-") {
			return "'" + def + "'", true
		}
		return def, true
	}
	if lower == "true" || lower == "false" {
		return lower, true
	}
	if strings.HasPrefix(def, "'") && strings.HasSuffix(def, "'") && len(def) >= 2 {
		return def, true
	}
	if reFuncCall.MatchString(def) || bareTimeKeywords[lower] {
		return "`" + def + "`", true
	}
	return "'" + def + "'", true
}

// stripCast removes a trailing ::type cast at the top nesting level, so
// '{}'::jsonb renders as '{}' while nextval('s'::regclass) stays intact.
func stripCast(def string) string {
	depth := 0
	inQuote := false
	for i := 0; i < len(def); i++ {
		switch {
		case def[i] == '\'':
			inQuote = !inQuote
		case inQuote:
		case def[i] == '(':
			depth++
		case def[i] == ')':
			depth--
		case def[i] == ':' && depth == 0 && i+1 < len(def) && def[i+1] == ':':
			return def[:i]
		}
	}
	return def
}

// writeIndexes renders the table's secondary indexes. Complex indexes follow
// the complex index decision: simplified to their plain columns, or dropped.
func (g *Generator) writeIndexes(b *strings.Builder, t *schema.Table, s *schema.Schema) {
	var lines []string
	for _, idx := range s.Indexes {
		if idx.Table != t.Name {
			continue
		}
		cols, reducible := reduceIndexColumns(idx)
		if isComplexIndex(idx) {
			if g.decisions.ComplexIndexAction == schema.ComplexIndexDrop || !reducible {
				continue
			}
		} else if !reducible {
			continue
		}
		lines = append(lines, formatIndexLine(idx, cols))
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n  indexes {\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("  }\n")
}

func formatIndexLine(idx *schema.Index, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	var target string
	if len(quoted) == 1 {
		target = quoted[0]
	} else {
		target = "(" + strings.Join(quoted, ", ") + ")"
	}
	var settings []string
	if idx.Unique {
		settings = append(settings, "unique")
	}
	if idx.Name != "" {
		settings = append(settings, fmt.Sprintf("name: '%s'", idx.Name))
	}
	if len(settings) == 0 {
		return "    " + target
	}
	return fmt.Sprintf("    %s [%s]", target, strings.Join(settings, ", "))
}

// reduceIndexColumns strips ordering and operator class decorations, leaving
// bare column names. Expression parts are dropped; an index with no plain
// column left is not representable.
func reduceIndexColumns(idx *schema.Index) ([]string, bool) {
	var cols []string
	for _, part := range idx.Columns {
		part = strings.TrimSpace(part)
		if strings.ContainsAny(part, "()") {
			continue
		}
		if strings.HasPrefix(part, `"`) {
			if end := strings.Index(part[1:], `"`); end >= 0 {
				cols = append(cols, part[1:1+end])
				continue
			}
		}
		m := reLeadIdent.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		cols = append(cols, m[1])
	}
	return cols, len(cols) > 0
}

func isComplexIndex(idx *schema.Index) bool {
	def := idx.Definition
	if regexp.MustCompile(`(?i)\)\s*WHERE\s`).MatchString(def) {
		return true
	}
	for _, part := range idx.Columns {
		if strings.ContainsAny(part, "()") || regexp.MustCompile(`(?i)\b\w+_ops\b`).MatchString(part) {
			return true
		}
	}
	return false
}

// formatRef renders one relationship line. NO ACTION adds nothing; other
// referential actions are lowercased settings.
func formatRef(r *schema.Relationship) string {
	op := ">"
	if r.Cardinality == schema.CardinalityOneToOne {
		op = "-"
	}
	line := fmt.Sprintf("Ref: %s %s %s",
		formatEndpoint(r.SourceTable, r.SourceColumns),
		op,
		formatEndpoint(r.TargetTable, r.TargetColumns))

	var settings []string
	if action, ok := refAction(r.OnDelete); ok {
		settings = append(settings, "delete: "+action)
	}
	if action, ok := refAction(r.OnUpdate); ok {
		settings = append(settings, "update: "+action)
	}
	if len(settings) > 0 {
		line += fmt.Sprintf(" [%s]", strings.Join(settings, ", "))
	}
	return line
}

func formatEndpoint(table string, cols []string) string {
	if len(cols) == 1 {
		return quoteIdent(table) + "." + quoteIdent(cols[0])
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("%s.(%s)", quoteIdent(table), strings.Join(quoted, ", "))
}

func refAction(action string) (string, bool) {
	if action == "" || strings.EqualFold(action, "NO ACTION") {
		return "", false
	}
	return strings.ToLower(action), true
}

func quoteIdent(name string) string {
	if reBareIdent.MatchString(name) && !dbmlKeywords[strings.ToLower(name)] {
		return name
	}
	return `"` + name + `"`
}
