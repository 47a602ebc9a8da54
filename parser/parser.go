// Package parser turns cleaned dump text into the intermediate schema. It is
// a structural parser: statements are segmented with pg_query's splitter,
// classified by their leading keywords, and mined with balanced-parenthesis
// scanning. A statement that cannot be understood is recorded and skipped;
// parsing never aborts.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"

	"github.com/pg2dbml/pg2dbml/schema"
)

// ident matches an optionally schema-qualified, optionally quoted identifier.
const ident = `(?:"[^"]+"|[\w$]+)(?:\.(?:"[^"]+"|[\w$]+))?`

var (
	reCreateTable = regexp.MustCompile(`(?is)^CREATE\s+(?:UNLOGGED\s+|TEMPORARY\s+|TEMP\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(` + ident + `)`)
	reAlterTable  = regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+(?:ONLY\s+)?(` + ident + `)\s+(.*)$`)
	reCreateIndex = regexp.MustCompile(`(?is)^CREATE\s+(UNIQUE\s+)?INDEX\s+(CONCURRENTLY\s+)?(?:IF\s+NOT\s+EXISTS\s+)?(` + ident + `)?\s*ON\s+(?:ONLY\s+)?(` + ident + `)(?:\s+USING\s+(\w+))?`)
	reCreateSeq   = regexp.MustCompile(`(?is)^CREATE\s+SEQUENCE\s+(?:IF\s+NOT\s+EXISTS\s+)?(` + ident + `)`)
	reCreateEnum  = regexp.MustCompile(`(?is)^CREATE\s+TYPE\s+(` + ident + `)\s+AS\s+ENUM\s*\(`)

	rePartitionOf = regexp.MustCompile(`(?is)\bPARTITION\s+OF\s+(` + ident + `)`)
	rePartitionBy = regexp.MustCompile(`(?is)\bPARTITION\s+BY\s+(RANGE|LIST|HASH)\b`)
	reInherits    = regexp.MustCompile(`(?is)\bINHERITS\s*\(([^)]*)\)`)

	reAddConstraint = regexp.MustCompile(`(?is)^ADD\s+CONSTRAINT\s+("[^"]+"|[\w$]+)\s+(.*)$`)
	reAddColumn     = regexp.MustCompile(`(?is)^ADD\s+(?:COLUMN\s+)?(?:IF\s+NOT\s+EXISTS\s+)?(.*)$`)

	rePrimaryKey = regexp.MustCompile(`(?is)^PRIMARY\s+KEY\s*\(([^)]*)\)`)
	reUniqueCons = regexp.MustCompile(`(?is)^UNIQUE\s*\(([^)]*)\)`)
	reForeignKey = regexp.MustCompile(`(?is)^FOREIGN\s+KEY\s*\(([^)]*)\)\s*REFERENCES\s+(` + ident + `)\s*(?:\(([^)]*)\))?`)
	reOnDelete   = regexp.MustCompile(`(?i)ON\s+DELETE\s+(CASCADE|RESTRICT|SET\s+NULL|SET\s+DEFAULT|NO\s+ACTION)`)
	reOnUpdate   = regexp.MustCompile(`(?i)ON\s+UPDATE\s+(CASCADE|RESTRICT|SET\s+NULL|SET\s+DEFAULT|NO\s+ACTION)`)

	reColumnName = regexp.MustCompile(`^\s*("[^"]+"|[\w$]+)`)
	reColumnType = regexp.MustCompile(`^\s*((?:"[^"]*"|[\w]+)(?:\.(?:"[^"]*"|[\w]+))?(?:\s*\([^)]*\))?(?:\s*\[\s*\])?)`)
	reNotNull    = regexp.MustCompile(`(?i)\bNOT\s+NULL\b`)
	reInlinePK   = regexp.MustCompile(`(?i)\bPRIMARY\s+KEY\b`)
	reInlineUniq = regexp.MustCompile(`(?i)\bUNIQUE\b`)
	reDefault    = regexp.MustCompile(`(?i)\bDEFAULT\s+`)
	reCheck      = regexp.MustCompile(`(?i)\bCHECK\s*\(`)
	reReferences = regexp.MustCompile(`(?i)\bREFERENCES\s+(` + ident + `)\s*(?:\(([^)]*)\))?`)
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts every recognized statement into the schema. Statements
// outside the supported set (views, extensions, triggers) are skipped;
// malformed ones land in ParsingErrors.
func (p *Parser) Parse(sql string) *schema.Schema {
	s := schema.NewSchema()
	for _, stmt := range splitStatements(sql) {
		stmt = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
		if stmt == "" {
			continue
		}
		if err := p.parseStatement(stmt, s); err != nil {
			s.ParsingErrors = append(s.ParsingErrors, schema.ParseError{
				Statement: excerpt(stmt),
				Message:   err.Error(),
			})
		}
	}
	return s
}

func (p *Parser) parseStatement(stmt string, s *schema.Schema) error {
	switch {
	case reCreateTable.MatchString(stmt):
		return p.parseCreateTable(stmt, s)
	case reAlterTable.MatchString(stmt):
		return p.parseAlterTable(stmt, s)
	case reCreateIndex.MatchString(stmt):
		return p.parseCreateIndex(stmt, s)
	case reCreateEnum.MatchString(stmt):
		return p.parseCreateEnum(stmt, s)
	case reCreateSeq.MatchString(stmt):
		return p.parseCreateSequence(stmt, s)
	}
	// Views, extensions, triggers and the like carry no table structure.
	return nil
}

// splitStatements prefers pg_query's parser-accurate splitter, falls back to
// its scanner when the dialect rewrites upset the parser, and finally to a
// quote-aware manual split so bad input still yields per-statement isolation.
func splitStatements(sql string) []string {
	if stmts, err := pgquery.SplitWithParser(sql, true); err == nil {
		return stmts
	}
	if stmts, err := pgquery.SplitWithScanner(sql, true); err == nil {
		return stmts
	}
	return manualSplit(sql)
}

func manualSplit(sql string) []string {
	var stmts []string
	var inSingle, inDouble bool
	start := 0
	for i := 0; i < len(sql); i++ {
		switch {
		case sql[i] == '\'' && !inDouble:
			inSingle = !inSingle
		case sql[i] == '"' && !inSingle:
			inDouble = !inDouble
		case sql[i] == ';' && !inSingle && !inDouble:
			stmts = append(stmts, sql[start:i])
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(sql[start:]); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}

func (p *Parser) parseCreateTable(stmt string, s *schema.Schema) error {
	m := reCreateTable.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("unrecognized CREATE TABLE statement")
	}
	t := &schema.Table{Name: normalizeIdent(m[1]), Raw: stmt}

	if pm := rePartitionOf.FindStringSubmatch(stmt); pm != nil {
		// Partition children usually have no column list of their own; the
		// first parenthesis belongs to the FOR VALUES bound.
		t.PartitionOf = normalizeIdent(pm[1])
		if !s.AddTable(t) {
			return fmt.Errorf("duplicate definition of table %s, first definition wins", t.Name)
		}
		return nil
	}
	if im := reInherits.FindStringSubmatch(stmt); im != nil {
		for _, parent := range strings.Split(im[1], ",") {
			t.Inherits = append(t.Inherits, normalizeIdent(parent))
		}
	}
	if pb := rePartitionBy.FindStringSubmatch(stmt); pb != nil {
		t.PartitionBy = strings.ToUpper(pb[1])
	}

	body, ok := parenBody(stmt)
	if !ok {
		return fmt.Errorf("CREATE TABLE %s has no column list", t.Name)
	}
	for _, frag := range splitFragments(body) {
		if err := p.parseFragment(frag, t, s); err != nil {
			return fmt.Errorf("table %s: %s", t.Name, err)
		}
	}
	if !s.AddTable(t) {
		return fmt.Errorf("duplicate definition of table %s, first definition wins", t.Name)
	}
	return nil
}

var reConstraintFrag = regexp.MustCompile(`(?is)^CONSTRAINT\s+("[^"]+"|[\w$]+)\s+(.*)$`)

func (p *Parser) parseFragment(frag string, t *schema.Table, s *schema.Schema) error {
	frag = strings.TrimSpace(frag)
	if frag == "" {
		return nil
	}
	upper := strings.ToUpper(frag)

	if m := reConstraintFrag.FindStringSubmatch(frag); m != nil {
		return p.addConstraint(normalizeIdent(m[1]), strings.TrimSpace(m[2]), t.Name, t, s)
	}
	switch {
	case strings.HasPrefix(upper, "PRIMARY KEY"),
		strings.HasPrefix(upper, "FOREIGN KEY"),
		strings.HasPrefix(upper, "UNIQUE ("), strings.HasPrefix(upper, "UNIQUE("),
		strings.HasPrefix(upper, "CHECK"),
		strings.HasPrefix(upper, "EXCLUDE"):
		return p.addConstraint("", frag, t.Name, t, s)
	case strings.HasPrefix(upper, "LIKE ") || strings.HasPrefix(upper, "FOR VALUES"):
		return nil
	}
	return p.parseColumn(frag, t, s)
}

// addConstraint parses a constraint body, attaches it to the table when one
// is given, and registers the relationship for foreign keys.
func (p *Parser) addConstraint(name, body, tableName string, t *schema.Table, s *schema.Schema) error {
	c, rel, err := parseConstraintBody(name, body, tableName)
	if err != nil {
		return err
	}
	if t != nil {
		t.Constraints = append(t.Constraints, c)
	} else {
		s.Constraints = append(s.Constraints, c)
	}
	if rel != nil {
		s.Relationships = append(s.Relationships, rel)
	}
	return nil
}

func parseConstraintBody(name, body, tableName string) (*schema.Constraint, *schema.Relationship, error) {
	c := &schema.Constraint{Name: name, Table: tableName, Definition: body}
	upper := strings.ToUpper(body)

	switch {
	case rePrimaryKey.MatchString(body):
		m := rePrimaryKey.FindStringSubmatch(body)
		c.Type = schema.ConstraintPrimaryKey
		c.Columns = splitIdentList(m[1])

	case reUniqueCons.MatchString(body):
		m := reUniqueCons.FindStringSubmatch(body)
		c.Type = schema.ConstraintUnique
		c.Columns = splitIdentList(m[1])

	case reForeignKey.MatchString(body):
		m := reForeignKey.FindStringSubmatch(body)
		c.Type = schema.ConstraintForeignKey
		c.Columns = splitIdentList(m[1])
		c.ReferencedTable = normalizeIdent(m[2])
		c.ReferencedColumns = splitIdentList(m[3])
		if dm := reOnDelete.FindStringSubmatch(body); dm != nil {
			c.OnDelete = strings.ToUpper(collapseSpaces(dm[1]))
		}
		if um := reOnUpdate.FindStringSubmatch(body); um != nil {
			c.OnUpdate = strings.ToUpper(collapseSpaces(um[1]))
		}
		rel := &schema.Relationship{
			ConstraintName: name,
			SourceTable:    tableName,
			SourceColumns:  c.Columns,
			TargetTable:    c.ReferencedTable,
			TargetColumns:  c.ReferencedColumns,
			OnDelete:       c.OnDelete,
			OnUpdate:       c.OnUpdate,
		}
		return c, rel, nil

	case strings.HasPrefix(upper, "CHECK"):
		c.Type = schema.ConstraintCheck
		if expr, ok := parenBody(body); ok {
			c.CheckExpression = strings.TrimSpace(expr)
		} else {
			return nil, nil, fmt.Errorf("CHECK constraint %q has no expression", name)
		}

	case strings.HasPrefix(upper, "EXCLUDE"):
		c.Type = schema.ConstraintExclude

	default:
		// Left untyped on purpose; the constraint handler drops it with a
		// record instead of the parser failing the whole statement.
	}
	return c, nil, nil
}

func (p *Parser) parseColumn(frag string, t *schema.Table, s *schema.Schema) error {
	nm := reColumnName.FindStringSubmatch(frag)
	if nm == nil {
		return fmt.Errorf("unparsable column fragment %q", excerpt(frag))
	}
	col := &schema.Column{Name: normalizeIdent(nm[1])}
	rest := strings.TrimSpace(frag[len(nm[0]):])

	tm := reColumnType.FindStringSubmatch(rest)
	if tm == nil {
		return fmt.Errorf("column %s has no recognizable type", col.Name)
	}
	col.Type = stripTypeQualifier(collapseSpaces(strings.TrimSpace(tm[1])))
	rest = rest[len(tm[0]):]

	// Inline CHECK becomes a real constraint so its removal is accounted for.
	if cm := reCheck.FindStringIndex(rest); cm != nil {
		if end, _ := scanBalanced(rest, cm[1]-1); end > 0 {
			expr := rest[cm[1] : end-1]
			t.Constraints = append(t.Constraints, &schema.Constraint{
				Table:           t.Name,
				Type:            schema.ConstraintCheck,
				Definition:      strings.TrimSpace(rest[cm[0]:end]),
				CheckExpression: strings.TrimSpace(expr),
			})
			rest = rest[:cm[0]] + rest[end:]
		}
	}

	if dm := reDefault.FindStringIndex(rest); dm != nil {
		expr, consumed := scanDefaultExpr(rest[dm[1]:])
		col.Default = expr
		rest = rest[:dm[0]] + rest[dm[1]+consumed:]
	}

	// Inline REFERENCES declares a single-column foreign key.
	if rm := reReferences.FindStringSubmatchIndex(rest); rm != nil {
		c := &schema.Constraint{
			Table:           t.Name,
			Type:            schema.ConstraintForeignKey,
			Columns:         []string{col.Name},
			Definition:      strings.TrimSpace(rest[rm[0]:]),
			ReferencedTable: normalizeIdent(rest[rm[2]:rm[3]]),
		}
		if rm[4] >= 0 {
			c.ReferencedColumns = splitIdentList(rest[rm[4]:rm[5]])
		}
		if dm := reOnDelete.FindStringSubmatch(rest); dm != nil {
			c.OnDelete = strings.ToUpper(collapseSpaces(dm[1]))
		}
		if um := reOnUpdate.FindStringSubmatch(rest); um != nil {
			c.OnUpdate = strings.ToUpper(collapseSpaces(um[1]))
		}
		t.Constraints = append(t.Constraints, c)
		s.Relationships = append(s.Relationships, &schema.Relationship{
			SourceTable:   t.Name,
			SourceColumns: c.Columns,
			TargetTable:   c.ReferencedTable,
			TargetColumns: c.ReferencedColumns,
			OnDelete:      c.OnDelete,
			OnUpdate:      c.OnUpdate,
		})
		rest = rest[:rm[0]]
	}

	col.NotNull = reNotNull.MatchString(rest)
	col.IsPrimaryKey = reInlinePK.MatchString(rest)
	if col.IsPrimaryKey {
		col.NotNull = true
		col.IsUnique = true
	} else if reInlineUniq.MatchString(rest) {
		col.IsUnique = true
	}

	t.Columns = append(t.Columns, col)
	return nil
}

func (p *Parser) parseAlterTable(stmt string, s *schema.Schema) error {
	m := reAlterTable.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("unrecognized ALTER TABLE statement")
	}
	tableName := normalizeIdent(m[1])
	action := strings.TrimSpace(m[2])
	t := s.Table(tableName)

	if am := reAddConstraint.FindStringSubmatch(action); am != nil {
		name := normalizeIdent(am[1])
		body := strings.TrimSpace(am[2])
		c, rel, err := parseConstraintBody(name, body, tableName)
		if err != nil {
			return err
		}
		if t != nil {
			t.Constraints = append(t.Constraints, c)
		}
		s.Constraints = append(s.Constraints, c)
		if rel != nil {
			s.Relationships = append(s.Relationships, rel)
		}
		return nil
	}
	if am := reAddColumn.FindStringSubmatch(action); am != nil {
		if t == nil {
			return fmt.Errorf("ALTER TABLE %s references an unknown table", tableName)
		}
		frag := strings.TrimSpace(am[1])
		if t.HasColumn(firstIdent(frag)) {
			return nil
		}
		return p.parseColumn(frag, t, s)
	}
	// Other alterations (DROP, SET, VALIDATE, triggers) do not contribute to
	// the structural model.
	return nil
}

func (p *Parser) parseCreateIndex(stmt string, s *schema.Schema) error {
	m := reCreateIndex.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("unrecognized CREATE INDEX statement")
	}
	idx := &schema.Index{
		Unique:     m[1] != "",
		Concurrent: m[2] != "",
		Name:       normalizeIdent(m[3]),
		Table:      normalizeIdent(m[4]),
		Method:     strings.ToLower(m[5]),
		Definition: stmt,
	}
	if idx.Method == "" {
		idx.Method = "btree"
	}
	body, ok := parenBody(stmt)
	if !ok {
		return fmt.Errorf("CREATE INDEX on %s has no column list", idx.Table)
	}
	for _, part := range splitFragments(body) {
		idx.Columns = append(idx.Columns, strings.TrimSpace(part))
	}
	s.Indexes = append(s.Indexes, idx)
	return nil
}

func (p *Parser) parseCreateEnum(stmt string, s *schema.Schema) error {
	m := reCreateEnum.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("unrecognized CREATE TYPE statement")
	}
	body, ok := parenBody(stmt)
	if !ok {
		return fmt.Errorf("enum %s has no value list", m[1])
	}
	e := &schema.Enum{Name: normalizeIdent(m[1])}
	for _, match := range regexp.MustCompile(`'((?:[^']|'')*)'`).FindAllStringSubmatch(body, -1) {
		e.Values = append(e.Values, strings.ReplaceAll(match[1], "''", "'"))
	}
	s.Enums = append(s.Enums, e)
	return nil
}

func (p *Parser) parseCreateSequence(stmt string, s *schema.Schema) error {
	m := reCreateSeq.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("unrecognized CREATE SEQUENCE statement")
	}
	s.Sequences = append(s.Sequences, &schema.Sequence{
		Name:       normalizeIdent(m[1]),
		Definition: stmt,
	})
	return nil
}

// parenBody returns the contents of the first balanced parenthesis group.
func parenBody(s string) (string, bool) {
	start := strings.Index(s, "(")
	if start < 0 {
		return "", false
	}
	end, _ := scanBalanced(s, start)
	if end < 0 {
		return "", false
	}
	return s[start+1 : end-1], true
}

// scanBalanced walks from the opening parenthesis at start to its matching
// close, treating quoted strings as opaque. Returns the index one past the
// close, or -1 when unbalanced.
func scanBalanced(s string, start int) (end int, nested bool) {
	depth := 0
	var inSingle, inDouble bool
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case c == '(':
			depth++
			if depth > 1 {
				nested = true
			}
		case c == ')':
			depth--
			if depth == 0 {
				return i + 1, nested
			}
		}
	}
	return -1, nested
}

// splitFragments splits a table or index body on top-level commas only.
// Commas inside parentheses or string literals never split.
func splitFragments(body string) []string {
	var frags []string
	depth := 0
	var inSingle, inDouble bool
	start := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			frags = append(frags, body[start:i])
			start = i + 1
		}
	}
	frags = append(frags, body[start:])
	return frags
}

// scanDefaultExpr consumes one default expression: a quoted or backticked
// literal, or a token with an optional balanced argument list, plus any
// trailing type casts. Returns the expression and the bytes consumed.
func scanDefaultExpr(s string) (string, int) {
	i := 0
	switch {
	case i < len(s) && s[i] == '\'':
		i = scanQuoted(s, i)
	case i < len(s) && s[i] == '`':
		if end := strings.IndexByte(s[i+1:], '`'); end >= 0 {
			i = i + 1 + end + 1
		} else {
			i = len(s)
		}
	default:
		for i < len(s) && s[i] != ' ' && s[i] != ',' && s[i] != '(' {
			i++
		}
		if i < len(s) && s[i] == '(' {
			if end, _ := scanBalanced(s, i); end > 0 {
				i = end
			} else {
				i = len(s)
			}
		}
	}
	for strings.HasPrefix(s[i:], "::") {
		i += 2
		for i < len(s) && (isWordByte(s[i]) || s[i] == '"') {
			i++
		}
		if i < len(s) && s[i] == '(' {
			if end, _ := scanBalanced(s, i); end > 0 {
				i = end
			}
		}
		if strings.HasPrefix(s[i:], "[]") {
			i += 2
		}
	}
	return strings.TrimSpace(s[:i]), i
}

func scanQuoted(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// normalizeIdent strips the schema qualifier and surrounding quotes. Dots
// inside quoted identifiers do not count as qualifiers.
func normalizeIdent(raw string) string {
	s := strings.TrimSpace(raw)
	last := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			inQuote = !inQuote
		case s[i] == '.' && !inQuote:
			last = i + 1
		}
	}
	return strings.Trim(s[last:], `"`)
}

func splitIdentList(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(list, ",") {
		out = append(out, normalizeIdent(part))
	}
	return out
}

func firstIdent(frag string) string {
	if m := reColumnName.FindStringSubmatch(frag); m != nil {
		return normalizeIdent(m[1])
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripTypeQualifier removes a schema qualifier from a declared type while
// keeping any parameter or array suffix: public.mood -> mood,
// public."Mood"[] -> Mood[].
func stripTypeQualifier(s string) string {
	if strings.HasPrefix(s, `"`) {
		return s
	}
	base, suffix := s, ""
	if i := strings.IndexAny(s, "(["); i >= 0 {
		base, suffix = s[:i], s[i:]
	}
	if j := strings.LastIndex(base, "."); j >= 0 {
		base = strings.Trim(base[j+1:], `"`)
	}
	return base + suffix
}

func excerpt(stmt string) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > 100 {
		return stmt[:100]
	}
	return stmt
}
