// Package preprocess strips a PostgreSQL dump down to the statement subset
// the structural parser understands, rewriting constructs DBML cannot accept.
// Every removed statement is logged; cleaning never fails.
package preprocess

import (
	"regexp"
	"strings"
)

// Removal categories, one per cleaning rule.
const (
	CategoryPsqlCommand       = "PSQL_COMMAND"
	CategorySet               = "SET"
	CategorySelect            = "SELECT"
	CategoryComment           = "COMMENT"
	CategoryCopy              = "COPY"
	CategoryPermission        = "PERMISSION"
	CategoryOwnership         = "OWNERSHIP"
	CategorySequenceOwnership = "SEQUENCE_OWNERSHIP"
	CategoryColumnDefault     = "COLUMN_DEFAULT"
	CategoryFunctionBody      = "FUNCTION_BODY"
	CategoryUnknown           = "UNKNOWN"
)

// Removal records one statement dropped from the dump.
type Removal struct {
	LineNumber int
	Category   string
	Content    string // first 100 characters
	Reason     string
}

// Result is the cleaned dump plus everything needed to trace output lines
// back to the input.
type Result struct {
	Cleaned     string
	Removals    []Removal
	LineMapping map[int]int // cleaned line -> original line, both 1-based
}

var (
	reDollarBody   = regexp.MustCompile(`(?s)\$[^$]*\$.*?\$[^$]*\$`)
	reFunctionStmt = regexp.MustCompile(`(?is)CREATE\s+(?:OR\s+REPLACE\s+)?(?:FUNCTION|PROCEDURE)\b.*?;`)
	reSetDefault   = regexp.MustCompile(`(?is)ALTER\s+TABLE\s+(?:ONLY\s+)?\S+\s+ALTER\s+COLUMN\s+\S+\s+SET\s+DEFAULT[^;]*;`)

	reNegativeDefault = regexp.MustCompile(`(?i)(DEFAULT\s+)(-\d+(?:\.\d+)?)`)
	reRandomUUID      = regexp.MustCompile(`(?i)\bgen_random_uuid\s*\(\s*\)`)
	reArraySuffix     = regexp.MustCompile(`\b(\w+)\[\]`)
	reCheckKeyword    = regexp.MustCompile(`(?i)\bCHECK\s*\(`)
)

// multiWordTypes canonicalizes spellings the DBML side cannot tokenize.
// Timestamps come before times so the longer spelling wins.
var multiWordTypes = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`(?i)\btimestamp with time zone\b`), "timestamptz"},
	{regexp.MustCompile(`(?i)\btimestamp without time zone\b`), "timestamp"},
	{regexp.MustCompile(`(?i)\btime with time zone\b`), "timetz"},
	{regexp.MustCompile(`(?i)\btime without time zone\b`), "time"},
	{regexp.MustCompile(`(?i)\bdouble precision\b`), "float8"},
	{regexp.MustCompile(`(?i)\bcharacter varying\b`), "varchar"},
	{regexp.MustCompile(`(?i)\bbit varying\b`), "varbit"},
}

// Clean removes non-schema statements from a dump and rewrites the rest into
// the dialect the downstream stages expect.
func Clean(dump string) Result {
	res := Result{LineMapping: map[int]int{}}

	text := normalize(dump)
	text = res.removeSpans(text, reDollarBody, CategoryFunctionBody, "Dollar-quoted body has no schema content")
	text = res.removeSpans(text, reFunctionStmt, CategoryFunctionBody, "Function and procedure definitions are out of scope")
	text = res.removeSpans(text, reSetDefault, CategoryColumnDefault, "Column default set outside the table definition")
	text = res.removeNestedChecks(text)

	var out []string
	inCopy := false
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if inCopy {
			if trimmed == `\.` {
				inCopy = false
			}
			continue
		}
		if trimmed == "" {
			continue
		}
		if category, reason, ok := classifyRemoval(trimmed); ok {
			res.remove(lineNo, category, trimmed, reason)
			if category == CategoryCopy && strings.Contains(strings.ToUpper(trimmed), "FROM STDIN") {
				inCopy = true
			}
			continue
		}

		out = append(out, rewriteLine(line))
		res.LineMapping[len(out)] = lineNo
	}

	res.Cleaned = strings.Join(out, "\n")
	return res
}

// classifyRemoval applies the line rules in order; the first match wins.
func classifyRemoval(trimmed string) (category, reason string, ok bool) {
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(trimmed, `\`):
		return CategoryPsqlCommand, "psql meta-command", true
	case strings.HasPrefix(upper, "SET "):
		return CategorySet, "Session configuration", true
	case strings.HasPrefix(upper, "SELECT "):
		return CategorySelect, "Query statement has no schema content", true
	case strings.HasPrefix(upper, "COMMENT ON"):
		return CategoryComment, "Comment statement", true
	case strings.HasPrefix(upper, "COPY "):
		return CategoryCopy, "Data import statement", true
	case strings.HasPrefix(upper, "GRANT ") || strings.HasPrefix(upper, "REVOKE "):
		return CategoryPermission, "Permission statement", true
	case strings.Contains(upper, " OWNER TO "):
		return CategoryOwnership, "Ownership statement", true
	case strings.Contains(upper, " OWNED BY "):
		return CategorySequenceOwnership, "Sequence ownership statement", true
	case strings.HasPrefix(upper, "ALTER ") && strings.Contains(upper, "SET DEFAULT"):
		return CategoryColumnDefault, "Column default set outside the table definition", true
	}
	return "", "", false
}

// rewriteLine applies the in-place rewrites: quoting negative defaults,
// normalizing uuid generation, canonicalizing multi-word types, and quoting
// array types with the spaced form DBML requires.
func rewriteLine(line string) string {
	line = reNegativeDefault.ReplaceAllString(line, "${1}'${2}'")
	line = reRandomUUID.ReplaceAllString(line, "`uuid_generate_v4()`")
	for _, mw := range multiWordTypes {
		line = mw.pattern.ReplaceAllString(line, mw.replace)
	}
	line = reArraySuffix.ReplaceAllString(line, `"$1 []"`)
	return line
}

// removeNestedChecks deletes CHECK clauses whose expression itself contains
// parentheses. Simple single-level CHECKs stay; the constraint handler drops
// them later with a proper record.
func (r *Result) removeNestedChecks(text string) string {
	var b strings.Builder
	prev := 0
	for _, loc := range reCheckKeyword.FindAllStringIndex(text, -1) {
		if loc[0] < prev {
			continue
		}
		end, nested := scanBalanced(text, loc[1]-1)
		if end < 0 || !nested {
			continue
		}
		r.remove(1+strings.Count(text[:loc[0]], "\n"), CategoryUnknown, text[loc[0]:end],
			"Nested CHECK expression removed for parser compatibility")
		b.WriteString(text[prev:loc[0]])
		b.WriteString(strings.Repeat("\n", strings.Count(text[loc[0]:end], "\n")))
		prev = end
	}
	if prev == 0 {
		return text
	}
	b.WriteString(text[prev:])
	return b.String()
}

// scanBalanced walks from the opening parenthesis at start to its match,
// reporting whether any nested parentheses were seen. Quoted strings are
// opaque. Returns -1 when the parenthesis never closes.
func scanBalanced(text string, start int) (end int, nested bool) {
	depth := 0
	inQuote := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
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

// removeSpans deletes every regexp match from text, logging each at the line
// it started on. Removed spans are replaced by their own newlines so later
// line numbers keep pointing at the original input.
func (r *Result) removeSpans(text string, re *regexp.Regexp, category, reason string) string {
	matches := re.FindAllStringIndex(text, -1)
	if matches == nil {
		return text
	}
	var b strings.Builder
	prev := 0
	for _, m := range matches {
		r.remove(1+strings.Count(text[:m[0]], "\n"), category, text[m[0]:m[1]], reason)
		b.WriteString(text[prev:m[0]])
		b.WriteString(strings.Repeat("\n", strings.Count(text[m[0]:m[1]], "\n")))
		prev = m[1]
	}
	b.WriteString(text[prev:])
	return b.String()
}

func (r *Result) remove(lineNo int, category, content, reason string) {
	r.Removals = append(r.Removals, Removal{
		LineNumber: lineNo,
		Category:   category,
		Content:    truncate(content, 100),
		Reason:     reason,
	})
}

// normalize unifies line endings and strips SQL comments outside string
// literals. Stripping is line-preserving so removal line numbers stay true.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(stripComment(line), " \t")
	}
	return strings.Join(lines, "\n")
}

func stripComment(line string) string {
	var inSingle, inDouble bool
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\'' && !inDouble:
			inSingle = !inSingle
		case line[i] == '"' && !inSingle:
			inDouble = !inDouble
		case !inSingle && !inDouble && line[i] == '-' && i+1 < len(line) && line[i+1] == '-':
			return line[:i]
		}
	}
	return line
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n]
}
