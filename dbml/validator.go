package dbml

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pg2dbml/pg2dbml/schema"
)

// Validation error and warning types.
const (
	ErrTableSettingsSpacing    = "TABLE_SETTINGS_SPACING"
	ErrUnquotedNegativeDefault = "UNQUOTED_NEGATIVE_DEFAULT"
	ErrUnquotedArrayType       = "UNQUOTED_ARRAY_TYPE"
	ErrMultiWordType           = "MULTI_WORD_TYPE"
	ErrUnquotedFunctionCall    = "UNQUOTED_FUNCTION_CALL"
	ErrUnmatchedBraces         = "UNMATCHED_BRACES"

	WarnBracketPlacement       = "BRACKET_PLACEMENT"
	WarnIncompleteRelationship = "INCOMPLETE_RELATIONSHIP"
	WarnNoTables               = "NO_TABLES"
	WarnNoProjectDefinition    = "NO_PROJECT_DEFINITION"
)

// ValidationIssue pinpoints one problem in generated DBML. Document-level
// issues carry line number 0.
type ValidationIssue struct {
	LineNumber  int
	ErrorType   string
	Message     string
	LineContent string
	Severity    string
}

type ValidationResult struct {
	IsValid       bool
	TotalErrors   int
	TotalWarnings int
	Errors        []ValidationIssue
	Warnings      []ValidationIssue
}

var (
	reBadTableSpacing  = regexp.MustCompile(`^\s*Table\s+[^\s\[{]+\[`)
	reBadNegDefault    = regexp.MustCompile(`default:\s*-\d`)
	reBadArrayType     = regexp.MustCompile(`\w\[\]`)
	reBadFunctionCall  = regexp.MustCompile(`default:\s*[A-Za-z_][\w.]*\(`)
	reRefLine          = regexp.MustCompile(`^\s*Ref:`)
	reTableLine        = regexp.MustCompile(`^\s*Table\s`)
	reProjectLine      = regexp.MustCompile(`^\s*Project\s`)
	reNoteFence        = regexp.MustCompile(`'''`)
	reMultiWordTypeDef = regexp.MustCompile(`(?i)\b(timestamp with(?:out)? time zone|time with(?:out)? time zone|double precision|character varying|bit varying)\b`)
)

// Validate applies the line rules dbdiagram.io trips over plus a few
// document checks. Errors make IsValid false; warnings never do.
func Validate(text string) ValidationResult {
	var res ValidationResult

	addError := func(line int, errType, message, content, severity string) {
		res.Errors = append(res.Errors, ValidationIssue{
			LineNumber: line, ErrorType: errType, Message: message,
			LineContent: content, Severity: severity,
		})
	}
	addWarning := func(line int, errType, message, content string) {
		res.Warnings = append(res.Warnings, ValidationIssue{
			LineNumber: line, ErrorType: errType, Message: message,
			LineContent: content, Severity: schema.SeverityMedium,
		})
	}

	var hasTable, hasProject, inNote bool
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if len(reNoteFence.FindAllString(line, -1))%2 == 1 {
			inNote = !inNote
			continue
		}
		if inNote || trimmed == "" {
			continue
		}

		if reTableLine.MatchString(line) {
			hasTable = true
		}
		if reProjectLine.MatchString(line) {
			hasProject = true
		}

		if reBadTableSpacing.MatchString(line) {
			addError(lineNo, ErrTableSettingsSpacing,
				"missing space between table name and settings bracket", trimmed, schema.SeverityHigh)
		}
		if reBadNegDefault.MatchString(line) {
			addError(lineNo, ErrUnquotedNegativeDefault,
				"negative default value must be quoted", trimmed, schema.SeverityHigh)
		}
		if reBadArrayType.MatchString(line) {
			addError(lineNo, ErrUnquotedArrayType,
				`array types must use the quoted "type []" form`, trimmed, schema.SeverityHigh)
		}
		if m := reMultiWordTypeDef.FindString(line); m != "" {
			addError(lineNo, ErrMultiWordType,
				fmt.Sprintf("multi-word type %q must be replaced with its alias", m), trimmed, schema.SeverityHigh)
		}
		if reBadFunctionCall.MatchString(line) {
			addError(lineNo, ErrUnquotedFunctionCall,
				"function call defaults must be wrapped in backticks", trimmed, schema.SeverityHigh)
		}
		if strings.HasPrefix(trimmed, "[") {
			addWarning(lineNo, WarnBracketPlacement,
				"settings bracket should not start its own line", trimmed)
		}
		if reRefLine.MatchString(line) && !strings.ContainsAny(trimmed, "><-") {
			addWarning(lineNo, WarnIncompleteRelationship,
				"relationship line has no direction operator", trimmed)
		}
	}

	if open, closed := strings.Count(text, "{"), strings.Count(text, "}"); open != closed {
		addError(0, ErrUnmatchedBraces,
			fmt.Sprintf("unbalanced braces: %d opening, %d closing", open, closed), "", schema.SeverityCritical)
	}
	if !hasTable {
		addWarning(0, WarnNoTables, "document defines no tables", "")
	}
	if !hasProject {
		res.Warnings = append(res.Warnings, ValidationIssue{
			ErrorType: WarnNoProjectDefinition,
			Message:   "document has no project definition",
			Severity:  schema.SeverityLow,
		})
	}

	res.TotalErrors = len(res.Errors)
	res.TotalWarnings = len(res.Warnings)
	res.IsValid = res.TotalErrors == 0
	return res
}

var (
	fixTableSpacing = regexp.MustCompile(`(?m)^(\s*Table\s+[^\s\[{]+)\[`)
	fixNegDefault   = regexp.MustCompile(`(default:\s*)(-\d+(?:\.\d+)?)`)
	fixArrayType    = regexp.MustCompile(`(?m)^(\s*(?:"[^"]+"|[\w$]+)\s+)(\w+)\[\]`)
	fixFunctionCall = regexp.MustCompile(`(default:\s*)([A-Za-z_][\w.]*\([^)\n]*\))`)
	fixBracketLine  = regexp.MustCompile(`\n[ \t]*\[`)
)

var fixMultiWord = []struct {
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

// FixSyntax rewrites the fixable error classes in place: spacing before
// settings brackets, unquoted negative defaults, unquoted arrays, multi-word
// types, bare function call defaults, and settings brackets that broke onto
// their own line.
func FixSyntax(text string) string {
	text = fixTableSpacing.ReplaceAllString(text, "$1 [")
	text = fixNegDefault.ReplaceAllString(text, "$1'$2'")
	text = fixArrayType.ReplaceAllString(text, `$1"$2 []"`)
	for _, mw := range fixMultiWord {
		text = mw.pattern.ReplaceAllString(text, mw.replace)
	}
	text = fixFunctionCall.ReplaceAllString(text, "$1`$2`")
	text = fixBracketLine.ReplaceAllString(text, " [")
	return text
}
