package schema

import "fmt"

// Transformation reasons, used to group the report's type section.
const (
	ReasonArraySyntax   = "Array type syntax incompatibility"
	ReasonPGSpecific    = "PostgreSQL-specific type not supported in DBML"
	ReasonAlias         = "Type alias normalized"
	ReasonSerial        = "Serial type expanded to base type with auto-increment"
	ReasonUnknown       = "Unknown type replaced with fallback"
	ReasonParamsDropped = "Type parameters not representable"
)

// TypeTransformation records one column whose declared type was rewritten.
type TypeTransformation struct {
	Table           string
	Column          string
	OriginalType    string
	TransformedType string
	Reason          string
}

// typeAliases maps every recognized scalar type to its canonical DBML
// spelling. Identity entries keep known types from falling through to the
// unknown-type fallback.
var typeAliases = map[string]string{
	"integer":  "integer",
	"int":      "integer",
	"int4":     "integer",
	"bigint":   "bigint",
	"int8":     "bigint",
	"smallint": "smallint",
	"int2":     "smallint",

	"boolean": "boolean",
	"bool":    "boolean",

	"char":      "char",
	"bpchar":    "char",
	"character": "char",
	"varchar":   "varchar",
	"text":      "text",

	"date":        "date",
	"timestamp":   "timestamp",
	"timestamptz": "timestamptz",
	"time":        "time",
	"timetz":      "timetz",
	"interval":    "interval",

	"numeric": "numeric",
	"decimal": "numeric",
	"real":    "float4",
	"float4":  "float4",
	"float8":  "float8",
	"float":   "float8",
	"double":  "float8",

	"json":  "json",
	"jsonb": "jsonb",
	"uuid":  "uuid",

	// Multi-word spellings normally canonicalized by the preprocessor, kept
	// here so the mapper stands on its own.
	"timestamp with time zone":    "timestamptz",
	"timestamp without time zone": "timestamp",
	"time with time zone":         "timetz",
	"time without time zone":      "time",
	"double precision":            "float8",
	"character varying":           "varchar",
	"bit varying":                 "varbit",
}

var serialTypes = map[string]string{
	"serial":      "integer",
	"bigserial":   "bigint",
	"smallserial": "smallint",
	"serial4":     "integer",
	"serial8":     "bigint",
	"serial2":     "smallint",
}

// nativeTypes pass through unchanged; dbdiagram renders them as opaque type
// names without complaint.
var nativeTypes = map[string]bool{
	"inet": true, "cidr": true, "macaddr": true, "macaddr8": true,
	"point": true, "line": true, "lseg": true, "box": true,
	"path": true, "polygon": true, "circle": true,
	"bytea": true, "money": true,
	"int4range": true, "int8range": true, "numrange": true,
	"tsrange": true, "tstzrange": true, "daterange": true,
	"tsvector": true, "tsquery": true,
	"xml": true, "pg_lsn": true, "bit": true, "varbit": true,
}

// textFallbackTypes always degrade to text; their semantics have no DBML
// representation at all.
var textFallbackTypes = map[string]string{
	"int4multirange": "multirange semantics lost",
	"int8multirange": "multirange semantics lost",
	"nummultirange":  "multirange semantics lost",
	"tsmultirange":   "multirange semantics lost",
	"tstzmultirange": "multirange semantics lost",
	"datemultirange": "multirange semantics lost",
	"hstore":         "key/value semantics lost",
	"ltree":          "label tree semantics lost",
	"cube":           "multidimensional cube semantics lost",
	"isbn":           "ISBN validation lost",
	"issn":           "ISSN validation lost",
}

// paramTypes keep their length/precision parameters after mapping.
var paramTypes = map[string]bool{
	"varchar": true,
	"char":    true,
	"numeric": true,
}

// TypeMapper rewrites PostgreSQL column types into DBML-compatible ones,
// honoring the array and unknown-type decisions. Mapping is idempotent: a
// mapped type maps to itself.
type TypeMapper struct {
	decisions Decisions
	enums     map[string]bool

	Transformations []TypeTransformation
	Warnings        []string
}

func NewTypeMapper(decisions Decisions, enumNames map[string]bool) *TypeMapper {
	if enumNames == nil {
		enumNames = map[string]bool{}
	}
	return &TypeMapper{decisions: decisions, enums: enumNames}
}

// MapType converts one declared type. The increment result reports serial
// provenance so the caller can mark the column auto-incrementing.
func (m *TypeMapper) MapType(declared string) (mapped string, increment bool, warnings []string) {
	base, params, isArray := DecomposeType(declared)

	if isArray {
		if m.decisions.ArrayType == ArrayTypeTextFallback {
			warnings = append(warnings, fmt.Sprintf("array type %s degraded to text", declared))
			return "text", false, warnings
		}
		elem, _, warn, _ := m.mapBase(base)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		if params != "" && paramTypes[elem] {
			elem = fmt.Sprintf("%s(%s)", elem, params)
		}
		return fmt.Sprintf("%q", elem+" []"), false, warnings
	}

	mapped, increment, warn, _ := m.mapBase(base)
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if params != "" && paramTypes[mapped] {
		mapped = fmt.Sprintf("%s(%s)", mapped, params)
	}
	return mapped, increment, warnings
}

func (m *TypeMapper) mapBase(base string) (mapped string, increment bool, warning, reason string) {
	if m.enums[base] {
		return base, false, "", ""
	}
	if to, ok := serialTypes[base]; ok {
		return to, true, "", ReasonSerial
	}
	if to, ok := typeAliases[base]; ok {
		if to != base {
			return to, false, "", ReasonAlias
		}
		return to, false, "", ""
	}
	if nativeTypes[base] {
		return base, false, "", ""
	}
	if loss, ok := textFallbackTypes[base]; ok {
		return "text", false, fmt.Sprintf("type %s mapped to text (%s)", base, loss), ReasonPGSpecific
	}
	fallback := m.decisions.UnknownTypeFallback
	if fallback == "" {
		fallback = UnknownTypeText
	}
	return fallback, false, fmt.Sprintf("unknown type %s replaced with %s", base, fallback), ReasonUnknown
}

// TransformSchema rewrites every column type in place, recording each change
// with its table and column location.
func (m *TypeMapper) TransformSchema(s *Schema) {
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			m.transformColumn(t.Name, c)
		}
	}
}

func (m *TypeMapper) transformColumn(table string, c *Column) {
	base, params, isArray := DecomposeType(c.Type)

	if isArray && m.decisions.ArrayType == ArrayTypeTextFallback {
		m.record(table, c, "text", ReasonPGSpecific)
		m.Warnings = append(m.Warnings,
			fmt.Sprintf("%s.%s: array type %s degraded to text", table, c.Name, c.Type))
		return
	}

	mapped, increment, warning, reason := m.mapBase(base)
	if warning != "" {
		m.Warnings = append(m.Warnings, fmt.Sprintf("%s.%s: %s", table, c.Name, warning))
	}
	if params != "" {
		if paramTypes[mapped] {
			mapped = fmt.Sprintf("%s(%s)", mapped, params)
		} else if reason == "" {
			reason = ReasonParamsDropped
		}
	}
	if isArray {
		mapped = fmt.Sprintf("%q", mapped+" []")
		reason = ReasonArraySyntax
	}
	if increment {
		c.Increment = true
	}
	if mapped != c.Type {
		if reason == "" {
			reason = ReasonAlias
		}
		m.record(table, c, mapped, reason)
	}
}

func (m *TypeMapper) record(table string, c *Column, mapped, reason string) {
	m.Transformations = append(m.Transformations, TypeTransformation{
		Table:           table,
		Column:          c.Name,
		OriginalType:    c.Type,
		TransformedType: mapped,
		Reason:          reason,
	})
	c.OriginalType = c.Type
	c.Type = mapped
}

// TransformationReport groups the recorded changes the way the conversion
// report presents them.
func (m *TypeMapper) TransformationReport() map[string]int {
	byReason := map[string]int{}
	for _, tr := range m.Transformations {
		byReason[tr.Reason]++
	}
	return byReason
}
