// Package pg2dbml converts PostgreSQL schema dumps into DBML documents.
// Convert drives the whole pipeline: preprocess, parse, detect, transform,
// generate, validate, and account for everything that was lost on the way.
package pg2dbml

import (
	"time"

	"github.com/pg2dbml/pg2dbml/dbml"
	"github.com/pg2dbml/pg2dbml/parser"
	"github.com/pg2dbml/pg2dbml/preprocess"
	"github.com/pg2dbml/pg2dbml/report"
	"github.com/pg2dbml/pg2dbml/schema"
)

type Options struct {
	// Decisions overrides the default conversion policy. Empty fields keep
	// their defaults.
	Decisions schema.Decisions

	// FixSyntax runs the syntax fixer over the generated document before
	// validation.
	FixSyntax bool
}

type Result struct {
	DBML     string
	Schema   *schema.Schema
	Features []schema.Feature
	Report   *report.Report
}

// Convert runs one conversion. It never fails: malformed statements are
// isolated into the report's parsing errors and the rest of the dump still
// converts.
func Convert(dump string, opts Options) *Result {
	decisions := schema.DefaultDecisions().Merge(opts.Decisions)

	cleaned := preprocess.Clean(dump)
	parsed := parser.NewParser().Parse(cleaned.Cleaned)
	schema.Canonicalize(parsed)

	features := schema.DetectFeatures(parsed)
	snapshot := report.TakeSnapshot(parsed)

	mapper := schema.NewTypeMapper(decisions, parsed.EnumNames())
	mapper.TransformSchema(parsed)

	handler := schema.NewConstraintHandler(decisions)
	handler.ProcessSchema(parsed)

	builder := schema.NewRelationshipBuilder()
	parsed.Relationships = builder.Build(parsed)
	schema.Canonicalize(parsed)

	text := dbml.NewGenerator(decisions).Generate(parsed)
	if opts.FixSyntax {
		text = dbml.FixSyntax(text)
	}
	validation := dbml.Validate(text)

	rep := &report.Report{
		GeneratedAt:            time.Now(),
		Statistics:             schema.Stats(parsed),
		Decisions:              decisions,
		DecisionRecords:        decisionRecords(decisions, opts.Decisions),
		Removals:               cleaned.Removals,
		ParsingErrors:          parsed.ParsingErrors,
		Transformations:        mapper.Transformations,
		TypeWarnings:           mapper.Warnings,
		DroppedConstraints:     handler.Dropped,
		ModifiedConstraints:    handler.Modified,
		Features:               features,
		CompatibilityIssues:    schema.CompatibilityIssues(features),
		SkippedRelationships:   builder.Skipped,
		DuplicateRelationships: len(builder.Duplicates),
		Warnings:               collectWarnings(handler, builder),
		Validation:             validation,
	}
	rep.AuditSilentFailures(snapshot, parsed)

	return &Result{
		DBML:     text,
		Schema:   parsed,
		Features: features,
		Report:   rep,
	}
}

// Inspect runs the front half of the pipeline so interactive mode can show
// which features need decisions before converting for real.
func Inspect(dump string) []schema.Feature {
	cleaned := preprocess.Clean(dump)
	parsed := parser.NewParser().Parse(cleaned.Cleaned)
	schema.Canonicalize(parsed)
	return schema.DetectFeatures(parsed)
}

func decisionRecords(effective, configured schema.Decisions) []schema.DecisionRecord {
	now := time.Now()
	keys := []string{
		schema.DecisionArrayType,
		schema.DecisionUnknownTypeFallback,
		schema.DecisionCheckConstraintAction,
		schema.DecisionComplexIndexAction,
		schema.DecisionInheritanceAction,
		schema.DecisionPartitioningAction,
	}
	records := make([]schema.DecisionRecord, 0, len(keys))
	for _, key := range keys {
		context := "default"
		if configured.Get(key) != "" {
			context = "configured"
		}
		records = append(records, schema.DecisionRecord{
			DecisionType: key,
			Decision:     effective.Get(key),
			Context:      context,
			Timestamp:    now,
		})
	}
	return records
}

func collectWarnings(handler *schema.ConstraintHandler, builder *schema.RelationshipBuilder) []string {
	var warnings []string
	warnings = append(warnings, handler.Warnings...)
	warnings = append(warnings, builder.Warnings...)
	return warnings
}
