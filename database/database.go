// Package database abstracts where the schema DDL text comes from: a dump
// file, stdin, or a live PostgreSQL catalog.
package database

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/pg2dbml/pg2dbml/schema"
)

// Config carries the connection settings for live database sources.
type Config struct {
	DbName   string
	User     string
	Password string
	Host     string
	Port     int
	Socket   string
	SslMode  string
}

// Source supplies the raw schema DDL for one conversion run.
type Source interface {
	DumpSchema() (string, error)
	Close() error
}

// ParseDecisionsFile loads a conversion decisions file. Unknown keys and
// unknown option values are rejected rather than ignored.
func ParseDecisionsFile(path string) (schema.Decisions, error) {
	if path == "" {
		return schema.Decisions{}, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return schema.Decisions{}, fmt.Errorf("failed to read decisions file: %w", err)
	}
	d, err := ParseDecisionsString(string(buf))
	if err != nil {
		return schema.Decisions{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDecisionsString parses YAML decisions, e.g.
//
//	array_type: text_fallback
//	check_constraint_action: comment
func ParseDecisionsString(text string) (schema.Decisions, error) {
	var d schema.Decisions
	if err := yaml.UnmarshalStrict([]byte(text), &d); err != nil {
		return schema.Decisions{}, fmt.Errorf("invalid decisions yaml: %w", err)
	}
	if err := d.Validate(); err != nil {
		return schema.Decisions{}, err
	}
	return d, nil
}

// MergeDecisions folds partial decision sets in order, later sources winning.
// Fields no source sets stay empty, so the pipeline still records them as
// defaults rather than configured choices.
func MergeDecisions(parts ...schema.Decisions) schema.Decisions {
	var merged schema.Decisions
	for _, p := range parts {
		merged = merged.Merge(p)
	}
	return merged
}
