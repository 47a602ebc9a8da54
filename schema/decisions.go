package schema

import (
	"fmt"
	"time"
)

// Decision keys and their accepted options.
const (
	DecisionArrayType             = "ARRAY_TYPE"
	DecisionUnknownTypeFallback   = "UNKNOWN_TYPE_FALLBACK"
	DecisionCheckConstraintAction = "CHECK_CONSTRAINT_ACTION"
	DecisionComplexIndexAction    = "COMPLEX_INDEX_ACTION"
	DecisionInheritanceAction     = "INHERITANCE_ACTION"
	DecisionPartitioningAction    = "PARTITIONING_ACTION"
)

const (
	ArrayTypeNative       = "native"
	ArrayTypeTextFallback = "text_fallback"

	UnknownTypeText    = "text"
	UnknownTypeVarchar = "varchar"

	CheckConstraintDrop    = "drop"
	CheckConstraintComment = "comment"

	ComplexIndexSimplify = "simplify"
	ComplexIndexDrop     = "drop"

	InheritanceFlatten  = "flatten"
	InheritanceSeparate = "separate"

	PartitioningSeparateTables = "separate_tables"
	PartitioningMainTableOnly  = "main_table_only"
)

// Decisions captures the conversion policy for constructs that have no exact
// DBML equivalent. Zero values mean "use the default".
type Decisions struct {
	ArrayType             string `yaml:"array_type"`
	UnknownTypeFallback   string `yaml:"unknown_type_fallback"`
	CheckConstraintAction string `yaml:"check_constraint_action"`
	ComplexIndexAction    string `yaml:"complex_index_action"`
	InheritanceAction     string `yaml:"inheritance_action"`
	PartitioningAction    string `yaml:"partitioning_action"`
}

func DefaultDecisions() Decisions {
	return Decisions{
		ArrayType:             ArrayTypeNative,
		UnknownTypeFallback:   UnknownTypeText,
		CheckConstraintAction: CheckConstraintDrop,
		ComplexIndexAction:    ComplexIndexSimplify,
		InheritanceAction:     InheritanceFlatten,
		PartitioningAction:    PartitioningSeparateTables,
	}
}

var decisionOptions = map[string][]string{
	DecisionArrayType:             {ArrayTypeNative, ArrayTypeTextFallback},
	DecisionUnknownTypeFallback:   {UnknownTypeText, UnknownTypeVarchar},
	DecisionCheckConstraintAction: {CheckConstraintDrop, CheckConstraintComment},
	DecisionComplexIndexAction:    {ComplexIndexSimplify, ComplexIndexDrop},
	DecisionInheritanceAction:     {InheritanceFlatten, InheritanceSeparate},
	DecisionPartitioningAction:    {PartitioningSeparateTables, PartitioningMainTableOnly},
}

// DecisionOptions returns the accepted values for a decision key, in their
// documented order. The first option is the default.
func DecisionOptions(key string) []string {
	return decisionOptions[key]
}

// Merge overlays non-empty fields of other onto d.
func (d Decisions) Merge(other Decisions) Decisions {
	if other.ArrayType != "" {
		d.ArrayType = other.ArrayType
	}
	if other.UnknownTypeFallback != "" {
		d.UnknownTypeFallback = other.UnknownTypeFallback
	}
	if other.CheckConstraintAction != "" {
		d.CheckConstraintAction = other.CheckConstraintAction
	}
	if other.ComplexIndexAction != "" {
		d.ComplexIndexAction = other.ComplexIndexAction
	}
	if other.InheritanceAction != "" {
		d.InheritanceAction = other.InheritanceAction
	}
	if other.PartitioningAction != "" {
		d.PartitioningAction = other.PartitioningAction
	}
	return d
}

func (d Decisions) Validate() error {
	checks := []struct {
		key   string
		value string
	}{
		{DecisionArrayType, d.ArrayType},
		{DecisionUnknownTypeFallback, d.UnknownTypeFallback},
		{DecisionCheckConstraintAction, d.CheckConstraintAction},
		{DecisionComplexIndexAction, d.ComplexIndexAction},
		{DecisionInheritanceAction, d.InheritanceAction},
		{DecisionPartitioningAction, d.PartitioningAction},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if !containsString(decisionOptions[c.key], c.value) {
			return fmt.Errorf("invalid value %q for %s (accepted: %v)", c.value, c.key, decisionOptions[c.key])
		}
	}
	return nil
}

// Get returns the current value for a decision key.
func (d Decisions) Get(key string) string {
	switch key {
	case DecisionArrayType:
		return d.ArrayType
	case DecisionUnknownTypeFallback:
		return d.UnknownTypeFallback
	case DecisionCheckConstraintAction:
		return d.CheckConstraintAction
	case DecisionComplexIndexAction:
		return d.ComplexIndexAction
	case DecisionInheritanceAction:
		return d.InheritanceAction
	case DecisionPartitioningAction:
		return d.PartitioningAction
	}
	return ""
}

// Set assigns a decision by key, rejecting unknown keys and values.
func (d *Decisions) Set(key, value string) error {
	options, ok := decisionOptions[key]
	if !ok {
		return fmt.Errorf("unknown decision %q", key)
	}
	if !containsString(options, value) {
		return fmt.Errorf("invalid value %q for %s (accepted: %v)", value, key, options)
	}
	switch key {
	case DecisionArrayType:
		d.ArrayType = value
	case DecisionUnknownTypeFallback:
		d.UnknownTypeFallback = value
	case DecisionCheckConstraintAction:
		d.CheckConstraintAction = value
	case DecisionComplexIndexAction:
		d.ComplexIndexAction = value
	case DecisionInheritanceAction:
		d.InheritanceAction = value
	case DecisionPartitioningAction:
		d.PartitioningAction = value
	}
	return nil
}

// DecisionRecord documents one resolved decision for the conversion report.
type DecisionRecord struct {
	DecisionType string
	Decision     string
	Context      string
	Timestamp    time.Time
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
