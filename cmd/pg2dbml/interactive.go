package main

import (
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/pg2dbml/pg2dbml/schema"
)

// Each conversion decision governs a set of detected feature types. Only
// decisions with at least one affected feature are worth prompting for.
var decisionGroups = []struct {
	key      string
	label    string
	features []string
}{
	{schema.DecisionArrayType, "Array columns", []string{"ARRAY_TYPE"}},
	{schema.DecisionUnknownTypeFallback, "PostgreSQL-specific types", []string{"POSTGRESQL_SPECIFIC_TYPE", "GEOMETRIC_TYPE", "NETWORK_TYPE", "RANGE_TYPE", "TEXT_SEARCH_TYPE"}},
	{schema.DecisionCheckConstraintAction, "CHECK constraints", []string{"CHECK_CONSTRAINT"}},
	{schema.DecisionComplexIndexAction, "Complex indexes", []string{"PARTIAL_INDEX", "EXPRESSION_INDEX", "OPERATOR_CLASS"}},
	{schema.DecisionInheritanceAction, "Table inheritance", []string{"TABLE_INHERITANCE"}},
	{schema.DecisionPartitioningAction, "Table partitioning", []string{"TABLE_PARTITIONING"}},
}

// promptDecisions asks how each affected construct should convert. Decisions
// already set through --decisions keep their value as the preselected cursor
// position.
func promptDecisions(features []schema.Feature, configured schema.Decisions) schema.Decisions {
	counts := map[string]int{}
	for _, feature := range features {
		counts[feature.Type]++
	}

	decisions := configured
	for _, group := range decisionGroups {
		affected := 0
		for _, featureType := range group.features {
			affected += counts[featureType]
		}
		if affected == 0 {
			continue
		}

		options := schema.DecisionOptions(group.key)
		sel := promptui.Select{
			Label:     fmt.Sprintf("%s: %d detected. How should they convert?", group.label, affected),
			Items:     options,
			CursorPos: optionIndex(options, decisions.Get(group.key)),
		}
		_, choice, err := sel.Run()
		if err != nil {
			log.Fatal(err)
		}
		if err := decisions.Set(group.key, choice); err != nil {
			log.Fatal(err)
		}
	}
	return decisions
}

func optionIndex(options []string, value string) int {
	for i, option := range options {
		if option == value {
			return i
		}
	}
	return 0
}
