package rules

import (
	"sort"

	"recon-core/internal/models"
)

// EvaluateRule folds the rule's conditions left to right against a
// transaction. The running boolean is combined with the next condition's
// result using the logical operator stored on the current condition.
//
// There is no operator precedence: a mixed AND/OR chain evaluates strictly
// sequentially, e.g. `a AND b OR c` is `(a AND b) OR c`, never `a AND (b OR
// c)`. This mirrors how operators read the condition summary in rule
// listings and is intentional, not an oversight.
//
// A rule with zero conditions never matches.
func EvaluateRule(r *Rule, tx *models.Transaction) bool {
	if r == nil || len(r.Conditions) == 0 {
		return false
	}

	result := EvaluateCondition(&r.Conditions[0], tx)

	for i := 1; i < len(r.Conditions); i++ {
		next := EvaluateCondition(&r.Conditions[i], tx)

		switch r.Conditions[i-1].Logical {
		case LogicalOr:
			result = result || next
		default:
			// Missing operators on interior conditions are rejected by
			// Validate; treat any remaining gap as AND.
			result = result && next
		}
	}

	return result
}

// SelectRule returns the first applicable rule that matches the transaction.
// Rules are tried in priority order, lower priority first; ties break by ID
// so evaluation order is deterministic.
func SelectRule(candidates []*Rule, tx *models.Transaction) *Rule {
	ordered := make([]*Rule, 0, len(candidates))
	for _, r := range candidates {
		if r != nil && r.IsApplicable() {
			ordered = append(ordered, r)
		}
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, r := range ordered {
		if EvaluateRule(r, tx) {
			return r
		}
	}

	return nil
}
