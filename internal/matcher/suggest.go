package matcher

import (
	"fmt"
	"sort"

	"recon-core/internal/models"
	"recon-core/internal/rules"
)

// SuggestedCandidate is one ranked entry in a potential-match suggestion.
type SuggestedCandidate struct {
	Transaction *models.Transaction `json:"transaction"`
	Confidence  float64             `json:"confidence"`
	Reasons     []string            `json:"matchReasons"`
}

// PotentialMatch is a transient, non-persisted suggestion for one unmatched
// transaction: ranked counterpart candidates plus the strategy the top
// candidate's confidence suggests.
type PotentialMatch struct {
	Source            *models.Transaction  `json:"source"`
	Candidates        []SuggestedCandidate `json:"candidates"`
	SuggestedStrategy rules.Strategy       `json:"suggestedStrategy"`
}

// Suggest scans the candidate pool for plausible counterparts of the source
// transaction and ranks them by fuzzy confidence. This is a best-effort path
// that runs with the executor's suggestion tolerance regardless of whether
// any fuzzy rule is active.
//
// Pool entries already matched, from the source's own system, or scoring
// zero are dropped. Results are sorted descending by confidence with ties
// broken by earliest transaction date, capped at limit (the executor default
// when limit is not positive).
func (e *Executor) Suggest(source *models.Transaction, pool []*models.Transaction, limit int) *PotentialMatch {
	if limit <= 0 {
		limit = e.config.SuggestLimit
	}

	result := &PotentialMatch{Source: source}

	for _, candidate := range pool {
		if candidate.ID == source.ID || candidate.IsMatched() || candidate.Status != models.StatusUnmatched {
			continue
		}
		if candidate.Source == source.Source {
			continue
		}

		score := e.PairwiseConfidence(source, candidate, e.config.SuggestTolerance)
		if score.Confidence <= 0 {
			continue
		}

		reasons := append([]string(nil), score.Reasons...)
		// Advisory observations on fields outside the scoring model.
		if source.PartnerID != "" && source.PartnerID == candidate.PartnerID {
			reasons = append(reasons, "same partner")
		}
		if source.Reference != "" && source.Reference == candidate.Reference {
			reasons = append(reasons, "same reference")
		} else if prefix := commonReferencePrefix(source.Reference, candidate.Reference); prefix >= 4 {
			reasons = append(reasons, fmt.Sprintf("reference prefix match (%d characters)", prefix))
		}

		result.Candidates = append(result.Candidates, SuggestedCandidate{
			Transaction: candidate,
			Confidence:  score.Confidence,
			Reasons:     reasons,
		})
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		if result.Candidates[i].Confidence != result.Candidates[j].Confidence {
			return result.Candidates[i].Confidence > result.Candidates[j].Confidence
		}
		return result.Candidates[i].Transaction.Date.Before(result.Candidates[j].Transaction.Date)
	})

	if len(result.Candidates) > limit {
		result.Candidates = result.Candidates[:limit]
	}

	result.SuggestedStrategy = suggestedStrategy(result.Candidates)
	return result
}

// suggestedStrategy derives a strategy from the top candidate's confidence
func suggestedStrategy(candidates []SuggestedCandidate) rules.Strategy {
	if len(candidates) == 0 {
		return rules.StrategyManual
	}

	top := candidates[0].Confidence
	switch {
	case top > 90:
		return rules.StrategyExact
	case top > 75:
		return rules.StrategyFuzzy
	default:
		return rules.StrategyPartial
	}
}

func commonReferencePrefix(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
