package matcher

import (
	"fmt"
	"math"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/rules"
	apperrors "recon-core/pkg/errors"

	"github.com/shopspring/decimal"
)

// defaultExactKeyFields are compared when an exact configuration names none.
var defaultExactKeyFields = []string{"amount", "currency", "date"}

// MatchResult is the outcome of executing a strategy over a candidate set.
type MatchResult struct {
	IsMatch    bool           `json:"isMatch"`
	Strategy   rules.Strategy `json:"strategy"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"reasons,omitempty"`
}

// Executor applies a match configuration to a candidate transaction set.
// Execution is pure: no shared state is touched, so candidate groups can be
// evaluated in parallel.
type Executor struct {
	config *Config
}

// NewExecutor creates an executor with the given scoring configuration
func NewExecutor(config *Config) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Executor{config: config}
}

// Config returns a copy of the executor's scoring configuration
func (e *Executor) Config() *Config {
	return e.config.Clone()
}

// Execute runs the configured strategy over the candidates. Candidates must
// number at least 2 (3 for n_way); violating that is a precondition error,
// never a silent degradation to a weaker strategy.
func (e *Executor) Execute(cfg rules.MatchConfiguration, candidates []*models.Transaction) (*MatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Configuration(apperrors.CodeInvalidStrategy, "invalid match configuration: %v", err)
	}

	if len(candidates) < 2 {
		return nil, apperrors.Precondition(apperrors.CodeTooFewTransactions,
			"strategy execution requires at least 2 candidates, got %d", len(candidates))
	}

	switch cfg.Strategy {
	case rules.StrategyManual:
		// Human-initiated; the operator is the confidence source.
		return &MatchResult{
			IsMatch:    true,
			Strategy:   rules.StrategyManual,
			Confidence: 100,
			Reasons:    []string{"manual match"},
		}, nil

	case rules.StrategyExact:
		return e.executeExact(cfg, candidates)

	case rules.StrategyFuzzy, rules.StrategyPartial:
		return e.executeFuzzy(cfg, candidates)

	case rules.StrategyNWay:
		if len(candidates) < 3 {
			return nil, apperrors.Precondition(apperrors.CodeMinParticipants,
				"n_way matching requires at least 3 candidates, got %d", len(candidates)).
				WithSuggestion("supply at least 3 transactions or use a pairwise strategy")
		}
		return e.executeNWay(cfg, candidates)
	}

	return nil, apperrors.Configuration(apperrors.CodeInvalidStrategy,
		"unsupported strategy: %s", cfg.Strategy)
}

// executeExact requires the configured key fields to be identical across all
// candidates. Confidence is fixed at 100 on a match.
func (e *Executor) executeExact(cfg rules.MatchConfiguration, candidates []*models.Transaction) (*MatchResult, error) {
	keyFields := cfg.KeyFields
	if len(keyFields) == 0 {
		keyFields = defaultExactKeyFields
	}

	result := &MatchResult{Strategy: rules.StrategyExact}

	first := candidates[0]
	for _, field := range keyFields {
		base, ok := first.Field(field)
		if !ok {
			return nil, apperrors.Validation(apperrors.CodeInvalidConfig,
				"unknown key field: %s", field)
		}

		for _, tx := range candidates[1:] {
			val, ok := tx.Field(field)
			if !ok {
				return nil, apperrors.Validation(apperrors.CodeInvalidConfig,
					"unknown key field: %s", field)
			}
			if !valuesEqual(base, val) {
				result.Reasons = append(result.Reasons,
					fmt.Sprintf("%s differs: %s vs %s", field, base.String(), val.String()))
				return result, nil
			}
		}

		result.Reasons = append(result.Reasons, fmt.Sprintf("identical %s", field))
	}

	result.IsMatch = true
	result.Confidence = 100
	return result, nil
}

// executeFuzzy scores every candidate pair and takes the minimum pairwise
// confidence; the group matches when that minimum meets the threshold.
func (e *Executor) executeFuzzy(cfg rules.MatchConfiguration, candidates []*models.Transaction) (*MatchResult, error) {
	result := &MatchResult{Strategy: cfg.Strategy}

	minConfidence := 101.0
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			score := e.PairwiseConfidence(candidates[i], candidates[j], cfg.Tolerance)
			if score.Confidence < minConfidence {
				minConfidence = score.Confidence
				result.Reasons = score.Reasons
			}
		}
	}

	result.Confidence = clampConfidence(minConfidence)
	result.IsMatch = result.Confidence >= cfg.Threshold && result.Confidence > 0
	return result, nil
}

// executeNWay requires every pair to agree on the configured key fields
// within tolerance. Confidence is the minimum pairwise fuzzy confidence: the
// weakest link determines group confidence.
func (e *Executor) executeNWay(cfg rules.MatchConfiguration, candidates []*models.Transaction) (*MatchResult, error) {
	result := &MatchResult{Strategy: rules.StrategyNWay}

	minConfidence := 101.0
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			agree, reason, err := e.keyFieldsAgree(cfg, candidates[i], candidates[j])
			if err != nil {
				return nil, err
			}
			if !agree {
				result.Reasons = []string{reason}
				return result, nil
			}

			score := e.PairwiseConfidence(candidates[i], candidates[j], cfg.Tolerance)
			if score.Confidence < minConfidence {
				minConfidence = score.Confidence
			}
		}
	}

	result.IsMatch = true
	result.Confidence = clampConfidence(minConfidence)
	result.Reasons = append(result.Reasons,
		fmt.Sprintf("%d transactions agree on %v within tolerance", len(candidates), cfg.KeyFields))
	return result, nil
}

// keyFieldsAgree checks one candidate pair against the configured key fields.
// Amounts and dates agree within tolerance; other fields require equality.
func (e *Executor) keyFieldsAgree(cfg rules.MatchConfiguration, a, b *models.Transaction) (bool, string, error) {
	for _, field := range cfg.KeyFields {
		va, ok := a.Field(field)
		if !ok {
			return false, "", apperrors.Validation(apperrors.CodeInvalidConfig, "unknown key field: %s", field)
		}
		vb, ok := b.Field(field)
		if !ok {
			return false, "", apperrors.Validation(apperrors.CodeInvalidConfig, "unknown key field: %s", field)
		}

		switch va.Type {
		case models.FieldTypeAmount:
			diff := va.Amount.Sub(vb.Amount).Abs()
			if diff.GreaterThan(e.amountTolerance(va.Amount, vb.Amount, cfg.Tolerance)) {
				return false, fmt.Sprintf("%s outside tolerance: %s vs %s", field, va.String(), vb.String()), nil
			}
		case models.FieldTypeDate:
			window := cfg.Tolerance.DateDays
			if window == 0 {
				window = e.config.DefaultDateWindowDays
			}
			if dayDistance(va.Date, vb.Date) > window {
				return false, fmt.Sprintf("%s outside %d-day window: %s vs %s", field, window, va.String(), vb.String()), nil
			}
		default:
			if !valuesEqual(va, vb) {
				return false, fmt.Sprintf("%s differs: %s vs %s", field, va.String(), vb.String()), nil
			}
		}
	}

	return true, "", nil
}

// PairScore is a pairwise fuzzy confidence with its explanatory reasons.
type PairScore struct {
	Confidence float64
	Reasons    []string
}

// PairwiseConfidence computes the fuzzy similarity of two transactions as a
// weighted amount/date score in [0,100]. A pair whose amounts fall outside
// tolerance scores zero regardless of dates.
func (e *Executor) PairwiseConfidence(a, b *models.Transaction, tol rules.Tolerance) PairScore {
	var score PairScore

	if a.Currency != b.Currency {
		score.Reasons = []string{fmt.Sprintf("currency mismatch: %s vs %s", a.Currency, b.Currency)}
		return score
	}

	diff := a.Amount.Sub(b.Amount).Abs()
	tolerance := e.amountTolerance(a.Amount, b.Amount, tol)

	var amountScore float64
	switch {
	case diff.IsZero():
		amountScore = 100
		score.Reasons = append(score.Reasons, "exact amount match")
	case tolerance.IsZero() || diff.GreaterThan(tolerance):
		score.Reasons = append(score.Reasons,
			fmt.Sprintf("amount difference %s exceeds tolerance", diff.String()))
		return score
	default:
		ratio, _ := diff.Div(tolerance).Float64()
		amountScore = 100 - e.config.AmountDecay*ratio
		score.Reasons = append(score.Reasons,
			fmt.Sprintf("amount within %s (difference %s)", tolerance.String(), diff.String()))
	}

	window := tol.DateDays
	if window == 0 {
		window = e.config.DefaultDateWindowDays
	}

	days := dayDistance(a.Date, b.Date)
	var dateScore float64
	switch {
	case days == 0:
		dateScore = 100
		score.Reasons = append(score.Reasons, "same date")
	case window > 0 && days <= window:
		dateScore = 100 * (1 - float64(days)/float64(window))
		score.Reasons = append(score.Reasons, fmt.Sprintf("date within %d days", days))
	default:
		score.Reasons = append(score.Reasons, fmt.Sprintf("dates %d days apart", days))
	}

	score.Confidence = clampConfidence(e.config.AmountWeight*amountScore + e.config.DateWeight*dateScore)
	return score
}

// amountTolerance resolves the effective absolute tolerance for a pair: the
// larger of the absolute amount tolerance and the percentage tolerance of
// the larger amount.
func (e *Executor) amountTolerance(a, b decimal.Decimal, tol rules.Tolerance) decimal.Decimal {
	effective := tol.Amount

	if tol.Percent > 0 {
		larger := a.Abs()
		if b.Abs().GreaterThan(larger) {
			larger = b.Abs()
		}
		pct := larger.Mul(decimal.NewFromFloat(tol.Percent / 100))
		if pct.GreaterThan(effective) {
			effective = pct
		}
	}

	return effective
}

func valuesEqual(a, b models.Value) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Null || b.Null {
		return a.Null == b.Null
	}

	switch a.Type {
	case models.FieldTypeString:
		return a.Str == b.Str
	case models.FieldTypeNumber:
		return a.Num == b.Num
	case models.FieldTypeDate:
		return a.Date.Truncate(24 * time.Hour).Equal(b.Date.Truncate(24 * time.Hour))
	case models.FieldTypeBoolean:
		return a.Bool == b.Bool
	case models.FieldTypeAmount:
		return a.Amount.Equal(b.Amount)
	}
	return false
}

func dayDistance(a, b time.Time) int {
	da := a.UTC().Truncate(24 * time.Hour)
	db := b.UTC().Truncate(24 * time.Hour)
	return int(math.Abs(da.Sub(db).Hours()) / 24)
}

func clampConfidence(c float64) float64 {
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}
