package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy identifies the matching algorithm a rule configures.
type Strategy string

const (
	StrategyExact   Strategy = "exact"
	StrategyFuzzy   Strategy = "fuzzy"
	StrategyPartial Strategy = "partial"
	StrategyNWay    Strategy = "n_way"
	StrategyManual  Strategy = "manual"
)

// IsValid checks if the strategy is a known algorithm
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyExact, StrategyFuzzy, StrategyPartial, StrategyNWay, StrategyManual:
		return true
	}
	return false
}

// RuleStatus is the lifecycle state of a rule definition.
type RuleStatus string

const (
	RuleDraft           RuleStatus = "draft"
	RulePendingApproval RuleStatus = "pending_approval"
	RuleApproved        RuleStatus = "approved"
	RuleActive          RuleStatus = "active"
	RuleInactive        RuleStatus = "inactive"
	RuleRejected        RuleStatus = "rejected"
)

// IsValid checks if the rule status is valid
func (rs RuleStatus) IsValid() bool {
	switch rs {
	case RuleDraft, RulePendingApproval, RuleApproved, RuleActive, RuleInactive, RuleRejected:
		return true
	}
	return false
}

// Tolerance bounds how far apart two values may be and still agree.
type Tolerance struct {
	// Amount is an absolute monetary tolerance.
	Amount decimal.Decimal `json:"amount" yaml:"amount"`
	// Percent is a relative tolerance in percent of the larger amount.
	Percent float64 `json:"percent,omitempty" yaml:"percent,omitempty"`
	// DateDays is the day window within which dates agree.
	DateDays int `json:"dateDays,omitempty" yaml:"date_days,omitempty"`
}

// MatchConfiguration is the strategy-keyed tagged union carried by a rule.
// Threshold is meaningful only for fuzzy; KeyFields are required for n_way
// and optional for exact (defaulting to amount, currency and date).
type MatchConfiguration struct {
	Strategy  Strategy  `json:"strategy" yaml:"strategy"`
	Threshold float64   `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Tolerance Tolerance `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	KeyFields []string  `json:"keyFields,omitempty" yaml:"key_fields,omitempty"`
}

// Validate checks the configuration against its declared strategy
func (mc *MatchConfiguration) Validate() error {
	if !mc.Strategy.IsValid() {
		return fmt.Errorf("invalid strategy: %s", mc.Strategy)
	}

	switch mc.Strategy {
	case StrategyFuzzy, StrategyPartial:
		if mc.Threshold < 0 || mc.Threshold > 100 {
			return fmt.Errorf("threshold must be between 0 and 100: %f", mc.Threshold)
		}
	case StrategyNWay:
		if len(mc.KeyFields) == 0 {
			return fmt.Errorf("n_way strategy requires at least one key field")
		}
	case StrategyManual, StrategyExact:
		if mc.Threshold != 0 {
			return fmt.Errorf("threshold is only meaningful for the fuzzy strategy")
		}
	}

	if mc.Tolerance.Amount.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.Tolerance.Amount)
	}

	if mc.Tolerance.Percent < 0 || mc.Tolerance.Percent > 100 {
		return fmt.Errorf("percent tolerance must be between 0 and 100: %f", mc.Tolerance.Percent)
	}

	if mc.Tolerance.DateDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", mc.Tolerance.DateDays)
	}

	return nil
}

// Rule is a named, versioned, ordered set of conditions plus a match
// configuration. Lower priority evaluates first.
type Rule struct {
	ID         string             `json:"id" yaml:"id"`
	Name       string             `json:"name" yaml:"name"`
	Conditions []Condition        `json:"conditions" yaml:"conditions"`
	Config     MatchConfiguration `json:"config" yaml:"config"`
	Priority   int                `json:"priority" yaml:"priority"`
	Enabled    bool               `json:"enabled" yaml:"enabled"`
	Status     RuleStatus         `json:"status" yaml:"status"`
	Version    int                `json:"version" yaml:"version"`

	TimesApplied      int        `json:"timesApplied,omitempty" yaml:"-"`
	SuccessfulMatches int        `json:"successfulMatches,omitempty" yaml:"-"`
	LastAppliedAt     *time.Time `json:"lastAppliedAt,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Validate checks the rule definition. An active rule must carry at least
// one condition and a configuration valid for its declared strategy.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}

	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name cannot be empty")
	}

	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("invalid rule status: %s", r.Status)
	}

	if r.Status == RuleActive && len(r.Conditions) == 0 {
		return fmt.Errorf("an active rule must have at least one condition")
	}

	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	// The first condition never carries a logical operator: there is nothing
	// before it to combine with. Operators on later conditions describe how
	// they combine with what follows, so only the last may omit one.
	if len(r.Conditions) > 1 {
		for i := 0; i < len(r.Conditions)-1; i++ {
			if r.Conditions[i].Logical == "" {
				return fmt.Errorf("condition %d must carry a logical operator to combine with the next condition", i)
			}
		}
	}

	if err := r.Config.Validate(); err != nil {
		return fmt.Errorf("match configuration: %w", err)
	}

	return nil
}

// IsApplicable reports whether the rule participates in automatic evaluation
func (r *Rule) IsApplicable() bool {
	return r.Enabled && r.Status == RuleActive
}

// Clone returns a deep copy of the rule
func (r *Rule) Clone() *Rule {
	c := *r
	c.Conditions = append([]Condition(nil), r.Conditions...)
	c.Config.KeyFields = append([]string(nil), r.Config.KeyFields...)
	if r.LastAppliedAt != nil {
		t := *r.LastAppliedAt
		c.LastAppliedAt = &t
	}
	return &c
}

// ApprovalStatus is the state of a rule approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is one entry in a rule's approval audit trail.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"ruleId"`
	RuleVersion int            `json:"ruleVersion"`
	Status      ApprovalStatus `json:"status"`
	RequestedBy string         `json:"requestedBy"`
	RequestedAt time.Time      `json:"requestedAt"`
	DecidedBy   string         `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time     `json:"decidedAt,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}
