// Package matcher implements strategy execution for the reconciliation core:
// exact, fuzzy, n-way and manual matching over candidate transaction sets,
// confidence scoring, variance computation, potential-match suggestion and
// deterministic pool partitioning for batch runs.
//
// Scoring follows a weighted amount/date model: the amount component is 100
// at equality and decays linearly toward the tolerance edge, the date
// component decays linearly across the configured day window, and a pair
// outside amount tolerance scores zero. Group confidence for n-way matches
// is the minimum pairwise confidence, so the weakest link decides.
package matcher

import (
	"fmt"

	"recon-core/internal/rules"

	"github.com/shopspring/decimal"
)

// Config holds the scoring parameters of the matching engine.
type Config struct {
	// AmountWeight and DateWeight are the relative weights of the two score
	// components. They should sum to approximately 1.0.
	AmountWeight float64 `json:"amount_weight"`
	DateWeight   float64 `json:"date_weight"`

	// AmountDecay is how many points the amount component loses at the
	// tolerance edge: a pair exactly at tolerance scores 100-AmountDecay.
	AmountDecay float64 `json:"amount_decay"`

	// DefaultDateWindowDays applies when a tolerance carries no day window.
	DefaultDateWindowDays int `json:"default_date_window_days"`

	// SuggestTolerance bounds the best-effort suggestion scoring path, which
	// runs independently of any configured rule.
	SuggestTolerance rules.Tolerance `json:"suggest_tolerance"`

	// SuggestLimit caps ranked suggestion candidates when the caller
	// supplies no explicit limit.
	SuggestLimit int `json:"suggest_limit"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		AmountWeight:          0.7,
		DateWeight:            0.3,
		AmountDecay:           30,
		DefaultDateWindowDays: 1,
		SuggestTolerance: rules.Tolerance{
			Amount:   decimal.NewFromInt(5),
			Percent:  1.0,
			DateDays: 3,
		},
		SuggestLimit: 5,
	}
}

// StrictConfig returns a configuration for tight reconciliation windows
func StrictConfig() *Config {
	return &Config{
		AmountWeight:          0.8,
		DateWeight:            0.2,
		AmountDecay:           50,
		DefaultDateWindowDays: 0,
		SuggestTolerance: rules.Tolerance{
			Amount:   decimal.NewFromInt(1),
			DateDays: 1,
		},
		SuggestLimit: 5,
	}
}

// Validate checks if the matching configuration is valid
func (c *Config) Validate() error {
	if c.AmountWeight < 0 || c.AmountWeight > 1 {
		return fmt.Errorf("amount weight must be between 0.0 and 1.0: %f", c.AmountWeight)
	}

	if c.DateWeight < 0 || c.DateWeight > 1 {
		return fmt.Errorf("date weight must be between 0.0 and 1.0: %f", c.DateWeight)
	}

	total := c.AmountWeight + c.DateWeight
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}

	if c.AmountDecay < 0 || c.AmountDecay > 100 {
		return fmt.Errorf("amount decay must be between 0 and 100: %f", c.AmountDecay)
	}

	if c.DefaultDateWindowDays < 0 {
		return fmt.Errorf("default date window days cannot be negative: %d", c.DefaultDateWindowDays)
	}

	if c.SuggestLimit <= 0 {
		return fmt.Errorf("suggestion limit must be positive: %d", c.SuggestLimit)
	}

	return nil
}

// Clone returns a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
