package rules

import (
	"fmt"
	"os"
	"time"

	apperrors "recon-core/pkg/errors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk shape of an operator-curated rule definition file.
type RuleFile struct {
	Rules []RuleDefinition `yaml:"rules"`
}

// UnmarshalYAML decodes a tolerance block. Amounts are quoted strings in the
// file so they survive as exact decimals instead of floats.
func (t *Tolerance) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Amount   string  `yaml:"amount"`
		Percent  float64 `yaml:"percent"`
		DateDays int     `yaml:"date_days"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Amount != "" {
		amount, err := decimal.NewFromString(raw.Amount)
		if err != nil {
			return fmt.Errorf("invalid tolerance amount %q: %w", raw.Amount, err)
		}
		t.Amount = amount
	}
	t.Percent = raw.Percent
	t.DateDays = raw.DateDays
	return nil
}

// RuleDefinition is a single rule entry in a rule file. Rules loaded from a
// file start life already approved and active: files are the bootstrap path
// for environments without a rule-curation UI, and the operator editing the
// file is the approver.
type RuleDefinition struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name"`
	Priority   int                `yaml:"priority"`
	Enabled    *bool              `yaml:"enabled"`
	Conditions []Condition        `yaml:"conditions"`
	Config     MatchConfiguration `yaml:"config"`
}

// LoadRuleFile parses and validates a YAML rule definition file
func LoadRuleFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfiguration, apperrors.CodeInvalidConfig,
			fmt.Sprintf("failed to read rule file %s", path)).
			WithSuggestion("check that the rule file exists and is readable")
	}

	return ParseRuleFile(data)
}

// ParseRuleFile parses YAML rule definitions from memory
func ParseRuleFile(data []byte) ([]*Rule, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfiguration, apperrors.CodeInvalidConfig,
			"failed to parse rule file").
			WithSuggestion("check the YAML syntax of the rule file")
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(file.Rules))
	result := make([]*Rule, 0, len(file.Rules))

	for i, def := range file.Rules {
		if def.ID == "" {
			return nil, apperrors.Validation(apperrors.CodeInvalidConfig,
				"rule %d in file has no id", i)
		}
		if seen[def.ID] {
			return nil, apperrors.Validation(apperrors.CodeDuplicateID,
				"duplicate rule id %s in rule file", def.ID)
		}
		seen[def.ID] = true

		enabled := true
		if def.Enabled != nil {
			enabled = *def.Enabled
		}

		rule := &Rule{
			ID:         def.ID,
			Name:       def.Name,
			Conditions: def.Conditions,
			Config:     def.Config,
			Priority:   def.Priority,
			Enabled:    enabled,
			Status:     RuleActive,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := rule.Validate(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidConfig,
				fmt.Sprintf("rule %s is invalid", def.ID))
		}

		result = append(result, rule)
	}

	return result, nil
}
