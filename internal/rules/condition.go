// Package rules implements the rule engine of the matching core: typed
// condition evaluation, sequential AND/OR rule folding, versioned rule
// definitions with their approval workflow, and YAML rule loading.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"recon-core/internal/models"

	"github.com/shopspring/decimal"
)

// Comparator identifies a single typed comparison operation.
type Comparator string

const (
	CompEquals      Comparator = "equals"
	CompNotEquals   Comparator = "not_equals"
	CompContains    Comparator = "contains"
	CompNotContains Comparator = "not_contains"
	CompStartsWith  Comparator = "starts_with"
	CompEndsWith    Comparator = "ends_with"

	CompGreaterThan    Comparator = "greater_than"
	CompGreaterOrEqual Comparator = "greater_or_equal"
	CompLessThan       Comparator = "less_than"
	CompLessOrEqual    Comparator = "less_or_equal"
	CompBetween        Comparator = "between"

	CompIn    Comparator = "in"
	CompNotIn Comparator = "not_in"

	CompIsNull    Comparator = "is_null"
	CompIsNotNull Comparator = "is_not_null"
)

// LogicalOp describes how a condition combines with the next one in sequence.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// comparatorsByType holds the comparator subset valid for each field type.
// is_null / is_not_null are universal and handled separately.
var comparatorsByType = map[models.FieldType]map[Comparator]bool{
	models.FieldTypeString: {
		CompEquals: true, CompNotEquals: true, CompContains: true,
		CompNotContains: true, CompStartsWith: true, CompEndsWith: true,
		CompIn: true, CompNotIn: true,
	},
	models.FieldTypeNumber: {
		CompEquals: true, CompNotEquals: true, CompGreaterThan: true,
		CompGreaterOrEqual: true, CompLessThan: true, CompLessOrEqual: true,
		CompBetween: true, CompIn: true, CompNotIn: true,
	},
	models.FieldTypeDate: {
		CompEquals: true, CompNotEquals: true, CompGreaterThan: true,
		CompGreaterOrEqual: true, CompLessThan: true, CompLessOrEqual: true,
		CompBetween: true,
	},
	models.FieldTypeBoolean: {
		CompEquals: true, CompNotEquals: true,
	},
	models.FieldTypeAmount: {
		CompEquals: true, CompNotEquals: true, CompGreaterThan: true,
		CompGreaterOrEqual: true, CompLessThan: true, CompLessOrEqual: true,
		CompBetween: true, CompIn: true, CompNotIn: true,
	},
}

// Condition is a single typed comparison against a dot-addressed transaction
// field. Logical describes how this condition combines with the next one in
// the rule's sequence; the first condition of a rule never carries one.
type Condition struct {
	Field      string           `json:"field" yaml:"field"`
	FieldType  models.FieldType `json:"fieldType" yaml:"field_type"`
	Comparator Comparator       `json:"comparator" yaml:"comparator"`
	Value      string           `json:"value,omitempty" yaml:"value,omitempty"`
	// Value2 is the upper bound, used only by the between comparator.
	Value2 string `json:"value2,omitempty" yaml:"value2,omitempty"`
	// Values is the pre-split literal set for in / not_in.
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
	// CaseInsensitive relaxes string comparison; default is case-sensitive.
	CaseInsensitive bool      `json:"caseInsensitive,omitempty" yaml:"case_insensitive,omitempty"`
	Logical         LogicalOp `json:"logical,omitempty" yaml:"logical,omitempty"`
}

// Validate checks that the condition is well-formed before it can be evaluated
func (c *Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("condition field cannot be empty")
	}

	if !c.FieldType.IsValid() {
		return fmt.Errorf("invalid field type: %s", c.FieldType)
	}

	if c.Comparator == CompIsNull || c.Comparator == CompIsNotNull {
		return nil
	}

	allowed := comparatorsByType[c.FieldType]
	if !allowed[c.Comparator] {
		return fmt.Errorf("comparator %s is not valid for field type %s", c.Comparator, c.FieldType)
	}

	if c.Comparator == CompBetween && strings.TrimSpace(c.Value2) == "" {
		return fmt.Errorf("between comparator requires a second value")
	}

	if (c.Comparator == CompIn || c.Comparator == CompNotIn) && len(c.Values) == 0 {
		return fmt.Errorf("%s comparator requires a non-empty value set", c.Comparator)
	}

	if c.Logical != "" && c.Logical != LogicalAnd && c.Logical != LogicalOr {
		return fmt.Errorf("invalid logical operator: %s", c.Logical)
	}

	return nil
}

// Summary renders the condition the way operators see it in rule listings
func (c *Condition) Summary() string {
	switch c.Comparator {
	case CompIsNull, CompIsNotNull:
		return fmt.Sprintf("%s %s", c.Field, c.Comparator)
	case CompBetween:
		return fmt.Sprintf("%s between %s and %s", c.Field, c.Value, c.Value2)
	case CompIn, CompNotIn:
		return fmt.Sprintf("%s %s [%s]", c.Field, c.Comparator, strings.Join(c.Values, ", "))
	default:
		return fmt.Sprintf("%s %s %s", c.Field, c.Comparator, c.Value)
	}
}

// EvaluateCondition evaluates a single condition against a transaction.
// It is a pure function of its inputs and fails closed: a field path that
// does not resolve, a declared type that does not match the actual value,
// or an unparseable literal all evaluate to false rather than erroring.
func EvaluateCondition(c *Condition, tx *models.Transaction) bool {
	if tx == nil {
		return false
	}

	val, ok := tx.Field(c.Field)
	if !ok {
		// Unknown field: only is_null holds.
		return c.Comparator == CompIsNull
	}

	// Null checks are defined for every type, before any type matching.
	switch c.Comparator {
	case CompIsNull:
		return val.IsNull()
	case CompIsNotNull:
		return !val.IsNull()
	}

	if val.IsNull() {
		return false
	}

	// Declared type must agree with the resolved value; fail closed otherwise.
	if val.Type != c.FieldType {
		return false
	}

	switch c.FieldType {
	case models.FieldTypeString:
		return evaluateString(c, val.Str)
	case models.FieldTypeNumber:
		return evaluateNumber(c, val.Num)
	case models.FieldTypeDate:
		return evaluateDate(c, val.Date)
	case models.FieldTypeBoolean:
		return evaluateBool(c, val.Bool)
	case models.FieldTypeAmount:
		return evaluateAmount(c, val.Amount)
	}

	return false
}

func evaluateString(c *Condition, actual string) bool {
	value := c.Value
	if c.CaseInsensitive {
		actual = strings.ToLower(actual)
		value = strings.ToLower(value)
	}

	switch c.Comparator {
	case CompEquals:
		return actual == value
	case CompNotEquals:
		return actual != value
	case CompContains:
		return strings.Contains(actual, value)
	case CompNotContains:
		return !strings.Contains(actual, value)
	case CompStartsWith:
		return strings.HasPrefix(actual, value)
	case CompEndsWith:
		return strings.HasSuffix(actual, value)
	case CompIn, CompNotIn:
		found := false
		for _, candidate := range c.Values {
			if c.CaseInsensitive {
				candidate = strings.ToLower(candidate)
			}
			if actual == candidate {
				found = true
				break
			}
		}
		if c.Comparator == CompIn {
			return found
		}
		return !found
	}
	return false
}

func evaluateNumber(c *Condition, actual float64) bool {
	switch c.Comparator {
	case CompIn, CompNotIn:
		found := false
		for _, raw := range c.Values {
			n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return false
			}
			if actual == n {
				found = true
				break
			}
		}
		if c.Comparator == CompIn {
			return found
		}
		return !found
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return false
	}

	switch c.Comparator {
	case CompEquals:
		return actual == value
	case CompNotEquals:
		return actual != value
	case CompGreaterThan:
		return actual > value
	case CompGreaterOrEqual:
		return actual >= value
	case CompLessThan:
		return actual < value
	case CompLessOrEqual:
		return actual <= value
	case CompBetween:
		upper, err := strconv.ParseFloat(strings.TrimSpace(c.Value2), 64)
		if err != nil {
			return false
		}
		return actual >= value && actual <= upper
	}
	return false
}

func evaluateDate(c *Condition, actual time.Time) bool {
	value, err := parseConditionDate(c.Value)
	if err != nil {
		return false
	}

	day := actual.Truncate(24 * time.Hour)
	valueDay := value.Truncate(24 * time.Hour)

	switch c.Comparator {
	case CompEquals:
		return day.Equal(valueDay)
	case CompNotEquals:
		return !day.Equal(valueDay)
	case CompGreaterThan:
		return day.After(valueDay)
	case CompGreaterOrEqual:
		return !day.Before(valueDay)
	case CompLessThan:
		return day.Before(valueDay)
	case CompLessOrEqual:
		return !day.After(valueDay)
	case CompBetween:
		upper, err := parseConditionDate(c.Value2)
		if err != nil {
			return false
		}
		upperDay := upper.Truncate(24 * time.Hour)
		return !day.Before(valueDay) && !day.After(upperDay)
	}
	return false
}

func evaluateBool(c *Condition, actual bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.Value))
	if err != nil {
		return false
	}

	switch c.Comparator {
	case CompEquals:
		return actual == value
	case CompNotEquals:
		return actual != value
	}
	return false
}

func evaluateAmount(c *Condition, actual decimal.Decimal) bool {
	switch c.Comparator {
	case CompIn, CompNotIn:
		found := false
		for _, raw := range c.Values {
			d, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil {
				return false
			}
			if actual.Equal(d) {
				found = true
				break
			}
		}
		if c.Comparator == CompIn {
			return found
		}
		return !found
	}

	value, err := decimal.NewFromString(strings.TrimSpace(c.Value))
	if err != nil {
		return false
	}

	switch c.Comparator {
	case CompEquals:
		return actual.Equal(value)
	case CompNotEquals:
		return !actual.Equal(value)
	case CompGreaterThan:
		return actual.GreaterThan(value)
	case CompGreaterOrEqual:
		return actual.GreaterThanOrEqual(value)
	case CompLessThan:
		return actual.LessThan(value)
	case CompLessOrEqual:
		return actual.LessThanOrEqual(value)
	case CompBetween:
		upper, err := decimal.NewFromString(strings.TrimSpace(c.Value2))
		if err != nil {
			return false
		}
		return actual.GreaterThanOrEqual(value) && actual.LessThanOrEqual(upper)
	}
	return false
}

var conditionDateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
}

func parseConditionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, format := range conditionDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}
