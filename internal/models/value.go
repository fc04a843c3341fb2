package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType declares the type a rule condition expects to compare against.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeAmount  FieldType = "amount"
)

// IsValid checks if the field type is one of the declared variants
func (ft FieldType) IsValid() bool {
	switch ft {
	case FieldTypeString, FieldTypeNumber, FieldTypeDate, FieldTypeBoolean, FieldTypeAmount:
		return true
	}
	return false
}

// Value is a closed tagged variant holding exactly one typed field value.
// The condition evaluator pattern-matches on (FieldType, comparator) pairs
// against these instead of coercing dynamic values at runtime.
type Value struct {
	Type   FieldType
	Str    string
	Num    float64
	Date   time.Time
	Bool   bool
	Amount decimal.Decimal
	Null   bool
}

// StringValue constructs a string Value
func StringValue(s string) Value {
	return Value{Type: FieldTypeString, Str: s}
}

// NumberValue constructs a numeric Value
func NumberValue(n float64) Value {
	return Value{Type: FieldTypeNumber, Num: n}
}

// DateValue constructs a date Value
func DateValue(t time.Time) Value {
	return Value{Type: FieldTypeDate, Date: t}
}

// BoolValue constructs a boolean Value
func BoolValue(b bool) Value {
	return Value{Type: FieldTypeBoolean, Bool: b}
}

// AmountValue constructs a monetary Value
func AmountValue(d decimal.Decimal) Value {
	return Value{Type: FieldTypeAmount, Amount: d}
}

// NullValue constructs an explicitly absent Value of the given type
func NullValue(ft FieldType) Value {
	return Value{Type: ft, Null: true}
}

// IsNull reports whether the value is absent
func (v Value) IsNull() bool {
	return v.Null
}

// String renders the value for match reasons and audit output
func (v Value) String() string {
	if v.Null {
		return "<null>"
	}
	switch v.Type {
	case FieldTypeString:
		return v.Str
	case FieldTypeNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case FieldTypeDate:
		return v.Date.Format("2006-01-02")
	case FieldTypeBoolean:
		return strconv.FormatBool(v.Bool)
	case FieldTypeAmount:
		return v.Amount.String()
	}
	return ""
}

// Field resolves a dot-addressed field path into a typed Value. The second
// return is false when the path names no known transaction field; a known
// field with an empty value resolves to a null Value of its type.
func (t *Transaction) Field(path string) (Value, bool) {
	switch strings.ToLower(strings.TrimSpace(path)) {
	case "id":
		return StringValue(t.ID), true
	case "source":
		return StringValue(string(t.Source)), true
	case "date":
		return DateValue(t.Date), true
	case "amount":
		return AmountValue(t.Amount), true
	case "currency":
		return StringValue(t.Currency), true
	case "description":
		if t.Description == "" {
			return NullValue(FieldTypeString), true
		}
		return StringValue(t.Description), true
	case "reference":
		if t.Reference == "" {
			return NullValue(FieldTypeString), true
		}
		return StringValue(t.Reference), true
	case "partner.id", "partnerid", "partner":
		if t.PartnerID == "" {
			return NullValue(FieldTypeString), true
		}
		return StringValue(t.PartnerID), true
	case "status":
		return StringValue(string(t.Status)), true
	case "match.confidence", "matchconfidence":
		return NumberValue(t.MatchConfidence), true
	}
	return Value{}, false
}
