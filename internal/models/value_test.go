package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionFieldResolution(t *testing.T) {
	tx := &Transaction{
		ID:        "tx-1",
		Source:    SourceERP,
		Date:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Amount:    decimal.NewFromFloat(1250.75),
		Currency:  "USD",
		Reference: "INV-2024-0315",
		PartnerID: "acme",
		Status:    StatusUnmatched,
	}

	tests := []struct {
		path string
		want string
	}{
		{"id", "tx-1"},
		{"source", "erp"},
		{"currency", "USD"},
		{"amount", "1250.75"},
		{"date", "2024-03-15"},
		{"reference", "INV-2024-0315"},
		{"partner.id", "acme"},
		{"partnerid", "acme"},
		{"status", "unmatched"},
		{" Currency ", "USD"}, // paths are trimmed and case-folded
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, ok := tx.Field(tt.path)
			if !ok {
				t.Fatalf("Field(%q) not resolved", tt.path)
			}
			if v.IsNull() {
				t.Fatalf("Field(%q) unexpectedly null", tt.path)
			}
			if got := v.String(); got != tt.want {
				t.Errorf("Field(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestTransactionFieldNulls(t *testing.T) {
	tx := &Transaction{ID: "tx-1", Source: SourceBankFeed, Currency: "USD"}

	for _, path := range []string{"description", "reference", "partner.id"} {
		v, ok := tx.Field(path)
		if !ok {
			t.Fatalf("Field(%q) must resolve even when empty", path)
		}
		if !v.IsNull() {
			t.Errorf("empty %s must resolve to a null value", path)
		}
	}
}

func TestTransactionFieldUnknownPath(t *testing.T) {
	tx := &Transaction{ID: "tx-1"}
	if _, ok := tx.Field("memo"); ok {
		t.Error("unknown paths must not resolve")
	}
	if _, ok := tx.Field(""); ok {
		t.Error("the empty path must not resolve")
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"string", StringValue("hello"), "hello"},
		{"number", NumberValue(42.5), "42.5"},
		{"amount", AmountValue(decimal.NewFromFloat(99.90)), "99.9"},
		{"bool", BoolValue(true), "true"},
		{"date", DateValue(time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)), "2024-03-15"},
		{"null", NullValue(FieldTypeString), "<null>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
