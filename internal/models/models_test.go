package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTx() *Transaction {
	return NewTransaction("tx-1", SourceBankFeed,
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		decimal.NewFromFloat(1250.75), "USD")
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{"valid", func(tx *Transaction) {}, false},
		{"empty id", func(tx *Transaction) { tx.ID = "  " }, true},
		{"unknown source", func(tx *Transaction) { tx.Source = "spreadsheet" }, true},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, true},
		{"empty currency", func(tx *Transaction) { tx.Currency = "" }, true},
		{"invalid status", func(tx *Transaction) { tx.Status = "lost" }, true},
		{"empty status tolerated", func(tx *Transaction) { tx.Status = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTx()
			tt.mutate(tx)
			err := tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionClearMatch(t *testing.T) {
	tx := validTx()
	tx.Status = StatusMatched
	tx.MatchID = "g-1"
	tx.MatchType = "fuzzy"
	tx.MatchConfidence = 92.5

	if !tx.IsMatched() {
		t.Fatal("expected IsMatched before clearing")
	}

	tx.ClearMatch()
	if tx.IsMatched() || tx.Status != StatusUnmatched || tx.MatchType != "" || tx.MatchConfidence != 0 {
		t.Errorf("expected pristine unmatched state, got %+v", tx)
	}
}

func TestTransactionCloneIsolation(t *testing.T) {
	tx := validTx()
	clone := tx.Clone()
	clone.Status = StatusMatched
	clone.MatchID = "g-1"

	if tx.Status != StatusUnmatched || tx.MatchID != "" {
		t.Error("mutating a clone must not touch the original")
	}
	if !tx.Equals(tx.Clone()) {
		t.Error("a fresh clone must equal its original")
	}
}

func TestTransactionEquals(t *testing.T) {
	tx := validTx()
	if tx.Equals(nil) {
		t.Error("nil never equals")
	}

	other := tx.Clone()
	other.Amount = decimal.NewFromFloat(1250.750)
	if !tx.Equals(other) {
		t.Error("decimal equality must ignore trailing zeros")
	}

	other = tx.Clone()
	other.MatchID = "g-1"
	if tx.Equals(other) {
		t.Error("differing match binding must not compare equal")
	}
}

func TestMatchStatusIsTerminal(t *testing.T) {
	terminal := map[MatchStatus]bool{
		MatchStatusMatched:     false,
		MatchStatusUnderReview: false,
		MatchStatusApproved:    true,
		MatchStatusRejected:    true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestMatchGroupValidate(t *testing.T) {
	valid := &MatchGroup{
		ID:             "g-1",
		Strategy:       "fuzzy",
		Confidence:     92.5,
		Status:         MatchStatusMatched,
		TransactionIDs: []string{"tx-1", "tx-2"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*MatchGroup)
	}{
		{"empty id", func(g *MatchGroup) { g.ID = "" }},
		{"single member", func(g *MatchGroup) { g.TransactionIDs = []string{"tx-1"} }},
		{"invalid status", func(g *MatchGroup) { g.Status = "limbo" }},
		{"confidence above 100", func(g *MatchGroup) { g.Confidence = 101 }},
		{"negative confidence", func(g *MatchGroup) { g.Confidence = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := valid.Clone()
			tt.mutate(g)
			if err := g.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestMatchGroupCloneIsolation(t *testing.T) {
	at := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	g := &MatchGroup{
		ID:             "g-1",
		Status:         MatchStatusApproved,
		TransactionIDs: []string{"tx-1", "tx-2"},
		ApprovedAt:     &at,
	}

	clone := g.Clone()
	clone.TransactionIDs[0] = "tx-other"
	*clone.ApprovedAt = at.Add(48 * time.Hour)

	if g.TransactionIDs[0] != "tx-1" {
		t.Error("clone shares the member slice")
	}
	if !g.ApprovedAt.Equal(at) {
		t.Error("clone shares the approval timestamp")
	}
}
