// Package models defines the core domain records shared by the matching
// engine: transactions originating from independent source systems, the
// match groups that bind them together, and the typed field values the
// rule engine compares against.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies the originating system of a transaction.
type Source string

const (
	SourceBankFeed Source = "bank_feed"
	SourceERP      Source = "erp"
	SourceGateway  Source = "payment_gateway"
	SourceLedger   Source = "ledger"
)

// String returns the string representation of Source
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is one of the known systems
func (s Source) IsValid() bool {
	switch s {
	case SourceBankFeed, SourceERP, SourceGateway, SourceLedger:
		return true
	}
	return false
}

// ReconStatus tracks a transaction through the reconciliation lifecycle.
type ReconStatus string

const (
	StatusUnmatched   ReconStatus = "unmatched"
	StatusPotential   ReconStatus = "potential"
	StatusMatched     ReconStatus = "matched"
	StatusUnderReview ReconStatus = "under_review"
	StatusApproved    ReconStatus = "approved"
	StatusRejected    ReconStatus = "rejected"
)

// IsValid checks if the reconciliation status is valid
func (rs ReconStatus) IsValid() bool {
	switch rs {
	case StatusUnmatched, StatusPotential, StatusMatched, StatusUnderReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Transaction is an immutable fact record from one source system. The
// reconciliation fields (Status, MatchID, MatchType, MatchConfidence) are the
// only mutable part and are owned by the match group lifecycle manager.
type Transaction struct {
	ID          string          `json:"id"`
	Source      Source          `json:"source"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	PartnerID   string          `json:"partnerId,omitempty"`

	Status          ReconStatus `json:"status"`
	MatchID         string      `json:"matchId,omitempty"`
	MatchType       string      `json:"matchType,omitempty"`
	MatchConfidence float64     `json:"matchConfidence,omitempty"`
}

// NewTransaction creates an unmatched Transaction
func NewTransaction(id string, source Source, date time.Time, amount decimal.Decimal, currency string) *Transaction {
	return &Transaction{
		ID:       id,
		Source:   source,
		Date:     date,
		Amount:   amount,
		Currency: currency,
		Status:   StatusUnmatched,
	}
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if !t.Source.IsValid() {
		return fmt.Errorf("invalid transaction source: %s", t.Source)
	}

	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	if strings.TrimSpace(t.Currency) == "" {
		return fmt.Errorf("transaction currency cannot be empty")
	}

	if t.Status != "" && !t.Status.IsValid() {
		return fmt.Errorf("invalid reconciliation status: %s", t.Status)
	}

	return nil
}

// IsMatched reports whether the transaction currently belongs to a match group
func (t *Transaction) IsMatched() bool {
	return t.MatchID != ""
}

// ClearMatch resets the reconciliation fields back to the unmatched state
func (t *Transaction) ClearMatch() {
	t.Status = StatusUnmatched
	t.MatchID = ""
	t.MatchType = ""
	t.MatchConfidence = 0
}

// Clone returns a copy of the transaction
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Source: %s, Amount: %s %s, Status: %s}",
		t.ID, t.Source, t.Amount.String(), t.Currency, t.Status)
}

// Equals compares two Transaction instances for equality
func (t *Transaction) Equals(other *Transaction) bool {
	if other == nil {
		return false
	}

	return t.ID == other.ID &&
		t.Source == other.Source &&
		t.Date.Equal(other.Date) &&
		t.Amount.Equal(other.Amount) &&
		t.Currency == other.Currency &&
		t.Status == other.Status &&
		t.MatchID == other.MatchID
}

// MatchStatus is the lifecycle state of a match group.
type MatchStatus string

const (
	MatchStatusMatched     MatchStatus = "matched"
	MatchStatusUnderReview MatchStatus = "under_review"
	MatchStatusApproved    MatchStatus = "approved"
	MatchStatusRejected    MatchStatus = "rejected"
)

// IsTerminal reports whether the status permits no further review transitions
func (ms MatchStatus) IsTerminal() bool {
	return ms == MatchStatusApproved || ms == MatchStatusRejected
}

// IsValid checks if the match status is valid
func (ms MatchStatus) IsValid() bool {
	switch ms {
	case MatchStatusMatched, MatchStatusUnderReview, MatchStatusApproved, MatchStatusRejected:
		return true
	}
	return false
}

// MatchGroup is the unit of reconciliation outcome: two or more transactions
// bound together by a strategy execution, with the computed confidence and
// variance, tracked through review to approval or rejection.
type MatchGroup struct {
	ID             string          `json:"id"`
	Strategy       string          `json:"strategy"`
	Confidence     float64         `json:"confidence"`
	Status         MatchStatus     `json:"status"`
	TransactionIDs []string        `json:"transactionIds"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Variance       decimal.Decimal `json:"variance"`
	VariancePct    decimal.Decimal `json:"variancePercentage"`

	// DegenerateVariance flags a group whose variance percentage is undefined:
	// zero average amount with nonzero variance. Surfaced as a warning so batch
	// runs are not aborted by one pathological group.
	DegenerateVariance bool `json:"degenerateVariance,omitempty"`

	CreatedBy       string     `json:"createdBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedBy      string     `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
}

// Validate performs basic validation on the MatchGroup
func (g *MatchGroup) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("match group ID cannot be empty")
	}

	if len(g.TransactionIDs) < 2 {
		return fmt.Errorf("match group must contain at least 2 transactions, got %d", len(g.TransactionIDs))
	}

	if !g.Status.IsValid() {
		return fmt.Errorf("invalid match status: %s", g.Status)
	}

	if g.Confidence < 0 || g.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100: %f", g.Confidence)
	}

	return nil
}

// Clone returns a deep copy of the match group
func (g *MatchGroup) Clone() *MatchGroup {
	c := *g
	c.TransactionIDs = append([]string(nil), g.TransactionIDs...)
	if g.ApprovedAt != nil {
		t := *g.ApprovedAt
		c.ApprovedAt = &t
	}
	if g.RejectedAt != nil {
		t := *g.RejectedAt
		c.RejectedAt = &t
	}
	return &c
}

// String returns a string representation of the MatchGroup
func (g *MatchGroup) String() string {
	return fmt.Sprintf("MatchGroup{ID: %s, Strategy: %s, Status: %s, Members: %d, Confidence: %.1f}",
		g.ID, g.Strategy, g.Status, len(g.TransactionIDs), g.Confidence)
}
