// Package store defines the repository abstraction the matching core runs
// against, with an in-memory implementation for tests and small deployments
// and a SQLite implementation for durable state. The core never touches
// storage directly: all mutations flow through these interfaces under a
// single-writer-per-transaction-id discipline.
package store

import (
	"time"

	"recon-core/internal/models"
	"recon-core/internal/rules"

	"github.com/shopspring/decimal"
)

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	Status    models.ReconStatus
	Source    models.Source
	DateFrom  *time.Time
	DateTo    *time.Time
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
	PartnerID string
	// Search matches free text against description and reference.
	Search string
}

// Pagination bounds a listing. A zero Limit means no bound.
type Pagination struct {
	Limit  int
	Offset int
}

// TransactionStore owns the transaction pool.
type TransactionStore interface {
	Get(id string) (*models.Transaction, error)
	// List returns the filtered page plus the total count before paging.
	List(filter TransactionFilter, page Pagination) ([]*models.Transaction, int, error)
	Put(tx *models.Transaction) error

	// Claim atomically binds the given transactions to a match group. Every
	// id must exist and be unmatched at claim time; a transaction found
	// already claimed fails the whole call with a conflict error and leaves
	// all members untouched.
	Claim(ids []string, groupID, matchType string, confidence float64, status models.ReconStatus) error

	// Release clears match metadata and returns the transactions to the
	// unmatched state. Unknown ids are ignored so unmatch stays idempotent.
	Release(ids []string) error

	// SetStatusByMatch moves every member of a match group to the given
	// reconciliation status.
	SetStatusByMatch(groupID string, status models.ReconStatus) error
}

// GroupFilter narrows match group listings.
type GroupFilter struct {
	Status   models.MatchStatus
	Strategy string
}

// MatchGroupStore owns persisted match groups.
type MatchGroupStore interface {
	Get(id string) (*models.MatchGroup, error)
	List(filter GroupFilter, page Pagination) ([]*models.MatchGroup, int, error)
	Put(group *models.MatchGroup) error
	// Delete removes the group. Deleting an unknown id is a no-op so unmatch
	// retries stay idempotent.
	Delete(id string) error

	// Idempotency keys map a client-supplied key to the group it created, so
	// retried manual-match calls do not mint duplicate groups.
	LookupIdempotencyKey(key string) (string, bool, error)
	RememberIdempotencyKey(key, groupID string) error
}

// RuleStore owns versioned rule definitions and their approval trail.
type RuleStore interface {
	Get(id string) (*rules.Rule, error)
	List() ([]*rules.Rule, error)
	// ListApplicable returns enabled, active rules only.
	ListApplicable() ([]*rules.Rule, error)
	Put(rule *rules.Rule) error

	// RecordApplication updates the rule's apply-outcome statistics.
	RecordApplication(ruleID string, successful bool, at time.Time) error

	// Approval workflow.
	SubmitForApproval(req *rules.ApprovalRequest) error
	DecideApproval(requestID string, status rules.ApprovalStatus, decidedBy, reason string, at time.Time) error
	ListApprovals(ruleID string) ([]*rules.ApprovalRequest, error)
}

// Store aggregates the three repositories behind one handle.
type Store interface {
	Transactions() TransactionStore
	Groups() MatchGroupStore
	Rules() RuleStore
	Close() error
}
