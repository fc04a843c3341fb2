// Package recon is the orchestration layer of the reconciliation core. It
// ties the stores, the rule evaluator, the match executor and the lifecycle
// manager together behind the operations the API and CLI expose.
package recon

import (
	"recon-core/internal/lifecycle"
	"recon-core/internal/matcher"
	"recon-core/internal/models"
	"recon-core/internal/rules"
	"recon-core/internal/store"
	apperrors "recon-core/pkg/errors"
	"recon-core/pkg/logger"
)

// Service exposes the reconciliation operations
type Service struct {
	store     store.Store
	executor  *matcher.Executor
	lifecycle *lifecycle.Manager
	log       logger.Logger
}

// NewService creates a reconciliation service over the given store
func NewService(st store.Store, config *matcher.Config, log logger.Logger) (*Service, error) {
	if config == nil {
		config = matcher.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(apperrors.CodeInvalidConfig,
			"invalid matcher configuration: %v", err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Service{
		store:     st,
		executor:  matcher.NewExecutor(config),
		lifecycle: lifecycle.NewManager(st, log),
		log:       log.WithComponent("recon"),
	}, nil
}

// Lifecycle exposes the underlying lifecycle manager
func (s *Service) Lifecycle() *lifecycle.Manager { return s.lifecycle }

// ListUnmatched returns unmatched transactions matching the filter
func (s *Service) ListUnmatched(filter store.TransactionFilter, page store.Pagination) ([]*models.Transaction, int, error) {
	filter.Status = models.StatusUnmatched
	return s.store.Transactions().List(filter, page)
}

// ListMatched returns transactions that belong to a match group
func (s *Service) ListMatched(filter store.TransactionFilter, page store.Pagination) ([]*models.Transaction, int, error) {
	if filter.Status == "" || filter.Status == models.StatusUnmatched {
		filter.Status = models.StatusMatched
	}
	return s.store.Transactions().List(filter, page)
}

// SuggestMatches ranks unmatched candidates against the given transaction.
// Suggestions are advisory: nothing is claimed or persisted.
func (s *Service) SuggestMatches(transactionID string, limit int) (*matcher.PotentialMatch, error) {
	source, err := s.store.Transactions().Get(transactionID)
	if err != nil {
		return nil, err
	}

	pool, _, err := s.store.Transactions().List(
		store.TransactionFilter{Status: models.StatusUnmatched}, store.Pagination{})
	if err != nil {
		return nil, err
	}

	return s.executor.Suggest(source, pool, limit), nil
}

// CreateManualMatch groups the given transactions under the manual strategy.
// At least 2 distinct currently-unmatched ids are required. When an
// idempotency key is supplied, a repeated call with the same key returns the
// group created by the first call instead of creating a new one.
func (s *Service) CreateManualMatch(transactionIDs []string, createdBy, idempotencyKey string) (*models.MatchGroup, error) {
	if idempotencyKey != "" {
		groupID, found, err := s.store.Groups().LookupIdempotencyKey(idempotencyKey)
		if err != nil {
			return nil, err
		}
		if found {
			return s.store.Groups().Get(groupID)
		}
	}

	if len(transactionIDs) < 2 {
		return nil, apperrors.Validation(apperrors.CodeTooFewTransactions,
			"a manual match requires at least 2 transaction ids, got %d", len(transactionIDs))
	}

	seen := make(map[string]bool, len(transactionIDs))
	candidates := make([]*models.Transaction, 0, len(transactionIDs))
	for _, id := range transactionIDs {
		if seen[id] {
			return nil, apperrors.Validation(apperrors.CodeDuplicateID,
				"transaction id %s is listed more than once", id)
		}
		seen[id] = true

		tx, err := s.store.Transactions().Get(id)
		if err != nil {
			return nil, err
		}
		if tx.IsMatched() || tx.Status != models.StatusUnmatched {
			return nil, apperrors.Validation(apperrors.CodeTransactionNotFree,
				"transaction %s is not unmatched (status %s)", id, tx.Status)
		}
		candidates = append(candidates, tx)
	}

	result, err := s.executor.Execute(rules.MatchConfiguration{Strategy: rules.StrategyManual}, candidates)
	if err != nil {
		return nil, err
	}

	group, err := s.lifecycle.CreateGroup(candidates, result, createdBy)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		if err := s.store.Groups().RememberIdempotencyKey(idempotencyKey, group.ID); err != nil {
			s.log.WithError(err).WithField("group_id", group.ID).
				Warn("failed to record idempotency key")
		}
	}
	return group, nil
}

// GetMatch returns a match group by id
func (s *Service) GetMatch(groupID string) (*models.MatchGroup, error) {
	return s.store.Groups().Get(groupID)
}

// ListMatches returns match groups matching the filter
func (s *Service) ListMatches(filter store.GroupFilter, page store.Pagination) ([]*models.MatchGroup, int, error) {
	return s.store.Groups().List(filter, page)
}

// ApproveMatch approves a match group
func (s *Service) ApproveMatch(groupID, approver string) (*models.MatchGroup, error) {
	return s.lifecycle.Approve(groupID, approver)
}

// RejectMatch rejects a match group with a reason
func (s *Service) RejectMatch(groupID, rejecter, reason string) (*models.MatchGroup, error) {
	return s.lifecycle.Reject(groupID, rejecter, reason)
}

// Unmatch deletes a match group and releases its members. Idempotent.
func (s *Service) Unmatch(groupID string) error {
	return s.lifecycle.Unmatch(groupID)
}

// Statistics summarizes the state of the reconciliation pool
type Statistics struct {
	TotalTransactions int                        `json:"totalTransactions"`
	ByStatus          map[models.ReconStatus]int `json:"byStatus"`
	TotalGroups       int                        `json:"totalGroups"`
	GroupsByStatus    map[models.MatchStatus]int `json:"groupsByStatus"`
	MatchRate         float64                    `json:"matchRate"`
	TotalRules        int                        `json:"totalRules"`
	ActiveRules       int                        `json:"activeRules"`
}

// GetStatistics computes pool-level reconciliation statistics
func (s *Service) GetStatistics() (*Statistics, error) {
	txs, total, err := s.store.Transactions().List(store.TransactionFilter{}, store.Pagination{})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalTransactions: total,
		ByStatus:          make(map[models.ReconStatus]int),
		GroupsByStatus:    make(map[models.MatchStatus]int),
	}

	matched := 0
	for _, tx := range txs {
		stats.ByStatus[tx.Status]++
		if tx.IsMatched() {
			matched++
		}
	}
	if total > 0 {
		stats.MatchRate = float64(matched) / float64(total) * 100
	}

	groups, groupTotal, err := s.store.Groups().List(store.GroupFilter{}, store.Pagination{})
	if err != nil {
		return nil, err
	}
	stats.TotalGroups = groupTotal
	for _, g := range groups {
		stats.GroupsByStatus[g.Status]++
	}

	allRules, err := s.store.Rules().List()
	if err != nil {
		return nil, err
	}
	stats.TotalRules = len(allRules)
	for _, r := range allRules {
		if r.IsApplicable() {
			stats.ActiveRules++
		}
	}

	return stats, nil
}
