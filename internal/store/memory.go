package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/rules"
	apperrors "recon-core/pkg/errors"
)

// MemoryStore is the in-memory Store implementation. It is the default
// backend and the test double: a single mutex serializes all mutations,
// which gives the single-writer-per-transaction-id discipline directly.
type MemoryStore struct {
	mu              sync.RWMutex
	transactions    map[string]*models.Transaction
	groups          map[string]*models.MatchGroup
	rules           map[string]*rules.Rule
	approvals       map[string]*rules.ApprovalRequest
	approvalsByRule map[string][]string
	idempotency     map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions:    make(map[string]*models.Transaction),
		groups:          make(map[string]*models.MatchGroup),
		rules:           make(map[string]*rules.Rule),
		approvals:       make(map[string]*rules.ApprovalRequest),
		approvalsByRule: make(map[string][]string),
		idempotency:     make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

// Transactions returns the transaction repository
func (m *MemoryStore) Transactions() TransactionStore { return &memTransactions{m} }

// Groups returns the match group repository
func (m *MemoryStore) Groups() MatchGroupStore { return &memGroups{m} }

// Rules returns the rule repository
func (m *MemoryStore) Rules() RuleStore { return &memRules{m} }

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error { return nil }

// memTransactions is the TransactionStore view over a MemoryStore
type memTransactions struct {
	s *MemoryStore
}

var _ TransactionStore = (*memTransactions)(nil)

func (t *memTransactions) Get(id string) (*models.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	tx, ok := t.s.transactions[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeTransactionMissing, "transaction", id)
	}
	return tx.Clone(), nil
}

func (t *memTransactions) List(filter TransactionFilter, page Pagination) ([]*models.Transaction, int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	matched := make([]*models.Transaction, 0, len(t.s.transactions))
	for _, tx := range t.s.transactions {
		if matchesFilter(tx, filter) {
			matched = append(matched, tx.Clone())
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return paginate(matched, page), total, nil
}

func matchesFilter(tx *models.Transaction, f TransactionFilter) bool {
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Source != "" && tx.Source != f.Source {
		return false
	}
	if f.DateFrom != nil && tx.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && tx.Date.After(*f.DateTo) {
		return false
	}
	if f.AmountMin != nil && tx.Amount.LessThan(*f.AmountMin) {
		return false
	}
	if f.AmountMax != nil && tx.Amount.GreaterThan(*f.AmountMax) {
		return false
	}
	if f.PartnerID != "" && tx.PartnerID != f.PartnerID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(tx.Description), needle) &&
			!strings.Contains(strings.ToLower(tx.Reference), needle) {
			return false
		}
	}
	return true
}

func paginate(txs []*models.Transaction, page Pagination) []*models.Transaction {
	if page.Offset >= len(txs) {
		return []*models.Transaction{}
	}
	txs = txs[page.Offset:]
	if page.Limit > 0 && len(txs) > page.Limit {
		txs = txs[:page.Limit]
	}
	return txs
}

func (t *memTransactions) Put(tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidConfig, "invalid transaction")
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.s.transactions[tx.ID] = tx.Clone()
	return nil
}

func (t *memTransactions) Claim(ids []string, groupID, matchType string, confidence float64, status models.ReconStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// Verify every member before mutating any of them, so a failed claim
	// leaves the pool untouched.
	for _, id := range ids {
		tx, ok := t.s.transactions[id]
		if !ok {
			return apperrors.NotFound(apperrors.CodeTransactionMissing, "transaction", id)
		}
		if tx.IsMatched() {
			return apperrors.Conflict(id, tx.MatchID)
		}
	}

	for _, id := range ids {
		tx := t.s.transactions[id]
		tx.Status = status
		tx.MatchID = groupID
		tx.MatchType = matchType
		tx.MatchConfidence = confidence
	}
	return nil
}

func (t *memTransactions) Release(ids []string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, id := range ids {
		if tx, ok := t.s.transactions[id]; ok {
			tx.ClearMatch()
		}
	}
	return nil
}

func (t *memTransactions) SetStatusByMatch(groupID string, status models.ReconStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, tx := range t.s.transactions {
		if tx.MatchID == groupID {
			tx.Status = status
		}
	}
	return nil
}

// memGroups is the MatchGroupStore view over a MemoryStore
type memGroups struct {
	s *MemoryStore
}

var _ MatchGroupStore = (*memGroups)(nil)

func (g *memGroups) Get(id string) (*models.MatchGroup, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	group, ok := g.s.groups[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeGroupMissing, "match group", id)
	}
	return group.Clone(), nil
}

func (g *memGroups) List(filter GroupFilter, page Pagination) ([]*models.MatchGroup, int, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	matched := make([]*models.MatchGroup, 0, len(g.s.groups))
	for _, group := range g.s.groups {
		if filter.Status != "" && group.Status != filter.Status {
			continue
		}
		if filter.Strategy != "" && group.Strategy != filter.Strategy {
			continue
		}
		matched = append(matched, group.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if page.Offset >= len(matched) {
		return []*models.MatchGroup{}, total, nil
	}
	matched = matched[page.Offset:]
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, total, nil
}

func (g *memGroups) Put(group *models.MatchGroup) error {
	if err := group.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidConfig, "invalid match group")
	}

	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	g.s.groups[group.ID] = group.Clone()
	return nil
}

func (g *memGroups) Delete(id string) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	delete(g.s.groups, id)
	return nil
}

func (g *memGroups) LookupIdempotencyKey(key string) (string, bool, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	groupID, ok := g.s.idempotency[key]
	return groupID, ok, nil
}

func (g *memGroups) RememberIdempotencyKey(key, groupID string) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	g.s.idempotency[key] = groupID
	return nil
}

// memRules is the RuleStore view over a MemoryStore
type memRules struct {
	s *MemoryStore
}

var _ RuleStore = (*memRules)(nil)

func (r *memRules) Get(id string) (*rules.Rule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rule, ok := r.s.rules[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeRuleMissing, "rule", id)
	}
	return rule.Clone(), nil
}

func (r *memRules) List() ([]*rules.Rule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*rules.Rule, 0, len(r.s.rules))
	for _, rule := range r.s.rules {
		result = append(result, rule.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *memRules) ListApplicable() ([]*rules.Rule, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}

	applicable := make([]*rules.Rule, 0, len(all))
	for _, rule := range all {
		if rule.IsApplicable() {
			applicable = append(applicable, rule)
		}
	}
	return applicable, nil
}

func (r *memRules) Put(rule *rules.Rule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidConfig, "invalid rule")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := rule.Clone()
	if existing, ok := r.s.rules[rule.ID]; ok {
		stored.Version = existing.Version + 1
	} else if stored.Version == 0 {
		stored.Version = 1
	}
	stored.UpdatedAt = time.Now().UTC()

	r.s.rules[rule.ID] = stored
	return nil
}

func (r *memRules) RecordApplication(ruleID string, successful bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rule, ok := r.s.rules[ruleID]
	if !ok {
		return apperrors.NotFound(apperrors.CodeRuleMissing, "rule", ruleID)
	}

	rule.TimesApplied++
	if successful {
		rule.SuccessfulMatches++
	}
	applied := at
	rule.LastAppliedAt = &applied
	return nil
}

func (r *memRules) SubmitForApproval(req *rules.ApprovalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rule, ok := r.s.rules[req.RuleID]
	if !ok {
		return apperrors.NotFound(apperrors.CodeRuleMissing, "rule", req.RuleID)
	}

	if rule.Status != rules.RuleDraft && rule.Status != rules.RuleInactive {
		return apperrors.Precondition(apperrors.CodeInvalidRuleState,
			"rule %s cannot be submitted for approval from status %s", req.RuleID, rule.Status)
	}

	stored := *req
	stored.Status = rules.ApprovalPending
	r.s.approvals[req.ID] = &stored
	r.s.approvalsByRule[req.RuleID] = append(r.s.approvalsByRule[req.RuleID], req.ID)
	rule.Status = rules.RulePendingApproval
	return nil
}

func (r *memRules) DecideApproval(requestID string, status rules.ApprovalStatus, decidedBy, reason string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.approvals[requestID]
	if !ok {
		return apperrors.NotFound(apperrors.CodeRuleMissing, "approval request", requestID)
	}

	if req.Status != rules.ApprovalPending {
		return apperrors.Precondition(apperrors.CodeInvalidRuleState,
			"approval request %s is already decided (%s)", requestID, req.Status)
	}

	rule, ok := r.s.rules[req.RuleID]
	if !ok {
		return apperrors.NotFound(apperrors.CodeRuleMissing, "rule", req.RuleID)
	}

	req.Status = status
	req.DecidedBy = decidedBy
	req.Reason = reason
	decided := at
	req.DecidedAt = &decided

	switch status {
	case rules.ApprovalApproved:
		rule.Status = rules.RuleActive
	case rules.ApprovalRejected:
		rule.Status = rules.RuleRejected
	}
	return nil
}

func (r *memRules) ListApprovals(ruleID string) ([]*rules.ApprovalRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.approvalsByRule[ruleID]
	result := make([]*rules.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		if req, ok := r.s.approvals[id]; ok {
			clone := *req
			result = append(result, &clone)
		}
	}
	return result, nil
}
