// Package lifecycle owns the match-group state machine: group creation with
// member claiming, review transitions, approval and rejection, and idempotent
// unmatch. All persistence goes through the store interfaces so the manager
// works identically over the in-memory and SQLite backends.
package lifecycle

import (
	"time"

	"recon-core/internal/matcher"
	"recon-core/internal/models"
	"recon-core/internal/store"
	apperrors "recon-core/pkg/errors"
	"recon-core/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Manager applies match-group transitions over the shared stores
type Manager struct {
	transactions store.TransactionStore
	groups       store.MatchGroupStore
	log          logger.Logger

	// now is swappable for deterministic tests
	now func() time.Time
}

// NewManager creates a lifecycle manager over the given store
func NewManager(st store.Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Manager{
		transactions: st.Transactions(),
		groups:       st.Groups(),
		log:          log.WithComponent("lifecycle"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateGroup persists a new match group for the given candidates and claims
// every member transaction into it. Candidates must all be unmatched; the
// store-level claim re-checks that under its own lock, so a concurrent claim
// of the same transaction fails with a conflict rather than overwriting.
func (m *Manager) CreateGroup(candidates []*models.Transaction, result *matcher.MatchResult, createdBy string) (*models.MatchGroup, error) {
	if len(candidates) < 2 {
		return nil, apperrors.Validation(apperrors.CodeTooFewTransactions,
			"a match group requires at least 2 transactions, got %d", len(candidates))
	}
	if result == nil || !result.IsMatch {
		return nil, apperrors.Validation(apperrors.CodeInvalidConfig,
			"cannot create a group from a non-matching result")
	}

	seen := make(map[string]bool, len(candidates))
	ids := make([]string, 0, len(candidates))
	amounts := make([]decimal.Decimal, 0, len(candidates))
	for _, tx := range candidates {
		if seen[tx.ID] {
			return nil, apperrors.Validation(apperrors.CodeDuplicateID,
				"transaction %s appears more than once in the candidate set", tx.ID)
		}
		seen[tx.ID] = true
		if tx.IsMatched() {
			return nil, apperrors.Precondition(apperrors.CodeTransactionNotFree,
				"transaction %s is already matched into group %s", tx.ID, tx.MatchID)
		}
		ids = append(ids, tx.ID)
		amounts = append(amounts, tx.Amount)
	}

	variance := matcher.ComputeVariance(amounts)
	if variance.Degenerate {
		m.log.WithFields(logger.Fields{
			"transaction_ids": ids,
			"variance":        variance.Variance.String(),
		}).Warn("variance percentage is undefined for zero-average group")
	}

	group := &models.MatchGroup{
		ID:                 uuid.New().String(),
		Strategy:           string(result.Strategy),
		Confidence:         result.Confidence,
		Status:             models.MatchStatusMatched,
		TransactionIDs:     ids,
		TotalAmount:        matcher.SumAmounts(amounts),
		Variance:           variance.Variance,
		VariancePct:        variance.VariancePct,
		DegenerateVariance: variance.Degenerate,
		CreatedBy:          createdBy,
		CreatedAt:          m.now(),
	}

	if err := m.transactions.Claim(ids, group.ID, group.Strategy, group.Confidence, models.StatusMatched); err != nil {
		return nil, err
	}
	if err := m.groups.Put(group); err != nil {
		// Roll the claim back so the members are not orphaned into a group
		// that was never persisted.
		if relErr := m.transactions.Release(ids); relErr != nil {
			m.log.WithError(relErr).WithField("group_id", group.ID).
				Error("failed to release members after group store failure")
		}
		return nil, err
	}

	m.log.WithFields(logger.Fields{
		"group_id":   group.ID,
		"strategy":   group.Strategy,
		"confidence": group.Confidence,
		"members":    len(ids),
	}).Info("match group created")
	return group, nil
}

// SendToReview moves a matched group into under_review
func (m *Manager) SendToReview(groupID string) (*models.MatchGroup, error) {
	group, err := m.groups.Get(groupID)
	if err != nil {
		return nil, err
	}

	if group.Status == models.MatchStatusUnderReview {
		return group, nil
	}
	if group.Status != models.MatchStatusMatched {
		return nil, m.terminalTransitionError(group, "send to review")
	}

	group.Status = models.MatchStatusUnderReview
	if err := m.persistTransition(group, models.StatusUnderReview); err != nil {
		return nil, err
	}
	return group, nil
}

// Approve moves a matched or under_review group to approved. Approving a
// group that is already approved is a no-op success, so operator retries are
// safe; approving a rejected group is an invalid transition.
func (m *Manager) Approve(groupID, approver string) (*models.MatchGroup, error) {
	group, err := m.groups.Get(groupID)
	if err != nil {
		return nil, err
	}

	if group.Status == models.MatchStatusApproved {
		return group, nil
	}
	if group.Status.IsTerminal() {
		return nil, m.terminalTransitionError(group, "approve")
	}

	now := m.now()
	group.Status = models.MatchStatusApproved
	group.ApprovedBy = approver
	group.ApprovedAt = &now
	if err := m.persistTransition(group, models.StatusApproved); err != nil {
		return nil, err
	}

	m.log.WithFields(logger.Fields{"group_id": group.ID, "approver": approver}).
		Info("match group approved")
	return group, nil
}

// Reject moves a matched or under_review group to rejected. A reason is
// required. Rejecting an already-rejected group is a no-op success; rejecting
// an approved group is an invalid transition.
func (m *Manager) Reject(groupID, rejecter, reason string) (*models.MatchGroup, error) {
	if reason == "" {
		return nil, apperrors.Validation(apperrors.CodeMissingReason,
			"rejecting a match group requires a reason")
	}

	group, err := m.groups.Get(groupID)
	if err != nil {
		return nil, err
	}

	if group.Status == models.MatchStatusRejected {
		return group, nil
	}
	if group.Status.IsTerminal() {
		return nil, m.terminalTransitionError(group, "reject")
	}

	now := m.now()
	group.Status = models.MatchStatusRejected
	group.RejectedBy = rejecter
	group.RejectedAt = &now
	group.RejectionReason = reason
	if err := m.persistTransition(group, models.StatusRejected); err != nil {
		return nil, err
	}

	m.log.WithFields(logger.Fields{"group_id": group.ID, "rejecter": rejecter, "reason": reason}).
		Info("match group rejected")
	return group, nil
}

// Unmatch deletes a group and returns every member transaction to unmatched
// with its match metadata cleared. Unmatching an id that does not exist is a
// no-op success so at-least-once retries converge.
func (m *Manager) Unmatch(groupID string) error {
	group, err := m.groups.Get(groupID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := m.transactions.Release(group.TransactionIDs); err != nil {
		return err
	}
	if err := m.groups.Delete(groupID); err != nil {
		return err
	}

	m.log.WithFields(logger.Fields{"group_id": groupID, "members": len(group.TransactionIDs)}).
		Info("match group unmatched")
	return nil
}

func (m *Manager) persistTransition(group *models.MatchGroup, memberStatus models.ReconStatus) error {
	if err := m.groups.Put(group); err != nil {
		return err
	}
	return m.transactions.SetStatusByMatch(group.ID, memberStatus)
}

func (m *Manager) terminalTransitionError(group *models.MatchGroup, action string) error {
	return apperrors.Precondition(apperrors.CodeTerminalGroup,
		"cannot %s group %s in terminal status %s", action, group.ID, group.Status).
		WithSuggestion("unmatch the group and re-create the match if the decision must change")
}
