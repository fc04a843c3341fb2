package recon

import (
	"time"

	"recon-core/internal/rules"
	apperrors "recon-core/pkg/errors"

	"github.com/google/uuid"
)

// ListRules returns all stored rules ordered by priority
func (s *Service) ListRules() ([]*rules.Rule, error) {
	return s.store.Rules().List()
}

// GetRule returns a rule by id
func (s *Service) GetRule(id string) (*rules.Rule, error) {
	return s.store.Rules().Get(id)
}

// SaveRule validates and persists a rule, bumping its version
func (s *Service) SaveRule(rule *rules.Rule) error {
	return s.store.Rules().Put(rule)
}

// LoadRulesFromFile loads rule definitions from a YAML file into the store.
// Returns the number of rules loaded.
func (s *Service) LoadRulesFromFile(path string) (int, error) {
	loaded, err := rules.LoadRuleFile(path)
	if err != nil {
		return 0, err
	}

	for _, rule := range loaded {
		if err := s.store.Rules().Put(rule); err != nil {
			return 0, err
		}
	}

	s.log.WithField("count", len(loaded)).Info("rules loaded from file")
	return len(loaded), nil
}

// SubmitRuleForApproval opens an approval request for a draft or inactive
// rule and moves the rule to pending_approval.
func (s *Service) SubmitRuleForApproval(ruleID, requestedBy string) (*rules.ApprovalRequest, error) {
	rule, err := s.store.Rules().Get(ruleID)
	if err != nil {
		return nil, err
	}

	req := &rules.ApprovalRequest{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		RuleVersion: rule.Version,
		Status:      rules.ApprovalPending,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.store.Rules().SubmitForApproval(req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecideRuleApproval resolves a pending approval request. An approved rule
// becomes active; a rejected one requires a reason.
func (s *Service) DecideRuleApproval(requestID string, approve bool, decidedBy, reason string) error {
	status := rules.ApprovalApproved
	if !approve {
		if reason == "" {
			return apperrors.Validation(apperrors.CodeMissingReason,
				"rejecting a rule requires a reason")
		}
		status = rules.ApprovalRejected
	}
	return s.store.Rules().DecideApproval(requestID, status, decidedBy, reason, time.Now().UTC())
}

// ListRuleApprovals returns the approval audit trail for a rule
func (s *Service) ListRuleApprovals(ruleID string) ([]*rules.ApprovalRequest, error) {
	return s.store.Rules().ListApprovals(ruleID)
}
