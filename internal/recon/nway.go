package recon

import (
	"context"
	"sort"
	"sync"
	"time"

	"recon-core/internal/matcher"
	"recon-core/internal/models"
	"recon-core/internal/rules"
	"recon-core/internal/store"
	apperrors "recon-core/pkg/errors"
	"recon-core/pkg/logger"
)

// NWayConfig parameterizes a batch n-way run
type NWayConfig struct {
	// Sources restricts the candidate pool; empty means all sources.
	Sources []models.Source `json:"sources,omitempty"`
	// KeyFields are the fields every group member must agree on.
	KeyFields []string `json:"keyFields"`
	// Tolerance bounds amount and date agreement.
	Tolerance rules.Tolerance `json:"tolerance"`
	// MinConfidence rejects groups scoring below it.
	MinConfidence float64 `json:"minConfidence"`
	// Workers bounds partition parallelism; 0 means a small default.
	Workers int `json:"workers,omitempty"`
}

// PartitionOutcome is the per-partition result of a batch run
type PartitionOutcome struct {
	PartitionKey string  `json:"partitionKey"`
	Candidates   int     `json:"candidates"`
	Matched      bool    `json:"matched"`
	GroupID      string  `json:"groupId,omitempty"`
	RuleID       string  `json:"ruleId,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Skipped      string  `json:"skipped,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// NWayReport summarizes a batch n-way run. A cancelled run reports the
// partitions already processed; committed matches are not rolled back.
type NWayReport struct {
	StartedAt           time.Time          `json:"startedAt"`
	Duration            time.Duration      `json:"duration"`
	PoolSize            int                `json:"poolSize"`
	Partitions          int                `json:"partitions"`
	GroupsCreated       int                `json:"groupsCreated"`
	TransactionsMatched int                `json:"transactionsMatched"`
	Outcomes            []PartitionOutcome `json:"outcomes"`
	Cancelled           bool               `json:"cancelled"`
}

const defaultNWayWorkers = 4

// RunNWayMatch partitions the unmatched pool and evaluates each partition as
// an n-way candidate group. Partitions run in parallel; per-partition
// failures are reported in the outcome list and never abort the run. The
// context bounds the run: on cancellation remaining partitions are skipped
// and the partial report is returned.
func (s *Service) RunNWayMatch(ctx context.Context, cfg NWayConfig) (*NWayReport, error) {
	if len(cfg.KeyFields) == 0 {
		return nil, apperrors.Validation(apperrors.CodeEmptyKeyFields,
			"an n-way run requires at least one key field")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		return nil, apperrors.Validation(apperrors.CodeInvalidConfig,
			"minimum confidence must be between 0 and 100, got %f", cfg.MinConfidence)
	}

	started := time.Now().UTC()

	pool, err := s.loadPool(cfg.Sources)
	if err != nil {
		return nil, err
	}

	partitions := matcher.PartitionPool(pool, cfg.Tolerance)
	report := &NWayReport{
		StartedAt:  started,
		PoolSize:   len(pool),
		Partitions: len(partitions),
	}

	activeRules, err := s.store.Rules().ListApplicable()
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultNWayWorkers
	}
	if workers > len(partitions) && len(partitions) > 0 {
		workers = len(partitions)
	}

	progress := logger.NewProgressTracker("n-way match", int64(len(partitions)), s.log)

	jobs := make(chan matcher.Partition)
	results := make(chan PartitionOutcome, len(partitions))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for part := range jobs {
				results <- s.evaluatePartition(part, cfg, activeRules)
				progress.Increment(1)
			}
		}()
	}

dispatch:
	for _, part := range partitions {
		select {
		case <-ctx.Done():
			report.Cancelled = true
			break dispatch
		case jobs <- part:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	progress.Done()

	for outcome := range results {
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Matched {
			report.GroupsCreated++
			report.TransactionsMatched += outcome.Candidates
		}
	}
	sort.Slice(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].PartitionKey < report.Outcomes[j].PartitionKey
	})

	report.Duration = time.Since(started)
	s.log.WithFields(logger.Fields{
		"pool":           report.PoolSize,
		"partitions":     report.Partitions,
		"groups_created": report.GroupsCreated,
		"cancelled":      report.Cancelled,
		"duration":       report.Duration.String(),
	}).Info("n-way run finished")
	return report, nil
}

func (s *Service) loadPool(sources []models.Source) ([]*models.Transaction, error) {
	if len(sources) == 0 {
		pool, _, err := s.store.Transactions().List(
			store.TransactionFilter{Status: models.StatusUnmatched}, store.Pagination{})
		return pool, err
	}

	var pool []*models.Transaction
	for _, src := range sources {
		txs, _, err := s.store.Transactions().List(
			store.TransactionFilter{Status: models.StatusUnmatched, Source: src}, store.Pagination{})
		if err != nil {
			return nil, err
		}
		pool = append(pool, txs...)
	}
	return pool, nil
}

// evaluatePartition runs one partition through rule selection, strategy
// execution and group creation. Errors are captured in the outcome so the
// batch keeps going.
func (s *Service) evaluatePartition(part matcher.Partition, cfg NWayConfig, activeRules []*rules.Rule) PartitionOutcome {
	outcome := PartitionOutcome{
		PartitionKey: part.Key,
		Candidates:   len(part.Transactions),
	}

	if len(part.Transactions) < 3 {
		outcome.Skipped = "fewer than 3 candidates"
		return outcome
	}

	matchCfg := rules.MatchConfiguration{
		Strategy:  rules.StrategyNWay,
		Threshold: cfg.MinConfidence,
		Tolerance: cfg.Tolerance,
		KeyFields: cfg.KeyFields,
	}

	rule := s.selectPartitionRule(activeRules, part.Transactions)
	if rule != nil {
		outcome.RuleID = rule.ID
		if rule.Config.Strategy == rules.StrategyNWay {
			matchCfg = rule.Config
			if matchCfg.Threshold == 0 {
				matchCfg.Threshold = cfg.MinConfidence
			}
		}
	}

	result, err := s.executor.Execute(matchCfg, part.Transactions)
	if err != nil {
		outcome.Error = err.Error()
		s.recordRuleOutcome(rule, false)
		return outcome
	}

	outcome.Confidence = result.Confidence
	if !result.IsMatch || result.Confidence < cfg.MinConfidence {
		s.recordRuleOutcome(rule, false)
		return outcome
	}

	group, err := s.lifecycle.CreateGroup(part.Transactions, result, "nway-run")
	if err != nil {
		// A concurrent claim on one member loses the race; report it and
		// move on, the rest of the batch is unaffected.
		outcome.Error = err.Error()
		s.recordRuleOutcome(rule, false)
		return outcome
	}

	outcome.Matched = true
	outcome.GroupID = group.ID
	s.recordRuleOutcome(rule, true)
	return outcome
}

// selectPartitionRule returns the highest-priority active rule whose
// conditions hold for every member of the partition, or nil.
func (s *Service) selectPartitionRule(activeRules []*rules.Rule, members []*models.Transaction) *rules.Rule {
	for _, r := range activeRules {
		all := true
		for _, tx := range members {
			if !rules.EvaluateRule(r, tx) {
				all = false
				break
			}
		}
		if all {
			return r
		}
	}
	return nil
}

func (s *Service) recordRuleOutcome(rule *rules.Rule, successful bool) {
	if rule == nil {
		return
	}
	if err := s.store.Rules().RecordApplication(rule.ID, successful, time.Now().UTC()); err != nil {
		s.log.WithError(err).WithField("rule_id", rule.ID).
			Warn("failed to record rule application")
	}
}
