package matcher

import (
	"math"
	"testing"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/rules"
	apperrors "recon-core/pkg/errors"

	"github.com/shopspring/decimal"
)

func testTx(id string, amount float64, date time.Time) *models.Transaction {
	return &models.Transaction{
		ID:       id,
		Source:   models.SourceBankFeed,
		Date:     date,
		Amount:   decimal.NewFromFloat(amount),
		Currency: "USD",
		Status:   models.StatusUnmatched,
	}
}

var testDate = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func TestExecuteRequiresTwoCandidates(t *testing.T) {
	executor := NewExecutor(nil)

	_, err := executor.Execute(rules.MatchConfiguration{Strategy: rules.StrategyExact},
		[]*models.Transaction{testTx("t1", 100, testDate)})
	if err == nil {
		t.Fatal("expected error for single candidate")
	}
	if !apperrors.IsPrecondition(err) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestExecuteExactMatch(t *testing.T) {
	executor := NewExecutor(nil)

	candidates := []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1000.00, testDate),
	}

	result, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyExact,
		KeyFields: []string{"amount"},
	}, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.IsMatch {
		t.Error("expected exact match")
	}
	if result.Confidence != 100 {
		t.Errorf("exact match confidence must be exactly 100, got %f", result.Confidence)
	}

	variance := ComputeVariance([]decimal.Decimal{candidates[0].Amount, candidates[1].Amount})
	if !variance.Variance.IsZero() {
		t.Errorf("exact match variance must be exactly 0, got %s", variance.Variance)
	}
}

func TestExecuteExactMismatch(t *testing.T) {
	executor := NewExecutor(nil)

	result, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyExact,
		KeyFields: []string{"amount"},
	}, []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1000.01, testDate),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.IsMatch {
		t.Error("expected no match for differing amounts")
	}
	if result.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", result.Confidence)
	}
}

func TestExecuteExactDefaultKeyFields(t *testing.T) {
	executor := NewExecutor(nil)

	// Same amount and date but different currency must not match when the
	// configuration names no key fields.
	a := testTx("t1", 500.00, testDate)
	b := testTx("t2", 500.00, testDate)
	b.Currency = "EUR"

	result, err := executor.Execute(rules.MatchConfiguration{Strategy: rules.StrategyExact},
		[]*models.Transaction{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsMatch {
		t.Error("expected currency difference to block the default exact match")
	}
}

func TestExecuteFuzzyWithinTolerance(t *testing.T) {
	executor := NewExecutor(nil)

	result, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyFuzzy,
		Threshold: 85,
		Tolerance: rules.Tolerance{Amount: decimal.NewFromFloat(1.00)},
	}, []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1000.50, testDate),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.IsMatch {
		t.Errorf("expected fuzzy match at confidence %f", result.Confidence)
	}
	if result.Confidence < 85 {
		t.Errorf("expected confidence >= threshold 85, got %f", result.Confidence)
	}

	// Amount component 85, date component 100, weighted 0.7/0.3.
	if math.Abs(result.Confidence-89.5) > 0.001 {
		t.Errorf("expected confidence 89.5, got %f", result.Confidence)
	}

	variance := ComputeVariance([]decimal.Decimal{
		decimal.NewFromFloat(1000.00), decimal.NewFromFloat(1000.50),
	})
	if !variance.Variance.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("expected variance 0.25, got %s", variance.Variance)
	}
	pct, _ := variance.VariancePct.Float64()
	if math.Abs(pct-0.025) > 0.001 {
		t.Errorf("expected variance percentage near 0.025, got %f", pct)
	}
}

func TestExecuteFuzzyOutsideTolerance(t *testing.T) {
	executor := NewExecutor(nil)

	result, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyFuzzy,
		Threshold: 50,
		Tolerance: rules.Tolerance{Amount: decimal.NewFromFloat(1.00)},
	}, []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1002.00, testDate),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.IsMatch {
		t.Error("expected no match outside amount tolerance")
	}
	if result.Confidence != 0 {
		t.Errorf("pair outside tolerance must score 0, got %f", result.Confidence)
	}
}

func TestExecuteFuzzyZeroThresholdNeedsPositiveConfidence(t *testing.T) {
	executor := NewExecutor(nil)

	// Threshold 0 must not turn a zero-confidence pair into a match.
	result, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyFuzzy,
		Threshold: 0,
		Tolerance: rules.Tolerance{Amount: decimal.NewFromFloat(0.01)},
	}, []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 2000.00, testDate),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsMatch {
		t.Error("zero-confidence pair must not match even at threshold 0")
	}
}

func TestExecuteNWayMinimumParticipants(t *testing.T) {
	executor := NewExecutor(nil)

	_, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyNWay,
		KeyFields: []string{"amount"},
		Tolerance: rules.Tolerance{Amount: decimal.NewFromFloat(1.00)},
	}, []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1000.50, testDate),
	})
	if err == nil {
		t.Fatal("expected precondition error for 2 candidates")
	}
	if !apperrors.IsPrecondition(err) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestExecuteNWayThreeCandidates(t *testing.T) {
	executor := NewExecutor(nil)

	result, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyNWay,
		KeyFields: []string{"amount"},
		Tolerance: rules.Tolerance{Amount: decimal.NewFromFloat(1.00)},
	}, []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1000.50, testDate),
		testTx("t3", 999.75, testDate),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.IsMatch {
		t.Fatal("expected n-way match")
	}

	// Group confidence is the minimum pairwise confidence; the weakest pair
	// is 1000.50 vs 999.75.
	weakest := executor.PairwiseConfidence(
		testTx("a", 1000.50, testDate), testTx("b", 999.75, testDate),
		rules.Tolerance{Amount: decimal.NewFromFloat(1.00)})
	if math.Abs(result.Confidence-weakest.Confidence) > 0.001 {
		t.Errorf("expected confidence %f (minimum pairwise), got %f",
			weakest.Confidence, result.Confidence)
	}
	if math.Abs(result.Confidence-84.25) > 0.001 {
		t.Errorf("expected confidence 84.25, got %f", result.Confidence)
	}
}

func TestExecuteNWayKeyFieldDisagreement(t *testing.T) {
	executor := NewExecutor(nil)

	result, err := executor.Execute(rules.MatchConfiguration{
		Strategy:  rules.StrategyNWay,
		KeyFields: []string{"amount"},
		Tolerance: rules.Tolerance{Amount: decimal.NewFromFloat(1.00)},
	}, []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1000.50, testDate),
		testTx("t3", 1010.00, testDate),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsMatch {
		t.Error("expected no match when one pair is outside tolerance")
	}
}

func TestExecuteManual(t *testing.T) {
	executor := NewExecutor(nil)

	result, err := executor.Execute(rules.MatchConfiguration{Strategy: rules.StrategyManual},
		[]*models.Transaction{
			testTx("t1", 10.00, testDate),
			testTx("t2", 9999.00, testDate.AddDate(0, 0, 30)),
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsMatch || result.Confidence != 100 {
		t.Errorf("manual strategy must always match at confidence 100, got %v", result)
	}
}

func TestPairwiseConfidenceCurrencyMismatch(t *testing.T) {
	executor := NewExecutor(nil)

	a := testTx("t1", 100.00, testDate)
	b := testTx("t2", 100.00, testDate)
	b.Currency = "EUR"

	score := executor.PairwiseConfidence(a, b, rules.Tolerance{Amount: decimal.NewFromFloat(5)})
	if score.Confidence != 0 {
		t.Errorf("currency mismatch must score 0, got %f", score.Confidence)
	}
}

func TestPairwiseConfidenceDateWindow(t *testing.T) {
	executor := NewExecutor(nil)
	tol := rules.Tolerance{Amount: decimal.NewFromFloat(1), DateDays: 2}

	sameDay := executor.PairwiseConfidence(
		testTx("a", 100, testDate), testTx("b", 100, testDate), tol)
	oneDay := executor.PairwiseConfidence(
		testTx("a", 100, testDate), testTx("b", 100, testDate.AddDate(0, 0, 1)), tol)
	outside := executor.PairwiseConfidence(
		testTx("a", 100, testDate), testTx("b", 100, testDate.AddDate(0, 0, 5)), tol)

	if sameDay.Confidence != 100 {
		t.Errorf("identical pair must score 100, got %f", sameDay.Confidence)
	}
	if oneDay.Confidence >= sameDay.Confidence {
		t.Errorf("date distance must lower the score: %f vs %f",
			oneDay.Confidence, sameDay.Confidence)
	}
	// Outside the window the date component contributes nothing; amount
	// component alone remains.
	if math.Abs(outside.Confidence-70) > 0.001 {
		t.Errorf("expected 70 outside date window, got %f", outside.Confidence)
	}
}

func TestPercentToleranceWidensAbsolute(t *testing.T) {
	executor := NewExecutor(nil)

	// 1% of 10000 is 100, far wider than the absolute tolerance of 1.
	tol := rules.Tolerance{Amount: decimal.NewFromFloat(1), Percent: 1.0}
	score := executor.PairwiseConfidence(
		testTx("a", 10000, testDate), testTx("b", 10050, testDate), tol)
	if score.Confidence == 0 {
		t.Error("expected percent tolerance to admit the pair")
	}
}

func TestExecuteInvalidConfiguration(t *testing.T) {
	executor := NewExecutor(nil)

	_, err := executor.Execute(rules.MatchConfiguration{
		Strategy: rules.StrategyNWay,
	}, []*models.Transaction{
		testTx("t1", 100, testDate),
		testTx("t2", 100, testDate),
		testTx("t3", 100, testDate),
	})
	if err == nil {
		t.Fatal("expected error for n_way without key fields")
	}
}

func TestExecuteDeterministic(t *testing.T) {
	executor := NewExecutor(nil)
	cfg := rules.MatchConfiguration{
		Strategy:  rules.StrategyFuzzy,
		Threshold: 80,
		Tolerance: rules.Tolerance{Amount: decimal.NewFromFloat(1.00)},
	}
	candidates := []*models.Transaction{
		testTx("t1", 1000.00, testDate),
		testTx("t2", 1000.40, testDate.AddDate(0, 0, 1)),
	}

	first, err := executor.Execute(cfg, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := executor.Execute(cfg, candidates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.IsMatch != first.IsMatch || again.Confidence != first.Confidence {
			t.Fatalf("execution is not deterministic: %v vs %v", again, first)
		}
	}
}
