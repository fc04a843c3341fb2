package recon

import (
	"testing"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/store"
	apperrors "recon-core/pkg/errors"

	"github.com/shopspring/decimal"
)

func serviceTx(id string, source models.Source, amount float64, day int) *models.Transaction {
	return &models.Transaction{
		ID:       id,
		Source:   source,
		Date:     time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Amount:   decimal.NewFromFloat(amount),
		Currency: "USD",
		Status:   models.StatusUnmatched,
	}
}

func newTestService(t *testing.T, txs ...*models.Transaction) (*Service, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	for _, tx := range txs {
		if err := st.Transactions().Put(tx); err != nil {
			t.Fatal(err)
		}
	}
	svc, err := NewService(st, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return svc, st
}

func TestCreateManualMatch(t *testing.T) {
	svc, st := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
		serviceTx("erp-1", models.SourceERP, 500.00, 10),
	)

	group, err := svc.CreateManualMatch([]string{"bank-1", "erp-1"}, "ops", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if group.Strategy != "manual" || group.Confidence != 100 {
		t.Errorf("manual matches record strategy manual at confidence 100, got %s/%f",
			group.Strategy, group.Confidence)
	}

	tx, _ := st.Transactions().Get("bank-1")
	if tx.MatchID != group.ID {
		t.Errorf("member not claimed into group: %+v", tx)
	}
}

func TestCreateManualMatchRejectsMatchedMember(t *testing.T) {
	svc, st := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
		serviceTx("erp-1", models.SourceERP, 500.00, 10),
		serviceTx("gw-1", models.SourceGateway, 500.00, 10),
	)

	if _, err := svc.CreateManualMatch([]string{"bank-1", "erp-1"}, "ops", ""); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CreateManualMatch([]string{"erp-1", "gw-1"}, "ops", "")
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error for a matched member, got %v", err)
	}

	// The free candidate must be untouched.
	free, _ := st.Transactions().Get("gw-1")
	if free.Status != models.StatusUnmatched || free.MatchID != "" {
		t.Errorf("failed match must not mutate the pool: %+v", free)
	}
}

func TestCreateManualMatchValidation(t *testing.T) {
	svc, _ := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
	)

	if _, err := svc.CreateManualMatch([]string{"bank-1"}, "", ""); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for a single id, got %v", err)
	}
	if _, err := svc.CreateManualMatch([]string{"bank-1", "bank-1"}, "", ""); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for duplicate ids, got %v", err)
	}
	if _, err := svc.CreateManualMatch([]string{"bank-1", "ghost"}, "", ""); !apperrors.IsNotFound(err) {
		t.Errorf("expected not-found error for an unknown id, got %v", err)
	}
}

func TestCreateManualMatchIdempotencyKey(t *testing.T) {
	svc, _ := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
		serviceTx("erp-1", models.SourceERP, 500.00, 10),
	)

	first, err := svc.CreateManualMatch([]string{"bank-1", "erp-1"}, "ops", "req-42")
	if err != nil {
		t.Fatal(err)
	}

	// A replay with the same key returns the stored group rather than
	// re-validating the now-claimed members.
	replay, err := svc.CreateManualMatch([]string{"bank-1", "erp-1"}, "ops", "req-42")
	if err != nil {
		t.Fatalf("replay must succeed, got %v", err)
	}
	if replay.ID != first.ID {
		t.Errorf("replay returned a different group: %s vs %s", replay.ID, first.ID)
	}

	groups, total, _ := svc.ListMatches(store.GroupFilter{}, store.Pagination{})
	if total != 1 || len(groups) != 1 {
		t.Errorf("expected exactly one group, got %d", total)
	}
}

func TestMatchUnmatchRoundTrip(t *testing.T) {
	svc, st := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
		serviceTx("erp-1", models.SourceERP, 500.00, 10),
	)

	before, _ := st.Transactions().Get("bank-1")

	group, err := svc.CreateManualMatch([]string{"bank-1", "erp-1"}, "ops", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Unmatch(group.ID); err != nil {
		t.Fatal(err)
	}

	after, _ := st.Transactions().Get("bank-1")
	if !after.Equals(before) {
		t.Errorf("unmatch must restore the pre-match transaction: %+v vs %+v", after, before)
	}

	if _, err := svc.GetMatch(group.ID); !apperrors.IsNotFound(err) {
		t.Errorf("expected the group gone, got %v", err)
	}
}

func TestListUnmatchedForcesStatus(t *testing.T) {
	matched := serviceTx("bank-2", models.SourceBankFeed, 100.00, 11)
	matched.Status = models.StatusMatched
	matched.MatchID = "g-1"

	svc, _ := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
		matched,
	)

	// A caller-supplied status must not widen the unmatched listing.
	txs, total, err := svc.ListUnmatched(store.TransactionFilter{Status: models.StatusMatched}, store.Pagination{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || txs[0].ID != "bank-1" {
		t.Errorf("expected only the unmatched transaction, got %d", total)
	}
}

func TestSuggestMatchesForUnknownTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.SuggestMatches("ghost", 5); !apperrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestSuggestMatchesRanksCandidates(t *testing.T) {
	svc, _ := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
		serviceTx("erp-close", models.SourceERP, 500.00, 10),
		serviceTx("erp-far", models.SourceERP, 502.00, 12),
	)

	potential, err := svc.SuggestMatches("bank-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(potential.Candidates) < 2 {
		t.Fatalf("expected both candidates ranked, got %d", len(potential.Candidates))
	}
	if potential.Candidates[0].Transaction.ID != "erp-close" {
		t.Errorf("expected the exact counterpart ranked first, got %s",
			potential.Candidates[0].Transaction.ID)
	}
}

func TestGetStatistics(t *testing.T) {
	svc, _ := newTestService(t,
		serviceTx("bank-1", models.SourceBankFeed, 500.00, 10),
		serviceTx("erp-1", models.SourceERP, 500.00, 10),
		serviceTx("bank-2", models.SourceBankFeed, 75.00, 11),
		serviceTx("erp-2", models.SourceERP, 80.00, 12),
	)

	if _, err := svc.CreateManualMatch([]string{"bank-1", "erp-1"}, "ops", ""); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.GetStatistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTransactions != 4 {
		t.Errorf("expected 4 transactions, got %d", stats.TotalTransactions)
	}
	if stats.ByStatus[models.StatusMatched] != 2 || stats.ByStatus[models.StatusUnmatched] != 2 {
		t.Errorf("unexpected status breakdown: %+v", stats.ByStatus)
	}
	if stats.TotalGroups != 1 || stats.GroupsByStatus[models.MatchStatusMatched] != 1 {
		t.Errorf("unexpected group breakdown: %d %+v", stats.TotalGroups, stats.GroupsByStatus)
	}
	if stats.MatchRate != 50 {
		t.Errorf("expected 50%% match rate, got %f", stats.MatchRate)
	}
}
