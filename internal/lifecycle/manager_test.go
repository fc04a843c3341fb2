package lifecycle

import (
	"testing"
	"time"

	"recon-core/internal/matcher"
	"recon-core/internal/models"
	"recon-core/internal/rules"
	"recon-core/internal/store"
	apperrors "recon-core/pkg/errors"

	"github.com/shopspring/decimal"
)

func lifecycleTx(id string, amount float64) *models.Transaction {
	return &models.Transaction{
		ID:       id,
		Source:   models.SourceBankFeed,
		Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:   decimal.NewFromFloat(amount),
		Currency: "USD",
		Status:   models.StatusUnmatched,
	}
}

func manualResult() *matcher.MatchResult {
	return &matcher.MatchResult{
		IsMatch:    true,
		Strategy:   rules.StrategyManual,
		Confidence: 100,
	}
}

func setupManager(t *testing.T, txs ...*models.Transaction) (*Manager, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	for _, tx := range txs {
		if err := st.Transactions().Put(tx); err != nil {
			t.Fatal(err)
		}
	}
	return NewManager(st, nil), st
}

func TestCreateGroupClaimsMembers(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, st := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "ops")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if group.ID == "" {
		t.Error("expected a generated group id")
	}
	if group.Status != models.MatchStatusMatched {
		t.Errorf("new groups start matched, got %s", group.Status)
	}
	if !group.TotalAmount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected total 200, got %s", group.TotalAmount)
	}
	if !group.Variance.IsZero() {
		t.Errorf("expected zero variance, got %s", group.Variance)
	}

	stored, _ := st.Transactions().Get("t1")
	if stored.MatchID != group.ID || stored.Status != models.StatusMatched {
		t.Errorf("member not claimed: %+v", stored)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	mgr, _ := setupManager(t, t1)

	if _, err := mgr.CreateGroup([]*models.Transaction{t1}, manualResult(), ""); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for <2 members, got %v", err)
	}

	if _, err := mgr.CreateGroup([]*models.Transaction{t1, t1}, manualResult(), ""); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for duplicate ids, got %v", err)
	}

	miss := &matcher.MatchResult{IsMatch: false, Strategy: rules.StrategyFuzzy}
	t2 := lifecycleTx("t2", 100.00)
	if _, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, miss, ""); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for non-matching result, got %v", err)
	}
}

func TestCreateGroupAlreadyMatchedMember(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	t3 := lifecycleTx("t3", 100.00)
	mgr, st := setupManager(t, t1, t2, t3)

	first, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}

	claimed, _ := st.Transactions().Get("t2")
	if _, err := mgr.CreateGroup([]*models.Transaction{claimed, t3}, manualResult(), ""); !apperrors.IsPrecondition(err) {
		t.Errorf("expected precondition error, got %v", err)
	}

	// The untouched member stays free and the first group stands.
	free, _ := st.Transactions().Get("t3")
	if free.IsMatched() {
		t.Error("failed create must not claim any member")
	}
	if _, err := st.Groups().Get(first.ID); err != nil {
		t.Errorf("first group must survive: %v", err)
	}
}

func TestApproveFlow(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, st := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}

	reviewed, err := mgr.SendToReview(group.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != models.MatchStatusUnderReview {
		t.Errorf("expected under_review, got %s", reviewed.Status)
	}

	approved, err := mgr.Approve(group.ID, "lead")
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != models.MatchStatusApproved || approved.ApprovedBy != "lead" {
		t.Errorf("unexpected group after approve: %+v", approved)
	}
	if approved.ApprovedAt == nil {
		t.Error("expected approval timestamp")
	}

	member, _ := st.Transactions().Get("t1")
	if member.Status != models.StatusApproved {
		t.Errorf("member status must follow the group, got %s", member.Status)
	}

	// Approving an approved group is a retry-safe no-op.
	if _, err := mgr.Approve(group.ID, "lead"); err != nil {
		t.Errorf("approve retry must succeed, got %v", err)
	}
}

func TestApproveDirectlyFromMatched(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, _ := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.Approve(group.ID, "lead"); err != nil {
		t.Errorf("matched groups can be approved without review, got %v", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, _ := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.Reject(group.ID, "lead", ""); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error without reason, got %v", err)
	}

	rejected, err := mgr.Reject(group.ID, "lead", "amounts look wrong")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != models.MatchStatusRejected || rejected.RejectionReason == "" {
		t.Errorf("unexpected group after reject: %+v", rejected)
	}
}

func TestRejectApprovedGroupFails(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, st := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Approve(group.ID, "lead"); err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.Reject(group.ID, "lead", "changed my mind"); !apperrors.IsPrecondition(err) {
		t.Errorf("expected precondition error, got %v", err)
	}

	// The group must keep its approved status.
	stored, _ := st.Groups().Get(group.ID)
	if stored.Status != models.MatchStatusApproved {
		t.Errorf("group status must remain approved, got %s", stored.Status)
	}
}

func TestApproveRejectedGroupFails(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, _ := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Reject(group.ID, "lead", "wrong pairing"); err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.Approve(group.ID, "lead"); !apperrors.IsPrecondition(err) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestUnmatchRoundTrip(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, st := setupManager(t, t1, t2)

	before, _ := st.Transactions().Get("t1")

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.Unmatch(group.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, _ := st.Transactions().Get("t1")
	if !after.Equals(before) {
		t.Errorf("unmatch must restore the pre-match state: %+v vs %+v", after, before)
	}
	if after.Status != models.StatusUnmatched || after.MatchID != "" || after.MatchConfidence != 0 {
		t.Errorf("expected cleared match metadata, got %+v", after)
	}

	if _, err := st.Groups().Get(group.ID); !apperrors.IsNotFound(err) {
		t.Errorf("expected group deleted, got %v", err)
	}
}

func TestUnmatchIdempotent(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, st := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.Unmatch(group.ID); err != nil {
		t.Fatal(err)
	}
	snapshot, _ := st.Transactions().Get("t1")

	// Unmatching the now-deleted id again succeeds and changes nothing.
	if err := mgr.Unmatch(group.ID); err != nil {
		t.Fatalf("second unmatch must be a no-op success, got %v", err)
	}
	again, _ := st.Transactions().Get("t1")
	if !again.Equals(snapshot) {
		t.Error("second unmatch must leave the pool identical")
	}

	if err := mgr.Unmatch("never-existed"); err != nil {
		t.Errorf("unmatching an unknown id must succeed, got %v", err)
	}
}

func TestUnmatchApprovedGroup(t *testing.T) {
	t1 := lifecycleTx("t1", 100.00)
	t2 := lifecycleTx("t2", 100.00)
	mgr, st := setupManager(t, t1, t2)

	group, err := mgr.CreateGroup([]*models.Transaction{t1, t2}, manualResult(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Approve(group.ID, "lead"); err != nil {
		t.Fatal(err)
	}

	// Unmatch is permitted from any state, terminal included.
	if err := mgr.Unmatch(group.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	member, _ := st.Transactions().Get("t1")
	if member.Status != models.StatusUnmatched {
		t.Errorf("expected released member, got %s", member.Status)
	}
}
