package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/rules"
	apperrors "recon-core/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteStore is the durable Store implementation. Rule conditions and match
// configurations are stored as JSON blobs; amounts as decimal strings, dates
// as RFC3339 strings. Claims run inside a database transaction with guarded
// updates, which serializes competing writers on the same transaction ids.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed initializes) a SQLite-backed store
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to open sqlite database")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, apperrors.Internal(err, "failed to enable foreign keys")
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id               TEXT PRIMARY KEY,
		source           TEXT NOT NULL,
		date             TEXT NOT NULL,
		amount           TEXT NOT NULL,
		currency         TEXT NOT NULL,
		description      TEXT,
		reference        TEXT,
		partner_id       TEXT,
		status           TEXT NOT NULL,
		match_id         TEXT,
		match_type       TEXT,
		match_confidence REAL
	);

	CREATE TABLE IF NOT EXISTS match_groups (
		id               TEXT PRIMARY KEY,
		strategy         TEXT NOT NULL,
		confidence       REAL NOT NULL,
		status           TEXT NOT NULL,
		transaction_ids  TEXT NOT NULL,
		total_amount     TEXT NOT NULL,
		variance         TEXT NOT NULL,
		variance_pct     TEXT NOT NULL,
		degenerate       INTEGER NOT NULL DEFAULT 0,
		created_by       TEXT,
		created_at       TEXT NOT NULL,
		approved_by      TEXT,
		approved_at      TEXT,
		rejected_by      TEXT,
		rejected_at      TEXT,
		rejection_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS rules (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		definition         TEXT NOT NULL,
		priority           INTEGER NOT NULL,
		enabled            INTEGER NOT NULL,
		status             TEXT NOT NULL,
		version            INTEGER NOT NULL,
		times_applied      INTEGER NOT NULL DEFAULT 0,
		successful_matches INTEGER NOT NULL DEFAULT 0,
		last_applied_at    TEXT,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rule_approvals (
		id           TEXT PRIMARY KEY,
		rule_id      TEXT NOT NULL,
		rule_version INTEGER NOT NULL,
		status       TEXT NOT NULL,
		requested_by TEXT,
		requested_at TEXT NOT NULL,
		decided_by   TEXT,
		decided_at   TEXT,
		reason       TEXT
	);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key      TEXT PRIMARY KEY,
		group_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_match ON transactions(match_id);
	CREATE INDEX IF NOT EXISTS idx_rule_approvals_rule ON rule_approvals(rule_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return apperrors.Internal(err, "failed to run sqlite migrations")
	}
	return nil
}

// Transactions returns the transaction repository
func (s *SQLiteStore) Transactions() TransactionStore { return &sqlTransactions{db: s.db} }

// Groups returns the match group repository
func (s *SQLiteStore) Groups() MatchGroupStore { return &sqlGroups{db: s.db} }

// Rules returns the rule repository
func (s *SQLiteStore) Rules() RuleStore { return &sqlRules{db: s.db} }

// Close closes the database connection
func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqlTransactions struct {
	db *sql.DB
}

var _ TransactionStore = (*sqlTransactions)(nil)

const txColumns = `id, source, date, amount, currency, description, reference,
	partner_id, status, match_id, match_type, match_confidence`

func scanTransaction(row interface{ Scan(...interface{}) error }) (*models.Transaction, error) {
	var (
		tx                            models.Transaction
		date, amount                  string
		description, reference        sql.NullString
		partnerID, matchID, matchType sql.NullString
		confidence                    sql.NullFloat64
	)

	err := row.Scan(&tx.ID, &tx.Source, &date, &amount, &tx.Currency,
		&description, &reference, &partnerID, &tx.Status, &matchID, &matchType, &confidence)
	if err != nil {
		return nil, err
	}

	tx.Date, err = time.Parse(time.RFC3339, date)
	if err != nil {
		return nil, err
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	tx.Description = description.String
	tx.Reference = reference.String
	tx.PartnerID = partnerID.String
	tx.MatchID = matchID.String
	tx.MatchType = matchType.String
	tx.MatchConfidence = confidence.Float64
	return &tx, nil
}

func (t *sqlTransactions) Get(id string) (*models.Transaction, error) {
	row := t.db.QueryRow(`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(apperrors.CodeTransactionMissing, "transaction", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err, "failed to read transaction")
	}
	return tx, nil
}

func (t *sqlTransactions) List(filter TransactionFilter, page Pagination) ([]*models.Transaction, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		where += " AND source = ?"
		args = append(args, string(filter.Source))
	}
	if filter.DateFrom != nil {
		where += " AND date >= ?"
		args = append(args, filter.DateFrom.Format(time.RFC3339))
	}
	if filter.DateTo != nil {
		where += " AND date <= ?"
		args = append(args, filter.DateTo.Format(time.RFC3339))
	}
	if filter.AmountMin != nil {
		where += " AND CAST(amount AS REAL) >= ?"
		args = append(args, filter.AmountMin.InexactFloat64())
	}
	if filter.AmountMax != nil {
		where += " AND CAST(amount AS REAL) <= ?"
		args = append(args, filter.AmountMax.InexactFloat64())
	}
	if filter.PartnerID != "" {
		where += " AND partner_id = ?"
		args = append(args, filter.PartnerID)
	}
	if filter.Search != "" {
		where += " AND (description LIKE ? OR reference LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := t.db.QueryRow("SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Internal(err, "failed to count transactions")
	}

	query := `SELECT ` + txColumns + ` FROM transactions` + where + ` ORDER BY date, id`
	if page.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, page.Offset)
	} else if page.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, page.Offset)
	}

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, 0, apperrors.Internal(err, "failed to list transactions")
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, apperrors.Internal(err, "failed to scan transaction")
		}
		result = append(result, tx)
	}
	return result, total, rows.Err()
}

func (t *sqlTransactions) Put(tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidConfig, "invalid transaction")
	}

	_, err := t.db.Exec(`
		INSERT OR REPLACE INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Source), tx.Date.Format(time.RFC3339), tx.Amount.String(),
		tx.Currency, tx.Description, tx.Reference, tx.PartnerID,
		string(tx.Status), tx.MatchID, tx.MatchType, tx.MatchConfidence)
	if err != nil {
		return apperrors.Internal(err, "failed to store transaction")
	}
	return nil
}

func (t *sqlTransactions) Claim(ids []string, groupID, matchType string, confidence float64, status models.ReconStatus) error {
	dbtx, err := t.db.Begin()
	if err != nil {
		return apperrors.Internal(err, "failed to begin claim transaction")
	}
	defer dbtx.Rollback()

	for _, id := range ids {
		var matchID sql.NullString
		err := dbtx.QueryRow(`SELECT match_id FROM transactions WHERE id = ?`, id).Scan(&matchID)
		if err == sql.ErrNoRows {
			return apperrors.NotFound(apperrors.CodeTransactionMissing, "transaction", id)
		}
		if err != nil {
			return apperrors.Internal(err, "failed to read transaction for claim")
		}
		if matchID.String != "" {
			return apperrors.Conflict(id, matchID.String)
		}
	}

	for _, id := range ids {
		res, err := dbtx.Exec(`
			UPDATE transactions
			SET status = ?, match_id = ?, match_type = ?, match_confidence = ?
			WHERE id = ? AND (match_id IS NULL OR match_id = '')`,
			string(status), groupID, matchType, confidence, id)
		if err != nil {
			return apperrors.Internal(err, "failed to claim transaction")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Internal(err, "failed to verify claim")
		}
		// Guarded update lost a race between read and write.
		if n == 0 {
			return apperrors.Conflict(id, "unknown")
		}
	}

	if err := dbtx.Commit(); err != nil {
		return apperrors.Internal(err, "failed to commit claim")
	}
	return nil
}

func (t *sqlTransactions) Release(ids []string) error {
	for _, id := range ids {
		_, err := t.db.Exec(`
			UPDATE transactions
			SET status = ?, match_id = NULL, match_type = NULL, match_confidence = 0
			WHERE id = ?`,
			string(models.StatusUnmatched), id)
		if err != nil {
			return apperrors.Internal(err, "failed to release transaction")
		}
	}
	return nil
}

func (t *sqlTransactions) SetStatusByMatch(groupID string, status models.ReconStatus) error {
	_, err := t.db.Exec(`UPDATE transactions SET status = ? WHERE match_id = ?`,
		string(status), groupID)
	if err != nil {
		return apperrors.Internal(err, "failed to update member statuses")
	}
	return nil
}

type sqlGroups struct {
	db *sql.DB
}

var _ MatchGroupStore = (*sqlGroups)(nil)

const groupColumns = `id, strategy, confidence, status, transaction_ids, total_amount,
	variance, variance_pct, degenerate, created_by, created_at, approved_by,
	approved_at, rejected_by, rejected_at, rejection_reason`

func scanGroup(row interface{ Scan(...interface{}) error }) (*models.MatchGroup, error) {
	var (
		g                                 models.MatchGroup
		memberJSON, total, variance, pct  string
		createdAt                         string
		degenerate                        int
		createdBy, approvedBy, rejectedBy sql.NullString
		approvedAt, rejectedAt, reason    sql.NullString
	)

	err := row.Scan(&g.ID, &g.Strategy, &g.Confidence, &g.Status, &memberJSON,
		&total, &variance, &pct, &degenerate, &createdBy, &createdAt,
		&approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &reason)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(memberJSON), &g.TransactionIDs); err != nil {
		return nil, err
	}
	if g.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if g.Variance, err = decimal.NewFromString(variance); err != nil {
		return nil, err
	}
	if g.VariancePct, err = decimal.NewFromString(pct); err != nil {
		return nil, err
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	g.DegenerateVariance = degenerate != 0
	g.CreatedBy = createdBy.String
	g.ApprovedBy = approvedBy.String
	g.RejectedBy = rejectedBy.String
	g.RejectionReason = reason.String

	if approvedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, approvedAt.String); err == nil {
			g.ApprovedAt = &ts
		}
	}
	if rejectedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, rejectedAt.String); err == nil {
			g.RejectedAt = &ts
		}
	}
	return &g, nil
}

func (s *sqlGroups) Get(id string) (*models.MatchGroup, error) {
	row := s.db.QueryRow(`SELECT `+groupColumns+` FROM match_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(apperrors.CodeGroupMissing, "match group", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err, "failed to read match group")
	}
	return g, nil
}

func (s *sqlGroups) List(filter GroupFilter, page Pagination) ([]*models.MatchGroup, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Strategy != "" {
		where += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM match_groups"+where, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Internal(err, "failed to count match groups")
	}

	query := `SELECT ` + groupColumns + ` FROM match_groups` + where + ` ORDER BY created_at, id`
	if page.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, page.Offset)
	} else if page.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, page.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, apperrors.Internal(err, "failed to list match groups")
	}
	defer rows.Close()

	var result []*models.MatchGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, apperrors.Internal(err, "failed to scan match group")
		}
		result = append(result, g)
	}
	return result, total, rows.Err()
}

func (s *sqlGroups) Put(group *models.MatchGroup) error {
	if err := group.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidConfig, "invalid match group")
	}

	memberJSON, err := json.Marshal(group.TransactionIDs)
	if err != nil {
		return apperrors.Internal(err, "failed to encode member ids")
	}

	degenerate := 0
	if group.DegenerateVariance {
		degenerate = 1
	}
	var approvedAt, rejectedAt interface{}
	if group.ApprovedAt != nil {
		approvedAt = group.ApprovedAt.Format(time.RFC3339)
	}
	if group.RejectedAt != nil {
		rejectedAt = group.RejectedAt.Format(time.RFC3339)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO match_groups (`+groupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Strategy, group.Confidence, string(group.Status),
		string(memberJSON), group.TotalAmount.String(), group.Variance.String(),
		group.VariancePct.String(), degenerate, group.CreatedBy,
		group.CreatedAt.Format(time.RFC3339), group.ApprovedBy, approvedAt,
		group.RejectedBy, rejectedAt, group.RejectionReason)
	if err != nil {
		return apperrors.Internal(err, "failed to store match group")
	}
	return nil
}

func (s *sqlGroups) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM match_groups WHERE id = ?`, id); err != nil {
		return apperrors.Internal(err, "failed to delete match group")
	}
	return nil
}

func (s *sqlGroups) LookupIdempotencyKey(key string) (string, bool, error) {
	var groupID string
	err := s.db.QueryRow(`SELECT group_id FROM idempotency_keys WHERE key = ?`, key).Scan(&groupID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Internal(err, "failed to look up idempotency key")
	}
	return groupID, true, nil
}

func (s *sqlGroups) RememberIdempotencyKey(key, groupID string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO idempotency_keys (key, group_id) VALUES (?, ?)`,
		key, groupID)
	if err != nil {
		return apperrors.Internal(err, "failed to store idempotency key")
	}
	return nil
}

type sqlRules struct {
	db *sql.DB
}

var _ RuleStore = (*sqlRules)(nil)

// ruleDefinition is the JSON blob holding the parts of a rule that do not
// need their own columns.
type ruleDefinition struct {
	Conditions []rules.Condition        `json:"conditions"`
	Config     rules.MatchConfiguration `json:"config"`
}

const ruleColumns = `id, name, definition, priority, enabled, status, version,
	times_applied, successful_matches, last_applied_at, created_at, updated_at`

func scanRule(row interface{ Scan(...interface{}) error }) (*rules.Rule, error) {
	var (
		r                                rules.Rule
		definition, createdAt, updatedAt string
		enabled                          int
		lastApplied                      sql.NullString
	)

	err := row.Scan(&r.ID, &r.Name, &definition, &r.Priority, &enabled, &r.Status,
		&r.Version, &r.TimesApplied, &r.SuccessfulMatches, &lastApplied, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var def ruleDefinition
	if err := json.Unmarshal([]byte(definition), &def); err != nil {
		return nil, err
	}
	r.Conditions = def.Conditions
	r.Config = def.Config
	r.Enabled = enabled != 0

	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	if lastApplied.Valid {
		if ts, err := time.Parse(time.RFC3339, lastApplied.String); err == nil {
			r.LastAppliedAt = &ts
		}
	}
	return &r, nil
}

func (s *sqlRules) Get(id string) (*rules.Rule, error) {
	row := s.db.QueryRow(`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(apperrors.CodeRuleMissing, "rule", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err, "failed to read rule")
	}
	return r, nil
}

func (s *sqlRules) List() ([]*rules.Rule, error) {
	rows, err := s.db.Query(`SELECT ` + ruleColumns + ` FROM rules ORDER BY priority, id`)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list rules")
	}
	defer rows.Close()

	var result []*rules.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, apperrors.Internal(err, "failed to scan rule")
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *sqlRules) ListApplicable() ([]*rules.Rule, error) {
	rows, err := s.db.Query(`SELECT `+ruleColumns+` FROM rules
		WHERE enabled = 1 AND status = ? ORDER BY priority, id`, string(rules.RuleActive))
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list applicable rules")
	}
	defer rows.Close()

	var result []*rules.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, apperrors.Internal(err, "failed to scan rule")
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *sqlRules) Put(rule *rules.Rule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidConfig, "invalid rule")
	}

	definition, err := json.Marshal(ruleDefinition{Conditions: rule.Conditions, Config: rule.Config})
	if err != nil {
		return apperrors.Internal(err, "failed to encode rule definition")
	}

	version := rule.Version
	var existing int
	err = s.db.QueryRow(`SELECT version FROM rules WHERE id = ?`, rule.ID).Scan(&existing)
	switch {
	case err == nil:
		version = existing + 1
	case err == sql.ErrNoRows:
		if version == 0 {
			version = 1
		}
	default:
		return apperrors.Internal(err, "failed to read rule version")
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	var lastApplied interface{}
	if rule.LastAppliedAt != nil {
		lastApplied = rule.LastAppliedAt.Format(time.RFC3339)
	}
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(definition), rule.Priority, enabled,
		string(rule.Status), version, rule.TimesApplied, rule.SuccessfulMatches,
		lastApplied, createdAt.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return apperrors.Internal(err, "failed to store rule")
	}
	return nil
}

func (s *sqlRules) RecordApplication(ruleID string, successful bool, at time.Time) error {
	success := 0
	if successful {
		success = 1
	}

	res, err := s.db.Exec(`
		UPDATE rules
		SET times_applied = times_applied + 1,
			successful_matches = successful_matches + ?,
			last_applied_at = ?
		WHERE id = ?`,
		success, at.Format(time.RFC3339), ruleID)
	if err != nil {
		return apperrors.Internal(err, "failed to record rule application")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound(apperrors.CodeRuleMissing, "rule", ruleID)
	}
	return nil
}

func (s *sqlRules) SubmitForApproval(req *rules.ApprovalRequest) error {
	var status string
	err := s.db.QueryRow(`SELECT status FROM rules WHERE id = ?`, req.RuleID).Scan(&status)
	if err == sql.ErrNoRows {
		return apperrors.NotFound(apperrors.CodeRuleMissing, "rule", req.RuleID)
	}
	if err != nil {
		return apperrors.Internal(err, "failed to read rule status")
	}

	if rules.RuleStatus(status) != rules.RuleDraft && rules.RuleStatus(status) != rules.RuleInactive {
		return apperrors.Precondition(apperrors.CodeInvalidRuleState,
			"rule %s cannot be submitted for approval from status %s", req.RuleID, status)
	}

	_, err = s.db.Exec(`
		INSERT INTO rule_approvals (id, rule_id, rule_version, status, requested_by, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.RuleID, req.RuleVersion, string(rules.ApprovalPending),
		req.RequestedBy, req.RequestedAt.Format(time.RFC3339))
	if err != nil {
		return apperrors.Internal(err, "failed to store approval request")
	}

	_, err = s.db.Exec(`UPDATE rules SET status = ? WHERE id = ?`,
		string(rules.RulePendingApproval), req.RuleID)
	if err != nil {
		return apperrors.Internal(err, "failed to update rule status")
	}
	return nil
}

func (s *sqlRules) DecideApproval(requestID string, status rules.ApprovalStatus, decidedBy, reason string, at time.Time) error {
	var ruleID, current string
	err := s.db.QueryRow(`SELECT rule_id, status FROM rule_approvals WHERE id = ?`, requestID).
		Scan(&ruleID, &current)
	if err == sql.ErrNoRows {
		return apperrors.NotFound(apperrors.CodeRuleMissing, "approval request", requestID)
	}
	if err != nil {
		return apperrors.Internal(err, "failed to read approval request")
	}

	if rules.ApprovalStatus(current) != rules.ApprovalPending {
		return apperrors.Precondition(apperrors.CodeInvalidRuleState,
			"approval request %s is already decided (%s)", requestID, current)
	}

	_, err = s.db.Exec(`
		UPDATE rule_approvals SET status = ?, decided_by = ?, decided_at = ?, reason = ?
		WHERE id = ?`,
		string(status), decidedBy, at.Format(time.RFC3339), reason, requestID)
	if err != nil {
		return apperrors.Internal(err, "failed to update approval request")
	}

	ruleStatus := rules.RuleRejected
	if status == rules.ApprovalApproved {
		ruleStatus = rules.RuleActive
	}
	_, err = s.db.Exec(`UPDATE rules SET status = ? WHERE id = ?`, string(ruleStatus), ruleID)
	if err != nil {
		return apperrors.Internal(err, "failed to update rule status")
	}
	return nil
}

func (s *sqlRules) ListApprovals(ruleID string) ([]*rules.ApprovalRequest, error) {
	rows, err := s.db.Query(`
		SELECT id, rule_id, rule_version, status, requested_by, requested_at, decided_by, decided_at, reason
		FROM rule_approvals WHERE rule_id = ? ORDER BY requested_at, id`, ruleID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list approval requests")
	}
	defer rows.Close()

	var result []*rules.ApprovalRequest
	for rows.Next() {
		var (
			req               rules.ApprovalRequest
			requestedAt       string
			decidedBy, reason sql.NullString
			decidedAt         sql.NullString
		)
		if err := rows.Scan(&req.ID, &req.RuleID, &req.RuleVersion, &req.Status,
			&req.RequestedBy, &requestedAt, &decidedBy, &decidedAt, &reason); err != nil {
			return nil, apperrors.Internal(err, "failed to scan approval request")
		}
		if req.RequestedAt, err = time.Parse(time.RFC3339, requestedAt); err != nil {
			return nil, apperrors.Internal(err, "failed to parse approval timestamp")
		}
		req.DecidedBy = decidedBy.String
		req.Reason = reason.String
		if decidedAt.Valid {
			if ts, err := time.Parse(time.RFC3339, decidedAt.String); err == nil {
				req.DecidedAt = &ts
			}
		}
		result = append(result, &req)
	}
	return result, rows.Err()
}
