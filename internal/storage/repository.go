package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetflow/internal/catalog"
	"budgetflow/internal/catalog/memory"
	"budgetflow/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	_ catalog.Catalog       = (*SQLiteRepository)(nil)
	_ catalog.KeyValueStore = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// monthColumns are the income_sources amount columns, January first.
func monthColumns() [12]string {
	var cols [12]string
	for i, abbr := range core.MonthAbbreviations {
		cols[i] = strings.ToLower(abbr) + "_cents"
	}
	return cols
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMonth(ym *core.YearMonth) sql.NullString {
	if ym == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: ym.String(), Valid: true}
}

func parseNullMonth(ns sql.NullString) (*core.YearMonth, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	ym, err := core.ParseYearMonth(ns.String)
	if err != nil {
		return nil, err
	}
	return &ym, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListEnvelopes implements catalog.EnvelopeReader
func (r *SQLiteRepository) ListEnvelopes(ctx context.Context) ([]core.Envelope, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, purpose, target_cents, monthly_contribution_cents, balance_cents,
		       priority, account_id, status, start_month, end_month
		FROM envelopes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}
	defer rows.Close()

	var out []core.Envelope
	for rows.Next() {
		var (
			e                  core.Envelope
			account            sql.NullString
			startStr, endStr   sql.NullString
			target, contrib, b int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Purpose, &target, &contrib, &b,
			&e.Priority, &account, &e.Status, &startStr, &endStr); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		e.Target, e.MonthlyContribution, e.Balance = core.Cents(target), core.Cents(contrib), core.Cents(b)
		e.AccountID = account.String
		if e.StartMonth, err = parseNullMonth(startStr); err != nil {
			return nil, fmt.Errorf("envelope %s start month: %w", e.ID, err)
		}
		if e.EndMonth, err = parseNullMonth(endStr); err != nil {
			return nil, fmt.Errorf("envelope %s end month: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEnvelope inserts the envelope or replaces its configuration. The
// balance of an existing envelope is kept when keepBalance is set.
func (r *SQLiteRepository) UpsertEnvelope(ctx context.Context, e core.Envelope, keepBalance bool) error {
	if err := e.Validate(); err != nil {
		return err
	}
	balanceClause := "balance_cents = excluded.balance_cents,"
	if keepBalance {
		balanceClause = ""
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO envelopes (id, name, purpose, target_cents, monthly_contribution_cents, balance_cents,
		                       priority, account_id, status, start_month, end_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			purpose = excluded.purpose,
			target_cents = excluded.target_cents,
			monthly_contribution_cents = excluded.monthly_contribution_cents,
			`+balanceClause+`
			priority = excluded.priority,
			account_id = excluded.account_id,
			status = excluded.status,
			start_month = excluded.start_month,
			end_month = excluded.end_month`,
		e.ID, e.Name, e.Purpose, e.Target.Cents, e.MonthlyContribution.Cents, e.Balance.Cents,
		e.Priority, nullString(e.AccountID), e.Status, nullMonth(e.StartMonth), nullMonth(e.EndMonth))
	if err != nil {
		return fmt.Errorf("upsert envelope %s: %w", e.ID, err)
	}
	return nil
}

// ApplyAllocations implements catalog.EnvelopeWriter
func (r *SQLiteRepository) ApplyAllocations(ctx context.Context, allocations []core.EnvelopeAllocation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range allocations {
		res, err := tx.ExecContext(ctx,
			`UPDATE envelopes SET balance_cents = balance_cents + ? WHERE id = ?`, a.Amount.Cents, a.EnvelopeID)
		if err != nil {
			return fmt.Errorf("apply allocation to %s: %w", a.EnvelopeID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &core.NotFoundError{Kind: "envelope", ID: a.EnvelopeID}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocations: %w", err)
	}

	slog.InfoContext(ctx, "Allocations applied to SQLite", "count", len(allocations))
	return nil
}

// ListIncomeSources implements catalog.IncomeSourceReader
func (r *SQLiteRepository) ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	cols := monthColumns()
	query := `SELECT id, name, reliability, account_id, expected_day, active, ` +
		strings.Join(cols[:], ", ") + ` FROM income_sources ORDER BY rowid`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list income sources: %w", err)
	}
	defer rows.Close()

	var out []core.IncomeSource
	for rows.Next() {
		var (
			s       core.IncomeSource
			rel     string
			account sql.NullString
			active  int
			cents   [12]int64
		)
		dest := []any{&s.ID, &s.Name, &rel, &account, &s.ExpectedDay, &active}
		for i := range cents {
			dest = append(dest, &cents[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan income source: %w", err)
		}
		if s.Reliability, err = core.ParseReliability(rel); err != nil {
			return nil, fmt.Errorf("income source %s: %w", s.ID, err)
		}
		s.AccountID = account.String
		s.Active = active == 1
		for i, c := range cents {
			s.Amounts[i] = core.Cents(c)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertIncomeSource(ctx context.Context, s core.IncomeSource) error {
	if err := s.Validate(); err != nil {
		return err
	}
	cols := monthColumns()
	updates := make([]string, 0, len(cols))
	args := []any{s.ID, s.Name, s.Reliability, nullString(s.AccountID), s.ExpectedDay, boolInt(s.Active)}
	for i, col := range cols {
		updates = append(updates, col+" = excluded."+col)
		args = append(args, s.Amounts[i].Cents)
	}
	query := `INSERT INTO income_sources (id, name, reliability, account_id, expected_day, active, ` +
		strings.Join(cols[:], ", ") + `) VALUES (?, ?, ?, ?, ?, ?` + strings.Repeat(", ?", len(cols)) + `)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, reliability = excluded.reliability,
		account_id = excluded.account_id, expected_day = excluded.expected_day, active = excluded.active, ` +
		strings.Join(updates, ", ")
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert income source %s: %w", s.ID, err)
	}
	return nil
}

// ListAccounts implements catalog.AccountReader
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM accounts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var out []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertAccount(ctx context.Context, a core.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`, a.ID, a.Name)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.ID, err)
	}
	return nil
}

const transactionColumns = `id, occurred_on, description, amount_cents, category_id, account_id, is_income`

func scanTransaction(sc interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		tx                core.Transaction
		date              string
		amount            int64
		category, account sql.NullString
		income            int
	)
	if err := sc.Scan(&tx.ID, &date, &tx.Description, &amount, &category, &account, &income); err != nil {
		return core.Transaction{}, err
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s date %q: %w", tx.ID, date, err)
	}
	tx.Date = d
	tx.Amount = core.Cents(amount)
	tx.CategoryID = category.String
	tx.AccountID = account.String
	tx.IsIncome = income == 1
	return tx, nil
}

func (r *SQLiteRepository) listTransactions(ctx context.Context, month core.YearMonth, incomeOnly bool) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE occurred_on >= ? AND occurred_on < ?`
	if incomeOnly {
		query += ` AND is_income = 1`
	}
	query += ` ORDER BY occurred_on, rowid`
	rows, err := r.db.QueryContext(ctx, query, month.Start().Format(dateLayout), month.End().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", month, err)
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// ListTransactions implements catalog.TransactionReader
func (r *SQLiteRepository) ListTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error) {
	return r.listTransactions(ctx, month, false)
}

// ListIncomeTransactions implements catalog.TransactionReader
func (r *SQLiteRepository) ListIncomeTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error) {
	return r.listTransactions(ctx, month, true)
}

// GetTransaction implements catalog.TransactionReader
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, &core.NotFoundError{Kind: "transaction", ID: id}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// InsertTransaction stores a transaction; an existing id is left untouched.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		tx.ID, tx.Date.UTC().Format(dateLayout), tx.Description, tx.Amount.Cents,
		nullString(tx.CategoryID), nullString(tx.AccountID), boolInt(tx.IsIncome))
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

const ruleColumns = `id, name, expected_amount_cents, amount_tolerance, description_pattern, category_id,
	account_id, auto_distribute, strategy, target_envelope_ids, active, created_at, updated_at`

func scanRule(sc interface{ Scan(...any) error }) (core.DistributionRule, error) {
	var (
		rule             core.DistributionRule
		expected         sql.NullInt64
		auto, active     int
		targets          string
		created, updated string
	)
	if err := sc.Scan(&rule.ID, &rule.Name, &expected, &rule.AmountTolerance, &rule.DescriptionPattern,
		&rule.CategoryID, &rule.AccountID, &auto, &rule.Strategy, &targets, &active, &created, &updated); err != nil {
		return core.DistributionRule{}, err
	}
	if expected.Valid {
		m := core.Cents(expected.Int64)
		rule.ExpectedAmount = &m
	}
	rule.AutoDistribute = auto == 1
	rule.Active = active == 1
	if err := json.Unmarshal([]byte(targets), &rule.TargetEnvelopeIDs); err != nil {
		return core.DistributionRule{}, fmt.Errorf("rule %s targets: %w", rule.ID, err)
	}
	rule.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rule.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rule, nil
}

func ruleArgs(rule core.DistributionRule) ([]any, error) {
	var expected sql.NullInt64
	if rule.ExpectedAmount != nil {
		expected = sql.NullInt64{Int64: rule.ExpectedAmount.Cents, Valid: true}
	}
	targets := rule.TargetEnvelopeIDs
	if targets == nil {
		targets = []string{}
	}
	tb, err := json.Marshal(targets)
	if err != nil {
		return nil, fmt.Errorf("encode targets: %w", err)
	}
	return []any{rule.ID, rule.Name, expected, rule.AmountTolerance, rule.DescriptionPattern, rule.CategoryID,
		rule.AccountID, boolInt(rule.AutoDistribute), rule.Strategy, string(tb), boolInt(rule.Active),
		rule.CreatedAt.UTC().Format(time.RFC3339Nano), rule.UpdatedAt.UTC().Format(time.RFC3339Nano)}, nil
}

// ListRules implements catalog.RuleStore, in insertion order.
func (r *SQLiteRepository) ListRules(ctx context.Context) ([]core.DistributionRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM distribution_rules ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	var out []core.DistributionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (core.DistributionRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM distribution_rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.DistributionRule{}, &core.NotFoundError{Kind: "rule", ID: id}
	}
	if err != nil {
		return core.DistributionRule{}, fmt.Errorf("get rule %s: %w", id, err)
	}
	return rule, nil
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.DistributionRule) (core.DistributionRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := r.now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now
	args, err := ruleArgs(rule)
	if err != nil {
		return core.DistributionRule{}, err
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO distribution_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return core.DistributionRule{}, fmt.Errorf("create rule: %w", err)
	}
	return rule, nil
}

func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.DistributionRule) (core.DistributionRule, error) {
	existing, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return core.DistributionRule{}, err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = r.now().UTC()
	args, err := ruleArgs(rule)
	if err != nil {
		return core.DistributionRule{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE distribution_rules SET name = ?, expected_amount_cents = ?, amount_tolerance = ?,
			description_pattern = ?, category_id = ?, account_id = ?, auto_distribute = ?, strategy = ?,
			target_envelope_ids = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[8], args[9], args[10], args[12], rule.ID)
	if err != nil {
		return core.DistributionRule{}, fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	return rule, nil
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM distribution_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "rule", ID: id}
	}
	return nil
}

// GetIncomeOverride implements catalog.OverrideStore
func (r *SQLiteRepository) GetIncomeOverride(ctx context.Context, month core.YearMonth) (*core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `SELECT amount_cents FROM income_overrides WHERE month = ?`, month.String()).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get income override %s: %w", month, err)
	}
	m := core.Cents(cents)
	return &m, nil
}

func (r *SQLiteRepository) SetIncomeOverride(ctx context.Context, month core.YearMonth, amount core.Money) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO income_overrides (month, amount_cents) VALUES (?, ?)
		ON CONFLICT(month) DO UPDATE SET amount_cents = excluded.amount_cents`, month.String(), amount.Cents)
	if err != nil {
		return fmt.Errorf("set income override %s: %w", month, err)
	}
	return nil
}

func (r *SQLiteRepository) ClearIncomeOverride(ctx context.Context, month core.YearMonth) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM income_overrides WHERE month = ?`, month.String()); err != nil {
		return fmt.Errorf("clear income override %s: %w", month, err)
	}
	return nil
}

// ListBankConnections implements catalog.BankConnectionReader
func (r *SQLiteRepository) ListBankConnections(ctx context.Context) ([]core.BankConnection, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, institution, status, last_synced_at FROM bank_connections ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list bank connections: %w", err)
	}
	defer rows.Close()
	var out []core.BankConnection
	for rows.Next() {
		var (
			c      core.BankConnection
			synced sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Institution, &c.Status, &synced); err != nil {
			return nil, fmt.Errorf("scan bank connection: %w", err)
		}
		if synced.Valid {
			c.LastSyncedAt, _ = time.Parse(time.RFC3339, synced.String)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertBankConnection(ctx context.Context, c core.BankConnection) error {
	var synced sql.NullString
	if !c.LastSyncedAt.IsZero() {
		synced = sql.NullString{String: c.LastSyncedAt.UTC().Format(time.RFC3339), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bank_connections (id, institution, status, last_synced_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET institution = excluded.institution, status = excluded.status,
			last_synced_at = excluded.last_synced_at`, c.ID, c.Institution, c.Status, synced)
	if err != nil {
		return fmt.Errorf("upsert bank connection %s: %w", c.ID, err)
	}
	return nil
}

// ListPendingLinkSuggestions implements catalog.LinkSuggestionReader
func (r *SQLiteRepository) ListPendingLinkSuggestions(ctx context.Context) ([]core.LinkSuggestion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transaction_id, envelope_id, confidence, created_at
		FROM link_suggestions WHERE status = 'pending' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list link suggestions: %w", err)
	}
	defer rows.Close()
	var out []core.LinkSuggestion
	for rows.Next() {
		var (
			l       core.LinkSuggestion
			created string
		)
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.EnvelopeID, &l.Confidence, &created); err != nil {
			return nil, fmt.Errorf("scan link suggestion: %w", err)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertLinkSuggestion(ctx context.Context, l core.LinkSuggestion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_suggestions (id, transaction_id, envelope_id, confidence, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?) ON CONFLICT(id) DO NOTHING`,
		l.ID, l.TransactionID, l.EnvelopeID, l.Confidence, l.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert link suggestion %s: %w", l.ID, err)
	}
	return nil
}

// Get implements catalog.KeyValueStore
func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM kv_store WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", prefix, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ImportSeed loads reference data from a seed document. Existing rows win so
// restarts never reset balances or overrides.
func (r *SQLiteRepository) ImportSeed(ctx context.Context, seed memory.Seed) error {
	for _, a := range seed.Accounts {
		if err := r.UpsertAccount(ctx, a); err != nil {
			return err
		}
	}
	existing, err := r.ListEnvelopes(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, e := range existing {
		known[e.ID] = true
	}
	for _, e := range seed.Envelopes {
		if known[e.ID] {
			continue
		}
		if err := r.UpsertEnvelope(ctx, e, true); err != nil {
			return err
		}
	}
	for _, s := range seed.IncomeSources {
		if err := r.UpsertIncomeSource(ctx, s); err != nil {
			return err
		}
	}
	for _, tx := range seed.Transactions {
		if err := r.InsertTransaction(ctx, tx); err != nil {
			return err
		}
	}
	rules, err := r.ListRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		for _, rule := range seed.Rules {
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("seed rule %s: %w", rule.Name, err)
			}
			if _, err := r.CreateRule(ctx, rule); err != nil {
				return err
			}
		}
	}
	for month, amount := range seed.Overrides {
		ym, err := core.ParseYearMonth(month)
		if err != nil {
			return fmt.Errorf("seed override: %w", err)
		}
		current, err := r.GetIncomeOverride(ctx, ym)
		if err != nil {
			return err
		}
		if current == nil {
			if err := r.SetIncomeOverride(ctx, ym, amount); err != nil {
				return err
			}
		}
	}
	for _, c := range seed.BankConnections {
		if err := r.UpsertBankConnection(ctx, c); err != nil {
			return err
		}
	}
	for _, l := range seed.LinkSuggestions {
		if err := r.InsertLinkSuggestion(ctx, l); err != nil {
			return err
		}
	}
	return nil
}
