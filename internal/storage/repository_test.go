package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"budgetflow/internal/catalog/memory"
	"budgetflow/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestEnvelopesAndAllocations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	start := core.YearMonth{Year: 2025, Month: 1}

	envs := []core.Envelope{
		{ID: "rent", Name: "Rent", Purpose: core.PurposeSpendingBudget, MonthlyContribution: core.Cents(90000),
			Priority: core.TierEssential, AccountID: "acc1", Status: core.EnvelopeActive, StartMonth: &start},
		{ID: "trip", Name: "Trip", Purpose: core.PurposeSinkingFund, Target: core.Cents(200000),
			Priority: core.TierDiscretionary, Status: core.EnvelopeActive},
	}
	for _, e := range envs {
		if err := repo.UpsertEnvelope(ctx, e, false); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	err := repo.ApplyAllocations(ctx, []core.EnvelopeAllocation{
		{EnvelopeID: "trip", Amount: core.Cents(5000)},
		{EnvelopeID: "ghost", Amount: core.Cents(1)},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := repo.ApplyAllocations(ctx, []core.EnvelopeAllocation{{EnvelopeID: "trip", Amount: core.Cents(5000)}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := repo.ListEnvelopes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "rent" || got[1].Balance.Cents != 5000 {
		t.Fatalf("unexpected envelopes %+v", got)
	}
	if got[0].StartMonth == nil || *got[0].StartMonth != start || got[0].AccountID != "acc1" {
		t.Fatalf("window or account not round-tripped: %+v", got[0])
	}

	// Reconfiguring keeps the accumulated balance.
	envs[1].Name = "Summer trip"
	if err := repo.UpsertEnvelope(ctx, envs[1], true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = repo.ListEnvelopes(ctx)
	if got[1].Name != "Summer trip" || got[1].Balance.Cents != 5000 {
		t.Fatalf("unexpected after reconfigure %+v", got[1])
	}
}

func TestIncomeSourcesMonthColumns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	src := core.IncomeSource{ID: "s1", Name: "Salary", Reliability: core.ReliabilityExpected, AccountID: "acc1", Active: true}
	for i := range src.Amounts {
		src.Amounts[i] = core.Cents(int64(i+1) * 100)
	}
	if err := repo.UpsertIncomeSource(ctx, src); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := repo.ListIncomeSources(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("list: %v %+v", err, got)
	}
	if got[0].Amounts != src.Amounts || got[0].Reliability != core.ReliabilityExpected || !got[0].Active {
		t.Fatalf("unexpected source %+v", got[0])
	}
}

func TestTransactionsByMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	txs := []core.Transaction{
		{ID: "t1", Date: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), Amount: core.Cents(100), IsIncome: true},
		{ID: "t2", Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Amount: core.Cents(250000), Description: "ACME PAYROLL", IsIncome: true},
		{ID: "t3", Date: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), Amount: core.Cents(-4000), Description: "Groceries"},
		{ID: "t4", Date: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Amount: core.Cents(100), IsIncome: true},
	}
	for _, tx := range txs {
		if err := repo.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	march := core.YearMonth{Year: 2025, Month: 3}
	all, err := repo.ListTransactions(ctx, march)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 march transactions, got %d err=%v", len(all), err)
	}
	income, err := repo.ListIncomeTransactions(ctx, march)
	if err != nil || len(income) != 1 || income[0].ID != "t2" {
		t.Fatalf("unexpected income %+v err=%v", income, err)
	}
	if _, err := repo.GetTransaction(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRulesCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	expected := core.Cents(250000)

	created, err := repo.CreateRule(ctx, core.DistributionRule{
		Name: "Salary", ExpectedAmount: &expected, AmountTolerance: 5, DescriptionPattern: "acme",
		AutoDistribute: true, Strategy: core.StrategyPriority, TargetEnvelopeIDs: []string{"rent"}, Active: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateRule(ctx, core.DistributionRule{Name: "Bonus", DescriptionPattern: "bonus", Strategy: core.StrategyEqual}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rules, err := repo.ListRules(ctx)
	if err != nil || len(rules) != 2 || rules[0].ID != created.ID {
		t.Fatalf("unexpected rules %+v err=%v", rules, err)
	}
	r := rules[0]
	if r.ExpectedAmount == nil || r.ExpectedAmount.Cents != 250000 || !r.AutoDistribute || len(r.TargetEnvelopeIDs) != 1 {
		t.Fatalf("rule not round-tripped: %+v", r)
	}
	if rules[1].ExpectedAmount != nil {
		t.Fatalf("expected nil amount for description-only rule")
	}

	r.Active = false
	if _, err := repo.UpdateRule(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.GetRule(ctx, r.ID)
	if got.Active {
		t.Fatalf("update not persisted")
	}
	if err := repo.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteRule(ctx, r.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestIncomeOverrides(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	month := core.YearMonth{Year: 2025, Month: 5}

	if got, err := repo.GetIncomeOverride(ctx, month); err != nil || got != nil {
		t.Fatalf("expected none, got %v err=%v", got, err)
	}
	_ = repo.SetIncomeOverride(ctx, month, core.Cents(100))
	_ = repo.SetIncomeOverride(ctx, month, core.Cents(200))
	if got, _ := repo.GetIncomeOverride(ctx, month); got == nil || got.Cents != 200 {
		t.Fatalf("expected 200, got %v", got)
	}
	_ = repo.ClearIncomeOverride(ctx, month)
	_ = repo.ClearIncomeOverride(ctx, month)
	if got, _ := repo.GetIncomeOverride(ctx, month); got != nil {
		t.Fatalf("expected cleared, got %v", got)
	}
}

func TestKeyValueStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_ = repo.Put(ctx, "dismissal:c1:a", "2025-03-01T00:00:00Z")
	_ = repo.Put(ctx, "dismissal:c1:b", "2025-03-02T00:00:00Z")
	_ = repo.Put(ctx, "dismissal:c10:a", "2025-03-02T00:00:00Z")

	keys, err := repo.Keys(ctx, "dismissal:c1:")
	if err != nil || len(keys) != 2 {
		t.Fatalf("unexpected keys %v err=%v", keys, err)
	}
	v, ok, _ := repo.Get(ctx, "dismissal:c1:b")
	if !ok || v != "2025-03-02T00:00:00Z" {
		t.Fatalf("unexpected value %q %v", v, ok)
	}
	_ = repo.Delete(ctx, "dismissal:c1:b")
	if _, ok, _ := repo.Get(ctx, "dismissal:c1:b"); ok {
		t.Fatalf("expected key removed")
	}
}

func TestImportSeedKeepsExistingState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seed := memory.Seed{
		Accounts: []core.Account{{ID: "acc1", Name: "Checking"}},
		Envelopes: []core.Envelope{{ID: "e1", Name: "Rent", Purpose: core.PurposeSpendingBudget,
			Priority: core.TierEssential, Status: core.EnvelopeActive}},
		Rules:     []core.DistributionRule{{Name: "Salary", DescriptionPattern: "acme", Strategy: core.StrategyEqual, Active: true}},
		Overrides: map[string]core.Money{"2025-03": core.Cents(1000)},
	}
	if err := repo.ImportSeed(ctx, seed); err != nil {
		t.Fatalf("import: %v", err)
	}
	_ = repo.ApplyAllocations(ctx, []core.EnvelopeAllocation{{EnvelopeID: "e1", Amount: core.Cents(700)}})
	_ = repo.SetIncomeOverride(ctx, core.YearMonth{Year: 2025, Month: 3}, core.Cents(5000))

	if err := repo.ImportSeed(ctx, seed); err != nil {
		t.Fatalf("second import: %v", err)
	}
	envs, _ := repo.ListEnvelopes(ctx)
	if envs[0].Balance.Cents != 700 {
		t.Fatalf("re-import reset balance: %d", envs[0].Balance.Cents)
	}
	rules, _ := repo.ListRules(ctx)
	if len(rules) != 1 {
		t.Fatalf("re-import duplicated rules: %d", len(rules))
	}
	ov, _ := repo.GetIncomeOverride(ctx, core.YearMonth{Year: 2025, Month: 3})
	if ov == nil || ov.Cents != 5000 {
		t.Fatalf("re-import overwrote override: %v", ov)
	}
}
