package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budgetflow/internal/catalog/memory"
	"budgetflow/internal/core"
)

func TestIsComplete(t *testing.T) {
	tests := []struct {
		remainder string
		want      bool
	}{
		{"0", true},
		{"0.004", true},
		{"-0.004", true},
		{"0.005", false},
		{"0.01", false},
		{"-0.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.remainder, func(t *testing.T) {
			if got := isComplete(decimal.RequireFromString(tt.remainder)); got != tt.want {
				t.Errorf("isComplete(%s) = %v, want %v", tt.remainder, got, tt.want)
			}
		})
	}
}

func TestGetAllocationState(t *testing.T) {
	start := core.YearMonth{Year: 2025, Month: time.April}
	future := envelope("future", core.TierImportant, 0, 0, 99900)
	future.StartMonth = &start
	archived := envelope("archived", core.TierImportant, 0, 0, 50000)
	archived.Status = core.EnvelopeArchived

	seed := memory.Seed{
		Envelopes: []core.Envelope{
			envelope("rent", core.TierEssential, 0, 0, 150000),
			envelope("food", core.TierEssential, 0, 0, 60000),
			future,
			archived,
		},
		IncomeSources: []core.IncomeSource{
			incomeSource("salary", "acc1", core.ReliabilityGuaranteed, 250000),
			incomeSource("gigs", "acc1", core.ReliabilityUncertain, 40000),
		},
		Transactions: []core.Transaction{
			{ID: "t1", Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Amount: core.Cents(250000), IsIncome: true},
			{ID: "t2", Date: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), Amount: core.Cents(-3000)},
			{ID: "t3", Date: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), Amount: core.Cents(1000), IsIncome: true},
		},
	}
	store := memory.New(seed)
	ledger := newLedger(store)
	ctx := context.Background()

	state, err := ledger.GetAllocationState(ctx, march2025())
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.IncomeMode != core.IncomeDetected || state.Income.Cents != 250000 || len(state.IncomeTransactions) != 1 {
		t.Errorf("unexpected income %+v", state)
	}
	if state.TotalAssigned.Cents != 210000 || state.Remainder.Cents != 40000 {
		t.Errorf("assigned %v remainder %v", state.TotalAssigned, state.Remainder)
	}
	if state.Complete || state.Status != core.StatusYellow {
		t.Errorf("expected incomplete yellow, got %v %s", state.Complete, state.Status)
	}
	if state.PlannedIncome.Cents != 290000 || state.BudgetSafePlannedIncome.Cents != 250000 {
		t.Errorf("planned %v budget-safe %v", state.PlannedIncome, state.BudgetSafePlannedIncome)
	}

	override := core.Cents(210000)
	if err := ledger.SetIncomeOverride(ctx, march2025(), &override); err != nil {
		t.Fatalf("set override: %v", err)
	}
	state, _ = ledger.GetAllocationState(ctx, march2025())
	if state.IncomeMode != core.IncomeManual || state.Income.Cents != 210000 || state.DetectedIncome.Cents != 250000 {
		t.Errorf("override not applied: %+v", state)
	}
	if !state.Complete || state.Status != core.StatusGreen {
		t.Errorf("expected complete green, got %v %s", state.Complete, state.Status)
	}

	override = core.Cents(100000)
	_ = ledger.SetIncomeOverride(ctx, march2025(), &override)
	state, _ = ledger.GetAllocationState(ctx, march2025())
	if state.Status != core.StatusRed || state.Remainder.Cents != -110000 {
		t.Errorf("expected red with negative remainder, got %s %v", state.Status, state.Remainder)
	}
}

func TestClearIncomeOverrideIsIdempotent(t *testing.T) {
	store := memory.New(memory.Seed{Transactions: []core.Transaction{
		{ID: "t1", Date: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), Amount: core.Cents(120000), IsIncome: true},
	}})
	ledger := newLedger(store)
	ctx := context.Background()

	override := core.Cents(5000)
	if err := ledger.SetIncomeOverride(ctx, march2025(), &override); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := ledger.SetIncomeOverride(ctx, march2025(), nil); err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
		state, err := ledger.GetAllocationState(ctx, march2025())
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if state.IncomeMode != core.IncomeDetected || state.ManualOverride != nil || state.Income.Cents != 120000 {
			t.Errorf("clear #%d: unexpected state %+v", i+1, state)
		}
	}
}

func TestSetIncomeOverrideRejectsNegative(t *testing.T) {
	ledger := newLedger(memory.New(memory.Seed{}))
	negative := core.Cents(-1)
	var verr *core.ValidationError
	if err := ledger.SetIncomeOverride(context.Background(), march2025(), &negative); !errors.As(err, &verr) || verr.Field != "amount" {
		t.Errorf("expected amount validation error, got %v", err)
	}
}

func TestAllocationStateUpstreamFailure(t *testing.T) {
	store := &flakyStore{Store: memory.New(memory.Seed{}), failEnvelopes: true}
	ledger := newLedger(store)

	state, err := ledger.GetAllocationState(context.Background(), march2025())
	if !errors.Is(err, core.ErrUpstreamUnavailable) || !errors.Is(err, errBackendDown) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if state.Status != "" {
		t.Errorf("no partial state expected, got %+v", state)
	}
}
