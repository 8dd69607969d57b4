package services

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
)

// A remainder smaller than half a cent counts as fully assigned.
var completenessTolerance = decimal.New(5, -3)

// AllocationLedger answers "how much income is left to assign" per month.
type AllocationLedger struct {
	envelopes    catalog.EnvelopeReader
	transactions catalog.TransactionReader
	overrides    catalog.OverrideStore
	incomes      catalog.IncomeSourceReader
}

func NewAllocationLedger(envelopes catalog.EnvelopeReader, transactions catalog.TransactionReader,
	overrides catalog.OverrideStore, incomes catalog.IncomeSourceReader) *AllocationLedger {
	return &AllocationLedger{
		envelopes:    envelopes,
		transactions: transactions,
		overrides:    overrides,
		incomes:      incomes,
	}
}

// GetAllocationState loads the month's snapshot concurrently and derives the
// ledger view. Any failed read fails the whole call.
func (l *AllocationLedger) GetAllocationState(ctx context.Context, month core.YearMonth) (core.AllocationState, error) {
	var (
		envelopes []core.Envelope
		income    []core.Transaction
		override  *core.Money
		sources   []core.IncomeSource
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		envelopes, err = l.envelopes.ListEnvelopes(gctx)
		return core.Unavailable("list envelopes", err)
	})
	g.Go(func() error {
		var err error
		income, err = l.transactions.ListIncomeTransactions(gctx, month)
		return core.Unavailable("list income transactions", err)
	})
	g.Go(func() error {
		var err error
		override, err = l.overrides.GetIncomeOverride(gctx, month)
		return core.Unavailable("get income override", err)
	})
	g.Go(func() error {
		var err error
		sources, err = l.incomes.ListIncomeSources(gctx)
		return core.Unavailable("list income sources", err)
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Allocation state unavailable", "month", month.String(), "error", err)
		return core.AllocationState{}, err
	}
	return buildAllocationState(month, envelopes, income, override, sources), nil
}

// SetIncomeOverride stores a manual income figure for the month; nil clears it.
func (l *AllocationLedger) SetIncomeOverride(ctx context.Context, month core.YearMonth, amount *core.Money) error {
	if amount == nil {
		return core.Unavailable("clear income override", l.overrides.ClearIncomeOverride(ctx, month))
	}
	if amount.IsNegative() {
		return core.NewValidationError("amount", "must not be negative")
	}
	return core.Unavailable("set income override", l.overrides.SetIncomeOverride(ctx, month, *amount))
}

func buildAllocationState(month core.YearMonth, envelopes []core.Envelope, income []core.Transaction,
	override *core.Money, sources []core.IncomeSource) core.AllocationState {
	state := core.AllocationState{
		Month:              month,
		IncomeMode:         core.IncomeDetected,
		IncomeTransactions: income,
	}
	if state.IncomeTransactions == nil {
		state.IncomeTransactions = []core.Transaction{}
	}
	for _, tx := range income {
		state.DetectedIncome = state.DetectedIncome.Add(tx.Amount)
	}
	state.Income = state.DetectedIncome
	if override != nil {
		v := *override
		state.ManualOverride = &v
		state.Income = v
		state.IncomeMode = core.IncomeManual
	}

	for _, e := range envelopes {
		if e.ActiveIn(month) {
			state.TotalAssigned = state.TotalAssigned.Add(e.MonthlyContribution)
		}
	}
	state.Remainder = state.Income.Sub(state.TotalAssigned)
	state.Complete = isComplete(state.Remainder.Decimal())
	state.Status = statusFor(state.Remainder, state.Complete)

	for _, s := range sources {
		if !s.Active {
			continue
		}
		amount := s.AmountFor(month)
		state.PlannedIncome = state.PlannedIncome.Add(amount)
		if s.Reliability.BudgetSafe() {
			state.BudgetSafePlannedIncome = state.BudgetSafePlannedIncome.Add(amount)
		}
	}
	return state
}

func isComplete(remainder decimal.Decimal) bool {
	return remainder.Abs().LessThan(completenessTolerance)
}

func statusFor(remainder core.Money, complete bool) core.StatusColor {
	switch {
	case complete:
		return core.StatusGreen
	case remainder.IsPositive():
		return core.StatusYellow
	default:
		return core.StatusRed
	}
}
