package services

import (
	"context"
	"errors"
	"time"

	"budgetflow/internal/catalog/memory"
	"budgetflow/internal/core"
)

var errBackendDown = errors.New("backend down")

// flakyStore is a memory store whose selected reads fail.
type flakyStore struct {
	*memory.Store
	failEnvelopes    bool
	failConnections  bool
	failTransactions bool
}

func (s *flakyStore) ListEnvelopes(ctx context.Context) ([]core.Envelope, error) {
	if s.failEnvelopes {
		return nil, errBackendDown
	}
	return s.Store.ListEnvelopes(ctx)
}

func (s *flakyStore) ListBankConnections(ctx context.Context) ([]core.BankConnection, error) {
	if s.failConnections {
		return nil, errBackendDown
	}
	return s.Store.ListBankConnections(ctx)
}

func (s *flakyStore) ListTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error) {
	if s.failTransactions {
		return nil, errBackendDown
	}
	return s.Store.ListTransactions(ctx, month)
}

func march2025() core.YearMonth { return core.YearMonth{Year: 2025, Month: time.March} }

func incomeSource(id, account string, reliability core.Reliability, marchCents int64) core.IncomeSource {
	s := core.IncomeSource{ID: id, Name: id, Reliability: reliability, AccountID: account, Active: true}
	s.Amounts[time.March-1] = core.Cents(marchCents)
	return s
}

func newLedger(store memoryLike) *AllocationLedger {
	return NewAllocationLedger(store, store, store, store)
}

type memoryLike interface {
	ListEnvelopes(ctx context.Context) ([]core.Envelope, error)
	ListTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error)
	ListIncomeTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetIncomeOverride(ctx context.Context, month core.YearMonth) (*core.Money, error)
	SetIncomeOverride(ctx context.Context, month core.YearMonth, amount core.Money) error
	ClearIncomeOverride(ctx context.Context, month core.YearMonth) error
	ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error)
}
