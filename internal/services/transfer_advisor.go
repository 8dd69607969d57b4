package services

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
)

var safetyMarginRate = decimal.New(10, -2)

const sharedSplitNote = "Shared obligations are split evenly across the accounts that receive income this month, regardless of how much each account receives."

// TransferAdvisor suggests how much can leave each income account safely.
type TransferAdvisor struct {
	incomes   catalog.IncomeSourceReader
	envelopes catalog.EnvelopeReader
	accounts  catalog.AccountReader
}

func NewTransferAdvisor(incomes catalog.IncomeSourceReader, envelopes catalog.EnvelopeReader, accounts catalog.AccountReader) *TransferAdvisor {
	return &TransferAdvisor{incomes: incomes, envelopes: envelopes, accounts: accounts}
}

func (a *TransferAdvisor) ComputeTransferSuggestions(ctx context.Context, month core.YearMonth) (core.TransferReport, error) {
	var (
		sources   []core.IncomeSource
		envelopes []core.Envelope
		accounts  []core.Account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sources, err = a.incomes.ListIncomeSources(gctx)
		return core.Unavailable("list income sources", err)
	})
	g.Go(func() error {
		var err error
		envelopes, err = a.envelopes.ListEnvelopes(gctx)
		return core.Unavailable("list envelopes", err)
	})
	g.Go(func() error {
		var err error
		accounts, err = a.accounts.ListAccounts(gctx)
		return core.Unavailable("list accounts", err)
	})
	if err := g.Wait(); err != nil {
		return core.TransferReport{}, err
	}
	return computeTransferReport(month, sources, envelopes, accounts), nil
}

func computeTransferReport(month core.YearMonth, sources []core.IncomeSource, envelopes []core.Envelope, accounts []core.Account) core.TransferReport {
	report := core.TransferReport{Month: month, Suggestions: []core.TransferSuggestion{}, Note: sharedSplitNote}

	byAccount := map[string]*core.TransferSuggestion{}
	for _, s := range sources {
		if !s.Active || s.AccountID == "" {
			continue
		}
		amount := s.AmountFor(month)
		if !amount.IsPositive() {
			continue
		}
		sug, ok := byAccount[s.AccountID]
		if !ok {
			sug = &core.TransferSuggestion{
				AccountID:         s.AccountID,
				AccountName:       s.AccountID,
				DirectObligations: []core.DirectObligation{},
				SharedObligations: []core.SharedObligation{},
			}
			byAccount[s.AccountID] = sug
		}
		sug.IncomeSources = append(sug.IncomeSources, core.IncomeContribution{
			SourceID: s.ID, Name: s.Name, Reliability: s.Reliability, Amount: amount,
		})
		sug.TotalIncome = sug.TotalIncome.Add(amount)
		if s.Reliability.BudgetSafe() {
			sug.BudgetSafeIncome = sug.BudgetSafeIncome.Add(amount)
		}
	}

	// Without any income account there is nothing to divide shared costs by.
	if len(byAccount) == 0 {
		return report
	}
	report.DistinctIncomeAccountCount = len(byAccount)

	ids := make([]string, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, e := range envelopes {
		if !e.ActiveIn(month) {
			continue
		}
		if e.AccountID != "" {
			if sug, ok := byAccount[e.AccountID]; ok {
				sug.DirectObligations = append(sug.DirectObligations, core.DirectObligation{
					EnvelopeID: e.ID, Name: e.Name, Amount: e.MonthlyContribution,
				})
				sug.DirectTotal = sug.DirectTotal.Add(e.MonthlyContribution)
			}
			continue
		}
		parts := splitEvenly(e.MonthlyContribution, len(ids))
		for i, id := range ids {
			sug := byAccount[id]
			sug.SharedObligations = append(sug.SharedObligations, core.SharedObligation{
				EnvelopeID: e.ID, Name: e.Name, FullAmount: e.MonthlyContribution, Share: parts[i],
			})
			sug.SharedShare = sug.SharedShare.Add(parts[i])
		}
	}

	names := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		names[acc.ID] = acc.Name
	}

	for _, id := range ids {
		sug := byAccount[id]
		if name := names[id]; name != "" {
			sug.AccountName = name
		}
		sug.SafetyMargin = core.MoneyFromDecimal(sug.TotalIncome.Decimal().Mul(safetyMarginRate))
		sug.Surplus = sug.TotalIncome.Sub(sug.DirectTotal).Sub(sug.SharedShare)
		sug.SuggestedTransfer = core.Max(core.Money{}, sug.Surplus.Sub(sug.SafetyMargin))
		sug.Status = transferStatus(sug.Surplus, sug.SuggestedTransfer)
		report.Suggestions = append(report.Suggestions, *sug)
	}

	sort.SliceStable(report.Suggestions, func(i, j int) bool {
		a, b := report.Suggestions[i], report.Suggestions[j]
		if a.AccountName != b.AccountName {
			return a.AccountName < b.AccountName
		}
		return a.AccountID < b.AccountID
	})
	return report
}

func transferStatus(surplus, suggested core.Money) core.TransferStatus {
	switch {
	case surplus.IsNegative():
		return core.TransferInsufficient
	case suggested.IsPositive():
		return core.TransferTransferable
	default:
		return core.TransferTight
	}
}

// splitEvenly divides total into n parts floored to the cent; the residual
// cents go to the first part.
func splitEvenly(total core.Money, n int) []core.Money {
	parts := make([]core.Money, n)
	if n == 0 {
		return parts
	}
	each := total.Cents / int64(n)
	for i := range parts {
		parts[i] = core.Cents(each)
	}
	parts[0] = parts[0].Add(core.Cents(total.Cents - each*int64(n)))
	return parts
}
