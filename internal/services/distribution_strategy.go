// Package services provides business logic and orchestration services.
//
// This file implements the distribution strategies. The set is closed: each
// variant implements an unexported method, so only this package can add one
// and every variant must provide its own allocation.

package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
)

// Strategy splits an amount across envelopes.
type Strategy interface {
	Name() core.StrategyName
	// shares returns a full-precision share in cents per receiving envelope
	// plus any amount it could not place.
	shares(amount core.Money, envelopes []core.Envelope) ([]share, core.Money)
}

type share struct {
	envelope core.Envelope
	cents    decimal.Decimal
}

// PriorityStrategy fills remaining needs tier by tier.
type PriorityStrategy struct{}

func (PriorityStrategy) Name() core.StrategyName { return core.StrategyPriority }

func (PriorityStrategy) shares(amount core.Money, envelopes []core.Envelope) ([]share, core.Money) {
	eligible := filterEnvelopes(envelopes, func(e core.Envelope) bool { return e.IsActive() })
	sort.SliceStable(eligible, func(i, j int) bool {
		ri, rj := eligible[i].Priority.Rank(), eligible[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return eligible[i].RemainingNeed().Cents > eligible[j].RemainingNeed().Cents
	})

	out := make([]share, len(eligible))
	remaining := amount.Cents
	for i, e := range eligible {
		give := e.RemainingNeed().Cents
		if give > remaining {
			give = remaining
		}
		remaining -= give
		out[i] = share{envelope: e, cents: decimal.NewFromInt(give)}
	}
	if remaining == 0 {
		return out, core.Money{}
	}

	// Leftover goes to the lowest-priority envelope that still takes contributions.
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].envelope.MonthlyContribution.IsPositive() {
			out[i].cents = out[i].cents.Add(decimal.NewFromInt(remaining))
			return out, core.Money{}
		}
	}
	return out, core.Cents(remaining)
}

// ProportionalStrategy splits in proportion to each envelope's remaining need.
type ProportionalStrategy struct{}

func (ProportionalStrategy) Name() core.StrategyName { return core.StrategyProportional }

func (ProportionalStrategy) shares(amount core.Money, envelopes []core.Envelope) ([]share, core.Money) {
	eligible := filterEnvelopes(envelopes, func(e core.Envelope) bool { return e.IsActive() })
	var totalNeed int64
	for _, e := range eligible {
		totalNeed += e.RemainingNeed().Cents
	}
	if totalNeed == 0 {
		return nil, amount
	}

	total := decimal.NewFromInt(totalNeed)
	amt := decimal.NewFromInt(amount.Cents)
	out := make([]share, len(eligible))
	for i, e := range eligible {
		need := decimal.NewFromInt(e.RemainingNeed().Cents)
		out[i] = share{envelope: e, cents: amt.Mul(need).Div(total)}
	}
	return out, core.Money{}
}

// EqualStrategy splits evenly across envelopes that take contributions.
type EqualStrategy struct{}

func (EqualStrategy) Name() core.StrategyName { return core.StrategyEqual }

func (EqualStrategy) shares(amount core.Money, envelopes []core.Envelope) ([]share, core.Money) {
	eligible := filterEnvelopes(envelopes, func(e core.Envelope) bool {
		return e.IsActive() && e.MonthlyContribution.IsPositive()
	})
	if len(eligible) == 0 {
		return nil, amount
	}
	each := decimal.NewFromInt(amount.Cents).Div(decimal.NewFromInt(int64(len(eligible))))
	out := make([]share, len(eligible))
	for i, e := range eligible {
		out[i] = share{envelope: e, cents: each}
	}
	return out, core.Money{}
}

// strategies is fixed; there is no registration hook.
var strategies = map[core.StrategyName]Strategy{
	core.StrategyPriority:     PriorityStrategy{},
	core.StrategyProportional: ProportionalStrategy{},
	core.StrategyEqual:        EqualStrategy{},
}

// GetStrategy returns the strategy for a name or a validation error.
func GetStrategy(name core.StrategyName) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, core.NewValidationError("strategy", "must be priority, proportional or equal")
	}
	return s, nil
}

// Distribute splits amount across envelopes with the named strategy.
// Allocations plus the unassigned remainder always equal amount.
func Distribute(amount core.Money, name core.StrategyName, envelopes []core.Envelope) (core.DistributionResult, error) {
	if amount.IsNegative() {
		return core.DistributionResult{}, core.NewValidationError("amount", "must not be negative")
	}
	strategy, err := GetStrategy(name)
	if err != nil {
		return core.DistributionResult{}, err
	}

	shares, unassigned := strategy.shares(amount, envelopes)
	allocations := settle(amount.Sub(unassigned), shares)
	return core.DistributionResult{
		Strategy:    strategy.Name(),
		Amount:      amount,
		Allocations: allocations,
		Unassigned:  unassigned,
	}, nil
}

// settle floors every share to the cent and hands the residual cents to the
// first envelope that receives anything.
func settle(target core.Money, shares []share) []core.EnvelopeAllocation {
	out := make([]core.EnvelopeAllocation, len(shares))
	var sum int64
	first := -1
	for i, s := range shares {
		cents := s.cents.Floor().IntPart()
		out[i] = core.EnvelopeAllocation{EnvelopeID: s.envelope.ID, Name: s.envelope.Name, Amount: core.Cents(cents)}
		sum += cents
		if first == -1 && s.cents.IsPositive() {
			first = i
		}
	}
	if residual := target.Cents - sum; residual != 0 && first >= 0 {
		out[first].Amount = out[first].Amount.Add(core.Cents(residual))
	}
	return out
}

func filterEnvelopes(envelopes []core.Envelope, keep func(core.Envelope) bool) []core.Envelope {
	out := make([]core.Envelope, 0, len(envelopes))
	for _, e := range envelopes {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
