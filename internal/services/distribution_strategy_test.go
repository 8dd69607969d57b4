package services

import (
	"errors"
	"testing"

	"budgetflow/internal/core"
)

func envelope(id string, tier core.PriorityTier, target, balance, contribution int64) core.Envelope {
	return core.Envelope{
		ID:                  id,
		Name:                id,
		Purpose:             core.PurposeSinkingFund,
		Target:              core.Cents(target),
		Balance:             core.Cents(balance),
		MonthlyContribution: core.Cents(contribution),
		Priority:            tier,
		Status:              core.EnvelopeActive,
	}
}

func allocationsByID(r core.DistributionResult) map[string]int64 {
	out := make(map[string]int64, len(r.Allocations))
	for _, a := range r.Allocations {
		out[a.EnvelopeID] = a.Amount.Cents
	}
	return out
}

func TestDistributeSumInvariant(t *testing.T) {
	archived := envelope("old", core.TierEssential, 10000, 0, 1000)
	archived.Status = core.EnvelopeArchived

	sets := map[string][]core.Envelope{
		"mixed": {
			envelope("a", core.TierEssential, 5000, 0, 1000),
			envelope("b", core.TierImportant, 33333, 1, 0),
			envelope("c", core.TierDiscretionary, 20000, 5000, 700),
			archived,
		},
		"three equal needs": {
			envelope("x", core.TierImportant, 100, 0, 1),
			envelope("y", core.TierImportant, 100, 0, 1),
			envelope("z", core.TierImportant, 100, 0, 1),
		},
		"all funded": {
			envelope("f", core.TierEssential, 100, 100, 0),
		},
		"none": nil,
	}
	amounts := []int64{0, 1, 100, 9999, 1000001}
	for name, envs := range sets {
		for _, strategy := range []core.StrategyName{core.StrategyPriority, core.StrategyProportional, core.StrategyEqual} {
			for _, amount := range amounts {
				t.Run(name+"/"+string(strategy), func(t *testing.T) {
					result, err := Distribute(core.Cents(amount), strategy, envs)
					if err != nil {
						t.Fatalf("distribute: %v", err)
					}
					total := result.Unassigned.Cents
					for _, a := range result.Allocations {
						if a.Amount.IsNegative() {
							t.Errorf("negative allocation %+v", a)
						}
						if a.EnvelopeID == "old" {
							t.Errorf("archived envelope received money")
						}
						total += a.Amount.Cents
					}
					if total != amount {
						t.Errorf("allocations + unassigned = %d, want %d", total, amount)
					}
				})
			}
		}
	}
}

func TestPriorityStrategy(t *testing.T) {
	t.Run("fills essential first", func(t *testing.T) {
		envs := []core.Envelope{
			envelope("b", core.TierDiscretionary, 20000, 0, 1000),
			envelope("a", core.TierEssential, 5000, 0, 1000),
		}
		result, err := Distribute(core.Cents(10000), core.StrategyPriority, envs)
		if err != nil {
			t.Fatalf("distribute: %v", err)
		}
		got := allocationsByID(result)
		if got["a"] != 5000 || got["b"] != 5000 || !result.Unassigned.IsZero() {
			t.Errorf("expected 50/50, got %v unassigned %v", got, result.Unassigned)
		}
	})

	t.Run("larger need first within a tier", func(t *testing.T) {
		envs := []core.Envelope{
			envelope("small", core.TierImportant, 1000, 0, 100),
			envelope("large", core.TierImportant, 9000, 0, 100),
		}
		result, _ := Distribute(core.Cents(5000), core.StrategyPriority, envs)
		if result.Allocations[0].EnvelopeID != "large" || result.Allocations[0].Amount.Cents != 5000 {
			t.Errorf("unexpected order %+v", result.Allocations)
		}
	})

	t.Run("leftover goes to last contributing envelope", func(t *testing.T) {
		envs := []core.Envelope{
			envelope("a", core.TierEssential, 1000, 0, 500),
			envelope("b", core.TierImportant, 1000, 0, 300),
			envelope("c", core.TierDiscretionary, 1000, 0, 0),
		}
		result, _ := Distribute(core.Cents(5000), core.StrategyPriority, envs)
		got := allocationsByID(result)
		if got["a"] != 1000 || got["b"] != 3000 || got["c"] != 1000 || !result.Unassigned.IsZero() {
			t.Errorf("unexpected allocations %v unassigned %v", got, result.Unassigned)
		}
	})

	t.Run("leftover unassigned without contributions", func(t *testing.T) {
		envs := []core.Envelope{envelope("a", core.TierEssential, 1000, 0, 0)}
		result, _ := Distribute(core.Cents(1500), core.StrategyPriority, envs)
		if result.Unassigned.Cents != 500 || allocationsByID(result)["a"] != 1000 {
			t.Errorf("unexpected result %+v", result)
		}
	})
}

func TestProportionalStrategy(t *testing.T) {
	envs := []core.Envelope{
		envelope("a", core.TierEssential, 10000, 0, 0),
		envelope("b", core.TierDiscretionary, 30000, 0, 0),
		envelope("done", core.TierImportant, 500, 500, 0),
	}
	result, err := Distribute(core.Cents(4000), core.StrategyProportional, envs)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	got := allocationsByID(result)
	if got["a"] != 1000 || got["b"] != 3000 || got["done"] != 0 {
		t.Errorf("expected 10/30/0, got %v", got)
	}

	t.Run("no need anywhere", func(t *testing.T) {
		result, _ := Distribute(core.Cents(4000), core.StrategyProportional, envs[2:])
		if result.Unassigned.Cents != 4000 || len(result.Allocations) != 0 {
			t.Errorf("expected all unassigned, got %+v", result)
		}
	})

	t.Run("residual cent goes to first receiver", func(t *testing.T) {
		three := []core.Envelope{
			envelope("x", core.TierEssential, 100, 0, 0),
			envelope("y", core.TierEssential, 100, 0, 0),
			envelope("z", core.TierEssential, 100, 0, 0),
		}
		result, _ := Distribute(core.Cents(100), core.StrategyProportional, three)
		got := allocationsByID(result)
		if got["x"] != 34 || got["y"] != 33 || got["z"] != 33 {
			t.Errorf("unexpected rounding %v", got)
		}
	})
}

func TestEqualStrategy(t *testing.T) {
	envs := []core.Envelope{
		envelope("a", core.TierEssential, 0, 0, 100),
		envelope("b", core.TierEssential, 0, 0, 0),
		envelope("c", core.TierEssential, 0, 0, 100),
	}
	result, _ := Distribute(core.Cents(1001), core.StrategyEqual, envs)
	got := allocationsByID(result)
	if got["a"] != 501 || got["c"] != 500 {
		t.Errorf("unexpected split %v", got)
	}
	if _, ok := got["b"]; ok {
		t.Errorf("zero-contribution envelope should not be eligible")
	}

	result, _ = Distribute(core.Cents(1000), core.StrategyEqual, envs[1:2])
	if result.Unassigned.Cents != 1000 {
		t.Errorf("expected all unassigned, got %+v", result)
	}
}

func TestDistributeRejectsBadInput(t *testing.T) {
	var verr *core.ValidationError
	if _, err := Distribute(core.Cents(-1), core.StrategyEqual, nil); !errors.As(err, &verr) || verr.Field != "amount" {
		t.Errorf("expected amount validation error, got %v", err)
	}
	if _, err := Distribute(core.Cents(100), "random", nil); !errors.As(err, &verr) || verr.Field != "strategy" {
		t.Errorf("expected strategy validation error, got %v", err)
	}
}
