package services

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
)

var hundred = decimal.NewFromInt(100)

// MatchRules returns the active rules matching tx, most specific first.
// Rules of equal specificity keep their configuration order.
func MatchRules(tx core.Transaction, rules []core.DistributionRule) []core.DistributionRule {
	var matched []core.DistributionRule
	for _, r := range rules {
		if ruleMatches(r, tx) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Specificity() > matched[j].Specificity()
	})
	return matched
}

// FirstAutoDistribute returns the first match allowed to distribute on its own.
func FirstAutoDistribute(matched []core.DistributionRule) (core.DistributionRule, bool) {
	for _, r := range matched {
		if r.AutoDistribute {
			return r, true
		}
	}
	return core.DistributionRule{}, false
}

func ruleMatches(r core.DistributionRule, tx core.Transaction) bool {
	if !r.Active {
		return false
	}
	// A rule with no detection criteria would match everything.
	if !r.HasAmountCriterion() && !r.HasDescriptionCriterion() {
		return false
	}
	if r.HasAmountCriterion() && !amountWithinTolerance(tx.Amount, *r.ExpectedAmount, r.AmountTolerance) {
		return false
	}
	if r.HasDescriptionCriterion() &&
		!strings.Contains(strings.ToLower(tx.Description), strings.ToLower(strings.TrimSpace(r.DescriptionPattern))) {
		return false
	}
	if r.CategoryID != "" && r.CategoryID != tx.CategoryID {
		return false
	}
	if r.AccountID != "" && r.AccountID != tx.AccountID {
		return false
	}
	return true
}

// amountWithinTolerance checks |actual - expected| / expected * 100 <= tolerance.
func amountWithinTolerance(actual, expected core.Money, tolerance float64) bool {
	if !expected.IsPositive() {
		return false
	}
	diff := decimal.NewFromInt(actual.Sub(expected).Abs().Cents)
	deviation := diff.Mul(hundred).Div(decimal.NewFromInt(expected.Cents))
	return deviation.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}
