package services

import (
	"testing"

	"budgetflow/internal/core"
)

func money(c int64) *core.Money {
	m := core.Cents(c)
	return &m
}

func TestRuleMatches(t *testing.T) {
	tx := core.Transaction{ID: "t1", Description: "ACME Corp Payroll MARCH", Amount: core.Cents(252000), CategoryID: "salary", AccountID: "acc1", IsIncome: true}

	tests := []struct {
		name string
		rule core.DistributionRule
		want bool
	}{
		{"vacuous rule never matches", core.DistributionRule{Active: true}, false},
		{"account only is vacuous", core.DistributionRule{AccountID: "acc1", Active: true}, false},
		{"inactive", core.DistributionRule{DescriptionPattern: "acme", Active: false}, false},
		{"description case-insensitive", core.DistributionRule{DescriptionPattern: "acme corp", Active: true}, true},
		{"description mismatch", core.DistributionRule{DescriptionPattern: "globex", Active: true}, false},
		{"amount within tolerance", core.DistributionRule{ExpectedAmount: money(250000), AmountTolerance: 1, Active: true}, true},
		{"amount at tolerance boundary", core.DistributionRule{ExpectedAmount: money(240000), AmountTolerance: 5, Active: true}, true},
		{"amount outside tolerance", core.DistributionRule{ExpectedAmount: money(250000), AmountTolerance: 0.5, Active: true}, false},
		{"zero tolerance exact only", core.DistributionRule{ExpectedAmount: money(252000), Active: true}, true},
		{"category mismatch", core.DistributionRule{DescriptionPattern: "acme", CategoryID: "bonus", Active: true}, false},
		{"account mismatch", core.DistributionRule{DescriptionPattern: "acme", AccountID: "acc2", Active: true}, false},
		{"all criteria", core.DistributionRule{ExpectedAmount: money(252000), DescriptionPattern: "payroll", CategoryID: "salary", AccountID: "acc1", Active: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ruleMatches(tt.rule, tx); got != tt.want {
				t.Errorf("ruleMatches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchRulesOrdering(t *testing.T) {
	tx := core.Transaction{Description: "ACME PAYROLL", Amount: core.Cents(100000)}
	rules := []core.DistributionRule{
		{ID: "desc-1", DescriptionPattern: "acme", Active: true},
		{ID: "both", DescriptionPattern: "payroll", ExpectedAmount: money(100000), Active: true, AutoDistribute: true},
		{ID: "amount", ExpectedAmount: money(100000), Active: true},
		{ID: "desc-2", DescriptionPattern: "payroll", Active: true, AutoDistribute: true},
		{ID: "vacuous", Active: true, AutoDistribute: true},
	}
	matched := MatchRules(tx, rules)
	want := []string{"both", "desc-1", "amount", "desc-2"}
	if len(matched) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(matched))
	}
	for i, id := range want {
		if matched[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, matched[i].ID, id)
		}
	}

	first, ok := FirstAutoDistribute(matched)
	if !ok || first.ID != "both" {
		t.Errorf("expected auto rule both, got %s %v", first.ID, ok)
	}
	if _, ok := FirstAutoDistribute(matched[1:3]); ok {
		t.Error("no auto rule expected among manual matches")
	}
}
