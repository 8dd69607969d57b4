package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budgetflow/internal/amqp"
	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
)

const (
	TriggerManual = "manual"
	TriggerRule   = "rule"
)

// DistributionPublisher announces applied distributions. *amqp.Client implements it.
type DistributionPublisher interface {
	PublishDistributionApplied(ctx context.Context, msg *amqp.DistributionAppliedMessage) error
}

// RuleEvaluation is the outcome of running the rules against one transaction.
type RuleEvaluation struct {
	TransactionID   string                   `json:"transactionId"`
	MatchedRuleIDs  []string                 `json:"matchedRuleIds"`
	TriggeredRuleID string                   `json:"triggeredRuleId,omitempty"`
	Distribution    *core.DistributionResult `json:"distribution,omitempty"`
}

// DistributionService orchestrates rule matching, strategies and balance updates.
type DistributionService struct {
	envelopes    catalog.EnvelopeReader
	writer       catalog.EnvelopeWriter
	transactions catalog.TransactionReader
	rules        catalog.RuleStore
	publisher    DistributionPublisher
	now          func() time.Time
}

// NewDistributionService wires the service; publisher may be nil when AMQP is disabled.
func NewDistributionService(envelopes catalog.EnvelopeReader, writer catalog.EnvelopeWriter,
	transactions catalog.TransactionReader, rules catalog.RuleStore, publisher DistributionPublisher) *DistributionService {
	return &DistributionService{
		envelopes:    envelopes,
		writer:       writer,
		transactions: transactions,
		rules:        rules,
		publisher:    publisher,
		now:          time.Now,
	}
}

// SetClock replaces the time source that decides the current month.
func (s *DistributionService) SetClock(now func() time.Time) {
	s.now = now
}

// ActiveEnvelopes lists the envelopes that can receive money this month.
func (s *DistributionService) ActiveEnvelopes(ctx context.Context) ([]core.Envelope, error) {
	envelopes, err := s.envelopes.ListEnvelopes(ctx)
	if err != nil {
		return nil, core.Unavailable("list envelopes", err)
	}
	month := core.YearMonthOf(s.now())
	return filterEnvelopes(envelopes, func(e core.Envelope) bool { return e.ActiveIn(month) }), nil
}

// DistributeManually splits amount across the active envelopes. Unless preview
// is set the allocations are added to the envelope balances.
func (s *DistributionService) DistributeManually(ctx context.Context, amount core.Money, strategy core.StrategyName, preview bool) (core.DistributionResult, error) {
	if _, err := GetStrategy(strategy); err != nil {
		return core.DistributionResult{}, err
	}
	envelopes, err := s.ActiveEnvelopes(ctx)
	if err != nil {
		return core.DistributionResult{}, err
	}
	result, err := Distribute(amount, strategy, envelopes)
	if err != nil {
		return core.DistributionResult{}, err
	}
	if preview {
		return result, nil
	}
	if err := s.apply(ctx, result, TriggerManual, "", ""); err != nil {
		return core.DistributionResult{}, err
	}
	slog.InfoContext(ctx, "Distribution applied",
		"trigger", TriggerManual,
		"strategy", string(result.Strategy),
		"amount", result.Amount.String(),
		"unassigned", result.Unassigned.String())
	return result, nil
}

// EvaluateTransaction runs the rules against a transaction and, when a
// matching rule allows it, distributes the transaction amount.
func (s *DistributionService) EvaluateTransaction(ctx context.Context, txID string) (RuleEvaluation, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return RuleEvaluation{}, core.NewValidationError("transactionId", "is required")
	}
	tx, err := s.transactions.GetTransaction(ctx, txID)
	if err != nil {
		return RuleEvaluation{}, core.Unavailable("get transaction", err)
	}
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return RuleEvaluation{}, core.Unavailable("list rules", err)
	}

	matched := MatchRules(tx, rules)
	eval := RuleEvaluation{TransactionID: tx.ID, MatchedRuleIDs: make([]string, 0, len(matched))}
	for _, r := range matched {
		eval.MatchedRuleIDs = append(eval.MatchedRuleIDs, r.ID)
	}

	rule, ok := FirstAutoDistribute(matched)
	if !ok || !tx.Amount.IsPositive() {
		slog.DebugContext(ctx, "No automatic distribution", "transaction_id", tx.ID, "matched", len(matched))
		return eval, nil
	}

	envelopes, err := s.ActiveEnvelopes(ctx)
	if err != nil {
		return RuleEvaluation{}, err
	}
	if len(rule.TargetEnvelopeIDs) > 0 {
		targets := make(map[string]bool, len(rule.TargetEnvelopeIDs))
		for _, id := range rule.TargetEnvelopeIDs {
			targets[id] = true
		}
		envelopes = filterEnvelopes(envelopes, func(e core.Envelope) bool { return targets[e.ID] })
	}

	result, err := Distribute(tx.Amount, rule.Strategy, envelopes)
	if err != nil {
		return RuleEvaluation{}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	if err := s.apply(ctx, result, TriggerRule, rule.ID, tx.ID); err != nil {
		return RuleEvaluation{}, err
	}
	eval.TriggeredRuleID = rule.ID
	eval.Distribution = &result
	slog.InfoContext(ctx, "Rule distribution applied",
		"rule_id", rule.ID,
		"transaction_id", tx.ID,
		"strategy", string(result.Strategy),
		"amount", result.Amount.String())
	return eval, nil
}

func (s *DistributionService) apply(ctx context.Context, result core.DistributionResult, trigger, ruleID, txID string) error {
	if len(result.Allocations) > 0 {
		if err := s.writer.ApplyAllocations(ctx, result.Allocations); err != nil {
			return core.Unavailable("apply allocations", err)
		}
	}
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping distribution event")
		return nil
	}
	msg := amqp.NewDistributionAppliedMessage(trigger, ruleID, txID, result)
	if err := s.publisher.PublishDistributionApplied(ctx, msg); err != nil {
		// Balances are already updated; the event is best effort.
		slog.ErrorContext(ctx, "Failed to publish distribution event", "trigger", trigger, "error", err)
	}
	return nil
}

func (s *DistributionService) ListRules(ctx context.Context) ([]core.DistributionRule, error) {
	rules, err := s.rules.ListRules(ctx)
	return rules, core.Unavailable("list rules", err)
}

func (s *DistributionService) GetRule(ctx context.Context, id string) (core.DistributionRule, error) {
	r, err := s.rules.GetRule(ctx, id)
	return r, core.Unavailable("get rule", err)
}

func (s *DistributionService) CreateRule(ctx context.Context, r core.DistributionRule) (core.DistributionRule, error) {
	normalizeRule(&r)
	if err := r.Validate(); err != nil {
		return core.DistributionRule{}, err
	}
	created, err := s.rules.CreateRule(ctx, r)
	if err != nil {
		return core.DistributionRule{}, core.Unavailable("create rule", err)
	}
	slog.InfoContext(ctx, "Distribution rule created", "rule_id", created.ID, "strategy", string(created.Strategy))
	return created, nil
}

func (s *DistributionService) UpdateRule(ctx context.Context, id string, r core.DistributionRule) (core.DistributionRule, error) {
	r.ID = id
	normalizeRule(&r)
	if err := r.Validate(); err != nil {
		return core.DistributionRule{}, err
	}
	updated, err := s.rules.UpdateRule(ctx, r)
	if err != nil {
		return core.DistributionRule{}, core.Unavailable("update rule", err)
	}
	return updated, nil
}

func (s *DistributionService) DeleteRule(ctx context.Context, id string) error {
	return core.Unavailable("delete rule", s.rules.DeleteRule(ctx, id))
}

func normalizeRule(r *core.DistributionRule) {
	r.Name = strings.TrimSpace(r.Name)
	r.DescriptionPattern = strings.TrimSpace(r.DescriptionPattern)
	if strings.TrimSpace(string(r.Strategy)) == "" {
		r.Strategy = core.StrategyPriority
	} else if n, err := core.ParseStrategyName(string(r.Strategy)); err == nil {
		r.Strategy = n
	}
	r.CreatedAt, r.UpdatedAt = time.Time{}, time.Time{}
}
