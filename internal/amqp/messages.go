package amqp

import (
	"encoding/json"
	"time"

	"budgetflow/internal/core"
)

const (
	RoutingIncomeDetected      = "income.detected"
	RoutingDistributionApplied = "distribution.applied"
)

// IncomeDetectedMessage announces a new income transaction. It carries only
// the id; the worker reads the transaction from the catalog.
type IncomeDetectedMessage struct {
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewIncomeDetectedMessage(transactionID string) *IncomeDetectedMessage {
	return &IncomeDetectedMessage{TransactionID: transactionID, Timestamp: time.Now()}
}

func (m *IncomeDetectedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func IncomeDetectedMessageFromJSON(data []byte) (*IncomeDetectedMessage, error) {
	var msg IncomeDetectedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type AllocationEntry struct {
	EnvelopeID  string `json:"envelope_id"`
	AmountCents int64  `json:"amount_cents"`
}

// DistributionAppliedMessage is published after allocations hit the envelope balances.
type DistributionAppliedMessage struct {
	Trigger       string            `json:"trigger"`
	RuleID        string            `json:"rule_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Strategy      string            `json:"strategy"`
	AmountCents   int64             `json:"amount_cents"`
	Allocations   []AllocationEntry `json:"allocations"`
	Timestamp     time.Time         `json:"timestamp"`
}

func NewDistributionAppliedMessage(trigger, ruleID, transactionID string, result core.DistributionResult) *DistributionAppliedMessage {
	entries := make([]AllocationEntry, 0, len(result.Allocations))
	for _, a := range result.Allocations {
		entries = append(entries, AllocationEntry{EnvelopeID: a.EnvelopeID, AmountCents: a.Amount.Cents})
	}
	return &DistributionAppliedMessage{
		Trigger:       trigger,
		RuleID:        ruleID,
		TransactionID: transactionID,
		Strategy:      string(result.Strategy),
		AmountCents:   result.Amount.Cents,
		Allocations:   entries,
		Timestamp:     time.Now(),
	}
}

func (m *DistributionAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
