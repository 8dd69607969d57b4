package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"budgetflow/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{70, 30 * time.Second}, // no overflow
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed connection", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"delivery channel closed", errors.New("message channel closed"), true},
		{"handler failure", errors.New("transaction not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestPublishCircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue", breaker: newBreaker("test")}
	msg := &DistributionAppliedMessage{Trigger: "manual", Strategy: "equal"}

	t.Run("fails without a channel", func(t *testing.T) {
		err := client.PublishDistributionApplied(context.Background(), msg)
		if err == nil || !strings.Contains(err.Error(), "channel not open") {
			t.Fatalf("expected channel error, got %v", err)
		}
	})

	t.Run("opens after repeated failures", func(t *testing.T) {
		for i := 1; i < maxFailures; i++ {
			_ = client.PublishDistributionApplied(context.Background(), msg)
		}
		if client.State() != gobreaker.StateOpen.String() {
			t.Fatalf("expected open breaker, got %s", client.State())
		}
		err := client.PublishDistributionApplied(context.Background(), msg)
		if !errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("expected ErrOpenState, got %v", err)
		}
		if !strings.Contains(err.Error(), "circuit breaker is open") {
			t.Errorf("error should mention the breaker, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := client.PublishDistributionApplied(ctx, msg); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestIncomeDetectedMessageWireFormat(t *testing.T) {
	msg, err := IncomeDetectedMessageFromJSON([]byte(`{"transaction_id":"tx-42","timestamp":"2025-03-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.TransactionID != "tx-42" || !msg.Timestamp.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected message %+v", msg)
	}
	if _, err := IncomeDetectedMessageFromJSON([]byte(`{"transaction_id": 42}`)); err == nil {
		t.Error("expected error for numeric transaction id")
	}
}

func TestNewDistributionAppliedMessage(t *testing.T) {
	result := core.DistributionResult{
		Strategy: core.StrategyPriority,
		Amount:   core.Cents(10000),
		Allocations: []core.EnvelopeAllocation{
			{EnvelopeID: "rent", Amount: core.Cents(5000)},
			{EnvelopeID: "fun", Amount: core.Cents(5000)},
		},
	}
	msg := NewDistributionAppliedMessage("rule", "r1", "tx-1", result)

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["rule_id"] != "r1" || decoded["transaction_id"] != "tx-1" || decoded["amount_cents"] != float64(10000) {
		t.Errorf("unexpected payload %s", body)
	}
	allocs, ok := decoded["allocations"].([]any)
	if !ok || len(allocs) != 2 {
		t.Fatalf("expected two allocations, got %s", body)
	}
	if first := allocs[0].(map[string]any); first["envelope_id"] != "rent" || first["amount_cents"] != float64(5000) {
		t.Errorf("unexpected allocation %v", first)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}
