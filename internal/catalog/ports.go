// Package catalog defines the read and write ports the engine uses to reach
// envelopes, income plans, accounts, transactions and rules, whichever
// backend owns them.
package catalog

import (
	"context"

	"budgetflow/internal/core"
)

// Ports for outbound adapters.
type (
	EnvelopeReader interface {
		// ListEnvelopes returns every envelope, archived ones included.
		ListEnvelopes(ctx context.Context) ([]core.Envelope, error)
	}

	EnvelopeWriter interface {
		// ApplyAllocations adds each allocation to its envelope balance.
		// Unknown envelope ids fail the whole batch.
		ApplyAllocations(ctx context.Context, allocations []core.EnvelopeAllocation) error
	}

	IncomeSourceReader interface {
		ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error)
	}

	AccountReader interface {
		ListAccounts(ctx context.Context) ([]core.Account, error)
	}

	TransactionReader interface {
		ListTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error)
		// ListIncomeTransactions returns the month's transactions classified as income.
		ListIncomeTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	}

	// RuleStore keeps distribution rules in configuration order.
	RuleStore interface {
		ListRules(ctx context.Context) ([]core.DistributionRule, error)
		GetRule(ctx context.Context, id string) (core.DistributionRule, error)
		CreateRule(ctx context.Context, r core.DistributionRule) (core.DistributionRule, error)
		UpdateRule(ctx context.Context, r core.DistributionRule) (core.DistributionRule, error)
		DeleteRule(ctx context.Context, id string) error
	}

	OverrideStore interface {
		// GetIncomeOverride returns nil when no override is set.
		GetIncomeOverride(ctx context.Context, month core.YearMonth) (*core.Money, error)
		SetIncomeOverride(ctx context.Context, month core.YearMonth, amount core.Money) error
		ClearIncomeOverride(ctx context.Context, month core.YearMonth) error
	}

	BankConnectionReader interface {
		ListBankConnections(ctx context.Context) ([]core.BankConnection, error)
	}

	LinkSuggestionReader interface {
		ListPendingLinkSuggestions(ctx context.Context) ([]core.LinkSuggestion, error)
	}

	// KeyValueStore is a small string store for client-local state.
	KeyValueStore interface {
		Get(ctx context.Context, key string) (value string, ok bool, err error)
		Put(ctx context.Context, key, value string) error
		Delete(ctx context.Context, key string) error
		Keys(ctx context.Context, prefix string) ([]string, error)
	}

	// Catalog is everything a full backend provides.
	Catalog interface {
		EnvelopeReader
		EnvelopeWriter
		IncomeSourceReader
		AccountReader
		TransactionReader
		RuleStore
		OverrideStore
		BankConnectionReader
		LinkSuggestionReader
	}
)
