package services

import (
	"context"
	"testing"
	"time"

	"budgetflow/internal/catalog/memory"
	"budgetflow/internal/core"
)

func TestDismissalExpiry(t *testing.T) {
	tests := []struct {
		name       string
		age        time.Duration
		suppressed bool
	}{
		{"dismissed 6 days ago stays hidden", 6 * 24 * time.Hour, true},
		{"dismissed 8 days ago reappears", 8 * 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New(memory.Seed{})
			dismissals := NewDismissals(store)
			ctx := context.Background()
			now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

			dismissals.SetClock(func() time.Time { return now.Add(-tt.age) })
			if err := dismissals.Dismiss(ctx, "phone", "allocation:2025-03:under"); err != nil {
				t.Fatalf("dismiss: %v", err)
			}
			dismissals.SetClock(func() time.Time { return now })

			agg := &NotificationAggregator{dismissals: dismissals, now: func() time.Time { return now }}
			alerts, err := agg.Build(ctx, "phone", []core.Alert{
				{ID: "allocation:2025-03:under", Severity: core.SeverityMedium, Dismissible: true},
			})
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if got := len(alerts) == 0; got != tt.suppressed {
				t.Errorf("suppressed = %v, want %v", got, tt.suppressed)
			}

			keys, _ := store.Keys(ctx, dismissalPrefix)
			if !tt.suppressed && len(keys) != 0 {
				t.Errorf("expired dismissal should be purged, still have %v", keys)
			}
		})
	}
}

func TestBuildOrdersAndFilters(t *testing.T) {
	store := memory.New(memory.Seed{})
	dismissals := NewDismissals(store)
	ctx := context.Background()
	_ = dismissals.Dismiss(ctx, "laptop", "dup")
	_ = dismissals.Dismiss(ctx, "laptop", "link:1")

	agg := &NotificationAggregator{dismissals: dismissals, now: time.Now}
	alerts, err := agg.Build(ctx, "laptop",
		[]core.Alert{{ID: "low-1", Severity: core.SeverityLow}, {ID: "med-1", Severity: core.SeverityMedium, Dismissible: true}},
		[]core.Alert{{ID: "high-1", Severity: core.SeverityHigh, Dismissible: true}, {ID: "dup", Severity: core.SeverityHigh, Dismissible: true}},
		[]core.Alert{{ID: "link:1", Severity: core.SeverityLow, Dismissible: false}, {ID: "med-2", Severity: core.SeverityMedium}},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"high-1", "med-1", "med-2", "low-1", "link:1"}
	if len(alerts) != len(want) {
		t.Fatalf("expected %v, got %+v", want, alerts)
	}
	for i, id := range want {
		if alerts[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, alerts[i].ID, id)
		}
	}

	// Dismissals are per client.
	other, _ := agg.Build(ctx, "phone", []core.Alert{{ID: "dup", Severity: core.SeverityHigh, Dismissible: true}})
	if len(other) != 1 {
		t.Errorf("dismissal leaked to another client")
	}
}

func TestFeed(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	seed := memory.Seed{
		Envelopes: []core.Envelope{linked(envelope("rent", core.TierEssential, 0, 0, 150000), "acc1")},
		IncomeSources: []core.IncomeSource{
			incomeSource("salary", "acc1", core.ReliabilityGuaranteed, 100000),
		},
		Transactions: []core.Transaction{
			{ID: "t1", Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Amount: core.Cents(100000), IsIncome: true, Description: "Payroll"},
			{ID: "t2", Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), Amount: core.Cents(-4599), Description: "GROCERY STORE 123"},
			{ID: "t3", Date: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), Amount: core.Cents(-4599), Description: "Grocery Store 124"},
		},
		BankConnections: []core.BankConnection{
			{ID: "b1", Institution: "First Bank", Status: core.ConnectionExpired, LastSyncedAt: now},
			{ID: "b2", Institution: "Credit Union", Status: core.ConnectionActive, LastSyncedAt: now.Add(-80 * time.Hour)},
			{ID: "b3", Institution: "Fresh Bank", Status: core.ConnectionActive, LastSyncedAt: now.Add(-time.Hour)},
		},
		LinkSuggestions: []core.LinkSuggestion{{ID: "l1", TransactionID: "t2", EnvelopeID: "rent", Confidence: 0.8}},
	}
	store := &flakyStore{Store: memory.New(seed)}
	agg := newAggregator(store, now)

	feed, err := agg.Feed(context.Background(), "default")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed.Unavailable) != 0 {
		t.Errorf("unexpected unavailable sources %v", feed.Unavailable)
	}
	kinds := map[core.AlertKind]int{}
	for _, a := range feed.Alerts {
		kinds[a.Kind]++
	}
	want := map[core.AlertKind]int{
		core.AlertAllocation:     1,
		core.AlertTransfer:       1,
		core.AlertBankConnection: 2,
		core.AlertDuplicate:      1,
		core.AlertLinkSuggestion: 1,
	}
	for k, n := range want {
		if kinds[k] != n {
			t.Errorf("%s alerts: got %d, want %d", k, kinds[k], n)
		}
	}
	if feed.Alerts[0].Severity != core.SeverityHigh || feed.Alerts[len(feed.Alerts)-1].Kind != core.AlertLinkSuggestion {
		t.Errorf("feed not ordered by severity: %+v", feed.Alerts)
	}

	t.Run("failing source is reported, others still show", func(t *testing.T) {
		store.failConnections = true
		defer func() { store.failConnections = false }()
		feed, err := agg.Feed(context.Background(), "default")
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		if len(feed.Unavailable) != 1 || feed.Unavailable[0] != "bank_connections" {
			t.Errorf("unexpected unavailable %v", feed.Unavailable)
		}
		for _, a := range feed.Alerts {
			if a.Kind == core.AlertBankConnection {
				t.Errorf("bank alert from failing source: %+v", a)
			}
		}
		if len(feed.Alerts) != 4 {
			t.Errorf("expected 4 remaining alerts, got %d", len(feed.Alerts))
		}
	})
}

func newAggregator(store *flakyStore, now time.Time) *NotificationAggregator {
	ledger := newLedger(store)
	advisor := NewTransferAdvisor(store, store, store)
	dismissals := NewDismissals(store)
	dismissals.SetClock(func() time.Time { return now })
	agg := NewNotificationAggregator(ledger, advisor, store, store, store, dismissals)
	agg.SetClock(func() time.Time { return now })
	return agg
}

func TestFindDuplicates(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		name string
		a, b core.Transaction
		want bool
	}{
		{"near identical", core.Transaction{ID: "1", Date: day(1), Amount: core.Cents(-999), Description: "NETFLIX.COM"}, core.Transaction{ID: "2", Date: day(3), Amount: core.Cents(-999), Description: "Netflix.com"}, true},
		{"different amount", core.Transaction{ID: "1", Date: day(1), Amount: core.Cents(-999), Description: "NETFLIX.COM"}, core.Transaction{ID: "2", Date: day(1), Amount: core.Cents(-998), Description: "NETFLIX.COM"}, false},
		{"too far apart", core.Transaction{ID: "1", Date: day(1), Amount: core.Cents(-999), Description: "NETFLIX.COM"}, core.Transaction{ID: "2", Date: day(9), Amount: core.Cents(-999), Description: "NETFLIX.COM"}, false},
		{"seven days is close enough", core.Transaction{ID: "1", Date: day(1), Amount: core.Cents(-999), Description: "NETFLIX.COM"}, core.Transaction{ID: "2", Date: day(8), Amount: core.Cents(-999), Description: "NETFLIX.COM"}, true},
		{"different merchant", core.Transaction{ID: "1", Date: day(1), Amount: core.Cents(-999), Description: "NETFLIX.COM"}, core.Transaction{ID: "2", Date: day(1), Amount: core.Cents(-999), Description: "SPOTIFY AB"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(FindDuplicates([]core.Transaction{tt.a, tt.b})) == 1
			if got != tt.want {
				t.Errorf("duplicate = %v, want %v", got, tt.want)
			}
		})
	}
}
