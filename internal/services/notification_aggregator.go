package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
)

// A connection that has not synced for this long is flagged as stale.
const staleSyncAfter = 72 * time.Hour

// NotificationFeed is the ranked alert list for one client. Unavailable names
// the sources that could not be read; their alerts are missing from the feed.
type NotificationFeed struct {
	Alerts      []core.Alert `json:"alerts"`
	Unavailable []string     `json:"unavailable,omitempty"`
}

type alertSource struct {
	name    string
	collect func(ctx context.Context, month core.YearMonth) ([]core.Alert, error)
}

// NotificationAggregator merges advisory findings into one ranked feed.
type NotificationAggregator struct {
	ledger       *AllocationLedger
	advisor      *TransferAdvisor
	connections  catalog.BankConnectionReader
	suggestions  catalog.LinkSuggestionReader
	transactions catalog.TransactionReader
	dismissals   *Dismissals
	now          func() time.Time
}

func NewNotificationAggregator(ledger *AllocationLedger, advisor *TransferAdvisor,
	connections catalog.BankConnectionReader, suggestions catalog.LinkSuggestionReader,
	transactions catalog.TransactionReader, dismissals *Dismissals) *NotificationAggregator {
	return &NotificationAggregator{
		ledger:       ledger,
		advisor:      advisor,
		connections:  connections,
		suggestions:  suggestions,
		transactions: transactions,
		dismissals:   dismissals,
		now:          time.Now,
	}
}

func (n *NotificationAggregator) SetClock(now func() time.Time) { n.now = now }

// Feed collects every source for the current month and builds the client's feed.
// A failing source is logged and reported in Unavailable; the others still show.
func (n *NotificationAggregator) Feed(ctx context.Context, clientID string) (NotificationFeed, error) {
	month := core.YearMonthOf(n.now())
	sources := []alertSource{
		{"allocation", n.allocationAlerts},
		{"transfer", n.transferAlerts},
		{"bank_connections", n.connectionAlerts},
		{"duplicates", n.duplicateAlerts},
		{"link_suggestions", n.linkSuggestionAlerts},
	}

	lists := make([][]core.Alert, len(sources))
	var (
		mu          sync.Mutex
		unavailable []string
	)
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			alerts, err := src.collect(ctx, month)
			if err != nil {
				slog.WarnContext(ctx, "Notification source unavailable", "source", src.name, "error", err)
				mu.Lock()
				unavailable = append(unavailable, src.name)
				mu.Unlock()
				return nil
			}
			lists[i] = alerts
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(unavailable)

	alerts, err := n.Build(ctx, clientID, lists...)
	if err != nil {
		return NotificationFeed{}, err
	}
	return NotificationFeed{Alerts: alerts, Unavailable: unavailable}, nil
}

// Build merges alert lists, drops what the client dismissed in the last week
// and orders the rest by severity, keeping source order within a severity.
func (n *NotificationAggregator) Build(ctx context.Context, clientID string, lists ...[]core.Alert) ([]core.Alert, error) {
	dismissed, err := n.dismissals.Active(ctx, clientID)
	if err != nil {
		return nil, core.Unavailable("load dismissals", err)
	}
	out := []core.Alert{}
	for _, list := range lists {
		for _, a := range list {
			if a.Dismissible && dismissed[a.ID] {
				continue
			}
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out, nil
}

func (n *NotificationAggregator) Dismiss(ctx context.Context, clientID, alertID string) error {
	return n.dismissals.Dismiss(ctx, clientID, alertID)
}

func (n *NotificationAggregator) allocationAlerts(ctx context.Context, month core.YearMonth) ([]core.Alert, error) {
	state, err := n.ledger.GetAllocationState(ctx, month)
	if err != nil {
		return nil, err
	}
	return allocationAlerts(state, n.now()), nil
}

func (n *NotificationAggregator) transferAlerts(ctx context.Context, month core.YearMonth) ([]core.Alert, error) {
	report, err := n.advisor.ComputeTransferSuggestions(ctx, month)
	if err != nil {
		return nil, err
	}
	return transferAlerts(report, n.now()), nil
}

func (n *NotificationAggregator) connectionAlerts(ctx context.Context, _ core.YearMonth) ([]core.Alert, error) {
	conns, err := n.connections.ListBankConnections(ctx)
	if err != nil {
		return nil, err
	}
	return connectionAlerts(conns, n.now()), nil
}

func (n *NotificationAggregator) duplicateAlerts(ctx context.Context, month core.YearMonth) ([]core.Alert, error) {
	txs, err := n.transactions.ListTransactions(ctx, month)
	if err != nil {
		return nil, err
	}
	return duplicateAlerts(FindDuplicates(txs), n.now()), nil
}

func (n *NotificationAggregator) linkSuggestionAlerts(ctx context.Context, _ core.YearMonth) ([]core.Alert, error) {
	suggestions, err := n.suggestions.ListPendingLinkSuggestions(ctx)
	if err != nil {
		return nil, err
	}
	return linkSuggestionAlerts(suggestions), nil
}

func allocationAlerts(state core.AllocationState, now time.Time) []core.Alert {
	if state.Complete {
		return nil
	}
	month := state.Month.String()
	if state.Remainder.IsNegative() {
		return []core.Alert{{
			ID:          "allocation:" + month + ":over",
			Kind:        core.AlertAllocation,
			Severity:    core.SeverityHigh,
			Title:       "Envelopes are over-assigned",
			Message:     fmt.Sprintf("You assigned %s more than your %s income for %s.", state.Remainder.Abs(), state.Income, month),
			CreatedAt:   now,
			Dismissible: true,
		}}
	}
	return []core.Alert{{
		ID:          "allocation:" + month + ":under",
		Kind:        core.AlertAllocation,
		Severity:    core.SeverityMedium,
		Title:       "Income to assign",
		Message:     fmt.Sprintf("%s of %s income is not assigned to any envelope yet.", state.Remainder, month),
		CreatedAt:   now,
		Dismissible: true,
	}}
}

func transferAlerts(report core.TransferReport, now time.Time) []core.Alert {
	var out []core.Alert
	for _, s := range report.Suggestions {
		if s.Status != core.TransferInsufficient {
			continue
		}
		out = append(out, core.Alert{
			ID:          "transfer:" + report.Month.String() + ":" + s.AccountID,
			Kind:        core.AlertTransfer,
			Severity:    core.SeverityHigh,
			Title:       "Not enough income in " + s.AccountName,
			Message:     fmt.Sprintf("Obligations exceed this month's income in %s by %s.", s.AccountName, s.Surplus.Abs()),
			CreatedAt:   now,
			Dismissible: true,
		})
	}
	return out
}

func connectionAlerts(conns []core.BankConnection, now time.Time) []core.Alert {
	var out []core.Alert
	for _, c := range conns {
		switch {
		case c.Status == core.ConnectionExpired || c.Status == core.ConnectionError:
			out = append(out, core.Alert{
				ID:          "bank:" + c.ID + ":" + string(c.Status),
				Kind:        core.AlertBankConnection,
				Severity:    core.SeverityHigh,
				Title:       c.Institution + " needs attention",
				Message:     fmt.Sprintf("The connection to %s is %s. Reconnect it to keep transactions flowing.", c.Institution, c.Status),
				CreatedAt:   now,
				Dismissible: true,
			})
		case c.LastSyncedAt.IsZero() || now.Sub(c.LastSyncedAt) > staleSyncAfter:
			out = append(out, core.Alert{
				ID:          "bank:" + c.ID + ":stale",
				Kind:        core.AlertBankConnection,
				Severity:    core.SeverityMedium,
				Title:       c.Institution + " has not synced recently",
				Message:     fmt.Sprintf("No transactions were imported from %s in the last 72 hours.", c.Institution),
				CreatedAt:   now,
				Dismissible: true,
			})
		}
	}
	return out
}

func duplicateAlerts(pairs []DuplicatePair, now time.Time) []core.Alert {
	out := make([]core.Alert, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, core.Alert{
			ID:       "duplicate:" + p.First.ID + ":" + p.Second.ID,
			Kind:     core.AlertDuplicate,
			Severity: core.SeverityMedium,
			Title:    "Possible duplicate transaction",
			Message: fmt.Sprintf("%q on %s and %q on %s both moved %s.",
				p.First.Description, p.First.Date.Format(time.DateOnly),
				p.Second.Description, p.Second.Date.Format(time.DateOnly), p.First.Amount),
			CreatedAt:   now,
			Dismissible: true,
		})
	}
	return out
}

func linkSuggestionAlerts(suggestions []core.LinkSuggestion) []core.Alert {
	out := make([]core.Alert, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, core.Alert{
			ID:        "link:" + s.ID,
			Kind:      core.AlertLinkSuggestion,
			Severity:  core.SeverityLow,
			Title:     "Link suggestion",
			Message:   fmt.Sprintf("Transaction %s looks like it belongs to envelope %s (%.0f%% confidence).", s.TransactionID, s.EnvelopeID, s.Confidence*100),
			CreatedAt: s.CreatedAt,
		})
	}
	return out
}
