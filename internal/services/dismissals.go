package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budgetflow/internal/catalog"
)

const (
	dismissalPrefix = "dismissal:"
	// DismissalTTL is how long a dismissed alert stays hidden.
	DismissalTTL = 7 * 24 * time.Hour
)

// Dismissals records which alerts a client has hidden and when.
type Dismissals struct {
	store catalog.KeyValueStore
	now   func() time.Time
}

func NewDismissals(store catalog.KeyValueStore) *Dismissals {
	return &Dismissals{store: store, now: time.Now}
}

// SetClock replaces the time source; tests use it to age entries.
func (d *Dismissals) SetClock(now func() time.Time) { d.now = now }

func (d *Dismissals) Dismiss(ctx context.Context, clientID, alertID string) error {
	if strings.TrimSpace(alertID) == "" {
		return fmt.Errorf("dismiss: empty alert id")
	}
	return d.store.Put(ctx, dismissalKey(clientID, alertID), d.now().UTC().Format(time.RFC3339))
}

// Active returns the alert ids the client dismissed within the last week.
// Older entries are deleted as they are found.
func (d *Dismissals) Active(ctx context.Context, clientID string) (map[string]bool, error) {
	prefix := clientPrefix(clientID)
	keys, err := d.store.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list dismissals: %w", err)
	}
	now := d.now()
	active := make(map[string]bool, len(keys))
	for _, key := range keys {
		value, ok, err := d.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read dismissal %s: %w", key, err)
		}
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339, value)
		if err != nil || now.Sub(at) > DismissalTTL {
			if err := d.store.Delete(ctx, key); err != nil {
				slog.WarnContext(ctx, "Failed to purge dismissal", "key", key, "error", err)
			}
			continue
		}
		active[strings.TrimPrefix(key, prefix)] = true
	}
	return active, nil
}

func clientPrefix(clientID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "default"
	}
	return dismissalPrefix + strings.ReplaceAll(clientID, ":", "_") + ":"
}

func dismissalKey(clientID, alertID string) string {
	return clientPrefix(clientID) + alertID
}
