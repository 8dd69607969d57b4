package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"budgetflow/internal/config"
	"budgetflow/internal/core"
)

const seedJSON = `{
  "accounts": [{"id": "a1", "name": "Main"}],
  "envelopes": [{"id": "rent", "name": "Rent", "purpose": "spending_budget", "priority": "essential", "status": "active", "targetAmount": 800, "monthlyContribution": 800, "currentBalance": 0}],
  "incomeSources": [{"id": "s1", "name": "Salary", "reliability": "guaranteed", "monthlyAmounts": [1,1,1,1,1,1,1,1,1,1,1,1], "active": true}]
}`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seedJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		DataBackend:         "remote",
		RemoteAPIURL:        "https://api.example.com",
		RemoteAPITimeout:    3 * time.Second,
		IncomePlansSource:   config.IncomePlansSheets,
		GoogleSpreadsheetID: "sheet",
		CatalogCacheTTL:     time.Minute,
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != RemoteBackend || !cfg.IncomePlansFromSheets || cfg.RemoteAPITimeout != 3*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Type: MemoryBackend}, ""},
		{"sqlite without path", Config{Type: SQLiteBackend}, "SQLite database path is required"},
		{"remote without URL", Config{Type: RemoteBackend}, "remote API URL is required"},
		{"sheets without id", Config{Type: MemoryBackend, IncomePlansFromSheets: true}, "Spreadsheet ID is required"},
		{"negative ttl", Config{Type: MemoryBackend, CatalogCacheTTL: -1}, "must not be negative"},
		{"unknown", Config{Type: "csv"}, "invalid backend type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Type:            MemoryBackend,
		SeedFile:        writeSeed(t),
		CatalogCacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()

	if res.AMQP != nil {
		t.Error("expected no AMQP client without URL")
	}
	if err := res.Ready(context.Background()); err != nil {
		t.Errorf("Ready() error = %v", err)
	}
	envs, err := res.Catalog.ListEnvelopes(context.Background())
	if err != nil || len(envs) != 1 || envs[0].MonthlyContribution != core.Cents(80000) {
		t.Errorf("ListEnvelopes() = %+v, %v", envs, err)
	}
	if err := res.KV.Put(context.Background(), "k", "v"); err != nil {
		t.Errorf("KV.Put() error = %v", err)
	}
}

func TestCreateBackend_SQLiteImportsSeed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "budgetflow.db")
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: dbPath,
		SeedFile:     writeSeed(t),
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()

	if err := res.Ready(context.Background()); err != nil {
		t.Errorf("Ready() error = %v", err)
	}
	accts, err := res.Catalog.ListAccounts(context.Background())
	if err != nil || len(accts) != 1 || accts[0].Name != "Main" {
		t.Errorf("ListAccounts() = %+v, %v", accts, err)
	}
	sources, err := res.Catalog.ListIncomeSources(context.Background())
	if err != nil || len(sources) != 1 || sources[0].Amounts[2] != core.Cents(100) {
		t.Errorf("ListIncomeSources() = %+v, %v", sources, err)
	}
}

func TestCreateBackend_RemoteUsesLocalState(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Type:             RemoteBackend,
		RemoteAPIURL:     "http://127.0.0.1:1",
		RemoteAPITimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()

	if err := res.Ready(context.Background()); err != nil {
		t.Errorf("closed breaker should be ready, got %v", err)
	}
	if err := res.KV.Put(context.Background(), "dismissal:x", "y"); err != nil {
		t.Errorf("KV.Put() error = %v", err)
	}
}
