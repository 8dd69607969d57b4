package backend

import (
	"fmt"

	"budgetflow/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:     backendType,
		SeedFile: appConfig.SeedFile,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		RemoteAPIURL:     appConfig.RemoteAPIURL,
		RemoteAPIToken:   appConfig.RemoteAPIToken,
		RemoteAPITimeout: appConfig.RemoteAPITimeout,

		IncomePlansFromSheets: appConfig.IncomePlansSource == config.IncomePlansSheets,
		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleIncomeSheetName: appConfig.GoogleIncomeSheetName,

		CatalogCacheTTL: appConfig.CatalogCacheTTL,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case RemoteBackend:
		if c.RemoteAPIURL == "" {
			return fmt.Errorf("remote API URL is required for remote backend")
		}
	case MemoryBackend:
		// Seed file is optional; an empty store is valid.
	}

	if c.IncomePlansFromSheets && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required when income plans come from sheets")
	}
	if c.CatalogCacheTTL < 0 {
		return fmt.Errorf("catalog cache TTL must not be negative")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, RemoteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
