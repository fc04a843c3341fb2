// Package config builds the runtime components the CLI commands share.
package config

import (
	"recon-core/internal/matcher"
	"recon-core/internal/recon"
	"recon-core/internal/store"
	"recon-core/pkg/logger"

	"github.com/shopspring/decimal"
)

// CreateStore opens the backing store. An empty path selects the in-memory
// store, anything else a SQLite database at that path.
func CreateStore(dbPath string) (store.Store, error) {
	if dbPath == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(dbPath)
}

// CreateMatcherConfig creates a matcher configuration with CLI overrides
func CreateMatcherConfig(suggestAmount float64, suggestDays int, strict bool) *matcher.Config {
	config := matcher.DefaultConfig()
	if strict {
		config = matcher.StrictConfig()
	}

	if suggestAmount > 0 {
		config.SuggestTolerance.Amount = decimal.NewFromFloat(suggestAmount)
	}
	if suggestDays > 0 {
		config.SuggestTolerance.DateDays = suggestDays
	}
	return config
}

// CreateService wires the reconciliation service over the given store
func CreateService(st store.Store, matcherConfig *matcher.Config) (*recon.Service, error) {
	return recon.NewService(st, matcherConfig, logger.GetGlobalLogger())
}
