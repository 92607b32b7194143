package database

import (
	"fmt"
	"os"
	"path/filepath"

	"dca-go/internal/config"
)

// LedgerFile is the database file name inside the runtime data directory.
const LedgerFile = "ledger.db"

// NewDatabaseFromConfig opens the runtime database selected by cfg.Type.
func NewDatabaseFromConfig(cfg config.RuntimeConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite runtime")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, LedgerFile))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown runtime type: %s", cfg.Type)
	}
}
