package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/config"
)

// NewDatabaseFromConfig opens the catalog described by cfg. A sqlite
// catalog lives at <data_dir>/<archiveID>.db.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, archiveID string) (aupat.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if archiveID == "" {
			return nil, fmt.Errorf("archive id required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return openSQLite(CatalogPath(cfg, archiveID))
	case "memory":
		return openSQLite(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func openSQLite(path string) (aupat.Database, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// CatalogPath returns the catalog file of a sqlite configuration.
func CatalogPath(cfg config.DatabaseConfig, archiveID string) string {
	return filepath.Join(cfg.DataDir, archiveID+".db")
}
