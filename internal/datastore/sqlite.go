package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/emotion-go/internal/errors"
)

// SQLiteStore journals to a local SQLite file. Path ":memory:" keeps the
// journal in memory.
type SQLiteStore struct {
	DataStore
	Path string
}

// Open creates the parent directory if needed, opens the file and migrates
// the schema.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return errors.Newf("sqlite journal path is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	dsn := store.Path
	if store.Path != ":memory:" {
		if dir := filepath.Dir(store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return dbError(err, "create_dir").Context("path", store.Path).Build()
			}
		}
		dsn = store.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), store.gormConfig())
	if err != nil {
		return dbError(err, "open").Context("driver", TypeSQLite).Build()
	}
	if store.Path == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return store.migrate(db, TypeSQLite)
}
