package datastore

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
)

// MySQLStore journals to a shared MySQL database.
type MySQLStore struct {
	DataStore
	DSN string
}

// Open connects and migrates the schema.
func (store *MySQLStore) Open() error {
	if store.DSN == "" {
		return errors.Newf("mysql journal dsn is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(mysql.Open(store.DSN), store.gormConfig())
	if err != nil {
		store.Log.Error("failed to open MySQL journal", logger.Error(err))
		return dbError(err, "open").Context("driver", TypeMySQL).Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "pool").Build()
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return store.migrate(db, TypeMySQL)
}
