// Package datastore keeps the local journal of analysis sessions in SQLite
// or MySQL through GORM.
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
)

const (
	TypeSQLite = "sqlite"
	TypeMySQL  = "mysql"

	slowQueryThreshold = 200 * time.Millisecond
)

// Interface is the session journal.
type Interface interface {
	Open() error
	Close() error
	// Begin inserts a new open record.
	Begin(rec *SessionRecord) error
	// BindServerID stores the server id once it is known.
	BindServerID(localID, serverID string) error
	// RecordAnomaly increments the protocol anomaly counter.
	RecordAnomaly(localID string) error
	// Finish closes the record with reason and final stats.
	Finish(localID string, endedAt time.Time, reason string, stats *SessionStats) error
	// CloseOpen closes every still-open record and returns how many changed.
	CloseOpen(reason string, at time.Time) (int64, error)
	// List returns the newest records first. limit <= 0 means all.
	List(limit int) ([]SessionRecord, error)
	// Get returns the record for localID.
	Get(localID string) (*SessionRecord, error)
}

// DataStore implements Interface on top of an open *gorm.DB. The driver
// specific stores embed it and only differ in Open.
type DataStore struct {
	DB  *gorm.DB
	Log logger.Logger
}

// New returns the store selected by settings. It returns (nil, nil) when the
// journal is disabled.
func New(settings *conf.JournalSettings, log logger.Logger) (Interface, error) {
	if settings == nil || !settings.Enabled {
		return nil, nil
	}
	log = log.Module("datastore")
	switch settings.Type {
	case TypeSQLite, "":
		return &SQLiteStore{DataStore: DataStore{Log: log}, Path: settings.Path}, nil
	case TypeMySQL:
		return &MySQLStore{DataStore: DataStore{Log: log}, DSN: settings.DSN}, nil
	default:
		return nil, errors.Newf("unsupported journal type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func (ds *DataStore) gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.NewGormLoggerAdapter(ds.Log, slowQueryThreshold)}
}

func (ds *DataStore) migrate(db *gorm.DB, driver string) error {
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return dbError(err, "auto_migrate").Context("driver", driver).Build()
	}
	ds.DB = db
	return nil
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("journal connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

func dbError(err error, op string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op)
}

func (ds *DataStore) Begin(rec *SessionRecord) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if err := ds.DB.Create(rec).Error; err != nil {
		return dbError(err, "begin").Context("local_id", rec.LocalID).Build()
	}
	return nil
}

func (ds *DataStore) BindServerID(localID, serverID string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	// first binding wins, matching the session manager
	res := ds.DB.Model(&SessionRecord{}).
		Where("local_id = ? AND (server_id = '' OR server_id IS NULL)", localID).
		Update("server_id", serverID)
	if res.Error != nil {
		return dbError(res.Error, "bind_server_id").Context("local_id", localID).Build()
	}
	return nil
}

func (ds *DataStore) RecordAnomaly(localID string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	res := ds.DB.Model(&SessionRecord{}).
		Where("local_id = ?", localID).
		Update("anomalies", gorm.Expr("anomalies + ?", 1))
	if res.Error != nil {
		return dbError(res.Error, "record_anomaly").Context("local_id", localID).Build()
	}
	return nil
}

func (ds *DataStore) Finish(localID string, endedAt time.Time, reason string, stats *SessionStats) error {
	if err := ds.ready(); err != nil {
		return err
	}
	updates := map[string]any{
		"ended_at":   endedAt,
		"end_reason": reason,
	}
	if stats != nil {
		updates["total_analyses"] = stats.TotalAnalyses
		updates["successful_detections"] = stats.SuccessfulDetections
		updates["failed_detections"] = stats.FailedDetections
		updates["detection_rate"] = stats.DetectionRate
		updates["avg_processing_time_ms"] = stats.AvgProcessingTimeMs
		updates["avg_fps"] = stats.AvgFPS
		updates["cache_hit_rate"] = stats.CacheHitRate
	}
	res := ds.DB.Model(&SessionRecord{}).
		Where("local_id = ? AND ended_at IS NULL", localID).
		Updates(updates)
	if res.Error != nil {
		return dbError(res.Error, "finish").Context("local_id", localID).Build()
	}
	return nil
}

func (ds *DataStore) CloseOpen(reason string, at time.Time) (int64, error) {
	if err := ds.ready(); err != nil {
		return 0, err
	}
	res := ds.DB.Model(&SessionRecord{}).
		Where("ended_at IS NULL").
		Updates(map[string]any{"ended_at": at, "end_reason": reason})
	if res.Error != nil {
		return 0, dbError(res.Error, "close_open").Build()
	}
	if res.RowsAffected > 0 {
		ds.Log.Info("closed dangling journal records",
			logger.Int64("count", res.RowsAffected),
			logger.String("reason", reason))
	}
	return res.RowsAffected, nil
}

func (ds *DataStore) List(limit int) ([]SessionRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var records []SessionRecord
	q := ds.DB.Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, dbError(err, "list").Build()
	}
	return records, nil
}

func (ds *DataStore) Get(localID string) (*SessionRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var rec SessionRecord
	if err := ds.DB.Where("local_id = ?", localID).First(&rec).Error; err != nil {
		return nil, dbError(err, "get").Context("local_id", localID).Build()
	}
	return &rec, nil
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close").Build()
	}
	return sqlDB.Close()
}
