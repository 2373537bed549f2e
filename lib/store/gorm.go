package store

import (
	"errors"
	"fmt"
	"github.com/cyclopcam/connect/lib/registry"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite3"
)

const lastUsedName = "lastUsed"

type deviceRow struct {
	ID            string `gorm:"primaryKey"`
	LanIP         string
	Name          string
	BearerToken   string
	SessionCookie string
	CreatedAt     int64 `gorm:"autoCreateTime:nano"`
}

type preferenceRow struct {
	Name  string `gorm:"primaryKey"`
	Value string
}

// gormWriter sends gorm's own log output to our logger.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// OpenGorm opens a database with the postgres or sqlite3 driver.
// For sqlite3 the dsn is a filename, or ":memory:".
func OpenGorm(driver string, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSqlite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	config := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger: logger.New(gormWriter{}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
	return gorm.Open(dialector, config)
}

// Gorm stores records in an SQL database.
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates the tables if needed. The store owns db from then on.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&deviceRow{}, &preferenceRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (s *Gorm) Load() (records []registry.Record, lastUsed string, err error) {
	var rows []deviceRow
	if err = s.db.Order("created_at, id").Find(&rows).Error; err != nil {
		return
	}
	for _, row := range rows {
		records = append(records, registry.Record{
			ID:            row.ID,
			LanIP:         row.LanIP,
			Name:          row.Name,
			BearerToken:   row.BearerToken,
			SessionCookie: row.SessionCookie,
			State:         registry.StateUnmodified,
		})
	}
	var pref preferenceRow
	err = s.db.Where("name = ?", lastUsedName).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
	}
	lastUsed = pref.Value
	return
}

// Apply runs all ops in one transaction. Inserts and updates are upserts
// that leave the creation time alone.
func (s *Gorm) Apply(ops []registry.Op) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			var err error
			switch op.Kind {
			case registry.OpInsert, registry.OpUpdate:
				row := deviceRow{
					ID:            op.Record.ID,
					LanIP:         op.Record.LanIP,
					Name:          op.Record.Name,
					BearerToken:   op.Record.BearerToken,
					SessionCookie: op.Record.SessionCookie,
				}
				err = tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "id"}},
					DoUpdates: clause.AssignmentColumns([]string{"lan_ip", "name", "bearer_token", "session_cookie"}),
				}).Create(&row).Error
			case registry.OpDelete:
				err = tx.Delete(&deviceRow{}, "id = ?", op.Record.ID).Error
			default:
				err = fmt.Errorf("unknown op %v", op.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Gorm) SetLastUsed(id string) error {
	if id == "" {
		return s.db.Delete(&preferenceRow{}, "name = ?", lastUsedName).Error
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&preferenceRow{Name: lastUsedName, Value: id}).Error
}

func (s *Gorm) Clear() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&deviceRow{}).Error; err != nil {
			return err
		}
		return all.Delete(&preferenceRow{}).Error
	})
}

func (s *Gorm) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
