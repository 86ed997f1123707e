package db

import (
	"fmt"
	stdlog "log"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/innerjoy/funnel/internal/models"
)

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Option tweaks how Open configures gorm.
type Option func(*gorm.Config)

// WithLogger replaces the zerolog-backed SQL logger.
func WithLogger(l gormlogger.Interface) Option {
	return func(c *gorm.Config) { c.Logger = l }
}

// Silent turns SQL logging off. Tests use it.
func Silent() Option {
	return WithLogger(gormlogger.Default.LogMode(gormlogger.Silent))
}

// Open connects to the SQLite file at path, migrates the schema and adds the
// composite indexes the dispatcher and cancellation queries rely on.
func Open(path string, opts ...Option) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormLogger()}
	for _, o := range opts {
		o(cfg)
	}
	conn, err := gorm.Open(sqlite.Open(path+dsnParams), cfg)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}

	// SQLite works best with a single writer; cap the pool accordingly.
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("database ready (sqlite)")
	return conn, nil
}

// Migrate creates or updates tables and indexes on conn.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Contact{},
		&models.ScheduledMessage{},
		&models.MessageLog{},
	); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}

	// Composite indexes that GORM doesn't auto-create from struct tags.
	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_sched_status_at ON scheduled_messages(status, scheduled_at)",
		"CREATE INDEX IF NOT EXISTS idx_sched_contact   ON scheduled_messages(contact_key, status)",
	} {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("db: index: %w", err)
		}
	}
	return nil
}

func gormLogger() gormlogger.Interface {
	level := gormlogger.Warn
	switch zerolog.GlobalLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		level = gormlogger.Info
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		level = gormlogger.Error
	case zerolog.Disabled:
		level = gormlogger.Silent
	}
	return gormlogger.New(
		stdlog.New(log.Logger, "", 0),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}
