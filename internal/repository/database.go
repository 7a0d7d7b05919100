// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/ranked-matchmaking/internal/config"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

// slowQueryThreshold marks statements worth a warning in the server log.
const slowQueryThreshold = 200 * time.Millisecond

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB connects to PostgreSQL and sizes the pool from config.
func NewDB(cfg *config.PostgresConfig, log *logger.Logger) (*DB, error) {
	dbLog := log.Component("gorm")
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.New(gormWriter{log: dbLog}, gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormLogLevel(dbLog.Level()),
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		}),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	wrapped := &DB{db}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrapped.Health(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("Connected to PostgreSQL")

	return wrapped, nil
}

// gormLogLevel traces every statement only when the server runs at debug.
func gormLogLevel(level zerolog.Level) gormlogger.LogLevel {
	switch {
	case level == zerolog.Disabled:
		return gormlogger.Silent
	case level <= zerolog.DebugLevel:
		return gormlogger.Info
	case level >= zerolog.ErrorLevel:
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}

// gormWriter feeds gorm's formatted lines into zerolog. Statement traces only
// reach it at debug, so anything else is a slow query or an error.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	event := w.log.Warn()
	if w.log.Level() <= zerolog.DebugLevel {
		event = w.log.Debug()
	}
	event.Msg(fmt.Sprintf(format, args...))
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health pings the pool within the caller's deadline.
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
