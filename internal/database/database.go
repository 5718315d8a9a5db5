// Package database opens the GORM store: external PostgreSQL, an embedded
// PostgreSQL for zero-config local runs, or a sqlite file.
package database

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps gorm.DB and the embedded postgres process when one was started
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
	logger   *logrus.Logger
}

// Connect opens the database named by cfg.Driver
func Connect(cfg config.DatabaseConfig, log *logrus.Logger) (*DB, error) {
	switch cfg.Driver {
	case "sqlite":
		log.WithField("path", cfg.Path).Info("opening sqlite database")
		return OpenSQLite(cfg.Path)
	case "", "postgres":
		return connectPostgres(cfg, log)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func connectPostgres(cfg config.DatabaseConfig, log *logrus.Logger) (*DB, error) {
	db := &DB{logger: log}
	port, password := cfg.Port, cfg.Password

	if cfg.Embedded() {
		pg, err := startEmbedded(cfg, log)
		if err != nil {
			return nil, err
		}
		db.embedded = pg
		port, password = strconv.Itoa(embeddedPort), embeddedPassword
	}

	fields := logrus.Fields{
		"host":     cfg.Host,
		"port":     port,
		"database": cfg.Database,
		"embedded": db.embedded != nil,
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, port, cfg.Username, password, cfg.Database)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  gormLogger(log, cfg.LogSQL),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		db.stopEmbedded()
		return nil, fmt.Errorf("connect postgres %s:%s: %w", cfg.Host, port, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		db.stopEmbedded()
		return nil, fmt.Errorf("access postgres pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db.DB = gdb
	log.WithFields(fields).Info("database connection established")
	return db, nil
}

// gormLogger routes SQL logging through logrus: warnings and slow queries
// only, every statement when logSQL is set
func gormLogger(log *logrus.Logger, logSQL bool) logger.Interface {
	level := logger.Warn
	if logSQL {
		level = logger.Info
	}
	return logger.New(log, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// Close closes the pool, then stops the embedded process if any
func (db *DB) Close() error {
	var errs []error
	if sqlDB, err := db.DB.DB(); err != nil {
		errs = append(errs, err)
	} else if err := sqlDB.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := db.stopEmbedded(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *DB) stopEmbedded() error {
	if db.embedded == nil {
		return nil
	}
	if db.logger != nil {
		db.logger.Info("stopping embedded postgres")
	}
	err := db.embedded.Stop()
	db.embedded = nil
	return err
}

// Migrate synchronizes every table owned by the service
func (db *DB) Migrate() error {
	return db.DB.AutoMigrate(models.AllModels()...)
}
