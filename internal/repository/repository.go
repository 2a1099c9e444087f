// Package repository provides the database bootstrap: connection with
// retries and schema migrations for the result cache table.
package repository

import (
	"database/sql"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
)

// ConnectWithRetries returns a live DB connection or kills the process.
// A missing database means no durable meme cache, which the caller
// treats as fatal at startup.
func ConnectWithRetries(appConfig *config.Config, retryCount int, idleTime time.Duration) *dbpg.DB {
	dbOptions := dbpg.Options{
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: 10 * time.Minute,
	}
	dsn := appConfig.GetString("POSTGRES_DSN")

	var dbConn *dbpg.DB
	var err error
	for range retryCount {
		dbConn, err = dbpg.New(dsn, nil, &dbOptions)
		if err == nil {
			return dbConn
		}
		zlog.Logger.Warn().Err(err).Dur("retry_in", idleTime).Msg("Failed to connect to Postgres")
		time.Sleep(idleTime)
	}

	zlog.Logger.Fatal().Err(err).Msg("Failed to connect to DB. Exiting the app...")
	return nil
}

func MigrateWithRetries(db *sql.DB, migrationsPath string, retries int, idle time.Duration) {
	var err error
	for i := range retries {
		zlog.Logger.Info().Int("try", i+1).Msg("Running migrations...")
		if err = runMigrate(db, migrationsPath); err == nil {
			zlog.Logger.Info().Msg("Database migrations applied")
			return
		}
		zlog.Logger.Warn().Err(err).Dur("retry_in", idle).Msg("Migration attempt failed")
		time.Sleep(idle)
	}

	zlog.Logger.Fatal().Err(err).Msg("Out of migration retries. Exiting...")
}

func runMigrate(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+absPath, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
