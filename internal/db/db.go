// internal/db/db.go
package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func Init(dbURL string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to DB: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	Migrations(conn)

	logrus.Info("✅ Connected to database")
	return conn, nil
}

func Migrations(conn *sqlx.DB) {
	driver, err := postgres.WithInstance(conn.DB, &postgres.Config{})
	if err != nil {
		logrus.Fatalf("MIGRATIONS: failed to create postgres driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://internal/db/migrations",
		"postgres",
		driver,
	)
	if err != nil {
		logrus.Fatalf("MIGRATIONS: failed to initialize migrator: %v", err)
	}
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logrus.Fatalf("MIGRATIONS: failed to apply migrations: %v", err)
	}
	logrus.Info("MIGRATIONS: database is up to date")
}
