// Package dbtest opens a migrated SQLite database for tests.
package dbtest

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"appcatalog/db"
	"appcatalog/models"
)

func New(t testing.TB) *gorm.DB {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	conn, err := db.Open(filepath.Join(t.TempDir(), "catalog_test.db"), log)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// Quiet returns a logger that discards output.
func Quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Mock returns a gorm handle backed by sqlmock through the postgres dialect.
func Mock(t testing.TB) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatalf("open gorm over sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn, mock
}
