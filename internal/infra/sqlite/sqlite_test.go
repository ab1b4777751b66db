package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestNewSQLiteCreatesDatabase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "outbox.db")
	db, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	defer sqlDB.Close()

	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestNewSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := NewSQLite("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDSNAppendsPragmas(t *testing.T) {
	t.Parallel()

	if got := dsn("outbox.db"); got != "outbox.db?"+pragmas {
		t.Fatalf("dsn() = %q", got)
	}
	if got := dsn("file:outbox.db?mode=rwc"); got != "file:outbox.db?mode=rwc&"+pragmas {
		t.Fatalf("dsn() = %q", got)
	}
}

func TestPingOrCloseClosesOnFailure(t *testing.T) {
	t.Parallel()

	db, err := gorm.Open(sqlite.Open(dsn(filepath.Join(t.TempDir(), "outbox.db"))), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := pingOrClose(ctx, sqlDB); err == nil {
		t.Fatal("expected ping error for canceled context")
	}
	if err := sqlDB.Ping(); err == nil || !strings.Contains(err.Error(), "database is closed") {
		t.Fatalf("Ping() after failure = %v, want closed database", err)
	}
}
