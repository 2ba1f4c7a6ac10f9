// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/logoforge/internal/migration"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresDSNEnv names a postgres database used by the concurrency tests in
// addition to sqlite. Each test gets its own schema.
const PostgresDSNEnv = "LOGOFORGE_TEST_POSTGRES_DSN"

// ConcurrentConns is the pool size of databases returned for concurrency tests.
const ConcurrentConns = 8

var dbSeq atomic.Int64

// OpenDB returns an isolated in-memory sqlite database with the full schema.
// A single connection is used, so code under test must run statements of a
// transaction on the transaction handle only.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// OpenConcurrentDB returns a file-backed sqlite database whose pool holds
// several connections, so transactions from different goroutines really
// overlap. Writers wait on each other through busy_timeout; a transaction that
// reads a row and writes it back later fails with a busy error instead of
// being serialized by the pool.
func OpenConcurrentDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(ConcurrentConns)
	sqlDB.SetMaxIdleConns(ConcurrentConns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// OpenPostgresDB connects to the database named by PostgresDSNEnv and isolates
// the test in a fresh schema. The test is skipped when the variable is unset.
func OpenPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()

	base := strings.TrimSpace(os.Getenv(PostgresDSNEnv))
	if base == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}

	schema := fmt.Sprintf("test_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))
	admin, err := gorm.Open(postgres.Open(base), gormConfig())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	adminSQL, err := admin.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = adminSQL.Close()
	})

	db, err := gorm.Open(postgres.Open(withSearchPath(base, schema)), gormConfig())
	if err != nil {
		t.Fatalf("open postgres schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(ConcurrentConns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ConcurrentBackends lists the databases a concurrency test should run
// against. Postgres is included only when PostgresDSNEnv is set.
func ConcurrentBackends() map[string]func(testing.TB) *gorm.DB {
	backends := map[string]func(testing.TB) *gorm.DB{
		"sqlite": OpenConcurrentDB,
	}
	if strings.TrimSpace(os.Getenv(PostgresDSNEnv)) != "" {
		backends["postgres"] = OpenPostgresDB
	}
	return backends
}

func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Count runs a COUNT(*) style query and returns the single result.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return count
}
