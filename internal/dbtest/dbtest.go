// Package dbtest opens isolated in-memory sqlite databases carrying the
// marketpay schema.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	)`,
	`CREATE TABLE shops (
		id INTEGER PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'suspended',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	payableTable("subscriptions", "plan TEXT NOT NULL DEFAULT ''"),
	payableTable("banners", "title TEXT NOT NULL DEFAULT '', target_url TEXT NOT NULL DEFAULT ''"),
	payableTable("orders", "cart_reference TEXT NOT NULL DEFAULT ''"),
	`CREATE TABLE payment_ledger (
		id INTEGER PRIMARY KEY,
		gateway_payment_id TEXT NOT NULL UNIQUE,
		resource_kind TEXT NOT NULL,
		resource_id INTEGER NOT NULL,
		gateway_status TEXT NOT NULL,
		outcome TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE TABLE cascade_jobs (
		id INTEGER PRIMARY KEY,
		resource_kind TEXT NOT NULL,
		resource_id INTEGER NOT NULL,
		owner_id INTEGER NOT NULL,
		effect TEXT NOT NULL,
		template TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		failed_targets TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME,
		started_at DATETIME,
		completed_at DATETIME
	)`,
}

func payableTable(name, columns string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		%s,
		state TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		gateway_preference_id TEXT,
		gateway_payment_id TEXT,
		checkout_url TEXT,
		payment_attempts INTEGER NOT NULL DEFAULT 0,
		activated_at DATETIME,
		failed_at DATETIME,
		cancelled_at DATETIME,
		expires_at DATETIME,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`, name, columns)
}

// Open returns a fresh database private to the test. The pool is pinned to a
// single connection so concurrent callers serialize like row locks would.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:marketpay_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake generator for fixtures.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func SeedUser(t testing.TB, db *gorm.DB, id snowflake.ID, email string) {
	t.Helper()
	if err := db.Exec(`INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)`,
		id, email, "", time.Now().UTC()).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func SeedShop(t testing.TB, db *gorm.DB, id, ownerID snowflake.ID, status string) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(`INSERT INTO shops (id, owner_id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, ownerID, "shop-"+id.String(), status, now, now).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
}
