// Package sqlite provides SQLite implementation of repository interfaces
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"streamingplus/internal/domain"
	"streamingplus/internal/repository"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB holding banners, purchases and their bookkeeping
type DB struct {
	*sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath
func New(dbPath string) (*DB, error) {
	cleanPath := filepath.Clean(dbPath)
	if !filepath.IsLocal(cleanPath) && !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("invalid database path: potential path traversal detected")
	}

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL keeps storefront reads flowing while the admin writes
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", cleanPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeErr("open database", err)
	}

	// One connection serializes writers, so counters and inserts never race
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storeErr("connect to database", err)
	}

	return &DB{db}, nil
}

// NewRepositories wires every SQLite repository onto db
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Banners:      NewBannerRepo(db),
		Purchases:    NewPurchaseRepo(db),
		Transactions: NewTransactionRepo(db),
		Stats:        NewStatsRepo(db),
		Settings:     NewSettingsRepo(db),
	}
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS banners (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '0',
			stream_url TEXT NOT NULL DEFAULT '',
			embed_code TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL,
			expiration_date TEXT NOT NULL,
			active BOOLEAN DEFAULT 1,
			pix_key TEXT NOT NULL DEFAULT '',
			view_count INTEGER DEFAULT 0,
			thumbnail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_banners_active ON banners(active)`,
		`CREATE INDEX IF NOT EXISTS idx_banners_expiration ON banners(expiration_date)`,

		// Purchases keep banner_id without a foreign key: deleting a banner
		// leaves its purchases in place.
		`CREATE TABLE IF NOT EXISTS purchases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
			banner_id INTEGER NOT NULL,
			price TEXT NOT NULL,
			purchase_date TEXT NOT NULL,
			expiration_date TEXT NOT NULL,
			banner_title TEXT NOT NULL DEFAULT '',
			stream_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_email ON purchases(email)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_email_banner ON purchases(email, banner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_date ON purchases(purchase_date)`,

		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id TEXT PRIMARY KEY,
			banner_id INTEGER NOT NULL,
			email TEXT NOT NULL,
			amount TEXT NOT NULL,
			pix_key TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			purchase_id INTEGER,
			created_at TEXT NOT NULL,
			completed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_completed ON payment_transactions(completed_at)`,

		`CREATE TABLE IF NOT EXISTS streaming_stats (
			banner_id INTEGER NOT NULL,
			day TEXT NOT NULL,
			views INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (banner_id, day)
		)`,

		// Settings (Key-Value Store)
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			// Ignore "duplicate column name" error for idempotent migrations
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

// storeErr tags a driver failure so callers can tell it from a domain error
func storeErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
