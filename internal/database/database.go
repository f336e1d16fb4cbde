package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"arriendo/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// timestamps are stored as RFC 3339 UTC text so that string order is time order
const tsLayout = time.RFC3339

type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu       sync.RWMutex
	listings map[string]models.Listing
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// один writer: транзакции бронирования сериализуются, :memory: живет в одном соединении
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, logger: logger, listings: make(map[string]models.Listing)}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS listings (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            address TEXT,
            agent_name TEXT,
            agent_phone TEXT,
            agent_email TEXT,
            agent_whatsapp TEXT,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS slots (
            id TEXT PRIMARY KEY,
            listing_id TEXT NOT NULL REFERENCES listings(id),
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'open',
            source TEXT NOT NULL DEFAULT 'system',
            UNIQUE (listing_id, start_time)
        )`,
		`CREATE TABLE IF NOT EXISTS visits (
            id TEXT PRIMARY KEY,
            listing_id TEXT NOT NULL REFERENCES listings(id),
            slot_id TEXT NOT NULL REFERENCES slots(id),
            user_id TEXT,
            channel TEXT,
            status TEXT NOT NULL,
            idempotency_key TEXT NOT NULL UNIQUE,
            contact_name TEXT,
            contact_email TEXT,
            contact_phone TEXT,
            contact_rut TEXT,
            start_time TEXT NOT NULL,
            created_at TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_slots_listing_start ON slots(listing_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_listing ON visits(listing_id)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_slot ON visits(slot_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
