package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"arriendo/internal/models"
)

// SyncListings upserts configured listings and refreshes the cache.
func (db *DB) SyncListings(ctx context.Context, listings []models.Listing) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO listings (id, name, address, agent_name, agent_phone, agent_email, agent_whatsapp, is_active, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                address = excluded.address,
                agent_name = excluded.agent_name,
                agent_phone = excluded.agent_phone,
                agent_email = excluded.agent_email,
                agent_whatsapp = excluded.agent_whatsapp,
                is_active = excluded.is_active`
	now := time.Now()
	for i := range listings {
		l := &listings[i]
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, query,
			l.ID, l.Name, l.Address,
			l.Agent.Name, l.Agent.Phone, l.Agent.Email, l.Agent.WhatsApp,
			l.IsActive, formatTS(l.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert listing %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit listings: %w", err)
	}

	db.mu.Lock()
	for _, l := range listings {
		db.listings[l.ID] = l
	}
	db.mu.Unlock()
	return nil
}

func (db *DB) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	db.mu.RLock()
	l, ok := db.listings[id]
	db.mu.RUnlock()
	if ok {
		return &l, nil
	}

	var created string
	query := `SELECT id, name, address, agent_name, agent_phone, agent_email, agent_whatsapp, is_active, created_at
              FROM listings WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.Name, &l.Address,
		&l.Agent.Name, &l.Agent.Phone, &l.Agent.Email, &l.Agent.WhatsApp,
		&l.IsActive, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	l.CreatedAt, _ = parseTS(created)

	db.mu.Lock()
	db.listings[l.ID] = l
	db.mu.Unlock()
	return &l, nil
}
