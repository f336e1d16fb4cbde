package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"arriendo/internal/models"

	"github.com/google/uuid"
)

const visitColumns = `id, listing_id, slot_id, user_id, channel, status, idempotency_key,
                      contact_name, contact_email, contact_phone, contact_rut, start_time, created_at`

func scanVisit(row rowScanner) (*models.Visit, error) {
	var v models.Visit
	var c models.ContactData
	var start, created string
	err := row.Scan(
		&v.ID, &v.ListingID, &v.SlotID, &v.UserID, &v.Channel, &v.Status, &v.IdempotencyKey,
		&c.Name, &c.Email, &c.Phone, &c.RUT, &start, &created,
	)
	if err != nil {
		return nil, err
	}
	if !c.IsEmpty() {
		v.Contact = &c
	}
	if v.StartTime, err = parseTS(start); err != nil {
		return nil, fmt.Errorf("failed to parse visit start %s: %w", start, err)
	}
	if v.CreatedAt, err = parseTS(created); err != nil {
		return nil, fmt.Errorf("failed to parse visit created_at %s: %w", created, err)
	}
	return &v, nil
}

func (db *DB) GetVisitByIdempotencyKey(ctx context.Context, key string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE idempotency_key = ?`
	v, err := scanVisit(db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return v, nil
}

// CreateVisitWithLock re-checks the slot inside a transaction, reserves it
// and inserts the visit.
func (db *DB) CreateVisitWithLock(ctx context.Context, visit *models.Visit) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check slot inside transaction
	var status models.SlotStatus
	var start string
	err = tx.QueryRowContext(ctx, `SELECT status, start_time FROM slots WHERE id = ? AND listing_id = ?`,
		visit.SlotID, visit.ListingID).Scan(&status, &start)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check slot in tx: %w", err)
	}
	if status != models.SlotOpen {
		return ErrSlotUnavailable
	}

	// 2. Reserve
	result, err := tx.ExecContext(ctx, `UPDATE slots SET status = ? WHERE id = ? AND status = ?`,
		models.SlotReserved, visit.SlotID, models.SlotOpen)
	if err != nil {
		return fmt.Errorf("failed to reserve slot in tx: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrSlotUnavailable
	}

	// 3. Create visit
	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}
	if visit.Status == "" {
		visit.Status = models.VisitConfirmed
	}
	visit.StartTime, err = parseTS(start)
	if err != nil {
		return fmt.Errorf("failed to parse slot start %s: %w", start, err)
	}
	visit.CreatedAt = time.Now().UTC().Truncate(time.Second)

	var c models.ContactData
	if visit.Contact != nil {
		c = *visit.Contact
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO visits (`+visitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		visit.ID, visit.ListingID, visit.SlotID, visit.UserID, visit.Channel, visit.Status, visit.IdempotencyKey,
		c.Name, c.Email, c.Phone, c.RUT, start, formatTS(visit.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert visit in tx: %w", err)
	}

	return tx.Commit()
}

// GetVisits returns visits ordered by start time; empty listingID means all.
func (db *DB) GetVisits(ctx context.Context, listingID string) ([]*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits`
	var args []any
	if listingID != "" {
		query += ` WHERE listing_id = ?`
		args = append(args, listingID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get visits: %w", err)
	}
	defer rows.Close()

	var visits []*models.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}
