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

const slotColumns = `id, listing_id, start_time, end_time, status, source`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	var s models.Slot
	var start, end string
	if err := row.Scan(&s.ID, &s.ListingID, &start, &end, &s.Status, &s.Source); err != nil {
		return nil, err
	}
	var err error
	if s.StartTime, err = parseTS(start); err != nil {
		return nil, fmt.Errorf("failed to parse slot start %s: %w", start, err)
	}
	if s.EndTime, err = parseTS(end); err != nil {
		return nil, fmt.Errorf("failed to parse slot end %s: %w", end, err)
	}
	return &s, nil
}

// EnsureSlots materializes open system slots on the visit grid for every
// Monday–Saturday in [start, end). Existing slots are left untouched.
func (db *DB) EnsureSlots(ctx context.Context, listingID string, start, end time.Time, loc *time.Location) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT OR IGNORE INTO slots (` + slotColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare slot insert: %w", err)
	}
	defer stmt.Close()

	y, m, d := start.In(loc).Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, loc); day.Before(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Sunday {
			continue
		}
		for _, clock := range models.VisitTimes() {
			slotStart, err := models.ParseLocal(day.Format(models.DateLayout), clock, loc)
			if err != nil {
				return err
			}
			if slotStart.Before(start) || !slotStart.Before(end) {
				continue
			}
			_, err = stmt.ExecContext(ctx,
				uuid.NewString(), listingID,
				formatTS(slotStart), formatTS(slotStart.Add(models.VisitStepMinutes*time.Minute)),
				models.SlotOpen, models.SourceSystem,
			)
			if err != nil {
				return fmt.Errorf("failed to insert slot: %w", err)
			}
		}
	}

	return tx.Commit()
}

// GetSlots returns the slots of a listing starting in [start, end).
func (db *DB) GetSlots(ctx context.Context, listingID string, start, end time.Time) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE listing_id = ? AND start_time >= ? AND start_time < ?
              ORDER BY start_time ASC`
	rows, err := db.QueryContext(ctx, query, listingID, formatTS(start), formatTS(end))
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	defer rows.Close()

	slots := []models.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

func (db *DB) GetSlot(ctx context.Context, id string) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = ?`
	s, err := scanSlot(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return s, nil
}

func (db *DB) GetSlotByStart(ctx context.Context, listingID string, start time.Time) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE listing_id = ? AND start_time = ?`
	s, err := scanSlot(db.QueryRowContext(ctx, query, listingID, formatTS(start)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot by start: %w", err)
	}
	return s, nil
}

// CreateSlot inserts a slot; an empty ID gets a generated one.
func (db *DB) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	query := `INSERT INTO slots (` + slotColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		slot.ID, slot.ListingID,
		formatTS(slot.StartTime), formatTS(slot.EndTime),
		slot.Status, slot.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

// UpdateSlotStatus lets the owner block or reopen a slot.
func (db *DB) UpdateSlotStatus(ctx context.Context, id string, status models.SlotStatus) error {
	result, err := db.ExecContext(ctx, `UPDATE slots SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update slot status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSlotNotFound
	}
	return nil
}
