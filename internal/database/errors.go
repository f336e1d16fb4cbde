package database

import "errors"

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrSlotNotFound    = errors.New("slot not found")
	ErrSlotUnavailable = errors.New("slot is not available")
	ErrVisitNotFound   = errors.New("visit not found")
	ErrDuplicateKey    = errors.New("idempotency key already used")
)
