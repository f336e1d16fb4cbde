package models

import "time"

type VisitStatus string

const (
	VisitPending   VisitStatus = "pending"
	VisitConfirmed VisitStatus = "confirmed"
	VisitCancelled VisitStatus = "cancelled"
)

// Agent is the listing contact shown after a booking.
type Agent struct {
	Name     string `json:"name" yaml:"name"`
	Phone    string `json:"phone" yaml:"phone"`
	Email    string `json:"email,omitempty" yaml:"email"`
	WhatsApp string `json:"whatsapp,omitempty" yaml:"whatsapp"`
}

// Visit is a booking record as stored by the visits endpoint.
type Visit struct {
	ID             string       `json:"visitId"`
	ListingID      string       `json:"listingId"`
	SlotID         string       `json:"slotId"`
	UserID         string       `json:"userId"`
	Channel        string       `json:"channel"`
	Status         VisitStatus  `json:"status"`
	IdempotencyKey string       `json:"idempotencyKey"`
	Contact        *ContactData `json:"contactData,omitempty"`
	StartTime      time.Time    `json:"startTime"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// AvailabilityResponse is the body of GET /api/availability.
type AvailabilityResponse struct {
	ListingID         string `json:"listingId"`
	Timezone          string `json:"timezone"`
	Slots             []Slot `json:"slots"`
	NextAvailableDate string `json:"nextAvailableDate,omitempty"`
}

// CreateVisitRequest is the body of POST /api/visits.
type CreateVisitRequest struct {
	ListingID      string       `json:"listingId"`
	SlotID         string       `json:"slotId"`
	UserID         string       `json:"userId"`
	Channel        string       `json:"channel"`
	IdempotencyKey string       `json:"idempotencyKey"`
	ContactData    *ContactData `json:"contactData,omitempty"`
}

// VisitResponse is the success body of POST /api/visits.
type VisitResponse struct {
	VisitID             string      `json:"visitId"`
	Status              VisitStatus `json:"status"`
	Agent               Agent       `json:"agent"`
	Slot                Slot        `json:"slot"`
	ConfirmationMessage string      `json:"confirmationMessage"`
}

// ErrorResponse is the body of any non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
