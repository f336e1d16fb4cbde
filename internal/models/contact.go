package models

import "time"

// ContactData holds what the visitor typed in the contact step.
type ContactData struct {
	Name  string `json:"name" validate:"required,min=2,max=120"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"required,clphone"`
	RUT   string `json:"rut" validate:"required,rut"`
}

func (c ContactData) IsEmpty() bool {
	return c.Name == "" && c.Email == "" && c.Phone == "" && c.RUT == ""
}

// Qualification question ids.
const (
	QuestionIncome   = "incomeRange"
	QuestionGuaranty = "hasGuarantor"
	QuestionMoveIn   = "moveInTimeframe"
)

// RentalQualification holds the answers of the qualification step.
type RentalQualification struct {
	IncomeRange     string `json:"incomeRange,omitempty"`
	HasGuarantor    string `json:"hasGuarantor,omitempty"`
	MoveInTimeframe string `json:"moveInTimeframe,omitempty"`
}

// Get returns the answer for a question id.
func (q RentalQualification) Get(id string) string {
	switch id {
	case QuestionIncome:
		return q.IncomeRange
	case QuestionGuaranty:
		return q.HasGuarantor
	case QuestionMoveIn:
		return q.MoveInTimeframe
	}
	return ""
}

// Set stores an answer; false for an unknown question.
func (q *RentalQualification) Set(id, value string) bool {
	switch id {
	case QuestionIncome:
		q.IncomeRange = value
	case QuestionGuaranty:
		q.HasGuarantor = value
	case QuestionMoveIn:
		q.MoveInTimeframe = value
	default:
		return false
	}
	return true
}

func (q RentalQualification) IsEmpty() bool {
	return q.IncomeRange == "" && q.HasGuarantor == "" && q.MoveInTimeframe == ""
}

// PersistedData is the per-listing progress snapshot.
type PersistedData struct {
	SelectedDate         string              `json:"selectedDate"`
	SelectedTime         string              `json:"selectedTime"`
	RentalQualification  RentalQualification `json:"rentalQualification"`
	ContactData          ContactData         `json:"contactData"`
	Step                 Step                `json:"step"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	CurrentFieldIndex    int                 `json:"currentFieldIndex"`
	Timestamp            int64               `json:"timestamp"`
}

// StampedAt returns when the snapshot was taken.
func (p PersistedData) StampedAt() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Stamp returns a copy carrying t as its timestamp.
func (p PersistedData) Stamp(t time.Time) PersistedData {
	p.Timestamp = t.UnixMilli()
	return p
}
