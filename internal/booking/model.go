package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusAttended    Status = "ATTENDED"
	StatusCancelled   Status = "CANCELLED"
	StatusRescheduled Status = "RESCHEDULED"
)

// Blocks reports whether an appointment in this status still claims its
// slot. Attended and cancelled appointments free the slot.
func (s Status) Blocks() bool {
	return s == StatusPending || s == StatusRescheduled
}

type Specialty struct {
	ID   uuid.UUID
	Name string
}

type Doctor struct {
	ID          uuid.UUID
	FirstName   string
	LastName    string
	SpecialtyID uuid.UUID
	LicenseNo   string
}

type Patient struct {
	ID         uuid.UUID
	NationalID string // 8-digit DNI
	FirstName  string
	LastName   string
	Phone      string
	Email      string
	// Registered is false for patients resolved from the national identity
	// registry that have not been written to the clinic directory yet.
	Registered bool
}

// Appointment is the persisted entity owned by the store. At most one
// appointment whose status still blocks may exist per (DoctorID, Date, Time);
// the store's uniqueness constraint is authoritative for that invariant.
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      calendar.LocalDate
	Time      calendar.TimeOfDay
	Status    Status
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
