package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
)

var (
	ErrSpecialtyNotFound   = errors.New("specialty not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrBookingConflict means the store rejected a write because the slot
	// was claimed by another actor first. Recoverable: re-query availability
	// and pick again.
	ErrBookingConflict = errors.New("slot already booked")

	// ErrSourceUnavailable means booked-slot data could not be fetched. No
	// availability is ever fabricated in that case.
	ErrSourceUnavailable = errors.New("appointment source unavailable")

	// ErrValidation is a store-side rejection of malformed input.
	ErrValidation = errors.New("invalid booking request")

	// ErrInvalidStatusTransition guards the appointment status lifecycle.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// BookedTime is one claimed slot time with its appointment status, as
// reported by the source for a single (doctor, date).
type BookedTime struct {
	Time   calendar.TimeOfDay
	Status Status
}

// AppointmentSource reads persisted appointments.
type AppointmentSource interface {
	ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date calendar.LocalDate) ([]BookedTime, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
}

// BookingSink creates appointments. Create fails with ErrBookingConflict when
// the slot is already claimed and ErrValidation on malformed input.
type BookingSink interface {
	Create(ctx context.Context, patientID, doctorID uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay, reason string) (*Appointment, error)
}

// RescheduleSink moves an existing appointment to a new slot.
type RescheduleSink interface {
	Reschedule(ctx context.Context, id uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay) error
}

// StatusUpdater applies status-only transitions (attend, cancel).
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
}

// PatientDirectory is the clinic's patient registry.
type PatientDirectory interface {
	FindByNationalID(ctx context.Context, nationalID string) (*Patient, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)
}

// DoctorDirectory and SpecialtyDirectory back the selection steps of the
// booking flow.
type DoctorDirectory interface {
	ListDoctors(ctx context.Context) ([]Doctor, error)
	ListDoctorsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

type SpecialtyDirectory interface {
	ListSpecialties(ctx context.Context) ([]Specialty, error)
	GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error)
}

// IdentityLookup resolves a national ID against the external registry when
// the clinic directory has no match. Implemented by the reniec client.
type IdentityLookup interface {
	FindPerson(ctx context.Context, nationalID string) (*Patient, error)
}
