package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
	"github.com/clinisys/clinic-scheduling/internal/schedule"
)

// ErrStepValidation is returned for illegal flow transitions: advancing past
// an incomplete step or jumping forward. With a correct caller it indicates a
// UI bug, not a user mistake.
var ErrStepValidation = errors.New("step validation failed")

type Step int

const (
	StepSpecialty Step = iota + 1
	StepDoctor
	StepMonth
	StepDay
	StepTime
	StepPatient
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepSpecialty:
		return "specialty"
	case StepDoctor:
		return "doctor"
	case StepMonth:
		return "month"
	case StepDay:
		return "day"
	case StepTime:
		return "time"
	case StepPatient:
		return "patient"
	case StepConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Draft accumulates the booking selections across steps. It is purely local;
// no reservation is held at the store while a draft is open.
type Draft struct {
	Specialty *Specialty
	Doctor    *Doctor
	Month     *schedule.Month
	Day       *calendar.LocalDate
	Time      *calendar.TimeOfDay
	Patient   *Patient
	Reason    string
}

// Flow walks a receptionist through the seven booking steps, enforcing step
// ordering and the cascading-reset rules between selections. One Flow serves
// one user interaction; it is not safe for concurrent use.
type Flow struct {
	svc         *Service
	specialties SpecialtyDirectory
	doctors     DoctorDirectory
	patients    PatientDirectory
	identity    IdentityLookup
	monthWindow int

	step  Step
	draft Draft
}

func NewFlow(svc *Service, specialties SpecialtyDirectory, doctors DoctorDirectory, patients PatientDirectory, identity IdentityLookup, monthWindow int) *Flow {
	if monthWindow <= 0 {
		monthWindow = 3
	}
	return &Flow{
		svc:         svc,
		specialties: specialties,
		doctors:     doctors,
		patients:    patients,
		identity:    identity,
		monthWindow: monthWindow,
		step:        StepSpecialty,
	}
}

func (f *Flow) Step() Step { return f.step }

// Draft returns a read-only snapshot of the current selections.
func (f *Flow) Draft() Draft { return f.draft }

// Choice queries for the current step. Each returns the candidates the user
// may pick from; selection setters below validate membership.

func (f *Flow) Specialties(ctx context.Context) ([]Specialty, error) {
	return f.specialties.ListSpecialties(ctx)
}

func (f *Flow) DoctorChoices(ctx context.Context) ([]Doctor, error) {
	if f.draft.Specialty == nil {
		return nil, fmt.Errorf("%w: no specialty selected", ErrStepValidation)
	}
	return f.doctors.ListDoctorsBySpecialty(ctx, f.draft.Specialty.ID)
}

func (f *Flow) MonthChoices() []schedule.Month {
	return schedule.MonthWindow(f.svc.Today(), f.monthWindow)
}

func (f *Flow) DayChoices() []calendar.LocalDate {
	if f.draft.Month == nil {
		return nil
	}
	return schedule.DaysInMonthFrom(*f.draft.Month, f.svc.Today())
}

func (f *Flow) SlotChoices(ctx context.Context) ([]schedule.Slot, error) {
	if f.draft.Doctor == nil || f.draft.Day == nil {
		return nil, fmt.Errorf("%w: doctor and day must be selected first", ErrStepValidation)
	}
	return f.svc.SlotsFor(ctx, f.draft.Doctor.ID, *f.draft.Day)
}

// SelectSpecialty sets the specialty and clears every downstream selection:
// doctor, month, day and time all depend on it.
func (f *Flow) SelectSpecialty(ctx context.Context, id uuid.UUID) error {
	sp, err := f.specialties.GetSpecialty(ctx, id)
	if err != nil {
		return fmt.Errorf("load specialty: %w", err)
	}
	f.draft.Specialty = sp
	f.draft.Doctor = nil
	f.draft.Month = nil
	f.draft.Day = nil
	f.draft.Time = nil
	return nil
}

// SelectDoctor sets the doctor, which must belong to the selected specialty,
// and clears month, day and time.
func (f *Flow) SelectDoctor(ctx context.Context, id uuid.UUID) error {
	candidates, err := f.DoctorChoices(ctx)
	if err != nil {
		return err
	}
	for i := range candidates {
		if candidates[i].ID == id {
			doc := candidates[i]
			f.draft.Doctor = &doc
			f.draft.Month = nil
			f.draft.Day = nil
			f.draft.Time = nil
			return nil
		}
	}
	return fmt.Errorf("%w: doctor %s has no selected specialty", ErrDoctorNotFound, id)
}

// SelectMonth sets the target month, which must fall inside the rolling
// booking window, and clears day and time.
func (f *Flow) SelectMonth(m schedule.Month) error {
	for _, cand := range f.MonthChoices() {
		if cand == m {
			f.draft.Month = &m
			f.draft.Day = nil
			f.draft.Time = nil
			return nil
		}
	}
	return fmt.Errorf("%w: month %04d-%02d outside booking window", ErrStepValidation, m.Year, m.Month)
}

// SelectDay sets the target day, which must be a bookable day of the
// selected month, and clears the time.
func (f *Flow) SelectDay(date calendar.LocalDate) error {
	for _, cand := range f.DayChoices() {
		if cand.Equal(date) {
			f.draft.Day = &date
			f.draft.Time = nil
			return nil
		}
	}
	return fmt.Errorf("%w: day %s not bookable", ErrStepValidation, date.ISO())
}

// SelectTime re-resolves availability before accepting the chosen slot; a
// stale render is never trusted. A slot that turned out taken surfaces as
// ErrBookingConflict so the caller can re-select.
func (f *Flow) SelectTime(ctx context.Context, at calendar.TimeOfDay) error {
	slots, err := f.SlotChoices(ctx)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.Time != at {
			continue
		}
		if !slot.Available {
			return fmt.Errorf("%w: %s %s", ErrBookingConflict, slot.Date.ISO(), at)
		}
		f.draft.Time = &at
		return nil
	}
	return fmt.Errorf("%w: %s is not a working-hours slot", ErrStepValidation, at)
}

// LookupPatient resolves an 8-digit national ID, trying the clinic directory
// first and falling back to the identity registry. A registry hit yields an
// unregistered Patient that Submit will persist before booking.
func (f *Flow) LookupPatient(ctx context.Context, nationalID string) (*Patient, error) {
	return ResolvePatient(ctx, f.patients, f.identity, nationalID)
}

func (f *Flow) SelectPatient(p Patient) {
	f.draft.Patient = &p
}

func (f *Flow) SetReason(reason string) {
	f.draft.Reason = reason
}

// stepComplete is the per-step validity predicate gating Advance and Submit.
func (f *Flow) stepComplete(s Step) bool {
	switch s {
	case StepSpecialty:
		return f.draft.Specialty != nil
	case StepDoctor:
		return f.draft.Doctor != nil
	case StepMonth:
		return f.draft.Month != nil
	case StepDay:
		return f.draft.Day != nil
	case StepTime:
		return f.draft.Time != nil
	case StepPatient:
		return f.draft.Patient != nil
	case StepConfirm:
		return true
	default:
		return false
	}
}

// Advance moves to the next step if the current one is complete.
func (f *Flow) Advance() error {
	if f.step >= StepConfirm {
		return fmt.Errorf("%w: already at %s", ErrStepValidation, StepConfirm)
	}
	if !f.stepComplete(f.step) {
		return fmt.Errorf("%w: %s incomplete", ErrStepValidation, f.step)
	}
	f.step++
	return nil
}

// Retreat steps back one step. Selections stay intact and re-editable.
func (f *Flow) Retreat() error {
	if f.step <= StepSpecialty {
		return fmt.Errorf("%w: already at %s", ErrStepValidation, StepSpecialty)
	}
	f.step--
	return nil
}

// JumpTo moves directly back to an already-completed step. Forward jumps are
// rejected.
func (f *Flow) JumpTo(s Step) error {
	if s < StepSpecialty || s >= f.step {
		return fmt.Errorf("%w: cannot jump from %s to %s", ErrStepValidation, f.step, s)
	}
	f.step = s
	return nil
}

// Submit re-validates the whole draft and writes the booking. An
// unregistered patient is persisted first so the appointment references a
// real directory id. On success the draft is cleared and the flow returns to
// the first step; on failure the draft is kept so the user can re-select.
func (f *Flow) Submit(ctx context.Context) (*Appointment, error) {
	if f.step != StepConfirm {
		return nil, fmt.Errorf("%w: submit only allowed at %s, currently at %s", ErrStepValidation, StepConfirm, f.step)
	}
	for s := StepSpecialty; s <= StepConfirm; s++ {
		if !f.stepComplete(s) {
			return nil, fmt.Errorf("%w: %s incomplete", ErrStepValidation, s)
		}
	}

	patient := *f.draft.Patient
	if !patient.Registered {
		created, err := f.patients.CreatePatient(ctx, patient)
		if err != nil {
			return nil, fmt.Errorf("register patient: %w", err)
		}
		patient = *created
		f.draft.Patient = &patient
	}

	appt, err := f.svc.Book(ctx, patient.ID, f.draft.Doctor.ID, *f.draft.Day, *f.draft.Time, f.draft.Reason)
	if err != nil {
		return nil, err
	}

	f.Cancel()
	return appt, nil
}

// Cancel abandons the flow: the draft is dropped and the flow returns to the
// first step. No store interaction happens, since drafts hold no reservation.
func (f *Flow) Cancel() {
	f.draft = Draft{}
	f.step = StepSpecialty
}
