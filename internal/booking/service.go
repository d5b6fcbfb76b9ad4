package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
	"github.com/clinisys/clinic-scheduling/internal/schedule"
)

// Store bundles every persistence-facing port the service needs.
type Store interface {
	AppointmentSource
	BookingSink
	RescheduleSink
	StatusUpdater
}

// Service computes slot availability and performs booking writes against the
// store. Availability is always resolved on a snapshot fetched immediately
// before use; a write that loses the race surfaces as ErrBookingConflict.
type Service struct {
	store Store
	hours schedule.WorkingHours
	// cutoffWithinDay additionally drops already-elapsed slots when the
	// queried day is today. Off by default.
	cutoffWithinDay bool
	now             func() time.Time
}

func NewService(store Store, hours schedule.WorkingHours, cutoffWithinDay bool) *Service {
	return &Service{
		store:           store,
		hours:           hours,
		cutoffWithinDay: cutoffWithinDay,
		now:             time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WorkingHours() schedule.WorkingHours { return s.hours }

func (s *Service) Today() calendar.LocalDate { return calendar.DateOf(s.now()) }

// SlotsFor returns the availability-annotated slot grid for one doctor and
// day. If the booked set cannot be fetched no slots are returned; stale
// "available" data is never fabricated.
func (s *Service) SlotsFor(ctx context.Context, doctorID uuid.UUID, date calendar.LocalDate) ([]schedule.Slot, error) {
	booked, err := s.bookedSet(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	times := s.hours.Slots()
	if s.cutoffWithinDay && date.Equal(s.Today()) {
		now := s.now()
		times = schedule.DropElapsed(times, calendar.ClockTime(now.Hour(), now.Minute()))
	}

	return schedule.ResolveAvailability(date, times, booked), nil
}

func (s *Service) bookedSet(ctx context.Context, doctorID uuid.UUID, date calendar.LocalDate) (schedule.BookedSet, error) {
	bookings, err := s.store.ListByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	set := make(schedule.BookedSet, len(bookings))
	for _, b := range bookings {
		if b.Status.Blocks() {
			set[b.Time] = struct{}{}
		}
	}
	return set, nil
}

// Book creates an appointment after re-checking that the slot is still free.
// The store's uniqueness constraint remains authoritative: a concurrent claim
// between the check and the write still comes back as ErrBookingConflict.
func (s *Service) Book(ctx context.Context, patientID, doctorID uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay, reason string) (*Appointment, error) {
	if err := s.validateSlot(date, at); err != nil {
		return nil, err
	}

	booked, err := s.bookedSet(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if _, taken := booked[at]; taken {
		return nil, ErrBookingConflict
	}

	appt, err := s.store.Create(ctx, patientID, doctorID, date, at, reason)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return appt, nil
}

// Reschedule moves an appointment to a new slot under the same availability
// invariant as Book.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay) error {
	if err := s.validateSlot(date, at); err != nil {
		return err
	}

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	booked, err := s.bookedSet(ctx, appt.DoctorID, date)
	if err != nil {
		return err
	}
	if _, taken := booked[at]; taken && !(date.Equal(appt.Date) && at == appt.Time) {
		return ErrBookingConflict
	}

	if err := s.store.Reschedule(ctx, id, date, at); err != nil {
		return fmt.Errorf("reschedule appointment: %w", err)
	}
	return nil
}

// MarkAttended and Cancel are the two status-only transitions reachable from
// a live appointment. Cancellation frees the slot but never deletes the row.
func (s *Service) MarkAttended(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusAttended)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Status.Blocks() {
		return nil, ErrInvalidStatusTransition
	}
	updated, err := s.store.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return updated, nil
}

// AppointmentsByDoctor backs the calendar views.
func (s *Service) AppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	appts, err := s.store.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return appts, nil
}

// CancelStale cancels PENDING appointments whose slot ended more than grace
// ago. Intended to be called periodically by the no-show worker.
func (s *Service) CancelStale(ctx context.Context, doctorIDs []uuid.UUID, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)
	cancelled := 0

	for _, doctorID := range doctorIDs {
		appts, err := s.store.ListByDoctor(ctx, doctorID)
		if err != nil {
			return cancelled, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		for _, appt := range appts {
			if appt.Status != StatusPending && appt.Status != StatusRescheduled {
				continue
			}
			end := appt.Date.Time(cutoff.Location()).Add(time.Duration(int(appt.Time)+s.hours.Interval) * time.Minute)
			if end.After(cutoff) {
				continue
			}
			if _, err := s.store.UpdateStatus(ctx, appt.ID, appt.Status, StatusCancelled); err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					continue
				}
				log.Printf("failed to cancel stale appointment %s: %v", appt.ID, err)
				continue
			}
			cancelled++
		}
	}

	return cancelled, nil
}

func (s *Service) validateSlot(date calendar.LocalDate, at calendar.TimeOfDay) error {
	if !date.Valid() {
		return fmt.Errorf("%w: date %v", ErrValidation, date)
	}
	if !at.Valid() {
		return fmt.Errorf("%w: time %v", ErrValidation, int(at))
	}
	if !onGrid(s.hours, at) {
		return fmt.Errorf("%w: time %s outside working hours grid", ErrValidation, at)
	}
	return nil
}

func onGrid(w schedule.WorkingHours, at calendar.TimeOfDay) bool {
	if at < w.Start || at >= w.End {
		return false
	}
	return (int(at)-int(w.Start))%w.Interval == 0
}
