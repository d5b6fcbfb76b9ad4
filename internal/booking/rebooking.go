package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
	"github.com/clinisys/clinic-scheduling/internal/schedule"
)

// RebookingState tracks the two phases of a reschedule: slot selection, then
// an explicit confirmation of the original-vs-new diff.
type RebookingState int

const (
	RebookingSelecting RebookingState = iota
	RebookingAwaitingConfirm
)

// RebookingDraft is the ephemeral state of one reschedule. Original date and
// time are kept so the caller can show the diff before confirming.
type RebookingDraft struct {
	AppointmentID uuid.UUID
	OriginalDate  calendar.LocalDate
	OriginalTime  calendar.TimeOfDay
	NewDate       *calendar.LocalDate
	NewTime       *calendar.TimeOfDay
}

// Rebooking moves one existing appointment to a new slot. Like Flow it serves
// a single user interaction and holds no reservation until Confirm.
type Rebooking struct {
	svc      *Service
	doctorID uuid.UUID
	state    RebookingState
	draft    RebookingDraft
}

// StartRebooking loads the appointment being moved and opens a selection
// phase scoped to its doctor.
func StartRebooking(ctx context.Context, svc *Service, appointmentID uuid.UUID) (*Rebooking, error) {
	appt, err := svc.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Status.Blocks() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, appt.Status)
	}

	return &Rebooking{
		svc:      svc,
		doctorID: appt.DoctorID,
		state:    RebookingSelecting,
		draft: RebookingDraft{
			AppointmentID: appointmentID,
			OriginalDate:  appt.Date,
			OriginalTime:  appt.Time,
		},
	}, nil
}

func (r *Rebooking) State() RebookingState { return r.state }

func (r *Rebooking) Draft() RebookingDraft { return r.draft }

// SlotsFor exposes the same availability query the booking flow uses, scoped
// to the appointment's doctor.
func (r *Rebooking) SlotsFor(ctx context.Context, date calendar.LocalDate) ([]schedule.Slot, error) {
	return r.svc.SlotsFor(ctx, r.doctorID, date)
}

// Propose records the target slot and moves to awaiting-confirmation. It
// performs no store write; the availability check here only fails fast on
// slots already known to be taken.
func (r *Rebooking) Propose(ctx context.Context, date calendar.LocalDate, at calendar.TimeOfDay) error {
	slots, err := r.SlotsFor(ctx, date)
	if err != nil {
		return err
	}
	found := false
	for _, slot := range slots {
		if slot.Time != at {
			continue
		}
		found = true
		keepingOwn := date.Equal(r.draft.OriginalDate) && at == r.draft.OriginalTime
		if !slot.Available && !keepingOwn {
			return fmt.Errorf("%w: %s %s", ErrBookingConflict, date.ISO(), at)
		}
	}
	if !found {
		return fmt.Errorf("%w: %s is not a working-hours slot", ErrValidation, at)
	}

	r.draft.NewDate = &date
	r.draft.NewTime = &at
	r.state = RebookingAwaitingConfirm
	return nil
}

// Confirm submits the reschedule. On success the draft is cleared; on failure
// the chosen slot is kept so the user can retry or propose another one.
func (r *Rebooking) Confirm(ctx context.Context) error {
	if r.state != RebookingAwaitingConfirm || r.draft.NewDate == nil || r.draft.NewTime == nil {
		return fmt.Errorf("%w: no proposed slot to confirm", ErrStepValidation)
	}

	err := r.svc.Reschedule(ctx, r.draft.AppointmentID, *r.draft.NewDate, *r.draft.NewTime)
	if err != nil {
		if errors.Is(err, ErrBookingConflict) || errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("confirm reschedule: %w", err)
	}

	r.draft.NewDate = nil
	r.draft.NewTime = nil
	r.state = RebookingSelecting
	return nil
}

// Cancel discards the draft with no store interaction.
func (r *Rebooking) Cancel() {
	r.draft.NewDate = nil
	r.draft.NewTime = nil
	r.state = RebookingSelecting
}
