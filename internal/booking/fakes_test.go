package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
)

// memStore is an in-memory Store that enforces the same live-slot uniqueness
// the database does, under a mutex so concurrent Create calls race for real.
type memStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment

	listErr   error
	createErr error

	listCalls   int
	createCalls int
}

func newMemStore() *memStore {
	return &memStore{appointments: make(map[uuid.UUID]*Appointment)}
}

func (m *memStore) put(appt Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := appt
	m.appointments[appt.ID] = &cp
}

func (m *memStore) slotTaken(doctorID uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay, except uuid.UUID) bool {
	for _, a := range m.appointments {
		if a.ID == except {
			continue
		}
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Time == at && a.Status.Blocks() {
			return true
		}
	}
	return false
}

func (m *memStore) ListByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date calendar.LocalDate) ([]BookedTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []BookedTime
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			out = append(out, BookedTime{Time: a.Time, Status: a.Status})
		}
	}
	return out, nil
}

func (m *memStore) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, patientID, doctorID uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay, reason string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.slotTaken(doctorID, date, at, uuid.Nil) {
		return nil, ErrBookingConflict
	}
	now := time.Now()
	a := &Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      at,
		Status:    StatusPending,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *memStore) Reschedule(_ context.Context, id uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if !a.Status.Blocks() {
		return ErrInvalidStatusTransition
	}
	if m.slotTaken(a.DoctorID, date, at, id) {
		return ErrBookingConflict
	}
	a.Date = date
	a.Time = at
	a.Status = StatusRescheduled
	a.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

type memPatients struct {
	mu       sync.Mutex
	patients []Patient

	findErr error

	createCalls int
}

func (m *memPatients) FindByNationalID(_ context.Context, nationalID string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for i := range m.patients {
		if m.patients[i].NationalID == nationalID {
			cp := m.patients[i]
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *memPatients) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	p.ID = uuid.New()
	p.Registered = true
	m.patients = append(m.patients, p)
	cp := p
	return &cp, nil
}

func (m *memPatients) ListPatients(_ context.Context) ([]Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Patient(nil), m.patients...), nil
}

type memDoctors struct {
	doctors []Doctor
}

func (m *memDoctors) ListDoctors(_ context.Context) ([]Doctor, error) {
	return append([]Doctor(nil), m.doctors...), nil
}

func (m *memDoctors) ListDoctorsBySpecialty(_ context.Context, specialtyID uuid.UUID) ([]Doctor, error) {
	var out []Doctor
	for _, d := range m.doctors {
		if d.SpecialtyID == specialtyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDoctors) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	for i := range m.doctors {
		if m.doctors[i].ID == id {
			cp := m.doctors[i]
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

type memSpecialties struct {
	specialties []Specialty
}

func (m *memSpecialties) ListSpecialties(_ context.Context) ([]Specialty, error) {
	return append([]Specialty(nil), m.specialties...), nil
}

func (m *memSpecialties) GetSpecialty(_ context.Context, id uuid.UUID) (*Specialty, error) {
	for i := range m.specialties {
		if m.specialties[i].ID == id {
			cp := m.specialties[i]
			return &cp, nil
		}
	}
	return nil, ErrSpecialtyNotFound
}

type fakeIdentity struct {
	people map[string]Patient
	err    error

	calls int
}

func (f *fakeIdentity) FindPerson(_ context.Context, nationalID string) (*Patient, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.people[nationalID]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := p
	cp.NationalID = nationalID
	return &cp, nil
}

var errStoreDown = errors.New("connection refused")
