package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/booking"
	"github.com/clinisys/clinic-scheduling/internal/calendar"
	"github.com/clinisys/clinic-scheduling/internal/metrics"
	"github.com/clinisys/clinic-scheduling/internal/schedule"
)

// stubStore backs the handler tests with the same live-slot uniqueness rule
// the database enforces.
type stubStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*booking.Appointment
	listErr      error
}

func newStubStore() *stubStore {
	return &stubStore{appointments: make(map[uuid.UUID]*booking.Appointment)}
}

func (s *stubStore) put(a booking.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.appointments[a.ID] = &cp
}

func (s *stubStore) taken(doctorID uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay, except uuid.UUID) bool {
	for _, a := range s.appointments {
		if a.ID != except && a.DoctorID == doctorID && a.Date.Equal(date) && a.Time == at && a.Status.Blocks() {
			return true
		}
	}
	return false
}

func (s *stubStore) ListByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date calendar.LocalDate) ([]booking.BookedTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []booking.BookedTime
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			out = append(out, booking.BookedTime{Time: a.Time, Status: a.Status})
		}
	}
	return out, nil
}

func (s *stubStore) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []booking.Appointment
	for _, a := range s.appointments {
		if a.DoctorID == doctorID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubStore) GetAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *stubStore) Create(_ context.Context, patientID, doctorID uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay, reason string) (*booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken(doctorID, date, at, uuid.Nil) {
		return nil, booking.ErrBookingConflict
	}
	now := time.Now()
	a := &booking.Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      at,
		Status:    booking.StatusPending,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (s *stubStore) Reschedule(_ context.Context, id uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return booking.ErrAppointmentNotFound
	}
	if !a.Status.Blocks() {
		return booking.ErrInvalidStatusTransition
	}
	if s.taken(a.DoctorID, date, at, id) {
		return booking.ErrBookingConflict
	}
	a.Date = date
	a.Time = at
	a.Status = booking.StatusRescheduled
	return nil
}

func (s *stubStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to booking.Status) (*booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return nil, booking.ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

type stubDirectories struct {
	specialties []booking.Specialty
	doctors     []booking.Doctor
	patients    []booking.Patient
}

func (s *stubDirectories) ListSpecialties(_ context.Context) ([]booking.Specialty, error) {
	return s.specialties, nil
}

func (s *stubDirectories) GetSpecialty(_ context.Context, id uuid.UUID) (*booking.Specialty, error) {
	for i := range s.specialties {
		if s.specialties[i].ID == id {
			return &s.specialties[i], nil
		}
	}
	return nil, booking.ErrSpecialtyNotFound
}

func (s *stubDirectories) ListDoctors(_ context.Context) ([]booking.Doctor, error) {
	return s.doctors, nil
}

func (s *stubDirectories) ListDoctorsBySpecialty(_ context.Context, specialtyID uuid.UUID) ([]booking.Doctor, error) {
	var out []booking.Doctor
	for _, d := range s.doctors {
		if d.SpecialtyID == specialtyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubDirectories) GetDoctor(_ context.Context, id uuid.UUID) (*booking.Doctor, error) {
	for i := range s.doctors {
		if s.doctors[i].ID == id {
			return &s.doctors[i], nil
		}
	}
	return nil, booking.ErrDoctorNotFound
}

func (s *stubDirectories) FindByNationalID(_ context.Context, nationalID string) (*booking.Patient, error) {
	for i := range s.patients {
		if s.patients[i].NationalID == nationalID {
			return &s.patients[i], nil
		}
	}
	return nil, booking.ErrPatientNotFound
}

func (s *stubDirectories) CreatePatient(_ context.Context, p booking.Patient) (*booking.Patient, error) {
	p.ID = uuid.New()
	p.Registered = true
	s.patients = append(s.patients, p)
	return &p, nil
}

func (s *stubDirectories) ListPatients(_ context.Context) ([]booking.Patient, error) {
	return s.patients, nil
}

type apiFixture struct {
	store   *stubStore
	dirs    *stubDirectories
	router  http.Handler
	doctor  booking.Doctor
	patient booking.Patient
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{store: newStubStore()}
	specialty := booking.Specialty{ID: uuid.New(), Name: "Dermatología"}
	f.doctor = booking.Doctor{ID: uuid.New(), FirstName: "Julia", LastName: "Ramos", SpecialtyID: specialty.ID}
	f.patient = booking.Patient{ID: uuid.New(), NationalID: "70012345", FirstName: "Pedro", LastName: "Salas", Registered: true}

	f.dirs = &stubDirectories{
		specialties: []booking.Specialty{specialty},
		doctors:     []booking.Doctor{f.doctor},
		patients:    []booking.Patient{f.patient},
	}

	svc := booking.NewService(f.store, schedule.DefaultWorkingHours, false)
	f.router = NewRouter(RouterConfig{
		Service:     svc,
		Specialties: f.dirs,
		Doctors:     f.dirs,
		Patients:    f.dirs,
		Identity:    nil,
		Collector:   metrics.NewCollector(),
		Env:         "test",
		Version:     "test",
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return e.Error
}

func TestDoctorSlotsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	f.store.put(booking.Appointment{
		ID:       uuid.New(),
		DoctorID: f.doctor.ID,
		Date:     calendar.LocalDate{Year: 2025, Month: 7, Day: 15},
		Time:     calendar.ClockTime(14, 0),
		Status:   booking.StatusPending,
	})

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=2025-07-15", f.doctor.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var slots []SlotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) != 36 {
		t.Fatalf("got %d slots, want 36", len(slots))
	}
	for _, s := range slots {
		want := s.Time != "14:00"
		if s.Available != want {
			t.Errorf("slot %s available=%t, want %t", s.Time, s.Available, want)
		}
		if s.Date != "2025-07-15" {
			t.Errorf("slot date = %s", s.Date)
		}
	}
}

func TestDoctorSlotsBadRequests(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=15-07-2025", f.doctor.ID), nil)
	if rec.Code != http.StatusBadRequest || decodeErrorCode(t, rec) != "invalid_date" {
		t.Errorf("bad date: status %d code %s", rec.Code, decodeErrorCode(t, rec))
	}

	rec = f.do(t, http.MethodGet, "/doctors/not-a-uuid/slots?date=2025-07-15", nil)
	if rec.Code != http.StatusBadRequest || decodeErrorCode(t, rec) != "invalid_id" {
		t.Errorf("bad id: status %d code %s", rec.Code, decodeErrorCode(t, rec))
	}
}

func TestDoctorSlotsSourceUnavailable(t *testing.T) {
	f := newAPIFixture(t)
	f.store.listErr = fmt.Errorf("connection refused")

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=2025-07-15", f.doctor.ID), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "source_unavailable" {
		t.Errorf("error code = %s", code)
	}
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	body := CreateAppointmentRequest{
		PatientID: f.patient.ID.String(),
		DoctorID:  f.doctor.ID.String(),
		Date:      "2025-07-15",
		Time:      "10:00",
		Reason:    "chequeo anual",
	}

	rec := f.do(t, http.MethodPost, "/appointments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var appt AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.Status != "PENDING" || appt.Date != "2025-07-15" || appt.Time != "10:00" {
		t.Errorf("unexpected appointment %+v", appt)
	}

	// Same slot again conflicts.
	rec = f.do(t, http.MethodPost, "/appointments", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "slot_already_booked" {
		t.Errorf("error code = %s", code)
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name     string
		body     CreateAppointmentRequest
		wantCode string
		want     int
	}{
		{
			name:     "bad patient id",
			body:     CreateAppointmentRequest{PatientID: "nope", DoctorID: f.doctor.ID.String(), Date: "2025-07-15", Time: "10:00"},
			wantCode: "invalid_id",
			want:     http.StatusBadRequest,
		},
		{
			name:     "bad time",
			body:     CreateAppointmentRequest{PatientID: f.patient.ID.String(), DoctorID: f.doctor.ID.String(), Date: "2025-07-15", Time: "10am"},
			wantCode: "invalid_time",
			want:     http.StatusBadRequest,
		},
		{
			name:     "off grid slot",
			body:     CreateAppointmentRequest{PatientID: f.patient.ID.String(), DoctorID: f.doctor.ID.String(), Date: "2025-07-15", Time: "07:00"},
			wantCode: "validation_failed",
			want:     http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/appointments", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.want, rec.Body.String())
			}
			if code := decodeErrorCode(t, rec); code != tc.wantCode {
				t.Errorf("error code = %s, want %s", code, tc.wantCode)
			}
		})
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	appt := booking.Appointment{
		ID:        uuid.New(),
		PatientID: f.patient.ID,
		DoctorID:  f.doctor.ID,
		Date:      calendar.LocalDate{Year: 2025, Month: 7, Day: 15},
		Time:      calendar.ClockTime(10, 0),
		Status:    booking.StatusPending,
	}
	f.store.put(appt)
	f.store.put(booking.Appointment{
		ID:       uuid.New(),
		DoctorID: f.doctor.ID,
		Date:     calendar.LocalDate{Year: 2025, Month: 7, Day: 15},
		Time:     calendar.ClockTime(11, 0),
		Status:   booking.StatusPending,
	})

	rec := f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule", RescheduleRequest{Date: "2025-07-16", Time: "09:00"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	moved, _ := f.store.GetAppointment(context.Background(), appt.ID)
	if moved.Status != booking.StatusRescheduled || moved.Time != calendar.ClockTime(9, 0) {
		t.Errorf("appointment after move: %+v", moved)
	}

	// Onto the other appointment's slot conflicts.
	rec = f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule", RescheduleRequest{Date: "2025-07-15", Time: "11:00"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/reschedule", RescheduleRequest{Date: "2025-07-16", Time: "09:15"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown appointment status = %d, want 404", rec.Code)
	}
}

func TestUpdateStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	appt := booking.Appointment{
		ID:       uuid.New(),
		DoctorID: f.doctor.ID,
		Date:     calendar.LocalDate{Year: 2025, Month: 7, Day: 15},
		Time:     calendar.ClockTime(10, 0),
		Status:   booking.StatusPending,
	}
	f.store.put(appt)

	rec := f.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", UpdateStatusRequest{Status: "ATTENDED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "ATTENDED" {
		t.Errorf("status = %s, want ATTENDED", out.Status)
	}

	// Attended appointments cannot transition further.
	rec = f.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", UpdateStatusRequest{Status: "CANCELLED"})
	if rec.Code != http.StatusConflict || decodeErrorCode(t, rec) != "invalid_status_transition" {
		t.Errorf("settled transition: status %d code %s", rec.Code, decodeErrorCode(t, rec))
	}

	rec = f.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", UpdateStatusRequest{Status: "PENDING"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PENDING target status = %d, want 400", rec.Code)
	}
}

func TestFindPatientByDNIEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/patients/dni/70012345", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var p PatientResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.NationalID != "70012345" || !p.Registered {
		t.Errorf("patient = %+v", p)
	}

	rec = f.do(t, http.MethodGet, "/patients/dni/99999999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown dni status = %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/patients/dni/12345", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("short dni status = %d, want 422", rec.Code)
	}
}

func TestSpecialtyAndDoctorListing(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/specialties", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("specialties status = %d", rec.Code)
	}
	var specialties []SpecialtyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &specialties); err != nil {
		t.Fatal(err)
	}
	if len(specialties) != 1 || specialties[0].Name != "Dermatología" {
		t.Errorf("specialties = %+v", specialties)
	}

	rec = f.do(t, http.MethodGet, "/specialties/"+specialties[0].ID.String()+"/doctors", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("doctors status = %d", rec.Code)
	}
	var doctors []DoctorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &doctors); err != nil {
		t.Fatal(err)
	}
	if len(doctors) != 1 || doctors[0].ID != f.doctor.ID {
		t.Errorf("doctors = %+v", doctors)
	}

	rec = f.do(t, http.MethodGet, "/specialties/"+uuid.NewString()+"/doctors", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown specialty status = %d, want empty 200", rec.Code)
	}
}

func TestCreatePatientEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/patients", CreatePatientRequest{
		NationalID: "41418080",
		FirstName:  "Carla",
		LastName:   "Torres",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var p PatientResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID == uuid.Nil || !p.Registered {
		t.Errorf("created patient = %+v", p)
	}
}
