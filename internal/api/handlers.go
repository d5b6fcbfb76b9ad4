package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/booking"
	"github.com/clinisys/clinic-scheduling/internal/calendar"
	"github.com/clinisys/clinic-scheduling/internal/metrics"
)

// Handlers serves the scheduling REST surface. Booking and reschedule writes
// go through the service; directory reads go straight to the ports.
type Handlers struct {
	service     *booking.Service
	specialties booking.SpecialtyDirectory
	doctors     booking.DoctorDirectory
	patients    booking.PatientDirectory
	identity    booking.IdentityLookup
	collector   *metrics.Collector
}

func NewHandlers(service *booking.Service, specialties booking.SpecialtyDirectory, doctors booking.DoctorDirectory, patients booking.PatientDirectory, identity booking.IdentityLookup, collector *metrics.Collector) *Handlers {
	return &Handlers{
		service:     service,
		specialties: specialties,
		doctors:     doctors,
		patients:    patients,
		identity:    identity,
		collector:   collector,
	}
}

func (h *Handlers) listSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := h.specialties.ListSpecialties(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]SpecialtyResponse, len(specialties))
	for i, sp := range specialties {
		out[i] = SpecialtyResponse{ID: sp.ID, Name: sp.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.doctors.ListDoctors(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponses(doctors))
}

func (h *Handlers) listDoctorsBySpecialty(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "specialty id")
	if !ok {
		return
	}
	doctors, err := h.doctors.ListDoctorsBySpecialty(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponses(doctors))
}

func toDoctorResponses(doctors []booking.Doctor) []DoctorResponse {
	out := make([]DoctorResponse, len(doctors))
	for i, d := range doctors {
		out[i] = DoctorResponse{
			ID:          d.ID,
			FirstName:   d.FirstName,
			LastName:    d.LastName,
			SpecialtyID: d.SpecialtyID,
			LicenseNo:   d.LicenseNo,
		}
	}
	return out
}

func (h *Handlers) doctorSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "doctor id")
	if !ok {
		return
	}
	date, err := calendar.ParseISO(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.service.SlotsFor(r.Context(), id, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.collector.RecordAvailabilityQuery()
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *Handlers) doctorAppointments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "doctor id")
	if !ok {
		return
	}
	appts, err := h.service.AppointmentsByDoctor(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]AppointmentResponse, len(appts))
	for i := range appts {
		out[i] = toAppointmentResponse(&appts[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	patientID, ok := parseID(w, req.PatientID, "patient_id")
	if !ok {
		return
	}
	doctorID, ok := parseID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}
	date, at, ok := parseSlot(w, req.Date, req.Time)
	if !ok {
		return
	}

	appt, err := h.service.Book(r.Context(), patientID, doctorID, date, at, req.Reason)
	if err != nil {
		if errors.Is(err, booking.ErrBookingConflict) {
			h.collector.RecordBookingConflict()
		}
		writeDomainError(w, err)
		return
	}

	h.collector.RecordBookingCreated()
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "appointment id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	date, at, ok := parseSlot(w, req.Date, req.Time)
	if !ok {
		return
	}

	if err := h.service.Reschedule(r.Context(), id, date, at); err != nil {
		if errors.Is(err, booking.ErrBookingConflict) {
			h.collector.RecordBookingConflict()
		}
		writeDomainError(w, err)
		return
	}

	h.collector.RecordReschedule()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) updateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "appointment id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	var (
		appt *booking.Appointment
		err  error
	)
	switch booking.Status(req.Status) {
	case booking.StatusAttended:
		appt, err = h.service.MarkAttended(r.Context(), id)
	case booking.StatusCancelled:
		appt, err = h.service.Cancel(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be ATTENDED or CANCELLED")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) findPatientByNationalID(w http.ResponseWriter, r *http.Request) {
	dni := chi.URLParam(r, "dni")

	p, err := booking.ResolvePatient(r.Context(), h.patients, h.identity, dni)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(p))
}

func (h *Handlers) listPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patients.ListPatients(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]PatientResponse, len(patients))
	for i := range patients {
		out[i] = toPatientResponse(&patients[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) createPatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	created, err := h.patients.CreatePatient(r.Context(), booking.Patient{
		NationalID: req.NationalID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Email:      req.Email,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(created))
}

// Helpers

func parseID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseSlot(w http.ResponseWriter, rawDate, rawTime string) (calendar.LocalDate, calendar.TimeOfDay, bool) {
	date, err := calendar.ParseISO(rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return calendar.LocalDate{}, 0, false
	}
	at, err := calendar.ParseClock(rawTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
		return calendar.LocalDate{}, 0, false
	}
	return date, at, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSpecialtyNotFound):
		writeError(w, http.StatusNotFound, "specialty_not_found", err.Error())
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingConflict):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrSourceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "source_unavailable", err.Error())
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
