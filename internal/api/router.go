package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinisys/clinic-scheduling/internal/booking"
	"github.com/clinisys/clinic-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service     *booking.Service
	Specialties booking.SpecialtyDirectory
	Doctors     booking.DoctorDirectory
	Patients    booking.PatientDirectory
	Identity    booking.IdentityLookup
	Collector   *metrics.Collector
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Collector))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Collector.Handler())

	h := NewHandlers(cfg.Service, cfg.Specialties, cfg.Doctors, cfg.Patients, cfg.Identity, cfg.Collector)

	r.Get("/specialties", h.listSpecialties)
	r.Get("/specialties/{id}/doctors", h.listDoctorsBySpecialty)

	r.Get("/doctors", h.listDoctors)
	r.Get("/doctors/{id}/slots", h.doctorSlots)
	r.Get("/doctors/{id}/appointments", h.doctorAppointments)

	r.Post("/appointments", h.createAppointment)
	r.Post("/appointments/{id}/reschedule", h.rescheduleAppointment)
	r.Patch("/appointments/{id}/status", h.updateAppointmentStatus)

	r.Get("/patients", h.listPatients)
	r.Get("/patients/dni/{dni}", h.findPatientByNationalID)
	r.Post("/patients", h.createPatient)

	return r
}
