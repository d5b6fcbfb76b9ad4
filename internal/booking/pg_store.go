package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
	redisclient "github.com/clinisys/clinic-scheduling/internal/redis"
)

// PgStore implements the appointment, patient, doctor and specialty ports on
// Postgres. The partial unique index on (doctor_id, date, slot_minutes) for
// blocking statuses is what actually enforces the no-double-booking
// invariant; writes additionally run under a short per-slot Redis lock to
// shrink the window in which two receptionists race for the same slot.
type PgStore struct {
	pool   *pgxpool.Pool
	locker redisclient.Locker
}

func NewPgStore(pool *pgxpool.Pool, locker redisclient.Locker) *PgStore {
	return &PgStore{pool: pool, locker: locker}
}

const uniqueViolation = "23505"

// Scan helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a       Appointment
		date    time.Time
		minutes int
	)
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&minutes,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Date = calendar.DateOf(date)
	a.Time = calendar.TimeOfDay(minutes)
	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.NationalID,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
		&p.Email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	p.Registered = true
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.FirstName,
		&d.LastName,
		&d.SpecialtyID,
		&d.LicenseNo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

const appointmentColumns = `id, patient_id, doctor_id, date, slot_minutes, status, reason, created_at, updated_at`

// AppointmentSource

func (s *PgStore) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date calendar.LocalDate) ([]BookedTime, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_minutes, status
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date.Time(time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BookedTime
	for rows.Next() {
		var (
			minutes int
			status  Status
		)
		if err := rows.Scan(&minutes, &status); err != nil {
			return nil, err
		}
		result = append(result, BookedTime{Time: calendar.TimeOfDay(minutes), Status: status})
	}
	return result, rows.Err()
}

func (s *PgStore) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY date, slot_minutes
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// BookingSink

func (s *PgStore) Create(ctx context.Context, patientID, doctorID uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay, reason string) (*Appointment, error) {
	var created *Appointment

	key := redisclient.SlotKey(doctorID, date.ISO(), at.String())
	err := s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		row := s.pool.QueryRow(lockCtx, `
			INSERT INTO appointments (id, patient_id, doctor_id, date, slot_minutes, status, reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'PENDING', $6, now(), now())
			RETURNING `+appointmentColumns+`
		`, uuid.New(), patientID, doctorID, date.Time(time.UTC), int(at), reason)

		appt, err := scanAppointment(row)
		if err != nil {
			return mapWriteError(err)
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingConflict
		}
		return nil, err
	}
	return created, nil
}

// RescheduleSink

func (s *PgStore) Reschedule(ctx context.Context, id uuid.UUID, date calendar.LocalDate, at calendar.TimeOfDay) error {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	key := redisclient.SlotKey(appt.DoctorID, date.ISO(), at.String())
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		tag, err := s.pool.Exec(lockCtx, `
			UPDATE appointments
			SET date = $2,
			    slot_minutes = $3,
			    status = 'RESCHEDULED',
			    updated_at = now()
			WHERE id = $1
			  AND status IN ('PENDING', 'RESCHEDULED')
		`, id, date.Time(time.UTC), int(at))
		if err != nil {
			return mapWriteError(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInvalidStatusTransition
		}
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBookingConflict
	}
	return err
}

// StatusUpdater

func (s *PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

// PatientDirectory

func (s *PgStore) FindByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, national_id, first_name, last_name, phone, email
		FROM patients
		WHERE national_id = $1
	`, nationalID)
	return scanPatient(row)
}

func (s *PgStore) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO patients (id, national_id, first_name, last_name, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, national_id, first_name, last_name, phone, email
	`, uuid.New(), p.NationalID, p.FirstName, p.LastName, p.Phone, p.Email)

	created, err := scanPatient(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (s *PgStore) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, national_id, first_name, last_name, phone, email
		FROM patients
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// DoctorDirectory

const doctorColumns = `id, first_name, last_name, specialty_id, license_no`

func (s *PgStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	return s.queryDoctors(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY last_name, first_name
	`)
}

func (s *PgStore) ListDoctorsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]Doctor, error) {
	return s.queryDoctors(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE specialty_id = $1
		ORDER BY last_name, first_name
	`, specialtyID)
}

func (s *PgStore) queryDoctors(ctx context.Context, sql string, args ...any) ([]Doctor, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *PgStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

// SpecialtyDirectory

func (s *PgStore) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name
		FROM specialties
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Specialty
	for rows.Next() {
		var sp Specialty
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, err
		}
		result = append(result, sp)
	}
	return result, rows.Err()
}

func (s *PgStore) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	var sp Specialty
	err := s.pool.QueryRow(ctx, `
		SELECT id, name
		FROM specialties
		WHERE id = $1
	`, id).Scan(&sp.ID, &sp.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpecialtyNotFound
		}
		return nil, err
	}
	return &sp, nil
}

// mapWriteError turns the unique-violation raised by the blocking-status
// index into the domain conflict error.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return ErrBookingConflict
		case "23514", "23503": // check and foreign key violations
			return fmt.Errorf("%w: %s", ErrValidation, pgErr.Message)
		}
	}
	return err
}
