package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinisys/clinic-scheduling/internal/db"
)

var specialties = []string{
	"Cardiología",
	"Pediatría",
	"Dermatología",
	"Medicina General",
	"Traumatología",
	"Endocrinología",
	"Neurología",
	"Psiquiatría",
	"Oftalmología",
	"Otorrinolaringología",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	if err := db.RunMigrations(dsn); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	specialtyIDs, err := seedSpecialties(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed specialties: %v", err)
	}
	if err := seedDoctors(context.Background(), pool, specialtyIDs, 40); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedSpecialties(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	log.Printf("seeding %d specialties", len(specialties))

	ids := make([]uuid.UUID, 0, len(specialties))
	for _, name := range specialties {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO specialties (id, name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, id, name)
		if err != nil {
			return nil, err
		}

		// The insert may have been a no-op on reruns; read the real id back.
		if err := pool.QueryRow(ctx, `SELECT id FROM specialties WHERE name = $1`, name).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	log.Println("specialties seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, specialtyIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		specialtyID := specialtyIDs[gofakeit.Number(0, len(specialtyIDs)-1)]
		license := fmt.Sprintf("CMP-%05d", gofakeit.Number(10000, 99999))

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, first_name, last_name, specialty_id, license_no, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, uuid.New(), gofakeit.FirstName(), gofakeit.LastName(), specialtyID, license)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			dni := fmt.Sprintf("%08d", gofakeit.Number(10000000, 99999999))

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, national_id, first_name, last_name, phone, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
				ON CONFLICT (national_id) DO NOTHING
			`, uuid.New(), dni, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Phone(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
