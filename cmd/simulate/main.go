// Command simulate hammers one appointment slot with concurrent booking
// requests and verifies that exactly one of them wins. It exercises the
// no-double-booking invariant end to end: API, service re-check, Redis slot
// lock and the partial unique index underneath.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinisys/clinic-scheduling/internal/calendar"
	"github.com/clinisys/clinic-scheduling/internal/db"
)

type simConfig struct {
	APIBaseURL   string
	PostgresDSN  string
	Workers      int
	Rounds       int
	PatientLimit int
}

func loadConfig() simConfig {
	return simConfig{
		APIBaseURL:   getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		Workers:      getInt("SIM_WORKERS", 16),
		Rounds:       getInt("SIM_ROUNDS", 10),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 100),
	}
}

type dataPool struct {
	DoctorID uuid.UUID
	Patients []uuid.UUID
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadConfig()
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	if cfg.Workers < 2 {
		log.Fatal("SIM_WORKERS must be at least 2 to produce contention")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	data, err := loadDataPool(context.Background(), pool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("simulating against doctor=%s with %d patients, %d workers, %d rounds",
		data.DoctorID, len(data.Patients), cfg.Workers, cfg.Rounds)

	client := &http.Client{Timeout: 10 * time.Second}

	// Target far enough in the future that the seeded data cannot collide.
	date := calendar.DateOf(time.Now().AddDate(0, 1, 0))
	failures := 0

	for round := 0; round < cfg.Rounds; round++ {
		slot := calendar.ClockTime(9, 0).AddMinutes(15 * round)
		wins, conflicts, errs := raceOneSlot(client, cfg, data, date, slot)

		status := "ok"
		if wins != 1 {
			status = "INVARIANT VIOLATED"
			failures++
		}
		log.Printf("round=%d slot=%s %s: created=%d conflicts=%d errors=%d",
			round, slot, status, wins, conflicts, errs)
	}

	if failures > 0 {
		log.Fatalf("%d/%d rounds violated the single-booking invariant", failures, cfg.Rounds)
	}
	log.Printf("all %d rounds kept exactly one booking per slot", cfg.Rounds)
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg simConfig) (*dataPool, error) {
	data := &dataPool{}

	err := pool.QueryRow(ctx, `SELECT id FROM doctors LIMIT 1`).Scan(&data.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("pick doctor: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		data.Patients = append(data.Patients, id)
	}
	if len(data.Patients) == 0 {
		return nil, fmt.Errorf("no patients seeded, run cmd/seed first")
	}

	return data, rows.Err()
}

// raceOneSlot fires Workers concurrent create requests at the same slot and
// counts the outcomes.
func raceOneSlot(client *http.Client, cfg simConfig, data *dataPool, date calendar.LocalDate, slot calendar.TimeOfDay) (wins, conflicts, errs int) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for i := 0; i < cfg.Workers; i++ {
		patient := data.Patients[i%len(data.Patients)]
		wg.Add(1)
		go func() {
			defer wg.Done()

			body, _ := json.Marshal(map[string]string{
				"patient_id": patient.String(),
				"doctor_id":  data.DoctorID.String(),
				"date":       date.ISO(),
				"time":       slot.String(),
			})

			resp, err := client.Post(cfg.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs++
				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch resp.StatusCode {
			case http.StatusCreated:
				wins++
			case http.StatusConflict:
				conflicts++
			default:
				errs++
			}
		}()
	}

	wg.Wait()
	return wins, conflicts, errs
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
