package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/clinisys/clinic-scheduling/internal/booking"
	"github.com/clinisys/clinic-scheduling/internal/config"
	"github.com/clinisys/clinic-scheduling/internal/db"
	redisclient "github.com/clinisys/clinic-scheduling/internal/redis"
)

// The no-show worker sweeps appointments that stayed PENDING or RESCHEDULED
// past their slot plus a grace period and cancels them, freeing the slot for
// the availability resolver.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("noshow-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running noshow worker in env=%s interval=%s grace=%s", cfg.Env, cfg.WorkerInterval, cfg.NoShowAfter)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	store := booking.NewPgStore(pgPool, locker)
	svc := booking.NewService(store, cfg.WorkingHours, cfg.IntradayCutoff)

	// Run once at startup
	runOnce(rootCtx, svc, store, cfg.NoShowAfter)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, store, cfg.NoShowAfter)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, store *booking.PgStore, grace time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	doctors, err := store.ListDoctors(runCtx)
	if err != nil {
		log.Printf("noshow run error: list doctors: %v", err)
		return
	}
	ids := make([]uuid.UUID, len(doctors))
	for i, d := range doctors {
		ids[i] = d.ID
	}

	cancelled, err := svc.CancelStale(runCtx, ids, grace)
	if err != nil {
		log.Printf("noshow run error: %v", err)
		return
	}
	log.Printf("noshow run complete: cancelled=%d in %s", cancelled, time.Since(start))
}
