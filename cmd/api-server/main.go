package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinisys/clinic-scheduling/internal/api"
	"github.com/clinisys/clinic-scheduling/internal/booking"
	"github.com/clinisys/clinic-scheduling/internal/config"
	"github.com/clinisys/clinic-scheduling/internal/db"
	"github.com/clinisys/clinic-scheduling/internal/metrics"
	redisclient "github.com/clinisys/clinic-scheduling/internal/redis"
	"github.com/clinisys/clinic-scheduling/internal/reniec"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s working_hours=%s-%s/%dm",
		cfg.Env, cfg.HTTPPort, cfg.WorkingHours.Start, cfg.WorkingHours.End, cfg.WorkingHours.Interval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(cfg.PostgresDSN); err != nil {
		log.Fatalf("migration error: %v", err)
	}
	log.Println("schema up to date")

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
	log.Println("connected to Redis")

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	store := booking.NewPgStore(pgPool, locker)
	svc := booking.NewService(store, cfg.WorkingHours, cfg.IntradayCutoff)

	var identity booking.IdentityLookup
	if cfg.ReniecBaseURL != "" {
		identity = reniec.NewClient(cfg.ReniecBaseURL, cfg.ReniecToken, cfg.ReniecTimeout)
		log.Printf("reniec lookup enabled at %s", cfg.ReniecBaseURL)
	}

	collector := metrics.NewCollector()

	router := api.NewRouter(api.RouterConfig{
		Service:     svc,
		Specialties: store,
		Doctors:     store,
		Patients:    store,
		Identity:    identity,
		Collector:   collector,
		PgPool:      pgPool,
		Redis:       rdb,
		Env:         cfg.Env,
		Version:     version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
