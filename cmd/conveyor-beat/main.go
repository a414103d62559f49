// Conveyor Beat — отправляет периодические task'и по расписаниям.
//
// Beat опрашивает таблицу schedules раз в секунду и отправляет task'и
// due расписаний через тот же adapter, что и обычный enqueue.
//
// Запускать можно несколько экземпляров: лидерство разыгрывается через
// Postgres advisory lock, а идентификаторы отправляемых task'ов
// детерминированы, поэтому смена лидера дубликатов не создаёт.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/taskproc"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const beatLockKey int64 = 730015

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-beat")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbURL := envOr("DATABASE_URL", repo.DefaultDSN())

	// DB pool
	pool, err := repo.NewPool(ctx, dbURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	schedules := repo.NewScheduleRepo(pool)
	if err := schedules.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	cfg := taskproc.TaskConfig{
		QueueName:  envOr("TASK_QUEUE", "conveyor"),
		MaxRetries: envInt("MAX_RETRIES", 3),
		Backend: taskproc.BackendConfig{
			AMQP: &taskproc.AMQPBackend{
				BrokerURL:         envOr("BROKER_URL", mq.DefaultURL()),
				ResultStoreURL:    dbURL,
				WorkerConcurrency: 1,
			},
		},
	}

	adapter, err := taskproc.NewAdapter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize task processor", "error", err)
		os.Exit(1)
	}
	defer adapter.Close(context.Background())

	sched := scheduler.New(schedules, adapter, logger)

	// beat loop: лидер делает тики, остальные ждут lock
	go func() {
		tk := time.NewTicker(1 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", beatLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				if !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", beatLockKey).Scan(&ok); err != nil {
						logger.Error("advisory lock error", "error", err)
						continue
					}
					hasLock = ok
					if ok {
						logger.Info("acquired beat leadership")
					}
				}

				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				if err := sched.Tick(ctx); err != nil {
					logger.Error("beat tick failed", "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("BEAT_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("conveyor-beat stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
