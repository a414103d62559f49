// Conveyor Worker — выполняет task'и из очереди брокера.
//
// Worker:
//   - Получает task'и из RabbitMQ (at-least-once, ack после завершения)
//   - Находит handler по имени task и выполняет его
//   - Реализует retry с exponential backoff
//   - Пишет статусы и результаты в Postgres result store
//   - Отвечает на управляющие сообщения (ping, stats, shutdown)
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/taskproc"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := taskproc.TaskConfig{
		QueueName:  envOr("TASK_QUEUE", "conveyor"),
		MaxRetries: envInt("MAX_RETRIES", 3),
		Backend: taskproc.BackendConfig{
			AMQP: &taskproc.AMQPBackend{
				BrokerURL:         envOr("BROKER_URL", mq.DefaultURL()),
				ResultStoreURL:    envOr("DATABASE_URL", repo.DefaultDSN()),
				WorkerConcurrency: envInt("WORKER_CONCURRENCY", 4),
			},
		},
	}

	adapter, err := taskproc.NewAdapter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize task processor", "error", err)
		os.Exit(1)
	}
	logger.Info("task processor initialized", "queue", cfg.QueueName)

	registerBuiltins(adapter)

	if err := adapter.StartConsumer(ctx, nil); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()

	// Остановка адресная: соседние воркеры на той же очереди
	// продолжают работать
	if err := adapter.StopConsumer(stopCtx, 10*time.Second); err != nil {
		logger.Error("failed to stop consumer", "error", err)
	}
	if err := adapter.Close(stopCtx); err != nil {
		logger.Error("close error", "error", err)
	}
	logger.Info("conveyor-worker stopped")
}

// registerBuiltins регистрирует служебные task'и, доступные в любом
// деплойменте: smoke-тесты очереди и отладка расписаний.
func registerBuiltins(adapter taskproc.Adapter) {
	// echo возвращает свои аргументы как есть
	adapter.RegisterTaskHandle("echo", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return map[string]any{"args": args, "kwargs": kwargs}, nil
	})

	// sleep спит заданное число секунд (первый аргумент)
	adapter.RegisterTaskHandle("sleep", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("sleep: missing duration argument")
		}
		sec, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("sleep: duration must be a number, got %T", args[0])
		}

		select {
		case <-time.After(time.Duration(sec * float64(time.Second))):
			return map[string]any{"slept_sec": sec}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
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
