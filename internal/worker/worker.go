package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ResultStore — операции result store, нужные воркеру.
// Реализуется repo.ResultRepo.
type ResultStore interface {
	Get(ctx context.Context, id string) (*domain.TaskResult, error)
	MarkStarted(ctx context.Context, id, queue, name string, attempt int, createdAt time.Time) error
	MarkRetry(ctx context.Context, id string, attempt int, errMsg string) error
	MarkSuccess(ctx context.Context, id string, result json.RawMessage) error
	MarkFailure(ctx context.Context, id string, errMsg string) error
}

// Worker выполняет task'и из одной очереди.
//
// Worker:
//   - Получает task'и из очереди брокера
//   - Находит handler по имени task в реестре
//   - Выполняет с retry (экспоненциальный backoff, без jitter)
//   - Персистит каждый переход статуса в result store
//   - Подтверждает доставку брокеру только после завершения (ack-late)
//   - Отвечает на управляющие сообщения (ping, stats, shutdown)
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	queue    string
	identity string

	registry *Registry
	results  ResultStore
	conn     *mq.Connection

	concurrency int
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration

	logger    *slog.Logger
	cancel    context.CancelFunc
	startedAt time.Time
	stats     stats
}

// Config — конфигурация Worker.
type Config struct {
	// Queue — очередь для потребления.
	Queue string

	// Identity — уникальная идентификация воркера для адресных
	// управляющих сообщений.
	Identity string

	// Registry — реестр handler'ов.
	Registry *Registry

	// Results — result store.
	Results ResultStore

	// Conn — соединение с брокером.
	Conn *mq.Connection

	// Concurrency — количество параллельных слотов выполнения (default: 1).
	Concurrency int

	// MaxRetries — максимум повторных попыток при ошибке handler'а.
	MaxRetries int

	// BackoffBase — задержка перед первым retry (default: 1s).
	BackoffBase time.Duration

	// BackoffCap — верхняя граница задержки retry (default: 60s).
	BackoffCap time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}

	backoffCap := cfg.BackoffCap
	if backoffCap <= 0 {
		backoffCap = DefaultBackoffCap
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Worker{
		queue:       cfg.Queue,
		identity:    cfg.Identity,
		registry:    registry,
		results:     cfg.Results,
		conn:        cfg.Conn,
		concurrency: concurrency,
		maxRetries:  cfg.MaxRetries,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		logger:      telemetry.WithWorkerID(logger, cfg.Identity),
	}
}

// Identity возвращает идентификацию воркера.
func (w *Worker) Identity() string {
	return w.identity
}

// Run запускает воркер и блокирует до отмены ctx или получения
// управляющего сообщения shutdown.
//
// Запускает:
//   - Consumer очереди task'ов
//   - ControlResponder для управляющих сообщений
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	defer cancel()

	w.startedAt = time.Now()

	w.logger.Info("starting worker",
		"queue", w.queue,
		"concurrency", w.concurrency,
		"max_retries", w.maxRetries,
		"tasks", w.registry.Names(),
	)

	consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:       w.queue,
		Handler:     w.handleTaskSubmit,
		Prefetch:    w.concurrency,
		Concurrency: w.concurrency,
	})

	responder := mq.NewControlResponder(w.conn, w.logger, w.identity, w.handleControl)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("task consumer error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := responder.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("control responder error", "error", err)
		}
	}()

	wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Stop инициирует остановку воркера, не дожидаясь завершения.
// Выполняющиеся task'и получают отмену через context.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// handleTaskSubmit обрабатывает одну доставку task из очереди.
//
// Возвращает error только при инфраструктурных сбоях (result store
// недоступен): такая доставка вернётся в очередь. Ошибки handler'а
// обрабатываются retry-политикой и наружу не выходят.
func (w *Worker) handleTaskSubmit(ctx context.Context, delivery *mq.Delivery) error {
	task, err := mq.ParsePayload[domain.Task](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse task payload", "error", err)
		// Нечитаемый payload — в DLQ, повторная доставка бессмысленна
		delivery.Nack(false)
		return nil
	}

	logger := telemetry.WithTaskID(w.logger, task.ID.String())

	// Отложенное выполнение: ждём ETA
	if task.ETA != nil {
		if wait := time.Until(*task.ETA); wait > 0 {
			logger.Debug("task not due yet, waiting", "eta", task.ETA, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				// Останавливаемся до наступления ETA — вернуть в очередь
				delivery.Nack(true)
				return nil
			}
		}
	}

	// Сверяемся с result store перед выполнением
	current, err := w.results.Get(ctx, task.ID.String())
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("get task state: %w", err)
	}

	if current != nil {
		// Отменённый task не выполняется
		if current.Status == domain.TaskStatusRevoked {
			logger.Info("task revoked, skipping")
			return nil
		}

		// Финальный статус при повторной доставке: результат уже
		// зафиксирован, ack потерялся при падении воркера. Видимых
		// переходов статуса не дублируем.
		if current.Status.IsTerminal() {
			logger.Debug("task already finished, skipping redelivery", "status", current.Status)
			return nil
		}
	}

	return w.execute(ctx, &task, current, logger)
}

// execute выполняет task с retry согласно политике воркера.
//
// Переходы статуса: STARTED → SUCCESS, либо STARTED → RETRY → STARTED →
// ... → FAILURE после maxRetries повторных попыток. current — состояние
// task из result store на момент доставки (nil для первой доставки).
func (w *Worker) execute(ctx context.Context, task *domain.Task, current *domain.TaskResult, logger *slog.Logger) error {
	w.stats.active.Add(1)
	telemetry.TasksActive.Inc()
	started := time.Now()
	defer func() {
		w.stats.active.Add(-1)
		telemetry.TasksActive.Dec()
		telemetry.TaskDuration.Observe(time.Since(started).Seconds())
	}()

	handler, err := w.registry.Get(task.Name)
	if err != nil {
		logger.Error("no handler for task", "task_name", task.Name)
		if markErr := w.results.MarkFailure(ctx, task.ID.String(), err.Error()); markErr != nil {
			return fmt.Errorf("mark task failure: %w", markErr)
		}
		w.finish(domain.TaskStatusFailure)
		return nil
	}

	// Повторная доставка продолжает бюджет попыток с места обрыва:
	// номер попытки восстанавливается из result store, поэтому
	// maxRetries ограничивает попытки суммарно, через потери воркеров,
	// а не на каждую доставку заново.
	attempt := 1
	if current != nil && current.Attempt > 0 {
		switch current.Status {
		case domain.TaskStatusStarted:
			// Воркер погиб посреди попытки — она переигрывается
			attempt = current.Attempt
		case domain.TaskStatusRetry:
			attempt = current.Attempt + 1
		}
	}

	for ; ; attempt++ {
		if err := w.results.MarkStarted(ctx, task.ID.String(), task.Queue, task.Name, attempt, task.CreatedAt); err != nil {
			return fmt.Errorf("mark task started: %w", err)
		}

		logger.Info("task started", "task_name", task.Name, "attempt", attempt)

		result, execErr := w.runHandler(ctx, handler, task)

		if execErr == nil {
			resultJSON, err := json.Marshal(result)
			if err != nil {
				execErr = fmt.Errorf("marshal result: %w", err)
			} else {
				if err := w.results.MarkSuccess(ctx, task.ID.String(), resultJSON); err != nil {
					return fmt.Errorf("mark task success: %w", err)
				}

				logger.Info("task succeeded", "task_name", task.Name, "attempt", attempt)
				w.finish(domain.TaskStatusSuccess)
				return nil
			}
		}

		// Попытки исчерпаны — терминальный FAILURE
		if attempt > w.maxRetries {
			if err := w.results.MarkFailure(ctx, task.ID.String(), execErr.Error()); err != nil {
				return fmt.Errorf("mark task failure: %w", err)
			}

			logger.Warn("task failed",
				"task_name", task.Name,
				"attempt", attempt,
				"error", execErr,
			)
			w.finish(domain.TaskStatusFailure)
			return nil
		}

		if err := w.results.MarkRetry(ctx, task.ID.String(), attempt, execErr.Error()); err != nil {
			return fmt.Errorf("mark task retry: %w", err)
		}

		w.stats.retried.Add(1)
		telemetry.TaskRetriesTotal.Inc()

		delay := Backoff(attempt, w.backoffBase, w.backoffCap)

		logger.Debug("retrying task",
			"task_name", task.Name,
			"attempt", attempt,
			"delay", delay,
			"error", execErr,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Остановка посреди retry: статус RETRY уже в базе,
			// доставка вернётся в очередь и будет выполнена позже
			return ctx.Err()
		}
	}
}

// runHandler вызывает handler, перехватывая панику.
func (w *Worker) runHandler(ctx context.Context, handler Handler, task *domain.Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return handler(ctx, task.Args, task.Kwargs)
}

// finish учитывает завершение task в счётчиках.
func (w *Worker) finish(status domain.TaskStatus) {
	w.stats.processed.Add(1)
	switch status {
	case domain.TaskStatusSuccess:
		w.stats.succeeded.Add(1)
	case domain.TaskStatusFailure:
		w.stats.failed.Add(1)
	}
	telemetry.TasksTotal.WithLabelValues(string(status)).Inc()
}

// stats — операционные счётчики воркера.
// Отдаются в ответ на управляющее сообщение stats.
type stats struct {
	active    atomic.Int64
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// snapshot возвращает текущие значения счётчиков.
func (s *stats) snapshot() map[string]any {
	return map[string]any{
		"active":    s.active.Load(),
		"processed": s.processed.Load(),
		"succeeded": s.succeeded.Load(),
		"failed":    s.failed.Load(),
		"retried":   s.retried.Load(),
	}
}
