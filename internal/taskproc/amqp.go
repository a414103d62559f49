package taskproc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/worker"
)

// controlWait — окно сбора ответов воркеров на управляющие сообщения.
const controlWait = time.Second

// resultStore — операции result store, нужные адаптеру.
// Реализуется *repo.ResultRepo.
type resultStore interface {
	worker.ResultStore
	Insert(ctx context.Context, id, queue, name string, createdAt time.Time) (bool, error)
	Revoke(ctx context.Context, id string) (bool, error)
}

// taskPublisher — публикация task в очередь.
// Реализуется *mq.Publisher.
type taskPublisher interface {
	PublishTask(ctx context.Context, task *domain.Task) error
}

// AMQPAdapter — реализация Adapter поверх RabbitMQ (брокер) и
// PostgreSQL (result store).
//
// Ключевые свойства:
//   - ack только после завершения task (потеря воркера = повторная
//     доставка, не потеря task'а)
//   - результаты всегда персистятся: GetTaskStatus читает базу
//   - retry с экспоненциальным backoff, cap 60s, без jitter
//   - неблокирующие варианты операций не поддерживаются и отклоняются
//     с ErrAsyncUnsupported
type AMQPAdapter struct {
	cfg    TaskConfig
	logger *slog.Logger

	conn      *mq.Connection
	publisher taskPublisher
	pool      *pgxpool.Pool
	results   resultStore
	registry  *worker.Registry

	sup supervisor

	// rootCtx — родительский контекст consumer-горутин; отменяется
	// в Shutdown, чтобы не пережившие StopConsumer воркеры завершились.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	initialized bool
	closed      bool
}

// NewAMQPAdapter создаёт AMQPAdapter по конфигурации.
//
// Конфигурация обязана нести AMQP-вариант backend'а: несоответствие —
// фатальная ошибка конструирования, молча не коэрсится.
func NewAMQPAdapter(cfg TaskConfig, logger *slog.Logger) (*AMQPAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend.AMQP == nil {
		return nil, fmt.Errorf("%w: amqp adapter got %q backend config", ErrConfigMismatch, cfg.Backend.Variant())
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("queue", cfg.QueueName)

	return &AMQPAdapter{
		cfg:      cfg,
		logger:   logger,
		registry: worker.NewRegistry(),
		sup:      supervisor{logger: logger},
	}, nil
}

// Initialize подключает адаптер к брокеру и result store.
// Недоступность любого из них — ошибка сразу, не отложенно.
func (a *AMQPAdapter) Initialize(ctx context.Context) error {
	if a.closed {
		return ErrAdapterClosed
	}
	if a.initialized {
		return ErrAlreadyInitialized
	}

	be := a.cfg.Backend.AMQP

	conn, err := mq.NewConnection(be.BrokerURL, a.logger)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	if err := mq.DeclareTaskQueue(conn, a.cfg.QueueName, be.TransportOptions); err != nil {
		conn.Close()
		return err
	}
	if err := mq.DeclareControlExchange(conn); err != nil {
		conn.Close()
		return err
	}

	pool, err := repo.NewPool(ctx, be.ResultStoreURL)
	if err != nil {
		conn.Close()
		return fmt.Errorf("connect result store: %w", err)
	}

	results := repo.NewResultRepo(pool)
	if err := results.EnsureSchema(ctx); err != nil {
		conn.Close()
		pool.Close()
		return err
	}

	a.conn = conn
	a.publisher = mq.NewPublisher(conn, a.logger)
	a.pool = pool
	a.results = results
	a.rootCtx, a.rootCancel = context.WithCancel(context.Background())
	a.initialized = true

	a.logger.Info("adapter initialized",
		"backend", a.cfg.Backend.Variant(),
		"max_retries", a.cfg.MaxRetries,
	)
	return nil
}

func (a *AMQPAdapter) ensureReady() error {
	if a.closed {
		return ErrAdapterClosed
	}
	if !a.initialized {
		return ErrNotInitialized
	}
	return nil
}

// RegisterTaskHandle связывает имя task с handler'ом.
// Вызывается до StartConsumer: реестр работающего воркера не меняется.
func (a *AMQPAdapter) RegisterTaskHandle(name string, handler worker.Handler) error {
	if a.sup.running() {
		return ErrConsumerRunning
	}
	return a.registry.Register(name, handler)
}

// EnqueueTask отправляет task в очередь адаптера.
//
// Блокирующий сетевой вызов: возвращается после записи PENDING в
// result store и подтверждения публикации брокером, но не ждёт
// выполнения task'а.
func (a *AMQPAdapter) EnqueueTask(ctx context.Context, name string, args []any, kwargs map[string]any, opts *EnqueueOptions) (*domain.TaskResult, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, worker.ErrEmptyTaskName
	}

	var o EnqueueOptions
	if opts != nil {
		o = *opts
	}

	id := uuid.New()
	if o.TaskID != "" {
		parsed, err := uuid.Parse(o.TaskID)
		if err != nil {
			return nil, fmt.Errorf("parse task id: %w", err)
		}
		id = parsed
	}

	createdAt := time.Now()

	var eta *time.Time
	if o.Countdown > 0 {
		t := createdAt.Add(o.Countdown)
		eta = &t
	}

	task := &domain.Task{
		ID:        id,
		Name:      name,
		Queue:     a.cfg.QueueName,
		Args:      args,
		Kwargs:    kwargs,
		ETA:       eta,
		Options:   o.Extra,
		CreatedAt: createdAt,
	}

	inserted, err := a.results.Insert(ctx, id.String(), a.cfg.QueueName, name, createdAt)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return a.enqueueExisting(ctx, task)
	}

	if err := a.publisher.PublishTask(ctx, task); err != nil {
		return nil, err
	}

	return &domain.TaskResult{
		ID:        id.String(),
		Status:    domain.TaskStatusPending,
		CreatedAt: createdAt,
	}, nil
}

// enqueueExisting обрабатывает повторную отправку с уже занятым id.
//
// Для task в PENDING публикация повторяется: первая отправка могла
// упасть между записью строки и подтверждением брокером, и без
// повторной публикации task остался бы в PENDING навсегда, а его
// сообщение так и не попало бы в очередь. Возможный дубликат доставки
// допустим: доставка at-least-once, воркер пропускает терминальные и
// отменённые task'и. Для task в любом другом статусе сообщение уже
// дошло до воркера — публиковать второй раз нечего.
func (a *AMQPAdapter) enqueueExisting(ctx context.Context, task *domain.Task) (*domain.TaskResult, error) {
	current, err := a.results.Get(ctx, task.ID.String())
	if err != nil {
		return nil, err
	}

	if current.Status != domain.TaskStatusPending {
		a.logger.Debug("task already enqueued", "task_id", task.ID, "status", current.Status)
		return current, nil
	}

	a.logger.Debug("task already enqueued and still pending, republishing", "task_id", task.ID)
	if err := a.publisher.PublishTask(ctx, task); err != nil {
		return nil, err
	}
	return current, nil
}

// EnqueueTaskAsync не поддерживается AMQP-бэкендом.
// Отказ явный и немедленный: деградации в блокирующий вызов нет.
func (a *AMQPAdapter) EnqueueTaskAsync(ctx context.Context, name string, args []any, kwargs map[string]any, opts *EnqueueOptions) (<-chan TaskOutcome, error) {
	return nil, fmt.Errorf("amqp backend: %w", ErrAsyncUnsupported)
}

// GetTaskStatus возвращает состояние task из result store.
func (a *AMQPAdapter) GetTaskStatus(ctx context.Context, id string) (*domain.TaskResult, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	return a.results.Get(ctx, id)
}

// GetTaskStatusAsync не поддерживается AMQP-бэкендом.
func (a *AMQPAdapter) GetTaskStatusAsync(ctx context.Context, id string) (<-chan TaskOutcome, error) {
	return nil, fmt.Errorf("amqp backend: %w", ErrAsyncUnsupported)
}

// CancelTask запрашивает отмену task.
//
// Отмена advisory: принимается только для task'ов, ещё не начавших
// выполняться (PENDING, RETRY). Уже выполняющийся task доработает до
// естественного терминального статуса — эта гонка неустранима и
// отражена в возвращаемом значении, а не скрыта.
func (a *AMQPAdapter) CancelTask(ctx context.Context, id string) (bool, error) {
	if err := a.ensureReady(); err != nil {
		return false, err
	}

	accepted, err := a.results.Revoke(ctx, id)
	if err != nil {
		return false, err
	}

	a.logger.Info("task cancel requested", "task_id", id, "accepted", accepted)
	return accepted, nil
}

// GetMetrics собирает операционные счётчики всех воркеров.
//
// Схема ответа определяется воркерами и передаётся как есть:
// map worker identity → счётчики.
func (a *AMQPAdapter) GetMetrics(ctx context.Context) (map[string]any, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}

	replies, err := mq.CollectReplies(ctx, a.conn, a.logger, mq.ControlStats, nil, controlWait)
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]any, len(replies))
	for _, reply := range replies {
		metrics[reply.Identity] = reply.Payload
	}
	return metrics, nil
}

// StartConsumer запускает фоновое выполнение task'ов.
//
// Идемпотентен: повторный вызов при работающем consumer'е пишет в лог
// и возвращает nil, второй воркер не запускается.
func (a *AMQPAdapter) StartConsumer(ctx context.Context, opts *ConsumerOptions) error {
	if err := a.ensureReady(); err != nil {
		return err
	}

	concurrency := a.cfg.Backend.AMQP.WorkerConcurrency
	if opts != nil && opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}

	identity := fmt.Sprintf("conveyor@%s", uuid.New())

	w := worker.New(worker.Config{
		Queue:       a.cfg.QueueName,
		Identity:    identity,
		Registry:    a.registry,
		Results:     a.results,
		Conn:        a.conn,
		Concurrency: concurrency,
		MaxRetries:  a.cfg.MaxRetries,
		Logger:      a.logger,
	})

	started := a.sup.start(a.rootCtx, identity, func(ctx context.Context) {
		if err := w.Run(ctx); err != nil {
			a.logger.Error("worker exited with error", "worker_id", identity, "error", err)
		}
	}, w.Stop)

	if !started {
		a.logger.Info("consumer is already running, ignoring start")
		return nil
	}

	a.logger.Info("consumer started", "worker_id", identity, "concurrency", concurrency)
	return nil
}

// StopConsumer останавливает consumer этого адаптера.
//
// Сигнал остановки адресный: доставляется только воркеру с identity
// этого адаптера, не затрагивая чужих воркеров на той же очереди.
// Ожидание завершения ограничено timeout; по его истечении handle
// освобождается с предупреждением в логе — медленная остановка не
// считается ошибкой и не блокирует вызывающую сторону.
func (a *AMQPAdapter) StopConsumer(ctx context.Context, timeout time.Duration) error {
	if err := a.ensureReady(); err != nil {
		return err
	}

	a.sup.stopWait(timeout, func(identity string) error {
		return mq.PublishControl(ctx, a.conn, mq.ControlShutdown, []string{identity})
	})
	return nil
}

// Shutdown — полная остановка обработки.
//
// В отличие от StopConsumer сигнал не адресный: shutdown уходит
// broadcast'ом ВСЕМ воркерам очереди на управляющем обменнике, после
// чего локальные ресурсы освобождаются через Close. Ограниченного
// ожидания завершения воркеров нет.
func (a *AMQPAdapter) Shutdown(ctx context.Context) error {
	if a.closed {
		return nil
	}

	if a.initialized {
		a.logger.Info("shutting down adapter")
		if err := mq.PublishControl(ctx, a.conn, mq.ControlShutdown, nil); err != nil {
			a.logger.Warn("failed to broadcast shutdown", "error", err)
		}
	}

	return a.Close(ctx)
}

// Close освобождает локальные ресурсы адаптера: останавливает
// собственный consumer и закрывает соединения. Чужие воркеры не
// затрагиваются — в отличие от Shutdown сигналов в управляющий
// обменник не уходит.
func (a *AMQPAdapter) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	if !a.initialized {
		a.closed = true
		return nil
	}

	a.sup.stopNow()
	a.rootCancel()

	if err := a.conn.Close(); err != nil {
		a.logger.Warn("failed to close broker connection", "error", err)
	}
	a.pool.Close()

	a.closed = true
	return nil
}

// HealthCheck опрашивает живость воркеров через управляющий канал.
// Пустой список означает, что ни один воркер не ответил; это не ошибка.
func (a *AMQPAdapter) HealthCheck(ctx context.Context) ([]HealthStatus, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}

	replies, err := mq.CollectReplies(ctx, a.conn, a.logger, mq.ControlPing, nil, controlWait)
	if err != nil {
		return nil, err
	}

	statuses := make([]HealthStatus, 0, len(replies))
	for _, reply := range replies {
		status, _ := reply.Payload["ok"].(string)
		statuses = append(statuses, HealthStatus{
			Identity: reply.Identity,
			Status:   status,
		})
	}
	return statuses, nil
}
