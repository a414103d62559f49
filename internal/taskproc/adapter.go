package taskproc

import (
	"context"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/worker"
)

// EnqueueOptions — параметры одной отправки task.
type EnqueueOptions struct {
	// Countdown — задержка перед тем, как task станет доступен
	// к выполнению.
	Countdown time.Duration

	// TaskID — явный идентификатор task (UUID). Пустая строка —
	// идентификатор назначается адаптером. Повторная отправка с тем же
	// TaskID не создаёт дубликат.
	TaskID string

	// Extra — дополнительные параметры, передаваемые до backend'а
	// без интерпретации.
	Extra map[string]any
}

// ConsumerOptions — параметры запуска consumer'а.
type ConsumerOptions struct {
	// Concurrency переопределяет WorkerConcurrency из конфигурации.
	// 0 — использовать значение из конфигурации.
	Concurrency int
}

// TaskOutcome — результат неблокирующей операции.
type TaskOutcome struct {
	Result *domain.TaskResult
	Err    error
}

// HealthStatus — статус одного воркера из health check.
type HealthStatus struct {
	// Identity — worker identity.
	Identity string `json:"identity"`

	// Status — статус, как его сообщил воркер (напр. "pong").
	Status string `json:"status"`
}

// Adapter — контракт процессора task'ов, единый для всех backend'ов.
//
// Времена жизни: адаптер создаётся фабрикой (NewAdapter) уже
// инициализированным и живёт до Shutdown. На один адаптер допускается
// не более одного работающего consumer'а; вызовы StartConsumer и
// StopConsumer на одном адаптере из разных горутин должны
// синхронизироваться вызывающей стороной.
type Adapter interface {
	// Initialize привязывает адаптер к брокеру и result store.
	// Вызывается один раз на объект; повторный вызов — ошибка.
	// Недоступность брокера или базы фатальна на месте вызова.
	Initialize(ctx context.Context) error

	// RegisterTaskHandle связывает имя task с handler'ом.
	// Все handler'ы разделяют retry-политику адаптера.
	// Должен вызываться до StartConsumer.
	RegisterTaskHandle(name string, handler worker.Handler) error

	// EnqueueTask отправляет task и возвращается сразу после
	// подтверждения брокером. Завершения выполнения не ждёт:
	// в результате заполнены как минимум ID, Status и CreatedAt.
	EnqueueTask(ctx context.Context, name string, args []any, kwargs map[string]any, opts *EnqueueOptions) (*domain.TaskResult, error)

	// EnqueueTaskAsync — неблокирующий вариант EnqueueTask.
	// Backend без неблокирующего пути отправки возвращает
	// ErrAsyncUnsupported сразу, не деградируя в блокирующий вызов.
	EnqueueTaskAsync(ctx context.Context, name string, args []any, kwargs map[string]any, opts *EnqueueOptions) (<-chan TaskOutcome, error)

	// GetTaskStatus возвращает текущее наблюдаемое состояние task.
	// Состояние читается из result store, не из локального кэша.
	GetTaskStatus(ctx context.Context, id string) (*domain.TaskResult, error)

	// GetTaskStatusAsync — неблокирующий вариант GetTaskStatus.
	// Семантика отказа — как у EnqueueTaskAsync.
	GetTaskStatusAsync(ctx context.Context, id string) (<-chan TaskOutcome, error)

	// CancelTask запрашивает отмену task. Возвращает, принял ли
	// backend запрос — это не гарантия, что task не начал или не
	// закончил выполняться: гонка между отменой и выполнением
	// неустранима. Уже выполняющийся task сохраняет естественный
	// терминальный статус.
	CancelTask(ctx context.Context, id string) (bool, error)

	// GetMetrics возвращает операционные счётчики воркеров.
	// Схема определяется backend'ом и передаётся как есть.
	GetMetrics(ctx context.Context) (map[string]any, error)

	// StartConsumer запускает фоновое выполнение task'ов.
	// Идемпотентен: при уже работающем consumer'е — no-op с записью
	// в лог, второй поток выполнения не запускается.
	StartConsumer(ctx context.Context, opts *ConsumerOptions) error

	// StopConsumer посылает адресный сигнал остановки воркеру этого
	// адаптера (не broadcast) и ждёт завершения не дольше timeout.
	// По истечении timeout handle освобождается, в лог пишется
	// предупреждение; ошибкой медленная остановка не считается.
	StopConsumer(ctx context.Context, timeout time.Duration) error

	// Shutdown — безусловная остановка: broadcast-сигнал всем воркерам
	// очереди (не только воркеру этого адаптера) и разрыв соединений.
	// В отличие от StopConsumer не адресный и без ограниченного
	// ожидания. Для освобождения ресурсов без влияния на чужих
	// воркеров использовать Close.
	Shutdown(ctx context.Context) error

	// Close освобождает локальные ресурсы адаптера: останавливает
	// собственный consumer и закрывает соединения с брокером и result
	// store. Чужим воркерам сигналов не посылает. Идемпотентен.
	Close(ctx context.Context) error

	// HealthCheck опрашивает живость воркеров. Пустой список — нет
	// доступных воркеров; это не ошибка.
	HealthCheck(ctx context.Context) ([]HealthStatus, error)
}
