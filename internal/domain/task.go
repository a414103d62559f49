package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task — единица работы, публикуемая в очередь брокера.
//
// Task создаётся при enqueue и доставляется воркеру. Воркер находит
// зарегистрированный handler по Name и выполняет его с Args/Kwargs.
//
// Доставка — at-least-once: при потере воркера неподтверждённый task
// возвращается в очередь и будет доставлен повторно. Handlers должны
// быть идемпотентными.
type Task struct {
	// ID — уникальный идентификатор task. Назначается при enqueue.
	ID uuid.UUID `json:"id"`

	// Name — имя task, по которому воркер находит handler.
	Name string `json:"name"`

	// Queue — очередь, в которую task был опубликован.
	Queue string `json:"queue"`

	// Args — позиционные аргументы handler'а.
	Args []any `json:"args,omitempty"`

	// Kwargs — именованные аргументы handler'а.
	Kwargs map[string]any `json:"kwargs,omitempty"`

	// ETA — время, раньше которого task не должен выполняться.
	// Устанавливается опцией Countdown при enqueue.
	ETA *time.Time `json:"eta,omitempty"`

	// Options — дополнительные параметры, передаваемые до воркера
	// без интерпретации.
	Options map[string]any `json:"options,omitempty"`

	// CreatedAt — время создания task. Ставится отправляющей стороной.
	CreatedAt time.Time `json:"created_at"`
}

// TaskResult — наблюдаемое состояние одного отправленного task.
//
// TaskResult не кэшируется: каждый запрос статуса читает актуальное
// состояние из result store.
type TaskResult struct {
	// ID — идентификатор task.
	ID string `json:"id"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Attempt — номер последней попытки выполнения (начиная с 1).
	Attempt int `json:"attempt,omitempty"`

	// Result — результат выполнения handler'а в JSON.
	// Заполняется только в финальных статусах.
	Result json.RawMessage `json:"result,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания task (ставится отправляющей стороной).
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время начала первой попытки выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в финальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsFinished возвращает true, если task завершён.
func (r *TaskResult) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Schedule — периодическая отправка task по расписанию.
//
// Расписание задаётся либо cron-выражением (CronExpr), либо фиксированным
// интервалом (IntervalSec). Заполнено должно быть ровно одно из двух.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя schedule.
	Name string `json:"name"`

	// TaskName — имя task для отправки.
	TaskName string `json:"task_name"`

	// Args — позиционные аргументы task.
	Args []any `json:"args,omitempty"`

	// Kwargs — именованные аргументы task.
	Kwargs map[string]any `json:"kwargs,omitempty"`

	// CronExpr — cron-выражение (5 полей: минута час день месяц день-недели).
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал между отправками в секундах.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — timezone для вычисления cron-расписания (IANA, напр. "Europe/Belgrade").
	Timezone string `json:"timezone"`

	// Enabled — активен ли schedule.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующей отправки (UTC).
	NextDueAt time.Time `json:"next_due_at"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`
}

// IsCron возвращает true, если schedule задан cron-выражением.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если schedule задан интервалом.
func (s *Schedule) IsInterval() bool {
	return s.IntervalSec > 0
}
