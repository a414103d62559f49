package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/taskproc"
)

// dueBatchLimit — максимум schedules, обрабатываемых за один tick.
const dueBatchLimit = 100

// Enqueuer — минимальный интерфейс отправки task, нужный scheduler'у.
// Реализуется taskproc.Adapter.
type Enqueuer interface {
	EnqueueTask(ctx context.Context, name string, args []any, kwargs map[string]any, opts *taskproc.EnqueueOptions) (*domain.TaskResult, error)
}

// ScheduleStore — минимальный интерфейс хранилища расписаний.
// Реализуется repo.ScheduleRepo.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	UpdateNextDue(ctx context.Context, id uuid.UUID, nextDueAt time.Time) error
}

// Scheduler периодически отправляет task'и по расписаниям из хранилища.
//
// Scheduler рассчитан на одновременную работу нескольких экземпляров:
// идентификатор отправляемого task детерминированно выводится из
// schedule ID и времени отправки, поэтому два экземпляра, увидевшие
// один и тот же due schedule, создадут один task, а не два.
type Scheduler struct {
	store    ScheduleStore
	enqueuer Enqueuer
	logger   *slog.Logger
}

// New создаёт новый Scheduler.
func New(store ScheduleStore, enqueuer Enqueuer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Run запускает цикл scheduler'а с заданным интервалом тиков.
// Блокируется до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("scheduler started", "tick_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick обрабатывает один проход: находит due schedules, отправляет
// их task'и и передвигает next_due_at.
//
// Ошибка отправки одного schedule не прерывает обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := s.store.ListDue(ctx, now, dueBatchLimit)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	for i := range due {
		sched := &due[i]
		if err := s.fire(ctx, sched, now); err != nil {
			s.logger.Error("failed to fire schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
		}
	}

	return nil
}

// fire отправляет task одного due schedule и передвигает next_due_at.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	taskID := scheduledTaskID(sched)

	opts := &taskproc.EnqueueOptions{TaskID: taskID.String()}
	result, err := s.enqueuer.EnqueueTask(ctx, sched.TaskName, sched.Args, sched.Kwargs, opts)
	if err != nil {
		return fmt.Errorf("enqueue scheduled task: %w", err)
	}

	s.logger.Info("scheduled task enqueued",
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
		"task_id", result.ID,
		"task_name", sched.TaskName,
	)

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return fmt.Errorf("calculate next due: %w", err)
	}

	if err := s.store.UpdateNextDue(ctx, sched.ID, nextDue); err != nil {
		return fmt.Errorf("update next due: %w", err)
	}

	return nil
}

// scheduledTaskID детерминированно выводит идентификатор task из
// schedule ID и запланированного времени отправки.
//
// Повторная отправка того же срабатывания (второй scheduler, рестарт
// между enqueue и UpdateNextDue) даёт тот же UUID, а идемпотентный
// enqueue адаптера не создаёт дубликат.
func scheduledTaskID(sched *domain.Schedule) uuid.UUID {
	key := fmt.Sprintf("%d", sched.NextDueAt.Unix())
	return uuid.NewSHA1(sched.ID, []byte(key))
}
