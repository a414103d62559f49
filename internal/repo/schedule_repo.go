package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ScheduleRepo — репозиторий периодических расписаний.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// EnsureSchema создаёт таблицу schedules, если её нет.
func (r *ScheduleRepo) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schedules (
			id           UUID PRIMARY KEY,
			name         TEXT NOT NULL UNIQUE,
			task_name    TEXT NOT NULL,
			args         JSONB,
			kwargs       JSONB,
			cron_expr    TEXT NOT NULL DEFAULT '',
			interval_sec INT NOT NULL DEFAULT 0,
			timezone     TEXT NOT NULL DEFAULT 'UTC',
			enabled      BOOLEAN NOT NULL DEFAULT TRUE,
			next_due_at  TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schedules schema: %w", err)
	}
	return nil
}

// Create создаёт новый schedule.
func (r *ScheduleRepo) Create(ctx context.Context, sched *domain.Schedule) error {
	argsJSON, err := json.Marshal(sched.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	kwargsJSON, err := json.Marshal(sched.Kwargs)
	if err != nil {
		return fmt.Errorf("marshal kwargs: %w", err)
	}

	query := `
		INSERT INTO schedules (id, name, task_name, args, kwargs, cron_expr, interval_sec, timezone, enabled, next_due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		sched.ID,
		sched.Name,
		sched.TaskName,
		argsJSON,
		kwargsJSON,
		sched.CronExpr,
		sched.IntervalSec,
		sched.Timezone,
		sched.Enabled,
		sched.NextDueAt,
		sched.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := selectSchedule + ` WHERE id = $1`
	return r.scanSchedule(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все schedules.
func (r *ScheduleRepo) List(ctx context.Context) ([]domain.Schedule, error) {
	query := selectSchedule + ` ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		sched, err := r.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sched)
	}
	return schedules, rows.Err()
}

// ListDue возвращает включённые schedules, у которых подошло время отправки.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := selectSchedule + `
		WHERE enabled = TRUE AND next_due_at <= $1
		ORDER BY next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		sched, err := r.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sched)
	}
	return schedules, rows.Err()
}

// UpdateNextDue обновляет время следующей отправки.
func (r *ScheduleRepo) UpdateNextDue(ctx context.Context, id uuid.UUID, nextDueAt time.Time) error {
	query := `UPDATE schedules SET next_due_at = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, nextDueAt); err != nil {
		return fmt.Errorf("update next_due_at: %w", err)
	}
	return nil
}

// SetEnabled включает или выключает schedule.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `UPDATE schedules SET enabled = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("set schedule enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, id)
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM schedules WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, id)
	}
	return nil
}

const selectSchedule = `
	SELECT id, name, task_name, args, kwargs, cron_expr, interval_sec, timezone, enabled, next_due_at, created_at
	FROM schedules
`

func (r *ScheduleRepo) scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var sched domain.Schedule
	var argsJSON, kwargsJSON []byte

	err := row.Scan(
		&sched.ID,
		&sched.Name,
		&sched.TaskName,
		&argsJSON,
		&kwargsJSON,
		&sched.CronExpr,
		&sched.IntervalSec,
		&sched.Timezone,
		&sched.Enabled,
		&sched.NextDueAt,
		&sched.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &sched.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
	}
	if len(kwargsJSON) > 0 {
		if err := json.Unmarshal(kwargsJSON, &sched.Kwargs); err != nil {
			return nil, fmt.Errorf("unmarshal kwargs: %w", err)
		}
	}

	return &sched, nil
}
