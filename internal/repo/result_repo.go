package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ResultRepo — репозиторий состояния task'ов (result store).
//
// Каждый переход статуса персистится немедленно: статус, который видит
// вызывающая сторона через Get, — это состояние в базе, не локальный кэш.
type ResultRepo struct {
	pool *pgxpool.Pool
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

// EnsureSchema создаёт таблицу task_results, если её нет.
func (r *ResultRepo) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS task_results (
			id          UUID PRIMARY KEY,
			queue_name  TEXT NOT NULL,
			task_name   TEXT NOT NULL,
			status      TEXT NOT NULL,
			attempt     INT NOT NULL DEFAULT 0,
			result      JSONB,
			error       TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL,
			started_at  TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		)
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure task_results schema: %w", err)
	}
	return nil
}

// Insert создаёт запись task в статусе PENDING.
//
// Возвращает false, если запись с таким id уже существует (повторная
// отправка с тем же id — например, от scheduler'а — не создаёт дубликат
// и не перетирает состояние).
func (r *ResultRepo) Insert(ctx context.Context, id, queue, name string, createdAt time.Time) (bool, error) {
	query := `
		INSERT INTO task_results (id, queue_name, task_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, id, queue, name, domain.TaskStatusPending, createdAt)
	if err != nil {
		return false, fmt.Errorf("insert task result: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get возвращает состояние task по id.
func (r *ResultRepo) Get(ctx context.Context, id string) (*domain.TaskResult, error) {
	query := `
		SELECT id, status, attempt, result, error, created_at, started_at, finished_at
		FROM task_results
		WHERE id = $1
	`

	var res domain.TaskResult
	var result []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&res.ID,
		&res.Status,
		&res.Attempt,
		&result,
		&res.Error,
		&res.CreatedAt,
		&res.StartedAt,
		&res.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get task result: %w", err)
	}

	if len(result) > 0 {
		res.Result = json.RawMessage(result)
	}
	return &res, nil
}

// MarkStarted переводит task в STARTED с номером попытки.
//
// Upsert: запись могла не успеть создаться на отправляющей стороне
// (или быть создана другим экземпляром result store) — воркер в любом
// случае фиксирует начало выполнения.
func (r *ResultRepo) MarkStarted(ctx context.Context, id, queue, name string, attempt int, createdAt time.Time) error {
	query := `
		INSERT INTO task_results (id, queue_name, task_name, status, attempt, created_at, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    attempt = EXCLUDED.attempt,
		    started_at = COALESCE(task_results.started_at, now())
	`
	if _, err := r.pool.Exec(ctx, query, id, queue, name, domain.TaskStatusStarted, attempt, createdAt); err != nil {
		return fmt.Errorf("mark task started: %w", err)
	}
	return nil
}

// MarkRetry переводит task в RETRY после неудачной попытки.
func (r *ResultRepo) MarkRetry(ctx context.Context, id string, attempt int, errMsg string) error {
	query := `
		UPDATE task_results
		SET status = $2, attempt = $3, error = $4
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id, domain.TaskStatusRetry, attempt, errMsg); err != nil {
		return fmt.Errorf("mark task retry: %w", err)
	}
	return nil
}

// MarkSuccess переводит task в SUCCESS с результатом выполнения.
func (r *ResultRepo) MarkSuccess(ctx context.Context, id string, result json.RawMessage) error {
	query := `
		UPDATE task_results
		SET status = $2, result = $3, error = '', finished_at = now()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id, domain.TaskStatusSuccess, []byte(result)); err != nil {
		return fmt.Errorf("mark task success: %w", err)
	}
	return nil
}

// MarkFailure переводит task в FAILURE после исчерпания retry.
func (r *ResultRepo) MarkFailure(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE task_results
		SET status = $2, error = $3, finished_at = now()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id, domain.TaskStatusFailure, errMsg); err != nil {
		return fmt.Errorf("mark task failure: %w", err)
	}
	return nil
}

// Revoke переводит task в REVOKED, если выполнение ещё не началось.
//
// Отмена advisory: task в STARTED или финальном статусе не трогается —
// возвращается false. Гонка между отменой и началом выполнения
// разрешается атомарным условием в базе.
func (r *ResultRepo) Revoke(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE task_results
		SET status = $2, finished_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`
	tag, err := r.pool.Exec(ctx, query, id,
		domain.TaskStatusRevoked,
		domain.TaskStatusPending,
		domain.TaskStatusRetry,
	)
	if err != nil {
		return false, fmt.Errorf("revoke task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
