package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/taskproc"
)

// Runtime — разделяемое состояние CLI-команд.
//
// Поля-флаги заполняются cobra при парсинге PersistentFlags; адаптер
// и пул создаются лениво при первом обращении, поэтому команды,
// работающие только с расписаниями, не трогают брокер.
type Runtime struct {
	BrokerURL string
	DBURL     string
	Queue     string

	adapter   taskproc.Adapter
	pool      *pgxpool.Pool
	schedules *repo.ScheduleRepo
}

// Adapter возвращает инициализированный адаптер, создавая его при
// первом вызове.
func (r *Runtime) Adapter(ctx context.Context) (taskproc.Adapter, error) {
	if r.adapter != nil {
		return r.adapter, nil
	}

	cfg := taskproc.TaskConfig{
		QueueName:  r.Queue,
		MaxRetries: 3,
		Backend: taskproc.BackendConfig{
			AMQP: &taskproc.AMQPBackend{
				BrokerURL:         r.BrokerURL,
				ResultStoreURL:    r.DBURL,
				WorkerConcurrency: 1,
			},
		},
	}

	// CLI отчитывается через Output, структурированный лог не нужен
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	adapter, err := taskproc.NewAdapter(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to backend: %w", err)
	}

	r.adapter = adapter
	return adapter, nil
}

// Schedules возвращает репозиторий расписаний, создавая пул при
// первом вызове.
func (r *Runtime) Schedules(ctx context.Context) (*repo.ScheduleRepo, error) {
	if r.schedules != nil {
		return r.schedules, nil
	}

	pool, err := repo.NewPool(ctx, r.DBURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	schedules := repo.NewScheduleRepo(pool)
	if err := schedules.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	r.pool = pool
	r.schedules = schedules
	return schedules, nil
}

// Close освобождает созданные ресурсы.
// Воркеры не затрагиваются: закрытие CLI — не повод их останавливать.
func (r *Runtime) Close(ctx context.Context) {
	if r.adapter != nil {
		r.adapter.Close(ctx)
		r.adapter = nil
	}
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
}

// parseArgValues разбирает значения --arg: каждое значение сначала
// пробуется как JSON (числа, bool, объекты), иначе берётся строкой.
func parseArgValues(raw []string) []any {
	if len(raw) == 0 {
		return nil
	}

	args := make([]any, len(raw))
	for i, v := range raw {
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			args[i] = parsed
		} else {
			args[i] = v
		}
	}
	return args
}

// parseKwargValues разбирает значения --kwarg формата KEY=VALUE.
// VALUE разбирается так же, как в parseArgValues.
func parseKwargValues(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	kwargs := make(map[string]any, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid kwarg format %q, expected KEY=VALUE", kv)
		}

		var parsed any
		if err := json.Unmarshal([]byte(parts[1]), &parsed); err == nil {
			kwargs[parts[0]] = parsed
		} else {
			kwargs[parts[0]] = parts[1]
		}
	}
	return kwargs, nil
}
