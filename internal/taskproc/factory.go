package taskproc

import (
	"context"
	"fmt"
	"log/slog"
)

// NewAdapter — фабрика адаптеров.
//
// Выбирает реализацию по заполненному варианту Backend, конструирует
// и инициализирует её до возврата: частично инициализированный адаптер
// наружу не отдаётся. Нераспознанный вариант — ошибка сразу, с именем
// варианта.
func NewAdapter(ctx context.Context, cfg TaskConfig, logger *slog.Logger) (Adapter, error) {
	adapter, err := newAdapterForConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := adapter.Initialize(ctx); err != nil {
		return nil, err
	}

	return adapter, nil
}

// newAdapterForConfig выбирает тип адаптера по варианту конфигурации.
func newAdapterForConfig(cfg TaskConfig, logger *slog.Logger) (Adapter, error) {
	switch {
	case cfg.Backend.AMQP != nil:
		return NewAMQPAdapter(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend.Variant())
	}
}
