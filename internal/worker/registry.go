package worker

import (
	"context"
	"fmt"
	"sync"
)

// Handler — бизнес-логика одного task.
//
// Args и Kwargs приходят через JSON: числа имеют тип float64,
// вложенные объекты — map[string]any. Возвращаемое значение
// сериализуется в JSON и сохраняется в result store.
//
// Доставка at-least-once: handler может быть вызван повторно для одного
// логического task и должен быть идемпотентным.
type Handler func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Registry — реестр handler'ов по имени task.
//
// Все handler'ы одного реестра разделяют одну retry-политику воркера.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register добавляет handler для имени task.
// Повторная регистрация имени заменяет предыдущий handler.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return ErrEmptyTaskName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
	return nil
}

// Get возвращает handler для имени task.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return handler, nil
}

// Names возвращает имена зарегистрированных task'ов.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
