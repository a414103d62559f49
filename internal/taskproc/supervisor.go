package taskproc

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// consumerHandle — владение одним фоновым consumer-потоком.
//
// Handle существует только вместе с известной worker identity:
// адресные управляющие сообщения строятся по ней.
type consumerHandle struct {
	identity string
	stop     func()
	done     chan struct{}
}

// supervisor управляет жизненным циклом consumer'а адаптера.
//
// Состояния: STOPPED (handle == nil) и RUNNING; переход RUNNING →
// STOPPED идёт через ограниченное ожидание в stopWait. На один адаптер
// допускается не более одного работающего consumer'а.
type supervisor struct {
	mu     sync.Mutex
	logger *slog.Logger
	handle *consumerHandle
}

// running возвращает true, если consumer работает.
func (s *supervisor) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveHandle() != nil
}

// liveHandle возвращает handle работающего consumer'а или nil.
// Вызывается под s.mu. Самостоятельно завершившийся consumer
// (например, остановленный broadcast-сигналом) освобождается здесь.
func (s *supervisor) liveHandle() *consumerHandle {
	if s.handle == nil {
		return nil
	}
	select {
	case <-s.handle.done:
		s.handle = nil
		return nil
	default:
		return s.handle
	}
}

// start запускает consumer, если он ещё не работает.
//
// run выполняется в фоновой горутине до завершения; stop инициирует
// его остановку, не дожидаясь её. Возвращает false, если consumer уже
// работает — второй поток выполнения не запускается.
func (s *supervisor) start(ctx context.Context, identity string, run func(ctx context.Context), stop func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveHandle() != nil {
		return false
	}

	handle := &consumerHandle{
		identity: identity,
		stop:     stop,
		done:     make(chan struct{}),
	}
	s.handle = handle

	go func() {
		defer close(handle.done)
		run(ctx)
	}()

	return true
}

// identity возвращает worker identity работающего consumer'а.
// Пустая строка — consumer не работает.
func (s *supervisor) identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.liveHandle(); h != nil {
		return h.identity
	}
	return ""
}

// stopWait ждёт завершения consumer'а не дольше timeout.
//
// signal доставляет воркеру сигнал остановки (адресное управляющее
// сообщение); при ошибке доставки остановка инициируется локально.
// Handle освобождается в любом случае: по таймауту пишется
// предупреждение, но вызывающая сторона не блокируется дольше timeout
// и ошибки не получает.
func (s *supervisor) stopWait(timeout time.Duration, signal func(identity string) error) {
	s.mu.Lock()
	handle := s.liveHandle()
	if handle == nil {
		s.mu.Unlock()
		s.logger.Info("consumer is not running")
		return
	}
	s.mu.Unlock()

	s.logger.Info("stopping consumer", "worker_id", handle.identity, "timeout", timeout)

	if err := signal(handle.identity); err != nil {
		s.logger.Warn("failed to deliver stop signal, stopping locally",
			"worker_id", handle.identity,
			"error", err,
		)
		handle.stop()
	}

	select {
	case <-handle.done:
		s.logger.Info("consumer stopped", "worker_id", handle.identity)
	case <-time.After(timeout):
		s.logger.Warn("consumer did not stop within timeout, releasing handle",
			"worker_id", handle.identity,
			"timeout", timeout,
		)
	}

	s.mu.Lock()
	if s.handle == handle {
		s.handle = nil
	}
	s.mu.Unlock()
}

// stopNow инициирует остановку consumer'а без ожидания завершения.
func (s *supervisor) stopNow() {
	s.mu.Lock()
	handle := s.liveHandle()
	s.handle = nil
	s.mu.Unlock()

	if handle != nil {
		handle.stop()
	}
}
