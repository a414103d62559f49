package taskproc

import "errors"

// Ошибки слоя обработки task'ов.
var (
	// ErrConfigMismatch — вариант backend-конфигурации не соответствует
	// типу конструируемого адаптера. Фатально при создании.
	ErrConfigMismatch = errors.New("backend config does not match adapter type")

	// ErrUnknownBackend — ни один адаптер не распознаёт вариант
	// backend-конфигурации. Фатально при выборе в фабрике.
	ErrUnknownBackend = errors.New("unknown backend config")

	// ErrInvalidConfig — конфигурация не прошла валидацию.
	ErrInvalidConfig = errors.New("invalid task config")

	// ErrAsyncUnsupported — backend не поддерживает неблокирующий
	// вариант операции. Возвращается сразу, без деградации в
	// блокирующий вызов.
	ErrAsyncUnsupported = errors.New("async operation not supported")

	// ErrNotInitialized — операция вызвана до Initialize.
	ErrNotInitialized = errors.New("adapter is not initialized")

	// ErrAlreadyInitialized — повторный Initialize на живом адаптере.
	ErrAlreadyInitialized = errors.New("adapter is already initialized")

	// ErrAdapterClosed — операция вызвана после Shutdown.
	ErrAdapterClosed = errors.New("adapter is shut down")

	// ErrConsumerRunning — регистрация handler'а после запуска consumer'а.
	ErrConsumerRunning = errors.New("consumer is already running")
)
