package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownTask — нет зарегистрированного handler'а для имени task.
	ErrUnknownTask = errors.New("unknown task")

	// ErrEmptyTaskName — имя task пустое.
	ErrEmptyTaskName = errors.New("task name is empty")

	// ErrHandlerPanic — handler завершился паникой.
	ErrHandlerPanic = errors.New("handler panicked")
)
