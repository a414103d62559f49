package domain

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	PENDING → STARTED → SUCCESS
//	                  ↘ RETRY → STARTED (цикл до исчерпания попыток)
//	                  ↘ FAILURE
//	PENDING → REVOKED (отмена до начала выполнения)
type TaskStatus string

const (
	// TaskStatusPending — task принят, ожидает выполнения.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusStarted — task выполняется воркером.
	TaskStatusStarted TaskStatus = "STARTED"

	// TaskStatusRetry — последняя попытка завершилась ошибкой,
	// запланирована повторная попытка.
	TaskStatusRetry TaskStatus = "RETRY"

	// TaskStatusSuccess — task успешно завершён.
	TaskStatusSuccess TaskStatus = "SUCCESS"

	// TaskStatusFailure — task завершился ошибкой (после всех retry).
	TaskStatusFailure TaskStatus = "FAILURE"

	// TaskStatusRevoked — task отменён до начала выполнения.
	TaskStatusRevoked TaskStatus = "REVOKED"
)

// IsTerminal возвращает true, если статус финальный.
// Результат выполнения доступен только в финальных статусах.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailure, TaskStatusRevoked:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}
