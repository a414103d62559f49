package worker

import "time"

// Параметры retry-политики по умолчанию.
const (
	// DefaultBackoffBase — задержка перед первым retry.
	DefaultBackoffBase = time.Second

	// DefaultBackoffCap — верхняя граница задержки между retry.
	DefaultBackoffCap = 60 * time.Second
)

// Backoff вычисляет задержку перед повторной попыткой номер attempt+1.
//
// delay = base * 2^(attempt-1), с верхней границей capDelay.
// Jitter не добавляется: последовательность задержек детерминирована
// и воспроизводима от запуска к запуску.
func Backoff(attempt int, base, capDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if capDelay <= 0 {
		capDelay = DefaultBackoffCap
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= capDelay {
			return capDelay
		}
	}

	if delay > capDelay {
		return capDelay
	}
	return delay
}
