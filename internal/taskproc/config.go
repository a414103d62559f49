package taskproc

import "fmt"

// TaskConfig — неизменяемое описание одного процессора task'ов.
//
// Создаётся один раз и живёт всё время жизни сервиса; адаптер,
// построенный по конфигурации, разрушается явно через Shutdown.
type TaskConfig struct {
	// QueueName — очередь по умолчанию для всех отправляемых task'ов.
	QueueName string

	// MaxRetries — максимум повторных попыток при ошибке handler'а
	// до терминального FAILURE.
	MaxRetries int

	// Backend — backend-специфичная конфигурация (tagged union,
	// заполнен ровно один вариант).
	Backend BackendConfig
}

// BackendConfig — дискриминированная backend-конфигурация.
// Заполнен должен быть ровно один вариант.
type BackendConfig struct {
	// AMQP — конфигурация AMQP-бэкенда (RabbitMQ).
	AMQP *AMQPBackend
}

// Variant возвращает имя заполненного варианта для сообщений об ошибках.
func (b BackendConfig) Variant() string {
	switch {
	case b.AMQP != nil:
		return "amqp"
	default:
		return "none"
	}
}

// AMQPBackend — конфигурация AMQP-бэкенда.
type AMQPBackend struct {
	// BrokerURL — адрес брокера (amqp://...).
	BrokerURL string

	// ResultStoreURL — DSN result store (postgresql://...).
	ResultStoreURL string

	// WorkerConcurrency — количество параллельных слотов выполнения
	// внутри одного consumer-процесса.
	WorkerConcurrency int

	// TransportOptions — параметры транспорта, передаваемые брокеру
	// без интерпретации (аргументы очереди, напр. "x-max-priority").
	TransportOptions map[string]any
}

// Validate проверяет конфигурацию.
// Несоответствия фатальны при конструировании адаптера — молчаливая
// коррекция значений не выполняется.
func (c TaskConfig) Validate() error {
	if c.QueueName == "" {
		return fmt.Errorf("%w: queue name is empty", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries is negative", ErrInvalidConfig)
	}

	if c.Backend.AMQP != nil {
		be := c.Backend.AMQP
		if be.BrokerURL == "" {
			return fmt.Errorf("%w: amqp broker url is empty", ErrInvalidConfig)
		}
		if be.ResultStoreURL == "" {
			return fmt.Errorf("%w: amqp result store url is empty", ErrInvalidConfig)
		}
		if be.WorkerConcurrency <= 0 {
			return fmt.Errorf("%w: amqp worker concurrency must be positive", ErrInvalidConfig)
		}
	}

	return nil
}
