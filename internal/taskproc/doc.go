// Package taskproc — broker-agnostic слой обработки асинхронных task'ов.
//
// # Обзор
//
// Вызывающий сервис описывает процессор конфигурацией TaskConfig
// (очередь, retry-лимит, backend-вариант), получает через фабрику
// NewAdapter готовый Adapter, регистрирует handler'ы и отправляет
// task'и, не завися от конкретной технологии брокера.
//
//	cfg := taskproc.TaskConfig{
//	    QueueName:  "math",
//	    MaxRetries: 3,
//	    Backend: taskproc.BackendConfig{
//	        AMQP: &taskproc.AMQPBackend{
//	            BrokerURL:         mq.DefaultURL(),
//	            ResultStoreURL:    repo.DefaultDSN(),
//	            WorkerConcurrency: 4,
//	        },
//	    },
//	}
//
//	adapter, err := taskproc.NewAdapter(ctx, cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Close(ctx)
//
//	adapter.RegisterTaskHandle("add", addHandler)
//	adapter.StartConsumer(ctx, nil)
//
//	res, err := adapter.EnqueueTask(ctx, "add", []any{2, 3}, nil, nil)
//
// # Семантика
//
// Доставка at-least-once: ack уходит брокеру только после завершения
// task'а, потеря воркера приводит к повторной доставке. Handler'ы
// должны быть идемпотентными.
//
// Отмена advisory: CancelTask принимается только до начала выполнения;
// уже выполняющийся task сохраняет естественный терминальный статус.
//
// Неблокирующие варианты операций (EnqueueTaskAsync,
// GetTaskStatusAsync) — отдельный путь контракта: backend без
// неблокирующего I/O отклоняет их с ErrAsyncUnsupported сразу, не
// маскируя блокирующий вызов под асинхронный.
//
// # Жизненный цикл consumer'а
//
//	STOPPED → RUNNING   StartConsumer (идемпотентен)
//	RUNNING → STOPPING  StopConsumer (адресный сигнал + ожидание ≤ timeout)
//	STOPPING → STOPPED  выход воркера или истечение timeout
//	RUNNING → STOPPED   Shutdown (broadcast всем воркерам) или Close (локально)
package taskproc
