// Package mq — транспортный слой поверх RabbitMQ.
//
// # Компоненты
//
//   - Connection — соединение с автоматическим reconnect
//   - Publisher — публикация task'ов (persistent deliveries)
//   - Consumer — потребление с ручным ack и ограничением параллелизма
//   - ControlResponder / CollectReplies — управляющий канал воркеров
//
// # Топология
//
//	(default exchange)
//	├── <queue>            task-сообщения [durable, DLQ: <queue>.dlq]
//	│       Consumer: Worker
//	└── <queue>.dlq        нечитаемые сообщения [manual processing]
//
//	conveyor.control (fanout)
//	└── conveyor.control.<identity>   [exclusive, auto-delete]
//	        Consumer: ControlResponder каждого воркера
//
// # Подтверждение доставки
//
// Task подтверждается брокеру только после завершения обработки
// (ack-late). При потере воркера неподтверждённые task'и возвращаются
// в очередь — ценой возможной повторной доставки, но не потери.
//
// # Управляющий канал
//
// Управляющие сообщения (ping, stats, shutdown) рассылаются через
// fanout-обменник всем воркерам. Адресная доставка реализуется полем
// Destination: воркер игнорирует сообщения, адресованные не ему.
// Ответы собираются через эксклюзивную reply-очередь в течение
// фиксированного окна — количество воркеров заранее неизвестно.
package mq
