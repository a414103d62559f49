package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// Exchanges — имена обменников.
const (
	// ExchangeControl — fanout-обменник управляющих сообщений
	// (ping, stats, shutdown). Каждый работающий воркер привязывает
	// к нему собственную эксклюзивную очередь.
	ExchangeControl Exchange = "conveyor.control"
)

// Task-очереди публикуются в default exchange с routing key = имя очереди.
// DLQ для очереди q называется q + DLQSuffix.
const DLQSuffix = ".dlq"

// DLQName возвращает имя dead-letter очереди для task-очереди.
func DLQName(queue string) string {
	return queue + DLQSuffix
}

// DeclareTaskQueue создаёт durable task-очередь и её DLQ.
//
// transportOptions передаются в аргументы очереди без интерпретации
// (например "x-max-priority", "x-message-ttl").
func DeclareTaskQueue(conn *Connection, queue string, transportOptions map[string]any) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		// DLQ: сюда уходят сообщения, которые воркер не смог разобрать
		_, err := ch.QueueDeclare(
			DLQName(queue), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			nil,            // arguments
		)
		if err != nil {
			return fmt.Errorf("declare dlq %s: %w", DLQName(queue), err)
		}

		// Основная очередь с привязанной DLQ
		args := amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DLQName(queue),
		}
		for k, v := range transportOptions {
			args[k] = v
		}

		_, err = ch.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			args,  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		return nil
	})
}

// DeclareControlExchange создаёт fanout-обменник управляющих сообщений.
func DeclareControlExchange(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeControl), // name
			"fanout",                // type
			false,                   // durable (управляющие сообщения эфемерны)
			false,                   // auto-deleted
			false,                   // internal
			false,                   // no-wait
			nil,                     // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeControl, err)
		}
		return nil
	})
}
