package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskSubmit MessageType = "task.submit"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload может быть уже распарсен как map или быть raw json
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}

// Publisher публикует сообщения в брокер.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishTask публикует task в его очередь.
// Сообщение persistent: переживёт рестарт брокера.
func (p *Publisher) PublishTask(ctx context.Context, task *domain.Task) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskSubmit,
		Payload:   task,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			"",         // default exchange
			task.Queue, // routing key = имя очереди
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", task.Queue, err)
		}

		p.logger.Debug("published task",
			"queue", task.Queue,
			"task_id", task.ID,
			"task_name", task.Name,
		)

		return nil
	})
}
