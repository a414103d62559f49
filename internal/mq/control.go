package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ControlCommand — команда управляющего сообщения.
type ControlCommand string

// Команды управления воркерами.
const (
	// ControlPing — проверка живости. Воркер отвечает pong.
	ControlPing ControlCommand = "ping"

	// ControlStats — запрос операционных счётчиков воркера.
	ControlStats ControlCommand = "stats"

	// ControlShutdown — остановка воркера. Без ответа.
	ControlShutdown ControlCommand = "shutdown"
)

// ControlMessage — управляющее сообщение.
//
// Публикуется в fanout-обменник ExchangeControl и доставляется всем
// работающим воркерам. Воркер, чья identity не входит в Destination
// (если Destination непустой), игнорирует сообщение: так реализуется
// адресная доставка поверх широковещательного обменника.
type ControlMessage struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Command — команда.
	Command ControlCommand `json:"command"`

	// Destination — список worker identity, которым адресовано
	// сообщение. Пустой список означает «всем».
	Destination []string `json:"destination,omitempty"`

	// ReplyTo — имя очереди для ответа. Пусто — ответ не нужен.
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// AddressedTo возвращает true, если сообщение адресовано воркеру identity.
func (m *ControlMessage) AddressedTo(identity string) bool {
	if len(m.Destination) == 0 {
		return true
	}
	return slices.Contains(m.Destination, identity)
}

// ControlReply — ответ воркера на управляющее сообщение.
type ControlReply struct {
	// Identity — worker identity отвечающего воркера.
	Identity string `json:"identity"`

	// Command — команда, на которую дан ответ.
	Command ControlCommand `json:"command"`

	// Payload — содержимое ответа (pong, счётчики).
	Payload map[string]any `json:"payload,omitempty"`
}

// PublishControl публикует управляющее сообщение.
// destination — список worker identity; пустой список означает broadcast.
func PublishControl(ctx context.Context, conn *Connection, cmd ControlCommand, destination []string) error {
	return publishControl(ctx, conn, &ControlMessage{
		ID:          uuid.New().String(),
		Command:     cmd,
		Destination: destination,
		Timestamp:   time.Now(),
	})
}

func publishControl(ctx context.Context, conn *Connection, msg *ControlMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal control message: %w", err)
	}

	return conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeControl), // exchange
			"",                      // routing key (fanout игнорирует)
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				MessageId:   msg.ID,
				Timestamp:   msg.Timestamp,
				Body:        body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish control %s: %w", msg.Command, err)
		}
		return nil
	})
}

// CollectReplies рассылает управляющее сообщение и собирает ответы
// воркеров в течение wait.
//
// Количество работающих воркеров заранее неизвестно, поэтому сбор
// всегда длится полное окно wait (или до отмены ctx). Пустой результат —
// не ошибка: значит, ни один воркер не ответил.
func CollectReplies(ctx context.Context, conn *Connection, logger *slog.Logger, cmd ControlCommand, destination []string, wait time.Duration) ([]ControlReply, error) {
	ch, err := conn.OpenChannel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	// Эксклюзивная очередь с именем от брокера — для ответов
	q, err := ch.QueueDeclare(
		"",    // name (auto-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack (ответы эфемерны)
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}

	msg := &ControlMessage{
		ID:          uuid.New().String(),
		Command:     cmd,
		Destination: destination,
		ReplyTo:     q.Name,
		Timestamp:   time.Now(),
	}
	if err := publishControl(ctx, conn, msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var replies []ControlReply
	for {
		select {
		case <-ctx.Done():
			return replies, ctx.Err()

		case <-timer.C:
			return replies, nil

		case raw, ok := <-deliveries:
			if !ok {
				return replies, nil
			}

			var reply ControlReply
			if err := json.Unmarshal(raw.Body, &reply); err != nil {
				logger.Warn("failed to unmarshal control reply", "error", err)
				continue
			}
			replies = append(replies, reply)
		}
	}
}

// ControlResponder слушает управляющие сообщения для одного воркера.
//
// Привязывает к ExchangeControl эксклюзивную auto-delete очередь:
// очередь исчезает вместе с воркером, накопления управляющих
// сообщений для мёртвых воркеров не происходит.
type ControlResponder struct {
	conn     *Connection
	logger   *slog.Logger
	identity string
	handler  func(msg *ControlMessage) *ControlReply
}

// NewControlResponder создаёт ControlResponder.
// handler возвращает ответ или nil, если ответ не требуется.
func NewControlResponder(conn *Connection, logger *slog.Logger, identity string, handler func(msg *ControlMessage) *ControlReply) *ControlResponder {
	return &ControlResponder{
		conn:     conn,
		logger:   logger,
		identity: identity,
		handler:  handler,
	}
}

// Start запускает обработку управляющих сообщений. Блокирует до отмены ctx.
func (r *ControlResponder) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, ch, err := r.setupConsume()
		if err != nil {
			r.logger.Error("failed to setup control consume", "identity", r.identity, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.conn.ReconnectNotify():
				continue
			}
		}

		r.logger.Debug("control responder started", "identity", r.identity)

		if err := r.processDeliveries(ctx, ch, deliveries); err != nil {
			ch.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.conn.ReconnectNotify():
				continue
			}
		}

		ch.Close()
		return nil
	}
}

func (r *ControlResponder) setupConsume() (<-chan amqp.Delivery, *amqp.Channel, error) {
	ch, err := r.conn.OpenChannel()
	if err != nil {
		return nil, nil, err
	}

	queueName := fmt.Sprintf("%s.%s", ExchangeControl, r.identity)
	_, err = ch.QueueDeclare(
		queueName,
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("declare control queue: %w", err)
	}

	if err := ch.QueueBind(queueName, "", string(ExchangeControl), false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("bind control queue: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // consumer tag
		true,  // auto-ack (управляющие сообщения эфемерны)
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume control queue: %w", err)
	}

	return deliveries, ch, nil
}

func (r *ControlResponder) processDeliveries(ctx context.Context, ch *amqp.Channel, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("control deliveries channel closed")
			}

			var msg ControlMessage
			if err := json.Unmarshal(raw.Body, &msg); err != nil {
				r.logger.Warn("failed to unmarshal control message", "error", err)
				continue
			}

			if !msg.AddressedTo(r.identity) {
				continue
			}

			r.logger.Debug("received control message",
				"identity", r.identity,
				"command", msg.Command,
				"message_id", msg.ID,
			)

			reply := r.handler(&msg)
			if reply == nil || msg.ReplyTo == "" {
				continue
			}

			if err := r.publishReply(ctx, ch, msg.ReplyTo, reply); err != nil {
				r.logger.Warn("failed to publish control reply",
					"identity", r.identity,
					"command", msg.Command,
					"error", err,
				)
			}
		}
	}
}

func (r *ControlResponder) publishReply(ctx context.Context, ch *amqp.Channel, replyTo string, reply *ControlReply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal control reply: %w", err)
	}

	return ch.PublishWithContext(
		ctx,
		"",      // default exchange
		replyTo, // напрямую в очередь ответов
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
