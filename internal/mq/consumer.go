package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась (сообщение будет nack с requeue).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery

	// settled — доставка уже подтверждена или отклонена.
	// Повторный ack — protocol error на уровне AMQP.
	settled bool
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	d.settled = true
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	d.settled = true
	return d.Raw.Nack(false, requeue)
}

// Settled возвращает true, если доставка уже подтверждена или отклонена.
func (d *Delivery) Settled() bool {
	return d.settled
}

// Consumer потребляет сообщения из очереди брокера.
//
// Подтверждение — только после завершения обработки (ручной ack).
// Если воркер умирает с неподтверждёнными сообщениями, брокер вернёт
// их в очередь: task'и не теряются, но могут быть доставлены повторно.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	queue       string
	handler     Handler
	prefetch    int
	concurrency int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	// Concurrency — количество параллельных слотов обработки.
	// По умолчанию 1 (последовательная обработка).
	Concurrency int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Consumer{
		conn:        conn,
		logger:      logger,
		queue:       cfg.Queue,
		handler:     cfg.Handler,
		prefetch:    prefetch,
		concurrency: concurrency,
	}
}

// Start запускает потребление сообщений. Блокирует до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	// Запускаем основной цикл потребления
	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Получаем канал доставки
		deliveries, ch, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue, "concurrency", c.concurrency)

		// Обрабатываем сообщения
		if err := c.processDeliveries(ctx, deliveries); err != nil {
			ch.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			// Канал закрыт, ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}

		ch.Close()
		return nil
	}
}

// setupConsume открывает выделенный канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, *amqp.Channel, error) {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return nil, nil, err
	}

	// Prefetch ограничивает количество невыполненных доставок на воркера
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, ch, nil
}

// processDeliveries обрабатывает сообщения из канала.
//
// Каждое сообщение обрабатывается в отдельной горутине, количество
// параллельных обработок ограничено слотами concurrency.
// Возвращает nil при отмене ctx, ошибку при закрытии канала доставки.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	slots := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				// Останавливаемся: необработанное сообщение вернётся
				// в очередь после закрытия канала
				raw.Nack(false, true)
				return nil
			}

			wg.Add(1)
			go func(raw amqp.Delivery) {
				defer wg.Done()
				defer func() { <-slots }()
				c.handleDelivery(ctx, raw)
			}(raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	// Парсим сообщение
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", c.queue,
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное сообщение — отправляем в DLQ
		raw.Nack(false, false)
		return
	}

	delivery := &Delivery{
		Message: msg,
		Raw:     raw,
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	// Вызываем обработчик. Обработчик может сам подтвердить или
	// отклонить доставку; здесь закрываем оставшиеся случаи.
	if err := c.handler(ctx, delivery); err != nil {
		c.logger.Error("handler failed",
			"queue", c.queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		// Инфраструктурная ошибка — возвращаем в очередь
		if !delivery.Settled() {
			raw.Nack(false, true)
		}
		return
	}

	if !delivery.Settled() {
		raw.Ack(false)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
