package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	NotificationExchange     = "notifications"
	NotificationExchangeKind = "topic"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications to a RabbitMQ topic exchange.
// Delivery to devices is the job of downstream consumers.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel amqpChannel
	mu      sync.Mutex
	log     *zap.Logger
}

// NewAMQPNotifier dials url and declares the notifications exchange
func NewAMQPNotifier(url string, log *zap.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(NotificationExchange, NotificationExchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	return &AMQPNotifier{conn: conn, channel: ch, log: log}, nil
}

func newAMQPNotifierWithChannel(ch amqpChannel, log *zap.Logger) *AMQPNotifier {
	return &AMQPNotifier{channel: ch, log: log}
}

func (p *AMQPNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := notificationMessage(n, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, NotificationExchange, n.Title, false, false, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	p.log.Debug("notification published",
		zap.String("routing_key", n.Title),
		zap.String("message_id", msg.MessageId),
		zap.Uint("booking_id", n.BookingID),
	)
	return nil
}

func notificationMessage(n Notification, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal notification: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Body:         body,
	}, nil
}

// Close releases the channel and connection
func (p *AMQPNotifier) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
