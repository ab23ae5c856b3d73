package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"devmarket/internal/model"
)

// Store persists notifications for later polling.
type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// DBTransport writes to the notifications table.
type DBTransport struct {
	store Store
}

func NewDBTransport(store Store) *DBTransport {
	return &DBTransport{store: store}
}

func (t *DBTransport) Name() string { return "db" }

func (t *DBTransport) Send(ctx context.Context, n model.Notification) error {
	return t.store.CreateNotification(ctx, &n)
}

// RedisChannel is the pub/sub channel for a user's notifications.
func RedisChannel(userID int64) string {
	return fmt.Sprintf("devmarket:notifications:%d", userID)
}

// RedisTransport publishes to a per-user channel.
type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := t.rdb.Publish(ctx, RedisChannel(n.UserID), body).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// RoutingKey is the AMQP routing key for a notification type.
func RoutingKey(typ string) string {
	return "notification." + typ
}

// AMQPTransport publishes to a durable topic exchange.
type AMQPTransport struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPTransport dials url and declares the exchange.
func NewAMQPTransport(url, exchange string) (*AMQPTransport, error) {
	exchange = lo.Ternary(exchange != "", exchange, "devmarket.events")
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQPTransport{conn: conn, ch: ch, exchange: exchange}, nil
}

func (t *AMQPTransport) Name() string { return "amqp" }

func (t *AMQPTransport) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	return t.ch.PublishWithContext(ctx, t.exchange, RoutingKey(n.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
}

func (t *AMQPTransport) Close() error {
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
