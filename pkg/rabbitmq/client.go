package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

const publishTimeout = 5 * time.Second

var (
	errURLRequired    = errors.New("rabbitmq url is required")
	errNotInitialized = errors.New("rabbitmq client not initialized")
)

// Message is a single fan-out publication.
type Message struct {
	ID   string
	Type string
	Body []byte
}

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  config.RabbitMQConfig

	// amqp channels are not safe for concurrent publishes
	mu sync.Mutex
}

// NewClient dials the broker and declares the notifications fan-out exchange
// together with its bound queue.
func NewClient(ctx context.Context, cfg config.RabbitMQConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errURLRequired
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	c := &Client{conn: conn, ch: ch, cfg: cfg}
	if err := c.declareTopology(); err != nil {
		_ = c.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "rabbitmq client initialized")
	}
	return c, nil
}

func (c *Client) declareTopology() error {
	if err := c.ch.ExchangeDeclare(
		c.cfg.Exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %q: %w", c.cfg.Exchange, err)
	}

	if _, err := c.ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %q: %w", c.cfg.Queue, err)
	}

	// fanout exchanges ignore the routing key
	if err := c.ch.QueueBind(c.cfg.Queue, "", c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", c.cfg.Queue, err)
	}

	if c.cfg.Prefetch > 0 {
		if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}
	return nil
}

// Publish sends msg to the fan-out exchange as a persistent JSON message.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if c == nil || c.ch == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx,
		c.cfg.Exchange,
		"",    // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    msg.ID,
			Type:         msg.Type,
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         msg.Body,
		},
	)
}

// Consume starts a manual-ack consumer on the configured queue.
func (c *Client) Consume(consumer string) (<-chan amqp.Delivery, error) {
	if c == nil || c.ch == nil {
		return nil, errNotInitialized
	}
	deliveries, err := c.ch.Consume(
		c.cfg.Queue,
		consumer,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %q: %w", c.cfg.Queue, err)
	}
	return deliveries, nil
}

// NotifyClose reports connection loss.
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Ping reports whether the connection and channel are still open.
func (c *Client) Ping(context.Context) error {
	if c == nil || c.conn == nil {
		return errNotInitialized
	}
	if c.conn.IsClosed() || c.ch.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.ch != nil && !c.ch.IsClosed() {
		err = multierr.Append(err, c.ch.Close())
	}
	if c.conn != nil && !c.conn.IsClosed() {
		err = multierr.Append(err, c.conn.Close())
	}
	return err
}
