package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/streadway/amqp"
)

// directReplyTo is RabbitMQ's pseudo-queue for request/reply without a
// dedicated reply queue.
const directReplyTo = "amq.rabbitmq.reply-to"

// ErrDeliveriesClosed is returned by Serve when the broker stops delivering.
var ErrDeliveriesClosed = errors.New("rabbitmq: delivery channel closed")

// Handler turns a request body into a reply body.
type Handler func(ctx context.Context, body []byte) []byte

// publisher is the publishing half of *amqp.Channel.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
	// Queue is declared on connect when set. Callers that only issue
	// requests can leave it empty.
	Queue    string
	Prefetch int
}

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	pub     publisher
	logger  *slog.Logger

	publishMu sync.Mutex

	repliesOnce sync.Once
	repliesErr  error
	pendingMu   sync.Mutex
	pending     map[string]chan []byte
}

// NewClient connects to RabbitMQ, opens a channel and declares cfg.Queue.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	if cfg.Queue != "" {
		_, err = ch.QueueDeclare(
			cfg.Queue, // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare %s: %w", cfg.Queue, err)
		}
	}

	logger.Info("RabbitMQ client connected", slog.String("queue", cfg.Queue))

	return newClient(ch, logger, conn), nil
}

func newClient(pub publisher, logger *slog.Logger, conn *amqp.Connection) *Client {
	c := &Client{
		conn:    conn,
		pub:     pub,
		logger:  logger,
		pending: make(map[string]chan []byte),
	}
	if ch, ok := pub.(*amqp.Channel); ok {
		c.channel = ch
	}
	return c
}

// IsClosed reports whether the broker connection is gone.
func (c *Client) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Serve consumes requests from queue and answers each one on its ReplyTo
// queue. Every delivery is handled on its own goroutine; the channel
// prefetch bounds how many run at once. Serve returns after ctx is done or
// the broker closes the delivery channel, once in-flight requests finish.
func (c *Client) Serve(ctx context.Context, queue string, handler Handler) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available for consumption")
	}

	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Waiting for RPC requests", slog.String("queue", queue))
	return c.serveDeliveries(ctx, msgs, handler)
}

func (c *Client) serveDeliveries(ctx context.Context, msgs <-chan amqp.Delivery, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	// Cancelling ctx stops intake only; accepted requests run to completion.
	handlerCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			wg.Add(1)
			go func(msg amqp.Delivery) {
				defer wg.Done()
				c.handleDelivery(handlerCtx, msg, handler)
			}(msg)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	reply := handler(ctx, msg.Body)

	if msg.ReplyTo != "" {
		err := c.publish(msg.ReplyTo, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: msg.CorrelationId,
			Body:          reply,
			Timestamp:     time.Now(),
		})
		if err != nil {
			c.logger.Error("Failed to publish RPC reply",
				slog.String("correlation_id", msg.CorrelationId),
				slog.String("error", err.Error()),
			)
			// The request already ran; requeueing would run it twice.
			if nackErr := msg.Nack(false, false); nackErr != nil {
				c.logger.Error("Failed to nack message", slog.String("error", nackErr.Error()))
			}
			return
		}
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message", slog.String("error", err.Error()))
	}
}

// Call publishes body to queue and waits for the matching reply.
func (c *Client) Call(ctx context.Context, queue string, body []byte) ([]byte, error) {
	if err := c.startReplies(); err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	replies := make(chan []byte, 1)

	c.pendingMu.Lock()
	c.pending[correlationID] = replies
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, correlationID)
		c.pendingMu.Unlock()
	}()

	err := c.publish(queue, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       directReplyTo,
		Body:          body,
		Timestamp:     time.Now(),
	})
	if err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startReplies subscribes to the direct reply-to queue once per client.
func (c *Client) startReplies() error {
	c.repliesOnce.Do(func() {
		if c.channel == nil {
			c.repliesErr = fmt.Errorf("RabbitMQ channel is not available for replies")
			return
		}
		msgs, err := c.channel.Consume(directReplyTo, "", true, false, false, false, nil)
		if err != nil {
			c.repliesErr = fmt.Errorf("failed to consume replies: %w", err)
			return
		}
		go func() {
			for msg := range msgs {
				c.deliverReply(msg)
			}
		}()
	})
	return c.repliesErr
}

func (c *Client) deliverReply(msg amqp.Delivery) {
	c.pendingMu.Lock()
	replies, ok := c.pending[msg.CorrelationId]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Warn("Dropping reply without caller", slog.String("correlation_id", msg.CorrelationId))
		return
	}
	select {
	case replies <- msg.Body:
	default:
	}
}

func (c *Client) publish(key string, msg amqp.Publishing) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	if err := c.pub.Publish("", key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
