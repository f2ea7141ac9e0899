package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states. The circuit opens after maxFailures consecutive
// publish failures and lets a trial request through once openTimeout has
// elapsed.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 60 * time.Second
)

var errChannelClosed = errors.New("message channel closed")

// Client owns one AMQP connection to the broker. Goal lifecycle events go
// out on the events queue; recorded transactions come in on the
// transactions queue. Both are bound to one direct exchange.
type Client struct {
	url          string
	exchangeName string
	eventsQueue  string
	txQueue      string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, eventsQueue, txQueue string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		eventsQueue:  eventsQueue,
		txQueue:      txQueue,
	}

	client.mu.Lock()
	err := client.connectLocked()
	client.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return client, nil
}

// connectLocked dials the broker and declares the topology. Callers hold
// c.mu.
func (c *Client) connectLocked() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setupLocked(); err != nil {
		channel.Close()
		conn.Close()
		c.conn = nil
		c.channel = nil
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	return nil
}

func (c *Client) setupLocked() error {
	// Declare exchange
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare both queues and bind each with its own name as routing key
	for _, queue := range []string{c.eventsQueue, c.txQueue} {
		_, err = c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		err = c.channel.QueueBind(
			queue,          // queue name
			queue,          // routing key
			c.exchangeName, // exchange
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// ensureChannel returns a live channel, re-dialing when the previous
// connection died.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.channel, nil
}

// PublishGoalEvent publishes a goal lifecycle event to the events queue.
// A cancelled context wins over everything; an open circuit drops the
// event without touching the broker.
func (c *Client) PublishGoalEvent(ctx context.Context, event string, goalID int64, userID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, dropping %s for goal %d", event, goalID)
	}

	msg := NewGoalEventMessage(event, goalID, userID)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	channel, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("connect for publish: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.eventsQueue,  // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent, // make message persistent
			MessageId:    msg.EventID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	slog.InfoContext(ctx, "Published goal event",
		"event", event,
		"goal_id", goalID,
		"user_id", userID,
		"event_id", msg.EventID,
		"exchange", c.exchangeName)

	return nil
}

// ConsumeTransactions delivers recorded transactions to handler until ctx
// is cancelled. Lost connections are re-dialed with exponential backoff;
// handler errors requeue the message, unmarshal errors drop it.
func (c *Client) ConsumeTransactions(ctx context.Context, handler func(*TransactionRecordedMessage) error) error {
	return c.consume(ctx, c.txQueue, func(body []byte) (string, error) {
		msg, err := TransactionRecordedMessageFromJSON(body)
		if err != nil {
			return "", err
		}
		return msg.EventID, handler(msg)
	})
}

// ConsumeGoalEvents delivers goal lifecycle events to handler until ctx
// is cancelled, with the same reconnect and ack behavior as
// ConsumeTransactions.
func (c *Client) ConsumeGoalEvents(ctx context.Context, handler func(*GoalEventMessage) error) error {
	return c.consume(ctx, c.eventsQueue, func(body []byte) (string, error) {
		msg, err := GoalEventMessageFromJSON(body)
		if err != nil {
			return "", err
		}
		return msg.EventID, handler(msg)
	})
}

// consume runs the reconnecting delivery loop for one queue. handle
// decodes and processes a message body, returning the event id for
// logging; a decode error drops the message, a processing error requeues
// it.
func (c *Client) consume(ctx context.Context, queue string, handle func(body []byte) (string, error)) error {
	for attempt := 0; ; attempt++ {
		channel, err := c.ensureChannel()
		if err == nil {
			attempt = 0
			err = c.consumeLoop(ctx, channel, queue, handle)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, errChannelClosed) && !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer disconnected, reconnecting",
			"queue", queue,
			"attempt", attempt+1,
			"wait", wait.String(),
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeLoop(ctx context.Context, channel *amqp091.Channel, queue string, handle func(body []byte) (string, error)) error {
	msgs, err := channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming messages", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errChannelClosed
			}

			eventID, err := handle(delivery.Body)
			if eventID == "" && err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "queue", queue, "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"queue", queue,
					"event_id", eventID,
					"error", err)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false) // acknowledge successful processing
			slog.InfoContext(ctx, "Processed message", "queue", queue, "event_id", eventID)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// isCircuitOpen reports whether publishing is currently blocked. An open
// circuit flips to half-open after openTimeout, letting one request probe
// the broker.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}

	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()

	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	count := atomic.AddInt64(&c.failureCount, 1)

	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	if count >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff doubles the wait per attempt, capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// isConnectionError reports whether err looks like a broken broker
// connection worth re-dialing, as opposed to a permanent failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"connection refused",
		"connection closed",
		"channel/connection is not open",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
