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

	"loanledger/internal/events"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second

	// PostingRoutingKey routes posting events on the exchange.
	PostingRoutingKey = "ledger.posting"
)

var (
	ErrCircuitOpen  = errors.New("circuit breaker is open")
	ErrClientClosed = errors.New("amqp client closed")
)

// Client publishes posting events and carries reconcile requests over
// a direct exchange. Reconcile requests are routed to queueName.
type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time

	// reconnecting is 1 while a reconnect loop runs; closed is 1 after Close.
	reconnecting int32
	closed       int32
	redial       func() error
	backoff      func(attempt int) time.Duration
}

var _ events.Publisher = (*Client)(nil)

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	client.redial = client.connect
	client.backoff = exponentialBackoff

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	staleCh, staleConn := c.channel, c.conn
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	if staleCh != nil {
		staleCh.Close()
	}
	if staleConn != nil {
		staleConn.Close()
	}
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	// Declare exchange
	err := ch.ExchangeDeclare(
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

	// Declare queue
	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Bind queue to exchange
	err = ch.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishPosting implements events.Publisher.
func (c *Client) PublishPosting(ctx context.Context, ev *events.PostingEvent) error {
	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, PostingRoutingKey, ev.ID.String(), body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published posting event",
		"event_id", ev.ID,
		"operation", ev.Operation,
		"entries", len(ev.Entries),
		"exchange", c.exchangeName)
	return nil
}

// PublishReconcileRequest asks a worker to reconcile the timeline.
func (c *Client) PublishReconcileRequest(ctx context.Context, req *events.ReconcileRequest) error {
	body, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, req.ID.String(), body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published reconcile request",
		"request_id", req.ID,
		"as_of", req.AsOf,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish message: %w", ErrCircuitOpen)
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		c.recordFailure()
		return fmt.Errorf("publish message: channel not open")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent, // make message persistent
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.triggerReconnect()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// ConsumeReconcileRequests delivers reconcile requests to handler until ctx
// is done. Malformed messages are dropped; handler failures are requeued.
// When the broker closes the delivery channel the client reconnects and
// consumption resumes on the new channel.
func (c *Client) ConsumeReconcileRequests(ctx context.Context, handler func(context.Context, *events.ReconcileRequest) error) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("start consuming: channel not open")
	}

	for {
		err := c.consume(ctx, ch, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if !errors.Is(err, errDeliveriesClosed) && !isConnectionError(err) {
			return err
		}

		slog.WarnContext(ctx, "Delivery channel closed, waiting for reconnect", "queue", c.queueName)
		next, err := c.waitForChannel(ctx, ch)
		if err != nil {
			return fmt.Errorf("resume consuming: %w", err)
		}
		ch = next
	}
}

var errDeliveriesClosed = errors.New("delivery channel closed by the connection")

func (c *Client) consume(ctx context.Context, ch *amqp091.Channel, handler func(context.Context, *events.ReconcileRequest) error) error {
	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming reconcile requests", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}

			req, err := events.ReconcileRequestFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			slog.InfoContext(ctx, "Processing reconcile request",
				"request_id", req.ID,
				"as_of", req.AsOf)

			if err := handler(ctx, req); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"request_id", req.ID)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false) // acknowledge successful processing
			slog.InfoContext(ctx, "Processed reconcile request", "request_id", req.ID)
		}
	}
}

// waitForChannel blocks until a channel other than stale is open, starting
// a reconnect whenever none is running.
func (c *Client) waitForChannel(ctx context.Context, stale *amqp091.Channel) (*amqp091.Channel, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if atomic.LoadInt32(&c.closed) == 1 {
			return nil, ErrClientClosed
		}
		c.mu.Lock()
		ch := c.channel
		c.mu.Unlock()
		if ch != nil && ch != stale {
			return ch, nil
		}
		c.triggerReconnect()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// triggerReconnect starts a reconnect loop unless one is already running or
// the client was closed. It reports whether a loop was started.
func (c *Client) triggerReconnect() bool {
	if atomic.LoadInt32(&c.closed) == 1 {
		return false
	}
	if !atomic.CompareAndSwapInt32(&c.reconnecting, 0, 1) {
		return false
	}
	go func() {
		defer atomic.StoreInt32(&c.reconnecting, 0)
		c.reconnect()
	}()
	return true
}

func (c *Client) reconnect() {
	redial, backoff := c.redial, c.backoff
	if redial == nil {
		redial = c.connect
	}
	if backoff == nil {
		backoff = exponentialBackoff
	}
	for attempt := 0; attempt < maxFailures; attempt++ {
		time.Sleep(backoff(attempt))
		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}
		if err := redial(); err != nil {
			slog.Warn("AMQP reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}
		slog.Info("AMQP reconnected", "attempt", attempt+1)
		c.recordSuccess()
		return
	}
	slog.Error("AMQP reconnect gave up", "attempts", maxFailures)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Close closes the connection and stops any further reconnects.
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
