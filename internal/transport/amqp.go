package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpExchange = "tracking"

type AMQPDialer struct {
	Heartbeat time.Duration
}

func (d AMQPDialer) Dial(ctx context.Context, ep Endpoint, token string) (Conn, error) {
	timeout := DefaultAttemptTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
	}
	hb := d.Heartbeat
	if hb <= 0 {
		hb = DefaultHeartbeat
	}
	cfg := amqp.Config{
		Heartbeat:  hb,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.Table{"connection_name": "trip-tracker"},
	}
	if token != "" {
		// token-as-password, as accepted by the broker's OAuth2 backend
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: "token", Password: token}}
	}
	conn, err := amqp.DialConfig(ep.URL, cfg)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(amqpExchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: declare exchange: %v", ErrProtocol, err)
	}

	ac := &amqpConn{conn: conn, ch: ch, done: make(chan struct{})}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-closed; ok && err != nil {
			log.Printf("amqp connection closed: %v", err)
		}
		ac.shutdown()
	}()
	return ac, nil
}

type amqpConn struct {
	conn *amqp.Connection
	mu   sync.Mutex
	ch   *amqp.Channel

	done      chan struct{}
	closeOnce sync.Once
}

func (a *amqpConn) shutdown() {
	a.closeOnce.Do(func() { close(a.done) })
}

func (a *amqpConn) Subscribe(topic string, deliver func([]byte)) (func() error, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, err := a.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := a.ch.QueueBind(q.Name, topic, amqpExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	tag := "sub-" + uuid.NewString()
	deliveries, err := a.ch.Consume(q.Name, tag, true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	go func() {
		for d := range deliveries {
			deliver(d.Body)
		}
	}()
	return func() error {
		if a.conn.IsClosed() {
			return nil
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.ch.Cancel(tag, false)
	}, nil
}

func (a *amqpConn) Publish(ctx context.Context, topic string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.PublishWithContext(ctx, amqpExchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (a *amqpConn) Done() <-chan struct{} { return a.done }

func (a *amqpConn) Close() error {
	var err error
	if !a.conn.IsClosed() {
		_ = a.ch.Close()
		err = a.conn.Close()
	}
	a.shutdown()
	return err
}

// DefaultDialers maps URL schemes to the built-in dialers.
func DefaultDialers(heartbeat time.Duration) map[string]Dialer {
	ws := WSDialer{Heartbeat: heartbeat}
	nd := NATSDialer{Heartbeat: heartbeat}
	ad := AMQPDialer{Heartbeat: heartbeat}
	return map[string]Dialer{
		"ws":    ws,
		"wss":   ws,
		"nats":  nd,
		"tls":   nd,
		"amqp":  ad,
		"amqps": ad,
	}
}
