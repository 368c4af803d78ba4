package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSDialer struct {
	Heartbeat time.Duration
}

func (d NATSDialer) Dial(ctx context.Context, ep Endpoint, token string) (Conn, error) {
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

	nconn := &natsConn{done: make(chan struct{})}
	opts := []nats.Option{
		nats.Name("trip-tracker"),
		nats.Timeout(timeout),
		nats.PingInterval(hb),
		nats.MaxPingsOutstanding(3),
		// reconnecting is the session's decision, not the transport's
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("nats closed")
			nconn.shutdown()
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(ep.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	nconn.nc = nc
	return nconn, nil
}

type natsConn struct {
	nc        *nats.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (n *natsConn) shutdown() {
	n.closeOnce.Do(func() { close(n.done) })
}

func (n *natsConn) Subscribe(topic string, deliver func([]byte)) (func() error, error) {
	sub, err := n.nc.Subscribe(topic, func(m *nats.Msg) {
		deliver(m.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() error {
		if n.nc.IsClosed() {
			return nil
		}
		return sub.Unsubscribe()
	}, nil
}

func (n *natsConn) Publish(_ context.Context, topic string, body []byte) error {
	return n.nc.Publish(topic, body)
}

func (n *natsConn) Done() <-chan struct{} { return n.done }

func (n *natsConn) Close() error {
	if n.nc != nil && !n.nc.IsClosed() {
		if err := n.nc.Flush(); err != nil {
			log.Printf("nats flush on close: %v", err)
		}
		n.nc.Close()
	}
	n.shutdown()
	return nil
}
