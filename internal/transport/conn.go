package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrProtocol = errors.New("protocol error")
	ErrClosed   = errors.New("connection closed")
)

// Conn is one established connection to a realtime endpoint.
type Conn interface {
	// Subscribe starts delivering bodies published on topic. The returned
	// func cancels the subscription.
	Subscribe(topic string, deliver func(body []byte)) (func() error, error)
	Publish(ctx context.Context, topic string, body []byte) error
	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}
	Close() error
}

type Endpoint struct {
	URL    string
	Scheme string
}

func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing scheme or host", raw)
	}
	return Endpoint{URL: raw, Scheme: strings.ToLower(u.Scheme)}, nil
}

// Dialer opens a Conn to an endpoint. Implementations must honour ctx.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint, token string) (Conn, error)
}

type DialerFunc func(ctx context.Context, ep Endpoint, token string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, ep Endpoint, token string) (Conn, error) {
	return f(ctx, ep, token)
}
