// Package transport keeps one realtime connection to the backend, chosen
// from an ordered list of candidate endpoints, and multiplexes topic
// subscriptions over it. It never reconnects on its own.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"trip-tracker/internal/auth"
)

const (
	DefaultAttemptTimeout = 15 * time.Second
	DefaultHeartbeat      = 10 * time.Second
	subscriptionBuffer    = 64
)

var (
	ErrNotConnected        = errors.New("transport not connected")
	ErrAllEndpointsFailed  = errors.New("all endpoints failed")
	ErrNoEndpoints         = errors.New("no endpoints configured")
	ErrUnknownSubscription = errors.New("unknown subscription")
)

type Metrics interface {
	ConnectAttempt(scheme string, ok bool)
	SetConnected(connected bool)
	FrameReceived(topic string)
	PublishObserve(d time.Duration, err error)
}

type Options struct {
	Endpoints      []string
	Token          string
	AttemptTimeout time.Duration
	Heartbeat      time.Duration
	// Dialers by URL scheme. Defaults to DefaultDialers when nil.
	Dialers   map[string]Dialer
	Metrics   Metrics
	LogFrames bool
}

type Message struct {
	Topic string
	Body  []byte
}

// Subscription is a stream of messages for one topic. C is closed when the
// subscription is released, replaced or the connection drops.
type Subscription struct {
	ID    string
	Topic string
	C     <-chan Message

	ch     chan Message
	mu     sync.Mutex
	closed bool
	cancel func() error
}

func (s *Subscription) deliver(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- m:
		return true
	default:
		log.Printf("subscription %s on %s full, dropping message", s.ID, s.Topic)
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type connectCall struct {
	done chan struct{}
	err  error
}

type Transport struct {
	opts Options

	mu      sync.Mutex
	conn    Conn
	active  string // endpoint URL of conn
	pending *connectCall
	subs    map[string]*Subscription
	byTopic map[string]*Subscription
}

func New(opts Options) *Transport {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Dialers == nil {
		opts.Dialers = DefaultDialers(opts.Heartbeat)
	}
	return &Transport{
		opts:    opts,
		subs:    make(map[string]*Subscription),
		byTopic: make(map[string]*Subscription),
	}
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// ActiveEndpoint is the URL of the endpoint currently connected, or "".
func (t *Transport) ActiveEndpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Connect opens a connection if none is open. Callers arriving while a
// connect is in flight wait for and share its result.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	if call := t.pending; call != nil {
		t.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &connectCall{done: make(chan struct{})}
	t.pending = call
	t.mu.Unlock()

	conn, ep, err := t.dialAll(ctx)

	t.mu.Lock()
	t.pending = nil
	if err == nil {
		t.conn = conn
		t.active = ep.URL
	}
	call.err = err
	t.mu.Unlock()
	close(call.done)

	if err != nil {
		return err
	}
	if t.opts.Metrics != nil {
		t.opts.Metrics.SetConnected(true)
	}
	log.Printf("transport connected via %s", ep.URL)
	go t.watch(conn)
	return nil
}

func (t *Transport) dialAll(ctx context.Context) (Conn, Endpoint, error) {
	if len(t.opts.Endpoints) == 0 {
		return nil, Endpoint{}, ErrNoEndpoints
	}
	if err := auth.CheckFresh(t.opts.Token, time.Now()); err != nil {
		return nil, Endpoint{}, err
	}
	var errs []error
	for _, raw := range t.opts.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, Endpoint{}, err
		}
		ep, err := ParseEndpoint(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d, ok := t.opts.Dialers[ep.Scheme]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: no dialer for scheme %q", ep.URL, ep.Scheme))
			continue
		}
		conn, err := t.attempt(ctx, d, ep)
		if t.opts.Metrics != nil {
			t.opts.Metrics.ConnectAttempt(ep.Scheme, err == nil)
		}
		if err == nil {
			return conn, ep, nil
		}
		log.Printf("transport endpoint %s failed: %v", ep.URL, err)
		errs = append(errs, fmt.Errorf("%s: %w", ep.URL, err))
	}
	return nil, Endpoint{}, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, errors.Join(errs...))
}

// attempt dials one endpoint under its own timeout. A dial that completes
// after the timeout has fired is closed.
func (t *Transport) attempt(ctx context.Context, d Dialer, ep Endpoint) (Conn, error) {
	actx, cancel := context.WithTimeout(ctx, t.opts.AttemptTimeout)
	defer cancel()

	type result struct {
		conn Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := d.Dial(actx, ep, t.opts.Token)
		ch <- result{c, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-actx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("dial: %w", actx.Err())
	}
}

func (t *Transport) watch(conn Conn) {
	<-conn.Done()
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.active = ""
	subs := t.takeSubs()
	t.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	if t.opts.Metrics != nil {
		t.opts.Metrics.SetConnected(false)
	}
	log.Printf("transport connection lost, %d subscriptions released", len(subs))
}

// takeSubs empties the subscription tables. Caller holds t.mu.
func (t *Transport) takeSubs() []*Subscription {
	subs := make([]*Subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.subs = make(map[string]*Subscription)
	t.byTopic = make(map[string]*Subscription)
	return subs
}

// Disconnect releases every subscription and closes the connection. It is a
// no-op when not connected.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.conn = nil
	t.active = ""
	subs := t.takeSubs()
	t.mu.Unlock()

	for _, s := range subs {
		if err := s.cancel(); err != nil {
			log.Printf("unsubscribe %s on %s: %v", s.ID, s.Topic, err)
		}
		s.close()
	}
	err := conn.Close()
	if t.opts.Metrics != nil {
		t.opts.Metrics.SetConnected(false)
	}
	log.Printf("transport disconnected")
	return err
}

// Subscribe opens a stream for topic. An existing subscription to the same
// topic is released and replaced.
func (t *Transport) Subscribe(topic string) (*Subscription, error) {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	prev := t.byTopic[topic]
	if prev != nil {
		delete(t.subs, prev.ID)
		delete(t.byTopic, topic)
	}
	t.mu.Unlock()
	if prev != nil {
		t.release(prev)
	}

	ch := make(chan Message, subscriptionBuffer)
	sub := &Subscription{ID: uuid.NewString(), Topic: topic, C: ch, ch: ch}
	cancel, err := conn.Subscribe(topic, func(body []byte) {
		if t.opts.LogFrames {
			log.Printf("transport frame topic=%s bytes=%d", topic, len(body))
		}
		if t.opts.Metrics != nil {
			t.opts.Metrics.FrameReceived(topic)
		}
		sub.deliver(Message{Topic: topic, Body: body})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	sub.cancel = cancel

	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		_ = cancel()
		sub.close()
		return nil, ErrNotConnected
	}
	// a concurrent Subscribe for the same topic may have registered first
	raced := t.byTopic[topic]
	if raced != nil {
		delete(t.subs, raced.ID)
	}
	t.subs[sub.ID] = sub
	t.byTopic[topic] = sub
	t.mu.Unlock()
	if raced != nil {
		t.release(raced)
	}
	return sub, nil
}

func (t *Transport) Unsubscribe(id string) error {
	t.mu.Lock()
	sub, ok := t.subs[id]
	if ok {
		delete(t.subs, id)
		if t.byTopic[sub.Topic] == sub {
			delete(t.byTopic, sub.Topic)
		}
	}
	t.mu.Unlock()
	if !ok {
		return ErrUnknownSubscription
	}
	return t.release(sub)
}

func (t *Transport) release(sub *Subscription) error {
	err := sub.cancel()
	sub.close()
	return err
}

// Subscriptions returns the topics currently subscribed.
func (t *Transport) Subscriptions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	topics := make([]string, 0, len(t.byTopic))
	for topic := range t.byTopic {
		topics = append(topics, topic)
	}
	return topics
}

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	start := time.Now()
	err := conn.Publish(ctx, topic, payload)
	if t.opts.Metrics != nil {
		t.opts.Metrics.PublishObserve(time.Since(start), err)
	}
	if t.opts.LogFrames {
		log.Printf("transport publish topic=%s bytes=%d err=%v", topic, len(payload), err)
	}
	return err
}
