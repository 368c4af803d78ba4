package transport

import (
	"context"
	"sync"
)

type fakeConn struct {
	mu        sync.Mutex
	handlers  map[string]map[int]func([]byte)
	nextID    int
	published []Message
	unsubs    []string
	closed    bool
	done      chan struct{}
	once      sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]map[int]func([]byte)), done: make(chan struct{})}
}

func (f *fakeConn) Subscribe(topic string, deliver func([]byte)) (func() error, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.handlers[topic] == nil {
		f.handlers[topic] = make(map[int]func([]byte))
	}
	f.handlers[topic][id] = deliver
	f.mu.Unlock()
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubs = append(f.unsubs, topic)
		delete(f.handlers[topic], id)
		return nil
	}, nil
}

func (f *fakeConn) handlerCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[topic])
}

func (f *fakeConn) emit(topic string, body string) {
	f.mu.Lock()
	hs := make([]func([]byte), 0, len(f.handlers[topic]))
	for _, h := range f.handlers[topic] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h([]byte(body))
	}
}

func (f *fakeConn) Publish(_ context.Context, topic string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, Message{Topic: topic, Body: body})
	return nil
}

func (f *fakeConn) Done() <-chan struct{} { return f.done }

func (f *fakeConn) drop() { f.once.Do(func() { close(f.done) }) }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.drop()
	return nil
}
