package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types exchanged with the WebSocket gateway.
const (
	FrameConnect     = "CONNECT"
	FrameConnected   = "CONNECTED"
	FrameSubscribe   = "SUBSCRIBE"
	FrameUnsubscribe = "UNSUBSCRIBE"
	FrameSend        = "SEND"
	FrameMessage     = "MESSAGE"
	FrameHeartbeat   = "HEARTBEAT"
	FrameError       = "ERROR"
	FrameDisconnect  = "DISCONNECT"
)

type Frame struct {
	Type        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
	Token       string          `json:"token,omitempty"`
	Message     string          `json:"message,omitempty"`
	HeartbeatMs int64           `json:"heartbeatMs,omitempty"`
}

type WSDialer struct {
	Heartbeat time.Duration
}

func (d WSDialer) Dial(ctx context.Context, ep Endpoint, token string) (Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, ep.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	hb := d.Heartbeat
	if hb <= 0 {
		hb = DefaultHeartbeat
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.SetReadDeadline(deadline)
		_ = c.SetWriteDeadline(deadline)
	}
	if err := c.WriteJSON(Frame{Type: FrameConnect, Token: token, HeartbeatMs: hb.Milliseconds()}); err != nil {
		c.Close()
		return nil, fmt.Errorf("websocket connect frame: %w", err)
	}
	var ack Frame
	if err := c.ReadJSON(&ack); err != nil {
		c.Close()
		return nil, fmt.Errorf("websocket connect ack: %w", err)
	}
	if ack.Type != FrameConnected {
		c.Close()
		return nil, fmt.Errorf("%w: gateway answered %s %q", ErrProtocol, ack.Type, ack.Message)
	}
	_ = c.SetWriteDeadline(time.Time{})

	wc := &wsConn{
		c:         c,
		heartbeat: hb,
		handlers:  make(map[string]func([]byte)),
		done:      make(chan struct{}),
	}
	wc.extendReadDeadline()
	c.SetPongHandler(func(string) error {
		wc.extendReadDeadline()
		return nil
	})
	go wc.readLoop()
	go wc.heartbeatLoop()
	return wc, nil
}

type wsConn struct {
	c         *websocket.Conn
	heartbeat time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]func([]byte)

	done      chan struct{}
	closeOnce sync.Once
}

func (w *wsConn) extendReadDeadline() {
	_ = w.c.SetReadDeadline(time.Now().Add(3 * w.heartbeat))
}

func (w *wsConn) write(f Frame) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(w.heartbeat))
	return w.c.WriteJSON(f)
}

func (w *wsConn) readLoop() {
	defer w.shutdown()
	for {
		var f Frame
		if err := w.c.ReadJSON(&f); err != nil {
			select {
			case <-w.done:
			default:
				log.Printf("websocket read error: %v", err)
			}
			return
		}
		w.extendReadDeadline()
		switch f.Type {
		case FrameMessage:
			w.mu.Lock()
			h := w.handlers[f.ID]
			w.mu.Unlock()
			if h != nil {
				h([]byte(f.Body))
			}
		case FrameHeartbeat:
		case FrameError:
			log.Printf("websocket gateway error: %s", f.Message)
		default:
			log.Printf("websocket unexpected frame %q", f.Type)
		}
	}
}

// heartbeatLoop sends a ping and an application heartbeat every interval.
func (w *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.heartbeat)); err != nil {
				log.Printf("websocket ping failed: %v", err)
				w.shutdown()
				return
			}
			if err := w.write(Frame{Type: FrameHeartbeat}); err != nil {
				log.Printf("websocket heartbeat failed: %v", err)
				w.shutdown()
				return
			}
		}
	}
}

func (w *wsConn) Subscribe(topic string, deliver func([]byte)) (func() error, error) {
	id := uuid.NewString()
	w.mu.Lock()
	w.handlers[id] = deliver
	w.mu.Unlock()
	if err := w.write(Frame{Type: FrameSubscribe, ID: id, Topic: topic}); err != nil {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
		return nil, err
	}
	return func() error {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
		select {
		case <-w.done:
			return nil
		default:
		}
		return w.write(Frame{Type: FrameUnsubscribe, ID: id, Topic: topic})
	}, nil
}

func (w *wsConn) Publish(_ context.Context, topic string, body []byte) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	raw := json.RawMessage(body)
	if !json.Valid(body) {
		quoted, err := json.Marshal(string(body))
		if err != nil {
			return err
		}
		raw = quoted
	}
	return w.write(Frame{Type: FrameSend, Topic: topic, Body: raw})
}

func (w *wsConn) Done() <-chan struct{} { return w.done }

func (w *wsConn) shutdown() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.c.Close()
	})
}

func (w *wsConn) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	_ = w.write(Frame{Type: FrameDisconnect})
	w.writeMu.Lock()
	_ = w.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	w.writeMu.Unlock()
	w.shutdown()
	return nil
}
