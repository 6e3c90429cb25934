package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"baechamap/internal/logger"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 20 * time.Second
	wsReadLimit  = 4 << 20
)

type WebsocketOptions struct {
	URL        string
	Header     http.Header
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// WebsocketChannel speaks JSON envelopes ({"event", "data"}) over a gorilla
// websocket and redials with exponential backoff when the connection drops.
type WebsocketChannel struct {
	opts     WebsocketOptions
	dialer   *websocket.Dialer
	handlers *handlerSet
	log      logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	closed    chan struct{}
	closeOnce sync.Once
}

func NewWebsocketChannel(opts WebsocketOptions, log logger.Logger) *WebsocketChannel {
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = 500 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = 30 * time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &WebsocketChannel{
		opts:     opts,
		dialer:   websocket.DefaultDialer,
		handlers: newHandlerSet(),
		log:      log,
		closed:   make(chan struct{}),
	}
}

func (c *WebsocketChannel) On(event string, h Handler) func() { return c.handlers.on(event, h) }

func (c *WebsocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *WebsocketChannel) Run(ctx context.Context) error {
	backoff := c.opts.BackoffMin
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return nil
		default:
		}

		conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err != nil {
			c.log.Warnf("dial %s failed: %v (retry in %s)", c.opts.URL, err, backoff)
		} else {
			backoff = c.opts.BackoffMin
			err = c.serve(ctx, conn)
			if errors.Is(err, ErrClosed) {
				return nil
			}
			c.log.Warnf("connection lost: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.BackoffMax {
			backoff = c.opts.BackoffMax
		}
	}
}

// serve runs one connection until it fails.
func (c *WebsocketChannel) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Infof("connected to %s", c.opts.URL)
	c.handlers.dispatch(EventConnect, nil)

	done := make(chan struct{})
	defer func() {
		close(done)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		c.handlers.dispatch(EventDisconnect, nil)
	}()

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-c.closed:
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
				return ErrClosed
			default:
			}
			return err
		}
		if env.Event == "" {
			c.log.Debugf("dropping frame without event name")
			continue
		}
		c.handlers.dispatch(env.Event, env.Data)
	}
}

func (c *WebsocketChannel) Emit(ctx context.Context, event string, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteJSON(envelope{Event: event, Data: data})
}

func (c *WebsocketChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}
