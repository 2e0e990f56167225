package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "log/slog"

	ws "github.com/gorilla/websocket"
)

var ErrClosed = errors.New("protocol: connection closed")

type Config struct {
	Shard string
	URL   string
	// Reconn is the pause between reconnect attempts.
	Reconn time.Duration
	// EmitOut receives messages for this shard that are not a reply.
	EmitOut func(*Message)
}

// Client is one shard connected to the hub over a websocket. At most one
// request waits for its reply at a time.
type Client struct {
	cfg Config

	mu   sync.Mutex
	conn *ws.Conn

	writeMu sync.Mutex

	waiterMu sync.Mutex
	waiter   chan *Message

	done chan struct{}
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Reconn <= 0 {
		cfg.Reconn = time.Second
	}

	log.Debug("Dialing hub", "url", cfg.URL)
	conn, _, err := ws.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: dial %s: %w", cfg.URL, err)
	}

	return &Client{cfg: cfg, conn: conn, done: make(chan struct{})}, nil
}

func (c *Client) Shard() string { return c.cfg.Shard }

// Send transmits m from this shard.
func (c *Client) Send(m Message) error {
	m.From = c.cfg.Shard
	if err := m.Validate(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	line := m.String()
	log.Debug("Write ws", "msg", line)
	if err := conn.WriteMessage(ws.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// Request sends m and waits for the next message addressed to this shard.
// [Client.Run] must be running.
func (c *Client) Request(ctx context.Context, m Message) (*Message, error) {
	w, err := c.installWaiter()
	if err != nil {
		return nil, err
	}
	defer c.clearWaiter(w)

	if err := c.Send(m); err != nil {
		return nil, err
	}

	select {
	case resp := <-w:
		return resp, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run reads from the hub until ctx is done, reconnecting when the hub goes
// away.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		_ = c.conn.Close()
	})
	defer stop()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, raw, err := conn.ReadMessage()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if !isClosed(err) {
				log.Error("Failed to read", "err", err)
			}
			log.Warn("Reconnecting to hub", "url", c.cfg.URL)
			if err := c.reconnect(ctx); err != nil {
				return nil
			}
			if ctx.Err() != nil {
				_ = c.Close()
				return nil
			}
			log.Info("Reconnected to hub")
			continue
		}

		log.Debug("Read ws", "msg", string(raw))
		c.dispatch(string(raw))
	}
}

func (c *Client) dispatch(line string) {
	if strings.SplitN(line, ":", 2)[0] != c.cfg.Shard {
		return
	}

	msg, err := Parse(line)
	if err != nil {
		log.Warn("Failed to parse", "msg", line, "err", err)
		return
	}

	c.waiterMu.Lock()
	w := c.waiter
	c.waiter = nil
	c.waiterMu.Unlock()

	if w != nil {
		w <- msg
		return
	}
	if c.cfg.EmitOut != nil {
		c.cfg.EmitOut(msg)
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.Reconn):
		}
	}
}

func (c *Client) installWaiter() (chan *Message, error) {
	c.waiterMu.Lock()
	defer c.waiterMu.Unlock()
	if c.waiter != nil {
		return nil, errors.New("protocol: request already pending")
	}
	c.waiter = make(chan *Message, 1)
	return c.waiter, nil
}

func (c *Client) clearWaiter(w chan *Message) {
	c.waiterMu.Lock()
	defer c.waiterMu.Unlock()
	if c.waiter == w {
		c.waiter = nil
	}
}

// Close closes the connection. A running [Client.Run] then tries to
// reconnect; cancel its context to stop it.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
