package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientOptions tunes one connection's pumps.
type ClientOptions struct {
	SendQueue       int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
}

func (o *ClientOptions) norm() {
	if o.SendQueue <= 0 {
		o.SendQueue = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
}

// Client is one live WebSocket connection. Frames are queued by Send and written
// by a single writer goroutine.
type Client struct {
	ConnID string
	UserID string

	ws   *websocket.Conn
	send chan []byte
	opts ClientOptions
	log  *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(connID, userID string, ws *websocket.Conn, opts ClientOptions, log *zap.Logger) *Client {
	opts.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		ConnID: connID,
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, opts.SendQueue),
		opts:   opts,
		log:    log.With(zap.String("connId", connID), zap.String("userId", userID)),
		done:   make(chan struct{}),
	}
}

// Send enqueues frame without blocking; a full queue or a closed client drops it.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the writer, which sends a close frame and closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }

// writePump owns every write on the socket: queued frames and pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		// only the write pump sends Close and closes the socket
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.opts.WriteWait))
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Info("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.log.Info("ping failed", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop feeds frames to handle in arrival order until the socket fails or
// the client is closed. handle runs on ctx, which outlives the connection.
func (c *Client) readLoop(ctx context.Context, handle func(ctx context.Context, raw []byte)) {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadErr(err)
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		handle(ctx, data)
	}
}

func (c *Client) logReadErr(err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug("peer closed", zap.Error(err))
	case errors.As(err, &ne) && ne.Timeout():
		c.log.Info("read timeout", zap.Error(err))
	case errors.Is(err, net.ErrClosed):
		c.log.Debug("socket closed")
	default:
		c.log.Info("read failed", zap.Error(err))
	}
}
