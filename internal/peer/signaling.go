// Package peer implements the browser-equivalent side of the chat: a
// signaling client that talks to the presence registry and a negotiation
// client that establishes direct data channels to remote peers.
package peer

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"campuschat/internal/core/domain"
	"campuschat/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EnvelopeHandler receives every envelope read from the registry.
type EnvelopeHandler func(domain.Envelope)

// SignalingClient maintains the WebSocket connection to the registry.
// When the transport drops it reconnects at a fixed interval, forever,
// until Close is called. No backoff: the registry is expected to come
// back quickly and a late join costs only a fresh user-joined broadcast.
type SignalingClient struct {
	serverURL      string
	token          string
	reconnectDelay time.Duration
	handler        EnvelopeHandler
	logger         *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

func NewSignalingClient(serverURL, token string, reconnectDelay time.Duration, handler EnvelopeHandler, logger *zap.SugaredLogger) *SignalingClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &SignalingClient{
		serverURL:      serverURL,
		token:          token,
		reconnectDelay: reconnectDelay,
		handler:        handler,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect dials the registry and starts the read loop. The passed context
// bounds the initial dial only; the connection's lifetime is governed by
// Close.
func (c *SignalingClient) Connect(ctx context.Context) error {
	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.setConn(ws)
	go c.readLoop(ws)
	return nil
}

func (c *SignalingClient) dial(ctx context.Context) (*websocket.Conn, error) {
	u := fmt.Sprintf("%s?token=%s", c.serverURL, url.QueryEscape(c.token))
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	return ws, nil
}

func (c *SignalingClient) setConn(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *SignalingClient) readLoop(ws *websocket.Conn) {
	// gorilla answers registry pings with pongs automatically, which is
	// what keeps the liveness flag on the server side refreshed.
	for {
		var env domain.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Infow("signaling connection lost", "error", err)
			break
		}
		c.handler(env)
	}

	c.reconnect()
}

func (c *SignalingClient) reconnect() {
	err := retry.Do(c.ctx, retry.FixedInterval(c.reconnectDelay, 0), func() error {
		ws, err := c.dial(c.ctx)
		if err != nil {
			c.logger.Debugw("reconnect attempt failed", "error", err)
			return err
		}
		c.setConn(ws)
		go c.readLoop(ws)
		c.logger.Info("signaling connection reestablished")
		return nil
	})
	if err != nil && !c.isClosed() {
		c.logger.Warnw("reconnect abandoned", "error", err)
	}
}

// Send writes one envelope to the registry.
func (c *SignalingClient) Send(env domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.ws == nil {
		return domain.ErrChannelNotReady
	}
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(env)
}

func (c *SignalingClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the connection down and stops any reconnect attempt. Safe
// to call multiple times.
func (c *SignalingClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		return ws.Close()
	}
	return nil
}
