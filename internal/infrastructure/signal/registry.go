// Package signal implements the presence registry and relay: it accepts
// WebSocket connections, authenticates them, tracks which identities are
// online, forwards negotiation envelopes between peers and evicts
// connections that stop answering liveness probes.
package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"campuschat/internal/core/domain"
	"campuschat/internal/core/ports"
	"campuschat/internal/infrastructure/monitoring"
	"campuschat/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxMessageSize = 64 * 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tunes the registry. Zero values fall back to defaults.
type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	MessageRate  float64 // inbound envelopes/sec per connection; 0 disables
	MessageBurst int
}

// Registry owns the identity → connection table. A connection enters the
// table after its token resolves to an identity and leaves it on
// transport close, error or liveness eviction; the Identity Record in the
// presence repository tracks the table entry exactly.
type Registry struct {
	resolver ports.IdentityResolver
	presence ports.PresenceRepository
	metrics  *monitoring.Collector

	mu    sync.RWMutex
	table map[domain.Identity]*connection

	pingInterval time.Duration
	writeTimeout time.Duration
	msgRate      float64
	msgBurst     int

	logger *zap.SugaredLogger
}

type connection struct {
	identity domain.Identity
	ws       *websocket.Conn

	writeMu sync.Mutex

	aliveMu sync.Mutex
	alive   bool
}

func (c *connection) markAlive() {
	c.aliveMu.Lock()
	c.alive = true
	c.aliveMu.Unlock()
}

// checkAndClear returns the current liveness flag and resets it to false,
// arming the next sweep cycle.
func (c *connection) checkAndClear() bool {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

func (c *connection) writeJSON(v interface{}, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WriteJSON(v)
}

func (c *connection) writePrepared(pm *websocket.PreparedMessage, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WritePreparedMessage(pm)
}

func NewRegistry(resolver ports.IdentityResolver, presence ports.PresenceRepository, metrics *monitoring.Collector, logger *zap.SugaredLogger, opts Options) *Registry {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Registry{
		resolver:     resolver,
		presence:     presence,
		metrics:      metrics,
		table:        make(map[domain.Identity]*connection),
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		msgRate:      opts.MessageRate,
		msgBurst:     opts.MessageBurst,
		logger:       logger,
	}
}

// Run drives the liveness sweep until ctx is cancelled.
func (s *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes. The token query parameter is the only accepted credential;
// connections without one are closed with a policy-violation code.
func (s *Registry) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		s.logger.Warn("connection without token rejected")
		s.closeWithPolicyViolation(ws, "Authentication required")
		return
	}

	record, err := s.resolver.Resolve(r.Context(), token)
	if err != nil {
		s.logger.Warnw("credential resolution failed", "error", err)
		s.closeWithPolicyViolation(ws, "Authentication failed")
		return
	}

	conn := &connection{identity: record.ID, ws: ws, alive: true}
	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		conn.markAlive()
		return nil
	})

	s.register(conn, record)
	s.readLoop(conn)
}

func (s *Registry) closeWithPolicyViolation(ws *websocket.Conn, reason string) {
	deadline := time.Now().Add(s.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	ws.WriteControl(websocket.CloseMessage, msg, deadline)
	ws.Close()
}

// register installs the connection in the table. A prior connection under
// the same identity loses its relay target and its transport is closed
// (last-writer-wins, no multi-session support).
func (s *Registry) register(conn *connection, record domain.IdentityRecord) {
	s.mu.Lock()
	old := s.table[conn.identity]
	s.table[conn.identity] = conn
	size := len(s.table)
	s.mu.Unlock()

	if old != nil {
		s.logger.Infow("replacing existing connection", "user_id", conn.identity)
		old.ws.Close()
	}

	if err := s.presence.Put(context.Background(), record); err != nil {
		s.logger.Errorw("failed to store identity record", "user_id", conn.identity, "error", err)
	}

	s.metrics.ConnectionOpened(size)
	s.logger.Infow("user connected", "user_id", conn.identity, "reconnect", old != nil)

	s.broadcast(domain.Envelope{
		Type:   domain.EnvelopeUserJoined,
		UserID: conn.identity,
	}, conn.identity)
}

func (s *Registry) readLoop(conn *connection) {
	var limiter *rate.Limiter
	if s.msgRate > 0 {
		burst := s.msgBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.msgRate), burst)
	}

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "user_id", conn.identity, "error", err)
			}
			s.disconnect(conn)
			conn.ws.Close()
			return
		}

		if limiter != nil && !limiter.Allow() {
			s.metrics.EnvelopeDropped("rate_limited")
			continue
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warnw("malformed envelope", "user_id", conn.identity, "error", err)
			s.metrics.EnvelopeDropped("malformed")
			continue
		}

		s.relay(conn, env)
	}
}

// relay forwards a negotiation envelope to its addressee. The sender's
// identity is stamped into From, overwriting whatever the client sent, so
// a peer can never impersonate another. Undeliverable envelopes are
// dropped without any feedback to the sender.
func (s *Registry) relay(sender *connection, env domain.Envelope) {
	ctx, span := tracing.TraceEnvelope(context.Background(), string(env.Type), string(sender.identity))
	defer span.End()

	if !env.IsRelayable() {
		s.logger.Warnw("unknown envelope type", "type", env.Type, "user_id", sender.identity)
		s.metrics.EnvelopeDropped("unknown_type")
		return
	}

	env.From = sender.identity

	if env.To == "" {
		s.metrics.EnvelopeDropped("no_target")
		return
	}
	span.SetAttributes(tracing.TargetKey.String(string(env.To)))

	s.mu.RLock()
	target, ok := s.table[env.To]
	s.mu.RUnlock()
	if !ok {
		s.logger.Debugw("envelope for offline identity dropped", "to", env.To, "from", env.From)
		s.metrics.EnvelopeDropped("target_offline")
		return
	}

	if err := target.writeJSON(env, s.writeTimeout); err != nil {
		s.logger.Infow("relay write failed", "to", env.To, "from", env.From, "error", err)
		tracing.RecordError(ctx, err)
		s.metrics.EnvelopeDropped("write_failed")
		return
	}

	s.metrics.EnvelopeRelayed(string(env.Type))
}

// disconnect removes the connection and broadcasts user-left. It is keyed
// on the exact connection value: a late close from a connection that was
// already replaced must not evict its replacement, and a second
// disconnect for the same connection is a no-op.
func (s *Registry) disconnect(conn *connection) {
	s.mu.Lock()
	current, ok := s.table[conn.identity]
	if !ok || current != conn {
		s.mu.Unlock()
		return
	}
	delete(s.table, conn.identity)
	size := len(s.table)
	s.mu.Unlock()

	if err := s.presence.Remove(context.Background(), conn.identity); err != nil {
		s.logger.Warnw("failed to remove identity record", "user_id", conn.identity, "error", err)
	}

	s.metrics.ConnectionClosed(size)
	s.logger.Infow("user disconnected", "user_id", conn.identity)

	s.broadcast(domain.Envelope{
		Type:   domain.EnvelopeUserLeft,
		UserID: conn.identity,
	}, "")
}

// sweep evicts every connection whose liveness flag was not refreshed
// since the previous cycle and pings the rest.
func (s *Registry) sweep() {
	s.mu.RLock()
	conns := make([]*connection, 0, len(s.table))
	for _, c := range s.table {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	deadline := time.Now().Add(s.writeTimeout)
	for _, c := range conns {
		if !c.checkAndClear() {
			s.logger.Infow("evicting unresponsive connection", "user_id", c.identity)
			s.metrics.ConnectionEvicted()
			s.disconnect(c)
			c.ws.Close()
			continue
		}
		if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			s.logger.Infow("ping failed", "user_id", c.identity, "error", err)
		}
	}
}

// broadcast sends the envelope to every connection except excluded. The
// payload is marshalled once and shared across all writes.
func (s *Registry) broadcast(env domain.Envelope, exclude domain.Identity) {
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Errorw("broadcast marshal failed", "error", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		s.logger.Errorw("broadcast prepare failed", "error", err)
		return
	}

	s.mu.RLock()
	conns := make([]*connection, 0, len(s.table))
	for _, c := range s.table {
		if c.identity == exclude {
			continue
		}
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.writePrepared(pm, s.writeTimeout); err != nil {
			s.logger.Infow("broadcast write failed", "user_id", c.identity, "error", err)
		}
	}

	s.metrics.Broadcast(string(env.Type))
}

// ListOnline returns a snapshot of the Identity Records of everyone
// currently connected.
func (s *Registry) ListOnline(ctx context.Context) ([]domain.IdentityRecord, error) {
	return s.presence.List(ctx)
}

// IsOnline reports whether an identity has a registered connection.
func (s *Registry) IsOnline(id domain.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.table[id]
	return ok
}

// ConnectionCount returns the size of the registry table.
func (s *Registry) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}
