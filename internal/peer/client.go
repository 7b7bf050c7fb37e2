package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"campuschat/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// envelopeSender is the slice of the signaling client the negotiation
// logic needs.
type envelopeSender interface {
	Send(domain.Envelope) error
}

// Config carries everything a Client needs to reach the registry and
// negotiate peer connections.
type Config struct {
	ServerURL          string
	Token              string
	ICEServers         []string
	ReconnectDelay     time.Duration
	NegotiationTimeout time.Duration
}

// Callbacks are invoked from signaling and data channel goroutines; they
// must not block.
type Callbacks struct {
	OnMessage       func(from domain.Identity, text string, at time.Time)
	OnTyping        func(from domain.Identity, isTyping bool)
	OnPeerJoined    func(peer domain.Identity)
	OnPeerLeft      func(peer domain.Identity)
	OnSessionReady  func(peer domain.Identity)
	OnSessionFailed func(peer domain.Identity)
}

// Client negotiates and owns peer sessions, one per remote identity.
// Initiating a call toward an identity that already has a session
// replaces it: the old session is closed first, so a stale half-open
// connection can never shadow the new one.
type Client struct {
	cfg       Config
	callbacks Callbacks
	logger    *zap.SugaredLogger

	signaling envelopeSender
	transport *SignalingClient

	mu       sync.Mutex
	sessions map[domain.Identity]*Session
	closed   bool
}

func NewClient(cfg Config, callbacks Callbacks, logger *zap.SugaredLogger) *Client {
	c := &Client{
		cfg:       cfg,
		callbacks: callbacks,
		logger:    logger,
		sessions:  make(map[domain.Identity]*Session),
	}
	c.transport = NewSignalingClient(cfg.ServerURL, cfg.Token, cfg.ReconnectDelay, c.handleEnvelope, logger)
	c.signaling = c.transport
	return c
}

// Connect establishes the signaling connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// handleEnvelope dispatches one envelope from the registry. Envelopes
// that reference no live session are dropped.
func (c *Client) handleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.EnvelopeUserJoined:
		if c.callbacks.OnPeerJoined != nil {
			c.callbacks.OnPeerJoined(env.UserID)
		}
	case domain.EnvelopeUserLeft:
		c.dropSession(env.UserID)
		if c.callbacks.OnPeerLeft != nil {
			c.callbacks.OnPeerLeft(env.UserID)
		}
	case domain.EnvelopeOffer:
		if err := c.handleOffer(env.From, env.Offer); err != nil {
			c.logger.Warnw("failed to answer offer", "from", env.From, "error", err)
		}
	case domain.EnvelopeAnswer:
		sess := c.session(env.From)
		if sess == nil {
			c.logger.Debugw("answer for unknown session dropped", "from", env.From)
			return
		}
		if env.Answer == nil {
			return
		}
		if err := sess.applyAnswer(env.Answer); err != nil {
			c.logger.Warnw("failed to apply answer", "from", env.From, "error", err)
		}
	case domain.EnvelopeICECandidate:
		sess := c.session(env.From)
		if sess == nil || env.Candidate == nil {
			return
		}
		if err := sess.addCandidate(env.Candidate); err != nil {
			c.logger.Debugw("failed to add candidate", "from", env.From, "error", err)
		}
	default:
		c.logger.Debugw("unknown envelope dropped", "type", env.Type)
	}
}

// InitiateCall starts negotiation with the remote identity. The local
// side creates the chat data channel, so the remote's session becomes
// ready when the channel arrives through its peer connection.
func (c *Client) InitiateCall(remote domain.Identity) error {
	sess, err := c.createSession(remote)
	if err != nil {
		return err
	}

	dc, err := sess.pc.CreateDataChannel("chat", nil)
	if err != nil {
		sess.Close()
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	sess.bindChannel(dc)

	offer, err := sess.pc.CreateOffer(nil)
	if err != nil {
		sess.Close()
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := sess.pc.SetLocalDescription(offer); err != nil {
		sess.Close()
		return fmt.Errorf("failed to set local description: %w", err)
	}

	return c.signaling.Send(domain.Envelope{
		Type: domain.EnvelopeOffer,
		To:   remote,
		Offer: &domain.SessionDescription{
			Type: offer.Type.String(),
			SDP:  offer.SDP,
		},
	})
}

// handleOffer answers an incoming offer, replacing any existing session
// with the caller.
func (c *Client) handleOffer(remote domain.Identity, desc *domain.SessionDescription) error {
	if desc == nil {
		return nil
	}

	sess, err := c.createSession(remote)
	if err != nil {
		return err
	}
	sess.pc.OnDataChannel(sess.bindChannel)

	if err := sess.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	}); err != nil {
		sess.Close()
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := sess.pc.CreateAnswer(nil)
	if err != nil {
		sess.Close()
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := sess.pc.SetLocalDescription(answer); err != nil {
		sess.Close()
		return fmt.Errorf("failed to set local description: %w", err)
	}

	return c.signaling.Send(domain.Envelope{
		Type: domain.EnvelopeAnswer,
		To:   remote,
		Answer: &domain.SessionDescription{
			Type: answer.Type.String(),
			SDP:  answer.SDP,
		},
	})
}

// createSession builds a peer connection for the remote, installing it
// in the session table and closing whatever was there before.
func (c *Client) createSession(remote domain.Identity) (*Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	old := c.sessions[remote]
	delete(c.sessions, remote)
	c.mu.Unlock()

	if old != nil {
		c.logger.Infow("replacing existing session", "remote", remote)
		old.Close()
	}

	var rtcConfig webrtc.Configuration
	if len(c.cfg.ICEServers) > 0 {
		rtcConfig.ICEServers = []webrtc.ICEServer{{URLs: c.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(rtcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	sess := newSession(remote, pc, c.logger)
	sess.onReady = c.callbacks.OnSessionReady
	sess.onFailed = c.onSessionFailed
	sess.onPayload = c.dispatchPayload

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		if err := c.signaling.Send(domain.Envelope{
			Type: domain.EnvelopeICECandidate,
			To:   remote,
			Candidate: &domain.ICECandidate{
				Candidate:        init.Candidate,
				SDPMid:           init.SDPMid,
				SDPMLineIndex:    init.SDPMLineIndex,
				UsernameFragment: init.UsernameFragment,
			},
		}); err != nil {
			c.logger.Debugw("failed to send candidate", "remote", remote, "error", err)
		}
	})

	sess.armDeadline(c.cfg.NegotiationTimeout)

	c.mu.Lock()
	c.sessions[remote] = sess
	c.mu.Unlock()
	return sess, nil
}

func (c *Client) onSessionFailed(remote domain.Identity) {
	c.mu.Lock()
	if c.sessions[remote] != nil && c.sessions[remote].State() == StateFailed {
		delete(c.sessions, remote)
	}
	c.mu.Unlock()

	if c.callbacks.OnSessionFailed != nil {
		c.callbacks.OnSessionFailed(remote)
	}
}

func (c *Client) dispatchPayload(from domain.Identity, data []byte) {
	var payload channelPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Debugw("malformed channel payload dropped", "from", from, "error", err)
		return
	}

	switch payload.Type {
	case PayloadChat:
		if c.callbacks.OnMessage != nil {
			c.callbacks.OnMessage(from, payload.Text, payload.Timestamp)
		}
	case PayloadTyping:
		if c.callbacks.OnTyping != nil {
			c.callbacks.OnTyping(from, payload.IsTyping)
		}
	default:
		c.logger.Debugw("unknown channel payload dropped", "from", from, "type", payload.Type)
	}
}

// SendMessage delivers a chat message to the remote peer. Messages sent
// before the data channel is open are dropped without error, matching
// the fire-and-forget semantics of the channel itself.
func (c *Client) SendMessage(remote domain.Identity, text string) {
	sess := c.session(remote)
	if sess == nil || !sess.ready() {
		c.logger.Debugw("message dropped, channel not ready", "remote", remote)
		return
	}
	if err := sess.send(ChatPayload{Type: PayloadChat, Text: text, Timestamp: time.Now().UTC()}); err != nil {
		c.logger.Debugw("message dropped", "remote", remote, "error", err)
	}
}

// SendTypingIndicator reports the local typing state to the remote peer.
func (c *Client) SendTypingIndicator(remote domain.Identity, isTyping bool) {
	sess := c.session(remote)
	if sess == nil || !sess.ready() {
		return
	}
	if err := sess.send(TypingPayload{Type: PayloadTyping, IsTyping: isTyping}); err != nil {
		c.logger.Debugw("typing indicator dropped", "remote", remote, "error", err)
	}
}

// SessionState reports the lifecycle state of the session with the
// remote, or false when none exists.
func (c *Client) SessionState(remote domain.Identity) (SessionState, bool) {
	sess := c.session(remote)
	if sess == nil {
		return 0, false
	}
	return sess.State(), true
}

func (c *Client) session(remote domain.Identity) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[remote]
}

func (c *Client) dropSession(remote domain.Identity) {
	c.mu.Lock()
	sess := c.sessions[remote]
	delete(c.sessions, remote)
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// Disconnect closes every session and the signaling transport. Safe to
// call multiple times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = make(map[domain.Identity]*Session)
	c.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	if c.transport != nil {
		c.transport.Close()
	}
}
