package peer

import (
	"encoding/json"
	"sync"
	"time"

	"campuschat/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// SessionState tracks where a peer session is in its lifecycle.
type SessionState int32

const (
	// StateNegotiating covers the span between the first offer and the
	// data channel opening.
	StateNegotiating SessionState = iota
	StateReady
	StateFailed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one peer connection and its chat data channel. A session
// that does not reach the ready state before the negotiation deadline is
// marked failed and torn down; it never transitions back.
type Session struct {
	remote domain.Identity
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	onReady   func(remote domain.Identity)
	onFailed  func(remote domain.Identity)
	onPayload func(remote domain.Identity, data []byte)

	mu       sync.Mutex
	state    SessionState
	dc       *webrtc.DataChannel
	deadline *time.Timer
}

func newSession(remote domain.Identity, pc *webrtc.PeerConnection, logger *zap.SugaredLogger) *Session {
	return &Session{
		remote: remote,
		pc:     pc,
		logger: logger,
		state:  StateNegotiating,
	}
}

// armDeadline starts the negotiation timer. If the data channel has not
// opened when it fires, the session fails terminally.
func (s *Session) armDeadline(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = time.AfterFunc(timeout, s.expire)
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.state != StateNegotiating {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.mu.Unlock()

	s.logger.Warnw("negotiation deadline expired", "remote", s.remote)
	s.pc.Close()
	if s.onFailed != nil {
		s.onFailed(s.remote)
	}
}

// bindChannel wires the chat data channel. The caller side creates the
// channel before offering; the answering side receives it through
// OnDataChannel. Either way the open event is what makes the session
// ready.
func (s *Session) bindChannel(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.mu.Lock()
		if s.state != StateNegotiating {
			s.mu.Unlock()
			return
		}
		s.state = StateReady
		if s.deadline != nil {
			s.deadline.Stop()
		}
		s.mu.Unlock()

		s.logger.Infow("data channel open", "remote", s.remote)
		if s.onReady != nil {
			s.onReady(s.remote)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if s.onPayload != nil {
			s.onPayload(s.remote, msg.Data)
		}
	})
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ready reports whether the data channel is open for sending.
func (s *Session) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady && s.dc != nil && s.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// send marshals the payload and pushes it over the data channel.
func (s *Session) send(payload interface{}) error {
	s.mu.Lock()
	dc := s.dc
	state := s.state
	s.mu.Unlock()

	if state != StateReady || dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return domain.ErrChannelNotReady
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return dc.SendText(string(data))
}

// applyAnswer installs the remote description received from the callee.
func (s *Session) applyAnswer(desc *domain.SessionDescription) error {
	return s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

// addCandidate feeds a trickled ICE candidate into the peer connection.
func (s *Session) addCandidate(cand *domain.ICECandidate) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

// Close tears the session down. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	if s.deadline != nil {
		s.deadline.Stop()
	}
	s.mu.Unlock()

	return s.pc.Close()
}
