package peer

import (
	"sync"
	"testing"
	"time"

	"campuschat/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
}

func (f *fakeSender) Send(env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *fakeSender) byType(t domain.EnvelopeType) []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Envelope
	for _, env := range f.envelopes {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func newTestClient(callbacks Callbacks, negotiationTimeout time.Duration) (*Client, *fakeSender) {
	sender := &fakeSender{}
	c := &Client{
		cfg: Config{
			ReconnectDelay:     time.Second,
			NegotiationTimeout: negotiationTimeout,
		},
		callbacks: callbacks,
		logger:    zap.NewNop().Sugar(),
		sessions:  make(map[domain.Identity]*Session),
		signaling: sender,
	}
	return c, sender
}

func remoteOffer(t *testing.T) *domain.SessionDescription {
	t.Helper()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.CreateDataChannel("chat", nil)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))

	return &domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}
}

func TestInitiateCallSendsOffer(t *testing.T) {
	client, sender := newTestClient(Callbacks{}, 30*time.Second)
	defer client.Disconnect()

	require.NoError(t, client.InitiateCall("2"))

	offers := sender.byType(domain.EnvelopeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.Identity("2"), offers[0].To)
	assert.Empty(t, offers[0].From)
	require.NotNil(t, offers[0].Offer)
	assert.Equal(t, "offer", offers[0].Offer.Type)
	assert.NotEmpty(t, offers[0].Offer.SDP)

	state, ok := client.SessionState("2")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, state)
}

func TestInitiateCallReplacesExistingSession(t *testing.T) {
	client, _ := newTestClient(Callbacks{}, 30*time.Second)
	defer client.Disconnect()

	require.NoError(t, client.InitiateCall("2"))
	first := client.session("2")
	require.NotNil(t, first)

	require.NoError(t, client.InitiateCall("2"))
	second := client.session("2")
	require.NotNil(t, second)

	assert.NotSame(t, first, second)
	assert.Equal(t, StateClosed, first.State())
	assert.Equal(t, StateNegotiating, second.State())
}

func TestIncomingOfferProducesAnswer(t *testing.T) {
	client, sender := newTestClient(Callbacks{}, 30*time.Second)
	defer client.Disconnect()

	client.handleEnvelope(domain.Envelope{
		Type:  domain.EnvelopeOffer,
		From:  "7",
		Offer: remoteOffer(t),
	})

	answers := sender.byType(domain.EnvelopeAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, domain.Identity("7"), answers[0].To)
	require.NotNil(t, answers[0].Answer)
	assert.Equal(t, "answer", answers[0].Answer.Type)

	state, ok := client.SessionState("7")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, state)
}

func TestAnswerWithoutSessionDropped(t *testing.T) {
	client, _ := newTestClient(Callbacks{}, 30*time.Second)
	defer client.Disconnect()

	client.handleEnvelope(domain.Envelope{
		Type:   domain.EnvelopeAnswer,
		From:   "9",
		Answer: &domain.SessionDescription{Type: "answer", SDP: "v=0"},
	})

	_, ok := client.SessionState("9")
	assert.False(t, ok)
}

func TestCandidateWithoutSessionDropped(t *testing.T) {
	client, _ := newTestClient(Callbacks{}, 30*time.Second)
	defer client.Disconnect()

	client.handleEnvelope(domain.Envelope{
		Type:      domain.EnvelopeICECandidate,
		From:      "9",
		Candidate: &domain.ICECandidate{Candidate: "candidate:0 1 UDP 1 127.0.0.1 9 typ host"},
	})

	_, ok := client.SessionState("9")
	assert.False(t, ok)
}

func TestPeerLeftClosesSession(t *testing.T) {
	var left []domain.Identity
	var mu sync.Mutex
	client, _ := newTestClient(Callbacks{
		OnPeerLeft: func(peer domain.Identity) {
			mu.Lock()
			left = append(left, peer)
			mu.Unlock()
		},
	}, 30*time.Second)
	defer client.Disconnect()

	require.NoError(t, client.InitiateCall("2"))
	sess := client.session("2")
	require.NotNil(t, sess)

	client.handleEnvelope(domain.Envelope{Type: domain.EnvelopeUserLeft, UserID: "2"})

	assert.Equal(t, StateClosed, sess.State())
	_, ok := client.SessionState("2")
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.Identity{"2"}, left)
}

func TestPeerJoinedCallback(t *testing.T) {
	joined := make(chan domain.Identity, 1)
	client, _ := newTestClient(Callbacks{
		OnPeerJoined: func(peer domain.Identity) { joined <- peer },
	}, 30*time.Second)
	defer client.Disconnect()

	client.handleEnvelope(domain.Envelope{Type: domain.EnvelopeUserJoined, UserID: "5"})

	select {
	case peer := <-joined:
		assert.Equal(t, domain.Identity("5"), peer)
	default:
		t.Fatal("expected peer joined callback")
	}
}

func TestNegotiationDeadlineFailsSession(t *testing.T) {
	failed := make(chan domain.Identity, 1)
	client, _ := newTestClient(Callbacks{
		OnSessionFailed: func(peer domain.Identity) { failed <- peer },
	}, 50*time.Millisecond)
	defer client.Disconnect()

	require.NoError(t, client.InitiateCall("2"))
	sess := client.session("2")
	require.NotNil(t, sess)

	select {
	case peer := <-failed:
		assert.Equal(t, domain.Identity("2"), peer)
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation deadline never fired")
	}

	assert.Equal(t, StateFailed, sess.State())
	_, ok := client.SessionState("2")
	assert.False(t, ok, "failed session should be dropped from the table")
}

func TestSendMessageWithoutReadyChannelIsDropped(t *testing.T) {
	client, _ := newTestClient(Callbacks{}, 30*time.Second)
	defer client.Disconnect()

	// No session at all.
	client.SendMessage("2", "hello")
	client.SendTypingIndicator("2", true)

	// Session still negotiating.
	require.NoError(t, client.InitiateCall("2"))
	client.SendMessage("2", "hello")
	client.SendTypingIndicator("2", false)

	state, ok := client.SessionState("2")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, state)
}

func TestDispatchPayload(t *testing.T) {
	type chatEvent struct {
		from domain.Identity
		text string
	}
	chats := make(chan chatEvent, 1)
	typing := make(chan bool, 1)
	client, _ := newTestClient(Callbacks{
		OnMessage: func(from domain.Identity, text string, at time.Time) {
			chats <- chatEvent{from: from, text: text}
		},
		OnTyping: func(from domain.Identity, isTyping bool) { typing <- isTyping },
	}, 30*time.Second)
	defer client.Disconnect()

	client.dispatchPayload("3", []byte(`{"type":"chat","text":"hi","timestamp":"2026-08-31T12:00:00Z"}`))
	client.dispatchPayload("3", []byte(`{"type":"typing","isTyping":true}`))
	client.dispatchPayload("3", []byte(`not json`))
	client.dispatchPayload("3", []byte(`{"type":"mystery"}`))

	select {
	case event := <-chats:
		assert.Equal(t, domain.Identity("3"), event.from)
		assert.Equal(t, "hi", event.text)
	default:
		t.Fatal("expected chat callback")
	}
	select {
	case isTyping := <-typing:
		assert.True(t, isTyping)
	default:
		t.Fatal("expected typing callback")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	client, _ := newTestClient(Callbacks{}, 30*time.Second)

	require.NoError(t, client.InitiateCall("2"))
	sess := client.session("2")
	require.NotNil(t, sess)

	client.Disconnect()
	client.Disconnect()

	assert.Equal(t, StateClosed, sess.State())
	_, err := client.createSession("3")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestTypingNotifierDebounce(t *testing.T) {
	var mu sync.Mutex
	var events []bool
	notifier := NewTypingNotifier(50*time.Millisecond, func(isTyping bool) {
		mu.Lock()
		events = append(events, isTyping)
		mu.Unlock()
	})
	defer notifier.Stop()

	notifier.Keystroke()
	notifier.Keystroke()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, true, false}, events)
}

func TestTypingNotifierStopSuppressesIdleEvent(t *testing.T) {
	var mu sync.Mutex
	var events []bool
	notifier := NewTypingNotifier(30*time.Millisecond, func(isTyping bool) {
		mu.Lock()
		events = append(events, isTyping)
		mu.Unlock()
	})

	notifier.Keystroke()
	notifier.Stop()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, events)
}
