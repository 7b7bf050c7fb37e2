package domain

// EnvelopeType tags a signaling envelope.
type EnvelopeType string

const (
	EnvelopeOffer        EnvelopeType = "offer"
	EnvelopeAnswer       EnvelopeType = "answer"
	EnvelopeICECandidate EnvelopeType = "ice-candidate"
	EnvelopeUserJoined   EnvelopeType = "user-joined"
	EnvelopeUserLeft     EnvelopeType = "user-left"
)

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape. Pointer
// fields keep the explicit-null semantics of the wire format.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Envelope is the signaling message exchanged through the registry.
// From is stamped by the server; any client-supplied value is overwritten
// before the envelope is relayed.
type Envelope struct {
	Type      EnvelopeType        `json:"type"`
	To        Identity            `json:"to,omitempty"`
	From      Identity            `json:"from,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
	UserID    Identity            `json:"userId,omitempty"`
}

// IsRelayable reports whether the envelope type is forwarded point to
// point between peers. Join/leave envelopes are server-originated only.
func (e Envelope) IsRelayable() bool {
	switch e.Type {
	case EnvelopeOffer, EnvelopeAnswer, EnvelopeICECandidate:
		return true
	}
	return false
}
