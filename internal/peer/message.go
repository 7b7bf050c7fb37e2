package peer

import "time"

// Data channel payload types.
const (
	PayloadChat   = "chat"
	PayloadTyping = "typing"
)

// ChatPayload is a text message carried over the data channel.
type ChatPayload struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingPayload signals the remote peer's typing state.
type TypingPayload struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

// channelPayload is the superset shape used for decoding incoming data
// channel messages before dispatching on Type.
type channelPayload struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsTyping  bool      `json:"isTyping"`
}
