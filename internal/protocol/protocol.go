// Package protocol holds the control frames exchanged over the event feed
// WebSocket. Both the listener and the demo server import it.
package protocol

import (
	"encoding/json"

	"github.com/docfeed/dslisten/internal/event"
)

// Path is the HTTP path the feed is served on.
const Path = "/ws"

// MessageType identifies the kind of frame.
type MessageType string

const (
	MsgLogin      MessageType = "login"
	MsgLoginOK    MessageType = "login_ok"
	MsgSubscribe  MessageType = "subscribe"
	MsgSubscribed MessageType = "subscribed"
	MsgEvent      MessageType = "event"
	MsgError      MessageType = "error"
)

// Message is the envelope for all frames.
type Message struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LoginPayload is the first frame a client sends.
type LoginPayload struct {
	Domain   string `json:"domain"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginOKPayload acknowledges a login.
type LoginOKPayload struct {
	SessionID string `json:"sessionId"`
	Principal string `json:"principal"`
}

// SubscribePayload registers for the kinds in Mask.
type SubscribePayload struct {
	Mask event.Mask `json:"mask"`
}

// ErrorCode classifies a server-side failure.
type ErrorCode string

const (
	CodeInvalidLicense ErrorCode = "invalid_license"
	CodeAuthFailed     ErrorCode = "auth_failed"
	CodeBadRequest     ErrorCode = "bad_request"
	CodeUnavailable    ErrorCode = "unavailable"
)

// ErrorPayload accompanies MsgError frames.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// New builds an envelope around payload.
func New(t MessageType, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload of msg into out.
func (m Message) Decode(out any) error {
	return json.Unmarshal(m.Payload, out)
}
