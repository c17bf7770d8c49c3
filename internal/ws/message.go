package ws

import (
	"encoding/json"

	"github.com/travelmate/chat/internal/model"
)

type EventType string

const (
	// client -> server
	EventJoinTrip           EventType = "join_trip"
	EventJoinPrivate        EventType = "join_private"
	EventSendTripMessage    EventType = "send_trip_message"
	EventSendPrivateMessage EventType = "send_private_message"

	// server -> client
	EventReceiveTripMessage    EventType = "receive_trip_message"
	EventReceivePrivateMessage EventType = "receive_private_message"
	EventMessageSent           EventType = "message_sent"
	EventJoined                EventType = "joined"
	EventError                 EventType = "error"
)

// IncomingMessage is what the client sends to the server. Payload is decoded per Type.
type IncomingMessage struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type JoinTripPayload struct {
	TripID string `json:"tripId"`
}

type JoinPrivatePayload struct {
	UserID string `json:"userId"`
}

// SendTripPayload carries a group message. SenderName and Timestamp are accepted for
// compatibility and ignored: names come from the directory, time from the server clock.
type SendTripPayload struct {
	Text        string `json:"text"`
	SenderID    string `json:"senderId,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	TripID      string `json:"tripId"`
	Timestamp   string `json:"timestamp,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type SendPrivatePayload struct {
	Text        string `json:"text"`
	SenderID    string `json:"senderId,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	ToUserID    string `json:"toUserId"`
	Timestamp   string `json:"timestamp,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type JoinedPayload struct {
	Room string `json:"room"`
}

// ErrorPayload reports a failed client event. The connection stays open.
type ErrorPayload struct {
	Event   EventType `json:"event,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// MessagePayload is the message view delivered by receive_* and message_sent events.
type MessagePayload = model.MessageView
