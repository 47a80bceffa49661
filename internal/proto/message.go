package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	InboundTypeAuth        = "auth"
	InboundTypeJoinRoom    = "joinRoom"
	InboundTypeLeaveRoom   = "leaveRoom"
	InboundTypeTyping      = "typing"
	InboundTypeStopTyping  = "stopTyping"
	InboundTypeSendMessage = "sendMessage"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventJoinedRoom   = "joinedRoom"
	EventRoomMessages = "roomMessages"
	EventNewMessage   = "newMessage"
	EventTyping       = "typing"
	EventStopTyping   = "stopTyping"
)

// AuthData carries the bearer credential when it was not sent on the upgrade request.
type AuthData struct {
	Token string `json:"token"`
}

// RoomData names an optional room for join and leave.
type RoomData struct {
	Room string `json:"room,omitempty"`
}

// TypingData is sent while the user types in a room.
type TypingData struct {
	Room        string `json:"room"`
	DisplayName string `json:"displayName,omitempty"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	Text        string `json:"text"`
	Room        string `json:"room,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Message is a persisted chat message as seen on the wire.
type Message struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	UID        string    `json:"uid"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	ClientID   string    `json:"clientId,omitempty"`
}

// EventJoinedRoomData acknowledges a join.
type EventJoinedRoomData struct {
	Room string `json:"room"`
}

// EventRoomMessagesData carries a room's recent history, oldest first.
type EventRoomMessagesData struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// EventTypingData is relayed to the other members of a room.
type EventTypingData struct {
	Room        string `json:"room"`
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// DecodeData unmarshals the envelope payload into v. A missing payload leaves v untouched.
func (in *Inbound) DecodeData(v any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	return json.Unmarshal(in.Data, v)
}
