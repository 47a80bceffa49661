// Package chatclient is a WebSocket client for the chat server that keeps a
// reconciled message timeline per room.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/educhat/internal/proto"
)

// DefaultRoom is used when no room was given or joined.
const DefaultRoom = "global"

// ErrEmptyText is returned by Send for blank messages, which the server discards.
var ErrEmptyText = errors.New("chatclient: message text is empty")

// Message is a server message as received by the client.
type Message struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	UID        string    `json:"uid"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	ClientID   string    `json:"clientId,omitempty"`
}

// Typing is a typing indicator relayed from another member.
type Typing struct {
	Room        string `json:"room"`
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
}

// Event is handed to the event hook after the timeline has been updated.
type Event struct {
	Name     string
	Room     string
	Message  *Message
	Messages []Message
	Typing   *Typing
}

// ServerError is returned by Run when the server refuses the connection.
type ServerError struct {
	Code string
	Msg  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Msg)
}

// Option configures a Client.
type Option func(*Client)

// WithIdentity sets the uid and display name used for pending entries and sends.
func WithIdentity(uid, displayName string) Option {
	return func(c *Client) {
		c.uid = uid
		c.displayName = displayName
	}
}

// WithEventHandler registers fn for every event received.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// WithAuthFrame sends the token as the first frame instead of an Authorization header.
func WithAuthFrame() Option {
	return func(c *Client) { c.authFrame = true }
}

// Client is a connected chat session.
type Client struct {
	conn        *websocket.Conn
	uid         string
	displayName string
	authFrame   bool
	onEvent     func(Event)

	mu          sync.Mutex
	currentRoom string
	timelines   map[string]*Timeline
}

// Dial connects to the server's WebSocket endpoint and authenticates with token.
func Dial(ctx context.Context, url, token string, opts ...Option) (*Client, error) {
	c := &Client{timelines: make(map[string]*Timeline)}
	for _, opt := range opts {
		opt(c)
	}

	dialOpts := &websocket.DialOptions{}
	if !c.authFrame {
		dialOpts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	conn, resp, err := websocket.Dial(ctx, url, dialOpts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: unauthorized: %w", url, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.conn = conn

	if c.authFrame {
		if err := c.send(ctx, proto.InboundTypeAuth, proto.AuthData{Token: token}); err != nil {
			_ = conn.CloseNow()
			return nil, err
		}
	}
	return c, nil
}

// Run reads server frames until the connection closes or ctx is done.
// A normal closure returns nil.
func (c *Client) Run(ctx context.Context) error {
	for {
		var frame struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if frame.Type == proto.OutboundTypeError {
			if frame.Error == nil {
				return &ServerError{Code: "unknown"}
			}
			return &ServerError{Code: frame.Error.Code, Msg: frame.Error.Msg}
		}

		ev, err := c.handle(frame.Event, frame.Data)
		if err != nil {
			continue
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

func (c *Client) handle(name string, data json.RawMessage) (Event, error) {
	ev := Event{Name: name}
	switch name {
	case proto.EventJoinedRoom:
		var d proto.EventJoinedRoomData
		if err := json.Unmarshal(data, &d); err != nil {
			return ev, err
		}
		ev.Room = d.Room
		c.mu.Lock()
		c.currentRoom = d.Room
		c.mu.Unlock()
	case proto.EventRoomMessages:
		var d struct {
			Room     string    `json:"room"`
			Messages []Message `json:"messages"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return ev, err
		}
		ev.Room, ev.Messages = d.Room, d.Messages
		c.Timeline(d.Room).Load(d.Messages)
	case proto.EventNewMessage:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return ev, err
		}
		ev.Room, ev.Message = m.Room, &m
		c.Timeline(m.Room).Apply(m)
	case proto.EventTyping, proto.EventStopTyping:
		var t Typing
		if err := json.Unmarshal(data, &t); err != nil {
			return ev, err
		}
		ev.Room, ev.Typing = t.Room, &t
	}
	return ev, nil
}

// Timeline returns the timeline of room, creating it on first use.
func (c *Client) Timeline(room string) *Timeline {
	if room == "" {
		room = DefaultRoom
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tl, ok := c.timelines[room]
	if !ok {
		tl = NewTimeline()
		c.timelines[room] = tl
	}
	return tl
}

// CurrentRoom returns the room of the last join acknowledgement.
func (c *Client) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoom
}

// JoinRoom joins room, or the default room when empty.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	return c.send(ctx, proto.InboundTypeJoinRoom, proto.RoomData{Room: room})
}

// LeaveRoom leaves room, or the current room when empty.
func (c *Client) LeaveRoom(ctx context.Context, room string) error {
	return c.send(ctx, proto.InboundTypeLeaveRoom, proto.RoomData{Room: room})
}

// Typing tells the other members of room that the user is typing.
func (c *Client) Typing(ctx context.Context, room string) error {
	return c.send(ctx, proto.InboundTypeTyping, proto.TypingData{Room: c.roomOrCurrent(room), DisplayName: c.displayName})
}

// StopTyping clears the typing indicator.
func (c *Client) StopTyping(ctx context.Context, room string) error {
	return c.send(ctx, proto.InboundTypeStopTyping, proto.TypingData{Room: c.roomOrCurrent(room), DisplayName: c.displayName})
}

// Send adds a pending entry to the room's timeline and sends the message.
// The returned entry is replaced in place once the server confirms it.
func (c *Client) Send(ctx context.Context, room, text string) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrEmptyText
	}
	room = c.roomOrCurrent(room)
	entry := c.Timeline(room).AddPending(room, text, c.uid, c.displayName)

	err := c.send(ctx, proto.InboundTypeSendMessage, proto.SendMessageData{
		Text:        text,
		Room:        room,
		ClientID:    entry.ClientID,
		DisplayName: c.displayName,
	})
	return entry, err
}

// Close ends the session.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) roomOrCurrent(room string) string {
	if room != "" {
		return room
	}
	if cur := c.CurrentRoom(); cur != "" {
		return cur
	}
	return DefaultRoom
}

func (c *Client) send(ctx context.Context, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}
