package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/store"
)

// SenderResolver turns a uid plus client hint into a display name. It never fails.
type SenderResolver interface {
	Resolve(ctx context.Context, uid, hint string) string
}

// Publisher fans a room event out to every member, on this instance or others.
// excludeID names a connection that must not receive it ("" for none).
type Publisher interface {
	Publish(ctx context.Context, room string, ev *Event, excludeID string) error
}

// Option customizes a Hub.
type Option func(*Hub)

// WithPublisher routes broadcasts through p instead of delivering locally.
func WithPublisher(p Publisher) Option {
	return func(h *Hub) { h.publisher = p }
}

// WithMaxTextLength drops sends longer than n runes. 0 disables the check.
func WithMaxTextLength(n int) Option {
	return func(h *Hub) { h.maxTextLen = n }
}

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// Hub owns the room registry and handles every client command.
// Handlers run on the calling connection's goroutine; the hub lock is only held
// while touching membership, never across I/O.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[string]*Client

	store      store.MessageStore
	resolver   SenderResolver
	publisher  Publisher
	maxTextLen int
	now        func() time.Time
	log        *zerolog.Logger

	wg sync.WaitGroup
}

// NewHub creates a hub backed by st for persistence and resolver for sender names.
func NewHub(st store.MessageStore, resolver SenderResolver, logger *zerolog.Logger, opts ...Option) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		rooms:    make(map[string]*Room),
		clients:  make(map[string]*Client),
		store:    st,
		resolver: resolver,
		now:      time.Now,
		log:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.publisher == nil {
		h.publisher = localPublisher{h}
	}
	return h
}

// RegisterClient makes an authenticated client known to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Str("client_id", c.ID).Str("uid", c.Identity.UID).Int("clients", count).Msg("client connected")
}

// UnregisterClient removes c from every room at once and discards anything still queued for it.
func (h *Hub) UnregisterClient(c *Client) {
	c.Close()

	h.mu.Lock()
	for _, name := range c.Rooms() {
		if room, ok := h.rooms[name]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, name)
			}
		}
		c.left(name)
	}
	delete(h.clients, c.ID)
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Str("client_id", c.ID).Str("uid", c.Identity.UID).Int("clients", count).Msg("client disconnected")
}

// Dispatch runs one command to completion. Failures are logged and never
// propagate: one bad event must not end the connection.
func (h *Hub) Dispatch(ctx context.Context, c *Client, cmd *Command) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("client_id", c.ID).Str("command", cmd.Kind.String()).Msg("recovered from panic in command handler")
		}
	}()

	var err error
	switch cmd.Kind {
	case CommandJoinRoom:
		h.Join(ctx, c, cmd.Room)
	case CommandLeaveRoom:
		h.Leave(c, cmd.Room)
	case CommandTyping:
		err = h.Typing(ctx, c, cmd.Room, cmd.DisplayName, false)
	case CommandStopTyping:
		err = h.Typing(ctx, c, cmd.Room, cmd.DisplayName, true)
	case CommandSendMessage:
		_, err = h.SendMessage(ctx, c, SendRequest{
			Text:     cmd.Text,
			Room:     cmd.Room,
			ClientID: cmd.ClientID,
			NameHint: cmd.DisplayName,
		})
	}

	if err == nil {
		return
	}
	if IsMalformed(err) {
		h.log.Debug().Err(err).Str("client_id", c.ID).Str("command", cmd.Kind.String()).Msg("discarded malformed event")
		return
	}
	h.log.Error().Err(err).Str("client_id", c.ID).Str("command", cmd.Kind.String()).Msg("command failed")
}

// Join adds c to room ("global" when empty), acknowledges, then sends the
// recent history to c alone from a separate goroutine.
func (h *Hub) Join(ctx context.Context, c *Client, room string) {
	room = store.RoomOrDefault(room)

	h.mu.Lock()
	// UnregisterClient closes the client before taking the lock, so a join
	// racing a disconnect never leaves a stale member behind.
	if c.closed() {
		h.mu.Unlock()
		return
	}
	r, ok := h.rooms[room]
	if !ok {
		r = NewRoom(room)
		h.rooms[room] = r
	}
	r.AddClient(c)
	c.joined(room)
	h.mu.Unlock()

	c.Deliver(&Event{Kind: EventJoinedRoom, Room: room})
	h.log.Debug().Str("client_id", c.ID).Str("room", room).Msg("joined room")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		msgs, err := h.store.ListRecent(ctx, room, store.MaxHistoryLimit)
		if err != nil {
			h.log.Error().Err(err).Str("client_id", c.ID).Str("room", room).Msg("load room history")
			return
		}
		c.Deliver(&Event{Kind: EventRoomMessages, Room: room, Messages: messagesFromStore(msgs)})
	}()
}

// Leave removes c from room, or from its current room when room is empty.
// Leaving a room c is not in does nothing.
func (h *Hub) Leave(c *Client, room string) {
	if room == "" {
		room = c.CurrentRoom()
	}
	if room == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[room]
	if !ok || !r.RemoveClient(c) {
		return
	}
	c.left(room)
	if r.Empty() {
		delete(h.rooms, room)
	}
	h.log.Debug().Str("client_id", c.ID).Str("room", room).Msg("left room")
}

// Typing relays a typing indicator to every other member of room.
func (h *Hub) Typing(ctx context.Context, c *Client, room, displayName string, stop bool) error {
	if room == "" {
		return ErrRoomRequired
	}
	kind := EventTyping
	if stop {
		kind = EventStopTyping
	}
	ev := &Event{
		Kind:   kind,
		Room:   room,
		Typing: &TypingNotice{UID: c.Identity.UID, DisplayName: displayName},
	}
	if err := h.publisher.Publish(ctx, room, ev, c.ID); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// SendRequest is a validated sendMessage payload.
type SendRequest struct {
	Text     string
	Room     string
	ClientID string
	NameHint string
}

// SendMessage persists the message, then broadcasts it to every member of its
// room, sender included. Nothing is broadcast unless the save succeeded.
func (h *Hub) SendMessage(ctx context.Context, c *Client, req SendRequest) (*Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if h.maxTextLen > 0 && utf8.RuneCountInString(text) > h.maxTextLen {
		return nil, ErrTextTooLong
	}

	room := req.Room
	if room == "" {
		room = c.CurrentRoom()
	}
	room = store.RoomOrDefault(room)

	senderName := h.resolver.Resolve(ctx, c.Identity.UID, req.NameHint)

	stored := &store.Message{
		Room:       room,
		UID:        c.Identity.UID,
		SenderName: senderName,
		Text:       text,
		CreatedAt:  h.now().UTC(),
	}
	if err := h.store.SaveMessage(ctx, stored); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	msg := messageFromStore(stored)
	msg.ClientID = req.ClientID

	if err := h.publisher.Publish(ctx, room, &Event{Kind: EventNewMessage, Room: room, Message: &msg}, ""); err != nil {
		return &msg, fmt.Errorf("publish message %s: %w", msg.ID, err)
	}
	return &msg, nil
}

// DeliverLocal hands ev to this instance's members of room, skipping excludeID.
// It returns how many clients accepted the event.
func (h *Hub) DeliverLocal(room string, ev *Event, excludeID string) int {
	h.mu.RLock()
	r, ok := h.rooms[room]
	var members []*Client
	if ok {
		members = r.Members()
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.ID == excludeID {
			continue
		}
		if c.Deliver(ev) {
			delivered++
			continue
		}
		h.log.Warn().Str("client_id", c.ID).Str("room", room).Str("event", ev.Kind.String()).Msg("dropped event for slow or closed client")
	}
	return delivered
}

// RoomMembers returns the ids of clients currently in room.
func (h *Hub) RoomMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[room]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.clients))
	for c := range r.clients {
		ids = append(ids, c.ID)
	}
	return ids
}

// Wait blocks until background history loads have finished.
func (h *Hub) Wait() {
	h.wg.Wait()
}

type localPublisher struct{ h *Hub }

func (p localPublisher) Publish(_ context.Context, room string, ev *Event, excludeID string) error {
	p.h.DeliverLocal(room, ev, excludeID)
	return nil
}
