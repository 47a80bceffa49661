// Package bus fans room events out across server instances over Redis pub/sub.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/core"
)

// Deliverer hands an event to the members of a room connected to this instance.
type Deliverer interface {
	DeliverLocal(room string, ev *core.Event, excludeID string) int
}

// Redis publishes every room event to "<prefix>:<room>" and delivers what it
// receives on "<prefix>:*" to local members. Each instance, the publisher
// included, delivers through the subscription.
type Redis struct {
	client *redis.Client
	prefix string
	pubsub *redis.PubSub
	log    *zerolog.Logger
}

// NewRedis wraps an already connected client.
func NewRedis(client *redis.Client, prefix string, logger *zerolog.Logger) *Redis {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Redis{client: client, prefix: strings.TrimSuffix(prefix, ":"), log: logger}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Subscribe establishes the pattern subscription. It must succeed before the
// first Publish so no event is lost.
func (b *Redis) Subscribe(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, b.prefix+":*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s:*: %w", b.prefix, err)
	}
	b.pubsub = ps
	return nil
}

// Publish implements core.Publisher.
func (b *Redis) Publish(ctx context.Context, room string, ev *core.Event, excludeID string) error {
	payload, err := encode(ev, excludeID)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel(room), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", room, err)
	}
	return nil
}

// Run delivers received events to d until ctx is done.
func (b *Redis) Run(ctx context.Context, d Deliverer) error {
	if b.pubsub == nil {
		if err := b.Subscribe(ctx); err != nil {
			return err
		}
	}
	defer b.pubsub.Close()

	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			ev, exclude, err := decode([]byte(msg.Payload))
			if err != nil {
				b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropped undecodable bus event")
				continue
			}
			d.DeliverLocal(ev.Room, ev, exclude)
		}
	}
}

// Close releases the subscription and the client.
func (b *Redis) Close() error {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	return b.client.Close()
}

func (b *Redis) channel(room string) string {
	return b.prefix + ":" + room
}

type envelope struct {
	Room     string        `json:"room"`
	Exclude  string        `json:"exclude,omitempty"`
	Kind     string        `json:"kind"`
	Message  *wireMessage  `json:"message,omitempty"`
	Messages []wireMessage `json:"messages,omitempty"`
	Typing   *wireTyping   `json:"typing,omitempty"`
}

type wireMessage struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	UID        string    `json:"uid"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	ClientID   string    `json:"clientId,omitempty"`
}

type wireTyping struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
}

var kinds = map[string]core.EventKind{
	core.EventJoinedRoom.String():   core.EventJoinedRoom,
	core.EventRoomMessages.String(): core.EventRoomMessages,
	core.EventNewMessage.String():   core.EventNewMessage,
	core.EventTyping.String():       core.EventTyping,
	core.EventStopTyping.String():   core.EventStopTyping,
}

func encode(ev *core.Event, excludeID string) ([]byte, error) {
	env := envelope{Room: ev.Room, Exclude: excludeID, Kind: ev.Kind.String()}
	if ev.Message != nil {
		m := toWire(*ev.Message)
		env.Message = &m
	}
	for _, m := range ev.Messages {
		env.Messages = append(env.Messages, toWire(m))
	}
	if ev.Typing != nil {
		env.Typing = &wireTyping{UID: ev.Typing.UID, DisplayName: ev.Typing.DisplayName}
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", env.Kind, err)
	}
	return payload, nil
}

func decode(payload []byte) (*core.Event, string, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, "", fmt.Errorf("decode bus event: %w", err)
	}
	kind, ok := kinds[env.Kind]
	if !ok {
		return nil, "", fmt.Errorf("decode bus event: unknown kind %q", env.Kind)
	}

	ev := &core.Event{Kind: kind, Room: env.Room}
	if env.Message != nil {
		m := fromWire(*env.Message)
		ev.Message = &m
	}
	for _, m := range env.Messages {
		ev.Messages = append(ev.Messages, fromWire(m))
	}
	if env.Typing != nil {
		ev.Typing = &core.TypingNotice{UID: env.Typing.UID, DisplayName: env.Typing.DisplayName}
	}
	return ev, env.Exclude, nil
}

func toWire(m core.Message) wireMessage {
	return wireMessage{
		ID:         m.ID,
		Room:       m.Room,
		UID:        m.UID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		ClientID:   m.ClientID,
	}
}

func fromWire(m wireMessage) core.Message {
	return core.Message{
		ID:         m.ID,
		Room:       m.Room,
		UID:        m.UID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		ClientID:   m.ClientID,
	}
}
