package core

import (
	"time"

	"github.com/vovakirdan/educhat/internal/store"
)

// Message is the domain model for a chat message as delivered to clients.
// ClientID is only set on the broadcast that answers the sender's own send.
type Message struct {
	ID         string
	Room       string
	UID        string
	SenderName string
	Text       string
	CreatedAt  time.Time
	ClientID   string
}

// Identity is what the gateway binds to a connection after authentication.
type Identity struct {
	UID      string
	NameHint string
}

// TypingNotice is relayed to the other members of a room.
type TypingNotice struct {
	UID         string
	DisplayName string
}

func messageFromStore(m *store.Message) Message {
	return Message{
		ID:         m.ID,
		Room:       m.Room,
		UID:        m.UID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}

func messagesFromStore(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageFromStore(m))
	}
	return out
}
