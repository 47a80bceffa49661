package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoinedRoom acknowledges a join with the resolved room name.
	EventJoinedRoom EventKind = iota
	// EventRoomMessages delivers history to the joining client only.
	EventRoomMessages
	// EventNewMessage broadcasts a persisted message to every room member.
	EventNewMessage
	// EventTyping relays a typing indicator, sender excluded.
	EventTyping
	// EventStopTyping relays the end of a typing indicator, sender excluded.
	EventStopTyping
)

func (k EventKind) String() string {
	switch k {
	case EventJoinedRoom:
		return "joinedRoom"
	case EventRoomMessages:
		return "roomMessages"
	case EventNewMessage:
		return "newMessage"
	case EventTyping:
		return "typing"
	case EventStopTyping:
		return "stopTyping"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after publishing.
type Event struct {
	Kind     EventKind
	Room     string
	Message  *Message      // EventNewMessage
	Messages []Message     // EventRoomMessages
	Typing   *TypingNotice // EventTyping, EventStopTyping
}
