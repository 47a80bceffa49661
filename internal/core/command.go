package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandTyping tells the other room members the client is typing.
	CommandTyping
	// CommandStopTyping clears a previous CommandTyping.
	CommandStopTyping
	// CommandSendMessage persists and broadcasts a chat message.
	CommandSendMessage
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "joinRoom"
	case CommandLeaveRoom:
		return "leaveRoom"
	case CommandTyping:
		return "typing"
	case CommandStopTyping:
		return "stopTyping"
	case CommandSendMessage:
		return "sendMessage"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// Room may be empty; each handler applies its own default.
type Command struct {
	Kind        CommandKind
	Room        string
	Text        string
	ClientID    string
	DisplayName string
}
