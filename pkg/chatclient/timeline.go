package chatclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// LocalIDPrefix marks ids of entries the server has not confirmed yet.
	LocalIDPrefix = "local-"
	// UnknownSender is shown when no usable sender name is known.
	UnknownSender = "Unknown"
	// DefaultMatchWindow bounds the text-and-time match between a pending entry and a broadcast.
	DefaultMatchWindow = 5 * time.Second
)

// State tags a timeline entry.
type State int

const (
	// Pending entries were sent locally and await the server broadcast.
	Pending State = iota
	// Confirmed entries carry a server id.
	Confirmed
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "confirmed"
}

// Entry is one displayed message.
type Entry struct {
	ID         string
	ClientID   string
	Room       string
	UID        string
	SenderName string
	Text       string
	CreatedAt  time.Time
	// LocalTime is when a pending entry was created on this client.
	LocalTime time.Time
	State     State
}

// Timeline is the ordered list of messages displayed for one room. It merges
// optimistic local sends with server broadcasts so that every server message
// appears exactly once. Safe for concurrent use.
type Timeline struct {
	mu      sync.Mutex
	entries []Entry
	window  time.Duration
	now     func() time.Time
	lastID  int64
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{window: DefaultMatchWindow, now: time.Now}
}

// AddPending appends an optimistic entry for a local send and returns it.
// Its ClientID must travel with the send so the broadcast can replace it.
func (t *Timeline) AddPending(room, text, uid, displayName string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ms := now.UnixMilli()
	if ms <= t.lastID {
		ms = t.lastID + 1
	}
	t.lastID = ms

	e := Entry{
		ID:         fmt.Sprintf("%s%d", LocalIDPrefix, ms),
		ClientID:   NewClientID(now),
		Room:       room,
		UID:        uid,
		SenderName: displayName,
		Text:       text,
		CreatedAt:  now,
		LocalTime:  now,
		State:      Pending,
	}
	t.entries = append(t.entries, e)
	return e
}

// NewClientID returns a correlation token of the form c_<unix ms>_<random>.
func NewClientID(now time.Time) string {
	return fmt.Sprintf("c_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Apply merges a server broadcast. The first matching rule wins:
// an entry with the same server id leaves the timeline unchanged; a pending
// entry with the same ClientID is replaced in place; a pending entry with the
// same text created within the match window is replaced in place; otherwise
// the message is appended. It reports whether the timeline changed.
func (t *Timeline) Apply(msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.ID != "" && t.indexOfID(msg.ID) >= 0 {
		return false
	}

	if i := t.matchPending(msg); i >= 0 {
		t.entries[i] = confirm(msg, &t.entries[i])
		return true
	}

	t.entries = append(t.entries, confirm(msg, nil))
	return true
}

// Load replaces the confirmed entries with a history snapshot. Pending entries
// the snapshot does not confirm are kept after it, in their original order.
func (t *Timeline) Load(history []Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := make([]Entry, 0)
	for _, e := range t.entries {
		if e.State == Pending {
			pending = append(pending, e)
		}
	}

	seen := make(map[string]struct{}, len(history))
	entries := make([]Entry, 0, len(history)+len(pending))
	for _, msg := range history {
		if msg.ID != "" {
			if _, dup := seen[msg.ID]; dup {
				continue
			}
			seen[msg.ID] = struct{}{}
		}

		var matched *Entry
		for i := range pending {
			if t.matches(&pending[i], msg) {
				p := pending[i]
				matched = &p
				pending = append(pending[:i], pending[i+1:]...)
				break
			}
		}
		entries = append(entries, confirm(msg, matched))
	}

	t.entries = append(entries, pending...)
}

// Entries returns a copy of the displayed sequence.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of displayed entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Timeline) indexOfID(id string) int {
	for i := range t.entries {
		if t.entries[i].State == Confirmed && t.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// matchPending finds the pending entry msg confirms: clientId first, then text and time.
func (t *Timeline) matchPending(msg Message) int {
	if msg.ClientID != "" {
		for i := range t.entries {
			if t.entries[i].State == Pending && t.entries[i].ClientID == msg.ClientID {
				return i
			}
		}
	}
	for i := range t.entries {
		if t.entries[i].State == Pending && t.closeInTime(&t.entries[i], msg) {
			return i
		}
	}
	return -1
}

func (t *Timeline) matches(e *Entry, msg Message) bool {
	if msg.ClientID != "" && e.ClientID == msg.ClientID {
		return true
	}
	return t.closeInTime(e, msg)
}

func (t *Timeline) closeInTime(e *Entry, msg Message) bool {
	if e.Text != msg.Text {
		return false
	}
	d := e.LocalTime.Sub(msg.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= t.window
}

// confirm builds the confirmed entry for msg, inheriting from the pending entry it replaces.
func confirm(msg Message, pending *Entry) Entry {
	e := Entry{
		ID:         msg.ID,
		ClientID:   msg.ClientID,
		Room:       msg.Room,
		UID:        msg.UID,
		SenderName: displayName(msg.SenderName, pending),
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt,
		State:      Confirmed,
	}
	if pending != nil {
		e.LocalTime = pending.LocalTime
		if e.ClientID == "" {
			e.ClientID = pending.ClientID
		}
	}
	return e
}

// displayName never shows an email address as a sender name.
func displayName(sender string, pending *Entry) string {
	sender = strings.TrimSpace(sender)
	switch {
	case strings.Contains(sender, "@"):
		return UnknownSender
	case sender != "":
		return sender
	case pending != nil && pending.SenderName != "" && !strings.Contains(pending.SenderName, "@"):
		return pending.SenderName
	default:
		return UnknownSender
	}
}
