package core

import (
	"sort"
	"sync"
)

// DefaultClientBuffer is the outbound queue size used when none is given.
const DefaultClientBuffer = 64

// Client is a chat participant as seen by the core layer.
// Events is never closed; writers stop reading once Done is closed.
type Client struct {
	ID       string
	Identity Identity
	Events   chan *Event

	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	currentRoom string
	rooms       map[string]struct{}
}

// NewClient constructs a client with an initialized outbound queue.
func NewClient(id string, identity Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Events:   make(chan *Event, buffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

// Deliver queues ev without blocking. It reports false when the client is gone
// or its queue is full.
func (c *Client) Deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Events <- ev:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close marks the client as disconnected. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed once the client disconnects.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CurrentRoom returns the last room the client joined, or "".
func (c *Client) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoom
}

// Rooms lists every room the client is a member of, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Client) joined(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.currentRoom = room
	c.mu.Unlock()
}

func (c *Client) left(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}
