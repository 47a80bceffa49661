package store

import (
	"context"
	"errors"
	"time"
)

// History limits shared by every MessageStore.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	// DefaultRoom is used whenever a room name is absent.
	DefaultRoom = "global"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// Message represents a persisted chat message. It is never updated once saved.
type Message struct {
	ID         string
	Room       string
	UID        string
	SenderName string
	Text       string
	CreatedAt  time.Time
}

// Profile is the read-only user profile document used for display names.
type Profile struct {
	UID         string
	Name        string
	DisplayName string
}

// IdentityUser is the identity provider's record for a user.
type IdentityUser struct {
	UID         string
	Email       string
	DisplayName string
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and sets its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListRecent returns the newest limit messages of a room, oldest first.
	// The limit is clamped with ClampLimit.
	ListRecent(ctx context.Context, room string, limit int) ([]*Message, error)
}

// ProfileStore reads user profiles by uid.
type ProfileStore interface {
	// GetProfile returns ErrNotFound when no profile exists for uid.
	GetProfile(ctx context.Context, uid string) (*Profile, error)
}

// IdentityStore reads identity provider user records by uid.
type IdentityStore interface {
	// GetIdentityUser returns ErrNotFound when the provider has no such user.
	GetIdentityUser(ctx context.Context, uid string) (*IdentityUser, error)
}

// Store aggregates the SQL-backed storage interfaces.
type Store interface {
	MessageStore
	ProfileStore
	IdentityStore

	// Close closes the underlying database connection.
	Close() error
}

// ClampLimit applies the history default and hard cap.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// RoomOrDefault returns room, or DefaultRoom when it is empty.
func RoomOrDefault(room string) string {
	if room == "" {
		return DefaultRoom
	}
	return room
}

// Reverse flips messages in place; stores read newest first and deliver oldest first.
func Reverse(messages []*Message) {
	for i := 0; i < len(messages)/2; i++ {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
}
