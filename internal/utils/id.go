package utils

import "github.com/google/uuid"

// NewID returns a random UUID string used to identify a connection.
func NewID() string {
	return uuid.NewString()
}
