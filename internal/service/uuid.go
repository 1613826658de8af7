package service

import "github.com/google/uuid"

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator generates random v4 UUIDs.
type DefaultUUIDGenerator struct{}

// NewString returns a new random UUID string.
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.New().String()
}
