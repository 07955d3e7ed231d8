package service

import "github.com/google/uuid"

// UUIDGenerator mints ids for courses, documents, conversations and gate
// logs. Tests substitute a deterministic sequence.
type UUIDGenerator interface {
	NewString() string
}

type DefaultUUIDGenerator struct{}

func (*DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
