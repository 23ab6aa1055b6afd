package service

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// newAccountID returns a random account identifier
func newAccountID() string {
	return uuid.NewString()
}

// newSortableID returns a time-ordered identifier for rounds and payment requests
func newSortableID() string {
	return ulid.Make().String()
}
