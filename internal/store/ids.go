package store

import "github.com/google/uuid"

// NewID returns a time-ordered identifier for new records.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
