package chat

import (
	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

func NewId() string {
	return uuid.NewString()
}

// NewInviteCode returns a short url-safe code for group invite links.
func NewInviteCode() (string, error) {
	return shortid.Generate()
}
