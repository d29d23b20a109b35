package chat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotMember          = errors.New("user is not a member of the room")
	ErrLocked             = errors.New("room is locked")
	ErrPrivateMembership  = errors.New("private room membership is fixed")
	ErrSelfPrivate        = errors.New("cannot open a private room with yourself")
	ErrMessageNotFound    = errors.New("message not found")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidRole        = errors.New("invalid role")
	ErrEmptyContent       = errors.New("message content is empty")
	ErrNotFriends         = errors.New("users are not friends")
	ErrNoFriendRequest    = errors.New("no pending friend request")
)

// MalformedField is a blob that could not be decoded. Raw is kept so it
// can be inspected later.
type MalformedField struct {
	Field string
	Raw   string
	Err   error
}

type MalformedBlobError struct {
	Id     string
	Fields []MalformedField
}

func (e *MalformedBlobError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("malformed blob in %q: %s", e.Id, strings.Join(names, ", "))
}
