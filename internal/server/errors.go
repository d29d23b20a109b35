package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrInviteNotFound = errors.New("invite not found")
	ErrForbidden      = errors.New("forbidden")
	ErrBlocked        = errors.New("blocked by recipient")
	ErrBanned         = errors.New("account banned")
	ErrInvalidRequest = errors.New("invalid request")
	ErrServerClosed   = errors.New("chat server closed")
)

// StorageError wraps a failed read or write of the blob store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// StatusCode maps an operation error to the HTTP-like code used in
// responses.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInviteNotFound),
		errors.Is(err, chat.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrBlocked),
		errors.Is(err, ErrBanned),
		errors.Is(err, chat.ErrNotFriends):
		return http.StatusForbidden
	case errors.Is(err, database.ErrConflict),
		errors.Is(err, database.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, chat.ErrInvalidMessageType),
		errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrInvalidRole),
		errors.Is(err, chat.ErrSelfPrivate),
		errors.Is(err, chat.ErrPrivateMembership),
		errors.Is(err, chat.ErrNoFriendRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrServerClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
