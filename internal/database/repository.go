package database

import "errors"

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record already exists")
)

type RoomChatRepository interface {
	Ping() error
	Close() error

	GetRoom(id string) (RoomRecord, error)
	CreateRoom(rec RoomRecord) (RoomRecord, error)
	SaveRoom(rec RoomRecord) (RoomRecord, error)
	ListRooms() ([]RoomRecord, error)
	GetRoomByInviteCode(code string) (RoomRecord, error)
	GetRoomByPairKey(key string) (RoomRecord, error)
	QuarantineBlob(blob QuarantinedBlob) error

	GetUser(id string) (UserRecord, error)
	GetUserByEmail(email string) (UserRecord, error)
	GetUserByUsername(username string) (UserRecord, error)
	CreateUser(rec UserRecord) (UserRecord, error)
	SaveUser(rec UserRecord) (UserRecord, error)
	DeleteUser(id string) error
	SearchUsers(query string) ([]UserRecord, error)
}
