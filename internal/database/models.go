package database

import "time"

// RoomRecord is a room row as it is persisted. Members, Messages and
// Settings are JSON text blobs owned by the chat package.
type RoomRecord struct {
	Id         string `codec:"id"`
	Type       string `codec:"type"`
	Members    string `codec:"members"`
	Messages   string `codec:"messages"`
	Settings   string `codec:"settings"`
	InviteCode string `codec:"invite_code"`
	PairKey    string `codec:"pair_key"`
	Version    int    `codec:"version"`
}

// UserRecord is an account row. Data holds the friend graph and profile
// as a JSON text blob.
type UserRecord struct {
	Id            string     `codec:"id"`
	Username      string     `codec:"username"`
	Email         string     `codec:"email"`
	PasswordHash  string     `codec:"password_hash"`
	Role          string     `codec:"role"`
	Banned        bool       `codec:"banned"`
	RoleExpiresAt *time.Time `codec:"role_expires_at"`
	Data          string     `codec:"data"`
	CreatedAt     time.Time  `codec:"created_at"`
}

// QuarantinedBlob is a raw blob that failed to decode and was set aside.
// OwnerId is the room or user the blob belongs to; Field names the blob,
// e.g. "room.messages" or "user.data".
type QuarantinedBlob struct {
	OwnerId   string    `codec:"owner_id"`
	Field     string    `codec:"field"`
	Raw       string    `codec:"raw"`
	CreatedAt time.Time `codec:"created_at"`
}
