package types

import (
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
)

type User struct {
	Id            string     `json:"id"`
	Username      string     `json:"username"`
	EmailAddress  string     `json:"email_address,omitempty"`
	DisplayName   string     `json:"display_name,omitempty"`
	Color         string     `json:"color,omitempty"`
	Pic           string     `json:"pic,omitempty"`
	Role          string     `json:"role,omitempty"`
	Banned        bool       `json:"banned,omitempty"`
	RoleExpiresAt *time.Time `json:"role_expires_at,omitempty"`
	Online        bool       `json:"online"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
}

// Account is the caller's own user with their friend graph.
type Account struct {
	User
	Friends        []User `json:"friends"`
	FriendRequests []User `json:"friend_requests"`
	Blocked        []User `json:"blocked"`
}

type Member struct {
	User
	Role chat.Role `json:"member_role"`
}

// Room is the view of a room for one member.
type Room struct {
	Id            string         `json:"id"`
	Type          chat.RoomType  `json:"type"`
	Name          string         `json:"name"`
	Icon          string         `json:"icon,omitempty"`
	Members       []Member       `json:"members"`
	MyRole        chat.Role      `json:"my_role"`
	Settings      chat.Settings  `json:"settings"`
	PinnedMessage *chat.Message  `json:"pinned_message,omitempty"`
	Messages      []chat.Message `json:"messages,omitempty"`
	Version       int            `json:"version"`
}

// RoomSummary is one entry of a user's room list.
type RoomSummary struct {
	Id          string        `json:"id"`
	Type        chat.RoomType `json:"type"`
	Name        string        `json:"name"`
	Icon        string        `json:"icon,omitempty"`
	LastMessage *chat.Message `json:"last_message,omitempty"`
	Unread      int           `json:"unread"`
}

// Message is a message together with the room it was posted in.
type Message struct {
	RoomId string `json:"room_id"`
	chat.Message
}
