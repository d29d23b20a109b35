// Package pubsub names fan-out channels and relays envelopes between
// server processes.
package pubsub

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	KindRoom   = "room"
	KindUser   = "user"
	KindGlobal = "global"

	// GlobalChannel reaches every connected session.
	GlobalChannel = KindGlobal
)

func RoomChannel(roomId string) string {
	return KindRoom + ":" + roomId
}

func UserChannel(userId string) string {
	return KindUser + ":" + userId
}

// ParseChannel splits a channel name into its kind and id.
func ParseChannel(channel string) (kind, id string) {
	kind, id, _ = strings.Cut(channel, ":")
	return kind, id
}

// Envelope is one published event. Origin identifies the process that
// published it; ExcludeUser, when set, names a user whose sessions must
// not receive it.
type Envelope struct {
	Origin      string          `json:"origin"`
	Channel     string          `json:"channel"`
	ExcludeUser string          `json:"exclude_user,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Relay carries envelopes to other processes.
type Relay interface {
	Origin() string
	Publish(ctx context.Context, env Envelope) error
	// Subscribe delivers envelopes published by other processes until ctx
	// is cancelled.
	Subscribe(ctx context.Context, deliver func(Envelope)) error
	Close() error
}
