package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npezzotti/roomchat/internal/database"
)

// DecodePolicy decides what happens when a stored blob fails to decode.
type DecodePolicy int

const (
	// DefaultOnMalformed replaces the bad blob with an empty value and
	// records it in Malformed so the caller can quarantine the raw text.
	DefaultOnMalformed DecodePolicy = iota
	// RejectMalformed fails the load with a *MalformedBlobError.
	RejectMalformed
)

func (p DecodePolicy) String() string {
	if p == RejectMalformed {
		return "reject"
	}
	return "default"
}

func ParseDecodePolicy(s string) (DecodePolicy, error) {
	switch s {
	case "", "default":
		return DefaultOnMalformed, nil
	case "reject":
		return RejectMalformed, nil
	}
	return DefaultOnMalformed, fmt.Errorf("unknown decode policy %q", s)
}

func decodeBlob(field, raw string, v any, malformed *[]MalformedField) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		*malformed = append(*malformed, MalformedField{Field: field, Raw: raw, Err: err})
	}
}

func FromRecord(rec database.RoomRecord, policy DecodePolicy) (*Room, error) {
	r := &Room{
		Id:      rec.Id,
		Type:    RoomType(rec.Type),
		PairKey: rec.PairKey,
		Version: rec.Version,
	}

	var (
		members   []Member
		messages  []Message
		settings  Settings
		malformed []MalformedField
	)
	decodeBlob("members", rec.Members, &members, &malformed)
	decodeBlob("messages", rec.Messages, &messages, &malformed)
	decodeBlob("settings", rec.Settings, &settings, &malformed)

	if len(malformed) > 0 {
		if policy == RejectMalformed {
			return nil, &MalformedBlobError{Id: rec.Id, Fields: malformed}
		}
		// a half-decoded value is discarded in favour of the empty default
		for _, f := range malformed {
			switch f.Field {
			case "members":
				members = nil
			case "messages":
				messages = nil
			case "settings":
				settings = Settings{}
			}
		}
		r.Malformed = malformed
	}

	if members == nil {
		members = []Member{}
	}
	if messages == nil {
		messages = []Message{}
	}
	for i := range messages {
		messages[i].normalize()
	}

	r.Members = members
	r.Messages = messages
	r.Settings = settings
	if r.Type == RoomGroup && rec.InviteCode != "" && r.Settings.InviteCode == "" {
		r.Settings.InviteCode = rec.InviteCode
	}

	return r, nil
}

// Record encodes the room for storage. Version is carried as loaded so the
// store can detect a concurrent write.
func (r *Room) Record() (database.RoomRecord, error) {
	members, err := json.Marshal(r.Members)
	if err != nil {
		return database.RoomRecord{}, fmt.Errorf("encode members: %w", err)
	}
	messages, err := json.Marshal(r.Messages)
	if err != nil {
		return database.RoomRecord{}, fmt.Errorf("encode messages: %w", err)
	}
	settings, err := json.Marshal(r.Settings)
	if err != nil {
		return database.RoomRecord{}, fmt.Errorf("encode settings: %w", err)
	}

	rec := database.RoomRecord{
		Id:       r.Id,
		Type:     string(r.Type),
		Members:  string(members),
		Messages: string(messages),
		Settings: string(settings),
		PairKey:  r.PairKey,
		Version:  r.Version,
	}
	if r.Type == RoomGroup {
		rec.InviteCode = r.Settings.InviteCode
	}

	return rec, nil
}

func IsMalformed(err error) bool {
	var mErr *MalformedBlobError
	return errors.As(err, &mErr)
}
