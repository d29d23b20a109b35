package chat

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageAudio  MessageType = "audio"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// SystemUserId is the author of messages generated by the server.
const SystemUserId = "system"

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile, MessageSystem:
		return true
	}
	return false
}

type Message struct {
	Id        string              `json:"id"`
	UserId    string              `json:"user_id"`
	Username  string              `json:"username"`
	Pic       string              `json:"pic,omitempty"`
	Type      MessageType         `json:"type"`
	Content   string              `json:"content"`
	FileName  string              `json:"file_name,omitempty"`
	ReplyTo   string              `json:"reply_to,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	ReadBy    []string            `json:"read_by"`
	Reactions map[string][]string `json:"reactions"`
	Edited    bool                `json:"edited"`
	Deleted   bool                `json:"deleted"`
}

func (m Message) IsSystem() bool {
	return m.Type == MessageSystem || m.UserId == SystemUserId
}

func NewSystemMessage(content string, now time.Time) Message {
	return Message{
		Id:        uuid.NewString(),
		UserId:    SystemUserId,
		Username:  "System",
		Type:      MessageSystem,
		Content:   content,
		Timestamp: now,
		ReadBy:    []string{},
		Reactions: map[string][]string{},
	}
}

// NewUserMessage snapshots the sender's name and avatar into the message.
func NewUserMessage(sender *User, typ MessageType, content, fileName, replyTo string, now time.Time) (Message, error) {
	if !typ.Valid() || typ == MessageSystem {
		return Message{}, ErrInvalidMessageType
	}
	if content == "" {
		return Message{}, ErrEmptyContent
	}

	return Message{
		Id:        uuid.NewString(),
		UserId:    sender.Id,
		Username:  sender.Username,
		Pic:       sender.Avatar(),
		Type:      typ,
		Content:   content,
		FileName:  fileName,
		ReplyTo:   replyTo,
		Timestamp: now,
		ReadBy:    []string{sender.Id},
		Reactions: map[string][]string{},
	}, nil
}

func (m *Message) markRead(userId string) bool {
	if slices.Contains(m.ReadBy, userId) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userId)
	return true
}

func (m *Message) toggleReaction(userId, emoji string) {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}

	users := m.Reactions[emoji]
	if i := slices.Index(users, userId); i >= 0 {
		users = slices.Delete(users, i, i+1)
	} else {
		users = append(users, userId)
	}

	if len(users) == 0 {
		delete(m.Reactions, emoji)
		return
	}
	m.Reactions[emoji] = users
}

func (m *Message) normalize() {
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
}
