package chat

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

type RoomType string

const (
	RoomPrivate RoomType = "private"
	RoomGroup   RoomType = "group"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleMember
}

// CanModerate reports whether the role may post in locked rooms and
// change room settings.
func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleModerator
}

type Member struct {
	UserId string `json:"user_id"`
	Role   Role   `json:"role"`
}

type Room struct {
	Id       string
	Type     RoomType
	Members  []Member
	Messages []Message
	Settings Settings
	PairKey  string
	Version  int

	// Malformed lists blobs that were replaced with defaults on decode.
	Malformed []MalformedField
}

func NewGroupRoom(id, name, icon, inviteCode, ownerId string, now time.Time) *Room {
	return &Room{
		Id:      id,
		Type:    RoomGroup,
		Members: []Member{{UserId: ownerId, Role: RoleAdmin}},
		Messages: []Message{
			NewSystemMessage(fmt.Sprintf("Group %q created", name), now),
		},
		Settings: Settings{
			Name:       name,
			Icon:       icon,
			InviteCode: inviteCode,
		},
	}
}

// NewPrivateRoom creates the direct room between two users. Both members
// are admins and the membership never changes afterwards.
func NewPrivateRoom(id, a, b string) (*Room, error) {
	if a == b {
		return nil, ErrSelfPrivate
	}

	return &Room{
		Id:   id,
		Type: RoomPrivate,
		Members: []Member{
			{UserId: a, Role: RoleAdmin},
			{UserId: b, Role: RoleAdmin},
		},
		Messages: []Message{},
		PairKey:  PairKey(a, b),
	}, nil
}

// PairKey identifies the private room of two users regardless of order.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func (r *Room) IsPrivate() bool {
	return r.Type == RoomPrivate
}

func (r *Room) Member(userId string) (Member, bool) {
	for _, m := range r.Members {
		if m.UserId == userId {
			return m, true
		}
	}
	return Member{}, false
}

func (r *Room) IsMember(userId string) bool {
	_, ok := r.Member(userId)
	return ok
}

// FirstAdmin is the member whose block list gates invite joins.
func (r *Room) FirstAdmin() (Member, bool) {
	for _, m := range r.Members {
		if m.Role == RoleAdmin {
			return m, true
		}
	}
	return Member{}, false
}

// OtherMember returns the counterpart of userId in a private room.
func (r *Room) OtherMember(userId string) (Member, bool) {
	if !r.IsPrivate() {
		return Member{}, false
	}
	for _, m := range r.Members {
		if m.UserId != userId {
			return m, true
		}
	}
	return Member{}, false
}

func (r *Room) MemberIds() []string {
	ids := make([]string, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.UserId
	}
	return ids
}

// CanSend checks membership and the lock. Blocking is checked by the
// caller since it needs the other member's user record.
func (r *Room) CanSend(userId string) error {
	m, ok := r.Member(userId)
	if !ok {
		return ErrNotMember
	}
	if r.Settings.Locked && !m.Role.CanModerate() {
		return ErrLocked
	}
	return nil
}

func (r *Room) Append(msg Message) {
	msg.normalize()
	r.Messages = append(r.Messages, msg)
}

func (r *Room) LastMessage() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// AddMember adds userId with the given role. It returns false when the
// user is already a member.
func (r *Room) AddMember(userId string, role Role) (bool, error) {
	if r.IsPrivate() {
		return false, ErrPrivateMembership
	}
	if !role.Valid() {
		return false, ErrInvalidRole
	}
	if r.IsMember(userId) {
		return false, nil
	}

	r.Members = append(r.Members, Member{UserId: userId, Role: role})
	return true, nil
}

func (r *Room) SetRole(userId string, role Role) error {
	if r.IsPrivate() {
		return ErrPrivateMembership
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	for i := range r.Members {
		if r.Members[i].UserId == userId {
			r.Members[i].Role = role
			return nil
		}
	}
	return ErrNotMember
}

func (r *Room) message(id string) (*Message, error) {
	for i := range r.Messages {
		if r.Messages[i].Id == id {
			return &r.Messages[i], nil
		}
	}
	return nil, ErrMessageNotFound
}

// MarkRead adds userId to the message's read set. It reports whether the
// set changed.
func (r *Room) MarkRead(messageId, userId string) (bool, error) {
	m, err := r.message(messageId)
	if err != nil {
		return false, err
	}
	return m.markRead(userId), nil
}

// MarkAllRead marks every message as read by userId and returns the ids
// that changed.
func (r *Room) MarkAllRead(userId string) []string {
	var changed []string
	for i := range r.Messages {
		if r.Messages[i].markRead(userId) {
			changed = append(changed, r.Messages[i].Id)
		}
	}
	return changed
}

func (r *Room) ToggleReaction(messageId, userId, emoji string) (Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return Message{}, ErrEmptyContent
	}

	m, err := r.message(messageId)
	if err != nil {
		return Message{}, err
	}
	m.toggleReaction(userId, emoji)
	return *m, nil
}

func (r *Room) PinnedMessage() (Message, bool) {
	if r.Settings.PinnedMessageId == "" {
		return Message{}, false
	}
	m, err := r.message(r.Settings.PinnedMessageId)
	if err != nil {
		return Message{}, false
	}
	return *m, true
}

// UpdateSettings merges p into the current settings. A pin must refer to
// a message in the room; an empty id clears it.
func (r *Room) UpdateSettings(p SettingsPatch) error {
	if p.PinnedMessageId != nil && *p.PinnedMessageId != "" {
		if _, err := r.message(*p.PinnedMessageId); err != nil {
			return err
		}
	}
	if p.ExpiresIn != nil && *p.ExpiresIn < 0 {
		return fmt.Errorf("expires_in must not be negative")
	}
	if p.ExpiresIn != nil && *p.ExpiresIn > MaxExpiresIn {
		return fmt.Errorf("expires_in must not exceed %d", MaxExpiresIn)
	}

	if p.Locked != nil {
		r.Settings.Locked = *p.Locked
	}
	if p.ExpiresIn != nil {
		r.Settings.ExpiresIn = *p.ExpiresIn
	}
	if p.PinnedMessageId != nil {
		r.Settings.PinnedMessageId = *p.PinnedMessageId
	}
	if p.Name != nil && !r.IsPrivate() {
		r.Settings.Name = *p.Name
	}
	if p.Icon != nil && !r.IsPrivate() {
		r.Settings.Icon = *p.Icon
	}
	return nil
}

// MaxExpiresIn is the largest expiry window in milliseconds that fits in
// a time.Duration.
const MaxExpiresIn = math.MaxInt64 / int64(time.Millisecond)

// ExpiryWindow converts the stored window to a duration. Stored values too
// large to represent saturate instead of wrapping.
func (r *Room) ExpiryWindow() time.Duration {
	if r.Settings.ExpiresIn > MaxExpiresIn {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(r.Settings.ExpiresIn) * time.Millisecond
}

// Expire drops messages older than the expiry window. System messages and
// the pinned message are kept and the order of survivors is unchanged.
// It returns the ids of removed messages.
func (r *Room) Expire(now time.Time) []string {
	window := r.ExpiryWindow()
	if window <= 0 {
		return nil
	}

	var removed []string
	kept := slices.DeleteFunc(r.Messages, func(m Message) bool {
		if m.IsSystem() || m.Id == r.Settings.PinnedMessageId {
			return false
		}
		if now.Sub(m.Timestamp) < window {
			return false
		}
		removed = append(removed, m.Id)
		return true
	})
	r.Messages = kept

	return removed
}
