package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/pubsub"
)

const maxInviteCodeAttempts = 3

type JoinResult struct {
	Room   *chat.Room
	Joined bool
}

// JoinByInviteCode adds userId to the group room behind code. Joining a
// room the user already belongs to changes nothing.
func (cs *ChatServer) JoinByInviteCode(ctx context.Context, code, userId string) (JoinResult, error) {
	return call(ctx, cs, func() (JoinResult, error) { return cs.joinByInviteCode(code, userId) })
}

func (cs *ChatServer) joinByInviteCode(code, userId string) (JoinResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return JoinResult{}, ErrInviteNotFound
	}

	rec, err := cs.db.GetRoomByInviteCode(code)
	if errors.Is(err, database.ErrNotFound) {
		return JoinResult{}, ErrInviteNotFound
	}
	if err != nil {
		return JoinResult{}, storageErr("lookup invite", err)
	}

	user, err := cs.loadUser(userId)
	if err != nil {
		return JoinResult{}, err
	}

	var (
		joined bool
		sys    chat.Message
	)
	room, err := cs.mutateRoom(rec.Id, func(room *chat.Room) (bool, error) {
		joined = false
		if room.Type != chat.RoomGroup || room.Settings.InviteCode != code {
			return false, ErrInviteNotFound
		}

		if admin, ok := room.FirstAdmin(); ok && admin.UserId != userId {
			adminUser, err := cs.loadUser(admin.UserId)
			if err != nil && !errors.Is(err, ErrUserNotFound) {
				return false, err
			}
			if adminUser != nil && adminUser.HasBlocked(userId) {
				return false, fmt.Errorf("%w: blocked by room admin", ErrForbidden)
			}
		}

		added, err := room.AddMember(userId, chat.RoleMember)
		if err != nil || !added {
			return false, err
		}

		sys = chat.NewSystemMessage(user.Username+" joined via invite link", cs.now())
		room.Append(sys)
		joined = true
		return true, nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	if joined {
		roomCh := pubsub.RoomChannel(room.Id)
		cs.publish(roomCh, messageEvent(room.Id, sys), "")
		cs.publish(roomCh, notification(&Notification{
			MemberJoined: &MemberJoined{RoomId: room.Id, User: cs.toUser(user), Message: sys},
		}), "")
		cs.publish(pubsub.UserChannel(userId), roomUpdated(room), "")
	}

	return JoinResult{Room: room, Joined: joined}, nil
}

// CreateGroup creates a group room owned by ownerId with a fresh invite
// code.
func (cs *ChatServer) CreateGroup(ctx context.Context, ownerId, name, icon string) (*chat.Room, error) {
	return call(ctx, cs, func() (*chat.Room, error) { return cs.createGroup(ownerId, name, icon) })
}

func (cs *ChatServer) createGroup(ownerId, name, icon string) (*chat.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidRequest)
	}

	if _, err := cs.loadUser(ownerId); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		code, err := chat.NewInviteCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}

		room := chat.NewGroupRoom(chat.NewId(), name, icon, code, ownerId, cs.now())
		err = cs.createRoom(room)
		if err == nil {
			cs.log.WithField("room_id", room.Id).Info("group created")
			return room, nil
		}
		if !errors.Is(err, database.ErrDuplicate) || attempt+1 >= maxInviteCodeAttempts {
			return nil, err
		}
	}
}

type PrivateResult struct {
	Room    *chat.Room
	Created bool
}

// OpenPrivate returns the private room of two friends, creating it on first
// contact.
func (cs *ChatServer) OpenPrivate(ctx context.Context, userId, otherId string) (PrivateResult, error) {
	return call(ctx, cs, func() (PrivateResult, error) { return cs.openPrivate(userId, otherId) })
}

func (cs *ChatServer) openPrivate(userId, otherId string) (PrivateResult, error) {
	if userId == otherId {
		return PrivateResult{}, chat.ErrSelfPrivate
	}

	key := chat.PairKey(userId, otherId)
	if room, err := cs.roomByPairKey(key); err == nil {
		return PrivateResult{Room: room}, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return PrivateResult{}, err
	}

	me, err := cs.loadUser(userId)
	if err != nil {
		return PrivateResult{}, err
	}
	other, err := cs.loadUser(otherId)
	if err != nil {
		return PrivateResult{}, err
	}

	if me.HasBlocked(otherId) || other.HasBlocked(userId) {
		return PrivateResult{}, fmt.Errorf("%w: user is blocked", ErrForbidden)
	}
	if !me.IsFriend(otherId) {
		return PrivateResult{}, chat.ErrNotFriends
	}

	room, err := chat.NewPrivateRoom(chat.NewId(), userId, otherId)
	if err != nil {
		return PrivateResult{}, err
	}

	if err := cs.createRoom(room); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			// another process created it first
			existing, lookupErr := cs.roomByPairKey(key)
			if lookupErr != nil {
				return PrivateResult{}, lookupErr
			}
			return PrivateResult{Room: existing}, nil
		}
		return PrivateResult{}, err
	}

	cs.publish(pubsub.UserChannel(otherId), roomUpdated(room), "")
	return PrivateResult{Room: room, Created: true}, nil
}

func (cs *ChatServer) roomByPairKey(key string) (*chat.Room, error) {
	rec, err := cs.db.GetRoomByPairKey(key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("lookup private room", err)
	}
	return cs.decodeRoom(rec)
}

// UpdateSettings merges patch into the room settings. Only admins and
// moderators may change settings.
func (cs *ChatServer) UpdateSettings(ctx context.Context, roomId, actorId string, patch chat.SettingsPatch) (*chat.Room, error) {
	return call(ctx, cs, func() (*chat.Room, error) { return cs.updateSettings(roomId, actorId, patch) })
}

func (cs *ChatServer) updateSettings(roomId, actorId string, patch chat.SettingsPatch) (*chat.Room, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: no settings to change", ErrInvalidRequest)
	}

	var lockChanged bool
	room, err := cs.mutateRoom(roomId, func(room *chat.Room) (bool, error) {
		m, ok := room.Member(actorId)
		if !ok || !m.Role.CanModerate() {
			return false, fmt.Errorf("%w: only admins and moderators can change settings", ErrForbidden)
		}

		wasLocked := room.Settings.Locked
		if err := room.UpdateSettings(patch); err != nil {
			if errors.Is(err, chat.ErrMessageNotFound) {
				return false, err
			}
			return false, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		lockChanged = wasLocked != room.Settings.Locked
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	cs.publish(pubsub.RoomChannel(room.Id), roomUpdated(room), "")

	if lockChanged {
		text := "Room unlocked"
		if room.Settings.Locked {
			text = "Room locked, only admins and moderators can send messages"
		}
		if _, err := cs.appendSystem(room.Id, text); err != nil {
			cs.log.WithError(err).WithField("room_id", room.Id).Warn("lock notice")
		}
	}

	return room, nil
}

// SetMemberRole changes a member's role. Only admins may do this.
func (cs *ChatServer) SetMemberRole(ctx context.Context, roomId, actorId, targetId string, role chat.Role) (*chat.Room, error) {
	return call(ctx, cs, func() (*chat.Room, error) { return cs.setMemberRole(roomId, actorId, targetId, role) })
}

func (cs *ChatServer) setMemberRole(roomId, actorId, targetId string, role chat.Role) (*chat.Room, error) {
	room, err := cs.mutateRoom(roomId, func(room *chat.Room) (bool, error) {
		m, ok := room.Member(actorId)
		if !ok || m.Role != chat.RoleAdmin {
			return false, fmt.Errorf("%w: only admins can change roles", ErrForbidden)
		}
		if err := room.SetRole(targetId, role); err != nil {
			if errors.Is(err, chat.ErrNotMember) {
				return false, fmt.Errorf("%w: %w", ErrUserNotFound, err)
			}
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	cs.publish(pubsub.RoomChannel(room.Id), roomUpdated(room), "")
	return room, nil
}

// MarkRead records that userId has read messageId, or every message when
// messageId is empty.
func (cs *ChatServer) MarkRead(ctx context.Context, roomId, userId, messageId string) ([]string, error) {
	return call(ctx, cs, func() ([]string, error) { return cs.markRead(roomId, userId, messageId) })
}

func (cs *ChatServer) markRead(roomId, userId, messageId string) ([]string, error) {
	var changed []string
	room, err := cs.mutateRoom(roomId, func(room *chat.Room) (bool, error) {
		changed = nil
		if !room.IsMember(userId) {
			return false, fmt.Errorf("%w: %w", ErrForbidden, chat.ErrNotMember)
		}

		if messageId == "" {
			changed = room.MarkAllRead(userId)
			return len(changed) > 0, nil
		}

		ok, err := room.MarkRead(messageId, userId)
		if err != nil || !ok {
			return false, err
		}
		changed = []string{messageId}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		cs.publish(pubsub.RoomChannel(room.Id), notification(&Notification{
			ReadReceipt: &ReadReceipt{RoomId: room.Id, UserId: userId, MessageIds: changed},
		}), "")
	}
	return changed, nil
}

// React toggles userId's emoji reaction on a message.
func (cs *ChatServer) React(ctx context.Context, roomId, userId, messageId, emoji string) (chat.Message, error) {
	return call(ctx, cs, func() (chat.Message, error) { return cs.react(roomId, userId, messageId, emoji) })
}

func (cs *ChatServer) react(roomId, userId, messageId, emoji string) (chat.Message, error) {
	var msg chat.Message
	room, err := cs.mutateRoom(roomId, func(room *chat.Room) (bool, error) {
		if !room.IsMember(userId) {
			return false, fmt.Errorf("%w: %w", ErrForbidden, chat.ErrNotMember)
		}

		m, err := room.ToggleReaction(messageId, userId, emoji)
		if err != nil {
			return false, err
		}
		msg = m
		return true, nil
	})
	if err != nil {
		return chat.Message{}, err
	}

	cs.publish(pubsub.RoomChannel(room.Id), notification(&Notification{
		Reaction: &Reaction{RoomId: room.Id, MessageId: msg.Id, Reactions: msg.Reactions},
	}), "")
	return msg, nil
}

func roomUpdated(room *chat.Room) *ServerMessage {
	settings := room.Settings
	return notification(&Notification{
		RoomUpdated: &RoomUpdated{
			RoomId:   room.Id,
			Settings: &settings,
			Members:  room.Members,
		},
	})
}
