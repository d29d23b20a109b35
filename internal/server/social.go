package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/pubsub"
)

// SendFriendRequest asks targetId to befriend fromId. The target is told
// about it on their user channel.
func (cs *ChatServer) SendFriendRequest(ctx context.Context, fromId, targetId string) (bool, error) {
	return call(ctx, cs, func() (bool, error) { return cs.sendFriendRequest(fromId, targetId) })
}

func (cs *ChatServer) sendFriendRequest(fromId, targetId string) (bool, error) {
	if fromId == targetId {
		return false, fmt.Errorf("%w: cannot befriend yourself", ErrInvalidRequest)
	}

	from, err := cs.loadUser(fromId)
	if err != nil {
		return false, err
	}
	target, err := cs.loadUser(targetId)
	if err != nil {
		return false, err
	}
	if from.HasBlocked(targetId) || target.HasBlocked(fromId) {
		return false, fmt.Errorf("%w: user is blocked", ErrForbidden)
	}

	if !target.ReceiveFriendRequest(fromId) {
		return false, nil
	}
	if err := cs.saveUser(target); err != nil {
		return false, err
	}

	cs.publish(pubsub.UserChannel(targetId), notification(&Notification{
		FriendRequest: &FriendRequest{From: cs.toUser(from)},
	}), "")
	return true, nil
}

// RespondFriendRequest accepts or rejects the request fromId sent to userId.
func (cs *ChatServer) RespondFriendRequest(ctx context.Context, userId, fromId string, accept bool) error {
	_, err := call(ctx, cs, func() (struct{}, error) { return struct{}{}, cs.respondFriendRequest(userId, fromId, accept) })
	return err
}

func (cs *ChatServer) respondFriendRequest(userId, fromId string, accept bool) error {
	me, err := cs.loadUser(userId)
	if err != nil {
		return err
	}

	if !accept {
		if !me.RejectFriend(fromId) {
			return chat.ErrNoFriendRequest
		}
		return cs.saveUser(me)
	}

	from, err := cs.loadUser(fromId)
	if err != nil {
		return err
	}
	if err := me.AcceptFriend(from); err != nil {
		return err
	}
	if err := cs.saveUser(me); err != nil {
		return err
	}
	if err := cs.saveUser(from); err != nil {
		return err
	}

	cs.publish(pubsub.UserChannel(fromId), notification(&Notification{
		FriendRequest: &FriendRequest{From: cs.toUser(me), Accepted: true},
	}), "")
	return nil
}

// SetBlocked blocks or unblocks targetId for userId.
func (cs *ChatServer) SetBlocked(ctx context.Context, userId, targetId string, blocked bool) (bool, error) {
	return call(ctx, cs, func() (bool, error) { return cs.setBlocked(userId, targetId, blocked) })
}

func (cs *ChatServer) setBlocked(userId, targetId string, blocked bool) (bool, error) {
	if userId == targetId {
		return false, fmt.Errorf("%w: cannot block yourself", ErrInvalidRequest)
	}

	me, err := cs.loadUser(userId)
	if err != nil {
		return false, err
	}

	var (
		changed bool
		other   *chat.User
	)
	if blocked {
		if other, err = cs.loadUser(targetId); err != nil {
			return false, err
		}
		changed = me.Block(targetId)
	} else {
		changed = me.Unblock(targetId)
	}
	if !changed {
		return false, nil
	}

	if err := cs.saveUser(me); err != nil {
		return false, err
	}

	// blocking also ends the friendship on the other side
	if other != nil && other.Unfriend(userId) {
		if err := cs.saveUser(other); err != nil {
			return true, err
		}
	}

	return true, nil
}

// SetBanned bans or unbans a user. Banned users are logged out of every
// session.
func (cs *ChatServer) SetBanned(ctx context.Context, userId string, banned bool) (*chat.User, error) {
	return call(ctx, cs, func() (*chat.User, error) { return cs.setBanned(userId, banned) })
}

func (cs *ChatServer) setBanned(userId string, banned bool) (*chat.User, error) {
	user, err := cs.loadUser(userId)
	if err != nil {
		return nil, err
	}

	user.Banned = banned
	if err := cs.saveUser(user); err != nil {
		return nil, err
	}

	if banned {
		cs.forceLogout(userId, "banned")
	}
	return user, nil
}

// GrantRole sets a user's role. A non-nil expiresAt makes the grant
// temporary; it is revoked the next time the user makes a request after
// that time.
func (cs *ChatServer) GrantRole(ctx context.Context, userId, role string, expiresAt *time.Time) (*chat.User, error) {
	return call(ctx, cs, func() (*chat.User, error) { return cs.grantRole(userId, role, expiresAt) })
}

func (cs *ChatServer) grantRole(userId, role string, expiresAt *time.Time) (*chat.User, error) {
	if role != chat.UserRoleUser && role != chat.UserRoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}
	if expiresAt != nil && !expiresAt.After(cs.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidRequest)
	}

	user, err := cs.loadUser(userId)
	if err != nil {
		return nil, err
	}

	user.Role = role
	user.RoleExpiresAt = expiresAt
	if role == chat.UserRoleUser {
		user.RoleExpiresAt = nil
	}
	if err := cs.saveUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes the account. Memberships and messages that refer to
// the user are left in place.
func (cs *ChatServer) DeleteUser(ctx context.Context, userId string) error {
	_, err := call(ctx, cs, func() (struct{}, error) { return struct{}{}, cs.deleteUser(userId) })
	return err
}

func (cs *ChatServer) deleteUser(userId string) error {
	if err := cs.db.DeleteUser(userId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return storageErr("delete user", err)
	}

	cs.forceLogout(userId, "deleted")
	return nil
}

func (cs *ChatServer) forceLogout(userId, reason string) {
	cs.publish(pubsub.UserChannel(userId), notification(&Notification{
		ForceLogout: &ForceLogout{UserId: userId, Reason: reason},
	}), "")
	cs.disconnectUser(userId)
}
