package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/types"
)

func (cs *ChatServer) toUser(u *chat.User) types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		Color:       u.Profile.Color,
		Pic:         u.Avatar(),
		Online:      cs.presence.IsOnline(u.Id),
	}
}

// userOrPlaceholder resolves a member id. Members whose account was
// deleted are shown with a placeholder.
func (cs *ChatServer) userOrPlaceholder(id string) (types.User, error) {
	u, err := cs.loadUser(id)
	if errors.Is(err, ErrUserNotFound) {
		return types.User{Id: id, Username: "deleted user"}, nil
	}
	if err != nil {
		return types.User{}, err
	}
	return cs.toUser(u), nil
}

// RoomView returns a room as seen by one of its members, including the
// full message history.
func (cs *ChatServer) RoomView(ctx context.Context, roomId, userId string) (types.Room, error) {
	return call(ctx, cs, func() (types.Room, error) { return cs.roomView(roomId, userId, true) })
}

func (cs *ChatServer) roomView(roomId, userId string, withMessages bool) (types.Room, error) {
	room, err := cs.loadRoom(roomId)
	if err != nil {
		return types.Room{}, err
	}

	me, ok := room.Member(userId)
	if !ok {
		return types.Room{}, fmt.Errorf("%w: %w", ErrForbidden, chat.ErrNotMember)
	}

	view := types.Room{
		Id:       room.Id,
		Type:     room.Type,
		Name:     room.Settings.Name,
		Icon:     room.Settings.Icon,
		MyRole:   me.Role,
		Settings: room.Settings,
		Version:  room.Version,
		Members:  make([]types.Member, 0, len(room.Members)),
	}

	for _, m := range room.Members {
		u, err := cs.userOrPlaceholder(m.UserId)
		if err != nil {
			return types.Room{}, err
		}
		view.Members = append(view.Members, types.Member{User: u, Role: m.Role})

		if room.IsPrivate() && m.UserId != userId {
			view.Name = u.DisplayName
			if view.Name == "" {
				view.Name = u.Username
			}
			view.Icon = u.Pic
		}
	}

	if pinned, ok := room.PinnedMessage(); ok {
		view.PinnedMessage = &pinned
	}
	if withMessages {
		view.Messages = room.Messages
	}

	return view, nil
}

// ListRooms returns the rooms userId belongs to, most recently active
// first.
func (cs *ChatServer) ListRooms(ctx context.Context, userId string) ([]types.RoomSummary, error) {
	return call(ctx, cs, func() ([]types.RoomSummary, error) { return cs.listRooms(userId) })
}

func (cs *ChatServer) listRooms(userId string) ([]types.RoomSummary, error) {
	recs, err := cs.db.ListRooms()
	if err != nil {
		return nil, storageErr("list rooms", err)
	}

	summaries := []types.RoomSummary{}
	for _, rec := range recs {
		room, err := cs.decodeRoom(rec)
		if err != nil {
			continue
		}
		if !room.IsMember(userId) {
			continue
		}

		s := types.RoomSummary{
			Id:   room.Id,
			Type: room.Type,
			Name: room.Settings.Name,
			Icon: room.Settings.Icon,
		}
		if room.IsPrivate() {
			if other, ok := room.OtherMember(userId); ok {
				u, err := cs.userOrPlaceholder(other.UserId)
				if err != nil {
					return nil, err
				}
				s.Name = u.DisplayName
				if s.Name == "" {
					s.Name = u.Username
				}
				s.Icon = u.Pic
			}
		}
		if last, ok := room.LastMessage(); ok {
			s.LastMessage = &last
		}
		for _, m := range room.Messages {
			if !slices.Contains(m.ReadBy, userId) {
				s.Unread++
			}
		}

		summaries = append(summaries, s)
	}

	slices.SortStableFunc(summaries, func(a, b types.RoomSummary) int {
		return lastActivity(b).Compare(lastActivity(a))
	})

	return summaries, nil
}

func lastActivity(s types.RoomSummary) time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.Timestamp
	}
	return time.Time{}
}

// History returns the message log of a room for one of its members.
func (cs *ChatServer) History(ctx context.Context, roomId, userId string) ([]chat.Message, error) {
	return call(ctx, cs, func() ([]chat.Message, error) {
		room, err := cs.loadRoom(roomId)
		if err != nil {
			return nil, err
		}
		if !room.IsMember(userId) {
			return nil, fmt.Errorf("%w: %w", ErrForbidden, chat.ErrNotMember)
		}
		return room.Messages, nil
	})
}

// Account returns userId with their friend graph resolved.
func (cs *ChatServer) Account(ctx context.Context, userId string) (types.Account, error) {
	return call(ctx, cs, func() (types.Account, error) { return cs.account(userId) })
}

func (cs *ChatServer) account(userId string) (types.Account, error) {
	u, err := cs.loadUser(userId)
	if err != nil {
		return types.Account{}, err
	}

	resolve := func(ids []string) ([]types.User, error) {
		out := make([]types.User, 0, len(ids))
		for _, id := range ids {
			user, err := cs.userOrPlaceholder(id)
			if err != nil {
				return nil, err
			}
			out = append(out, user)
		}
		return out, nil
	}

	acct := types.Account{User: cs.toUser(u)}
	acct.EmailAddress = u.Email
	acct.Role = u.EffectiveRole(cs.now())
	acct.RoleExpiresAt = u.RoleExpiresAt
	acct.CreatedAt = u.CreatedAt

	if acct.Friends, err = resolve(u.Friends); err != nil {
		return types.Account{}, err
	}
	if acct.FriendRequests, err = resolve(u.FriendRequests); err != nil {
		return types.Account{}, err
	}
	if acct.Blocked, err = resolve(u.Blocked); err != nil {
		return types.Account{}, err
	}

	return acct, nil
}

// SearchUsers finds users whose name contains query, leaving out the
// caller.
func (cs *ChatServer) SearchUsers(ctx context.Context, userId, query string) ([]types.User, error) {
	return call(ctx, cs, func() ([]types.User, error) {
		recs, err := cs.db.SearchUsers(query)
		if err != nil {
			return nil, storageErr("search users", err)
		}

		users := []types.User{}
		for _, rec := range recs {
			if rec.Id == userId {
				continue
			}
			u, err := cs.decodeUser(rec)
			if err != nil {
				continue
			}
			users = append(users, cs.toUser(u))
		}
		return users, nil
	})
}
