package server

import (
	"errors"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
)

const maxConflictRetries = 3

func (cs *ChatServer) loadRoom(id string) (*chat.Room, error) {
	rec, err := cs.db.GetRoom(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, storageErr("load room", err)
	}

	return cs.decodeRoom(rec)
}

func (cs *ChatServer) decodeRoom(rec database.RoomRecord) (*chat.Room, error) {
	room, err := chat.FromRecord(rec, cs.policy)
	if err != nil {
		var mErr *chat.MalformedBlobError
		if errors.As(err, &mErr) {
			cs.log.WithError(err).WithField("room_id", rec.Id).Warn("rejecting malformed room")
			cs.quarantine(rec.Id, "room.", mErr.Fields)
		}
		return nil, storageErr("decode room", err)
	}

	if len(room.Malformed) > 0 {
		cs.log.WithField("room_id", rec.Id).Warnf("%d malformed blob(s) replaced with defaults", len(room.Malformed))
		cs.quarantine(rec.Id, "room.", room.Malformed)
	}

	return room, nil
}

// quarantine stores each raw blob once so it can be inspected later.
func (cs *ChatServer) quarantine(ownerId, prefix string, fields []chat.MalformedField) {
	for _, f := range fields {
		key := quarantineKey{owner: ownerId, field: prefix + f.Field, raw: f.Raw}
		if _, ok := cs.quarantined[key]; ok {
			continue
		}

		err := cs.db.QuarantineBlob(database.QuarantinedBlob{
			OwnerId:   ownerId,
			Field:     key.field,
			Raw:       f.Raw,
			CreatedAt: cs.now(),
		})
		if err != nil {
			cs.log.WithError(err).WithField("owner_id", ownerId).Error("quarantine blob")
			continue
		}
		cs.quarantined[key] = struct{}{}
	}
}

func (cs *ChatServer) saveRoom(room *chat.Room) error {
	rec, err := room.Record()
	if err != nil {
		return storageErr("encode room", err)
	}

	saved, err := cs.db.SaveRoom(rec)
	if err != nil {
		return storageErr("save room", err)
	}

	room.Version = saved.Version
	return nil
}

func (cs *ChatServer) createRoom(room *chat.Room) error {
	rec, err := room.Record()
	if err != nil {
		return storageErr("encode room", err)
	}

	saved, err := cs.db.CreateRoom(rec)
	if err != nil {
		return storageErr("create room", err)
	}

	room.Version = saved.Version
	return nil
}

// mutateRoom loads a room, applies fn and saves the result when fn reports
// a change. A write that loses to another process is retried on a fresh
// copy of the room.
func (cs *ChatServer) mutateRoom(id string, fn func(*chat.Room) (bool, error)) (*chat.Room, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		room, err := cs.loadRoom(id)
		if err != nil {
			return nil, err
		}

		changed, err := fn(room)
		if err != nil {
			return nil, err
		}
		if !changed {
			return room, nil
		}

		err = cs.saveRoom(room)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, database.ErrConflict) {
			return nil, err
		}

		cs.log.WithField("room_id", id).Debug("room write conflict, retrying")
		lastErr = err
	}

	return nil, lastErr
}

func (cs *ChatServer) loadUser(id string) (*chat.User, error) {
	rec, err := cs.db.GetUser(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("load user", err)
	}

	return cs.decodeUser(rec)
}

func (cs *ChatServer) decodeUser(rec database.UserRecord) (*chat.User, error) {
	user, err := chat.UserFromRecord(rec, cs.policy)
	if err != nil {
		var mErr *chat.MalformedBlobError
		if errors.As(err, &mErr) {
			cs.log.WithError(err).WithField("user_id", rec.Id).Warn("rejecting malformed user")
			cs.quarantine(rec.Id, "user.", mErr.Fields)
		}
		return nil, storageErr("decode user", err)
	}

	if len(user.Malformed) > 0 {
		cs.log.WithField("user_id", rec.Id).Warn("malformed user data replaced with defaults")
		cs.quarantine(rec.Id, "user.", user.Malformed)
	}

	return user, nil
}

func (cs *ChatServer) saveUser(user *chat.User) error {
	rec, err := user.Record()
	if err != nil {
		return storageErr("encode user", err)
	}

	if _, err := cs.db.SaveUser(rec); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return storageErr("save user", err)
	}
	return nil
}
