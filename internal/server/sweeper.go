package server

import (
	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/pubsub"
	"github.com/npezzotti/roomchat/internal/stats"
)

// sweep removes expired messages from every room with an expiry window.
// It runs as a turn of the Run loop.
func (cs *ChatServer) sweep() {
	recs, err := cs.db.ListRooms()
	if err != nil {
		cs.log.WithError(err).Error("sweep: list rooms")
		return
	}

	now := cs.now()
	total := 0
	for _, rec := range recs {
		room, err := cs.decodeRoom(rec)
		if err != nil || room.Settings.ExpiresIn <= 0 {
			continue
		}

		var removed []string
		room, err = cs.mutateRoom(room.Id, func(r *chat.Room) (bool, error) {
			removed = r.Expire(now)
			return len(removed) > 0, nil
		})
		if err != nil {
			cs.log.WithError(err).WithField("room_id", rec.Id).Error("sweep: save room")
			continue
		}
		if len(removed) == 0 {
			continue
		}

		total += len(removed)
		cs.publish(pubsub.RoomChannel(room.Id), notification(&Notification{
			MessagesExpired: &MessagesExpired{RoomId: room.Id, MessageIds: removed},
		}), "")
	}

	if total > 0 {
		cs.stats.Add(stats.MessagesExpired, total)
		cs.log.WithField("removed", total).Info("sweep removed expired messages")
	}
}
