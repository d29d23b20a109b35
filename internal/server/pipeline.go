package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/pubsub"
	"github.com/npezzotti/roomchat/internal/stats"
)

type SendRequest struct {
	RoomId   string
	SenderId string
	Type     chat.MessageType
	Content  string
	FileName string
	ReplyTo  string
}

// SendMessage appends a message to a room and delivers it to every
// session subscribed to the room. A blocked sender's local sessions get a
// notice that is neither stored nor relayed.
func (cs *ChatServer) SendMessage(ctx context.Context, req SendRequest) (chat.Message, error) {
	return call(ctx, cs, func() (chat.Message, error) {
		m, err := cs.sendMessage(req)
		if errors.Is(err, ErrBlocked) {
			cs.deliver(pubsub.UserChannel(req.SenderId), blockedNotice(req.RoomId, cs.now), "")
		}
		return m, err
	})
}

func (cs *ChatServer) sendMessage(req SendRequest) (chat.Message, error) {
	if req.Type == "" {
		req.Type = chat.MessageText
	}

	sender, err := cs.loadUser(req.SenderId)
	if err != nil {
		return chat.Message{}, err
	}

	var msg chat.Message
	room, err := cs.mutateRoom(req.RoomId, func(room *chat.Room) (bool, error) {
		if err := room.CanSend(req.SenderId); err != nil {
			return false, fmt.Errorf("%w: %w", ErrForbidden, err)
		}

		if room.IsPrivate() {
			if err := cs.checkNotBlocked(room, req.SenderId); err != nil {
				return false, err
			}
		}

		m, err := chat.NewUserMessage(sender, req.Type, req.Content, req.FileName, req.ReplyTo, cs.now())
		if err != nil {
			return false, err
		}

		room.Append(m)
		msg = m
		return true, nil
	})
	if err != nil {
		cs.log.WithError(err).WithField("room_id", req.RoomId).Debug("send rejected")
		return chat.Message{}, err
	}

	cs.stats.Incr(stats.MessagesSent)
	cs.publish(pubsub.RoomChannel(room.Id), messageEvent(room.Id, msg), "")

	return msg, nil
}

// checkNotBlocked fails with ErrBlocked when the other member of a private
// room has blocked senderId. A deleted counterpart does not block.
func (cs *ChatServer) checkNotBlocked(room *chat.Room, senderId string) error {
	other, ok := room.OtherMember(senderId)
	if !ok {
		return nil
	}

	otherUser, err := cs.loadUser(other.UserId)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if otherUser.HasBlocked(senderId) {
		return ErrBlocked
	}
	return nil
}

// appendSystem records a server generated message and delivers it.
func (cs *ChatServer) appendSystem(roomId, content string) (chat.Message, error) {
	msg := chat.NewSystemMessage(content, cs.now())
	room, err := cs.mutateRoom(roomId, func(room *chat.Room) (bool, error) {
		room.Append(msg)
		return true, nil
	})
	if err != nil {
		return chat.Message{}, err
	}

	cs.publish(pubsub.RoomChannel(room.Id), messageEvent(room.Id, msg), "")
	return msg, nil
}

// blockedNotice is shown only to the sender whose message was refused.
func blockedNotice(roomId string, now func() time.Time) *ServerMessage {
	return messageEvent(roomId, chat.NewSystemMessage("You have been blocked by this user.", now()))
}
