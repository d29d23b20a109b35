package server

import (
	"errors"
	"fmt"
)

func (cs *ChatServer) handleClientMessage(msg *ClientMessage) {
	c := msg.client

	switch {
	case msg.Join != nil:
		cs.handleJoin(msg)
	case msg.Leave != nil:
		cs.unsubscribe(c, msg.Leave.RoomId)
		c.queueMessage(NoErrOK(msg.Id, nil))
	case msg.Publish != nil:
		cs.handlePublish(msg)
	case msg.JoinInvite != nil:
		cs.handleJoinInvite(msg)
	case msg.Read != nil:
		changed, err := cs.markRead(msg.Read.RoomId, msg.UserId, msg.Read.MessageId)
		if err != nil {
			c.queueMessage(ErrResponse(msg.Id, err))
			return
		}
		c.queueMessage(NoErrOK(msg.Id, map[string]any{"message_ids": changed}))
	case msg.React != nil:
		m, err := cs.react(msg.React.RoomId, msg.UserId, msg.React.MessageId, msg.React.Emoji)
		if err != nil {
			c.queueMessage(ErrResponse(msg.Id, err))
			return
		}
		c.queueMessage(NoErrOK(msg.Id, map[string]any{"reactions": m.Reactions}))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

// handleJoin subscribes the session to a room it is a member of and
// replies with the room view.
func (cs *ChatServer) handleJoin(msg *ClientMessage) {
	view, err := cs.roomView(msg.Join.RoomId, msg.UserId, true)
	if err != nil {
		msg.client.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	cs.subscribe(msg.client, view.Id)
	msg.client.queueMessage(NoErrOK(msg.Id, view))
}

func (cs *ChatServer) handlePublish(msg *ClientMessage) {
	p := msg.Publish
	m, err := cs.sendMessage(SendRequest{
		RoomId:   p.RoomId,
		SenderId: msg.UserId,
		Type:     p.Type,
		Content:  p.Content,
		FileName: p.FileName,
		ReplyTo:  p.ReplyTo,
	})
	if err != nil {
		if errors.Is(err, ErrBlocked) {
			msg.client.queueMessage(blockedNotice(p.RoomId, cs.now))
		}
		msg.client.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id, map[string]any{"message_id": m.Id}))
}

func (cs *ChatServer) handleJoinInvite(msg *ClientMessage) {
	res, err := cs.joinByInviteCode(msg.JoinInvite.Code, msg.UserId)
	if err != nil {
		msg.client.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	view, err := cs.roomView(res.Room.Id, msg.UserId, true)
	if err != nil {
		msg.client.queueMessage(ErrResponse(msg.Id, fmt.Errorf("load joined room: %w", err)))
		return
	}

	cs.subscribe(msg.client, view.Id)
	msg.client.queueMessage(NoErrOK(msg.Id, map[string]any{"joined": res.Joined, "room": view}))
}
