package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Publish    *Publish    `json:"publish,omitempty"`
	Join       *Join       `json:"join,omitempty"`
	Leave      *Leave      `json:"leave,omitempty"`
	JoinInvite *JoinInvite `json:"join_invite,omitempty"`
	Read       *Read       `json:"read,omitempty"`
	React      *React      `json:"react,omitempty"`
	UserId     string      `json:"-"`
	client     *Client     `json:"-"`
}

type Publish struct {
	RoomId   string           `json:"room_id"`
	Type     chat.MessageType `json:"type,omitempty"`
	Content  string           `json:"content"`
	FileName string           `json:"file_name,omitempty"`
	ReplyTo  string           `json:"reply_to,omitempty"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type JoinInvite struct {
	Code string `json:"code"`
}

// Read marks one message as read, or every message when MessageId is
// empty.
type Read struct {
	RoomId    string `json:"room_id"`
	MessageId string `json:"message_id,omitempty"`
}

type React struct {
	RoomId    string `json:"room_id"`
	MessageId string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	MemberJoined    *MemberJoined    `json:"member_joined,omitempty"`
	StatusChanged   *StatusChanged   `json:"status_changed,omitempty"`
	MessagesExpired *MessagesExpired `json:"messages_expired,omitempty"`
	RoomUpdated     *RoomUpdated     `json:"room_updated,omitempty"`
	Reaction        *Reaction        `json:"reaction,omitempty"`
	ReadReceipt     *ReadReceipt     `json:"read_receipt,omitempty"`
	ForceLogout     *ForceLogout     `json:"force_logout,omitempty"`
	FriendRequest   *FriendRequest   `json:"friend_request,omitempty"`
}

type MemberJoined struct {
	RoomId  string       `json:"room_id"`
	User    types.User   `json:"user"`
	Message chat.Message `json:"message"`
}

type StatusChanged struct {
	UserId string `json:"user_id"`
	Online bool   `json:"online"`
}

type MessagesExpired struct {
	RoomId     string   `json:"room_id"`
	MessageIds []string `json:"message_ids"`
}

type RoomUpdated struct {
	RoomId   string         `json:"room_id"`
	Settings *chat.Settings `json:"settings,omitempty"`
	Members  []chat.Member  `json:"members,omitempty"`
}

type Reaction struct {
	RoomId    string              `json:"room_id"`
	MessageId string              `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
}

type ReadReceipt struct {
	RoomId     string   `json:"room_id"`
	UserId     string   `json:"user_id"`
	MessageIds []string `json:"message_ids"`
}

type ForceLogout struct {
	UserId string `json:"user_id"`
	Reason string `json:"reason"`
}

type FriendRequest struct {
	From     types.User `json:"from"`
	Accepted bool       `json:"accepted"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

// ErrResponse reports the outcome of a rejected request back to the
// session that sent it.
func ErrResponse(id int, err error) *ServerMessage {
	code := StatusCode(err)
	text := err.Error()
	if code >= http.StatusInternalServerError {
		text = "internal server error"
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func messageEvent(roomId string, msg chat.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Message:     &types.Message{RoomId: roomId, Message: msg},
	}
}

func notification(n *Notification) *ServerMessage {
	return &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: n,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
