package api

import (
	"net/http"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/server"
	"github.com/npezzotti/roomchat/internal/types"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type OpenPrivateRequest struct {
	UserId string `json:"user_id"`
}

type SendMessageRequest struct {
	Type     chat.MessageType `json:"type"`
	Content  string           `json:"content"`
	FileName string           `json:"file_name"`
	ReplyTo  string           `json:"reply_to"`
}

type SetRoleRequest struct {
	Role chat.Role `json:"role"`
}

type MarkReadRequest struct {
	MessageId string `json:"message_id"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

type MarkReadResponse struct {
	MessageIds []string `json:"message_ids"`
}

type JoinInviteResponse struct {
	Room   types.Room `json:"room"`
	Joined bool       `json:"joined"`
}

// roomResponse answers with the room as the caller sees it.
func (s *RoomChatApp) roomResponse(w http.ResponseWriter, r *http.Request, status int, roomId, userId string) {
	view, err := s.cs.RoomView(r.Context(), roomId, userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, status, view)
}

func (s *RoomChatApp) createGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	room, err := s.cs.CreateGroup(r.Context(), userId, req.Name, req.Icon)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.roomResponse(w, r, http.StatusCreated, room.Id, userId)
}

func (s *RoomChatApp) openPrivate(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req OpenPrivateRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	res, err := s.cs.OpenPrivate(r.Context(), userId, req.UserId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}

	s.roomResponse(w, r, status, res.Room.Id, userId)
}

func (s *RoomChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.cs.ListRooms(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if rooms == nil {
		rooms = []types.RoomSummary{}
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *RoomChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.roomResponse(w, r, http.StatusOK, r.PathValue("id"), userId)
}

func (s *RoomChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msgs, err := s.cs.History(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if msgs == nil {
		msgs = []chat.Message{}
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *RoomChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if req.Type == "" {
		req.Type = chat.MessageText
	}

	msg, err := s.cs.SendMessage(r.Context(), server.SendRequest{
		RoomId:   r.PathValue("id"),
		SenderId: userId,
		Type:     req.Type,
		Content:  req.Content,
		FileName: req.FileName,
		ReplyTo:  req.ReplyTo,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *RoomChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// an empty body marks the whole room as read
	var req MarkReadRequest
	if r.ContentLength != 0 && !s.decodeJson(w, r, &req) {
		return
	}

	ids, err := s.cs.MarkRead(r.Context(), r.PathValue("id"), userId, req.MessageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if ids == nil {
		ids = []string{}
	}

	s.writeJson(w, http.StatusOK, MarkReadResponse{MessageIds: ids})
}

func (s *RoomChatApp) react(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReactRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if req.Emoji == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.React(r.Context(), r.PathValue("id"), userId, r.PathValue("messageId"), req.Emoji)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *RoomChatApp) updateSettings(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var patch chat.SettingsPatch
	if !s.decodeJson(w, r, &patch) {
		return
	}

	room, err := s.cs.UpdateSettings(r.Context(), r.PathValue("id"), userId, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.roomResponse(w, r, http.StatusOK, room.Id, userId)
}

func (s *RoomChatApp) setMemberRole(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SetRoleRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	room, err := s.cs.SetMemberRole(r.Context(), r.PathValue("id"), userId, r.PathValue("userId"), req.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.roomResponse(w, r, http.StatusOK, room.Id, userId)
}

func (s *RoomChatApp) joinInvite(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	res, err := s.cs.JoinByInviteCode(r.Context(), r.PathValue("code"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view, err := s.cs.RoomView(r.Context(), res.Room.Id, userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, JoinInviteResponse{Room: view, Joined: res.Joined})
}
