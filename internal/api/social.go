package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/npezzotti/roomchat/internal/types"
)

type FriendRequestResponse struct {
	Sent bool `json:"sent"`
}

type BlockResponse struct {
	Changed bool `json:"changed"`
}

type BanRequest struct {
	Banned bool `json:"banned"`
}

type GrantRoleRequest struct {
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *RoomChatApp) searchUsers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users, err := s.cs.SearchUsers(r.Context(), userId, query)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if users == nil {
		users = []types.User{}
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *RoomChatApp) sendFriendRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sent, err := s.cs.SendFriendRequest(r.Context(), userId, r.PathValue("userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, FriendRequestResponse{Sent: sent})
}

func (s *RoomChatApp) acceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.respondFriendRequest(w, r, true)
}

func (s *RoomChatApp) rejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.respondFriendRequest(w, r, false)
}

func (s *RoomChatApp) respondFriendRequest(w http.ResponseWriter, r *http.Request, accept bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.RespondFriendRequest(r.Context(), userId, r.PathValue("userId"), accept); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *RoomChatApp) blockUser(w http.ResponseWriter, r *http.Request) {
	s.setBlocked(w, r, true)
}

func (s *RoomChatApp) unblockUser(w http.ResponseWriter, r *http.Request) {
	s.setBlocked(w, r, false)
}

func (s *RoomChatApp) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	changed, err := s.cs.SetBlocked(r.Context(), userId, r.PathValue("userId"), blocked)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, BlockResponse{Changed: changed})
}

func (s *RoomChatApp) setBanned(w http.ResponseWriter, r *http.Request) {
	var req BanRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	targetId := r.PathValue("userId")
	if adminId, _ := UserId(r.Context()); adminId == targetId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.cs.SetBanned(r.Context(), targetId, req.Banned)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.WithField("user_id", targetId).WithField("banned", req.Banned).Info("ban status changed")
	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *RoomChatApp) grantRole(w http.ResponseWriter, r *http.Request) {
	var req GrantRoleRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	user, err := s.cs.GrantRole(r.Context(), r.PathValue("userId"), req.Role, req.ExpiresAt)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *RoomChatApp) deleteUser(w http.ResponseWriter, r *http.Request) {
	targetId := r.PathValue("userId")
	if adminId, _ := UserId(r.Context()); adminId == targetId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.DeleteUser(r.Context(), targetId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
