package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/server"
	"github.com/npezzotti/roomchat/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateAccountRequest struct {
	Username    *string `json:"username"`
	Password    *string `json:"password"`
	DisplayName *string `json:"display_name"`
	Color       *string `json:"color"`
	Pic         *string `json:"pic"`
}

func (s *RoomChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("json encode")
	}
}

// writeError maps err to an ApiError. Server errors are logged.
func (s *RoomChatApp) writeError(w http.ResponseWriter, err error) {
	errResp := NewApiError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *RoomChatApp) decodeJson(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}
	return true
}

// userResponse is the caller's own user, email and role included.
func userResponse(u *chat.User) types.User {
	return types.User{
		Id:            u.Id,
		Username:      u.Username,
		EmailAddress:  u.Email,
		DisplayName:   u.DisplayName(),
		Color:         u.Profile.Color,
		Pic:           u.Avatar(),
		Role:          u.Role,
		Banned:        u.Banned,
		RoleExpiresAt: u.RoleExpiresAt,
		CreatedAt:     u.CreatedAt,
	}
}

func (s *RoomChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.WithError(err).Error("database ping failed")
		errResp := &ApiError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "database unavailable",
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *RoomChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.cs.Register(r.Context(), server.RegisterRequest{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, userResponse(user))
}

func (s *RoomChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if !s.decodeJson(w, r, &lr) {
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rec, err := s.db.GetUserByEmail(strings.ToLower(strings.TrimSpace(lr.Email)))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := chat.UserFromRecord(rec, chat.DefaultOnMalformed)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(user.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if user.Banned {
		s.writeError(w, server.ErrBanned)
		return
	}

	token, err := s.createJwtForSession(user.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *RoomChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, expiredJwtCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (s *RoomChatApp) session(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *RoomChatApp) account(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	acct, err := s.cs.Account(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, acct)
}

func (s *RoomChatApp) updateAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateAccountRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	patch := server.AccountPatch{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Color:       req.Color,
		Pic:         req.Pic,
	}

	if req.Password != nil {
		if *req.Password == "" {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		pwdHash, err := hashPassword(*req.Password)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		patch.PasswordHash = &pwdHash
	}

	user, err := s.cs.UpdateAccount(r.Context(), userId, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *RoomChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("error upgrading connection")
		return
	}

	client := server.NewClient(types.User{
		Id:          user.Id,
		Username:    user.Username,
		DisplayName: user.DisplayName(),
		Pic:         user.Avatar(),
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
