package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/npezzotti/roomchat/internal/server"
)

func (s *RoomChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.WithError(panicError).Error("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the session cookie to a user. Banned users are
// refused, and an expired role grant is revoked before the handler runs.
func (s *RoomChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenCookie, err := r.Cookie(tokenCookieKey)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		userId, err := s.extractUserIdFromToken(tokenCookie.Value)
		if err != nil {
			s.log.WithError(err).Debug("failed to extract user id from token")
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		user, err := s.cs.Authenticate(r.Context(), userId)
		if err != nil {
			var errResp *ApiError
			switch {
			case errors.Is(err, server.ErrUserNotFound):
				errResp = NewUnauthorizedError()
			case errors.Is(err, server.ErrBanned):
				http.SetCookie(w, expiredJwtCookie())
				errResp = NewApiError(err)
			default:
				errResp = NewApiError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUserId(r.Context(), userId)
		ctx = withUser(ctx, user)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// adminMiddleware runs after authMiddleware and lets only admins through.
func (s *RoomChatApp) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(r.Context())
		if !ok || !user.IsAdmin(s.now()) {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		next(w, r)
	}
}
