package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/roomchat/internal/config"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/server"
	"github.com/sirupsen/logrus"
)

type RoomChatApp struct {
	log            logrus.FieldLogger
	db             database.RoomChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
	now            func() time.Time
}

func NewRoomChatApp(mux *http.ServeMux, logger logrus.FieldLogger, cs *server.ChatServer, db database.RoomChatRepository, cfg *config.Config) *RoomChatApp {
	s := &RoomChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		now:            func() time.Time { return time.Now().UTC() },
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/account", s.authMiddleware(s.account))
	mux.HandleFunc("PUT /api/account", s.authMiddleware(s.updateAccount))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createGroup))
	mux.HandleFunc("POST /api/rooms/private", s.authMiddleware(s.openPrivate))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("POST /api/rooms/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.HandleFunc("POST /api/rooms/{id}/read", s.authMiddleware(s.markRead))
	mux.HandleFunc("POST /api/rooms/{id}/messages/{messageId}/reactions", s.authMiddleware(s.react))
	mux.HandleFunc("PATCH /api/rooms/{id}/settings", s.authMiddleware(s.updateSettings))
	mux.HandleFunc("PUT /api/rooms/{id}/members/{userId}/role", s.authMiddleware(s.setMemberRole))
	mux.HandleFunc("POST /api/invites/{code}/join", s.authMiddleware(s.joinInvite))

	mux.HandleFunc("GET /api/users", s.authMiddleware(s.searchUsers))
	mux.HandleFunc("POST /api/friends/{userId}", s.authMiddleware(s.sendFriendRequest))
	mux.HandleFunc("POST /api/friends/{userId}/accept", s.authMiddleware(s.acceptFriendRequest))
	mux.HandleFunc("POST /api/friends/{userId}/reject", s.authMiddleware(s.rejectFriendRequest))
	mux.HandleFunc("PUT /api/blocks/{userId}", s.authMiddleware(s.blockUser))
	mux.HandleFunc("DELETE /api/blocks/{userId}", s.authMiddleware(s.unblockUser))

	mux.HandleFunc("PUT /api/admin/users/{userId}/ban", s.authMiddleware(s.adminMiddleware(s.setBanned)))
	mux.HandleFunc("PUT /api/admin/users/{userId}/role", s.authMiddleware(s.adminMiddleware(s.grantRole)))
	mux.HandleFunc("DELETE /api/admin/users/{userId}", s.authMiddleware(s.adminMiddleware(s.deleteUser)))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *RoomChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *RoomChatApp) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("starting server")
	return s.srv.ListenAndServe()
}

func (s *RoomChatApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
