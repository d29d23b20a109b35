package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/config"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/server"
	"github.com/npezzotti/roomchat/internal/stats"
	"github.com/npezzotti/roomchat/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPassword = "password123"

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

func newLenientStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	su.On("Add", mock.Anything, mock.Anything).Return().Maybe()
	return su
}

type testApp struct {
	app  *RoomChatApp
	cs   *server.ChatServer
	repo *database.BoltRoomChatRepository
}

// newTestApp wires the HTTP layer to a running chat server backed by a
// bolt file in a temp dir.
func newTestApp(t *testing.T) *testApp {
	repo, err := database.NewBoltRoomChatRepository(filepath.Join(t.TempDir(), "roomchat.db"))
	require.NoError(t, err, "expected bolt repository to open")

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, repo, newLenientStats())
	require.NoError(t, err, "failed to create chat server")
	go cs.Run()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cs.Shutdown(ctx)
		repo.Close()
	})

	return &testApp{
		app:  NewRoomChatApp(http.NewServeMux(), logger, cs, repo, testConfig()),
		cs:   cs,
		repo: repo,
	}
}

func (ta *testApp) register(t *testing.T, username string) *chat.User {
	hash, err := hashPassword(testPassword)
	require.NoError(t, err)

	u, err := ta.cs.Register(context.Background(), server.RegisterRequest{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
	})
	require.NoError(t, err, "failed to register %s", username)
	return u
}

func (ta *testApp) makeAdmin(t *testing.T, userId string) {
	_, err := ta.cs.GrantRole(context.Background(), userId, chat.UserRoleAdmin, nil)
	require.NoError(t, err)
}

func (ta *testApp) befriend(t *testing.T, a, b string) {
	sent, err := ta.cs.SendFriendRequest(context.Background(), a, b)
	require.NoError(t, err)
	require.True(t, sent)
	require.NoError(t, ta.cs.RespondFriendRequest(context.Background(), b, a, true))
}

// do sends a request through the full handler chain. A non-empty userId
// attaches a session cookie for that user.
func (ta *testApp) do(t *testing.T, method, path string, body any, userId string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err, "failed to marshal request body")
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if userId != "" {
		token, err := ta.app.createJwtForSession(userId, defaultJwtExpiration)
		require.NoError(t, err)
		req.AddCookie(createJwtCookie(token, defaultJwtExpiration))
	}

	rr := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	var v T
	err := json.NewDecoder(strings.NewReader(rr.Body.String())).Decode(&v)
	require.NoErrorf(t, err, "failed to decode response: %s", rr.Body.String())
	return v
}

func mustJson(t *testing.T, v any) string {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
