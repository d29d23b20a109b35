package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/server"
	"github.com/npezzotti/roomchat/internal/testutil"
	"github.com/npezzotti/roomchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name         string
		mockErr      error
		expectedCode int
	}{
		{
			name:         "successful health check",
			mockErr:      nil,
			expectedCode: http.StatusOK,
		},
		{
			name:         "failed health check",
			mockErr:      errors.New("db error"),
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRoomChatRepository{}
			defer mockRepo.AssertExpectations(t)

			mockRepo.On("Ping").Return(tc.mockErr).Once()
			app := NewRoomChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, testConfig())
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.mockErr == nil {
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	ta := newTestApp(t)

	tcases := []struct {
		name         string
		body         any
		expectedCode int
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: "newuser",
				Email:    "NewUser@Example.com",
				Password: testPassword,
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "failed with invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing username",
			body: RegisterRequest{
				Email:    "x@example.com",
				Password: testPassword,
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing email",
			body: RegisterRequest{
				Username: "x",
				Password: testPassword,
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing password",
			body: RegisterRequest{
				Username: "x",
				Email:    "x@example.com",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with taken username",
			body: RegisterRequest{
				Username: "newuser",
				Email:    "other@example.com",
				Password: testPassword,
			},
			expectedCode: http.StatusConflict,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ta.do(t, http.MethodPost, "/api/auth/register", tc.body, "")
			assert.Equal(t, tc.expectedCode, rr.Code, rr.Body.String())

			if tc.expectedCode == http.StatusCreated {
				u := decodeBody[types.User](t, rr)
				assert.NotEmpty(t, u.Id, "expected id to be assigned")
				assert.Equal(t, "newuser", u.Username)
				assert.Equal(t, "newuser@example.com", u.EmailAddress, "expected email to be normalized")
				assert.Equal(t, "user", u.Role)
			} else {
				e := decodeBody[ApiError](t, rr)
				assert.Equal(t, tc.expectedCode, e.StatusCode)
			}
		})
	}
}

func Test_login(t *testing.T) {
	hash, err := hashPassword(testPassword)
	require.NoError(t, err)

	mockUser := database.UserRecord{
		Id:           "u1",
		Username:     "testuser",
		Email:        "testuser@example.com",
		PasswordHash: hash,
		Role:         "user",
		Data:         `{"friends":[]}`,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	bannedUser := mockUser
	bannedUser.Banned = true

	testCases := []struct {
		name        string
		body        any
		mockUser    *database.UserRecord
		mockErr     error
		success     bool
		expectError *ApiError
	}{
		{
			name: "successful login",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: testPassword,
			},
			mockUser: &mockUser,
			success:  true,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			expectError: NewBadRequestError(),
		},
		{
			name: "fails with missing email",
			body: LoginRequest{
				Password: testPassword,
			},
			expectError: NewBadRequestError(),
		},
		{
			name: "fails with missing password",
			body: LoginRequest{
				Email: "testuser@example.com",
			},
			expectError: NewBadRequestError(),
		},
		{
			name: "fails with unknown email",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: testPassword,
			},
			mockErr:     database.ErrNotFound,
			expectError: NewUnauthorizedError(),
		},
		{
			name: "fails with db error",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: testPassword,
			},
			mockErr:     errors.New("db error"),
			expectError: NewInternalServerError(nil),
		},
		{
			name: "fails with incorrect password",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: "wrong-password",
			},
			mockUser:    &mockUser,
			expectError: NewUnauthorizedError(),
		},
		{
			name: "fails for banned user",
			body: LoginRequest{
				Email:    "testuser@example.com",
				Password: testPassword,
			},
			mockUser:    &bannedUser,
			expectError: &ApiError{StatusCode: http.StatusForbidden, Message: server.ErrBanned.Error()},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRoomChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != nil {
				mockRepo.On("GetUserByEmail", "testuser@example.com").Return(*tc.mockUser, nil).Once()
			} else if tc.mockErr != nil {
				mockRepo.On("GetUserByEmail", "testuser@example.com").Return(database.UserRecord{}, tc.mockErr).Once()
			}

			app := NewRoomChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, testConfig())

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(v))
			default:
				body := strings.NewReader(mustJson(t, tc.body))
				req = httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
			}

			rr := httptest.NewRecorder()
			app.login(rr, req)

			if tc.success {
				token := findCookie(rr, tokenCookieKey)
				require.NotNil(t, token, "expected token cookie to be set")
				assert.NotEmpty(t, token.Value, "expected token value to be set")
				assert.WithinDuration(t, time.Now().Add(defaultJwtExpiration), token.Expires, 2*time.Second, "expected token expiration to be set correctly")

				userId, err := app.extractUserIdFromToken(token.Value)
				assert.NoError(t, err)
				assert.Equal(t, "u1", userId)

				u := decodeBody[types.User](t, rr)
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, types.User{
					Id:           "u1",
					Username:     "testuser",
					EmailAddress: "testuser@example.com",
					DisplayName:  "testuser",
					Pic:          "https://ui-avatars.com/api/?background=random&name=testuser",
					Role:         "user",
					CreatedAt:    mockUser.CreatedAt,
				}, u, "expected user response to match")
			} else {
				e := decodeBody[ApiError](t, rr)
				assert.Equal(t, e.StatusCode, rr.Code, "expected status code to match")
				assert.Equal(t, *tc.expectError, e, "expected ApiError response")
				assert.Nil(t, findCookie(rr, tokenCookieKey), "expected no session cookie")
			}
		})
	}
}

func Test_logout(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.register(t, "alice")

	rr := ta.do(t, http.MethodGet, "/api/auth/logout", nil, alice.Id)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	// Check if the token cookie is set to expire
	token := findCookie(rr, tokenCookieKey)
	require.NotNil(t, token, "expected token cookie to be set")
	assert.True(t, token.Expires.Before(time.Now()), "expected token to be expired")
	assert.Equal(t, "", token.Value, "expected token value to be empty")

	rr = ta.do(t, http.MethodGet, "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected logout to require a session")
}

func Test_session(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.register(t, "alice")

	rr := ta.do(t, http.MethodGet, "/api/auth/session", nil, alice.Id)
	require.Equal(t, http.StatusOK, rr.Code)

	u := decodeBody[types.User](t, rr)
	assert.Equal(t, alice.Id, u.Id)
	assert.Equal(t, "alice@example.com", u.EmailAddress)

	rr = ta.do(t, http.MethodGet, "/api/auth/session", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAccountHandler(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.register(t, "alice")
	bob := ta.register(t, "bob")
	ta.befriend(t, alice.Id, bob.Id)

	t.Run("get", func(t *testing.T) {
		rr := ta.do(t, http.MethodGet, "/api/account", nil, alice.Id)
		require.Equal(t, http.StatusOK, rr.Code)

		acct := decodeBody[types.Account](t, rr)
		assert.Equal(t, "alice", acct.Username)
		require.Len(t, acct.Friends, 1)
		assert.Equal(t, bob.Id, acct.Friends[0].Id)
		assert.Empty(t, acct.FriendRequests)
		assert.Empty(t, acct.Blocked)
	})

	t.Run("update profile", func(t *testing.T) {
		rr := ta.do(t, http.MethodPut, "/api/account", map[string]any{
			"display_name": "Alice A.",
			"color":        "#ff0000",
		}, alice.Id)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		u := decodeBody[types.User](t, rr)
		assert.Equal(t, "alice", u.Username, "expected username to be unchanged")
		assert.Equal(t, "Alice A.", u.DisplayName)
		assert.Equal(t, "#ff0000", u.Color)
	})

	t.Run("update password", func(t *testing.T) {
		rr := ta.do(t, http.MethodPut, "/api/account", map[string]any{"password": "n3w-password"}, alice.Id)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = ta.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Email: "alice@example.com", Password: "n3w-password"}, "")
		assert.Equal(t, http.StatusOK, rr.Code, "expected new password to work")

		rr = ta.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Email: "alice@example.com", Password: testPassword}, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected old password to be rejected")
	})

	t.Run("rejects empty password", func(t *testing.T) {
		rr := ta.do(t, http.MethodPut, "/api/account", map[string]any{"password": ""}, alice.Id)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects taken username", func(t *testing.T) {
		rr := ta.do(t, http.MethodPut, "/api/account", map[string]any{"username": "bob"}, alice.Id)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		rr := ta.do(t, http.MethodPut, "/api/account", "invalid json", alice.Id)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_serveWs(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.register(t, "alice")

	rr := ta.do(t, http.MethodPost, "/api/rooms", CreateRoomRequest{Name: "general"}, alice.Id)
	require.Equal(t, http.StatusCreated, rr.Code)
	room := decodeBody[types.Room](t, rr)

	srv := httptest.NewServer(ta.app.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("requires a session", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects foreign origin", func(t *testing.T) {
		header := sessionHeader(t, ta, alice.Id)
		header.Set("Origin", "http://evil.example.com")
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("join and receive messages", func(t *testing.T) {
		header := sessionHeader(t, ta, alice.Id)
		header.Set("Origin", "http://localhost:3000")
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		require.NoError(t, conn.WriteJSON(map[string]any{
			"id":   1,
			"join": map[string]string{"room_id": room.Id},
		}))

		joined := readUntil(t, conn, func(m *server.ServerMessage) bool {
			return m.Id == 1 && m.Response != nil
		})
		assert.Equal(t, http.StatusOK, joined.Response.ResponseCode)

		rr := ta.do(t, http.MethodPost, "/api/rooms/"+room.Id+"/messages", SendMessageRequest{Content: "hello"}, alice.Id)
		require.Equal(t, http.StatusCreated, rr.Code)

		got := readUntil(t, conn, func(m *server.ServerMessage) bool {
			return m.Message != nil
		})
		assert.Equal(t, room.Id, got.Message.RoomId)
		assert.Equal(t, "hello", got.Message.Content)
		assert.Equal(t, alice.Id, got.Message.UserId)
	})
}

func sessionHeader(t *testing.T, ta *testApp, userId string) http.Header {
	token, err := ta.app.createJwtForSession(userId, defaultJwtExpiration)
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Cookie", createJwtCookie(token, defaultJwtExpiration).String())
	return header
}

// readUntil reads server messages until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(*server.ServerMessage) bool) *server.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg server.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg), "expected a message before the deadline")
		if match(&msg) {
			return &msg
		}
	}
}
