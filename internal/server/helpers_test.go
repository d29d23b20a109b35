package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/pubsub"
	"github.com/npezzotti/roomchat/internal/stats"
	"github.com/npezzotti/roomchat/internal/testutil"
	"github.com/npezzotti/roomchat/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLenientStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	su.On("Add", mock.Anything, mock.Anything).Return().Maybe()
	return su
}

// newTestChatServer creates a ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, db database.RoomChatRepository, su *stats.MockStatsUpdater, opts ...Option) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Return().Times(4)

	cs, err := NewChatServer(testutil.TestLogger(t), db, su, opts...)
	require.NoError(t, err, "failed to create test ChatServer")
	return cs
}

func newTestRepo(t *testing.T) *database.BoltRoomChatRepository {
	repo, err := database.NewBoltRoomChatRepository(filepath.Join(t.TempDir(), "roomchat.db"))
	require.NoError(t, err, "expected bolt repository to open")
	t.Cleanup(func() { repo.Close() })
	return repo
}

type testEnv struct {
	cs   *ChatServer
	repo *database.BoltRoomChatRepository
	su   *stats.MockStatsUpdater
	now  time.Time
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	env := &testEnv{
		repo: newTestRepo(t),
		su:   newLenientStats(),
		now:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	opts = append([]Option{WithClock(func() time.Time { return env.now })}, opts...)
	cs, err := NewChatServer(testutil.TestLogger(t), env.repo, env.su, opts...)
	require.NoError(t, err)
	env.cs = cs
	return env
}

func (env *testEnv) createUser(t *testing.T, id string) *chat.User {
	u := chat.NewUser(id, "user-"+id, id+"@example.com", "hash")
	rec, err := u.Record()
	require.NoError(t, err)
	_, err = env.repo.CreateUser(rec)
	require.NoError(t, err)
	return u
}

func (env *testEnv) saveUser(t *testing.T, u *chat.User) {
	rec, err := u.Record()
	require.NoError(t, err)
	_, err = env.repo.SaveUser(rec)
	require.NoError(t, err)
}

func (env *testEnv) reloadRoom(t *testing.T, id string) *chat.Room {
	rec, err := env.repo.GetRoom(id)
	require.NoError(t, err)
	room, err := chat.FromRecord(rec, chat.RejectMalformed)
	require.NoError(t, err)
	return room
}

// connect registers a session for userId and optionally subscribes it to
// rooms.
func (env *testEnv) connect(t *testing.T, userId string, rooms ...string) *Client {
	c := newTestClient(t, env.cs, userId)
	env.cs.addClient(c)
	for _, r := range rooms {
		env.cs.subscribe(c, r)
	}
	return c
}

func newTestClient(t *testing.T, cs *ChatServer, userId string) *Client {
	return &Client{
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       types.User{Id: userId, Username: "user-" + userId},
		send:       make(chan *ServerMessage, 64),
		rooms:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func drainRelay(cs *ChatServer) []pubsub.Envelope {
	var envs []pubsub.Envelope
	for {
		select {
		case env := <-cs.relayChan:
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case m := <-c.send:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func chatMessages(msgs []*ServerMessage) []*types.Message {
	var out []*types.Message
	for _, m := range msgs {
		if m.Message != nil {
			out = append(out, m.Message)
		}
	}
	return out
}

func notifications(msgs []*ServerMessage) []*Notification {
	var out []*Notification
	for _, m := range msgs {
		if m.Notification != nil {
			out = append(out, m.Notification)
		}
	}
	return out
}

func responses(msgs []*ServerMessage) []*ServerMessage {
	var out []*ServerMessage
	for _, m := range msgs {
		if m.Response != nil {
			out = append(out, m)
		}
	}
	return out
}

// groupWithMember creates a group owned by u1 that u2 has joined.
func (env *testEnv) groupWithMember(t *testing.T) *chat.Room {
	env.createUser(t, "u1")
	env.createUser(t, "u2")

	room, err := env.cs.createGroup("u1", "friends", "")
	require.NoError(t, err)
	res, err := env.cs.joinByInviteCode(room.Settings.InviteCode, "u2")
	require.NoError(t, err)
	require.True(t, res.Joined)
	return res.Room
}

// befriend makes a and b friends in the store.
func (env *testEnv) befriend(t *testing.T, a, b *chat.User) {
	require.True(t, b.ReceiveFriendRequest(a.Id))
	require.NoError(t, b.AcceptFriend(a))
	env.saveUser(t, a)
	env.saveUser(t, b)
}
