package server

import (
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFriendRequests(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1")
	env.createUser(t, "u2")
	env.createUser(t, "u3")

	_, err := env.cs.sendFriendRequest("u1", "u1")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	target := env.connect(t, "u2")
	drain(target)

	sent, err := env.cs.sendFriendRequest("u1", "u2")
	require.NoError(t, err)
	assert.True(t, sent)

	n := notifications(drain(target))
	require.Len(t, n, 1)
	require.NotNil(t, n[0].FriendRequest)
	assert.Equal(t, "u1", n[0].FriendRequest.From.Id)
	assert.False(t, n[0].FriendRequest.Accepted)

	sent, err = env.cs.sendFriendRequest("u1", "u2")
	require.NoError(t, err)
	assert.False(t, sent, "expected a repeated request to be a no-op")

	requester := env.connect(t, "u1")
	drain(requester)

	require.NoError(t, env.cs.respondFriendRequest("u2", "u1", true))
	n = notifications(drain(requester))
	require.Len(t, n, 1)
	require.NotNil(t, n[0].FriendRequest)
	assert.True(t, n[0].FriendRequest.Accepted)

	u1, err := env.cs.loadUser("u1")
	require.NoError(t, err)
	u2, err := env.cs.loadUser("u2")
	require.NoError(t, err)
	assert.True(t, u1.IsFriend("u2"))
	assert.True(t, u2.IsFriend("u1"))
	assert.Empty(t, u2.FriendRequests)

	err = env.cs.respondFriendRequest("u2", "u3", true)
	assert.ErrorIs(t, err, chat.ErrNoFriendRequest)

	_, err = env.cs.sendFriendRequest("u3", "u2")
	require.NoError(t, err)
	require.NoError(t, env.cs.respondFriendRequest("u2", "u3", false))
	u2, err = env.cs.loadUser("u2")
	require.NoError(t, err)
	assert.Empty(t, u2.FriendRequests)
	assert.False(t, u2.IsFriend("u3"))

	err = env.cs.respondFriendRequest("u2", "u3", false)
	assert.ErrorIs(t, err, chat.ErrNoFriendRequest)
}

func TestSetBlocked(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "u1")
	u2 := env.createUser(t, "u2")
	env.befriend(t, u1, u2)

	_, err := env.cs.setBlocked("u1", "u1", true)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.cs.setBlocked("u1", "ghost", true)
	assert.ErrorIs(t, err, ErrUserNotFound)

	changed, err := env.cs.setBlocked("u1", "u2", true)
	require.NoError(t, err)
	assert.True(t, changed)

	me, err := env.cs.loadUser("u1")
	require.NoError(t, err)
	other, err := env.cs.loadUser("u2")
	require.NoError(t, err)
	assert.True(t, me.HasBlocked("u2"))
	assert.False(t, me.IsFriend("u2"), "expected blocking to end the friendship")
	assert.False(t, other.IsFriend("u1"), "expected blocking to end the friendship on both sides")

	_, err = env.cs.sendFriendRequest("u2", "u1")
	assert.ErrorIs(t, err, ErrForbidden)

	changed, err = env.cs.setBlocked("u1", "u2", true)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = env.cs.setBlocked("u1", "u2", false)
	require.NoError(t, err)
	assert.True(t, changed)

	me, err = env.cs.loadUser("u1")
	require.NoError(t, err)
	assert.False(t, me.HasBlocked("u2"))
}

func TestSetBlocked_BlockerSavedFirst(t *testing.T) {
	db := &database.MockRoomChatRepository{}
	defer db.AssertExpectations(t)
	cs, err := NewChatServer(testutil.TestLogger(t), db, newLenientStats())
	require.NoError(t, err)

	u1 := chat.NewUser("u1", "alice", "a@example.com", "hash")
	u2 := chat.NewUser("u2", "bob", "b@example.com", "hash")
	u1.Friends = []string{"u2"}
	u2.Friends = []string{"u1"}
	rec1, err := u1.Record()
	require.NoError(t, err)
	rec2, err := u2.Record()
	require.NoError(t, err)

	db.On("GetUser", "u1").Return(rec1, nil)
	db.On("GetUser", "u2").Return(rec2, nil)
	db.On("SaveUser", mock.MatchedBy(func(r database.UserRecord) bool { return r.Id == "u1" })).
		Return(database.UserRecord{}, errors.New("disk full"))

	changed, err := cs.setBlocked("u1", "u2", true)
	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)
	assert.False(t, changed)

	db.AssertNotCalled(t, "SaveUser", mock.MatchedBy(func(r database.UserRecord) bool { return r.Id == "u2" }))
}

func TestSetBanned(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1")

	s1 := env.connect(t, "u1")
	s2 := env.connect(t, "u1")
	drain(s1)
	drain(s2)

	user, err := env.cs.setBanned("u1", true)
	require.NoError(t, err)
	assert.True(t, user.Banned)

	for _, c := range []*Client{s1, s2} {
		n := notifications(drain(c))
		require.Len(t, n, 1)
		require.NotNil(t, n[0].ForceLogout)
		assert.Equal(t, "banned", n[0].ForceLogout.Reason)

		select {
		case <-c.stop:
		default:
			t.Error("expected every session of a banned user to be stopped")
		}
	}

	stored, err := env.cs.loadUser("u1")
	require.NoError(t, err)
	assert.True(t, stored.Banned)

	user, err = env.cs.setBanned("u1", false)
	require.NoError(t, err)
	assert.False(t, user.Banned)

	_, err = env.cs.setBanned("ghost", true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGrantRole(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1")

	_, err := env.cs.grantRole("u1", "superuser", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	past := env.now.Add(-time.Hour)
	_, err = env.cs.grantRole("u1", chat.UserRoleAdmin, &past)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	expires := env.now.Add(time.Hour)
	user, err := env.cs.grantRole("u1", chat.UserRoleAdmin, &expires)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin(env.now))

	acct, err := env.cs.account("u1")
	require.NoError(t, err)
	assert.Equal(t, chat.UserRoleAdmin, acct.Role)

	env.now = env.now.Add(2 * time.Hour)
	acct, err = env.cs.account("u1")
	require.NoError(t, err)
	assert.Equal(t, chat.UserRoleUser, acct.Role, "expected an expired grant to read as the default role")

	_, err = env.cs.grantRole("u1", chat.UserRoleUser, &expires)
	require.Error(t, err, "expected an expiry in the past to be rejected")

	user, err = env.cs.grantRole("u1", chat.UserRoleUser, nil)
	require.NoError(t, err)
	assert.Nil(t, user.RoleExpiresAt)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	room := env.groupWithMember(t)

	c := env.connect(t, "u2")
	drain(c)

	require.NoError(t, env.cs.deleteUser("u2"))

	n := notifications(drain(c))
	require.Len(t, n, 1)
	require.NotNil(t, n[0].ForceLogout)
	assert.Equal(t, "deleted", n[0].ForceLogout.Reason)

	assert.ErrorIs(t, env.cs.deleteUser("u2"), ErrUserNotFound)

	// memberships are left in place and shown with a placeholder
	view, err := env.cs.roomView(room.Id, "u1", false)
	require.NoError(t, err)
	require.Len(t, view.Members, 2)

	var found bool
	for _, m := range view.Members {
		if m.Id == "u2" {
			found = true
			assert.Equal(t, "deleted user", m.Username)
		}
	}
	assert.True(t, found)
}
