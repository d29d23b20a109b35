package database

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live database only when TEST_DATABASE_DSN is set.
func newTestPgRepo(t *testing.T) *PgRoomChatRepository {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	repo, err := NewPgRoomChatRepository(dsn)
	require.NoError(t, err, "expected postgres connection")
	require.NoError(t, repo.Migrate(), "expected migrations to apply")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPgRoomVersioning(t *testing.T) {
	repo := newTestPgRepo(t)

	rec, err := repo.CreateRoom(RoomRecord{
		Id:         uuid.NewString(),
		Type:       "group",
		Members:    "[]",
		Messages:   "[]",
		Settings:   "{}",
		InviteCode: uuid.NewString()[:8],
	})
	require.NoError(t, err)

	rec.Messages = `[{"id":"m1"}]`
	saved, err := repo.SaveRoom(rec)
	require.NoError(t, err)
	assert.Equal(t, rec.Version+1, saved.Version, "expected version bump")

	_, err = repo.SaveRoom(rec)
	assert.ErrorIs(t, err, ErrConflict, "expected stale write to conflict")

	_, err = repo.SaveRoom(RoomRecord{Id: uuid.NewString(), Version: 1})
	assert.ErrorIs(t, err, ErrNotFound, "expected missing room to return ErrNotFound")

	byCode, err := repo.GetRoomByInviteCode(rec.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, rec.Id, byCode.Id)
}

func TestPgUserUniqueness(t *testing.T) {
	repo := newTestPgRepo(t)

	name := "user-" + uuid.NewString()[:8]
	_, err := repo.CreateUser(UserRecord{Id: uuid.NewString(), Username: name, Email: name + "@example.com", Role: "user", Data: "{}"})
	require.NoError(t, err)

	_, err = repo.CreateUser(UserRecord{Id: uuid.NewString(), Username: name, Email: "x" + name + "@example.com", Role: "user", Data: "{}"})
	assert.ErrorIs(t, err, ErrDuplicate, "expected unique violation to map to ErrDuplicate")
}
