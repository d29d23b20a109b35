package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerSessions(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.Connect("u1"), "expected first session to bring the user online")
	assert.False(t, tr.Connect("u1"), "expected second session to be no transition")
	assert.Equal(t, 2, tr.Sessions("u1"))

	assert.False(t, tr.Disconnect("u1"), "expected user to stay online with one session left")
	assert.True(t, tr.IsOnline("u1"))

	assert.True(t, tr.Disconnect("u1"), "expected last session to take the user offline")
	assert.False(t, tr.IsOnline("u1"))
	assert.False(t, tr.Disconnect("u1"), "expected disconnect of an offline user to be ignored")
	assert.Zero(t, tr.Sessions("u1"))
}

func TestTrackerOnline(t *testing.T) {
	tr := NewTracker()
	tr.Connect("b")
	tr.Connect("a")
	tr.Connect("c")
	tr.Disconnect("c")

	assert.Equal(t, []string{"a", "b"}, tr.Online())
	assert.Equal(t, 2, tr.Count())
}

func TestTrackerConcurrent(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Connect("u1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Sessions("u1"))

	for i := 0; i < 49; i++ {
		tr.Disconnect("u1")
	}
	assert.True(t, tr.IsOnline("u1"))
}
