// Package presence tracks which users have at least one live session.
package presence

import (
	"sort"
	"sync"
)

// Tracker counts active sessions per user. A user is online while the
// count is above zero.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]int)}
}

// Connect records a new session and reports whether the user just came
// online.
func (t *Tracker) Connect(userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions[userId]++
	return t.sessions[userId] == 1
}

// Disconnect drops a session and reports whether it was the user's last.
// Unknown users are ignored.
func (t *Tracker) Disconnect(userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.sessions[userId]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.sessions, userId)
		return true
	}
	t.sessions[userId] = n - 1
	return false
}

func (t *Tracker) IsOnline(userId string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[userId] > 0
}

func (t *Tracker) Sessions(userId string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[userId]
}

// Online returns the ids of online users in sorted order.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
