package pipeline

import "sync"

// conversationLocks serializes pipeline runs per conversation. Overlapping
// runs for one conversation would race on the same storage prefix (double
// processing, double cleanup), so a second trigger is rejected while one
// run is in flight.
type conversationLocks struct {
	mu    sync.Mutex
	inUse map[string]struct{}
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{inUse: make(map[string]struct{})}
}

// tryAcquire claims the lock for a conversation without blocking.
func (l *conversationLocks) tryAcquire(conversationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.inUse[conversationID]; held {
		return false
	}
	l.inUse[conversationID] = struct{}{}
	return true
}

func (l *conversationLocks) release(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inUse, conversationID)
}
