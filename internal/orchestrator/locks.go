package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// convLocks hands out one mutex per conversation id. The policy read,
// platform send, and commit for a conversation run under its lock, which
// restores at-most-one-in-flight-send per conversation: two concurrent
// reply requests can no longer both observe "no active ticket" and each
// open one.
type convLocks struct {
	locks sync.Map // uuid.UUID → *sync.Mutex
}

func (c *convLocks) lock(id uuid.UUID) func() {
	mu, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
