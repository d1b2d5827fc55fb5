package dispatch

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// maxAllocAttempts bounds how many times the allocator retries generating a
// fresh random identifier before giving up. Collisions in a 64-bit random
// space are astronomically unlikely at any realistic session count; this
// limit is a safety net against a degenerate random source, not an expected
// path.
const maxAllocAttempts = 100

// ErrSessionIDExhausted indicates the allocator could not produce a unique
// nonzero session identifier after the maximum number of attempts.
var ErrSessionIDExhausted = errors.New("dispatch: session identifier allocator exhausted")

// SessionIDAllocator generates unique, nonzero, random identifiers for
// accepted connections. The identifier has no role in matching or protocol
// semantics; it exists purely to correlate log lines and metric labels
// across a connection's lifetime.
type SessionIDAllocator struct {
	mu        sync.Mutex
	allocated map[uint64]struct{}
}

// NewSessionIDAllocator returns an allocator with an empty allocation set.
func NewSessionIDAllocator() *SessionIDAllocator {
	return &SessionIDAllocator{allocated: make(map[uint64]struct{})}
}

// Allocate returns a unique, nonzero session identifier.
func (a *SessionIDAllocator) Allocate() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var buf [8]byte

	for range maxAllocAttempts {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("generate random session id: %w", err)
		}

		id := binary.BigEndian.Uint64(buf[:])
		if id == 0 {
			continue
		}
		if _, exists := a.allocated[id]; exists {
			continue
		}

		a.allocated[id] = struct{}{}

		return id, nil
	}

	return 0, fmt.Errorf("allocate session id after %d attempts: %w", maxAllocAttempts, ErrSessionIDExhausted)
}

// Release frees a previously allocated identifier. Releasing an identifier
// that was never allocated is a no-op.
func (a *SessionIDAllocator) Release(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, id)
}

// Count reports how many identifiers are currently allocated.
func (a *SessionIDAllocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocated)
}
