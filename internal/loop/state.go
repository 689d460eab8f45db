// File: internal/loop/state.go
package loop

import "sync"

// State holds the mutable loop bookkeeping for one active conversation
// turn. Explicit fields passed through the loop, not ambient globals: the
// controller owns exactly one State and only the loop's sequential path
// writes it.
type State struct {
	mu sync.Mutex

	isResolving      bool
	isAwaitingOutput bool

	// consecutiveWaitCount increments only on consecutive wait actions and
	// resets to 0 on any non-wait action or loop termination.
	consecutiveWaitCount int

	// lastResponseID is cleared whenever the chain cannot safely continue,
	// so a future message never references an unresolved tool call.
	lastResponseID string
}

// beginResolving attempts to claim the single resolving slot. A second
// concurrent pass must be rejected, not queued: re-entrancy causes duplicate
// tool submissions and double billing against the remote API.
func (s *State) beginResolving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isResolving {
		return false
	}
	s.isResolving = true
	return true
}

// endResolving releases the slot and resets the wait counter, which is
// defined to clear on loop termination.
func (s *State) endResolving() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isResolving = false
	s.isAwaitingOutput = false
	s.consecutiveWaitCount = 0
}

func (s *State) setAwaitingOutput(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isAwaitingOutput = v
}

// noteWait bumps the consecutive wait counter and returns the new value.
func (s *State) noteWait() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveWaitCount++
	return s.consecutiveWaitCount
}

func (s *State) resetWaits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveWaitCount = 0
}

// ConsecutiveWaits reports the current breaker counter.
func (s *State) ConsecutiveWaits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveWaitCount
}

// LastResponseID reports the id of the most recent response in the chain,
// or "" when no chain is in flight.
func (s *State) LastResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponseID
}

func (s *State) setLastResponseID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponseID = id
}

// clearLastResponseID severs the chain reference. Called on every terminal
// path that leaves a tool call unresolved.
func (s *State) clearLastResponseID() {
	s.setLastResponseID("")
}
