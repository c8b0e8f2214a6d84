// Package monitor implements the polling scheduler, the playlist evaluator
// state machine, error bookkeeping, and health scoring for monitored streams.
package monitor

import (
	"time"

	"github.com/jmylchreest/streampulse/internal/models"
)

// PollState is the non-durable per-stream poll state. It is created lazily
// on first observation and discarded on process restart.
type PollState struct {
	LastPollTime      time.Time
	LastMediaSequence int64
	ConsecutiveStales int
}

// StateCache maps stream ids to poll state. It is owned by the scheduler and
// mutated only within a sweep, so no locking is required.
type StateCache struct {
	states map[models.ULID]PollState
}

// NewStateCache creates an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{states: make(map[models.ULID]PollState)}
}

// Get returns the poll state for a stream, defaulting to an unseen state
// with LastMediaSequence -1.
func (c *StateCache) Get(id models.ULID) PollState {
	if state, ok := c.states[id]; ok {
		return state
	}
	return PollState{LastMediaSequence: -1}
}

// Set stores the poll state for a stream.
func (c *StateCache) Set(id models.ULID, state PollState) {
	c.states[id] = state
}

// Delete removes the poll state for a stream.
func (c *StateCache) Delete(id models.ULID) {
	delete(c.states, id)
}

// Len returns the number of tracked streams.
func (c *StateCache) Len() int {
	return len(c.states)
}
