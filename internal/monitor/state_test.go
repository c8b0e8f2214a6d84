package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/streampulse/internal/models"
)

func TestStateCache_DefaultsToUnseen(t *testing.T) {
	cache := NewStateCache()

	state := cache.Get(models.NewULID())
	assert.Equal(t, int64(-1), state.LastMediaSequence)
	assert.True(t, state.LastPollTime.IsZero())
	assert.Equal(t, 0, state.ConsecutiveStales)
	assert.Equal(t, 0, cache.Len())
}

func TestStateCache_SetGetDelete(t *testing.T) {
	cache := NewStateCache()
	id := models.NewULID()
	now := time.Now()

	cache.Set(id, PollState{LastPollTime: now, LastMediaSequence: 42, ConsecutiveStales: 2})
	assert.Equal(t, 1, cache.Len())

	state := cache.Get(id)
	assert.Equal(t, int64(42), state.LastMediaSequence)
	assert.Equal(t, now, state.LastPollTime)
	assert.Equal(t, 2, state.ConsecutiveStales)

	cache.Delete(id)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(-1), cache.Get(id).LastMediaSequence)
}
