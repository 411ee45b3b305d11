package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	s := m.Create()
	require.NotEmpty(t, s.ID)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.End(s.ID))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.End(s.ID), ErrNotFound)
}

func TestManagerDistinctSessions(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	a, b := m.Create(), m.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotSame(t, a, b)
}

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(Config{MaxSessions: 2}, nil)
	first := m.Create()
	second := m.Create()

	_, err := m.Get(first.ID)
	require.NoError(t, err)
	m.Create()

	_, err = m.Get(second.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(first.ID)
	assert.NoError(t, err)
}

func TestManagerIdleExpiry(t *testing.T) {
	m := NewManager(Config{MaxSessions: 10, IdleTTL: 20 * time.Millisecond}, nil)
	s := m.Create()

	assert.Eventually(t, func() bool {
		_, err := m.Get(s.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestManagerEndedSessionStaysEnded(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	for i := 0; i < 200; i++ {
		s := m.Create()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.Get(s.ID)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, m.End(s.ID))
		}()
		wg.Wait()

		_, err := m.Get(s.ID)
		require.ErrorIs(t, err, ErrNotFound, "session %d came back after End", i)
	}
	assert.Zero(t, m.Len())
}
