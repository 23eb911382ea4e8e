package threed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/gopos/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateInit, StateRedirectedToACS))
	assert.True(t, CanTransition(StateCallbackReceived, StateSecurityRejected))
	assert.True(t, CanTransition(StateCallbackReceived, StateCompleted), "unsigned decline")
	assert.False(t, CanTransition(StateInit, StateCompleted))
	assert.False(t, CanTransition(StateRedirectedToACS, StateHashVerified), "the callback must be received first")

	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateSecurityRejected.Terminal())
	assert.False(t, StateHashVerified.Terminal())
}

func TestSecurityRejectedNeverCompletes(t *testing.T) {
	seen := map[State]bool{StateSecurityRejected: true}
	queue := []State{StateSecurityRejected}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	assert.False(t, seen[StateCompleted])
	assert.False(t, seen[StateFinalAuthSent])
}

func TestSession_Transition(t *testing.T) {
	s := &Session{State: StateInit, History: []State{StateInit}}
	now := time.Now()

	require.NoError(t, s.transition(StateRedirectedToACS, now))
	assert.Equal(t, now, s.UpdatedAt)

	err := s.transition(StateCompleted, now)
	assert.True(t, errors.Is(err, provider.ErrPrecondition))
	assert.Equal(t, StateRedirectedToACS, s.State)
	assert.True(t, s.Visited(StateInit))
	assert.False(t, s.Visited(StateCompleted))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }

	s := &Session{ID: "s1", State: StateRedirectedToACS, History: []State{StateInit, StateRedirectedToACS}}
	require.NoError(t, store.Save(ctx, s))

	s.History = append(s.History, StateCallbackReceived)
	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, loaded.History, 2, "the store keeps its own copy")

	loaded.History[0] = StateCompleted
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateInit, again.History[0])

	now = now.Add(2 * time.Minute)
	_, err = store.Load(ctx, "s1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	require.NoError(t, store.Save(ctx, s))
	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestMemoryStore_Claim(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	err := store.Claim(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	s := &Session{ID: "s1", State: StateRedirectedToACS, History: []State{StateInit, StateRedirectedToACS}}
	require.NoError(t, store.Save(ctx, s))
	require.NoError(t, store.Claim(ctx, "s1"))

	err = store.Claim(ctx, "s1")
	assert.True(t, errors.Is(err, provider.ErrPrecondition))

	s.State = StateCompleted
	require.NoError(t, store.Save(ctx, s))
	err = store.Claim(ctx, "s1")
	assert.True(t, errors.Is(err, provider.ErrPrecondition), "saving the outcome keeps the claim")

	require.NoError(t, store.Delete(ctx, "s1"))
	require.NoError(t, store.Save(ctx, &Session{ID: "s1", State: StateRedirectedToACS}))
	assert.NoError(t, store.Claim(ctx, "s1"), "a deleted session loses its claim")
}

func TestMemoryStore_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	require.NoError(t, store.Save(ctx, &Session{ID: "s1", State: StateRedirectedToACS}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Claim(ctx, "s1") == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

func TestSession_ReturnURL(t *testing.T) {
	s := &Session{
		State:            StateRedirectedToACS,
		ReturnSuccessURL: "https://shop.test/ok",
		ReturnFailURL:    "https://shop.test/fail",
	}
	assert.Empty(t, s.ReturnURL(), "flow still running")

	s.State = StateCompleted
	s.Result = &provider.Result{Status: provider.StatusApproved}
	assert.Equal(t, "https://shop.test/ok", s.ReturnURL())

	s.Result = &provider.Result{Status: provider.StatusDeclined}
	assert.Equal(t, "https://shop.test/fail", s.ReturnURL())

	s.State = StateSecurityRejected
	s.Result = nil
	assert.Equal(t, "https://shop.test/fail", s.ReturnURL())
}
