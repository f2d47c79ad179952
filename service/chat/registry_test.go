package chat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryTransitions(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register("alice", "c1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = r.Register("alice", "c2")
	require.NoError(t, err)
	assert.False(t, first)
	assert.ElementsMatch(t, []string{"c1", "c2"}, r.Connections("alice"))

	assert.False(t, r.Unregister("alice", "c1"))
	assert.True(t, r.IsOnline("alice"))
	assert.True(t, r.Unregister("alice", "c2"))
	assert.False(t, r.IsOnline("alice"))

	// unknown connection is not a transition
	assert.False(t, r.Unregister("alice", "c2"))
}

func TestRegistryConnectionHasOneOwner(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("alice", "c1")
	require.NoError(t, err)

	_, err = r.Register("bob", "c1")
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.False(t, r.IsOnline("bob"))

	// repeat by the owner is a no-op
	first, err := r.Register("alice", "c1")
	require.NoError(t, err)
	assert.False(t, first)

	// bob cannot remove alice's connection
	assert.False(t, r.Unregister("bob", "c1"))
	owner, ok := r.OwnerOf("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", owner)

	_, err = r.Register("", "c9")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRegistryConcurrentChurnStaysBalanced(t *testing.T) {
	r := NewRegistry()
	const users, conns, rounds = 8, 4, 50

	var firsts, lasts atomic.Int64
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for c := 0; c < conns; c++ {
			wg.Add(1)
			go func(u, c int) {
				defer wg.Done()
				user := fmt.Sprintf("u%d", u)
				conn := fmt.Sprintf("u%d-c%d", u, c)
				for i := 0; i < rounds; i++ {
					first, err := r.Register(user, conn)
					if err != nil {
						t.Error(err)
						return
					}
					if first {
						firsts.Add(1)
					}
					if r.Unregister(user, conn) {
						lasts.Add(1)
					}
				}
			}(u, c)
		}
	}
	wg.Wait()

	assert.Equal(t, firsts.Load(), lasts.Load())
	u, c := r.Count()
	assert.Zero(t, u)
	assert.Zero(t, c)
}

func TestRegistryRangeSnapshots(t *testing.T) {
	r := NewRegistry()
	for _, p := range [][2]string{{"alice", "a1"}, {"alice", "a2"}, {"bob", "b1"}} {
		_, err := r.Register(p[0], p[1])
		require.NoError(t, err)
	}
	got := map[string][]string{}
	r.Range(func(u string, ids []string) { got[u] = ids })
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"a1", "a2"}, got["alice"])
	assert.Equal(t, []string{"b1"}, got["bob"])
}
