package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterReplacesHandle(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first := newConn("u1", nil)
	second := newConn("u1", nil)

	// Given two handles registered for the same identity
	registry.Register("u1", first)
	registry.Register("u1", second)

	// Then only the newest one is kept
	got, ok := registry.Lookup("u1")
	req.True(ok)
	req.Same(second, got)
	req.Equal(1, registry.Len())
	req.Equal([]string{"u1"}, registry.SnapshotIDs())
}

func TestRegistry_UnregisterCurrentHandle(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newConn("u1", nil)
	registry.Register("u1", conn)

	// When the registered handle leaves
	removed := registry.Unregister("u1", conn)

	// Then the identity is offline
	req.True(removed)
	req.False(registry.Online("u1"))
	req.Empty(registry.SnapshotIDs())
}

func TestRegistry_StaleUnregisterIsIgnored(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	a := newConn("u1", nil)
	b := newConn("u1", nil)

	// Given A was replaced by B
	registry.Register("u1", a)
	registry.Register("u1", b)

	// When A disconnects late
	removed := registry.Unregister("u1", a)

	// Then B is still the registered handle
	req.False(removed)
	got, ok := registry.Lookup("u1")
	req.True(ok)
	req.Same(b, got)
}

func TestRegistry_UnregisterUnknown(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	req.False(registry.Unregister("ghost", newConn("ghost", nil)))
	_, ok := registry.Lookup("ghost")
	req.False(ok)
}

func TestRegistry_SnapshotIsSortedCopy(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	for _, id := range []string{"carol", "alice", "bob"} {
		registry.Register(id, newConn(id, nil))
	}

	ids := registry.SnapshotIDs()
	req.Equal([]string{"alice", "bob", "carol"}, ids)

	// mutating the snapshot must not touch the registry
	ids[0] = "mallory"
	req.False(registry.Online("mallory"))
	req.Equal(3, registry.Len())
}
