package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectTransition(t *testing.T) {
	r := New()

	first := r.Connect("rs1", "host1", "10.0.0.1:1", "10.0.0.1:2")
	require.True(t, first)

	second := r.Connect("rs1", "host1", "10.0.0.1:1", "10.0.0.1:2")
	require.False(t, second, "already-connected record must not re-transition")
}

func TestDisconnectTransition(t *testing.T) {
	r := New()
	r.Connect("rs1", "host1", "a", "b")

	require.True(t, r.Disconnect("rs1"))
	require.False(t, r.Disconnect("rs1"), "already-disconnected record must not re-transition")
}

func TestRemovedRecordsHiddenFromLookupsAndSnapshot(t *testing.T) {
	r := New()
	r.Connect("rs1", "host1", "a", "b")
	r.Remove("rs1")

	_, ok := r.FindByLocation("rs1")
	require.False(t, ok)

	servers := r.GetServers()
	require.Empty(t, servers)
}

func TestNextAvailableServerRoundRobin(t *testing.T) {
	r := New()
	r.Connect("rs1", "h1", "a1", "b1")
	r.Connect("rs2", "h2", "a2", "b2")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		c, ok := r.NextAvailableServer()
		require.True(t, ok)
		seen[c.Location] = true
	}
	require.Len(t, seen, 2, "round robin should visit both connected servers")
}

func TestWaitForServerUnblocksOnConnect(t *testing.T) {
	r := New()
	done := make(chan struct{})

	go func() {
		r.WaitForServer()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitForServer returned before any connection")
	case <-time.After(20 * time.Millisecond):
	}

	r.Connect("rs1", "h1", "a", "b")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForServer did not unblock after connect")
	}
}
