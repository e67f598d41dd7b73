// Package registry implements the master's range-server connection
// registry (spec §4.2): membership of proxy name -> host/addresses,
// connect/disconnect transitions, and wait-for-connection signaling.
package registry

import (
	"sync"
	"time"

	"github.com/hypertable/master/internal/log"
	"github.com/hypertable/master/internal/mml"
)

var logger = log.WithComponent("registry")

// State is the lifecycle state of a range-server connection record.
type State int

const (
	Registered State = iota
	Participating
	Removed
)

// Connection is a single range server's membership record.
type Connection struct {
	Location    string
	Hostname    string
	LocalAddr   string
	PublicAddr  string
	State       State
	RemovalTime time.Time
	Connected   bool
}

// EntityType is this record's Meta-Log wire tag, distinct from the
// operation entity type range (spec §4.1/§6).
const EntityType int32 = 0x00010001

// Registry is the shared, mutex-protected connection table held inside
// the master's Context (C6 mutable state, spec §4.6).
type Registry struct {
	mu sync.Mutex

	byLocation   map[string]*Connection
	byHostname   map[string]*Connection
	byPublicAddr map[string]*Connection
	byLocalAddr  map[string]*Connection

	order []string // location insertion order, for round-robin

	rrCursor int

	cond *sync.Cond

	writer *mml.Writer
}

func New() *Registry {
	r := &Registry{
		byLocation:   make(map[string]*Connection),
		byHostname:   make(map[string]*Connection),
		byPublicAddr: make(map[string]*Connection),
		byLocalAddr:  make(map[string]*Connection),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// SetWriter wires the Meta-Log writer so Connect/Disconnect/Remove
// durably record connection state (spec §4.2: "the registry survives
// master restarts via MML entries of type RANGE_SERVER_CONNECTION").
// Called once during bootstrap before the registry is exposed to
// concurrent registrations.
func (r *Registry) SetWriter(w *mml.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writer = w
}

// persist records c's current state to the Meta-Log, off the registry
// mutex (mirroring the processor's "MML writes happen off-mutex"
// contract, spec §4.4/§5). A nil writer (tests, or before bootstrap
// wires one) is a no-op.
func (r *Registry) persist(c *Connection) {
	r.mu.Lock()
	w := r.writer
	r.mu.Unlock()
	if w == nil {
		return
	}
	cp := *c
	if err := w.RecordState(r.AsEntity(&cp)); err != nil {
		logger.Error().Err(err).Str("location", c.Location).
			Msg("mml record_state failed for range-server connection")
	}
}

// Connect installs or updates the record for location and returns true if
// this call transitions it from disconnected to connected.
func (r *Registry) Connect(location, hostname, localAddr, publicAddr string) bool {
	r.mu.Lock()

	c, exists := r.byLocation[location]
	if !exists {
		c = &Connection{Location: location, State: Registered}
		r.byLocation[location] = c
		r.order = append(r.order, location)
	}

	wasConnected := c.Connected
	c.Hostname = hostname
	c.LocalAddr = localAddr
	c.PublicAddr = publicAddr
	c.Connected = true
	c.State = Participating

	r.byHostname[hostname] = c
	r.byPublicAddr[publicAddr] = c
	r.byLocalAddr[localAddr] = c

	if !wasConnected {
		r.cond.Broadcast()
	}
	cp := *c
	r.mu.Unlock()

	r.persist(&cp)
	return !wasConnected
}

// Disconnect clears the connected flag for rsc and returns true if this
// call transitions it from connected to disconnected.
func (r *Registry) Disconnect(location string) bool {
	r.mu.Lock()

	c, ok := r.byLocation[location]
	if !ok || !c.Connected {
		r.mu.Unlock()
		return false
	}
	c.Connected = false
	cp := *c
	r.mu.Unlock()

	r.persist(&cp)
	return true
}

// Remove durably marks location as removed; removed records are retained
// for crash safety but skipped by GetServers and lookups.
func (r *Registry) Remove(location string) {
	r.mu.Lock()

	c, ok := r.byLocation[location]
	if !ok {
		r.mu.Unlock()
		return
	}
	c.State = Removed
	c.RemovalTime = time.Now()
	c.Connected = false
	cp := *c
	r.mu.Unlock()

	r.persist(&cp)
}

func (r *Registry) FindByLocation(location string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byLocation[location]
	if !ok || c.State == Removed {
		return nil, false
	}
	return c, true
}

func (r *Registry) FindByHostname(hostname string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byHostname[hostname]
	if !ok || c.State == Removed {
		return nil, false
	}
	return c, true
}

func (r *Registry) FindByPublicAddr(addr string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byPublicAddr[addr]
	if !ok || c.State == Removed {
		return nil, false
	}
	return c, true
}

func (r *Registry) FindByLocalAddr(addr string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byLocalAddr[addr]
	if !ok || c.State == Removed {
		return nil, false
	}
	return c, true
}

// NextAvailableServer round-robins over connected records, used to pick a
// server to host a newly created range.
func (r *Registry) NextAvailableServer() (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.order)
	if n == 0 {
		return nil, false
	}
	for i := 0; i < n; i++ {
		idx := (r.rrCursor + i) % n
		c := r.byLocation[r.order[idx]]
		if c != nil && c.Connected && c.State != Removed {
			r.rrCursor = (idx + 1) % n
			return c, true
		}
	}
	return nil, false
}

// WaitForServer blocks until at least one server is connected.
func (r *Registry) WaitForServer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.anyConnectedLocked() {
		r.cond.Wait()
	}
}

func (r *Registry) anyConnectedLocked() bool {
	for _, loc := range r.order {
		c := r.byLocation[loc]
		if c != nil && c.Connected {
			return true
		}
	}
	return false
}

// GetServers returns a snapshot of all non-removed records.
func (r *Registry) GetServers() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Connection, 0, len(r.order))
	for _, loc := range r.order {
		c := r.byLocation[loc]
		if c != nil && c.State != Removed {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// ConnectedCount returns the number of currently connected servers.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, loc := range r.order {
		c := r.byLocation[loc]
		if c != nil && c.Connected {
			n++
		}
	}
	return n
}
