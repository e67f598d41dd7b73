package registry

import (
	"github.com/hypertable/master/internal/mml"
)

// connectionID maps a location string to a stable int64 id for Meta-Log
// persistence. The master allocates locations as rs<N>; the numeric
// suffix is reused directly as the entity id so restarts are deterministic.
func connectionID(location string) int64 {
	var n int64
	for i := 2; i < len(location); i++ { // skip "rs"
		c := location[i]
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

// entity adapts a Connection to mml.Entity for durable persistence of
// registry state (spec §4.2: "the registry survives master restarts via
// MML entries of type RANGE_SERVER_CONNECTION").
type entity struct {
	*Connection
}

func (e *entity) EntityID() int64   { return connectionID(e.Location) }
func (e *entity) EntityType() int32 { return EntityType }
func (e *entity) Explicit() bool    { return true }

func (e *entity) EncodedLength() int {
	return mml.StringLen(e.Location) + mml.StringLen(e.Hostname) +
		mml.StringLen(e.LocalAddr) + mml.StringLen(e.PublicAddr) + 4
}

func (e *entity) EncodePayload(buf []byte) {
	n := mml.EncodeString(buf, e.Location)
	n += mml.EncodeString(buf[n:], e.Hostname)
	n += mml.EncodeString(buf[n:], e.LocalAddr)
	n += mml.EncodeString(buf[n:], e.PublicAddr)
	state := int32(e.State)
	buf[n] = byte(state)
	buf[n+1] = byte(state >> 8)
	buf[n+2] = byte(state >> 16)
	buf[n+3] = byte(state >> 24)
}

// AsEntity returns c as an mml.Entity suitable for Writer.RecordState.
func (r *Registry) AsEntity(c *Connection) mml.Entity {
	return &entity{Connection: c}
}

// FromEntity recovers the *Connection behind a replayed mml.Entity
// produced by Decode, used during bootstrap MML replay (spec §4.8 step 5).
func FromEntity(e mml.Entity) (*Connection, bool) {
	en, ok := e.(*entity)
	if !ok {
		return nil, false
	}
	return en.Connection, true
}

// Decode reconstructs a Connection from a replayed Meta-Log entry.
func Decode(header mml.EntryHeader, payload []byte) (mml.Entity, error) {
	loc, n, err := mml.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	host, n2, err := mml.DecodeString(payload[n:])
	if err != nil {
		return nil, err
	}
	n += n2
	local, n2, err := mml.DecodeString(payload[n:])
	if err != nil {
		return nil, err
	}
	n += n2
	public, n2, err := mml.DecodeString(payload[n:])
	if err != nil {
		return nil, err
	}
	n += n2

	state := State(int32(payload[n]) | int32(payload[n+1])<<8 | int32(payload[n+2])<<16 | int32(payload[n+3])<<24)

	return &entity{Connection: &Connection{
		Location:   loc,
		Hostname:   host,
		LocalAddr:  local,
		PublicAddr: public,
		State:      state,
		Connected:  state != Removed,
	}}, nil
}

// Install reconstructs the registry record for a replayed connection
// entity, used during bootstrap MML replay (spec §4.8 step 5).
func (r *Registry) Install(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byLocation[c.Location]; !exists {
		r.order = append(r.order, c.Location)
	}
	cp := *c
	r.byLocation[c.Location] = &cp
	if c.Hostname != "" {
		r.byHostname[c.Hostname] = &cp
	}
	if c.PublicAddr != "" {
		r.byPublicAddr[c.PublicAddr] = &cp
	}
	if c.LocalAddr != "" {
		r.byLocalAddr[c.LocalAddr] = &cp
	}
}
