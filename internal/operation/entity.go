package operation

import (
	"github.com/hypertable/master/internal/mml"
)

// entityAdapter makes any Operation satisfy mml.Entity, so the engine can
// persist it without every concrete operation type re-implementing the
// Meta-Log envelope (state, expiration, type-specific state bytes,
// result bytes).
type entityAdapter struct {
	Operation
}

// AsEntity wraps op for Writer.RecordState/RecordStates.
func AsEntity(op Operation) mml.Entity {
	return &entityAdapter{Operation: op}
}

func (e *entityAdapter) EntityID() int64   { return e.Operation.ID() }
func (e *entityAdapter) EntityType() int32 { return int32(e.Operation.EntityType()) }
func (e *entityAdapter) Explicit() bool    { return e.Operation.RemoveExplicitly() }

func (e *entityAdapter) EncodedLength() int {
	state := e.Operation.EncodeState()
	result := e.Operation.EncodeResult()
	return 4 + 8 + 4 + len(state) + 4 + len(result)
}

func (e *entityAdapter) EncodePayload(buf []byte) {
	state := e.Operation.EncodeState()
	result := e.Operation.EncodeResult()

	putInt32(buf[0:4], int32(e.Operation.State()))
	// expiration time is informational only on replay; store as unix nano.
	putInt64(buf[4:12], e.Operation.ExpirationTime().UnixNano())
	putInt32(buf[12:16], int32(len(state)))
	n := 16
	copy(buf[n:], state)
	n += len(state)
	putInt32(buf[n:n+4], int32(len(result)))
	n += 4
	copy(buf[n:], result)
}

// Constructor builds an empty Operation of a given kind, ready to have
// DecodeState applied during Meta-Log replay.
type Constructor func(id int64) Operation

var catalog = make(map[EntityType]Constructor)

// Register associates an EntityType with its replay constructor. Called
// from each concrete operation type's init().
func Register(t EntityType, ctor Constructor) {
	catalog[t] = ctor
}

// New constructs a fresh operation of type t with the given id, used by
// internal/engine to re-admit perpetual operations (spec §4.4 step 3:
// "if perpetual, re-admit a fresh instance").
func New(t EntityType, id int64) (Operation, bool) {
	ctor, ok := catalog[t]
	if !ok {
		return nil, false
	}
	return ctor(id), true
}

// FromEntity recovers the concrete Operation behind a replayed mml.Entity
// produced by Decode, used during bootstrap MML replay (spec §4.8 step 5).
func FromEntity(e mml.Entity) (Operation, bool) {
	ea, ok := e.(*entityAdapter)
	if !ok {
		return nil, false
	}
	return ea.Operation, true
}

// Decode reconstructs an Operation from a replayed Meta-Log entry.
func Decode(header mml.EntryHeader, payload []byte) (mml.Entity, error) {
	ctor, ok := catalog[EntityType(header.Type)]
	if !ok {
		return nil, mml.ErrCorrupt
	}
	op := ctor(header.ID)

	if len(payload) < 16 {
		return nil, mml.ErrCorrupt
	}
	state := State(getInt32(payload[0:4]))
	stateLen := int(getInt32(payload[12:16]))
	n := 16
	if len(payload) < n+stateLen+4 {
		return nil, mml.ErrCorrupt
	}
	stateBytes := payload[n : n+stateLen]
	n += stateLen
	resultLen := int(getInt32(payload[n : n+4]))
	n += 4
	if len(payload) < n+resultLen {
		return nil, mml.ErrCorrupt
	}
	resultBytes := payload[n : n+resultLen]

	if err := op.DecodeState(stateBytes); err != nil {
		return nil, err
	}
	if err := op.DecodeResult(resultBytes); err != nil {
		return nil, err
	}
	op.SetState(state)

	return &entityAdapter{Operation: op}, nil
}

// Definition builds the mml.Definition for the master log ("mml"),
// wiring Decode as the single decoder for every registered EntityType.
func Definition() *mml.Definition {
	def := mml.NewDefinition("mml", mml.FragmentVersion)
	for t := range catalog {
		def.Register(int32(t), Decode)
	}
	return def
}

func putInt64(buf []byte, v int64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getInt64(buf []byte) int64 {
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(buf[i]) << (8 * i)
	}
	return v
}
