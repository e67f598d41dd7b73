package mml

// Entity is anything the Meta-Log can durably record: operations and
// range-server connection records both implement it.
type Entity interface {
	// EntityID returns the persistent id used as the header's id field
	// and for REMOVE matching.
	EntityID() int64

	// EntityType returns the wire tag identifying which constructor in a
	// Definition decodes this entity's payload.
	EntityType() int32

	// EncodedLength returns the exact payload length EncodePayload writes,
	// so the writer can size the header's length field before encoding.
	EncodedLength() int

	// EncodePayload serializes the entity body (not the header) into buf,
	// which is exactly EncodedLength() bytes long.
	EncodePayload(buf []byte)

	// Explicit reports whether this entity must be removed by an explicit
	// REMOVE entry (true) or may be dropped by retention alone (false),
	// mirroring Operation.remove_explicitly.
	Explicit() bool
}

// Decoder constructs an Entity from a decoded header and raw payload.
type Decoder func(header EntryHeader, payload []byte) (Entity, error)

// Definition maps entity type tags to decoders and names the log for
// fragment-header validation ("mml" for the master log, "rsml" for a
// range-server log — only "mml" is relevant here).
type Definition struct {
	Name     string
	Version  uint16
	Decoders map[int32]Decoder
}

// NewDefinition creates an empty definition ready to have decoders
// registered via Register.
func NewDefinition(name string, version uint16) *Definition {
	return &Definition{Name: name, Version: version, Decoders: make(map[int32]Decoder)}
}

// Register associates an entity type tag with its decoder.
func (d *Definition) Register(entityType int32, dec Decoder) {
	d.Decoders[entityType] = dec
}

// Decode constructs the entity named by header.Type, or ErrCorrupt if the
// type is not registered in this definition.
func (d *Definition) Decode(header EntryHeader, payload []byte) (Entity, error) {
	dec, ok := d.Decoders[header.Type]
	if !ok {
		return nil, ErrCorrupt
	}
	return dec(header, payload)
}
