package dispatch

// Argument payloads gob-decoded from rpc.Request.Payload, one per
// rpc.Command. Kept separate from the request envelope itself so the
// wire-level Request/Reply shapes stay fixed across every command (spec
// §6).

// CreateTableArgs is the CREATE_TABLE request body.
type CreateTableArgs struct {
	Name   string
	Schema string
}

// DropTableArgs is the DROP_TABLE request body.
type DropTableArgs struct {
	Name     string
	IfExists bool
}

// AlterTableArgs is the ALTER_TABLE request body.
type AlterTableArgs struct {
	Name   string
	Schema string
}

// RenameTableArgs is the RENAME_TABLE request body.
type RenameTableArgs struct {
	OldName string
	NewName string
}

// NamespaceArgs is the shared CREATE_NAMESPACE/DROP_NAMESPACE request
// body.
type NamespaceArgs struct {
	Path  string
	Flags int32
}

// RegisterServerArgs is the REGISTER_SERVER request body.
type RegisterServerArgs struct {
	Hostname   string
	LocalAddr  string
	PublicAddr string
}

// MoveRangeArgs is the MOVE_RANGE request body.
type MoveRangeArgs struct {
	TableID           string
	StartRowExclusive string
	EndRowInclusive   string
	Qualifier         string
	Destination       string
}

// RelinquishAcknowledgeArgs is the RELINQUISH_ACKNOWLEDGE request body.
type RelinquishAcknowledgeArgs struct {
	TableID           string
	StartRowExclusive string
	EndRowInclusive   string
	Qualifier         string
}

// FetchResultArgs is the FETCH_RESULT request body.
type FetchResultArgs struct {
	OperationID int64
}
