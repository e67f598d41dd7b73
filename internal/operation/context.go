package operation

import (
	"time"

	"github.com/hypertable/master/internal/lockservice"
	"github.com/hypertable/master/internal/mml"
	"github.com/hypertable/master/internal/rangeserver"
	"github.com/hypertable/master/internal/registry"
)

// MetadataRow is one row of the master's view of the METADATA table: the
// location currently hosting a range. A real METADATA table lives on a
// range server (out of scope, spec §1); the master's in-memory index of
// it is in scope, since range placement decisions are exactly what the
// Operation Engine exists to drive.
type MetadataRow struct {
	TableID           string
	StartRowExclusive string
	EndRowInclusive   string
	Location          string
}

// Context is every concrete Operation's view of the shared master
// context (C6, spec §4.6): handles to the lock/namespace service, the
// range-server outbound client, the MML writer, the connection registry,
// and the operations needed to manage the table/namespace namespace and
// the master's METADATA view, plus the ability to submit sub-operations.
type Context interface {
	Lockservice() lockservice.Service
	Registry() *registry.Registry
	RangeServers() *rangeserver.Client
	MML() *mml.Writer

	// AllocateTableID creates a fresh path-like table id under name and
	// records the name->id mapping; it fails with operr.AlreadyExists if
	// name is already mapped.
	AllocateTableID(name string) (string, error)

	// ResolveTableID looks up the id for an existing name.
	ResolveTableID(name string) (string, bool)

	// RemoveTableMapping deletes the name->id mapping and the table's
	// lock-service entry.
	RemoveTableMapping(name string) error

	RenameTableMapping(oldName, newName string) error

	SetTableSchema(tableID, schema string) error
	GetTableSchema(tableID string) (string, bool)
	FinalizeTable(tableID string) error

	CreateNamespace(path string, flags NamespaceFlag) error
	DropNamespace(path string, flags NamespaceFlag) error

	WriteMetadataRow(row MetadataRow) error
	ScanMetadata(tableID string) []MetadataRow
	RemoveMetadataRows(tableID string)

	// AllocateLocation resolves or allocates the proxy name for a
	// registering range server: prefer a record matched by hostname,
	// else one matched by public address, else a fresh rs<N> drawn from
	// an atomic counter on the master file (spec §4.3 RegisterServer).
	AllocateLocation(hostname, localAddr, publicAddr string) (string, error)

	// ForgetCompletedOperation removes a completed operation of the given
	// hash code from the response manager, used by RelinquishAcknowledge
	// to retire its corresponding MoveRange (spec §4.3).
	ForgetCompletedOperation(hashCode int64)

	// Submit admits sub-operations into the engine's dependency graph,
	// returning their assigned ids (spec §4.4 "Sub-operations").
	Submit(ops ...Operation) []int64

	NextID() int64
	Now() time.Time
	TestMode() bool
}
