package operation

import (
	"errors"

	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/rangeserver"
)

func init() {
	Register(TypeCreateTable, func(id int64) Operation { return NewCreateTable(id, "", "") })
}

// CreateTable runs INITIAL -> ASSIGN_ID -> WRITE_METADATA ->
// ASSIGN_LOCATION -> LOAD_RANGE -> FINALIZE -> COMPLETE (spec §4.3).
type CreateTable struct {
	Base

	TableName string
	Schema    string

	TableID  string
	Location string
}

func NewCreateTable(id int64, name, schema string) *CreateTable {
	op := &CreateTable{Base: NewBase(id, 0), TableName: name, Schema: schema}
	op.Dependencies().Add(DepMetadata)
	return op
}

func (op *CreateTable) EntityType() EntityType { return TypeCreateTable }
func (op *CreateTable) Name() string           { return "CreateTable" }
func (op *CreateTable) Label() string          { return "CreateTable " + op.TableName }

func (op *CreateTable) Execute(ctx Context) error {
	switch op.State() {
	case Initial:
		if _, ok := ctx.ResolveTableID(op.TableName); ok {
			op.CompleteError(operr.AlreadyExists, "table already exists: "+op.TableName)
			return nil
		}
		op.SetState(AssignID)
		return nil

	case AssignID:
		tableID, err := ctx.AllocateTableID(op.TableName)
		if err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.TableID = tableID
		if err := ctx.SetTableSchema(tableID, op.Schema); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(WriteMetadata)
		return nil

	case WriteMetadata:
		if err := ctx.WriteMetadataRow(MetadataRow{
			TableID:         op.TableID,
			EndRowInclusive: rangeserver.EndRowMarker,
		}); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(AssignLocation)
		return nil

	case AssignLocation:
		server, ok := ctx.Registry().NextAvailableServer()
		if !ok {
			op.SetState(Blocked)
			return nil
		}
		op.Location = server.Location
		op.SetState(LoadRange)
		return nil

	case LoadRange:
		_, err := ctx.RangeServers().LoadRange(op.Location, rangeserver.LoadRangeRequest{
			TableID:         op.TableID,
			EndRowInclusive: rangeserver.EndRowMarker,
		})
		if err != nil && !tolerableLoadError(err) {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(Finalize)
		return nil

	case Finalize:
		if err := ctx.FinalizeTable(op.TableID); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.CompleteOK()
		return nil
	}
	return nil
}

// tolerableLoadError reports the two load_range outcomes the spec treats
// as success: the range is already in the desired state (§7).
func tolerableLoadError(err error) bool {
	code := operr.CodeOf(err)
	return code == operr.RangeAlreadyLoaded || code == operr.TableDropped
}

var errCreateTableState = errors.New("operation: create_table truncated state")

func (op *CreateTable) EncodeState() []byte {
	buf := make([]byte, stringLen(op.TableName)+stringLen(op.Schema)+stringLen(op.TableID)+stringLen(op.Location))
	n := putString(buf, op.TableName)
	n += putString(buf[n:], op.Schema)
	n += putString(buf[n:], op.TableID)
	putString(buf[n:], op.Location)
	return buf
}

func (op *CreateTable) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	name, n, err := getString(buf)
	if err != nil {
		return errCreateTableState
	}
	schema, n2, err := getString(buf[n:])
	if err != nil {
		return errCreateTableState
	}
	tableID, n3, err := getString(buf[n+n2:])
	if err != nil {
		return errCreateTableState
	}
	location, _, err := getString(buf[n+n2+n3:])
	if err != nil {
		return errCreateTableState
	}
	op.TableName, op.Schema, op.TableID, op.Location = name, schema, tableID, location
	return nil
}
