package operation

import (
	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/schema"
)

func init() {
	Register(TypeAlterTable, func(id int64) Operation { return NewAlterTable(id, "", "") })
}

// AlterTable validates a schema generation bump, persists it, then loops
// SCAN_METADATA -> ISSUE_REQUESTS fanning an UPDATE_SCHEMA to every
// serving location, same retry/dedup shape as DropTable (spec §4.3, §7:
// "schema generation mismatch is a terminal client error").
type AlterTable struct {
	Base

	TableName string
	Schema    string

	TableID string
	Done    map[string]bool
}

func NewAlterTable(id int64, name, schema string) *AlterTable {
	op := &AlterTable{Base: NewBase(id, 0), TableName: name, Schema: schema, Done: make(map[string]bool)}
	op.Dependencies().Add(DepMetadata)
	return op
}

func (op *AlterTable) EntityType() EntityType { return TypeAlterTable }
func (op *AlterTable) Name() string            { return "AlterTable" }
func (op *AlterTable) Label() string          { return "AlterTable " + op.TableName }

func (op *AlterTable) Execute(ctx Context) error {
	switch op.State() {
	case Initial:
		tableID, ok := ctx.ResolveTableID(op.TableName)
		if !ok {
			op.CompleteError(operr.NotFound, "no such table: "+op.TableName)
			return nil
		}
		op.TableID = tableID
		op.Exclusivities().Add(op.TableID)
		op.SetState(ValidateSchema)
		return nil

	case ValidateSchema:
		next, err := schema.Parse(op.Schema)
		if err != nil {
			op.CompleteError(operr.BadSchema, err.Error())
			return nil
		}
		if err := next.Validate(); err != nil {
			op.CompleteError(operr.BadSchema, err.Error())
			return nil
		}
		if prevText, ok := ctx.GetTableSchema(op.TableID); ok {
			prev, err := schema.Parse(prevText)
			if err != nil {
				op.CompleteError(operr.BadSchema, err.Error())
				return nil
			}
			if err := schema.ValidateAlter(prev, next); err != nil {
				op.CompleteError(operr.SchemaGenerationMismatch, err.Error())
				return nil
			}
		}
		if err := ctx.SetTableSchema(op.TableID, op.Schema); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(ScanMetadata)
		return nil

	case ScanMetadata:
		rows := ctx.ScanMetadata(op.TableID)
		pending := pendingLocations(rows, op.Done)
		if len(pending) == 0 {
			op.CompleteOK()
			return nil
		}
		op.SetState(IssueRequests)
		return op.issueUpdate(ctx, pending)

	case IssueRequests:
		rows := ctx.ScanMetadata(op.TableID)
		pending := pendingLocations(rows, op.Done)
		return op.issueUpdate(ctx, pending)
	}
	return nil
}

func (op *AlterTable) issueUpdate(ctx Context, pending []string) error {
	results := ctx.RangeServers().UpdateSchema(pending, op.TableID, op.Schema)
	for _, r := range results {
		if r.Err == nil || tolerableLoadError(r.Err) {
			op.Done[r.Location] = true
		}
	}
	op.SetState(ScanMetadata)
	return nil
}

func (op *AlterTable) EncodeState() []byte {
	names := make([]string, 0, len(op.Done))
	for loc := range op.Done {
		names = append(names, loc)
	}
	size := stringLen(op.TableName) + stringLen(op.Schema) + stringLen(op.TableID) + 4
	for _, n := range names {
		size += stringLen(n)
	}
	buf := make([]byte, size)
	n := putString(buf, op.TableName)
	n += putString(buf[n:], op.Schema)
	n += putString(buf[n:], op.TableID)
	putInt32(buf[n:], int32(len(names)))
	n += 4
	for _, name := range names {
		n += putString(buf[n:], name)
	}
	return buf
}

func (op *AlterTable) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	name, n, err := getString(buf)
	if err != nil {
		return err
	}
	schema, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n2
	tableID, n3, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n3
	if len(buf) < n+4 {
		return errShortResult
	}
	count := int(getInt32(buf[n : n+4]))
	n += 4
	op.Done = make(map[string]bool, count)
	for i := 0; i < count; i++ {
		loc, ln, err := getString(buf[n:])
		if err != nil {
			return err
		}
		op.Done[loc] = true
		n += ln
	}
	op.TableName, op.Schema, op.TableID = name, schema, tableID
	return nil
}
