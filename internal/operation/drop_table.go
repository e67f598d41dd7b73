package operation

import (
	"github.com/hypertable/master/internal/operr"
)

func init() {
	Register(TypeDropTable, func(id int64) Operation { return NewDropTable(id, "") })
}

// DropTable loops SCAN_METADATA -> ISSUE_REQUESTS until every serving
// location has dropped the table, persisting the set of locations
// already done so retries don't re-issue to them (spec §4.3). IF_EXISTS
// turns a missing name into a successful no-op.
type DropTable struct {
	Base

	TableName string
	IfExists  bool

	TableID string
	Done    map[string]bool
}

func NewDropTable(id int64, name string) *DropTable {
	op := &DropTable{Base: NewBase(id, 0), TableName: name, Done: make(map[string]bool)}
	op.Dependencies().Add(DepMetadata)
	return op
}

func (op *DropTable) EntityType() EntityType { return TypeDropTable }
func (op *DropTable) Name() string            { return "DropTable" }
func (op *DropTable) Label() string          { return "DropTable " + op.TableName }

func (op *DropTable) Execute(ctx Context) error {
	switch op.State() {
	case Initial:
		tableID, ok := ctx.ResolveTableID(op.TableName)
		if !ok {
			if op.IfExists {
				op.CompleteOK()
				return nil
			}
			op.CompleteError(operr.NotFound, "no such table: "+op.TableName)
			return nil
		}
		op.TableID = tableID
		op.Exclusivities().Add(op.TableID)
		op.SetState(ScanMetadata)
		return nil

	case ScanMetadata:
		rows := ctx.ScanMetadata(op.TableID)
		pending := pendingLocations(rows, op.Done)
		if len(pending) == 0 {
			op.SetState(Finalize)
			return nil
		}
		op.SetState(IssueRequests)
		return op.issueDrop(ctx, pending)

	case IssueRequests:
		rows := ctx.ScanMetadata(op.TableID)
		pending := pendingLocations(rows, op.Done)
		return op.issueDrop(ctx, pending)

	case Finalize:
		ctx.RemoveMetadataRows(op.TableID)
		if err := ctx.RemoveTableMapping(op.TableName); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.CompleteOK()
		return nil
	}
	return nil
}

func (op *DropTable) issueDrop(ctx Context, pending []string) error {
	results := ctx.RangeServers().DropTable(pending, op.TableID)
	for _, r := range results {
		if r.Err == nil || tolerableLoadError(r.Err) {
			op.Done[r.Location] = true
		}
	}
	op.SetState(ScanMetadata)
	return nil
}

func pendingLocations(rows []MetadataRow, done map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		if row.Location == "" || done[row.Location] || seen[row.Location] {
			continue
		}
		seen[row.Location] = true
		out = append(out, row.Location)
	}
	return out
}

func (op *DropTable) EncodeState() []byte {
	names := make([]string, 0, len(op.Done))
	for loc := range op.Done {
		names = append(names, loc)
	}
	size := stringLen(op.TableName) + stringLen(op.TableID) + 4 + 4
	for _, n := range names {
		size += stringLen(n)
	}
	buf := make([]byte, size)
	n := putString(buf, op.TableName)
	n += putString(buf[n:], op.TableID)
	if op.IfExists {
		putInt32(buf[n:], 1)
	} else {
		putInt32(buf[n:], 0)
	}
	n += 4
	putInt32(buf[n:], int32(len(names)))
	n += 4
	for _, name := range names {
		n += putString(buf[n:], name)
	}
	return buf
}

func (op *DropTable) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	name, n, err := getString(buf)
	if err != nil {
		return err
	}
	tableID, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n2
	if len(buf) < n+8 {
		return errShortResult
	}
	op.IfExists = getInt32(buf[n:n+4]) != 0
	n += 4
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
	op.TableName, op.TableID = name, tableID
	return nil
}
