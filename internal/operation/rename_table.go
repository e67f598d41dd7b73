package operation

import "github.com/hypertable/master/internal/operr"

func init() {
	Register(TypeRenameTable, func(id int64) Operation { return NewRenameTable(id, "", "") })
}

// RenameTable swaps a table's name->id mapping in a single state.
type RenameTable struct {
	Base

	OldName string
	NewName string
}

func NewRenameTable(id int64, oldName, newName string) *RenameTable {
	op := &RenameTable{Base: NewBase(id, 0), OldName: oldName, NewName: newName}
	op.Dependencies().Add(DepMetadata)
	return op
}

func (op *RenameTable) EntityType() EntityType { return TypeRenameTable }
func (op *RenameTable) Name() string            { return "RenameTable" }
func (op *RenameTable) Label() string          { return "RenameTable " + op.OldName + " -> " + op.NewName }

func (op *RenameTable) Execute(ctx Context) error {
	tableID, ok := ctx.ResolveTableID(op.OldName)
	if !ok {
		op.CompleteError(operr.NotFound, "no such table: "+op.OldName)
		return nil
	}
	op.Exclusivities().Add(tableID)
	if _, exists := ctx.ResolveTableID(op.NewName); exists {
		op.CompleteError(operr.AlreadyExists, "table already exists: "+op.NewName)
		return nil
	}
	if err := ctx.RenameTableMapping(op.OldName, op.NewName); err != nil {
		op.CompleteError(operr.CodeOf(err), err.Error())
		return nil
	}
	op.CompleteOK()
	return nil
}

func (op *RenameTable) EncodeState() []byte {
	buf := make([]byte, stringLen(op.OldName)+stringLen(op.NewName))
	n := putString(buf, op.OldName)
	putString(buf[n:], op.NewName)
	return buf
}

func (op *RenameTable) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	old, n, err := getString(buf)
	if err != nil {
		return err
	}
	newName, _, err := getString(buf[n:])
	if err != nil {
		return err
	}
	op.OldName, op.NewName = old, newName
	return nil
}
