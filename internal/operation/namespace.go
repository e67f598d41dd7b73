package operation

import "github.com/hypertable/master/internal/operr"

func init() {
	Register(TypeCreateNamespace, func(id int64) Operation { return NewCreateNamespace(id, "", 0) })
	Register(TypeDropNamespace, func(id int64) Operation { return NewDropNamespace(id, "", 0) })
}

// CreateNamespace creates a directory-like namespace in the lock
// service. IF_NOT_EXISTS turns AlreadyExists into a successful no-op;
// CREATE_INTERMEDIATE creates missing ancestor directories along the way
// (spec §3, SPEC_FULL.md §3).
type CreateNamespace struct {
	Base

	Path  string
	Flags NamespaceFlag
}

func NewCreateNamespace(id int64, path string, flags NamespaceFlag) *CreateNamespace {
	return &CreateNamespace{Base: NewBase(id, 0), Path: path, Flags: flags}
}

func (op *CreateNamespace) EntityType() EntityType { return TypeCreateNamespace }
func (op *CreateNamespace) Name() string            { return "CreateNamespace" }
func (op *CreateNamespace) Label() string           { return "CreateNamespace " + op.Path }

func (op *CreateNamespace) Execute(ctx Context) error {
	err := ctx.CreateNamespace(op.Path, op.Flags)
	if err == nil {
		op.CompleteOK()
		return nil
	}
	if operr.CodeOf(err) == operr.AlreadyExists && op.Flags.Has(NamespaceIfNotExists) {
		op.CompleteOK()
		return nil
	}
	op.CompleteError(operr.CodeOf(err), err.Error())
	return nil
}

func (op *CreateNamespace) EncodeState() []byte {
	buf := make([]byte, stringLen(op.Path)+4)
	n := putString(buf, op.Path)
	putInt32(buf[n:], int32(op.Flags))
	return buf
}

func (op *CreateNamespace) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	p, n, err := getString(buf)
	if err != nil {
		return err
	}
	if len(buf) < n+4 {
		return errShortResult
	}
	op.Path = p
	op.Flags = NamespaceFlag(getInt32(buf[n : n+4]))
	return nil
}

// DropNamespace unlinks a namespace path; it does not check that the
// namespace is empty. IF_EXISTS turns NotFound into a successful no-op.
type DropNamespace struct {
	Base

	Path  string
	Flags NamespaceFlag
}

func NewDropNamespace(id int64, path string, flags NamespaceFlag) *DropNamespace {
	return &DropNamespace{Base: NewBase(id, 0), Path: path, Flags: flags}
}

func (op *DropNamespace) EntityType() EntityType { return TypeDropNamespace }
func (op *DropNamespace) Name() string            { return "DropNamespace" }
func (op *DropNamespace) Label() string           { return "DropNamespace " + op.Path }

func (op *DropNamespace) Execute(ctx Context) error {
	err := ctx.DropNamespace(op.Path, op.Flags)
	if err == nil {
		op.CompleteOK()
		return nil
	}
	if operr.CodeOf(err) == operr.NotFound && op.Flags.Has(NamespaceIfExists) {
		op.CompleteOK()
		return nil
	}
	op.CompleteError(operr.CodeOf(err), err.Error())
	return nil
}

func (op *DropNamespace) EncodeState() []byte {
	buf := make([]byte, stringLen(op.Path)+4)
	n := putString(buf, op.Path)
	putInt32(buf[n:], int32(op.Flags))
	return buf
}

func (op *DropNamespace) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	p, n, err := getString(buf)
	if err != nil {
		return err
	}
	if len(buf) < n+4 {
		return errShortResult
	}
	op.Path = p
	op.Flags = NamespaceFlag(getInt32(buf[n : n+4]))
	return nil
}
