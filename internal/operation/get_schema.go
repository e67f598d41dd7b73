package operation

import "github.com/hypertable/master/internal/operr"

func init() {
	Register(TypeGetSchema, func(id int64) Operation { return NewGetSchema(id, "") })
}

// GetSchema resolves a table name and returns its current schema text as
// the success result payload.
type GetSchema struct {
	Base

	TableName string
	Schema    string
}

func NewGetSchema(id int64, name string) *GetSchema {
	op := &GetSchema{Base: NewBase(id, 0), TableName: name}
	op.Dependencies().Add(DepMetadata)
	return op
}

func (op *GetSchema) EntityType() EntityType { return TypeGetSchema }
func (op *GetSchema) Name() string            { return "GetSchema" }
func (op *GetSchema) Label() string          { return "GetSchema " + op.TableName }

func (op *GetSchema) Execute(ctx Context) error {
	tableID, ok := ctx.ResolveTableID(op.TableName)
	if !ok {
		op.CompleteError(operr.NotFound, "no such table: "+op.TableName)
		return nil
	}
	schema, ok := ctx.GetTableSchema(tableID)
	if !ok {
		op.CompleteError(operr.NotFound, "no schema for table: "+op.TableName)
		return nil
	}
	op.Schema = schema
	op.CompleteOK()
	return nil
}

func (op *GetSchema) EncodeResult() []byte {
	code, _ := op.Error()
	if code != operr.OK {
		return op.Base.EncodeResult()
	}
	buf := make([]byte, stringLen(op.Schema))
	putString(buf, op.Schema)
	return buf
}

func (op *GetSchema) DecodeResult(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	schema, _, err := getString(buf)
	if err != nil {
		return op.Base.DecodeResult(buf)
	}
	op.Schema = schema
	return nil
}

func (op *GetSchema) EncodeState() []byte {
	buf := make([]byte, stringLen(op.TableName))
	putString(buf, op.TableName)
	return buf
}

func (op *GetSchema) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	name, _, err := getString(buf)
	if err != nil {
		return err
	}
	op.TableName = name
	return nil
}
