package operation

func init() {
	Register(TypeStatus, func(id int64) Operation { return NewStatus(id) })
}

// Status answers the STATUS RPC with a short summary of connected
// servers, completing in a single state.
type Status struct {
	Base

	ConnectedServers int32
}

func NewStatus(id int64) *Status {
	return &Status{Base: NewBase(id, 0)}
}

func (op *Status) EntityType() EntityType { return TypeStatus }
func (op *Status) Name() string            { return "Status" }
func (op *Status) Label() string          { return "Status" }

func (op *Status) Execute(ctx Context) error {
	op.ConnectedServers = int32(ctx.Registry().ConnectedCount())
	op.CompleteOK()
	return nil
}

func (op *Status) EncodeResult() []byte {
	code, _ := op.Error()
	if code != 0 {
		return op.Base.EncodeResult()
	}
	buf := make([]byte, 4)
	putInt32(buf, op.ConnectedServers)
	return buf
}

func (op *Status) DecodeResult(buf []byte) error {
	if len(buf) != 4 {
		return op.Base.DecodeResult(buf)
	}
	op.ConnectedServers = getInt32(buf)
	return nil
}

func (op *Status) EncodeState() []byte      { return nil }
func (op *Status) DecodeState([]byte) error { return nil }
