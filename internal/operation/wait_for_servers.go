package operation

func init() {
	Register(TypeWaitForServers, func(id int64) Operation { return NewWaitForServers(id) })
}

// WaitForServers is a perpetual, daemon-like operation (spec §4.3): it
// blocks until at least one range server is connected, completes, and is
// re-admitted fresh by the engine (property 7, "perpetual re-arm").
type WaitForServers struct {
	Base
}

func NewWaitForServers(id int64) *WaitForServers {
	op := &WaitForServers{Base: NewBase(id, 0)}
	op.Dependencies().Add(DepInit)
	return op
}

func (op *WaitForServers) EntityType() EntityType { return TypeWaitForServers }
func (op *WaitForServers) Name() string           { return "WaitForServers" }
func (op *WaitForServers) Label() string          { return "WaitForServers" }
func (op *WaitForServers) IsPerpetual() bool       { return true }

func (op *WaitForServers) Execute(ctx Context) error {
	if ctx.Registry().ConnectedCount() == 0 {
		op.SetState(Blocked)
		return nil
	}
	op.CompleteOK()
	return nil
}

func (op *WaitForServers) EncodeState() []byte      { return nil }
func (op *WaitForServers) DecodeState([]byte) error { return nil }
