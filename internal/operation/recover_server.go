package operation

func init() {
	Register(TypeRecoverServer, func(id int64) Operation { return NewRecoverServer(id, "") })
}

// RecoverServer is a placeholder state machine admitted whenever the
// registry shows a connection disconnected (spec §4.3, §4.8 bootstrap
// step 5). It blocks while the record stays disconnected, holding the
// location as an exclusivity so no other administrative operation can
// touch that server while it is recovering, and completes on reconnect.
type RecoverServer struct {
	Base

	Location string
}

func NewRecoverServer(id int64, location string) *RecoverServer {
	op := &RecoverServer{Base: NewBase(id, 0), Location: location}
	if location != "" {
		op.Exclusivities().Add(location)
	}
	return op
}

func (op *RecoverServer) EntityType() EntityType { return TypeRecoverServer }
func (op *RecoverServer) Name() string            { return "RecoverServer" }
func (op *RecoverServer) Label() string           { return "RecoverServer" }

func (op *RecoverServer) Execute(ctx Context) error {
	conn, ok := ctx.Registry().FindByLocation(op.Location)
	if !ok || !conn.Connected {
		op.SetState(Blocked)
		return nil
	}
	op.CompleteOK()
	return nil
}

func (op *RecoverServer) EncodeState() []byte {
	buf := make([]byte, stringLen(op.Location))
	putString(buf, op.Location)
	return buf
}

func (op *RecoverServer) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	loc, _, err := getString(buf)
	if err != nil {
		return err
	}
	op.Location = loc
	if loc != "" {
		op.Exclusivities().Add(loc)
	}
	return nil
}
