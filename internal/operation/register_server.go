package operation

import "github.com/hypertable/master/internal/operr"

func init() {
	Register(TypeRegisterServer, func(id int64) Operation { return NewRegisterServer(id, "", "", "") })
}

// RegisterServer is admitted by the dispatch handler (C7) when a range
// server's REGISTER_SERVER request carries no location yet (spec §4.3,
// §4.7). It resolves or allocates the proxy name, connects the record,
// and unblocks operations gated on that location or SERVERS.
type RegisterServer struct {
	Base

	Hostname  string
	LocalAddr string
	PublicAddr string

	Location string
}

func NewRegisterServer(id int64, hostname, localAddr, publicAddr string) *RegisterServer {
	op := &RegisterServer{Base: NewBase(id, 0), Hostname: hostname, LocalAddr: localAddr, PublicAddr: publicAddr}
	return op
}

func (op *RegisterServer) EntityType() EntityType { return TypeRegisterServer }
func (op *RegisterServer) Name() string            { return "RegisterServer" }
func (op *RegisterServer) Label() string           { return "RegisterServer" }

func (op *RegisterServer) Execute(ctx Context) error {
	switch op.State() {
	case Initial:
		location, err := ctx.AllocateLocation(op.Hostname, op.LocalAddr, op.PublicAddr)
		if err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.Location = location
		ctx.Registry().Connect(location, op.Hostname, op.LocalAddr, op.PublicAddr)
		op.Exclusivities().Add(location)
		op.CompleteOK()
		return nil
	default:
		op.CompleteOK()
		return nil
	}
}

func (op *RegisterServer) EncodeResult() []byte {
	code, _ := op.Error()
	if code != operr.OK {
		return op.Base.EncodeResult()
	}
	buf := make([]byte, stringLen(op.Location))
	putString(buf, op.Location)
	return buf
}

func (op *RegisterServer) DecodeResult(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	// Success payload is a bare location string; error payloads are at
	// least 8 bytes (code + length) and never collide with a short
	// location string by construction of EncodeResult above.
	loc, _, err := getString(buf)
	if err != nil {
		return op.Base.DecodeResult(buf)
	}
	op.Location = loc
	return nil
}

func (op *RegisterServer) EncodeState() []byte {
	buf := make([]byte, stringLen(op.Hostname)+stringLen(op.LocalAddr)+stringLen(op.PublicAddr)+stringLen(op.Location))
	n := putString(buf, op.Hostname)
	n += putString(buf[n:], op.LocalAddr)
	n += putString(buf[n:], op.PublicAddr)
	putString(buf[n:], op.Location)
	return buf
}

func (op *RegisterServer) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	h, n, err := getString(buf)
	if err != nil {
		return err
	}
	l, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	p, n3, err := getString(buf[n+n2:])
	if err != nil {
		return err
	}
	loc, _, err := getString(buf[n+n2+n3:])
	if err != nil {
		return err
	}
	op.Hostname, op.LocalAddr, op.PublicAddr, op.Location = h, l, p, loc
	return nil
}
