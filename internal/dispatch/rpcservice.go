package dispatch

import "github.com/hypertable/master/internal/rpc"

// RPCService adapts a Handler to net/rpc's exported-method convention
// (func(args, *reply) error), so internal/rpc.NewServer can register it
// directly.
type RPCService struct {
	handler *Handler
}

// NewRPCService wraps h for registration with internal/rpc.NewServer.
func NewRPCService(h *Handler) *RPCService {
	return &RPCService{handler: h}
}

// Call is the single net/rpc method every inbound master RPC arrives
// through; Handler.Handle does the actual command dispatch (spec §6).
func (s *RPCService) Call(req rpc.Request, reply *rpc.Reply) error {
	r := s.handler.Handle(&req)
	*reply = *r
	return nil
}
