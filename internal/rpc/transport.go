package rpc

import (
	"net"
	"net/rpc"
	"time"
)

// Transport is the outbound call surface the master uses to reach range
// servers (spec §6 "RPC surface (range server, outbound from master)").
// A real asynchronous, multiplexed transport is an external collaborator;
// GobTransport is a net/rpc+gob default.
type Transport interface {
	// Call issues method against addr with args, decoding into reply.
	// It blocks for up to timeout.
	Call(addr, method string, args, reply interface{}, timeout time.Duration) error
}

// GobTransport dials a fresh net/rpc connection per call. This is
// deliberately simple: the spec treats the transport as an external,
// out-of-scope collaborator, so the default only needs to be a real,
// correct stdlib RPC client, not a high-performance multiplexed one.
type GobTransport struct{}

func (GobTransport) Call(addr, method string, args, reply interface{}, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	client := rpc.NewClient(conn)
	defer client.Close()

	call := client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case res := <-call.Done:
		return res.Error
	case <-time.After(timeout):
		return ErrCallTimeout
	}
}

// Server exposes a registered Go object over net/rpc on a TCP listener,
// for range-server-side or test-harness use.
type Server struct {
	rpcServer *rpc.Server
	listener  net.Listener

	// OnDisconnect, if set, is called with a connection's remote address
	// once net/rpc finishes serving it (error or clean close). This is
	// the only disconnect signal net/rpc's connection-per-goroutine model
	// offers. It assumes a transport that holds one connection open per
	// range server for the life of its session; GobTransport's
	// dial-per-call clients would fire this after every request, so
	// wiring it only makes sense against a persistent-connection client.
	OnDisconnect func(remoteAddr string)
}

// NewServer registers svc's exported methods (net/rpc convention: each
// method must have the signature func(args, *reply) error) and begins
// listening on addr.
func NewServer(addr string, svc interface{}) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.Register(svc); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{rpcServer: rpcServer, listener: ln}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	s.rpcServer.ServeConn(conn)
	if s.OnDisconnect != nil {
		s.OnDisconnect(remoteAddr)
	}
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	return s.listener.Close()
}
