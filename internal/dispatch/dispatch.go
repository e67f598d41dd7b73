// Package dispatch implements the Connection/Dispatch Handler (C7, spec
// §4.7): it classifies inbound RPC events into new-operation admission or
// FETCH_RESULT continuations, and reacts to DISCONNECT and TIMER events.
// Grounded on spec.md §4.7's verbatim contract for the MESSAGE/DISCONNECT/
// TIMER switch, and on the teacher's pkg/reconciler.go ticker-driven
// periodic-admission idiom for the TIMER branch.
package dispatch

import (
	"bytes"
	"encoding/gob"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hypertable/master/internal/engine"
	"github.com/hypertable/master/internal/log"
	"github.com/hypertable/master/internal/operation"
	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/registry"
	"github.com/hypertable/master/internal/responses"
	"github.com/hypertable/master/internal/rpc"
	"github.com/rs/zerolog"
)

// Context is the subset of the master context the dispatch handler needs
// directly, beyond what it reaches through submitted operations.
type Context interface {
	Submit(ops ...operation.Operation) []int64
	NextID() int64
	Registry() *registry.Registry
}

// Handler is the master's C7: a stateless RPC decoder apart from its
// shutdown flag and the table of FETCH_RESULT waiters parked on
// incomplete operations.
type Handler struct {
	ctx       Context
	processor *engine.Processor
	resp      *responses.Manager
	mml       io.Closer

	requestTimeout time.Duration

	logger zerolog.Logger

	shutdown int32 // atomic bool

	waitersMu sync.Mutex
	waiters   map[int64]chan operation.Operation
}

// New builds a Handler. mmlCloser is closed on SHUTDOWN, after the
// processor has drained (spec §4.7 "SHUTDOWN ... closes the MML, and
// exits the process").
func New(ctx Context, processor *engine.Processor, resp *responses.Manager, mmlCloser io.Closer, requestTimeout time.Duration) *Handler {
	return &Handler{
		ctx:            ctx,
		processor:      processor,
		resp:           resp,
		mml:            mmlCloser,
		requestTimeout: requestTimeout,
		logger:         log.WithComponent("dispatch"),
		waiters:        make(map[int64]chan operation.Operation),
	}
}

// Deliver implements responses.Deliverer: it finds the parked FETCH_RESULT
// waiter for info's operation id, if any, and hands it the completed op.
func (h *Handler) Deliver(info responses.DeliveryInfo, op operation.Operation) {
	h.waitersMu.Lock()
	ch, ok := h.waiters[info.RequestID]
	if ok {
		delete(h.waiters, info.RequestID)
	}
	h.waitersMu.Unlock()
	if ok {
		ch <- op
	}
}

// Handle processes one inbound MESSAGE event and returns the reply to
// send back on the same connection (spec §4.7).
func (h *Handler) Handle(req *rpc.Request) *rpc.Reply {
	if atomic.LoadInt32(&h.shutdown) != 0 {
		return rpc.ErrorReply(operr.ProtocolError, "master is shutting down")
	}

	cid := req.CorrelationID
	if cid == "" {
		cid = uuid.NewString()
	}
	logger := h.logger.With().Str("correlation_id", cid).Logger()
	logger.Debug().Str("command", req.Command.String()).Str("remote_addr", req.RemoteAddr).
		Msg("dispatching request")

	switch req.Command {
	case rpc.CreateTable:
		var args CreateTableArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		op := operation.NewCreateTable(h.ctx.NextID(), args.Name, args.Schema)
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.DropTable:
		var args DropTableArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		op := operation.NewDropTable(h.ctx.NextID(), args.Name)
		op.IfExists = args.IfExists
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.AlterTable:
		var args AlterTableArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		op := operation.NewAlterTable(h.ctx.NextID(), args.Name, args.Schema)
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.RenameTable:
		var args RenameTableArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		op := operation.NewRenameTable(h.ctx.NextID(), args.OldName, args.NewName)
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.CreateNamespace:
		var args NamespaceArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		op := operation.NewCreateNamespace(h.ctx.NextID(), args.Path, operation.NamespaceFlag(args.Flags))
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.DropNamespace:
		var args NamespaceArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		op := operation.NewDropNamespace(h.ctx.NextID(), args.Path, operation.NamespaceFlag(args.Flags))
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.Status:
		op := operation.NewStatus(h.ctx.NextID())
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.RegisterServer:
		var args RegisterServerArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		return h.handleRegisterServer(args)

	case rpc.MoveRange:
		var args MoveRangeArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		return h.handleMoveRange(args)

	case rpc.RelinquishAcknowledge:
		var args RelinquishAcknowledgeArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		op := operation.NewRelinquishAcknowledge(h.ctx.NextID(), args.TableID, args.StartRowExclusive, args.EndRowInclusive, args.Qualifier)
		h.ctx.Submit(op)
		return rpc.OKReply(op.ID())

	case rpc.FetchResult:
		var args FetchResultArgs
		if err := decode(req.Payload, &args); err != nil {
			return protocolError(err)
		}
		return h.handleFetchResult(req, args)

	case rpc.Shutdown:
		h.handleShutdown()
		return rpc.OKReply(0)

	default:
		return rpc.ErrorReply(operr.ProtocolError, "unknown command")
	}
}

// handleRegisterServer is admitted directly without an id-reply: the
// caller wants the assigned location in the reply body (spec §4.7).
func (h *Handler) handleRegisterServer(args RegisterServerArgs) *rpc.Reply {
	op := operation.NewRegisterServer(h.ctx.NextID(), args.Hostname, args.LocalAddr, args.PublicAddr)
	h.ctx.Submit(op)

	// RegisterServer resolves synchronously inside Execute's Initial
	// state and blocks on nothing external, so a short local wait for
	// completion is enough to return the assigned location inline
	// rather than forcing a FETCH_RESULT round-trip.
	deadline := time.Now().Add(h.requestTimeout)
	for time.Now().Before(deadline) {
		if op.IsComplete() {
			code, msg := op.Error()
			if code != operr.OK {
				return rpc.ErrorReply(code, msg)
			}
			return &rpc.Reply{Code: operr.OK, Location: op.Location}
		}
		time.Sleep(time.Millisecond)
	}
	return rpc.ErrorReply(operr.Timeout, "register_server did not complete in time")
}

// handleMoveRange performs the retry-collapse dedup the spec requires:
// against both the in-progress set and the response manager, replying OK
// with the existing operation's id on a duplicate instead of admitting a
// second operation.
func (h *Handler) handleMoveRange(args MoveRangeArgs) *rpc.Reply {
	hashCode := operation.RangeHashCode(args.TableID, args.StartRowExclusive, args.EndRowInclusive, args.Qualifier)

	if existing, ok := h.processor.Live(hashCode); ok {
		return rpc.OKReply(existing.ID())
	}
	if existing, ok := h.resp.OperationComplete(hashCode); ok {
		return rpc.OKReply(existing.ID())
	}

	op := operation.NewMoveRange(h.ctx.NextID(), args.TableID, args.StartRowExclusive, args.EndRowInclusive, args.Qualifier, args.Destination)
	h.ctx.Submit(op)
	return rpc.OKReply(op.ID())
}

// handleFetchResult replies immediately if the operation has already
// completed; otherwise it parks a waiter and blocks up to
// requestTimeout, since the default net/rpc transport's request/reply
// model has no separate asynchronous push channel to deliver to later
// (spec §4.5 "add_delivery_info").
func (h *Handler) handleFetchResult(req *rpc.Request, args FetchResultArgs) *rpc.Reply {
	if op, ok := h.resp.Get(args.OperationID); ok {
		return resultReply(op)
	}

	ch := make(chan operation.Operation, 1)
	h.waitersMu.Lock()
	h.waiters[args.OperationID] = ch
	h.waitersMu.Unlock()

	delivered := h.resp.AddDeliveryInfo(args.OperationID, responses.DeliveryInfo{
		RemoteAddr: req.RemoteAddr,
		RequestID:  args.OperationID,
	})
	if delivered {
		h.waitersMu.Lock()
		delete(h.waiters, args.OperationID)
		h.waitersMu.Unlock()
	}

	select {
	case op := <-ch:
		return resultReply(op)
	case <-time.After(h.requestTimeout):
		h.waitersMu.Lock()
		delete(h.waiters, args.OperationID)
		h.waitersMu.Unlock()
		return &rpc.Reply{Code: operr.OK, Pending: true}
	}
}

func resultReply(op operation.Operation) *rpc.Reply {
	code, msg := op.Error()
	if code != operr.OK {
		return rpc.ErrorReply(code, msg)
	}
	return &rpc.Reply{Code: operr.OK, Result: op.EncodeResult()}
}

func (h *Handler) handleShutdown() {
	atomic.StoreInt32(&h.shutdown, 1)
	h.logger.Info().Msg("shutdown requested, draining processor")
	h.processor.Stop(15 * time.Second)
	if err := h.mml.Close(); err != nil {
		h.logger.Error().Err(err).Msg("error closing mml on shutdown")
	}
}

// OnDisconnect admits a RecoverServer for a range server whose connection
// just dropped (spec §4.7 "DISCONNECT: find the server by local address;
// on transition to disconnected, admit a RecoverServer operation").
func (h *Handler) OnDisconnect(localAddr string) {
	conn, ok := h.ctx.Registry().FindByLocalAddr(localAddr)
	if !ok {
		return
	}
	if !h.ctx.Registry().Disconnect(conn.Location) {
		return
	}
	op := operation.NewRecoverServer(h.ctx.NextID(), conn.Location)
	h.ctx.Submit(op)
}

func decode(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}

func protocolError(err error) *rpc.Reply {
	return rpc.ErrorReply(operr.ProtocolError, err.Error())
}
