package dispatch

import (
	"bytes"
	"encoding/gob"
	"path/filepath"
	"testing"
	"time"

	"github.com/hypertable/master/internal/engine"
	"github.com/hypertable/master/internal/lockservice"
	"github.com/hypertable/master/internal/master"
	"github.com/hypertable/master/internal/mml"
	"github.com/hypertable/master/internal/operation"
	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/rangeserver"
	"github.com/hypertable/master/internal/registry"
	"github.com/hypertable/master/internal/responses"
	"github.com/hypertable/master/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHarness wires a real engine.Processor, responses.Manager and
// master.Context around a Handler, the same way cmd/master does, minus
// the network listener.
type testHarness struct {
	handler   *Handler
	processor *engine.Processor
	resp      *responses.Manager
	ctx       *master.Context
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	lock, err := lockservice.NewBoltService(filepath.Join(t.TempDir(), "lock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lock.Close() })

	def := operation.Definition()
	def.Register(registry.EntityType, registry.Decode)

	fs := mml.OSFilesystem{}
	dir := t.TempDir()
	mmlWriter, err := mml.NewWriter(fs, def, filepath.Join(dir, "mml"), filepath.Join(dir, "backup"))
	require.NoError(t, err)
	t.Cleanup(func() { mmlWriter.Close() })

	reg := registry.New()
	resp := responses.New(50*time.Millisecond, nil)
	resp.Start()
	t.Cleanup(resp.Stop)

	ctx := master.New(lock, reg, rangeserver.New(rpc.GobTransport{}, nil, time.Second), mmlWriter, resp, true)

	processor := engine.New(ctx, 2, resp)
	ctx.SetProcessor(processor)
	go processor.Run()
	t.Cleanup(func() { processor.Stop(time.Second) })

	handler := New(ctx, processor, resp, mmlWriter, 100*time.Millisecond)
	resp.SetDeliverer(handler)

	return &testHarness{handler: handler, processor: processor, resp: resp, ctx: ctx}
}

func gobPayload(t *testing.T, v interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(v))
	return buf.Bytes()
}

func TestCreateTableAdmitsAndRepliesWithOperationID(t *testing.T) {
	h := newHarness(t)

	reply := h.handler.Handle(&rpc.Request{
		Command: rpc.CreateTable,
		Payload: gobPayload(t, CreateTableArgs{Name: "/my_table", Schema: "<Schema/>"}),
	})

	require.Equal(t, operr.OK, reply.Code)
	assert.NotZero(t, reply.OperationID)
}

func TestStatusAdmitsAndRepliesWithOperationID(t *testing.T) {
	h := newHarness(t)

	reply := h.handler.Handle(&rpc.Request{Command: rpc.Status})
	require.Equal(t, operr.OK, reply.Code)
	assert.NotZero(t, reply.OperationID)
}

func TestUnknownCommandRepliesProtocolError(t *testing.T) {
	h := newHarness(t)

	reply := h.handler.Handle(&rpc.Request{Command: rpc.Command(999)})
	assert.Equal(t, operr.ProtocolError, reply.Code)
}

func TestDecodeFailureRepliesProtocolError(t *testing.T) {
	h := newHarness(t)

	reply := h.handler.Handle(&rpc.Request{
		Command: rpc.CreateTable,
		Payload: []byte{0xff, 0xff, 0xff},
	})
	assert.Equal(t, operr.ProtocolError, reply.Code)
}

func TestRegisterServerRepliesWithAssignedLocationInline(t *testing.T) {
	h := newHarness(t)

	reply := h.handler.Handle(&rpc.Request{
		Command: rpc.RegisterServer,
		Payload: gobPayload(t, RegisterServerArgs{Hostname: "rs1.local", LocalAddr: "10.0.0.1:15860", PublicAddr: "10.0.0.1:15860"}),
	})

	require.Equal(t, operr.OK, reply.Code)
	assert.NotEmpty(t, reply.Location)

	conn, ok := h.ctx.Registry().FindByLocation(reply.Location)
	require.True(t, ok)
	assert.True(t, conn.Connected)
}

func TestMoveRangeDedupesAgainstInProgressOperation(t *testing.T) {
	h := newHarness(t)

	args := MoveRangeArgs{TableID: "/tables/foo", StartRowExclusive: "a", EndRowInclusive: "m", Qualifier: "", Destination: "rs1"}

	first := h.handler.Handle(&rpc.Request{Command: rpc.MoveRange, Payload: gobPayload(t, args)})
	require.Equal(t, operr.OK, first.Code)
	require.NotZero(t, first.OperationID)

	second := h.handler.Handle(&rpc.Request{Command: rpc.MoveRange, Payload: gobPayload(t, args)})
	require.Equal(t, operr.OK, second.Code)
	assert.Equal(t, first.OperationID, second.OperationID)
}

func TestMoveRangeDedupesAgainstCompletedOperation(t *testing.T) {
	h := newHarness(t)

	op := operation.NewMoveRange(h.ctx.NextID(), "/tables/foo", "a", "m", "", "rs1")
	op.CompleteOK()
	h.resp.Complete(op)

	reply := h.handler.Handle(&rpc.Request{
		Command: rpc.MoveRange,
		Payload: gobPayload(t, MoveRangeArgs{TableID: "/tables/foo", StartRowExclusive: "a", EndRowInclusive: "m", Qualifier: "", Destination: "rs1"}),
	})
	require.Equal(t, operr.OK, reply.Code)
	assert.Equal(t, op.ID(), reply.OperationID)
}

func TestFetchResultRepliesImmediatelyWhenAlreadyComplete(t *testing.T) {
	h := newHarness(t)

	op := operation.NewStatus(h.ctx.NextID())
	op.CompleteOK()
	h.resp.Complete(op)

	reply := h.handler.Handle(&rpc.Request{
		Command: rpc.FetchResult,
		Payload: gobPayload(t, FetchResultArgs{OperationID: op.ID()}),
	})
	require.Equal(t, operr.OK, reply.Code)
	assert.False(t, reply.Pending)
}

func TestFetchResultParksThenDeliversOnCompletion(t *testing.T) {
	h := newHarness(t)

	op := operation.NewStatus(h.ctx.NextID())

	done := make(chan *rpc.Reply, 1)
	go func() {
		done <- h.handler.Handle(&rpc.Request{
			Command: rpc.FetchResult,
			Payload: gobPayload(t, FetchResultArgs{OperationID: op.ID()}),
		})
	}()

	time.Sleep(10 * time.Millisecond)
	op.CompleteOK()
	h.resp.Complete(op)

	select {
	case reply := <-done:
		require.Equal(t, operr.OK, reply.Code)
		assert.False(t, reply.Pending)
	case <-time.After(time.Second):
		t.Fatal("fetch result never delivered")
	}
}

func TestFetchResultRepliesPendingOnTimeout(t *testing.T) {
	h := newHarness(t)

	reply := h.handler.Handle(&rpc.Request{
		Command: rpc.FetchResult,
		Payload: gobPayload(t, FetchResultArgs{OperationID: 999999}),
	})
	require.Equal(t, operr.OK, reply.Code)
	assert.True(t, reply.Pending)
}

func TestOnDisconnectAdmitsRecoverServer(t *testing.T) {
	h := newHarness(t)

	h.ctx.Registry().Connect("rs1", "rs1.local", "10.0.0.1:15860", "10.0.0.1:15860")
	h.handler.OnDisconnect("10.0.0.1:15860")

	conn, ok := h.ctx.Registry().FindByLocation("rs1")
	require.True(t, ok)
	assert.False(t, conn.Connected)

	admitted := false
	for _, op := range h.processor.Snapshot() {
		if op.EntityType() == operation.TypeRecoverServer {
			admitted = true
		}
	}
	assert.True(t, admitted)
}

func TestShutdownDrainsAndClosesMML(t *testing.T) {
	h := newHarness(t)

	reply := h.handler.Handle(&rpc.Request{Command: rpc.Shutdown})
	require.Equal(t, operr.OK, reply.Code)

	reply = h.handler.Handle(&rpc.Request{Command: rpc.Status})
	assert.Equal(t, operr.ProtocolError, reply.Code)
}
