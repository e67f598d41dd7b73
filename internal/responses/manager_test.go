package responses

import (
	"sync"
	"testing"
	"time"

	"github.com/hypertable/master/internal/operation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedDelivery struct {
	info DeliveryInfo
	op   operation.Operation
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []recordedDelivery
}

func (f *fakeDeliverer) Deliver(info DeliveryInfo, op operation.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, recordedDelivery{info: info, op: op})
}

func (f *fakeDeliverer) snapshot() []recordedDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedDelivery, len(f.delivered))
	copy(out, f.delivered)
	return out
}

// explicitOp wraps Test to report RemoveExplicitly() true, exercising the
// "removal entry has been written" retention exception (spec §4.5).
type explicitOp struct {
	*operation.Test
}

func (e *explicitOp) RemoveExplicitly() bool { return true }

func TestAddDeliveryInfoAfterCompletionDeliversImmediately(t *testing.T) {
	deliverer := &fakeDeliverer{}
	m := New(time.Minute, deliverer)

	op := operation.NewTest(1)
	op.CompleteOK()
	m.Complete(op)

	delivered := m.AddDeliveryInfo(1, DeliveryInfo{RemoteAddr: "127.0.0.1:1", RequestID: 42})
	assert.True(t, delivered)

	snap := deliverer.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(42), snap[0].info.RequestID)
	assert.Equal(t, int64(1), snap[0].op.ID())
}

func TestAddDeliveryInfoBeforeCompletionIsDeliveredOnComplete(t *testing.T) {
	deliverer := &fakeDeliverer{}
	m := New(time.Minute, deliverer)

	delivered := m.AddDeliveryInfo(7, DeliveryInfo{RemoteAddr: "127.0.0.1:2", RequestID: 99})
	assert.False(t, delivered)
	assert.Empty(t, deliverer.snapshot())

	op := operation.NewTest(7)
	op.CompleteOK()
	m.Complete(op)

	snap := deliverer.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(99), snap[0].info.RequestID)
}

func TestOperationCompleteExistenceQuery(t *testing.T) {
	deliverer := &fakeDeliverer{}
	m := New(time.Minute, deliverer)

	_, ok := m.OperationComplete(1)
	assert.False(t, ok)

	op := operation.NewTest(1)
	op.CompleteOK()
	m.Complete(op)

	found, ok := m.OperationComplete(op.HashCode())
	require.True(t, ok)
	assert.Equal(t, int64(1), found.ID())
}

func TestRemoveOperationRetiresByHashCode(t *testing.T) {
	deliverer := &fakeDeliverer{}
	m := New(time.Minute, deliverer)

	op := operation.NewTest(1)
	op.CompleteOK()
	m.Complete(op)

	m.Remove(op.HashCode())

	_, ok := m.OperationComplete(op.HashCode())
	assert.False(t, ok)
}

func TestAgerEvictsAfterRetentionWindowUnlessExplicit(t *testing.T) {
	deliverer := &fakeDeliverer{}
	m := New(20*time.Millisecond, deliverer)
	m.Start()
	defer m.Stop()

	plain := operation.NewTest(1)
	plain.CompleteOK()
	m.Complete(plain)

	explicit := &explicitOp{Test: operation.NewTest(2)}
	explicit.CompleteOK()
	m.Complete(explicit)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, plainStillThere := m.OperationComplete(plain.HashCode())
		if !plainStillThere {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, ok := m.OperationComplete(plain.HashCode())
	assert.False(t, ok, "plain completed operation should age out past 2x request_timeout")

	_, ok = m.OperationComplete(explicit.HashCode())
	assert.True(t, ok, "operation with RemoveExplicitly() true must not be aged out automatically")
}

func TestInitializeIsNeverEvicted(t *testing.T) {
	deliverer := &fakeDeliverer{}
	m := New(10*time.Millisecond, deliverer)
	m.Start()
	defer m.Stop()

	init := operation.NewInitialize(1)
	init.CompleteOK()
	m.Complete(init)

	time.Sleep(200 * time.Millisecond)

	_, ok := m.OperationComplete(init.HashCode())
	assert.True(t, ok, "Initialize must be kept forever regardless of age")
}
