package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/hypertable/master/internal/lockservice"
	"github.com/hypertable/master/internal/mml"
	"github.com/hypertable/master/internal/operation"
	"github.com/hypertable/master/internal/rangeserver"
	"github.com/hypertable/master/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContext is a minimal operation.Context good enough to run Test
// operations, which never touch most of the surface.
type fakeContext struct {
	registry *registry.Registry
	nextID   int64
	mu       sync.Mutex
}

func newFakeContext() *fakeContext {
	return &fakeContext{registry: registry.New(), nextID: 1}
}

func (c *fakeContext) Lockservice() lockservice.Service       { return nil }
func (c *fakeContext) Registry() *registry.Registry           { return c.registry }
func (c *fakeContext) RangeServers() *rangeserver.Client      { return nil }
func (c *fakeContext) MML() *mml.Writer                       { return nil }
func (c *fakeContext) AllocateTableID(string) (string, error) { return "", nil }
func (c *fakeContext) ResolveTableID(string) (string, bool)   { return "", false }
func (c *fakeContext) RemoveTableMapping(string) error        { return nil }
func (c *fakeContext) RenameTableMapping(string, string) error { return nil }
func (c *fakeContext) SetTableSchema(string, string) error    { return nil }
func (c *fakeContext) GetTableSchema(string) (string, bool)   { return "", false }
func (c *fakeContext) FinalizeTable(string) error             { return nil }
func (c *fakeContext) CreateNamespace(string, operation.NamespaceFlag) error { return nil }
func (c *fakeContext) DropNamespace(string, operation.NamespaceFlag) error   { return nil }
func (c *fakeContext) WriteMetadataRow(operation.MetadataRow) error          { return nil }
func (c *fakeContext) ScanMetadata(string) []operation.MetadataRow           { return nil }
func (c *fakeContext) RemoveMetadataRows(string)                            {}
func (c *fakeContext) AllocateLocation(string, string, string) (string, error) {
	return "", nil
}
func (c *fakeContext) ForgetCompletedOperation(int64) {}
func (c *fakeContext) Submit(ops ...operation.Operation) []int64 { return nil }
func (c *fakeContext) NextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}
func (c *fakeContext) Now() time.Time { return time.Now() }
func (c *fakeContext) TestMode() bool { return true }

type recordingCompleter struct {
	mu    sync.Mutex
	order []int64
}

func (r *recordingCompleter) Complete(op operation.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, op.ID())
}

func (r *recordingCompleter) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.order))
	copy(out, r.order)
	return out
}

func waitForCompletions(t *testing.T, completer *recordingCompleter, n int) []int64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := completer.snapshot(); len(snap) >= n {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d completions", n)
	return nil
}

func TestExclusivityOrdersConflictingOperations(t *testing.T) {
	ctx := newFakeContext()
	completer := &recordingCompleter{}
	p := New(ctx, 4, completer)
	go p.Run()
	defer p.Stop(time.Second)

	first := operation.NewTest(1).WithExclusivity("table:t1")
	second := operation.NewTest(2).WithExclusivity("table:t1")
	p.Submit(first, second)

	order := waitForCompletions(t, completer, 2)
	require.Len(t, order, 2)
	assert.Equal(t, []int64{1, 2}, order, "exclusivity holders must queue in admission order")
}

func TestDependencyWaitsForExclusivityHolder(t *testing.T) {
	ctx := newFakeContext()
	completer := &recordingCompleter{}
	p := New(ctx, 4, completer)
	go p.Run()
	defer p.Stop(time.Second)

	holder := operation.NewTest(1).WithExclusivity("table:t2")
	dependent := operation.NewTest(2).WithDependency("table:t2")
	p.Submit(holder, dependent)

	order := waitForCompletions(t, completer, 2)
	require.Len(t, order, 2)
	assert.Equal(t, int64(1), order[0], "dependency must not complete before its exclusivity holder")
}

func TestIndependentOperationsRunConcurrently(t *testing.T) {
	ctx := newFakeContext()
	completer := &recordingCompleter{}
	p := New(ctx, 4, completer)
	go p.Run()
	defer p.Stop(time.Second)

	a := operation.NewTest(1).WithExclusivity("table:a")
	b := operation.NewTest(2).WithExclusivity("table:b")
	p.Submit(a, b)

	order := waitForCompletions(t, completer, 2)
	assert.ElementsMatch(t, []int64{1, 2}, order)
}

func TestSnapshotReturnsLiveOperations(t *testing.T) {
	ctx := newFakeContext()
	completer := &recordingCompleter{}
	p := New(ctx, 1, completer)

	// Run is deliberately not started: Submit only admits into the
	// graph, so the operation stays live for Snapshot to observe.
	op := operation.NewTest(1)
	p.Submit(op)

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].ID())
}
