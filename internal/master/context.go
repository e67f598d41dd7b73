// Package master assembles the Context façade (C6, spec §4.6): the
// shared, post-bootstrap bundle every Operation's Execute call receives,
// plus the mutable state (registry, response manager, table/namespace
// maps) protected by its own mutex. Grounded on the teacher's
// pkg/manager/manager.go Manager-struct shape (store/tokenManager/
// secretsManager/ca/eventBroker/raft handles bundled behind a Config and
// a Bootstrap/Shutdown lifecycle); the raft/FSM/CA/ACME/ingress machinery
// that struct bundles has no place here and is replaced with the spec's
// C6 handle set.
package master

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypertable/master/internal/engine"
	"github.com/hypertable/master/internal/lockservice"
	"github.com/hypertable/master/internal/log"
	"github.com/hypertable/master/internal/mml"
	"github.com/hypertable/master/internal/operation"
	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/rangeserver"
	"github.com/hypertable/master/internal/registry"
	"github.com/hypertable/master/internal/responses"
)

// MasterFilePath is the lock-service file the single-master election
// locks and the address/next_server_id attributes live on (spec §4.8
// steps 2-3).
const MasterFilePath = "/hypertable/master"

var contextLogger = log.WithComponent("master")

// registryResolver adapts the registry's public-address lookup to
// rangeserver.AddressResolver.
type registryResolver struct {
	reg *registry.Registry
}

func (r registryResolver) Addr(location string) (string, bool) {
	conn, ok := r.reg.FindByLocation(location)
	if !ok || !conn.Connected {
		return "", false
	}
	return conn.PublicAddr, true
}

// Context is the concrete operation.Context implementation.
type Context struct {
	lock      lockservice.Service
	reg       *registry.Registry
	rsClient  *rangeserver.Client
	mmlWriter *mml.Writer
	resp      *responses.Manager
	processor *engine.Processor

	testMode bool
	nextID   int64 // atomic

	mu         sync.Mutex
	idsByName  map[string]string
	namesByID  map[string]string
	schemas    map[string]string
	metadata   map[string][]operation.MetadataRow
}

// New builds a Context. The processor field is wired afterward via
// SetProcessor, since the processor itself is constructed with this
// Context as its operation.Context.
func New(lock lockservice.Service, reg *registry.Registry, rsClient *rangeserver.Client, mmlWriter *mml.Writer, resp *responses.Manager, testMode bool) *Context {
	return &Context{
		lock:      lock,
		reg:       reg,
		rsClient:  rsClient,
		mmlWriter: mmlWriter,
		resp:      resp,
		testMode:  testMode,
		idsByName: make(map[string]string),
		namesByID: make(map[string]string),
		schemas:   make(map[string]string),
		metadata:  make(map[string][]operation.MetadataRow),
	}
}

// SetProcessor completes the wiring between the Context and the engine
// Processor it submits work to; call once, before Run.
func (c *Context) SetProcessor(p *engine.Processor) { c.processor = p }

// Resolver returns the rangeserver.AddressResolver backed by c's registry,
// for building the rangeserver.Client before the Context itself exists.
func (c *Context) Resolver() rangeserver.AddressResolver { return registryResolver{reg: c.reg} }

func (c *Context) Lockservice() lockservice.Service  { return c.lock }
func (c *Context) Registry() *registry.Registry      { return c.reg }
func (c *Context) RangeServers() *rangeserver.Client { return c.rsClient }
func (c *Context) MML() *mml.Writer                  { return c.mmlWriter }

func canonicalTableName(name string) string {
	return path.Clean("/" + strings.TrimPrefix(name, "/"))
}

// AllocateTableID creates a fresh path-like table id under name (spec
// §4.3 CreateTable "assign id"). Table ids are the lock-service path
// itself, mirroring the original master's use of a Hyperspace file per
// table.
func (c *Context) AllocateTableID(name string) (string, error) {
	name = canonicalTableName(name)

	c.mu.Lock()
	if _, exists := c.idsByName[name]; exists {
		c.mu.Unlock()
		return "", operr.ErrAlreadyExists
	}
	c.mu.Unlock()

	tableID := path.Join("/tables", name)
	if err := c.lock.Create(tableID, false); err != nil {
		if err == lockservice.ErrExists {
			return "", operr.ErrAlreadyExists
		}
		return "", err
	}

	c.mu.Lock()
	c.idsByName[name] = tableID
	c.namesByID[tableID] = name
	c.mu.Unlock()
	return tableID, nil
}

func (c *Context) ResolveTableID(name string) (string, bool) {
	name = canonicalTableName(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.idsByName[name]
	return id, ok
}

func (c *Context) RemoveTableMapping(name string) error {
	name = canonicalTableName(name)
	c.mu.Lock()
	id, ok := c.idsByName[name]
	if ok {
		delete(c.idsByName, name)
		delete(c.namesByID, id)
		delete(c.schemas, id)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.lock.Unlink(id)
}

func (c *Context) RenameTableMapping(oldName, newName string) error {
	oldName = canonicalTableName(oldName)
	newName = canonicalTableName(newName)

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.idsByName[oldName]
	if !ok {
		return operr.ErrNotFound
	}
	if _, taken := c.idsByName[newName]; taken {
		return operr.ErrAlreadyExists
	}
	delete(c.idsByName, oldName)
	c.idsByName[newName] = id
	c.namesByID[id] = newName
	return nil
}

func (c *Context) SetTableSchema(tableID, schema string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[tableID] = schema
	return nil
}

func (c *Context) GetTableSchema(tableID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.schemas[tableID]
	return s, ok
}

// FinalizeTable marks a table visible to clients. The in-memory model
// has nothing further to flip: visibility is already implied by the
// name->id mapping existing, so this is a no-op kept for symmetry with
// the spec's named FINALIZE state.
func (c *Context) FinalizeTable(tableID string) error { return nil }

func (c *Context) CreateNamespace(p string, flags operation.NamespaceFlag) error {
	if c.lock.Exists(p) {
		if flags.Has(operation.NamespaceIfNotExists) {
			return nil
		}
		return operr.ErrAlreadyExists
	}
	if flags.Has(operation.NamespaceCreateIntermediate) {
		return c.lock.Mkdirs(p)
	}
	return c.lock.Create(p, false)
}

func (c *Context) DropNamespace(p string, flags operation.NamespaceFlag) error {
	if !c.lock.Exists(p) {
		if flags.Has(operation.NamespaceIfExists) {
			return nil
		}
		return operr.ErrNotFound
	}
	return c.lock.Unlink(p)
}

func (c *Context) WriteMetadataRow(row operation.MetadataRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[row.TableID] = append(c.metadata[row.TableID], row)
	return nil
}

func (c *Context) ScanMetadata(tableID string) []operation.MetadataRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.metadata[tableID]
	out := make([]operation.MetadataRow, len(rows))
	copy(out, rows)
	return out
}

func (c *Context) RemoveMetadataRows(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metadata, tableID)
}

// AllocateLocation resolves or allocates the proxy name for a
// registering range server (spec §4.3 RegisterServer): prefer a record
// matched by hostname, else by public address, else a fresh rs<N> drawn
// from the master file's next_server_id counter.
func (c *Context) AllocateLocation(hostname, localAddr, publicAddr string) (string, error) {
	if conn, ok := c.reg.FindByHostname(hostname); ok {
		return conn.Location, nil
	}
	if conn, ok := c.reg.FindByPublicAddr(publicAddr); ok {
		return conn.Location, nil
	}

	n, err := c.lock.IncrAttr(MasterFilePath, "next_server_id", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rs%d", n), nil
}

// ForgetCompletedOperation retires a completed operation from the
// response manager and, for one tracked with RemoveExplicitly() (only
// MoveRange, per its RelinquishAcknowledge twin), writes the Meta-Log
// removal entry that drops it from replay (spec §4.1 "record_removal",
// §4.3 RelinquishAcknowledge).
func (c *Context) ForgetCompletedOperation(hashCode int64) {
	op := c.resp.Remove(hashCode)
	if op == nil || !op.RemoveExplicitly() {
		return
	}
	if err := c.mmlWriter.RecordRemoval(operation.AsEntity(op)); err != nil {
		contextLogger.Error().Err(err).Int64("id", op.ID()).
			Msg("mml record_removal failed for completed operation")
	}
}

func (c *Context) Submit(ops ...operation.Operation) []int64 {
	return c.processor.Submit(ops...)
}

func (c *Context) NextID() int64 {
	return atomic.AddInt64(&c.nextID, 1)
}

func (c *Context) Now() time.Time { return time.Now() }

func (c *Context) TestMode() bool { return c.testMode }
