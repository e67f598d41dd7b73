package master

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hypertable/master/internal/config"
	"github.com/hypertable/master/internal/engine"
	"github.com/hypertable/master/internal/lockservice"
	"github.com/hypertable/master/internal/log"
	"github.com/hypertable/master/internal/mml"
	"github.com/hypertable/master/internal/operation"
	"github.com/hypertable/master/internal/rangeserver"
	"github.com/hypertable/master/internal/registry"
	"github.com/hypertable/master/internal/responses"
	"github.com/hypertable/master/internal/rpc"
)

// SystemSchemaVersion is the target schema text SystemUpgrade compares
// against the METADATA/RS_METRICS tables' persisted schema on every
// bootstrap (spec §4.8 step 6).
const SystemSchemaVersion = "v1"

// Runtime is everything Bootstrap assembles: the Context, the engine
// Processor running against it, and the response manager feeding
// FETCH_RESULT. cmd/master wires a dispatch.Handler and an RPC listener
// around it.
type Runtime struct {
	Context    *Context
	Processor  *engine.Processor
	Responses  *responses.Manager
	MML        *mml.Writer
	lockHandle lockservice.Handle
	lock       lockservice.Service
}

// Bootstrap runs the sequence in spec §4.8, steps 1-8 (step 9, "start
// listening", is cmd/master's job once it has a dispatch.Handler).
func Bootstrap(cfg *config.Config, lock lockservice.Service, fs mml.Filesystem, transport rpc.Transport, publicAddr string, testMode bool) (*Runtime, error) {
	logger := log.WithComponent("bootstrap")

	// Step 1: top-level directories.
	if err := lock.Mkdirs("/servers"); err != nil {
		return nil, fmt.Errorf("bootstrap: mkdirs /servers: %w", err)
	}
	if err := lock.Mkdirs("/tables"); err != nil {
		return nil, fmt.Errorf("bootstrap: mkdirs /tables: %w", err)
	}

	// Step 2: exclusive master-file lock, single-master election.
	var handle lockservice.Handle
	for {
		h, err := lock.Lock(MasterFilePath)
		if err == nil {
			handle = h
			break
		}
		if err != lockservice.ErrLocked {
			return nil, fmt.Errorf("bootstrap: lock %s: %w", MasterFilePath, err)
		}
		logger.Warn().Str("path", MasterFilePath).Msg("master file already locked, retrying in 15s")
		time.Sleep(15 * time.Second)
	}

	// Step 3: address + next_server_id attributes.
	if err := lock.SetAttr(MasterFilePath, "address", []byte(publicAddr)); err != nil {
		return nil, fmt.Errorf("bootstrap: set address attr: %w", err)
	}
	if _, exists, err := lock.GetAttr(MasterFilePath, "next_server_id"); err != nil {
		return nil, fmt.Errorf("bootstrap: get next_server_id attr: %w", err)
	} else if !exists {
		if _, err := lock.IncrAttr(MasterFilePath, "next_server_id", 0); err != nil {
			return nil, fmt.Errorf("bootstrap: init next_server_id attr: %w", err)
		}
	}

	// Step 4: /servers, /tables, root file.
	if err := lock.Mkdirs("/servers"); err != nil {
		return nil, err
	}
	if err := lock.Mkdirs("/tables"); err != nil {
		return nil, err
	}
	if err := lock.Create("/root", true); err != nil {
		return nil, fmt.Errorf("bootstrap: create /root: %w", err)
	}

	reg := registry.New()

	mmlDir := filepath.Join(cfg.DataDirectory, "run", "mml")
	backupDir := filepath.Join(cfg.DataDirectory, "run", "log_backup", "mml")

	definition := operation.Definition()
	definition.Register(registry.EntityType, registry.Decode)

	// Step 5: replay the MML, reconstruct the registry and pending
	// operations, and recover disconnected range-server connections.
	entities, err := mml.Replay(fs, definition, mmlDir)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: replay mml: %w", err)
	}

	var pendingOps []operation.Operation
	for _, e := range entities {
		if conn, ok := registry.FromEntity(e); ok {
			reg.Install(conn)
			continue
		}
		if op, ok := operation.FromEntity(e); ok {
			pendingOps = append(pendingOps, op)
		}
	}

	mmlWriter, err := mml.NewWriter(fs, definition, mmlDir, backupDir)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open mml writer: %w", err)
	}
	reg.SetWriter(mmlWriter)

	resp := responses.New(cfg.RequestTimeout, nil) // Deliverer wired by cmd/master once the dispatch.Handler exists
	rsClient := rangeserver.New(transport, nil, cfg.RequestTimeout)
	rsClient.TestMode = testMode

	ctx := New(lock, reg, rsClient, mmlWriter, resp, testMode)
	rsClient.Resolve = ctx.Resolver()

	processor := engine.New(ctx, cfg.MasterWorkers, resp)
	ctx.SetProcessor(processor)

	for _, conn := range reg.GetServers() {
		if !conn.Connected {
			op := operation.NewRecoverServer(ctx.NextID(), conn.Location)
			processor.Submit(op)
		}
	}
	for _, op := range pendingOps {
		processor.Submit(op)
	}

	go processor.Run()

	// Step 6: SystemUpgrade, drain before proceeding.
	upgrade := operation.NewSystemUpgrade(ctx.NextID(), "/sys/METADATA", "/sys/RS_METRICS", SystemSchemaVersion)
	ids := processor.Submit(upgrade)
	waitForCompletion(processor, ids[0])

	// Step 7: if the MML held no operations at all, this is a bare
	// cluster; admit a fresh Initialize.
	if len(pendingOps) == 0 {
		init := operation.NewInitialize(ctx.NextID())
		processor.Submit(init)
	}

	// Step 8: perpetual WaitForServers.
	processor.Submit(operation.NewWaitForServers(ctx.NextID()))

	return &Runtime{
		Context:    ctx,
		Processor:  processor,
		Responses:  resp,
		MML:        mmlWriter,
		lockHandle: handle,
		lock:       lock,
	}, nil
}

// waitForCompletion polls Live() until id is no longer in the graph,
// i.e. it purged on completion (spec §4.8 step 6: "wait for the
// processor to drain").
func waitForCompletion(p *engine.Processor, id int64) {
	for {
		if _, ok := p.Live(id); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
