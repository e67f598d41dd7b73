package engine

import (
	"sync"
	"time"

	"github.com/hypertable/master/internal/log"
	"github.com/hypertable/master/internal/metrics"
	"github.com/hypertable/master/internal/mml"
	"github.com/hypertable/master/internal/operation"
	"github.com/rs/zerolog"
)

// Completer receives operations as they complete, so the response
// manager (C5) can serve FETCH_RESULT without the engine knowing
// anything about delivery semantics.
type Completer interface {
	Complete(op operation.Operation)
}

// Processor is the Operation Processor (C4): a directed graph of live
// operations plus a fixed-size worker pool (spec §4.4).
type Processor struct {
	mu   sync.Mutex
	cond *sync.Cond

	logger zerolog.Logger

	ctx     operation.Context
	graph   *graph
	workers int
	sem     chan struct{}

	completer Completer

	classes    [][]int64
	classIndex int
	stopping   bool
	stopped    chan struct{}
}

// New builds a Processor with the given worker count bound to ctx, the
// shared operation context every Execute call receives.
func New(ctx operation.Context, workers int, completer Completer) *Processor {
	if workers < 1 {
		workers = 1
	}
	p := &Processor{
		logger:    log.WithComponent("engine"),
		ctx:       ctx,
		graph:     newGraph(),
		workers:   workers,
		sem:       make(chan struct{}, workers),
		completer: completer,
		stopped:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Submit admits one or more operations and wakes the scheduler.
func (p *Processor) Submit(ops ...operation.Operation) []int64 {
	p.mu.Lock()
	ids := make([]int64, len(ops))
	admitted := make([]operation.Operation, 0, len(ops))
	for i, op := range ops {
		if existing, ok := p.graph.vertices[op.ID()]; ok {
			p.logger.Warn().Int64("id", op.ID()).Msg("operation already admitted, ignoring duplicate submit")
			ids[i] = existing.op.ID()
			continue
		}
		p.graph.admit(op)
		ids[i] = op.ID()
		admitted = append(admitted, op)
	}
	metrics.OperationsLive.Set(float64(len(p.graph.vertices)))
	p.cond.Broadcast()
	p.mu.Unlock()

	// record_state(entities...): newly admitted operations become
	// durable as one atomic batch, off the processor mutex (spec §4.1,
	// §4.4 "Concurrency contract").
	p.persistStates(admitted...)
	return ids
}

// persistStates writes ops to the Meta-Log as a single atomic append.
// Always called off p.mu. A nil MML writer (test doubles) is a no-op.
func (p *Processor) persistStates(ops ...operation.Operation) {
	if len(ops) == 0 {
		return
	}
	w := p.ctx.MML()
	if w == nil {
		return
	}
	entities := make([]mml.Entity, len(ops))
	for i, op := range ops {
		entities[i] = operation.AsEntity(op)
	}
	if err := w.RecordStates(entities...); err != nil {
		p.logger.Error().Err(err).Msg("mml record_state failed, operation durability compromised")
	}
}

// Live reports whether an operation with the given hash code is
// currently in the graph, for request-driven dedup (spec §3 "In-progress
// set").
func (p *Processor) Live(hashCode int64) (operation.Operation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.graph.vertices {
		if v.op.HashCode() == hashCode {
			return v.op, true
		}
	}
	return nil, false
}

// Snapshot returns every operation currently live in the graph, for
// callers that need to check what's already admitted (e.g. cmd/master's
// recovery check for a dropped perpetual operation) without a dedicated
// per-type query method.
func (p *Processor) Snapshot() []operation.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]operation.Operation, 0, len(p.graph.vertices))
	for _, v := range p.graph.vertices {
		out = append(out, v.op)
	}
	return out
}

// Run starts the scheduling loop; it blocks until Stop is called or
// drain completes. Call it from its own goroutine.
func (p *Processor) Run() {
	defer close(p.stopped)

	for {
		p.mu.Lock()
		for {
			if p.stopping && len(p.graph.vertices) == 0 {
				p.mu.Unlock()
				return
			}
			if p.graph.dirty {
				p.classes = p.graph.recompute()
				p.classIndex = 0
			}
			if candidates := p.readyInCurrentClass(); len(candidates) > 0 {
				break
			}
			if p.advanceClass() {
				continue
			}
			if p.stopping {
				p.mu.Unlock()
				return
			}
			p.cond.Wait()
		}

		candidates := p.readyInCurrentClass()
		for _, id := range candidates {
			v := p.graph.vertices[id]
			v.taken = true
			p.dispatch(v)
		}
		p.mu.Unlock()
	}
}

// readyInCurrentClass returns live, untaken, non-blocked vertices in the
// current exec_time class. Caller holds p.mu.
func (p *Processor) readyInCurrentClass() []int64 {
	if p.classIndex >= len(p.classes) {
		return nil
	}
	var ready []int64
	for _, id := range p.classes[p.classIndex] {
		v, ok := p.graph.vertices[id]
		if !ok || v.taken || v.op.IsBlocked() {
			continue
		}
		ready = append(ready, id)
	}
	return ready
}

// advanceClass moves to the next exec_time class unless a member of the
// current class is still taken (running); blocked members do not hold up
// the class (spec §4.4 step 2, Open Question 1: the class advances even
// if blocked members remain, with a warning).
func (p *Processor) advanceClass() bool {
	if p.classIndex >= len(p.classes) {
		return false
	}
	blocked := 0
	taken := 0
	for _, id := range p.classes[p.classIndex] {
		v, ok := p.graph.vertices[id]
		if !ok {
			continue
		}
		if v.taken {
			taken++
		} else if v.op.IsBlocked() {
			blocked++
		}
	}
	if taken > 0 {
		return false
	}
	if blocked > 0 {
		p.logger.Warn().Int("class", p.classIndex).Int("blocked", blocked).
			Msg("class advanced past blocked members")
	}
	p.classIndex++
	return true
}

// dispatch hands v to a worker goroutine, bounded by the worker-count
// semaphore. Execute() never runs under p.mu (spec §4.4 "Concurrency
// contract").
func (p *Processor) dispatch(v *vertex) {
	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		priorState := v.op.State()
		timer := metrics.NewTimer()
		err := v.op.Execute(p.ctx)
		timer.ObserveDurationVec(metrics.OperationExecDuration, v.op.Name())
		if err != nil {
			p.logger.Error().Err(err).Int64("id", v.op.ID()).Str("type", v.op.Name()).
				Msg("operation execute returned induced error, shutting processor down")
		}

		p.mu.Lock()
		toPersist := p.onExecuteReturn(v, priorState, err)
		p.cond.Broadcast()
		p.mu.Unlock()

		// Every state boundary the state machine crosses is durable
		// before the scheduler treats it as ground truth (spec §4.1,
		// §4.4 step 3 "(a) writes the new state to MML and returns").
		// This MML write happens off p.mu, never under it.
		p.persistStates(toPersist...)
	}()
}

// onExecuteReturn applies spec §4.4 step 3. Caller holds p.mu. Returns
// the operations whose state must be persisted to the Meta-Log next,
// batched with any sub-operations admitted in the same step so a parent
// becomes durable together with its children (spec §4.1
// "record_state(entities…)").
func (p *Processor) onExecuteReturn(v *vertex, priorState operation.State, execErr error) []operation.Operation {
	v.taken = false
	id := v.op.ID()

	children := v.op.DrainSubOperations()
	for _, child := range children {
		p.graph.admit(child)
		p.graph.addPermanentEdge(id, child.ID())
	}
	toPersist := append([]operation.Operation{v.op}, children...)

	switch {
	case v.op.IsComplete():
		code, _ := v.op.Error()
		outcome := "ok"
		if code != 0 {
			outcome = "error"
		}
		metrics.OperationsCompletedTotal.WithLabelValues(v.op.Name(), outcome).Inc()

		p.graph.purge(id)
		if v.op.IsPerpetual() {
			if fresh, ok := operation.New(v.op.EntityType(), p.ctx.NextID()); ok {
				p.graph.admit(fresh)
				toPersist = append(toPersist, fresh)
			}
		}
		if p.completer != nil {
			p.completer.Complete(v.op)
		}

	case v.op.IsBlocked():
		// left in the graph; readyInCurrentClass/advanceClass skip it.

	default:
		p.graph.redeclare(id)
	}

	metrics.OperationsLive.Set(float64(len(p.graph.vertices)))
	blocked := 0
	for _, vv := range p.graph.vertices {
		if vv.op.IsBlocked() {
			blocked++
		}
	}
	metrics.OperationsBlocked.Set(float64(blocked))

	if execErr != nil {
		p.stopping = true
	}

	return toPersist
}

// Stop signals shutdown and waits up to timeout for the graph to drain
// (spec §5: "Shutdown waits at most 15 seconds for graceful drain and
// then exits").
func (p *Processor) Stop(timeout time.Duration) {
	p.mu.Lock()
	p.stopping = true
	p.cond.Broadcast()
	p.mu.Unlock()

	select {
	case <-p.stopped:
	case <-time.After(timeout):
		p.logger.Warn().Msg("processor drain timed out, exiting anyway")
	}
}
