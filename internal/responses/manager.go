// Package responses implements the Response Manager (C5, spec §4.5):
// completed operations are held so a client that only received an
// operation id back from its original RPC can retry FETCH_RESULT and
// get the encoded result, including across request retries that race
// the operation's own completion.
package responses

import (
	"sync"
	"time"

	"github.com/hypertable/master/internal/log"
	"github.com/hypertable/master/internal/metrics"
	"github.com/hypertable/master/internal/operation"
	"github.com/rs/zerolog"
)

// DeliveryInfo names where to send a deferred FETCH_RESULT reply.
type DeliveryInfo struct {
	RemoteAddr string
	RequestID  int64
}

// Deliverer sends a completed operation's encoded result to a previously
// registered delivery target. internal/dispatch implements this against
// the RPC transport.
type Deliverer interface {
	Deliver(info DeliveryInfo, op operation.Operation)
}

type entry struct {
	op             operation.Operation
	completionTime time.Time
}

// Manager holds completed operations and the delivery info registered
// against ids still awaiting a FETCH_RESULT.
type Manager struct {
	mu sync.Mutex

	byID     map[int64]*entry
	hashToID map[int64]int64
	pending  map[int64][]DeliveryInfo

	deliverer      Deliverer
	requestTimeout time.Duration

	logger zerolog.Logger
	stopCh chan struct{}
	stopped chan struct{}
}

func New(requestTimeout time.Duration, deliverer Deliverer) *Manager {
	return &Manager{
		byID:           make(map[int64]*entry),
		hashToID:       make(map[int64]int64),
		pending:        make(map[int64][]DeliveryInfo),
		deliverer:      deliverer,
		requestTimeout: requestTimeout,
		logger:         log.WithComponent("responses"),
		stopCh:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}
}

// SetDeliverer wires the Deliverer after construction, for callers where
// the Deliverer itself (internal/dispatch.Handler) needs the Manager to
// exist first.
func (m *Manager) SetDeliverer(d Deliverer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliverer = d
}

// Complete implements engine.Completer: index the operation by id and
// hash_code, and deliver immediately to any already-registered waiter
// (spec §4.5 "add_operation").
func (m *Manager) Complete(op operation.Operation) {
	m.mu.Lock()
	m.byID[op.ID()] = &entry{op: op, completionTime: time.Now()}
	m.hashToID[op.HashCode()] = op.ID()
	waiters := m.pending[op.ID()]
	delete(m.pending, op.ID())
	deliverer := m.deliverer
	metrics.ResponseManagerSize.Set(float64(len(m.byID)))
	m.mu.Unlock()

	if deliverer == nil {
		return
	}
	for _, info := range waiters {
		deliverer.Deliver(info, op)
	}
}

// AddDeliveryInfo registers where to send the result for id. If the
// operation has already completed it delivers immediately and returns
// true; otherwise it parks info for Complete to find later (spec §4.5
// "add_delivery_info").
func (m *Manager) AddDeliveryInfo(id int64, info DeliveryInfo) bool {
	m.mu.Lock()
	e, ok := m.byID[id]
	if !ok {
		m.pending[id] = append(m.pending[id], info)
		m.mu.Unlock()
		return false
	}
	deliverer := m.deliverer
	m.mu.Unlock()

	if deliverer != nil {
		deliverer.Deliver(info, e.op)
	}
	return true
}

// Get looks up a completed operation by id, used by FETCH_RESULT's
// immediate-reply path.
func (m *Manager) Get(id int64) (operation.Operation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return e.op, true
}

// OperationComplete is the retry-collapse existence query MoveRange uses
// (spec §4.5 "operation_complete").
func (m *Manager) OperationComplete(hashCode int64) (operation.Operation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.hashToID[hashCode]
	if !ok {
		return nil, false
	}
	e, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return e.op, true
}

// Remove retires a completed operation by hash_code, used by
// RelinquishAcknowledge once its twin MoveRange has been acknowledged
// (spec §4.5 "remove_operation"). Returns the removed operation so the
// caller can write its Meta-Log removal entry (spec §4.1
// "record_removal"), or nil if no such completed operation was held.
func (m *Manager) Remove(hashCode int64) operation.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.hashToID[hashCode]
	if !ok {
		return nil
	}
	e := m.byID[id]
	delete(m.hashToID, hashCode)
	delete(m.byID, id)
	metrics.ResponseManagerSize.Set(float64(len(m.byID)))
	if e == nil {
		return nil
	}
	return e.op
}

// keptForever reports the one named exception to the age-based eviction
// policy (spec §4.5: "Initialize is kept forever").
func keptForever(op operation.Operation) bool {
	return op.Name() == "Initialize"
}

// Start runs the background ager (spec §4.5 "Thread model": "a single
// background thread runs the ager").
func (m *Manager) Start() {
	go m.ageLoop()
}

func (m *Manager) ageLoop() {
	defer close(m.stopped)

	interval := m.requestTimeout
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweep() {
	cutoff := 2 * m.requestTimeout
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.byID {
		if keptForever(e.op) || e.op.RemoveExplicitly() {
			continue
		}
		if now.Sub(e.completionTime) <= cutoff {
			continue
		}
		delete(m.byID, id)
		delete(m.hashToID, e.op.HashCode())
		m.logger.Debug().Int64("id", id).Msg("evicted aged response")
	}
	metrics.ResponseManagerSize.Set(float64(len(m.byID)))
}

// Stop ends the ager goroutine.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.stopped
}
