package operation

import (
	"sync"
	"time"

	"github.com/hypertable/master/internal/operr"
)

// Operation is the common interface every concrete operation type
// implements (spec §4.3). Unlike the original C++ interface, errors are
// explicit Go returns rather than exceptions: Execute itself never
// "throws" — local recoverable errors are absorbed internally and only
// induced-failure/fatal conditions propagate as a non-nil error, which the
// engine treats as cause to shut the processor down (spec §4.3 "Error
// semantics").
type Operation interface {
	ID() int64
	EntityType() EntityType
	Name() string
	Label() string

	// Execute advances the state machine at most one state boundary.
	Execute(ctx Context) error

	State() State
	SetState(State)
	IsBlocked() bool
	IsComplete() bool
	Unblock()

	// HashCode identifies the logical request for dedup purposes; default
	// is the operation id, overridden by MoveRange (RelinquishAcknowledge
	// keeps the default).
	HashCode() int64

	Exclusivities() DependencySet
	Dependencies() DependencySet
	Obstructions() DependencySet

	IsPerpetual() bool
	RemoveExplicitly() bool

	ExpirationTime() time.Time

	CompleteError(code operr.Code, msg string)
	CompleteOK()

	Error() (operr.Code, string)

	// DrainSubOperations returns and clears any child operations queued
	// during the most recent Execute call (spec §4.4 "Sub-operations").
	DrainSubOperations() []Operation

	// EncodeState/DecodeState serialize the in-flight, type-specific
	// fields for Meta-Log persistence and replay.
	EncodeState() []byte
	DecodeState([]byte) error

	// EncodeResult/DecodeResult serialize the completion outcome: empty
	// for success by default, (error, msg) for error.
	EncodeResult() []byte
	DecodeResult([]byte) error
}

// Base provides the fields and bookkeeping shared by every concrete
// operation, mirroring the original Operation base class's protected
// fields (m_mutex, m_state, m_expiration_time, m_error, m_error_msg, the
// three dependency sets, m_sub_ops) translated to explicit Go state
// instead of inherited C++ members.
type Base struct {
	mu sync.Mutex

	id            int64
	state         State
	expirationTime time.Time
	errCode       operr.Code
	errMsg        string

	exclusivities DependencySet
	dependencies  DependencySet
	obstructions  DependencySet

	subOps []Operation
}

// NewBase constructs a Base with a fresh id and empty dependency sets.
func NewBase(id int64, timeout time.Duration) Base {
	return Base{
		id:             id,
		state:          Initial,
		expirationTime: time.Now().Add(timeout),
		exclusivities:  NewDependencySet(),
		dependencies:   NewDependencySet(),
		obstructions:   NewDependencySet(),
	}
}

func (b *Base) ID() int64 { return b.id }

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) SetState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *Base) IsBlocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Blocked
}

func (b *Base) IsComplete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Complete
}

func (b *Base) Unblock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Started
}

func (b *Base) HashCode() int64 { return b.id }

func (b *Base) Exclusivities() DependencySet { return b.exclusivities }
func (b *Base) Dependencies() DependencySet  { return b.dependencies }
func (b *Base) Obstructions() DependencySet  { return b.obstructions }

func (b *Base) IsPerpetual() bool      { return false }
func (b *Base) RemoveExplicitly() bool { return false }

func (b *Base) ExpirationTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expirationTime
}

// CompleteError implements the common failure path (spec §4.3): sets
// state to COMPLETE, records (error, msg), clears the three dependency
// sets.
func (b *Base) CompleteError(code operr.Code, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Complete
	b.errCode = code
	b.errMsg = msg
	b.exclusivities.Clear()
	b.dependencies.Clear()
	b.obstructions.Clear()
}

func (b *Base) CompleteOK() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Complete
	b.errCode = operr.OK
	b.errMsg = ""
	b.exclusivities.Clear()
	b.dependencies.Clear()
	b.obstructions.Clear()
}

func (b *Base) Error() (operr.Code, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errCode, b.errMsg
}

func (b *Base) PushSubOperation(op Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subOps = append(b.subOps, op)
}

func (b *Base) DrainSubOperations() []Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := b.subOps
	b.subOps = nil
	return ops
}

// EncodeResult/DecodeResult give every operation the spec's default
// result encoding (empty on success, error code + message on failure);
// types with a richer success payload (e.g. GetSchema) override both.
func (b *Base) EncodeResult() []byte {
	code, msg := b.Error()
	if code == operr.OK {
		return nil
	}
	buf := make([]byte, 4+4+len(msg))
	putInt32(buf[0:4], int32(code))
	putInt32(buf[4:8], int32(len(msg)))
	copy(buf[8:], msg)
	return buf
}

func (b *Base) DecodeResult(buf []byte) error {
	if len(buf) == 0 {
		b.errCode = operr.OK
		return nil
	}
	if len(buf) < 8 {
		return errShortResult
	}
	code := getInt32(buf[0:4])
	n := getInt32(buf[4:8])
	if len(buf) < int(8+n) {
		return errShortResult
	}
	b.errCode = operr.Code(code)
	b.errMsg = string(buf[8 : 8+n])
	return nil
}
