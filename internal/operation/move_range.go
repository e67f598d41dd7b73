package operation

import (
	"hash/fnv"

	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/rangeserver"
)

func init() {
	Register(TypeMoveRange, func(id int64) Operation { return NewMoveRange(id, "", "", "", "", "") })
	Register(TypeRelinquishAcknowledge, func(id int64) Operation { return NewRelinquishAcknowledge(id, "", "", "", "") })
}

// rangeHashCode hashes the range identity (table, rows, qualifier) so
// duplicate requests for the same range collapse onto one in-progress
// operation (spec §3 "In-progress set").
func rangeHashCode(tableID, startRow, endRow, qualifier string) int64 {
	h := fnv.New64a()
	h.Write([]byte(tableID))
	h.Write([]byte{0})
	h.Write([]byte(startRow))
	h.Write([]byte{0})
	h.Write([]byte(endRow))
	h.Write([]byte{0})
	h.Write([]byte(qualifier))
	return int64(h.Sum64())
}

// RangeHashCode exports rangeHashCode for internal/dispatch's MOVE_RANGE
// dedup check, which must compute the same hash code before an operation
// exists to look it up against the processor/response manager.
func RangeHashCode(tableID, startRow, endRow, qualifier string) int64 {
	return rangeHashCode(tableID, startRow, endRow, qualifier)
}

func rangeExclusivityKey(tableID, startRow, endRow string) string {
	return "range:" + tableID + "|" + startRow + "|" + endRow
}

// MoveRange runs INITIAL -> STARTED -> LOAD_RANGE -> COMPLETE (spec
// §4.3). Dedup against the in-progress set and the response manager
// happens before admission (C7's dispatch special case); HashCode here
// is what that dedup keys on. The range is not considered moved until a
// separate RelinquishAcknowledge arrives.
type MoveRange struct {
	Base

	TableID           string
	StartRowExclusive string
	EndRowInclusive   string
	Qualifier         string
	Destination       string
}

func NewMoveRange(id int64, tableID, startRow, endRow, qualifier, destination string) *MoveRange {
	op := &MoveRange{
		Base:              NewBase(id, 0),
		TableID:           tableID,
		StartRowExclusive: startRow,
		EndRowInclusive:   endRow,
		Qualifier:         qualifier,
		Destination:       destination,
	}
	op.Exclusivities().Add(rangeExclusivityKey(tableID, startRow, endRow))
	return op
}

func (op *MoveRange) EntityType() EntityType { return TypeMoveRange }
func (op *MoveRange) Name() string            { return "MoveRange" }
func (op *MoveRange) Label() string          { return "MoveRange " + op.TableID }

func (op *MoveRange) HashCode() int64 {
	return rangeHashCode(op.TableID, op.StartRowExclusive, op.EndRowInclusive, op.Qualifier)
}

// RemoveExplicitly is true for MoveRange: a completed move stays in the
// response manager (and, if durable, the Meta-Log) until a separate
// RelinquishAcknowledge retires it explicitly, never by age-based
// eviction (spec §9 Open Question 2; original_source's
// OperationMoveRange constructor sets m_remove_explicitly(true)).
func (op *MoveRange) RemoveExplicitly() bool { return true }

func (op *MoveRange) Execute(ctx Context) error {
	switch op.State() {
	case Initial:
		op.SetState(Started)
		return nil

	case Started:
		op.SetState(LoadRange)
		return nil

	case LoadRange:
		if ctx.TestMode() {
			op.CompleteOK()
			return nil
		}
		_, err := ctx.RangeServers().LoadRange(op.Destination, rangeserver.LoadRangeRequest{
			TableID:           op.TableID,
			StartRowExclusive: op.StartRowExclusive,
			EndRowInclusive:   op.EndRowInclusive,
		})
		if err != nil && !tolerableLoadError(err) {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.CompleteOK()
		return nil
	}
	return nil
}

func (op *MoveRange) EncodeState() []byte {
	buf := make([]byte, stringLen(op.TableID)+stringLen(op.StartRowExclusive)+stringLen(op.EndRowInclusive)+stringLen(op.Qualifier)+stringLen(op.Destination))
	n := putString(buf, op.TableID)
	n += putString(buf[n:], op.StartRowExclusive)
	n += putString(buf[n:], op.EndRowInclusive)
	n += putString(buf[n:], op.Qualifier)
	putString(buf[n:], op.Destination)
	return buf
}

func (op *MoveRange) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	t, n, err := getString(buf)
	if err != nil {
		return err
	}
	s, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n2
	e, n3, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n3
	q, n4, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n4
	d, _, err := getString(buf[n:])
	if err != nil {
		return err
	}
	op.TableID, op.StartRowExclusive, op.EndRowInclusive, op.Qualifier, op.Destination = t, s, e, q, d
	op.Exclusivities().Add(rangeExclusivityKey(t, s, e))
	return nil
}

// RelinquishAcknowledge retires the corresponding MoveRange from the
// response manager and completes immediately; its dependency on the
// MoveRange's exclusivity key ensures ordering (spec §4.3).
type RelinquishAcknowledge struct {
	Base

	TableID           string
	StartRowExclusive string
	EndRowInclusive   string
	Qualifier         string
}

func NewRelinquishAcknowledge(id int64, tableID, startRow, endRow, qualifier string) *RelinquishAcknowledge {
	op := &RelinquishAcknowledge{
		Base:              NewBase(id, 0),
		TableID:           tableID,
		StartRowExclusive: startRow,
		EndRowInclusive:   endRow,
		Qualifier:         qualifier,
	}
	op.Dependencies().Add(rangeExclusivityKey(tableID, startRow, endRow))
	return op
}

func (op *RelinquishAcknowledge) EntityType() EntityType { return TypeRelinquishAcknowledge }
func (op *RelinquishAcknowledge) Name() string            { return "RelinquishAcknowledge" }
func (op *RelinquishAcknowledge) Label() string          { return "RelinquishAcknowledge " + op.TableID }

func (op *RelinquishAcknowledge) Execute(ctx Context) error {
	ctx.ForgetCompletedOperation(rangeHashCode(op.TableID, op.StartRowExclusive, op.EndRowInclusive, op.Qualifier))
	op.CompleteOK()
	return nil
}

func (op *RelinquishAcknowledge) EncodeState() []byte {
	buf := make([]byte, stringLen(op.TableID)+stringLen(op.StartRowExclusive)+stringLen(op.EndRowInclusive)+stringLen(op.Qualifier))
	n := putString(buf, op.TableID)
	n += putString(buf[n:], op.StartRowExclusive)
	n += putString(buf[n:], op.EndRowInclusive)
	putString(buf[n:], op.Qualifier)
	return buf
}

func (op *RelinquishAcknowledge) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	t, n, err := getString(buf)
	if err != nil {
		return err
	}
	s, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n2
	e, n3, err := getString(buf[n:])
	if err != nil {
		return err
	}
	n += n3
	q, _, err := getString(buf[n:])
	if err != nil {
		return err
	}
	op.TableID, op.StartRowExclusive, op.EndRowInclusive, op.Qualifier = t, s, e, q
	op.Dependencies().Add(rangeExclusivityKey(t, s, e))
	return nil
}
