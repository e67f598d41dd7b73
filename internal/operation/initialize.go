package operation

import (
	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/rangeserver"
)

func init() {
	Register(TypeInitialize, func(id int64) Operation { return NewInitialize(id) })
}

// Initialize brings a bare cluster up (spec §4.3): it is admitted once,
// at most, during C8's bootstrap, and is never removed from the
// Meta-Log — its presence on replay is the signal that the cluster has
// already been initialized.
type Initialize struct {
	Base

	MetadataTableID string
	RootLocation    string
	SecondLocation  string
}

func NewInitialize(id int64) *Initialize {
	op := &Initialize{Base: NewBase(id, 0)}
	op.Dependencies().Add(DepInit)
	return op
}

func (op *Initialize) EntityType() EntityType { return TypeInitialize }
func (op *Initialize) Name() string            { return "Initialize" }
func (op *Initialize) Label() string           { return "Initialize" }

func (op *Initialize) Execute(ctx Context) error {
	switch op.State() {
	case Initial:
		if err := ctx.Lockservice().Mkdirs("/servers"); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		if err := ctx.Lockservice().Mkdirs("/tables"); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		if err := ctx.Lockservice().Create("/root", true); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(Started)
		return nil

	case Started:
		op.PushSubOperation(NewCreateNamespace(ctx.NextID(), "/sys", NamespaceCreateIntermediate))
		tableID, err := ctx.AllocateTableID("/sys/METADATA")
		if err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.MetadataTableID = tableID
		op.SetState(AssignMetadataRanges)
		return nil

	case AssignMetadataRanges:
		servers := ctx.Registry().GetServers()
		if len(servers) < 2 {
			op.SetState(Blocked)
			return nil
		}
		op.RootLocation = servers[0].Location
		op.SecondLocation = servers[1].Location
		op.SetState(LoadRootMetadataRange)
		return nil

	case LoadRootMetadataRange:
		_, err := ctx.RangeServers().LoadRange(op.RootLocation, rangeserver.LoadRangeRequest{
			TableID:         op.MetadataTableID,
			EndRowInclusive: "0:" + rangeserver.EndRowMarker,
		})
		if err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(LoadSecondMetadataRange)
		return nil

	case LoadSecondMetadataRange:
		_, err := ctx.RangeServers().LoadRange(op.SecondLocation, rangeserver.LoadRangeRequest{
			TableID:           op.MetadataTableID,
			StartRowExclusive: "0:" + rangeserver.EndRowMarker,
			EndRowInclusive:   rangeserver.EndRowMarker,
		})
		if err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(WriteMetadata)
		return nil

	case WriteMetadata:
		if err := ctx.WriteMetadataRow(MetadataRow{
			TableID:         op.MetadataTableID,
			EndRowInclusive: "0:" + rangeserver.EndRowMarker,
			Location:        op.RootLocation,
		}); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		if err := ctx.WriteMetadataRow(MetadataRow{
			TableID:           op.MetadataTableID,
			StartRowExclusive: "0:" + rangeserver.EndRowMarker,
			EndRowInclusive:   rangeserver.EndRowMarker,
			Location:          op.SecondLocation,
		}); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.SetState(CreateRSMetrics)
		return nil

	case CreateRSMetrics:
		op.PushSubOperation(NewCreateTable(ctx.NextID(), "/sys/RS_METRICS", ""))
		op.SetState(Finalize)
		return nil

	case Finalize:
		if err := ctx.FinalizeTable(op.MetadataTableID); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		op.CompleteOK()
		return nil
	}
	return nil
}

func (op *Initialize) RemoveExplicitly() bool { return false }

func (op *Initialize) EncodeState() []byte {
	buf := make([]byte, stringLen(op.MetadataTableID)+stringLen(op.RootLocation)+stringLen(op.SecondLocation))
	n := putString(buf, op.MetadataTableID)
	n += putString(buf[n:], op.RootLocation)
	putString(buf[n:], op.SecondLocation)
	return buf
}

func (op *Initialize) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	t, n, err := getString(buf)
	if err != nil {
		return err
	}
	r, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	s, _, err := getString(buf[n+n2:])
	if err != nil {
		return err
	}
	op.MetadataTableID, op.RootLocation, op.SecondLocation = t, r, s
	return nil
}
