package operation

func init() {
	Register(TypeGatherStatistics, func(id int64) Operation { return NewGatherStatistics(id) })
	Register(TypeCollectGarbage, func(id int64) Operation { return NewCollectGarbage(id) })
}

// GatherStatistics is queued periodically by the timer (spec §4.7); it
// depends on INIT/METADATA/SYSTEM so it always serializes after
// bootstrap-affecting work, and fans a get_statistics request out to
// every connected server.
type GatherStatistics struct {
	Base
}

func NewGatherStatistics(id int64) *GatherStatistics {
	op := &GatherStatistics{Base: NewBase(id, 0)}
	op.Dependencies().Add(DepInit)
	op.Dependencies().Add(DepMetadata)
	op.Dependencies().Add(DepSystem)
	return op
}

func (op *GatherStatistics) EntityType() EntityType { return TypeGatherStatistics }
func (op *GatherStatistics) Name() string            { return "GatherStatistics" }
func (op *GatherStatistics) Label() string          { return "GatherStatistics" }

func (op *GatherStatistics) Execute(ctx Context) error {
	var locations []string
	for _, c := range ctx.Registry().GetServers() {
		locations = append(locations, c.Location)
	}
	ctx.RangeServers().GetStatistics(locations)
	op.CompleteOK()
	return nil
}

func (op *GatherStatistics) EncodeState() []byte      { return nil }
func (op *GatherStatistics) DecodeState([]byte) error { return nil }

// CollectGarbage is the GC-timer counterpart to GatherStatistics,
// fanning a drop-table-equivalent compaction hint to every server; the
// underlying range-server storage engine is out of scope (spec §1), so
// this drives the same outbound RPC surface as DropTable/AlterTable.
type CollectGarbage struct {
	Base
}

func NewCollectGarbage(id int64) *CollectGarbage {
	op := &CollectGarbage{Base: NewBase(id, 0)}
	op.Dependencies().Add(DepInit)
	op.Dependencies().Add(DepMetadata)
	op.Dependencies().Add(DepSystem)
	return op
}

func (op *CollectGarbage) EntityType() EntityType { return TypeCollectGarbage }
func (op *CollectGarbage) Name() string            { return "CollectGarbage" }
func (op *CollectGarbage) Label() string          { return "CollectGarbage" }

func (op *CollectGarbage) Execute(ctx Context) error {
	var locations []string
	for _, c := range ctx.Registry().GetServers() {
		locations = append(locations, c.Location)
	}
	ctx.RangeServers().FanOut(locations, "RangeServer.CollectGarbage", func(string) interface{} {
		return &struct{}{}
	})
	op.CompleteOK()
	return nil
}

func (op *CollectGarbage) EncodeState() []byte      { return nil }
func (op *CollectGarbage) DecodeState([]byte) error { return nil }
