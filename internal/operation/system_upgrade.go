package operation

import "github.com/hypertable/master/internal/operr"

func init() {
	Register(TypeSystemUpgrade, func(id int64) Operation { return NewSystemUpgrade(id, "", "", "") })
}

// SystemUpgrade is admitted once at every bootstrap (spec §4.8 step 6):
// it rewrites the METADATA and RS_METRICS schemas if their target
// versions moved ahead of what is currently persisted, fanning the new
// schema out to every location already serving the table.
type SystemUpgrade struct {
	Base

	MetadataTable   string
	RSMetricsTable  string
	TargetSchema    string
}

func NewSystemUpgrade(id int64, metadataTable, rsMetricsTable, targetSchema string) *SystemUpgrade {
	op := &SystemUpgrade{Base: NewBase(id, 0), MetadataTable: metadataTable, RSMetricsTable: rsMetricsTable, TargetSchema: targetSchema}
	op.Dependencies().Add(DepInit)
	return op
}

func (op *SystemUpgrade) EntityType() EntityType { return TypeSystemUpgrade }
func (op *SystemUpgrade) Name() string            { return "SystemUpgrade" }
func (op *SystemUpgrade) Label() string          { return "SystemUpgrade" }

func (op *SystemUpgrade) Execute(ctx Context) error {
	for _, name := range []string{op.MetadataTable, op.RSMetricsTable} {
		if name == "" {
			continue
		}
		tableID, ok := ctx.ResolveTableID(name)
		if !ok {
			continue
		}
		current, _ := ctx.GetTableSchema(tableID)
		if current == op.TargetSchema {
			continue
		}
		if err := ctx.SetTableSchema(tableID, op.TargetSchema); err != nil {
			op.CompleteError(operr.CodeOf(err), err.Error())
			return nil
		}
		var locations []string
		seen := make(map[string]bool)
		for _, row := range ctx.ScanMetadata(tableID) {
			if row.Location != "" && !seen[row.Location] {
				seen[row.Location] = true
				locations = append(locations, row.Location)
			}
		}
		ctx.RangeServers().UpdateSchema(locations, tableID, op.TargetSchema)
	}
	op.CompleteOK()
	return nil
}

func (op *SystemUpgrade) EncodeState() []byte {
	buf := make([]byte, stringLen(op.MetadataTable)+stringLen(op.RSMetricsTable)+stringLen(op.TargetSchema))
	n := putString(buf, op.MetadataTable)
	n += putString(buf[n:], op.RSMetricsTable)
	putString(buf[n:], op.TargetSchema)
	return buf
}

func (op *SystemUpgrade) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	m, n, err := getString(buf)
	if err != nil {
		return err
	}
	r, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	t, _, err := getString(buf[n+n2:])
	if err != nil {
		return err
	}
	op.MetadataTable, op.RSMetricsTable, op.TargetSchema = m, r, t
	return nil
}
